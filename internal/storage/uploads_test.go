package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"foto.png", "foto.png"},
		{"My Photo 1.JPG", "My_Photo_1.JPG"},
		{"../../etc/passwd", "etc_passwd"},
		{`..\windows\system32.pdf`, "windows_system32.pdf"},
		{"Perché è così.pdf", "Perche_e_cosi.pdf"},
		{"  .hidden.png ", "hidden.png"},
		{"a<b>c|d.gif", "abcd.gif"},
		{"...", ""},
		{"日本語", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := SanitizeFilename(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, SanitizeFilename(got))
		})
	}
}

func newTestUploads(t *testing.T) *Uploads {
	t.Helper()
	u, err := NewUploads(filepath.Join(t.TempDir(), "uploads"), []string{"png", "PDF", ".jpg"})
	require.NoError(t, err)
	return u
}

func TestUploads_SaveAndOpen(t *testing.T) {
	u := newTestUploads(t)

	assert.True(t, u.Allowed("x.PNG"))
	assert.True(t, u.Allowed("x.pdf"))
	assert.True(t, u.Allowed("x.jpg"))
	assert.False(t, u.Allowed("x.exe"))
	assert.False(t, u.Allowed("png"))

	name, err := u.Save("scheda tecnica.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "scheda_tecnica.pdf", name)
	assert.True(t, u.Exists(name))

	f, err := u.Open(name)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, f.Close())
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))

	_, err = u.Save("virus.exe", strings.NewReader("MZ"))
	assert.ErrorIs(t, err, ErrExtensionNotAllowed)

	_, err = u.Open("missing.png")
	assert.ErrorIs(t, err, ErrFileNotFound)
	_, err = u.Open("../secret.png")
	assert.ErrorIs(t, err, ErrInvalidFilename)
	assert.False(t, u.Exists("../secret.png"))
}

func TestStaging_PromoteCommit(t *testing.T) {
	u := newTestUploads(t)
	_, err := u.Save("old.png", strings.NewReader("old"))
	require.NoError(t, err)

	staging, err := u.NewStaging()
	require.NoError(t, err)
	require.NoError(t, staging.Write("new.png", []byte("new")))
	assert.ErrorIs(t, staging.Write("../x.png", nil), ErrInvalidFilename)

	swap, err := staging.Promote()
	require.NoError(t, err)
	assert.True(t, u.Exists("new.png"))
	assert.False(t, u.Exists("old.png"))

	require.NoError(t, swap.Commit())
	require.NoError(t, staging.Discard())

	entries, err := os.ReadDir(filepath.Dir(u.Dir()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "uploads", entries[0].Name())
}

func TestStaging_PromoteRollback(t *testing.T) {
	u := newTestUploads(t)
	_, err := u.Save("old.png", strings.NewReader("old"))
	require.NoError(t, err)

	staging, err := u.NewStaging()
	require.NoError(t, err)
	require.NoError(t, staging.Write("new.png", []byte("new")))

	swap, err := staging.Promote()
	require.NoError(t, err)
	require.NoError(t, swap.Rollback())

	assert.True(t, u.Exists("old.png"))
	assert.False(t, u.Exists("new.png"))
}

func TestStaging_Discard(t *testing.T) {
	u := newTestUploads(t)
	staging, err := u.NewStaging()
	require.NoError(t, err)
	require.NoError(t, staging.Write("a.png", []byte("a")))
	require.NoError(t, staging.Discard())

	entries, err := os.ReadDir(filepath.Dir(u.Dir()))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
