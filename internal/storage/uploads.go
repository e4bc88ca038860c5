// Package storage keeps attachment files in a flat upload directory.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrExtensionNotAllowed = errors.New("file extension not allowed")
	ErrInvalidFilename     = errors.New("invalid filename")
	ErrFileNotFound        = errors.New("file not found")
)

var (
	whitespaceRun   = regexp.MustCompile(`\s+`)
	unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
)

// SanitizeFilename reduces name to a safe flat filename: accents are folded to
// ASCII, directory parts and unsafe characters removed, whitespace turned
// into underscores. It returns "" when nothing usable is left. Applying it
// twice gives the same result.
func SanitizeFilename(name string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn))), name)
	if err != nil {
		folded = name
	}
	var b strings.Builder
	for _, r := range folded {
		if r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	s := strings.NewReplacer("/", " ", `\`, " ").Replace(b.String())
	s = whitespaceRun.ReplaceAllString(strings.TrimSpace(s), "_")
	s = unsafeFileChars.ReplaceAllString(s, "")
	return strings.Trim(s, "._")
}

// Extension returns the lower-cased extension of name without the dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// Uploads is the attachment directory.
type Uploads struct {
	dir     string
	allowed map[string]struct{}
}

// NewUploads creates dir if needed. allowed lists the accepted extensions.
func NewUploads(dir string, allowed []string) (*Uploads, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(allowed))
	for _, ext := range allowed {
		set[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	return &Uploads{dir: abs, allowed: set}, nil
}

// Dir returns the absolute upload directory.
func (u *Uploads) Dir() string {
	return u.dir
}

// Allowed reports whether name has an accepted extension.
func (u *Uploads) Allowed(name string) bool {
	ext := Extension(name)
	if ext == "" {
		return false
	}
	_, ok := u.allowed[ext]
	return ok
}

// Save stores r under the sanitized form of name and returns the stored name.
// An existing file with the same name is replaced.
func (u *Uploads) Save(name string, r io.Reader) (string, error) {
	if !u.Allowed(name) {
		return "", ErrExtensionNotAllowed
	}
	clean := SanitizeFilename(name)
	if clean == "" || !u.Allowed(clean) {
		return "", ErrInvalidFilename
	}
	if err := writeFile(u.dir, clean, r); err != nil {
		return "", err
	}
	return clean, nil
}

// Path resolves a stored name to its location, refusing anything that would
// leave the upload directory.
func (u *Uploads) Path(name string) (string, error) {
	if name == "" || SanitizeFilename(name) != name {
		return "", ErrInvalidFilename
	}
	p := filepath.Join(u.dir, name)
	if filepath.Dir(p) != u.dir {
		return "", ErrInvalidFilename
	}
	return p, nil
}

// Exists reports whether a stored file is present.
func (u *Uploads) Exists(name string) bool {
	p, err := u.Path(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Open opens a stored file for reading.
func (u *Uploads) Open(name string) (*os.File, error) {
	p, err := u.Path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return f, nil
}

// NewStaging creates an empty directory next to the upload directory. Files
// written there replace the whole upload directory on Promote.
func (u *Uploads) NewStaging() (*Staging, error) {
	parent, base := filepath.Split(u.dir)
	dir := filepath.Join(parent, fmt.Sprintf(".%s-staging-%s", base, uuid.NewString()))
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Staging{uploads: u, dir: dir}, nil
}

// Staging collects the files of a pending full replacement.
type Staging struct {
	uploads *Uploads
	dir     string
}

// Write stores data under name, which must already be a sanitized filename.
func (s *Staging) Write(name string, data []byte) error {
	if name == "" || SanitizeFilename(name) != name {
		return ErrInvalidFilename
	}
	return writeFile(s.dir, name, bytes.NewReader(data))
}

// Discard removes the staging directory. It is a no-op after Promote.
func (s *Staging) Discard() error {
	if s.dir == "" {
		return nil
	}
	return os.RemoveAll(s.dir)
}

// Promote moves the live directory aside and puts the staged one in its
// place. The returned Swap must be committed or rolled back.
func (s *Staging) Promote() (*Swap, error) {
	live := s.uploads.dir
	backup := s.dir + "-backup"
	if err := os.Rename(live, backup); err != nil {
		return nil, fmt.Errorf("move upload dir aside: %w", err)
	}
	if err := os.Rename(s.dir, live); err != nil {
		if rerr := os.Rename(backup, live); rerr != nil {
			return nil, fmt.Errorf("promote staging: %v (restore failed: %w)", err, rerr)
		}
		return nil, fmt.Errorf("promote staging: %w", err)
	}
	s.dir = ""
	return &Swap{live: live, backup: backup}, nil
}

// Swap is a promoted staging directory whose previous contents are still
// kept as a backup.
type Swap struct {
	live   string
	backup string
}

// Commit deletes the backup of the previous directory.
func (w *Swap) Commit() error {
	return os.RemoveAll(w.backup)
}

// Rollback restores the previous directory and drops the promoted files.
func (w *Swap) Rollback() error {
	if err := os.RemoveAll(w.live); err != nil {
		return err
	}
	return os.Rename(w.backup, w.live)
}

func writeFile(dir, name string, r io.Reader) error {
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}
