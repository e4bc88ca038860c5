package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/inventory-ledger/internal/events"
	"github.com/inventory-ledger/internal/models"
	"github.com/inventory-ledger/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type ledgerRow struct {
	Code    string
	Carico  int64
	Scarico int64
	Qty     int64
	HasFoto bool
}

func ledgerRows(t *testing.T, env *testEnv) []ledgerRow {
	t.Helper()
	items, err := env.items.List(context.Background(), repository.ItemFilter{})
	require.NoError(t, err)
	rows := make([]ledgerRow, 0, len(items))
	for _, it := range items {
		rows = append(rows, ledgerRow{it.CodiceArticolo, it.Carico, it.Scarico, it.Quantita, it.HasFoto()})
	}
	return rows
}

func TestBundleService_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, err := env.inventory.Add(ctx, &ItemPayload{CodiceArticolo: "A1", Carico: 10, Scarico: 3},
		&Upload{Filename: "a.png", Content: strings.NewReader("png")}, "mario")
	require.NoError(t, err)
	_, err = env.inventory.Update(ctx, a.ID, &ItemPayload{Carico: 5, Scarico: 2}, nil, "luigi")
	require.NoError(t, err)
	_, err = env.inventory.Add(ctx, &ItemPayload{CodiceArticolo: "B2", Carico: 1}, nil, "mario")
	require.NoError(t, err)
	// shares the attachment of A1; exported once
	_, err = env.inventory.Add(ctx, &ItemPayload{CodiceArticolo: "C3", Foto: "a.png"}, nil, "mario")
	require.NoError(t, err)
	// its file disappears from disk after the item is stored
	_, err = env.inventory.Add(ctx, &ItemPayload{CodiceArticolo: "D4"},
		&Upload{Filename: "gone.png", Content: strings.NewReader("png")}, "mario")
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(env.uploads.Dir(), "gone.png")))

	var buf bytes.Buffer
	require.NoError(t, env.bundles.Export(ctx, &buf))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"manifest.json", "uploads/a.png"}, names)

	mf, err := zr.File[0].Open()
	require.NoError(t, err)
	var manifest Manifest
	require.NoError(t, json.NewDecoder(mf).Decode(&manifest))
	require.NoError(t, mf.Close())
	assert.Equal(t, BundleVersion, manifest.Version)
	assert.NotEmpty(t, manifest.BundleID)
	assert.Equal(t, 4, manifest.ItemCount)
	assert.Equal(t, "luigi", manifest.Items[0].ModifiedBy)
	assert.Nil(t, manifest.Items[3].Foto)

	// the dangling reference is not carried over
	require.NoError(t, env.db.Model(&models.InventoryItem{}).Where("codice_articolo = ?", "D4").Update("foto", nil).Error)
	before := ledgerRows(t, env)

	sub := env.hub.Subscribe()
	defer sub.Close()

	result, err := env.bundles.Import(ctx, buf.Bytes(), "mario")
	require.NoError(t, err)
	assert.Equal(t, 4, result.Imported)
	assert.Equal(t, before, ledgerRows(t, env))
	assert.True(t, env.uploads.Exists("a.png"))

	ev := <-sub.C
	assert.Equal(t, events.TypeImported, ev.Type)
	assert.Equal(t, 4, ev.Count)
}

func TestBundleService_ExportedPayloadReferencesImport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.inventory.Add(ctx, &ItemPayload{CodiceArticolo: "A1", Carico: 10, Foto: "ghost.png"}, nil, "mario")
	require.ErrorIs(t, err, ErrInvalidValue)

	_, err = env.inventory.Add(ctx, &ItemPayload{CodiceArticolo: "A1", Carico: 10},
		&Upload{Filename: "real.png", Content: strings.NewReader("png")}, "mario")
	require.NoError(t, err)
	_, err = env.inventory.Add(ctx, &ItemPayload{CodiceArticolo: "B1", Carico: 2, Foto: "real.png"}, nil, "mario")
	require.NoError(t, err)

	before := ledgerRows(t, env)
	var buf bytes.Buffer
	require.NoError(t, env.bundles.Export(ctx, &buf))

	result, err := env.bundles.Import(ctx, buf.Bytes(), "mario")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, before, ledgerRows(t, env))
	assert.True(t, env.uploads.Exists("real.png"))
}

func TestBundleService_ImportReplacesUploads(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.inventory.Add(ctx, &ItemPayload{CodiceArticolo: "OLD"},
		&Upload{Filename: "old.png", Content: strings.NewReader("old")}, "mario")
	require.NoError(t, err)

	data := buildZip(t, map[string]string{
		"manifest.json":   `{"version":1,"items":[{"codice_articolo":"NEW","carico":"8","scarico":2.0,"foto":"new.pdf"}]}`,
		"uploads/new.pdf": "%PDF",
	})
	result, err := env.bundles.Import(ctx, data, "mario")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)

	assert.Equal(t, []ledgerRow{{"NEW", 8, 2, 6, true}}, ledgerRows(t, env))
	assert.True(t, env.uploads.Exists("new.pdf"))
	assert.False(t, env.uploads.Exists("old.png"))

	entries, err := os.ReadDir(filepath.Dir(env.uploads.Dir()))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestBundleService_ImportValidation(t *testing.T) {
	tests := []struct {
		name  string
		data  func(t *testing.T) []byte
		kind  error
		inMsg string
	}{
		{"not a zip", func(t *testing.T) []byte { return []byte("hello") }, ErrInvalidFormat, "ZIP"},
		{"no manifest", func(t *testing.T) []byte { return buildZip(t, map[string]string{"x.txt": "x"}) }, ErrInvalidFormat, "manifest"},
		{"bad json", func(t *testing.T) []byte { return buildZip(t, map[string]string{"manifest.json": "{"}) }, ErrInvalidFormat, "manifest"},
		{"items not list", func(t *testing.T) []byte {
			return buildZip(t, map[string]string{"manifest.json": `{"items":{"a":1}}`})
		}, ErrInvalidFormat, "list"},
		{"items missing", func(t *testing.T) []byte {
			return buildZip(t, map[string]string{"manifest.json": `{"version":1}`})
		}, ErrInvalidFormat, "list"},
		{"entry not object", func(t *testing.T) []byte {
			return buildZip(t, map[string]string{"manifest.json": `{"items":[{"codice_articolo":"A"},"x"]}`})
		}, ErrInvalidFormat, "item 2"},
		{"blank code", func(t *testing.T) []byte {
			return buildZip(t, map[string]string{"manifest.json": `{"items":[{"codice_articolo":"  "}]}`})
		}, ErrInvalidFormat, "item 1"},
		{"fractional carico", func(t *testing.T) []byte {
			return buildZip(t, map[string]string{"manifest.json": `{"items":[{"codice_articolo":"A","carico":1.5}]}`})
		}, ErrInvalidValue, "carico"},
		{"text scarico", func(t *testing.T) []byte {
			return buildZip(t, map[string]string{"manifest.json": `{"items":[{"codice_articolo":"A","scarico":"molti"}]}`})
		}, ErrInvalidValue, "scarico"},
		{"negative", func(t *testing.T) []byte {
			return buildZip(t, map[string]string{"manifest.json": `{"items":[{"codice_articolo":"A","carico":-1}]}`})
		}, ErrInvalidValue, "item 1"},
		{"missing attachment", func(t *testing.T) []byte {
			return buildZip(t, map[string]string{"manifest.json": `{"items":[{"codice_articolo":"A","foto":"x.png"}]}`})
		}, ErrInvalidFormat, "x.png"},
		{"unsafe attachment name", func(t *testing.T) []byte {
			return buildZip(t, map[string]string{
				"manifest.json":    `{"items":[{"codice_articolo":"A","foto":"../x.png"}]}`,
				"uploads/../x.png": "x",
			})
		}, ErrInvalidFormat, "item 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			_, err := env.inventory.Add(ctx, &ItemPayload{CodiceArticolo: "KEEP", Carico: 2},
				&Upload{Filename: "keep.png", Content: strings.NewReader("keep")}, "mario")
			require.NoError(t, err)

			_, err = env.bundles.Import(ctx, tt.data(t), "mario")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			assert.Contains(t, Message(err), tt.inMsg)

			assert.Equal(t, []ledgerRow{{"KEEP", 2, 0, 2, true}}, ledgerRows(t, env))
			assert.True(t, env.uploads.Exists("keep.png"))
		})
	}
}

func TestBundleService_ImportRollsBackOnInsertFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.inventory.Add(ctx, &ItemPayload{CodiceArticolo: "KEEP", Carico: 2},
		&Upload{Filename: "keep.png", Content: strings.NewReader("keep")}, "mario")
	require.NoError(t, err)

	boom := errors.New("insert failed")
	require.NoError(t, env.db.Callback().Create().Before("gorm:create").Register("test:fail_import", func(tx *gorm.DB) {
		if item, ok := tx.Statement.Dest.([]models.InventoryItem); ok && len(item) > 0 {
			_ = tx.AddError(boom)
		}
	}))

	data := buildZip(t, map[string]string{
		"manifest.json":   `{"items":[{"codice_articolo":"NEW","foto":"new.png"}]}`,
		"uploads/new.png": "new",
	})
	_, err = env.bundles.Import(ctx, data, "mario")
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, []ledgerRow{{"KEEP", 2, 0, 2, true}}, ledgerRows(t, env))
	assert.True(t, env.uploads.Exists("keep.png"))
	assert.False(t, env.uploads.Exists("new.png"))
}
