package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/inventory-ledger/internal/events"
	"github.com/inventory-ledger/internal/models"
	"github.com/inventory-ledger/internal/repository"
	"github.com/inventory-ledger/internal/storage"
	"github.com/sirupsen/logrus"
)

const (
	BundleVersion    = 1
	manifestName     = "manifest.json"
	bundleUploadsDir = "uploads/"
)

// Manifest is the manifest.json of a bundle
type Manifest struct {
	Version     int            `json:"version"`
	BundleID    string         `json:"bundle_id"`
	GeneratedAt time.Time      `json:"generated_at"`
	ItemCount   int            `json:"item_count"`
	Items       []ManifestItem `json:"items"`
}

// ManifestItem is the full dump of one item
type ManifestItem struct {
	ID             uint    `json:"id"`
	CodiceArticolo string  `json:"codice_articolo"`
	Descrizione    string  `json:"descrizione"`
	UnitaMisura    string  `json:"unita_misura"`
	Carico         int64   `json:"carico"`
	Scarico        int64   `json:"scarico"`
	Quantita       int64   `json:"quantita"`
	Locazione      string  `json:"locazione"`
	Foto           *string `json:"foto"`
	DataIngresso   string  `json:"data_ingresso"`
	CreatedBy      string  `json:"created_by"`
	ModifiedBy     string  `json:"modified_by"`
}

// ImportResult summarizes a completed import
type ImportResult struct {
	Imported int `json:"imported"`
}

// BundleService exports and restores the whole ledger with its attachments
type BundleService struct {
	repo    *repository.InventoryRepository
	uploads *storage.Uploads
	hub     *events.Hub
	log     *logrus.Logger
	now     func() time.Time
}

// NewBundleService creates a new BundleService
func NewBundleService(repo *repository.InventoryRepository, uploads *storage.Uploads, hub *events.Hub, log *logrus.Logger) *BundleService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &BundleService{
		repo:    repo,
		uploads: uploads,
		hub:     hub,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Export writes a ZIP bundle of every item and every attachment that still
// exists on disk. References to files that are gone are exported as null.
func (s *BundleService) Export(ctx context.Context, w io.Writer) error {
	items, err := s.repo.List(ctx, repository.ItemFilter{})
	if err != nil {
		return err
	}

	manifest := Manifest{
		Version:     BundleVersion,
		BundleID:    uuid.NewString(),
		GeneratedAt: s.now(),
		ItemCount:   len(items),
		Items:       make([]ManifestItem, 0, len(items)),
	}
	var files []string
	seen := make(map[string]bool)
	for _, item := range items {
		foto := item.Foto
		if item.HasFoto() && !s.uploads.Exists(*item.Foto) {
			// the bundle must import cleanly, so a reference without its file is dropped
			s.log.WithFields(logrus.Fields{"item_id": item.ID, "foto": *item.Foto}).Warn("attachment missing from upload directory, exported without it")
			foto = nil
		}
		manifest.Items = append(manifest.Items, ManifestItem{
			ID:             item.ID,
			CodiceArticolo: item.CodiceArticolo,
			Descrizione:    item.Descrizione,
			UnitaMisura:    item.UnitaMisura,
			Carico:         item.Carico,
			Scarico:        item.Scarico,
			Quantita:       item.Quantita,
			Locazione:      item.Locazione,
			Foto:           foto,
			DataIngresso:   item.DataIngresso,
			CreatedBy:      item.CreatedBy,
			ModifiedBy:     item.ModifiedBy,
		})
		if foto != nil && *foto != "" && !seen[*foto] {
			seen[*foto] = true
			files = append(files, *foto)
		}
	}

	zw := zip.NewWriter(w)
	mw, err := zw.Create(manifestName)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(mw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(manifest); err != nil {
		return err
	}

	for _, name := range files {
		if err := s.copyToZip(zw, name); err != nil {
			return fmt.Errorf("add %s to bundle: %w", name, err)
		}
	}
	return zw.Close()
}

func (s *BundleService) copyToZip(zw *zip.Writer, name string) error {
	f, err := s.uploads.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	fw, err := zw.Create(bundleUploadsDir + name)
	if err != nil {
		return err
	}
	_, err = io.Copy(fw, f)
	return err
}

// preparedItem is a validated manifest entry ready to be inserted
type preparedItem struct {
	item models.InventoryItem
	file []byte
}

// Import replaces the whole ledger and upload directory with the bundle
// contents. Every entry is validated before anything is changed.
func (s *BundleService) Import(ctx context.Context, data []byte, actor string) (*ImportResult, error) {
	prepared, err := s.prepare(data)
	if err != nil {
		return nil, err
	}

	staging, err := s.uploads.NewStaging()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := staging.Discard(); err != nil {
			s.log.WithError(err).Warn("failed to remove staging directory")
		}
	}()

	items := make([]models.InventoryItem, 0, len(prepared))
	for _, p := range prepared {
		if p.file != nil {
			if err := staging.Write(*p.item.Foto, p.file); err != nil {
				return nil, fmt.Errorf("stage attachment: %w", err)
			}
		}
		items = append(items, p.item)
	}

	var swap *storage.Swap
	err = s.repo.ReplaceAll(ctx, items, func() error {
		var err error
		swap, err = staging.Promote()
		return err
	})
	if err != nil {
		if swap != nil {
			if rerr := swap.Rollback(); rerr != nil {
				s.log.WithError(rerr).Error("failed to restore upload directory after import failure")
			}
		}
		return nil, err
	}
	if err := swap.Commit(); err != nil {
		s.log.WithError(err).Warn("failed to remove previous upload directory")
	}

	s.log.WithFields(logrus.Fields{"imported": len(items), "actor": actor}).Info("inventory bundle imported")
	if s.hub != nil {
		s.hub.Publish(events.Event{Type: events.TypeImported, Count: len(items), Actor: actor})
	}
	return &ImportResult{Imported: len(items)}, nil
}

// prepare validates the archive and builds the items to insert
func (s *BundleService) prepare(data []byte) ([]preparedItem, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, newError(ErrInvalidFormat, "the file is not a valid ZIP archive")
	}

	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		entries[f.Name] = f
	}

	mf, ok := entries[manifestName]
	if !ok {
		return nil, newError(ErrInvalidFormat, "manifest.json is missing from the archive")
	}
	raw, err := readZipFile(mf)
	if err != nil {
		return nil, newError(ErrInvalidFormat, "manifest.json cannot be read")
	}

	var manifest struct {
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, newError(ErrInvalidFormat, "manifest.json cannot be read")
	}
	var rawItems []json.RawMessage
	if err := json.Unmarshal(manifest.Items, &rawItems); err != nil || rawItems == nil {
		return nil, newError(ErrInvalidFormat, "manifest items must be a list")
	}

	prepared := make([]preparedItem, 0, len(rawItems))
	for i, rawItem := range rawItems {
		p, err := prepareEntry(i+1, rawItem, entries)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, p)
	}
	return prepared, nil
}

func prepareEntry(n int, raw json.RawMessage, entries map[string]*zip.File) (preparedItem, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return preparedItem{}, newError(ErrInvalidFormat, "item %d is not an object", n)
	}

	code := strings.TrimSpace(stringField(fields, "codice_articolo"))
	if code == "" {
		return preparedItem{}, newError(ErrInvalidFormat, "item %d: codice_articolo is required", n)
	}

	carico, err := quantityField(fields, "carico")
	if err != nil {
		return preparedItem{}, newError(ErrInvalidValue, "item %d: carico must be an integer", n)
	}
	scarico, err := quantityField(fields, "scarico")
	if err != nil {
		return preparedItem{}, newError(ErrInvalidValue, "item %d: scarico must be an integer", n)
	}
	if carico < 0 || scarico < 0 {
		return preparedItem{}, newError(ErrInvalidValue, "item %d: carico and scarico must be zero or greater", n)
	}

	p := preparedItem{item: models.InventoryItem{
		CodiceArticolo: code,
		Descrizione:    stringField(fields, "descrizione"),
		UnitaMisura:    stringField(fields, "unita_misura"),
		Locazione:      stringField(fields, "locazione"),
		DataIngresso:   stringField(fields, "data_ingresso"),
		CreatedBy:      stringField(fields, "created_by"),
		ModifiedBy:     stringField(fields, "modified_by"),
		Carico:         int64(carico),
		Scarico:        int64(scarico),
		Quantita:       int64(carico) - int64(scarico),
	}}

	if foto := stringField(fields, "foto"); foto != "" {
		if storage.SanitizeFilename(foto) != foto {
			return preparedItem{}, newError(ErrInvalidFormat, "item %d: invalid attachment name %q", n, foto)
		}
		entry, ok := entries[bundleUploadsDir+foto]
		if !ok {
			return preparedItem{}, newError(ErrInvalidFormat, "item %d: attachment %s is missing from the archive", n, foto)
		}
		content, err := readZipFile(entry)
		if err != nil {
			return preparedItem{}, newError(ErrInvalidFormat, "item %d: attachment %s cannot be read", n, foto)
		}
		p.item.Foto = &foto
		p.file = content
	}
	return p, nil
}

// stringField reads a string value; anything else counts as empty
func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func quantityField(fields map[string]json.RawMessage, key string) (Quantity, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, nil
	}
	var q Quantity
	if err := json.Unmarshal(raw, &q); err != nil {
		return 0, err
	}
	return q, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
