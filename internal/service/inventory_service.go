package service

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/inventory-ledger/internal/events"
	"github.com/inventory-ledger/internal/models"
	"github.com/inventory-ledger/internal/repository"
	"github.com/inventory-ledger/internal/storage"
	"github.com/inventory-ledger/pkg/filetoken"
	"github.com/sirupsen/logrus"
)

// ItemPayload is the canonical add/update request, whether it arrived as
// multipart form fields or as a JSON body. On update Carico and Scarico are
// movement deltas added to the stored totals.
type ItemPayload struct {
	CodiceArticolo string   `json:"codice_articolo"`
	Descrizione    string   `json:"descrizione"`
	UnitaMisura    string   `json:"unita_misura"`
	Locazione      string   `json:"locazione"`
	DataIngresso   string   `json:"data_ingresso"`
	Foto           string   `json:"foto"`
	Carico         Quantity `json:"carico"`
	Scarico        Quantity `json:"scarico"`
}

// Upload is an attachment sent along with a payload
type Upload struct {
	Filename string
	Content  io.Reader
}

// CSVHeader is the first row of the CSV export
var CSVHeader = []string{"Codice Articolo", "Descrizione", "Unità Misura", "Quantità", "Locazione", "Data Ingresso"}

// InventoryService handles ledger operations
type InventoryService struct {
	repo    *repository.InventoryRepository
	uploads *storage.Uploads
	codec   *filetoken.Codec
	hub     *events.Hub
	log     *logrus.Logger
}

// NewInventoryService creates a new InventoryService
func NewInventoryService(
	repo *repository.InventoryRepository,
	uploads *storage.Uploads,
	codec *filetoken.Codec,
	hub *events.Hub,
	log *logrus.Logger,
) *InventoryService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &InventoryService{
		repo:    repo,
		uploads: uploads,
		codec:   codec,
		hub:     hub,
		log:     log,
	}
}

// List returns the items matching filter, with creator and last editor
func (s *InventoryService) List(ctx context.Context, filter repository.ItemFilter) ([]models.InventoryItemResponse, error) {
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	result := make([]models.InventoryItemResponse, 0, len(items))
	for i := range items {
		result = append(result, s.toResponse(&items[i], true))
	}
	return result, nil
}

// Get returns one item
func (s *InventoryService) Get(ctx context.Context, id uint) (*models.InventoryItemResponse, error) {
	item, err := s.getItem(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := s.toResponse(item, false)
	return &resp, nil
}

// Add creates an item. Carico and Scarico form its opening quantity.
func (s *InventoryService) Add(ctx context.Context, payload *ItemPayload, file *Upload, actor string) (*models.InventoryItemResponse, error) {
	code := strings.TrimSpace(payload.CodiceArticolo)
	if code == "" {
		return nil, newError(ErrValidation, "codice_articolo is required")
	}

	exists, err := s.repo.ExistsByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, newError(ErrConflict, "an item with code %q already exists", code)
	}

	if err := checkMovement(payload); err != nil {
		return nil, err
	}
	if err := s.checkUpload(file); err != nil {
		return nil, err
	}

	foto, err := s.resolveFoto(payload, file)
	if err != nil {
		return nil, err
	}

	item := &models.InventoryItem{
		CodiceArticolo: code,
		Descrizione:    payload.Descrizione,
		UnitaMisura:    payload.UnitaMisura,
		Locazione:      payload.Locazione,
		DataIngresso:   payload.DataIngresso,
		Carico:         int64(payload.Carico),
		Scarico:        int64(payload.Scarico),
		Quantita:       int64(payload.Carico) - int64(payload.Scarico),
		Foto:           foto,
		CreatedBy:      actor,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		if errors.Is(err, repository.ErrDuplicateCode) {
			return nil, newError(ErrConflict, "an item with code %q already exists", code)
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"item_id": item.ID,
		"code":    item.CodiceArticolo,
		"actor":   actor,
	}).Info("inventory item created")
	s.publish(events.TypeItemCreated, item, actor)

	resp := s.toResponse(item, false)
	return &resp, nil
}

// Update adds the payload movements to an item and overwrites the non-empty
// descriptive fields. The article code is not checked for duplicates here.
func (s *InventoryService) Update(ctx context.Context, id uint, payload *ItemPayload, file *Upload, actor string) (*models.InventoryItemResponse, error) {
	if _, err := s.getItem(ctx, id); err != nil {
		return nil, err
	}
	if err := checkMovement(payload); err != nil {
		return nil, err
	}
	if err := s.checkUpload(file); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{"modified_by": actor}
	for column, value := range map[string]string{
		"codice_articolo": strings.TrimSpace(payload.CodiceArticolo),
		"descrizione":     payload.Descrizione,
		"unita_misura":    payload.UnitaMisura,
		"locazione":       payload.Locazione,
		"data_ingresso":   payload.DataIngresso,
	} {
		if value != "" {
			fields[column] = value
		}
	}

	foto, err := s.resolveFoto(payload, file)
	if err != nil {
		return nil, err
	}
	if foto != nil {
		fields["foto"] = *foto
	}

	item, err := s.repo.ApplyChanges(ctx, id, repository.ItemChanges{
		CaricoDelta:  int64(payload.Carico),
		ScaricoDelta: int64(payload.Scarico),
		Fields:       fields,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrItemNotFound):
			return nil, newError(ErrNotFound, "item not found")
		case errors.Is(err, repository.ErrCounterOverflow):
			return nil, newError(ErrInvalidValue, "carico or scarico is too large")
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"item_id": item.ID,
		"carico":  payload.Carico,
		"scarico": payload.Scarico,
		"actor":   actor,
	}).Info("inventory item updated")
	s.publish(events.TypeItemUpdated, item, actor)

	resp := s.toResponse(item, false)
	return &resp, nil
}

// Delete removes an item. Its attachment stays in the upload directory.
func (s *InventoryService) Delete(ctx context.Context, id uint, actor string) error {
	item, err := s.getItem(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			return newError(ErrNotFound, "item not found")
		}
		return err
	}

	s.log.WithFields(logrus.Fields{"item_id": id, "actor": actor}).Info("inventory item deleted")
	s.publish(events.TypeItemDeleted, item, actor)
	return nil
}

// ExportCSV writes every item as CSV
func (s *InventoryService) ExportCSV(ctx context.Context, w io.Writer) error {
	items, err := s.repo.List(ctx, repository.ItemFilter{})
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, item := range items {
		if err := cw.Write([]string{
			item.CodiceArticolo,
			item.Descrizione,
			item.UnitaMisura,
			strconv.FormatInt(item.Quantita, 10),
			item.Locazione,
			item.DataIngresso,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ResolveFile maps a file token to a stored attachment name
func (s *InventoryService) ResolveFile(token string) (string, error) {
	name, err := s.codec.Decode(token)
	switch {
	case errors.Is(err, filetoken.ErrExpired):
		return "", newError(ErrInvalidValue, "file link expired, request the file again")
	case err != nil:
		return "", newError(ErrInvalidValue, "invalid file token")
	}
	if !s.uploads.Exists(name) {
		return "", newError(ErrNotFound, "file not found")
	}
	return name, nil
}

func (s *InventoryService) getItem(ctx context.Context, id uint) (*models.InventoryItem, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			return nil, newError(ErrNotFound, "item not found")
		}
		return nil, err
	}
	return item, nil
}

func checkMovement(payload *ItemPayload) error {
	if payload.Carico < 0 || payload.Scarico < 0 {
		return newError(ErrInvalidValue, "carico and scarico must be zero or greater")
	}
	return nil
}

func (s *InventoryService) checkUpload(file *Upload) error {
	if file == nil || file.Filename == "" {
		return nil
	}
	if !s.uploads.Allowed(file.Filename) || storage.SanitizeFilename(file.Filename) == "" {
		return newError(ErrInvalidValue, "file extension not allowed")
	}
	return nil
}

// resolveFoto stores an uploaded file, or falls back to a foto name given in
// the payload, which must name a file already in the upload directory. It
// returns nil when neither is present.
func (s *InventoryService) resolveFoto(payload *ItemPayload, file *Upload) (*string, error) {
	if file != nil && file.Filename != "" {
		name, err := s.uploads.Save(file.Filename, file.Content)
		if err != nil {
			if errors.Is(err, storage.ErrExtensionNotAllowed) || errors.Is(err, storage.ErrInvalidFilename) {
				return nil, newError(ErrInvalidValue, "file extension not allowed")
			}
			return nil, err
		}
		return &name, nil
	}
	if strings.TrimSpace(payload.Foto) == "" {
		return nil, nil
	}
	name := storage.SanitizeFilename(payload.Foto)
	if name == "" || !s.uploads.Exists(name) {
		return nil, newError(ErrInvalidValue, "attachment %q does not exist", payload.Foto)
	}
	return &name, nil
}

func (s *InventoryService) toResponse(item *models.InventoryItem, includeTracking bool) models.InventoryItemResponse {
	resp := models.InventoryItemResponse{
		ID:             item.ID,
		CodiceArticolo: item.CodiceArticolo,
		Descrizione:    item.Descrizione,
		UnitaMisura:    item.UnitaMisura,
		Quantita:       item.Quantita,
		Carico:         item.Carico,
		Scarico:        item.Scarico,
		Locazione:      item.Locazione,
		DataIngresso:   item.DataIngresso,
	}
	if item.HasFoto() {
		token, err := s.codec.Encode(*item.Foto)
		if err != nil {
			s.log.WithError(err).WithField("item_id", item.ID).Warn("failed to sign attachment")
		} else {
			attachment := DescribeAttachment(*item.Foto, item.CodiceArticolo, token)
			resp.Attachment = &attachment
		}
	}
	if includeTracking {
		createdBy, modifiedBy := item.CreatedBy, item.ModifiedBy
		resp.CreatedBy = &createdBy
		resp.ModifiedBy = &modifiedBy
	}
	return resp
}

func (s *InventoryService) publish(eventType string, item *models.InventoryItem, actor string) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(events.Event{
		Type:           eventType,
		ItemID:         item.ID,
		CodiceArticolo: item.CodiceArticolo,
		Actor:          actor,
	})
}
