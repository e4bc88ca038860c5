package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/inventory-ledger/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrItemNotFound    = errors.New("inventory item not found")
	ErrCounterOverflow = errors.New("carico or scarico would overflow")
	ErrDuplicateCode   = errors.New("article code already exists")
)

// ItemFilter narrows List results. Empty fields are ignored; the others must
// all match as case-insensitive substrings.
type ItemFilter struct {
	Codice      string
	Descrizione string
	Locazione   string
}

// ItemChanges describes a movement applied to one item. The deltas are added
// to the stored counters and Fields are plain column overwrites.
type ItemChanges struct {
	CaricoDelta  int64
	ScaricoDelta int64
	Fields       map[string]interface{}
}

// InventoryRepository handles inventory data access
type InventoryRepository struct {
	db *gorm.DB
}

// NewInventoryRepository creates a new InventoryRepository
func NewInventoryRepository(db *gorm.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

// List returns the items matching filter ordered by id
func (r *InventoryRepository) List(ctx context.Context, filter ItemFilter) ([]models.InventoryItem, error) {
	query := r.db.WithContext(ctx).Model(&models.InventoryItem{})
	for column, value := range map[string]string{
		"codice_articolo": filter.Codice,
		"descrizione":     filter.Descrizione,
		"locazione":       filter.Locazione,
	} {
		if value == "" {
			continue
		}
		query = query.Where("LOWER("+column+`) LIKE ? ESCAPE '\'`, containsPattern(value))
	}

	var items []models.InventoryItem
	if err := query.Order("id ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	return items, nil
}

// GetByID retrieves an item by ID
func (r *InventoryRepository) GetByID(ctx context.Context, id uint) (*models.InventoryItem, error) {
	var item models.InventoryItem
	result := r.db.WithContext(ctx).First(&item, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, result.Error
	}
	return &item, nil
}

// ExistsByCode checks whether an article code is already stored
func (r *InventoryRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.InventoryItem{}).
		Where("codice_articolo = ?", code).Count(&count).Error
	return count > 0, err
}

// Create inserts item unless another item already uses its article code.
// The check and the insert share one transaction; on postgres a transaction
// scoped advisory lock keyed by the code serializes concurrent creators.
func (r *InventoryRepository) Create(ctx context.Context, item *models.InventoryItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", item.CodiceArticolo).Error; err != nil {
				return err
			}
		}
		var count int64
		if err := tx.Model(&models.InventoryItem{}).
			Where("codice_articolo = ?", item.CodiceArticolo).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateCode
		}
		return tx.Create(item).Error
	})
}

// ApplyChanges adds the movement deltas and overwrites the given columns of
// one item inside a single transaction, then returns the stored row.
func (r *InventoryRepository) ApplyChanges(ctx context.Context, id uint, changes ItemChanges) (*models.InventoryItem, error) {
	var updated models.InventoryItem
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lock := tx
		if tx.Dialector.Name() == "postgres" {
			lock = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var current models.InventoryItem
		if err := lock.Select("id", "carico", "scarico").First(&current, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrItemNotFound
			}
			return err
		}
		if addOverflows(current.Carico, changes.CaricoDelta) || addOverflows(current.Scarico, changes.ScaricoDelta) {
			return ErrCounterOverflow
		}

		updates := map[string]interface{}{
			"carico":   gorm.Expr("carico + ?", changes.CaricoDelta),
			"scarico":  gorm.Expr("scarico + ?", changes.ScaricoDelta),
			"quantita": gorm.Expr("(carico + ?) - (scarico + ?)", changes.CaricoDelta, changes.ScaricoDelta),
		}
		for column, value := range changes.Fields {
			updates[column] = value
		}
		if err := tx.Model(&models.InventoryItem{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&updated, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// addOverflows reports whether a + delta leaves the int64 range
func addOverflows(a, delta int64) bool {
	if delta > 0 {
		return a > math.MaxInt64-delta
	}
	return a < math.MinInt64-delta
}

// Delete removes an item
func (r *InventoryRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.InventoryItem{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrItemNotFound
	}
	return nil
}

// ReplaceAll deletes every item and inserts items in one transaction.
// beforeCommit runs last inside the transaction; an error from it rolls
// everything back.
func (r *InventoryRepository) ReplaceAll(ctx context.Context, items []models.InventoryItem, beforeCommit func() error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.InventoryItem{}).Error; err != nil {
			return fmt.Errorf("clear inventory: %w", err)
		}
		if len(items) > 0 {
			if err := tx.CreateInBatches(items, 100).Error; err != nil {
				return fmt.Errorf("insert inventory: %w", err)
			}
		}
		if beforeCommit != nil {
			return beforeCommit()
		}
		return nil
	})
}
