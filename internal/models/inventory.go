package models

import (
	"time"
)

// InventoryItem is one article in stock. Quantita is always Carico - Scarico;
// Carico and Scarico only ever grow.
type InventoryItem struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CodiceArticolo string    `gorm:"size:50;not null;index" json:"codice_articolo"`
	Descrizione    string    `gorm:"size:200" json:"descrizione"`
	UnitaMisura    string    `gorm:"size:20" json:"unita_misura"`
	Carico         int64     `gorm:"not null;default:0" json:"carico"`
	Scarico        int64     `gorm:"not null;default:0" json:"scarico"`
	Quantita       int64     `gorm:"not null;default:0" json:"quantita"`
	Locazione      string    `gorm:"size:100" json:"locazione"`
	Foto           *string   `gorm:"size:200" json:"foto"`
	DataIngresso   string    `gorm:"size:50" json:"data_ingresso"`
	CreatedBy      string    `gorm:"size:80" json:"created_by"`
	ModifiedBy     string    `gorm:"size:80" json:"modified_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName specifies the table name for InventoryItem model
func (InventoryItem) TableName() string {
	return "inventory"
}

// HasFoto reports whether the item references an attachment.
func (i *InventoryItem) HasFoto() bool {
	return i.Foto != nil && *i.Foto != ""
}

// Attachment describes the downloadable file of an item without exposing its path.
type Attachment struct {
	Token             string `json:"token"`
	Kind              string `json:"kind"`
	Extension         string `json:"extension"`
	SuggestedFilename string `json:"suggested_filename"`
}

// InventoryItemResponse is the response structure for an inventory item
type InventoryItemResponse struct {
	ID             uint        `json:"id"`
	CodiceArticolo string      `json:"codice_articolo"`
	Descrizione    string      `json:"descrizione"`
	UnitaMisura    string      `json:"unita_misura"`
	Quantita       int64       `json:"quantita"`
	Carico         int64       `json:"carico"`
	Scarico        int64       `json:"scarico"`
	Locazione      string      `json:"locazione"`
	DataIngresso   string      `json:"data_ingresso"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	CreatedBy      *string     `json:"created_by,omitempty"`
	ModifiedBy     *string     `json:"modified_by,omitempty"`
}
