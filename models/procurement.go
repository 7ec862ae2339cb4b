package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProcurementRecord tags the provenance of externally purchased ("missing")
// stock folded into the ledger. Intake is new stock, not a contribution: it
// belongs to no activity context and leaves no contribution entry.
type ProcurementRecord struct {
	ID           int               `gorm:"primary_key" json:"id"`
	StockItemId  int               `gorm:"not null;index" json:"stock_item_id"`
	MaterialCode string            `gorm:"size:100;not null;index" json:"material_code"`
	Qty          decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"qty"`
	Unit         string            `gorm:"size:50" json:"unit"`
	Condition    Condition         `gorm:"size:20;not null;default:good" json:"condition"`
	TakenFrom    ProcurementSource `gorm:"size:50;not null" json:"taken_from"`
	StoreName    string            `gorm:"size:255" json:"store_name"`

	Receipts []ProcurementReceipt `gorm:"foreignKey:ProcurementRecordId" json:"receipts"`

	RecordedBy string    `gorm:"size:100" json:"recorded_by"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// ProcurementReceipt is an opaque reference into the external attachment
// store (attachments themselves are out of this service's hands).
type ProcurementReceipt struct {
	ID                  int    `gorm:"primary_key" json:"id"`
	ProcurementRecordId int    `gorm:"not null;index" json:"procurement_record_id"`
	Reference           string `gorm:"size:512;not null" json:"reference"`
}
