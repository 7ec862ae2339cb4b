package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActivityMaterialLog is the hand-off table for approved request materials.
// Activity documents live in a separate service; on approval the engine
// appends rows here and the activity service folds them into its own
// phase.subPhase material list.
type ActivityMaterialLog struct {
	ID           int             `gorm:"primary_key" json:"id"`
	ActivityId   string          `gorm:"size:100;not null;index" json:"activity_id"`
	ActivityType ActivityType    `gorm:"size:50;not null" json:"activity_type"`
	Phase        string          `gorm:"size:100;not null" json:"phase"`
	SubPhase     string          `gorm:"size:100;not null" json:"sub_phase"`
	MaterialCode string          `gorm:"size:100;not null" json:"material_code"`
	MaterialName string          `gorm:"size:255" json:"material_name"`
	Qty          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	Unit         string          `gorm:"size:50" json:"unit"`
	Condition    Condition       `gorm:"size:20;not null;default:good" json:"condition"`
	RequestKey   string          `gorm:"size:255;index" json:"request_key"`
	CreatedBy    string          `gorm:"size:100" json:"created_by"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
