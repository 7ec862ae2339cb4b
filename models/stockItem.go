package models

import (
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mmtelinfra/sitestock_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DefaultLocation is the global stock bucket used when a contribution or
// intake does not name a store location.
const DefaultLocation = "CENTRAL-STORE"

// StockItem is the shared stock ledger record, one per material code.
//
// Bucket accounting:
//   - QtyExcellent..QtyPoor track AVAILABLE stock by condition, so
//     excellent+good+fair+poor == AvailableQty.
//   - QtyScrap tracks scrapped stock; scrap is counted in TotalQty but never
//     in AvailableQty.
//   - Allocated stock leaves the condition buckets until it is returned.
//
// Hence TotalQty == AvailableQty + AllocatedQty + QtyScrap at all times.
type StockItem struct {
	ID           int    `gorm:"primary_key" json:"id"`
	MaterialCode string `gorm:"size:100;uniqueIndex;not null" json:"material_code"`
	MaterialName string `gorm:"size:255" json:"material_name"`
	Category     string `gorm:"size:100" json:"category"`
	Unit         string `gorm:"size:50" json:"unit"`
	Location     string `gorm:"size:100;not null" json:"location"`
	LocationName string `gorm:"size:255" json:"location_name"`

	TotalQty     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_qty"`
	AvailableQty decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"available_qty"`
	AllocatedQty decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"allocated_qty"`

	QtyExcellent decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty_excellent"`
	QtyGood      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty_good"`
	QtyFair      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty_fair"`
	QtyPoor      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty_poor"`
	QtyScrap     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty_scrap"`

	ContributionEntries []ContributionEntry `gorm:"foreignKey:StockItemId" json:"contribution_entries,omitempty"`
	AllocationEntries   []AllocationEntry   `gorm:"foreignKey:StockItemId" json:"allocation_entries,omitempty"`

	CreatedBy string         `gorm:"size:100" json:"created_by"`
	UpdatedBy string         `gorm:"size:100" json:"updated_by"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// ContributionEntry records what one activity context has contributed to the
// ledger for one (condition, unit). The unique index is the reconciliation
// anchor: at most one row per (item, context, condition, unit).
type ContributionEntry struct {
	ID           int             `gorm:"primary_key" json:"id"`
	StockItemId  int             `gorm:"not null;uniqueIndex:idx_contribution_key" json:"stock_item_id"`
	ActivityId   string          `gorm:"size:100;not null;index;uniqueIndex:idx_contribution_key" json:"activity_id"`
	ActivityType ActivityType    `gorm:"size:50;not null;uniqueIndex:idx_contribution_key" json:"activity_type"`
	Phase        string          `gorm:"size:100;not null;uniqueIndex:idx_contribution_key" json:"phase"`
	SubPhase     string          `gorm:"size:100;not null;uniqueIndex:idx_contribution_key" json:"sub_phase"`
	Condition    Condition       `gorm:"size:20;not null;uniqueIndex:idx_contribution_key" json:"condition"`
	Unit         string          `gorm:"size:50;not null;uniqueIndex:idx_contribution_key" json:"unit"`
	Qty          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	RecordedBy   string          `gorm:"size:100" json:"recorded_by"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// AllocationEntry records stock handed to one activity, pending use or
// return. One live row per (item, activity); repeat allocations add to Qty.
type AllocationEntry struct {
	ID           int              `gorm:"primary_key" json:"id"`
	StockItemId  int              `gorm:"not null;index" json:"stock_item_id"`
	ActivityId   string           `gorm:"size:100;not null;index" json:"activity_id"`
	ActivityType ActivityType     `gorm:"size:50;not null" json:"activity_type"`
	Qty          decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"qty"`
	Status       AllocationStatus `gorm:"size:20;not null;default:allocated;index" json:"status"`

	ReturnedQty     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"returned_qty"`
	ReturnCondition *Condition      `gorm:"size:20" json:"return_condition,omitempty"`
	ReturnDate      *time.Time      `json:"return_date,omitempty"`

	AllocatedBy string    `gorm:"size:100" json:"allocated_by"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsOpen reports whether the entry still holds stock for its activity.
func (e *AllocationEntry) IsOpen() bool {
	return e.Status == AllocationStatusAllocated || e.Status == AllocationStatusInUse
}

// ReturnEntry records one return event with the condition that return came
// back in. AllocationEntry.ReturnCondition only keeps the latest return, so
// these rows are the attributable history a totals rebuild replays.
type ReturnEntry struct {
	ID                int             `gorm:"primary_key" json:"id"`
	StockItemId       int             `gorm:"not null;index" json:"stock_item_id"`
	AllocationEntryId int             `gorm:"not null;index" json:"allocation_entry_id"`
	ActivityId        string          `gorm:"size:100;not null;index" json:"activity_id"`
	ActivityType      ActivityType    `gorm:"size:50;not null" json:"activity_type"`
	Qty               decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	Condition         Condition       `gorm:"size:20;not null" json:"condition"`
	ReturnedBy        string          `gorm:"size:100" json:"returned_by"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// NewStockDefaults seeds a stock item created on first contribution or first
// procurement intake. Empty fields never overwrite existing values.
type NewStockDefaults struct {
	MaterialName string
	Category     string
	Unit         string
	Location     string
	LocationName string
}

// StockTotals is the totals block reported back per batch item.
type StockTotals struct {
	TotalQty     decimal.Decimal `json:"total_qty"`
	AvailableQty decimal.Decimal `json:"available_qty"`
	AllocatedQty decimal.Decimal `json:"allocated_qty"`
	QtyExcellent decimal.Decimal `json:"qty_excellent"`
	QtyGood      decimal.Decimal `json:"qty_good"`
	QtyFair      decimal.Decimal `json:"qty_fair"`
	QtyPoor      decimal.Decimal `json:"qty_poor"`
	QtyScrap     decimal.Decimal `json:"qty_scrap"`
}

func (s *StockItem) Totals() StockTotals {
	return StockTotals{
		TotalQty:     s.TotalQty,
		AvailableQty: s.AvailableQty,
		AllocatedQty: s.AllocatedQty,
		QtyExcellent: s.QtyExcellent,
		QtyGood:      s.QtyGood,
		QtyFair:      s.QtyFair,
		QtyPoor:      s.QtyPoor,
		QtyScrap:     s.QtyScrap,
	}
}

// EnsureBreakdownShape repairs the bucket fields without discarding values:
// negative buckets (bad imports, historical bugs) are clamped to zero.
func (s *StockItem) EnsureBreakdownShape() {
	s.QtyExcellent = utils.ClampQuantity(s.QtyExcellent, s.MaterialCode, "qty_excellent")
	s.QtyGood = utils.ClampQuantity(s.QtyGood, s.MaterialCode, "qty_good")
	s.QtyFair = utils.ClampQuantity(s.QtyFair, s.MaterialCode, "qty_fair")
	s.QtyPoor = utils.ClampQuantity(s.QtyPoor, s.MaterialCode, "qty_poor")
	s.QtyScrap = utils.ClampQuantity(s.QtyScrap, s.MaterialCode, "qty_scrap")
	if s.Location == "" {
		s.Location = DefaultLocation
	}
}

func (s *StockItem) ConditionQty(cond Condition) decimal.Decimal {
	switch cond {
	case ConditionExcellent:
		return s.QtyExcellent
	case ConditionGood:
		return s.QtyGood
	case ConditionFair:
		return s.QtyFair
	case ConditionPoor:
		return s.QtyPoor
	case ConditionScrap:
		return s.QtyScrap
	}
	return decimal.Zero
}

func (s *StockItem) setConditionQty(cond Condition, qty decimal.Decimal) {
	qty = utils.ClampQuantity(qty, s.MaterialCode, "qty_"+string(cond))
	switch cond {
	case ConditionExcellent:
		s.QtyExcellent = qty
	case ConditionGood:
		s.QtyGood = qty
	case ConditionFair:
		s.QtyFair = qty
	case ConditionPoor:
		s.QtyPoor = qty
	case ConditionScrap:
		s.QtyScrap = qty
	}
}

// AddConditionQty applies a signed delta to one bucket, clamping at zero.
func (s *StockItem) AddConditionQty(cond Condition, delta decimal.Decimal) {
	s.setConditionQty(cond, s.ConditionQty(cond).Add(delta))
}

// ApplyContributionDelta moves a signed contribution delta through totals and
// the relevant bucket. Scrap contributions never touch AvailableQty.
func (s *StockItem) ApplyContributionDelta(cond Condition, delta decimal.Decimal) {
	s.TotalQty = utils.ClampQuantity(s.TotalQty.Add(delta), s.MaterialCode, "total_qty")
	if cond != ConditionScrap {
		s.AvailableQty = utils.ClampQuantity(s.AvailableQty.Add(delta), s.MaterialCode, "available_qty")
	}
	s.AddConditionQty(cond, delta)
}

// TakeFromAvailable removes qty from the available buckets for an allocation,
// draining the requested condition first and then cascading best-first over
// the remaining non-scrap buckets.
func (s *StockItem) TakeFromAvailable(cond Condition, qty decimal.Decimal) {
	if cond == ConditionScrap {
		cond = ConditionGood
	}
	remaining := qty
	take := func(c Condition) {
		if remaining.IsZero() {
			return
		}
		have := s.ConditionQty(c)
		if have.IsZero() {
			return
		}
		taken := decimal.Min(have, remaining)
		s.setConditionQty(c, have.Sub(taken))
		remaining = remaining.Sub(taken)
	}
	take(cond)
	for _, c := range Conditions {
		if c == ConditionScrap || c == cond {
			continue
		}
		take(c)
	}
	s.AvailableQty = utils.ClampQuantity(s.AvailableQty.Sub(qty), s.MaterialCode, "available_qty")
}

// CheckConservation verifies the ledger invariants for this item.
func (s *StockItem) CheckConservation() error {
	onHand := s.AvailableQty.Add(s.AllocatedQty).Add(s.QtyScrap)
	if !s.TotalQty.Equal(onHand) {
		return errors.New("total_qty != available_qty + allocated_qty + qty_scrap")
	}
	bucketSum := s.QtyExcellent.Add(s.QtyGood).Add(s.QtyFair).Add(s.QtyPoor)
	if !bucketSum.Equal(s.AvailableQty) {
		return errors.New("condition buckets do not sum to available_qty")
	}
	return nil
}

// GetStockItemByCode fetches one ledger item by normalized material code.
func GetStockItemByCode(tx *gorm.DB, materialCode string) (*StockItem, error) {
	code := utils.NormalizeMaterialCode(materialCode)
	var item StockItem
	err := tx.Where("material_code = ?", code).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NewNotFoundError("stock item", code)
	}
	if err != nil {
		return nil, err
	}
	item.EnsureBreakdownShape()
	return &item, nil
}

// FindOrCreateStockItem returns the ledger item for a material code, creating
// it with the given defaults on first sight. Existing name/category/location
// are never overwritten with empty values; missing ones are backfilled.
func FindOrCreateStockItem(tx *gorm.DB, materialCode string, defaults NewStockDefaults, actor string) (*StockItem, bool, error) {
	code := utils.NormalizeMaterialCode(materialCode)
	if code == "" {
		return nil, false, utils.NewValidationError("materialCode", "must not be empty")
	}

	item, err := GetStockItemByCode(tx, code)
	if err == nil {
		changed := false
		if item.MaterialName == "" && defaults.MaterialName != "" {
			item.MaterialName = defaults.MaterialName
			changed = true
		}
		if item.Category == "" && defaults.Category != "" {
			item.Category = defaults.Category
			changed = true
		}
		if item.Unit == "" && defaults.Unit != "" {
			item.Unit = utils.NormalizeUnit(defaults.Unit)
			changed = true
		}
		if item.Location == DefaultLocation && defaults.Location != "" {
			item.Location = defaults.Location
			item.LocationName = defaults.LocationName
			changed = true
		}
		if changed {
			item.UpdatedBy = actor
			if err := tx.Save(item).Error; err != nil {
				return nil, false, err
			}
		}
		return item, false, nil
	}
	if !utils.IsNotFound(err) {
		return nil, false, err
	}

	location := defaults.Location
	if location == "" {
		location = DefaultLocation
	}
	item = &StockItem{
		MaterialCode: code,
		MaterialName: defaults.MaterialName,
		Category:     defaults.Category,
		Unit:         utils.NormalizeUnit(defaults.Unit),
		Location:     location,
		LocationName: defaults.LocationName,
		CreatedBy:    actor,
		UpdatedBy:    actor,
	}
	if err := tx.Create(item).Error; err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			// Either a lost creation race, or a soft-deleted row still holds
			// the material code's slot in the unique index.
			existing, ferr := GetStockItemByCode(tx, code)
			if ferr == nil {
				return existing, false, nil
			}
			revived, rerr := reviveStockItem(tx, code, actor)
			if rerr != nil {
				return nil, false, &utils.ConflictError{Resource: "stock item", Key: code}
			}
			return revived, false, nil
		}
		return nil, false, err
	}
	return item, true, nil
}

// reviveStockItem clears the soft-delete marker on a material code so the
// ledger row can be reused. A soft-deleted item is always empty (see
// SoftDeleteStockItem), so reviving it never resurrects stale totals.
func reviveStockItem(tx *gorm.DB, code string, actor string) (*StockItem, error) {
	var item StockItem
	if err := tx.Unscoped().Where("material_code = ?", code).First(&item).Error; err != nil {
		return nil, err
	}
	if !item.DeletedAt.Valid {
		return nil, errors.New("stock item exists but is not soft-deleted")
	}
	if err := tx.Unscoped().Model(&item).Updates(map[string]any{
		"deleted_at": nil,
		"updated_by": actor,
	}).Error; err != nil {
		return nil, err
	}
	item.DeletedAt = gorm.DeletedAt{}
	item.UpdatedBy = actor
	item.EnsureBreakdownShape()
	return &item, nil
}

// HasActiveAllocation reports whether any activity still holds stock of this
// item. Soft deletion is refused while this is true.
func (s *StockItem) HasActiveAllocation(tx *gorm.DB) (bool, error) {
	var count int64
	err := tx.Model(&AllocationEntry{}).
		Where("stock_item_id = ? AND status IN ? AND qty > 0", s.ID, []AllocationStatus{AllocationStatusAllocated, AllocationStatusInUse}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SoftDeleteStockItem soft-deletes an empty ledger item. An item still
// holding stock, an active allocation or live contribution entries cannot be
// deleted: the soft-deleted row keeps occupying the material code's unique
// index slot, so anything left behind would orphan history and block every
// later write for that code.
func SoftDeleteStockItem(tx *gorm.DB, materialCode string, actor string) error {
	item, err := GetStockItemByCode(tx, materialCode)
	if err != nil {
		return err
	}
	active, err := item.HasActiveAllocation(tx)
	if err != nil {
		return err
	}
	if active {
		return &utils.StateError{Resource: "stock item " + item.MaterialCode, Current: "allocated", Wanted: "free of active allocations"}
	}
	if !item.TotalQty.IsZero() {
		return &utils.StateError{Resource: "stock item " + item.MaterialCode, Current: "stocked", Wanted: "empty"}
	}
	var contribCount int64
	if err := tx.Model(&ContributionEntry{}).Where("stock_item_id = ?", item.ID).Count(&contribCount).Error; err != nil {
		return err
	}
	if contribCount > 0 {
		return &utils.StateError{Resource: "stock item " + item.MaterialCode, Current: "contributed to", Wanted: "free of contribution entries"}
	}
	item.UpdatedBy = actor
	if err := tx.Save(item).Error; err != nil {
		return err
	}
	return tx.Delete(item).Error
}
