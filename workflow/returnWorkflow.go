package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mmtelinfra/sitestock_backend/config"
	"github.com/mmtelinfra/sitestock_backend/models"
	"github.com/mmtelinfra/sitestock_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReturnMaterial is one line of a return batch. Condition is the condition
// the material came back in, which routes it to available stock or scrap.
type ReturnMaterial struct {
	MaterialCode string          `json:"material_code"`
	Qty          decimal.Decimal `json:"qty"`
	Condition    string          `json:"condition"`
}

// ProcessReturnWorkflow reverses allocations partially or fully. Scrap
// returns stay in the ledger total but never become available again.
func ProcessReturnWorkflow(ctx context.Context, logger *logrus.Logger, activityId string, activityType models.ActivityType, returns []ReturnMaterial) (*BatchResult, error) {
	if strings.TrimSpace(activityId) == "" {
		return nil, utils.NewValidationError("activityId", "must not be empty")
	}
	if activityType == "" {
		return nil, utils.NewValidationError("activityType", "must not be empty")
	}

	db := config.GetDB()
	actor := utils.ActorFromContext(ctx)
	result := &BatchResult{}

	for _, r := range returns {
		code := utils.NormalizeMaterialCode(r.MaterialCode)
		item, err := returnOneMaterial(ctx, db, activityId, activityType, r, actor)
		if err != nil {
			config.LogError(logger, "returnWorkflow.go", "ProcessReturnWorkflow", "returnOneMaterial", code, err)
			result.addError(code, err)
			continue
		}
		result.addResult(code, true, item.Totals())
		_ = config.DeleteRedisKeys("stock:" + code)
	}
	return result, nil
}

func returnOneMaterial(ctx context.Context, db *gorm.DB, activityId string, activityType models.ActivityType, r ReturnMaterial, actor string) (*models.StockItem, error) {
	code := utils.NormalizeMaterialCode(r.MaterialCode)
	if code == "" {
		return nil, utils.NewValidationError("materialCode", "must not be empty")
	}
	if !r.Qty.IsPositive() {
		return nil, utils.NewValidationError("qty", "must be positive")
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	defer tx.Rollback()

	if err := AcquireMaterialPostingLock(tx, code); err != nil {
		return nil, err
	}
	defer ReleaseMaterialPostingLock(tx, code)

	item, err := models.GetStockItemByCode(tx, code)
	if err != nil {
		return nil, err
	}

	var entry models.AllocationEntry
	err = tx.Where("stock_item_id = ? AND activity_id = ? AND activity_type = ? AND status IN ?",
		item.ID, activityId, activityType, []models.AllocationStatus{models.AllocationStatusAllocated, models.AllocationStatusInUse}).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NewNotFoundError("open allocation", code+" for activity "+activityId)
	}
	if err != nil {
		return nil, err
	}

	if r.Qty.GreaterThan(entry.Qty) {
		return nil, utils.NewValidationError("qty",
			"return quantity "+r.Qty.String()+" exceeds allocated "+entry.Qty.String())
	}

	cond := models.NormalizeCondition(r.Condition)
	now := time.Now()

	entry.Qty = entry.Qty.Sub(r.Qty)
	entry.ReturnedQty = entry.ReturnedQty.Add(r.Qty)
	entry.ReturnCondition = &cond
	entry.ReturnDate = &now
	if entry.Qty.IsZero() {
		entry.Status = models.AllocationStatusReturned
	}
	if err := tx.Save(&entry).Error; err != nil {
		return nil, err
	}

	// ReturnCondition above only keeps the latest return; the per-return row
	// is what makes mixed-condition returns attributable for rebuilds.
	returnEntry := models.ReturnEntry{
		StockItemId:       item.ID,
		AllocationEntryId: entry.ID,
		ActivityId:        activityId,
		ActivityType:      activityType,
		Qty:               r.Qty,
		Condition:         cond,
		ReturnedBy:        actor,
	}
	if err := tx.Create(&returnEntry).Error; err != nil {
		return nil, err
	}

	item.AllocatedQty = utils.ClampQuantity(item.AllocatedQty.Sub(r.Qty), code, "allocated_qty")
	if cond == models.ConditionScrap {
		// Scrap stays in the total but never re-enters available stock.
		item.AddConditionQty(models.ConditionScrap, r.Qty)
	} else {
		item.AvailableQty = item.AvailableQty.Add(r.Qty)
		item.AddConditionQty(cond, r.Qty)
	}
	item.UpdatedBy = actor
	if err := tx.Save(item).Error; err != nil {
		return nil, err
	}

	ReleaseMaterialPostingLock(tx, code)
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return item, nil
}

// ReturnableQty reports how much an activity can still hand back for a
// material.
func ReturnableQty(ctx context.Context, activityId string, activityType models.ActivityType, materialCode string) (decimal.Decimal, error) {
	db := config.GetDB().WithContext(ctx)
	item, err := models.GetStockItemByCode(db, materialCode)
	if err != nil {
		return decimal.Zero, err
	}
	return returnableQty(db, item.ID, activityId, activityType)
}

func returnableQty(tx *gorm.DB, stockItemId int, activityId string, activityType models.ActivityType) (decimal.Decimal, error) {
	var entries []models.AllocationEntry
	err := tx.Where("stock_item_id = ? AND activity_id = ? AND activity_type = ? AND status IN ?",
		stockItemId, activityId, activityType, []models.AllocationStatus{models.AllocationStatusAllocated, models.AllocationStatusInUse}).
		Find(&entries).Error
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Qty)
	}
	return total, nil
}
