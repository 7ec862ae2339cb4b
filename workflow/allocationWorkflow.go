package workflow

import (
	"context"
	"errors"
	"strings"

	"github.com/mmtelinfra/sitestock_backend/config"
	"github.com/mmtelinfra/sitestock_backend/models"
	"github.com/mmtelinfra/sitestock_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AllocationMaterial is one line of a direct allocation batch.
type AllocationMaterial struct {
	MaterialCode string          `json:"material_code"`
	Qty          decimal.Decimal `json:"qty"`
	Condition    string          `json:"condition"`
	Unit         string          `json:"unit"`
}

// ProcessAllocationWorkflow moves stock from available to allocated for one
// activity. Each material is posted independently under its advisory lock;
// failures are collected per item and do not roll back earlier successes.
// Request approval, which needs all-or-nothing semantics, goes through
// allocateAtomicBatch instead.
func ProcessAllocationWorkflow(ctx context.Context, logger *logrus.Logger, activityId string, activityType models.ActivityType, materials []AllocationMaterial) (*BatchResult, error) {
	if strings.TrimSpace(activityId) == "" {
		return nil, utils.NewValidationError("activityId", "must not be empty")
	}
	if activityType == "" {
		return nil, utils.NewValidationError("activityType", "must not be empty")
	}

	db := config.GetDB()
	actor := utils.ActorFromContext(ctx)
	result := &BatchResult{}

	for _, m := range materials {
		code := utils.NormalizeMaterialCode(m.MaterialCode)
		item, err := allocateOneMaterial(ctx, db, activityId, activityType, m, actor)
		if err != nil {
			config.LogError(logger, "allocationWorkflow.go", "ProcessAllocationWorkflow", "allocateOneMaterial", code, err)
			result.addError(code, err)
			continue
		}
		result.addResult(code, true, item.Totals())
		_ = config.DeleteRedisKeys("stock:" + code)
	}
	return result, nil
}

func allocateOneMaterial(ctx context.Context, db *gorm.DB, activityId string, activityType models.ActivityType, m AllocationMaterial, actor string) (*models.StockItem, error) {
	code := utils.NormalizeMaterialCode(m.MaterialCode)
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	defer tx.Rollback()

	if err := AcquireMaterialPostingLock(tx, code); err != nil {
		return nil, err
	}
	defer ReleaseMaterialPostingLock(tx, code)

	item, err := allocateLocked(tx, activityId, activityType, m, actor)
	if err != nil {
		return nil, err
	}

	ReleaseMaterialPostingLock(tx, code)
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return item, nil
}

// allocateLocked applies one allocation inside an open transaction whose
// connection already holds the material's advisory lock. Shared between the
// partial-failure batch and the all-or-nothing approval path.
func allocateLocked(tx *gorm.DB, activityId string, activityType models.ActivityType, m AllocationMaterial, actor string) (*models.StockItem, error) {
	code := utils.NormalizeMaterialCode(m.MaterialCode)
	if code == "" {
		return nil, utils.NewValidationError("materialCode", "must not be empty")
	}
	if !m.Qty.IsPositive() {
		return nil, utils.NewValidationError("qty", "must be positive")
	}

	item, err := models.GetStockItemByCode(tx, code)
	if err != nil {
		return nil, err
	}
	if item.AvailableQty.LessThan(m.Qty) {
		return nil, &utils.InsufficientStockError{
			MaterialCode: code,
			Available:    item.AvailableQty,
			Requested:    m.Qty,
		}
	}

	item.TakeFromAvailable(models.NormalizeCondition(m.Condition), m.Qty)
	item.AllocatedQty = item.AllocatedQty.Add(m.Qty)
	item.UpdatedBy = actor
	if err := tx.Save(item).Error; err != nil {
		return nil, err
	}

	// One live allocation row per activity: a repeat allocation tops up the
	// open entry instead of creating a duplicate.
	var entry models.AllocationEntry
	err = tx.Where("stock_item_id = ? AND activity_id = ? AND activity_type = ? AND status IN ?",
		item.ID, activityId, activityType, []models.AllocationStatus{models.AllocationStatusAllocated, models.AllocationStatusInUse}).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		entry = models.AllocationEntry{
			StockItemId:  item.ID,
			ActivityId:   activityId,
			ActivityType: activityType,
			Qty:          m.Qty,
			Status:       models.AllocationStatusAllocated,
			AllocatedBy:  actor,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return nil, err
		}
		return item, nil
	}
	if err != nil {
		return nil, err
	}
	entry.Qty = entry.Qty.Add(m.Qty)
	if err := tx.Save(&entry).Error; err != nil {
		return nil, err
	}
	return item, nil
}
