package workflow

import (
	"context"
	"fmt"
	"sort"

	"github.com/mmtelinfra/sitestock_backend/config"
	"github.com/mmtelinfra/sitestock_backend/models"
	"github.com/mmtelinfra/sitestock_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ProcessReconcileWorkflow brings the ledger's contribution for one activity
// context in line with the activity's current material snapshot.
//
// The contribution entries keyed by (context, condition, unit) are the
// reconciliation anchor: the ledger applies only the delta between the
// desired snapshot and what the context has already contributed, so repeated
// calls with the same snapshot are no-ops and a reduced snapshot shrinks the
// ledger instead of accumulating.
//
// Each material is posted in its own transaction under the per-material
// advisory lock; per-item failures are collected and do not roll back
// materials already posted.
func ProcessReconcileWorkflow(ctx context.Context, logger *logrus.Logger, actCtx ActivityContext, snapshot []SnapshotMaterial, location string) (*BatchResult, error) {
	if err := actCtx.Validate(); err != nil {
		return nil, err
	}

	ns, itemErrs := normalizeSnapshot(snapshot, location)
	result := &BatchResult{Errors: itemErrs}

	db := config.GetDB()
	actor := utils.ActorFromContext(ctx)

	// Every material the context has previously contributed to takes part,
	// even when the new snapshot no longer mentions it.
	existingCodes, err := contributedMaterialCodes(db.WithContext(ctx), actCtx)
	if err != nil {
		config.LogError(logger, "reconcileWorkflow.go", "ProcessReconcileWorkflow", "contributedMaterialCodes", actCtx, err)
		return nil, err
	}

	codes := utils.UniqueSlice(append(existingCodes, ns.codes...))
	sort.Strings(codes)

	for _, code := range codes {
		if err := reconcileOneMaterial(ctx, db, actCtx, ns, code, actor, result); err != nil {
			config.LogError(logger, "reconcileWorkflow.go", "ProcessReconcileWorkflow", "reconcileOneMaterial", code, err)
			result.addError(code, err)
		}
	}
	return result, nil
}

func contributedMaterialCodes(db *gorm.DB, actCtx ActivityContext) ([]string, error) {
	var codes []string
	err := db.Model(&models.ContributionEntry{}).
		Joins("JOIN stock_items ON stock_items.id = contribution_entries.stock_item_id").
		Where("contribution_entries.activity_id = ? AND contribution_entries.activity_type = ? AND contribution_entries.phase = ? AND contribution_entries.sub_phase = ?",
			actCtx.ActivityId, actCtx.ActivityType, actCtx.Phase, actCtx.SubPhase).
		Distinct().
		Pluck("stock_items.material_code", &codes).Error
	return codes, err
}

func reconcileOneMaterial(ctx context.Context, db *gorm.DB, actCtx ActivityContext, ns *normalizedSnapshot, code string, actor string, result *BatchResult) error {
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer tx.Rollback()

	if err := AcquireMaterialPostingLock(tx, code); err != nil {
		return err
	}
	// GET_LOCK outlives the transaction on the pooled connection, so release
	// explicitly before commit; the defer covers the error paths.
	defer ReleaseMaterialPostingLock(tx, code)

	item, err := models.GetStockItemByCode(tx, code)
	if utils.IsNotFound(err) {
		defaults, hasDesired := ns.defaults[code]
		if !hasDesired {
			// A previously contributed item is gone from the ledger but its
			// contribution entries remain; surface it as a per-item error
			// rather than guessing how to recreate the item.
			return fmt.Errorf("stock item %q disappeared during reconciliation", code)
		}
		item, _, err = models.FindOrCreateStockItem(tx, code, defaults, actor)
		if err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	var entries []models.ContributionEntry
	if err := tx.
		Where("stock_item_id = ? AND activity_id = ? AND activity_type = ? AND phase = ? AND sub_phase = ?",
			item.ID, actCtx.ActivityId, actCtx.ActivityType, actCtx.Phase, actCtx.SubPhase).
		Find(&entries).Error; err != nil {
		return err
	}

	changed := false
	handled := make(map[snapshotKey]bool)

	// Pass 1: correct or drop what the context already contributed.
	for i := range entries {
		entry := &entries[i]
		key := snapshotKey{Code: code, Condition: entry.Condition, Unit: entry.Unit}
		desired := ns.desired[key]
		handled[key] = true

		delta := desired.Sub(entry.Qty)
		if delta.IsZero() {
			continue
		}
		item.ApplyContributionDelta(entry.Condition, delta)
		changed = true
		if desired.IsZero() {
			if err := tx.Delete(entry).Error; err != nil {
				return err
			}
			continue
		}
		entry.Qty = desired
		entry.RecordedBy = actor
		if err := tx.Save(entry).Error; err != nil {
			return err
		}
	}

	// Pass 2: add what the context contributes for the first time.
	for key, desired := range ns.desired {
		if key.Code != code || handled[key] || desired.IsZero() {
			continue
		}
		item.ApplyContributionDelta(key.Condition, desired)
		entry := models.ContributionEntry{
			StockItemId:  item.ID,
			ActivityId:   actCtx.ActivityId,
			ActivityType: actCtx.ActivityType,
			Phase:        actCtx.Phase,
			SubPhase:     actCtx.SubPhase,
			Condition:    key.Condition,
			Unit:         key.Unit,
			Qty:          desired,
			RecordedBy:   actor,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		changed = true
	}

	if changed {
		item.UpdatedBy = actor
		if err := tx.Save(item).Error; err != nil {
			return err
		}
	}
	ReleaseMaterialPostingLock(tx, code)
	if err := tx.Commit().Error; err != nil {
		return err
	}
	if changed {
		_ = config.DeleteRedisKeys("stock:" + code)
	}
	result.addResult(code, changed, item.Totals())
	return nil
}
