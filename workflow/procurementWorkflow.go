package workflow

import (
	"context"
	"strings"

	"github.com/mmtelinfra/sitestock_backend/config"
	"github.com/mmtelinfra/sitestock_backend/models"
	"github.com/mmtelinfra/sitestock_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ProcurementMaterial is one externally purchased material being folded into
// the ledger.
type ProcurementMaterial struct {
	MaterialCode string          `json:"material_code"`
	MaterialName string          `json:"material_name"`
	Category     string          `json:"category"`
	Qty          decimal.Decimal `json:"qty"`
	Unit         string          `json:"unit"`
	Condition    string          `json:"condition"`
}

// ProcurementResult reports the ledger items touched by an intake.
type ProcurementResult struct {
	StockItemIds []int        `json:"stock_item_ids"`
	Results      []ItemResult `json:"results"`
	Errors       []ItemError  `json:"errors"`
}

// ProcessProcurementIntake records externally purchased ("missing") stock
// with provenance and folds it into the ledger as ordinary new stock. Intake
// belongs to no activity context, so it writes no contribution entry and is
// invisible to snapshot reconciliation.
func ProcessProcurementIntake(ctx context.Context, logger *logrus.Logger, materials []ProcurementMaterial, source models.ProcurementSource, storeName string, receipts []string) (*ProcurementResult, error) {
	if !source.IsValid() {
		return nil, utils.NewValidationError("takenFrom", "must be one of own-store, external-store, custom")
	}
	if source == models.ProcurementSourceCustom {
		if strings.TrimSpace(storeName) == "" {
			return nil, utils.NewValidationError("storeName", "required for custom source")
		}
		if len(receipts) == 0 {
			return nil, utils.NewValidationError("receipts", "at least one receipt reference required for custom source")
		}
	}
	if len(materials) == 0 {
		return nil, utils.NewValidationError("materials", "must not be empty")
	}

	db := config.GetDB()
	actor := utils.ActorFromContext(ctx)
	result := &ProcurementResult{}

	for _, m := range materials {
		code := utils.NormalizeMaterialCode(m.MaterialCode)
		item, err := intakeOneMaterial(ctx, db, m, source, storeName, receipts, actor)
		if err != nil {
			config.LogError(logger, "procurementWorkflow.go", "ProcessProcurementIntake", "intakeOneMaterial", code, err)
			result.Errors = append(result.Errors, ItemError{MaterialCode: code, Error: err.Error()})
			continue
		}
		result.StockItemIds = append(result.StockItemIds, item.ID)
		result.Results = append(result.Results, ItemResult{MaterialCode: item.MaterialCode, Updated: true, Totals: item.Totals()})
		_ = config.DeleteRedisKeys("stock:" + item.MaterialCode)
	}
	return result, nil
}

func intakeOneMaterial(ctx context.Context, db *gorm.DB, m ProcurementMaterial, source models.ProcurementSource, storeName string, receipts []string, actor string) (*models.StockItem, error) {
	code := utils.NormalizeMaterialCode(m.MaterialCode)
	if code == "" {
		return nil, utils.NewValidationError("materialCode", "must not be empty")
	}
	if !m.Qty.IsPositive() {
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

	item, _, err := models.FindOrCreateStockItem(tx, code, models.NewStockDefaults{
		MaterialName: m.MaterialName,
		Category:     m.Category,
		Unit:         m.Unit,
	}, actor)
	if err != nil {
		return nil, err
	}

	cond := models.NormalizeCondition(m.Condition)
	item.ApplyContributionDelta(cond, m.Qty)
	item.UpdatedBy = actor
	if err := tx.Save(item).Error; err != nil {
		return nil, err
	}

	record := models.ProcurementRecord{
		StockItemId:  item.ID,
		MaterialCode: code,
		Qty:          m.Qty,
		Unit:         utils.NormalizeUnit(m.Unit),
		Condition:    cond,
		TakenFrom:    source,
		StoreName:    strings.TrimSpace(storeName),
		RecordedBy:   actor,
	}
	for _, ref := range receipts {
		if strings.TrimSpace(ref) == "" {
			continue
		}
		record.Receipts = append(record.Receipts, models.ProcurementReceipt{Reference: strings.TrimSpace(ref)})
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, err
	}

	ReleaseMaterialPostingLock(tx, code)
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return item, nil
}
