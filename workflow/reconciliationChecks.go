package workflow

import (
	"context"
	"strconv"

	"github.com/mmtelinfra/sitestock_backend/config"
	"github.com/mmtelinfra/sitestock_backend/models"
	"github.com/shopspring/decimal"
)

// LedgerViolation describes one broken invariant found by verification.
type LedgerViolation struct {
	MaterialCode string `json:"material_code"`
	Problem      string `json:"problem"`
}

// VerifyLedgerConsistency recomputes the conservation invariants over every
// stock item: totals versus buckets, and the allocated quantity versus the
// sum of open allocation entries. A clean run returns an empty slice.
func VerifyLedgerConsistency(ctx context.Context) ([]LedgerViolation, error) {
	db := config.GetDB().WithContext(ctx)

	var items []models.StockItem
	if err := db.Find(&items).Error; err != nil {
		return nil, err
	}

	violations := make([]LedgerViolation, 0)
	for i := range items {
		item := &items[i]
		if err := item.CheckConservation(); err != nil {
			violations = append(violations, LedgerViolation{MaterialCode: item.MaterialCode, Problem: err.Error()})
		}

		var entries []models.AllocationEntry
		if err := db.Where("stock_item_id = ? AND status IN ?", item.ID,
			[]models.AllocationStatus{models.AllocationStatusAllocated, models.AllocationStatusInUse}).
			Find(&entries).Error; err != nil {
			return nil, err
		}
		open := decimal.Zero
		for _, e := range entries {
			open = open.Add(e.Qty)
		}
		if !open.Equal(item.AllocatedQty) {
			violations = append(violations, LedgerViolation{
				MaterialCode: item.MaterialCode,
				Problem:      "allocated_qty " + item.AllocatedQty.String() + " != open allocation entries " + open.String(),
			})
		}

		var contributions []models.ContributionEntry
		if err := db.Where("stock_item_id = ?", item.ID).Find(&contributions).Error; err != nil {
			return nil, err
		}
		for _, c := range contributions {
			if c.Qty.IsNegative() {
				violations = append(violations, LedgerViolation{
					MaterialCode: item.MaterialCode,
					Problem:      "negative contribution entry id=" + strconv.Itoa(c.ID),
				})
			}
		}
	}
	return violations, nil
}
