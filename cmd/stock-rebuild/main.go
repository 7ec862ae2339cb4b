package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmtelinfra/sitestock_backend/config"
	"github.com/mmtelinfra/sitestock_backend/models"
	"github.com/mmtelinfra/sitestock_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// stock-rebuild recomputes every StockItem's totals and condition buckets
// from the contribution, procurement and allocation history tables. Use it
// after manual data surgery or when /inventory/verify reports violations.
//
// The rebuild is best-effort on bucket placement: allocation rows do not
// record which bucket they drained, so the replay drains good-first the same
// way live allocation does when the requested bucket is short.
func main() {
	materialCode := flag.String("material", "", "Optional: rebuild a single material code")
	dryRun := flag.Bool("dry-run", false, "Print diffs without writing")
	continueOnError := flag.Bool("continue-on-error", false, "Skip failing materials and continue")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	var items []models.StockItem
	query := db.Order("material_code")
	if strings.TrimSpace(*materialCode) != "" {
		query = query.Where("material_code = ?", utils.NormalizeMaterialCode(*materialCode))
	}
	if err := query.Find(&items).Error; err != nil {
		fmt.Fprintf(os.Stderr, "load stock items: %v\n", err)
		os.Exit(1)
	}
	if len(items) == 0 {
		fmt.Println("nothing to rebuild")
		return
	}

	changed, failed := 0, 0
	for i := range items {
		item := &items[i]
		rebuilt, err := rebuildOne(db, item)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", item.MaterialCode, err)
			if *continueOnError {
				continue
			}
			os.Exit(1)
		}
		if totalsEqual(item, rebuilt) {
			continue
		}
		changed++
		fmt.Printf("%s: total %s -> %s, available %s -> %s, allocated %s -> %s, scrap %s -> %s\n",
			item.MaterialCode,
			item.TotalQty, rebuilt.TotalQty,
			item.AvailableQty, rebuilt.AvailableQty,
			item.AllocatedQty, rebuilt.AllocatedQty,
			item.QtyScrap, rebuilt.QtyScrap)
		if *dryRun {
			continue
		}
		if err := db.Model(item).Updates(map[string]any{
			"total_qty":     rebuilt.TotalQty,
			"available_qty": rebuilt.AvailableQty,
			"allocated_qty": rebuilt.AllocatedQty,
			"qty_excellent": rebuilt.QtyExcellent,
			"qty_good":      rebuilt.QtyGood,
			"qty_fair":      rebuilt.QtyFair,
			"qty_poor":      rebuilt.QtyPoor,
			"qty_scrap":     rebuilt.QtyScrap,
			"updated_by":    "stock-rebuild",
		}).Error; err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: write: %v\n", item.MaterialCode, err)
			if !*continueOnError {
				os.Exit(1)
			}
		}
	}
	fmt.Printf("done: %d items, %d changed, %d failed\n", len(items), changed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

// rebuildOne loads the full history for one item and replays it into fresh
// totals. Items whose returns predate per-return recording are refused by
// the replay rather than rebuilt from a guess.
func rebuildOne(db *gorm.DB, item *models.StockItem) (*models.StockItem, error) {
	var contributions []models.ContributionEntry
	if err := db.Where("stock_item_id = ?", item.ID).Order("id").Find(&contributions).Error; err != nil {
		return nil, err
	}
	var procurements []models.ProcurementRecord
	if err := db.Where("stock_item_id = ?", item.ID).Order("id").Find(&procurements).Error; err != nil {
		return nil, err
	}
	var allocations []models.AllocationEntry
	if err := db.Where("stock_item_id = ?", item.ID).Order("id").Find(&allocations).Error; err != nil {
		return nil, err
	}
	var returns []models.ReturnEntry
	if err := db.Where("stock_item_id = ?", item.ID).Order("id").Find(&returns).Error; err != nil {
		return nil, err
	}
	return models.ReplayStockHistory(item.MaterialCode, item.Location, contributions, procurements, allocations, returns)
}

func totalsEqual(a, b *models.StockItem) bool {
	fields := [][2]decimal.Decimal{
		{a.TotalQty, b.TotalQty},
		{a.AvailableQty, b.AvailableQty},
		{a.AllocatedQty, b.AllocatedQty},
		{a.QtyExcellent, b.QtyExcellent},
		{a.QtyGood, b.QtyGood},
		{a.QtyFair, b.QtyFair},
		{a.QtyPoor, b.QtyPoor},
		{a.QtyScrap, b.QtyScrap},
	}
	for _, pair := range fields {
		if !pair[0].Equal(pair[1]) {
			return false
		}
	}
	return true
}
