package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmtelinfra/sitestock_backend/config"
	"github.com/mmtelinfra/sitestock_backend/models"
	"github.com/xuri/excelize/v2"
)

var stockExportColumns = []string{
	"Material Code", "Material Name", "Category", "Unit", "Location",
	"Total", "Available", "Allocated",
	"Excellent", "Good", "Fair", "Poor", "Scrap",
}

// ExportStock streams the current ledger as an xlsx workbook.
func ExportStock(c *gin.Context) {
	db := config.GetDB().WithContext(c.Request.Context())
	var items []models.StockItem
	if err := db.Order("material_code").Find(&items).Error; err != nil {
		RespondError(c, err)
		return
	}

	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Stock"
	index, err := f.NewSheet(sheet)
	if err != nil {
		RespondError(c, err)
		return
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	for col, title := range stockExportColumns {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheet, cell, title)
	}

	for row, item := range items {
		values := []any{
			item.MaterialCode, item.MaterialName, item.Category, item.Unit, item.Location,
			item.TotalQty.InexactFloat64(), item.AvailableQty.InexactFloat64(), item.AllocatedQty.InexactFloat64(),
			item.QtyExcellent.InexactFloat64(), item.QtyGood.InexactFloat64(), item.QtyFair.InexactFloat64(),
			item.QtyPoor.InexactFloat64(), item.QtyScrap.InexactFloat64(),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	filename := fmt.Sprintf("stock-%s.xlsx", time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		config.LogError(config.GetLogger(), "reportHandler.go", "ExportStock", "Write", filename, err)
	}
	c.Status(http.StatusOK)
}
