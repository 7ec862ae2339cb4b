package models

import (
	"log"

	"github.com/mmtelinfra/sitestock_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&StockItem{}, &ContributionEntry{}, &AllocationEntry{}, &ReturnEntry{},
		&AllocationRequest{}, &AllocationRequestMaterial{},
		&ProcurementRecord{}, &ProcurementReceipt{},
		&ActivityMaterialLog{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
