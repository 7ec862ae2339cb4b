package workflow

import (
	"fmt"

	"github.com/mmtelinfra/sitestock_backend/utils"
	"gorm.io/gorm"
)

// AcquireMaterialPostingLock serializes mutating ledger operations per
// material code across instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that will do the posting transaction.
func AcquireMaterialPostingLock(tx *gorm.DB, materialCode string) error {
	lockName := fmt.Sprintf("material:%s", utils.NormalizeMaterialCode(materialCode))
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire posting lock for material_code=%s", materialCode)
	}
	return nil
}

func ReleaseMaterialPostingLock(tx *gorm.DB, materialCode string) {
	lockName := fmt.Sprintf("material:%s", utils.NormalizeMaterialCode(materialCode))
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
