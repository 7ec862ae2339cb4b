package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/mmtelinfra/sitestock_backend/config"
	"github.com/mmtelinfra/sitestock_backend/models"
	"github.com/mmtelinfra/sitestock_backend/workflow"
)

type procurementInput struct {
	Materials []workflow.ProcurementMaterial `json:"materials" binding:"required"`
	TakenFrom models.ProcurementSource       `json:"taken_from" binding:"required"`
	StoreName string                         `json:"store_name"`
	Receipts  []string                       `json:"receipts"`
}

// RecordMissing folds externally purchased stock into the ledger with
// provenance.
func RecordMissing(c *gin.Context) {
	var input procurementInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, err.Error())
		return
	}
	result, err := workflow.ProcessProcurementIntake(c.Request.Context(), config.GetLogger(), input.Materials, input.TakenFrom, input.StoreName, input.Receipts)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, result)
}
