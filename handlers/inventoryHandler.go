package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmtelinfra/sitestock_backend/config"
	"github.com/mmtelinfra/sitestock_backend/models"
	"github.com/mmtelinfra/sitestock_backend/utils"
	"github.com/mmtelinfra/sitestock_backend/workflow"
)

type reconcileRequest struct {
	ActivityId   string                      `json:"activity_id" binding:"required"`
	ActivityType models.ActivityType         `json:"activity_type" binding:"required,activitytype"`
	Phase        string                      `json:"phase" binding:"required"`
	SubPhase     string                      `json:"sub_phase"`
	Location     string                      `json:"location"`
	Materials    []workflow.SnapshotMaterial `json:"materials"`
}

// Reconcile applies an activity's material snapshot to the shared ledger for
// one contributing context.
func Reconcile(c *gin.Context) {
	var input reconcileRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, err.Error())
		return
	}
	actCtx := workflow.ActivityContext{
		ActivityId:   input.ActivityId,
		ActivityType: input.ActivityType,
		Phase:        input.Phase,
		SubPhase:     input.SubPhase,
	}
	result, err := workflow.ProcessReconcileWorkflow(c.Request.Context(), config.GetLogger(), actCtx, input.Materials, input.Location)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, result)
}

type allocateRequest struct {
	ActivityId   string                        `json:"activity_id" binding:"required"`
	ActivityType models.ActivityType           `json:"activity_type" binding:"required,activitytype"`
	Materials    []workflow.AllocationMaterial `json:"materials" binding:"required"`
}

// Allocate runs the direct allocator for one activity; per-item failures are
// reported inline, successes stay committed.
func Allocate(c *gin.Context) {
	var input allocateRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, err.Error())
		return
	}
	result, err := workflow.ProcessAllocationWorkflow(c.Request.Context(), config.GetLogger(), input.ActivityId, input.ActivityType, input.Materials)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, result)
}

type returnRequest struct {
	ActivityId   string                    `json:"activity_id" binding:"required"`
	ActivityType models.ActivityType       `json:"activity_type" binding:"required,activitytype"`
	Returns      []workflow.ReturnMaterial `json:"returns" binding:"required"`
}

// Return hands allocated materials back to the ledger.
func Return(c *gin.Context) {
	var input returnRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, err.Error())
		return
	}
	result, err := workflow.ProcessReturnWorkflow(c.Request.Context(), config.GetLogger(), input.ActivityId, input.ActivityType, input.Returns)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, result)
}

type activityEditRequest struct {
	ActivityId   string                      `json:"activity_id" binding:"required"`
	ActivityType models.ActivityType         `json:"activity_type" binding:"required,activitytype"`
	Phase        string                      `json:"phase" binding:"required"`
	SubPhase     string                      `json:"sub_phase"`
	Location     string                      `json:"location"`
	Materials    []workflow.SnapshotMaterial `json:"materials"`
}

// ActivityEdit routes one activity edit through the routing table, so the
// activity service does not need to know which contexts are gated.
func ActivityEdit(c *gin.Context) {
	var input activityEditRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, err.Error())
		return
	}
	actCtx := workflow.ActivityContext{
		ActivityId:   input.ActivityId,
		ActivityType: input.ActivityType,
		Phase:        input.Phase,
		SubPhase:     input.SubPhase,
	}
	result, err := workflow.ProcessActivityEdit(c.Request.Context(), config.GetLogger(), actCtx, input.Materials, input.Location)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, result)
}

// ListStock returns the ledger, optionally filtered by category or search
// term on code/name.
func ListStock(c *gin.Context) {
	db := config.GetDB().WithContext(c.Request.Context())
	q := db.Model(&models.StockItem{}).Order("material_code")
	if category := c.Query("category"); category != "" {
		q = q.Where("category = ?", category)
	}
	if search := c.Query("search"); search != "" {
		like := "%" + search + "%"
		q = q.Where("material_code LIKE ? OR material_name LIKE ?", like, like).Limit(config.SearchLimit)
	}
	if v := c.Query("min_available"); v != "" {
		minQty, err := utils.ParseDecimal(v)
		if err != nil {
			BadRequest(c, "invalid min_available: "+err.Error())
			return
		}
		q = q.Where("available_qty >= ?", minQty)
	}
	var items []models.StockItem
	if err := q.Find(&items).Error; err != nil {
		RespondError(c, err)
		return
	}
	Success(c, items)
}

// GetStock returns one ledger item with its histories, redis-cached until
// the next mutation of the material.
func GetStock(c *gin.Context) {
	code := utils.NormalizeMaterialCode(c.Param("code"))
	cacheKey := "stock:" + code

	var cached models.StockItem
	if ok, err := config.GetRedisObject(cacheKey, &cached); err == nil && ok {
		Success(c, cached)
		return
	}

	db := config.GetDB().WithContext(c.Request.Context())
	var item models.StockItem
	err := db.Preload("ContributionEntries").Preload("AllocationEntries").
		Where("material_code = ?", code).First(&item).Error
	if err != nil {
		RespondError(c, utils.NewNotFoundError("stock item", code))
		return
	}
	_ = config.SetRedisObject(cacheKey, item, 5*time.Minute)
	Success(c, item)
}

// GetReturnable reports how much of a material the given activity still
// holds and can return.
func GetReturnable(c *gin.Context) {
	activityId := c.Query("activity_id")
	activityType := models.ActivityType(c.Query("activity_type"))
	if activityId == "" || activityType == "" {
		BadRequest(c, "activity_id and activity_type are required")
		return
	}
	code := utils.NormalizeMaterialCode(c.Param("code"))
	qty, err := workflow.ReturnableQty(c.Request.Context(), activityId, activityType, code)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"material_code": code, "returnable_qty": qty})
}

// DeleteStock soft-deletes a ledger item with no active allocation.
func DeleteStock(c *gin.Context) {
	code := c.Param("code")
	db := config.GetDB().WithContext(c.Request.Context())
	actor := utils.ActorFromContext(c.Request.Context())

	tx := db.Begin()
	if tx.Error != nil {
		RespondError(c, tx.Error)
		return
	}
	defer tx.Rollback()
	if err := models.SoftDeleteStockItem(tx, code, actor); err != nil {
		RespondError(c, err)
		return
	}
	if err := tx.Commit().Error; err != nil {
		RespondError(c, err)
		return
	}
	_ = config.DeleteRedisKeys("stock:" + utils.NormalizeMaterialCode(code))
	Success(c, gin.H{"material_code": utils.NormalizeMaterialCode(code), "deleted": true})
}
