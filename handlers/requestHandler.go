package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmtelinfra/sitestock_backend/config"
	"github.com/mmtelinfra/sitestock_backend/models"
	"github.com/mmtelinfra/sitestock_backend/workflow"
)

type upsertRequestInput struct {
	ActivityId   string                      `json:"activity_id" binding:"required"`
	ActivityType models.ActivityType         `json:"activity_type" binding:"required,activitytype"`
	Phase        string                      `json:"phase" binding:"required"`
	SubPhase     string                      `json:"sub_phase"`
	Materials    []workflow.SnapshotMaterial `json:"materials"`
}

// UpsertRequest records or refreshes the pending allocation request for a
// gated context.
func UpsertRequest(c *gin.Context) {
	var input upsertRequestInput
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
	request, mode, err := workflow.UpsertAllocationRequest(c.Request.Context(), config.GetLogger(), actCtx, input.Materials)
	if err != nil {
		RespondError(c, err)
		return
	}
	if mode == workflow.RequestModeNoop {
		Success(c, gin.H{"mode": mode})
		return
	}
	Success(c, gin.H{
		"request_id":  request.RequestId,
		"request_key": request.RequestKey(),
		"mode":        mode,
	})
}

// ApproveRequest allocates the whole request snapshot all-or-nothing. A
// partial failure leaves the ledger untouched and the request pending.
func ApproveRequest(c *gin.Context) {
	request, result, err := workflow.ApproveAllocationRequest(c.Request.Context(), config.GetLogger(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	if result != nil && len(result.Errors) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"request_id":  request.RequestId,
			"request_key": request.RequestKey(),
			"status":      request.Status,
			"errors":      result.Errors,
		})
		return
	}
	Success(c, gin.H{"request": request, "batch": result})
}

type rejectRequestInput struct {
	Note string `json:"note"`
}

// RejectRequest resolves a pending request without touching the ledger.
func RejectRequest(c *gin.Context) {
	var input rejectRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, err.Error())
		return
	}
	request, err := workflow.RejectAllocationRequest(c.Request.Context(), config.GetLogger(), c.Param("id"), input.Note)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, request)
}

// CancelRequest withdraws a pending request; the explicit form of "this
// gated phase no longer needs materials".
func CancelRequest(c *gin.Context) {
	request, err := workflow.CancelAllocationRequest(c.Request.Context(), config.GetLogger(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, request)
}

// ListRequests filters requests for the review surface.
func ListRequests(c *gin.Context) {
	db := config.GetDB().WithContext(c.Request.Context())
	requests, err := models.ListAllocationRequests(db, models.RequestStatus(c.Query("status")), c.Query("activity_id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(requests))
	for _, r := range requests {
		out = append(out, gin.H{
			"request_id":   r.RequestId,
			"request_key":  r.RequestKey(),
			"status":       r.Status,
			"activity_id":  r.ActivityId,
			"materials":    r.Materials,
			"requested_by": r.RequestedBy,
			"requested_at": r.RequestedAt,
		})
	}
	Success(c, out)
}
