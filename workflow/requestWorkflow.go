package workflow

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mmtelinfra/sitestock_backend/config"
	"github.com/mmtelinfra/sitestock_backend/models"
	"github.com/mmtelinfra/sitestock_backend/utils"
	"github.com/sirupsen/logrus"
)

// Upsert outcomes reported back to the caller.
const (
	RequestModeCreated = "created"
	RequestModeUpdated = "updated"
	RequestModeNoop    = "noop"
)

// UpsertAllocationRequest records or refreshes the pending request for one
// gated context. A pending request is overwritten in place; a resolved one is
// immutable, so the context gets a new generation under the same base key.
//
// An empty merged snapshot is a deliberate no-op: clearing materials does not
// cancel a pending request, CancelAllocationRequest does.
func UpsertAllocationRequest(ctx context.Context, logger *logrus.Logger, actCtx ActivityContext, materials []SnapshotMaterial) (*models.AllocationRequest, string, error) {
	if err := actCtx.Validate(); err != nil {
		return nil, "", err
	}

	merged, itemErrs := MergeRequestMaterials(materials)
	if len(itemErrs) > 0 {
		return nil, "", utils.NewValidationError("materials", itemErrs[0].Error)
	}
	if len(merged) == 0 {
		return nil, RequestModeNoop, nil
	}

	db := config.GetDB()
	actor := utils.ActorFromContext(ctx)
	baseKey := actCtx.BaseKey()

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, "", tx.Error
	}
	defer tx.Rollback()

	pending, err := models.FindPendingRequestByBaseKey(tx, baseKey)
	if err == nil {
		// Editing the gated context while pending rewrites the snapshot in
		// place, no new generation.
		if err := tx.Where("allocation_request_id = ?", pending.ID).
			Delete(&models.AllocationRequestMaterial{}).Error; err != nil {
			return nil, "", err
		}
		for i := range merged {
			merged[i].AllocationRequestId = pending.ID
		}
		if err := tx.Create(&merged).Error; err != nil {
			return nil, "", err
		}
		pending.Materials = nil
		pending.RequestedBy = actor
		pending.RequestedAt = time.Now()
		if err := tx.Omit("Materials").Save(pending).Error; err != nil {
			return nil, "", err
		}
		if err := tx.Commit().Error; err != nil {
			return nil, "", err
		}
		pending.Materials = merged
		return pending, RequestModeUpdated, nil
	}
	if !utils.IsNotFound(err) {
		return nil, "", err
	}

	generation, err := models.NextRequestGeneration(tx, baseKey)
	if err != nil {
		return nil, "", err
	}
	request := &models.AllocationRequest{
		RequestId:    uuid.NewString(),
		BaseKey:      baseKey,
		Generation:   generation,
		ActivityId:   actCtx.ActivityId,
		ActivityType: actCtx.ActivityType,
		Phase:        actCtx.Phase,
		SubPhase:     actCtx.SubPhase,
		Status:       models.RequestStatusPending,
		Materials:    merged,
		RequestedBy:  actor,
		RequestedAt:  time.Now(),
	}
	if err := tx.Create(request).Error; err != nil {
		// Two concurrent first upserts for one base key race on the
		// (base_key, generation) unique index; the loser gets a conflict,
		// not a 500, and can simply retry into the winner's pending request.
		return nil, "", utils.MapDuplicateEntry(err, "allocation request", baseKey)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, "", err
	}
	config.LogWarn(logger, "requestWorkflow.go", "UpsertAllocationRequest", "created", map[string]any{
		"requestKey": request.RequestKey(), "generation": generation,
	}, "allocation request opened")
	return request, RequestModeCreated, nil
}

// ApproveAllocationRequest runs the direct allocator over the request's
// snapshot as a single all-or-nothing batch. Any insufficient or missing
// material aborts the whole approval: the ledger stays untouched and the
// request stays pending so the operator can restock and retry.
func ApproveAllocationRequest(ctx context.Context, logger *logrus.Logger, requestId string) (*models.AllocationRequest, *BatchResult, error) {
	db := config.GetDB()
	actor := utils.ActorFromContext(ctx)

	// Cross-instance guard: two reviewers approving the same request race on
	// this lock, not on the ledger.
	release, err := utils.ObtainLock(ctx, "request:"+requestId, "requestWorkflow.go", "ApproveAllocationRequest")
	if err != nil {
		return nil, nil, err
	}
	defer release()

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, nil, tx.Error
	}
	defer tx.Rollback()

	request, err := models.GetAllocationRequest(tx, requestId)
	if err != nil {
		return nil, nil, err
	}
	if request.Status != models.RequestStatusPending {
		return nil, nil, &utils.StateError{Resource: "allocation request " + requestId, Current: string(request.Status), Wanted: string(models.RequestStatusPending)}
	}

	// Sorted lock order prevents deadlocks between concurrent approvals
	// sharing materials.
	codes := make([]string, 0, len(request.Materials))
	for _, m := range request.Materials {
		codes = append(codes, utils.NormalizeMaterialCode(m.MaterialCode))
	}
	codes = utils.UniqueSlice(codes)
	sort.Strings(codes)
	for _, code := range codes {
		if err := AcquireMaterialPostingLock(tx, code); err != nil {
			return nil, nil, err
		}
	}
	releaseLocks := func() {
		for _, code := range codes {
			ReleaseMaterialPostingLock(tx, code)
		}
	}
	defer releaseLocks()

	result := &BatchResult{}
	for _, m := range request.Materials {
		item, err := allocateLocked(tx, request.ActivityId, request.ActivityType, AllocationMaterial{
			MaterialCode: m.MaterialCode,
			Qty:          m.Qty,
			Condition:    string(m.Condition),
			Unit:         m.Unit,
		}, actor)
		if err != nil {
			config.LogError(logger, "requestWorkflow.go", "ApproveAllocationRequest", "allocateLocked", m.MaterialCode, err)
			result.addError(utils.NormalizeMaterialCode(m.MaterialCode), err)
			// All-or-nothing: surface every item error, commit nothing.
			continue
		}
		result.addResult(item.MaterialCode, true, item.Totals())
	}
	if len(result.Errors) > 0 {
		return request, &BatchResult{Errors: result.Errors}, nil
	}

	// Hand the approved materials to the activity service (append, never
	// replace).
	now := time.Now()
	logs := make([]models.ActivityMaterialLog, 0, len(request.Materials))
	for _, m := range request.Materials {
		logs = append(logs, models.ActivityMaterialLog{
			ActivityId:   request.ActivityId,
			ActivityType: request.ActivityType,
			Phase:        request.Phase,
			SubPhase:     request.SubPhase,
			MaterialCode: utils.NormalizeMaterialCode(m.MaterialCode),
			MaterialName: m.MaterialName,
			Qty:          m.Qty,
			Unit:         m.Unit,
			Condition:    m.Condition,
			RequestKey:   request.RequestKey(),
			CreatedBy:    actor,
		})
	}
	if err := tx.Create(&logs).Error; err != nil {
		return nil, nil, err
	}

	request.Status = models.RequestStatusApproved
	request.ReviewedBy = &actor
	request.ReviewedAt = &now
	if err := tx.Omit("Materials").Save(request).Error; err != nil {
		return nil, nil, err
	}

	releaseLocks()
	if err := tx.Commit().Error; err != nil {
		return nil, nil, err
	}
	for _, code := range codes {
		_ = config.DeleteRedisKeys("stock:" + code)
	}
	return request, result, nil
}

// RejectAllocationRequest resolves a pending request with a decision note.
// No ledger effect.
func RejectAllocationRequest(ctx context.Context, logger *logrus.Logger, requestId string, note string) (*models.AllocationRequest, error) {
	return resolveRequest(ctx, requestId, models.RequestStatusRejected, note)
}

// CancelAllocationRequest withdraws a pending request, e.g. when the gated
// phase no longer needs materials. Explicit by design: an empty upsert does
// not cancel.
func CancelAllocationRequest(ctx context.Context, logger *logrus.Logger, requestId string) (*models.AllocationRequest, error) {
	return resolveRequest(ctx, requestId, models.RequestStatusCancelled, "")
}

func resolveRequest(ctx context.Context, requestId string, status models.RequestStatus, note string) (*models.AllocationRequest, error) {
	db := config.GetDB()
	actor := utils.ActorFromContext(ctx)

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	defer tx.Rollback()

	request, err := models.GetAllocationRequest(tx, requestId)
	if err != nil {
		return nil, err
	}
	if request.Status != models.RequestStatusPending {
		return nil, &utils.StateError{Resource: "allocation request " + requestId, Current: string(request.Status), Wanted: string(models.RequestStatusPending)}
	}

	now := time.Now()
	request.Status = status
	request.ReviewedBy = &actor
	request.ReviewedAt = &now
	request.DecisionNote = note
	if err := tx.Omit("Materials").Save(request).Error; err != nil {
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return request, nil
}
