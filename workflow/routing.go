package workflow

import (
	"context"
	"strings"

	"github.com/mmtelinfra/sitestock_backend/models"
	"github.com/sirupsen/logrus"
)

// RouteKind says how an activity edit for one context reaches the ledger.
type RouteKind string

const (
	// RouteReconcile contexts contribute stock; edits are delta-reconciled.
	RouteReconcile RouteKind = "reconcile"
	// RouteGatedRequest contexts consume stock behind procurement sign-off.
	RouteGatedRequest RouteKind = "gated-request"
	// RouteDirectAllocate contexts consume stock without approval.
	RouteDirectAllocate RouteKind = "direct-allocate"
	// RouteNone contexts do not touch stock at all.
	RouteNone RouteKind = "none"
)

// RouteContext maps a context to its engine behavior. The terminal
// store/dispatch phase of dismantling contributes recovered materials; the
// store-operator/inventory sub-phases of relocation and COW moves do the
// same. Civil and telecom work sub-phases consume and are gated; rigging
// consumes ungated.
func RouteContext(activityType models.ActivityType, phase, subPhase string) RouteKind {
	p := strings.ToLower(strings.TrimSpace(phase))
	sp := strings.ToLower(strings.TrimSpace(subPhase))

	switch activityType {
	case models.ActivityTypeDismantling:
		if p == "store-dispatch" || p == "dispatch" {
			return RouteReconcile
		}
	case models.ActivityTypeRelocation, models.ActivityTypeCow:
		switch sp {
		case "store-operator", "inventory":
			return RouteReconcile
		case "civil-works", "telecom-works":
			return RouteGatedRequest
		case "rigging":
			return RouteDirectAllocate
		}
	}
	return RouteNone
}

// ActivityEditResult is the outcome of routing one activity edit.
type ActivityEditResult struct {
	Route       RouteKind                 `json:"route"`
	Batch       *BatchResult              `json:"batch,omitempty"`
	Request     *models.AllocationRequest `json:"request,omitempty"`
	RequestMode string                    `json:"request_mode,omitempty"`
}

// ProcessActivityEdit dispatches an activity edit to the reconciler, the
// request workflow or the direct allocator according to the routing table.
func ProcessActivityEdit(ctx context.Context, logger *logrus.Logger, actCtx ActivityContext, snapshot []SnapshotMaterial, location string) (*ActivityEditResult, error) {
	route := RouteContext(actCtx.ActivityType, actCtx.Phase, actCtx.SubPhase)
	out := &ActivityEditResult{Route: route}

	switch route {
	case RouteReconcile:
		batch, err := ProcessReconcileWorkflow(ctx, logger, actCtx, snapshot, location)
		if err != nil {
			return nil, err
		}
		out.Batch = batch
	case RouteGatedRequest:
		request, mode, err := UpsertAllocationRequest(ctx, logger, actCtx, snapshot)
		if err != nil {
			return nil, err
		}
		out.Request = request
		out.RequestMode = mode
	case RouteDirectAllocate:
		allocations := make([]AllocationMaterial, 0, len(snapshot))
		for _, m := range snapshot {
			allocations = append(allocations, AllocationMaterial{
				MaterialCode: m.MaterialCode,
				Qty:          m.Qty,
				Condition:    m.Condition,
				Unit:         m.Unit,
			})
		}
		batch, err := ProcessAllocationWorkflow(ctx, logger, actCtx.ActivityId, actCtx.ActivityType, allocations)
		if err != nil {
			return nil, err
		}
		out.Batch = batch
	case RouteNone:
		// Not stock-affecting.
	}
	return out, nil
}
