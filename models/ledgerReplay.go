package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ReplayStockHistory recomputes a stock item's totals and condition buckets
// from its full history. Contributions and procurement intakes build up the
// buckets, allocations drain them, and each return event re-enters the bucket
// it actually came back in.
//
// Bucket placement of allocations is best-effort: allocation rows do not
// record which bucket they drained, so the replay drains good-first the same
// way live allocation does when the requested bucket is short. Returns are
// exact because every return event carries its own condition.
//
// The replay refuses histories it cannot attribute: when the returned
// quantities on the allocation entries do not match the return events, the
// item predates per-return recording and a rebuild would have to guess which
// bucket the returns belong in.
func ReplayStockHistory(materialCode, location string, contributions []ContributionEntry, procurements []ProcurementRecord, allocations []AllocationEntry, returns []ReturnEntry) (*StockItem, error) {
	entryReturned := decimal.Zero
	for _, e := range allocations {
		entryReturned = entryReturned.Add(e.ReturnedQty)
	}
	eventReturned := decimal.Zero
	for _, r := range returns {
		eventReturned = eventReturned.Add(r.Qty)
	}
	if !entryReturned.Equal(eventReturned) {
		return nil, fmt.Errorf("returns cannot be attributed: allocation entries report %s returned, return events cover %s",
			entryReturned, eventReturned)
	}

	item := &StockItem{MaterialCode: materialCode, Location: location}
	for _, c := range contributions {
		item.ApplyContributionDelta(c.Condition, c.Qty)
	}
	for _, p := range procurements {
		item.ApplyContributionDelta(p.Condition, p.Qty)
	}
	for _, e := range allocations {
		everAllocated := e.Qty.Add(e.ReturnedQty)
		item.TakeFromAvailable(ConditionGood, everAllocated)
		item.AllocatedQty = item.AllocatedQty.Add(everAllocated)
	}
	for _, r := range returns {
		item.AllocatedQty = item.AllocatedQty.Sub(r.Qty)
		if r.Condition == ConditionScrap {
			item.AddConditionQty(ConditionScrap, r.Qty)
		} else {
			item.AvailableQty = item.AvailableQty.Add(r.Qty)
			item.AddConditionQty(r.Condition, r.Qty)
		}
	}

	item.EnsureBreakdownShape()
	if err := item.CheckConservation(); err != nil {
		return nil, fmt.Errorf("replay does not conserve: %w", err)
	}
	return item, nil
}
