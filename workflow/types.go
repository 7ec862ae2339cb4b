package workflow

import (
	"sort"
	"strings"

	"github.com/mmtelinfra/sitestock_backend/models"
	"github.com/mmtelinfra/sitestock_backend/utils"
	"github.com/shopspring/decimal"
)

// ActivityContext identifies one material-bearing section of one activity.
type ActivityContext struct {
	ActivityId   string              `json:"activity_id"`
	ActivityType models.ActivityType `json:"activity_type"`
	Phase        string              `json:"phase"`
	SubPhase     string              `json:"sub_phase"`
}

func (c ActivityContext) Validate() error {
	if strings.TrimSpace(c.ActivityId) == "" {
		return utils.NewValidationError("activityId", "must not be empty")
	}
	if c.ActivityType == "" {
		return utils.NewValidationError("activityType", "must not be empty")
	}
	if strings.TrimSpace(c.Phase) == "" {
		return utils.NewValidationError("phase", "must not be empty")
	}
	return nil
}

func (c ActivityContext) BaseKey() string {
	return models.BuildRequestBaseKey(c.ActivityId, c.ActivityType, c.Phase, c.SubPhase)
}

// SnapshotMaterial is one material row as currently recorded on an activity.
type SnapshotMaterial struct {
	MaterialCode string          `json:"material_code"`
	MaterialName string          `json:"material_name"`
	Category     string          `json:"category"`
	Qty          decimal.Decimal `json:"qty"`
	Unit         string          `json:"unit"`
	Condition    string          `json:"condition"`
	Notes        string          `json:"notes"`
}

// ItemResult reports one successfully processed material of a batch.
type ItemResult struct {
	MaterialCode string             `json:"material_code"`
	Updated      bool               `json:"updated"`
	Totals       models.StockTotals `json:"totals"`
}

// ItemError reports one failed material of a batch. Failed items never roll
// back the ones that already succeeded.
type ItemError struct {
	MaterialCode string `json:"material_code"`
	Error        string `json:"error"`
}

// BatchResult is the combined outcome of a per-item batch operation. Callers
// must inspect Errors even when the call itself returned nil.
type BatchResult struct {
	Results []ItemResult `json:"results"`
	Errors  []ItemError  `json:"errors"`
}

func (b *BatchResult) addResult(code string, updated bool, totals models.StockTotals) {
	b.Results = append(b.Results, ItemResult{MaterialCode: code, Updated: updated, Totals: totals})
}

func (b *BatchResult) addError(code string, err error) {
	b.Errors = append(b.Errors, ItemError{MaterialCode: code, Error: err.Error()})
}

// snapshotKey is the reconciliation map key: one desired quantity per
// (materialCode, condition, unit).
type snapshotKey struct {
	Code      string
	Condition models.Condition
	Unit      string
}

// normalizedSnapshot is a snapshot folded into its canonical map form:
// codes uppercased, conditions bucketed, duplicate keys summed.
type normalizedSnapshot struct {
	desired  map[snapshotKey]decimal.Decimal
	defaults map[string]models.NewStockDefaults
	codes    []string
}

func normalizeSnapshot(materials []SnapshotMaterial, location string) (*normalizedSnapshot, []ItemError) {
	ns := &normalizedSnapshot{
		desired:  make(map[snapshotKey]decimal.Decimal),
		defaults: make(map[string]models.NewStockDefaults),
	}
	var errs []ItemError
	for _, m := range materials {
		code := utils.NormalizeMaterialCode(m.MaterialCode)
		if code == "" {
			errs = append(errs, ItemError{MaterialCode: m.MaterialCode, Error: "material code must not be empty"})
			continue
		}
		if m.Qty.IsNegative() {
			errs = append(errs, ItemError{MaterialCode: code, Error: "quantity must not be negative"})
			continue
		}
		if m.Qty.IsZero() {
			// A zero row means "not present"; the delta pass removes any
			// prior contribution for the key.
			continue
		}
		key := snapshotKey{
			Code:      code,
			Condition: models.NormalizeCondition(m.Condition),
			Unit:      utils.NormalizeUnit(m.Unit),
		}
		ns.desired[key] = ns.desired[key].Add(m.Qty)
		if _, ok := ns.defaults[code]; !ok {
			ns.defaults[code] = models.NewStockDefaults{
				MaterialName: m.MaterialName,
				Category:     m.Category,
				Unit:         utils.NormalizeUnit(m.Unit),
				Location:     location,
			}
			ns.codes = append(ns.codes, code)
		}
	}
	sort.Strings(ns.codes)
	return ns, errs
}

// MergeRequestMaterials folds raw snapshot rows into the request's material
// list, deduplicated by (materialCode, condition) with quantities summed.
func MergeRequestMaterials(materials []SnapshotMaterial) ([]models.AllocationRequestMaterial, []ItemError) {
	type mergeKey struct {
		Code      string
		Condition models.Condition
	}
	var errs []ItemError
	merged := make(map[mergeKey]*models.AllocationRequestMaterial)
	order := make([]mergeKey, 0, len(materials))
	for _, m := range materials {
		code := utils.NormalizeMaterialCode(m.MaterialCode)
		if code == "" {
			errs = append(errs, ItemError{MaterialCode: m.MaterialCode, Error: "material code must not be empty"})
			continue
		}
		if !m.Qty.IsPositive() {
			errs = append(errs, ItemError{MaterialCode: code, Error: "quantity must be positive"})
			continue
		}
		key := mergeKey{Code: code, Condition: models.NormalizeCondition(m.Condition)}
		if existing, ok := merged[key]; ok {
			existing.Qty = existing.Qty.Add(m.Qty)
			if existing.Notes == "" {
				existing.Notes = m.Notes
			}
			continue
		}
		merged[key] = &models.AllocationRequestMaterial{
			MaterialCode: code,
			MaterialName: m.MaterialName,
			Qty:          m.Qty,
			Unit:         utils.NormalizeUnit(m.Unit),
			Condition:    key.Condition,
			Notes:        m.Notes,
		}
		order = append(order, key)
	}
	out := make([]models.AllocationRequestMaterial, 0, len(order))
	for _, key := range order {
		out = append(out, *merged[key])
	}
	return out, errs
}
