package models

import "strings"

// Condition is one of the five fixed condition buckets.
type Condition string

const (
	ConditionExcellent Condition = "excellent"
	ConditionGood      Condition = "good"
	ConditionFair      Condition = "fair"
	ConditionPoor      Condition = "poor"
	ConditionScrap     Condition = "scrap"
)

// Conditions lists all buckets in grading order, best first.
var Conditions = []Condition{ConditionExcellent, ConditionGood, ConditionFair, ConditionPoor, ConditionScrap}

// NormalizeCondition maps free-form input onto a fixed bucket. Unrecognized
// input defaults to good.
func NormalizeCondition(input string) Condition {
	switch Condition(strings.ToLower(strings.TrimSpace(input))) {
	case ConditionExcellent:
		return ConditionExcellent
	case ConditionGood:
		return ConditionGood
	case ConditionFair:
		return ConditionFair
	case ConditionPoor:
		return ConditionPoor
	case ConditionScrap:
		return ConditionScrap
	default:
		return ConditionGood
	}
}

type ActivityType string

const (
	ActivityTypeDismantling ActivityType = "dismantling"
	ActivityTypeRelocation  ActivityType = "relocation"
	ActivityTypeCow         ActivityType = "cow"
)

type AllocationStatus string

const (
	AllocationStatusAllocated AllocationStatus = "allocated"
	AllocationStatusInUse     AllocationStatus = "in-use"
	AllocationStatusReturned  AllocationStatus = "returned"
)

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusApproved  RequestStatus = "approved"
	RequestStatusRejected  RequestStatus = "rejected"
	RequestStatusCancelled RequestStatus = "cancelled"
)

// IsResolved reports whether the status is terminal.
func (s RequestStatus) IsResolved() bool {
	return s == RequestStatusApproved || s == RequestStatusRejected || s == RequestStatusCancelled
}

// ProcurementSource tags where externally purchased stock came from.
type ProcurementSource string

const (
	ProcurementSourceOwnStore      ProcurementSource = "own-store"
	ProcurementSourceExternalStore ProcurementSource = "external-store"
	ProcurementSourceCustom        ProcurementSource = "custom"
)

func (s ProcurementSource) IsValid() bool {
	switch s {
	case ProcurementSourceOwnStore, ProcurementSourceExternalStore, ProcurementSourceCustom:
		return true
	}
	return false
}
