package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmtelinfra/sitestock_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AllocationRequest gates material consumption for phases that need
// procurement sign-off. One logical request per gated context; a resolved
// request is immutable, so a re-submission for the same context opens a new
// generation under the same base key.
type AllocationRequest struct {
	ID        int    `gorm:"primary_key" json:"id"`
	RequestId string `gorm:"size:36;uniqueIndex;not null" json:"request_id"`

	// BaseKey + Generation identify the logical request; the wire requestKey
	// is rendered from them (base for generation 1, base_vN after).
	BaseKey    string `gorm:"size:255;not null;uniqueIndex:idx_request_generation" json:"base_key"`
	Generation int    `gorm:"not null;default:1;uniqueIndex:idx_request_generation" json:"generation"`

	ActivityId   string       `gorm:"size:100;not null;index" json:"activity_id"`
	ActivityType ActivityType `gorm:"size:50;not null" json:"activity_type"`
	Phase        string       `gorm:"size:100;not null" json:"phase"`
	SubPhase     string       `gorm:"size:100;not null" json:"sub_phase"`

	Status RequestStatus `gorm:"size:20;not null;default:pending;index" json:"status"`

	Materials []AllocationRequestMaterial `gorm:"foreignKey:AllocationRequestId" json:"materials"`

	RequestedBy  string     `gorm:"size:100" json:"requested_by"`
	RequestedAt  time.Time  `json:"requested_at"`
	ReviewedBy   *string    `gorm:"size:100" json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time `json:"reviewed_at,omitempty"`
	DecisionNote string     `gorm:"type:text" json:"decision_note"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// AllocationRequestMaterial is one line of the request's material snapshot,
// already merged by (materialCode, condition).
type AllocationRequestMaterial struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	AllocationRequestId int             `gorm:"not null;index" json:"allocation_request_id"`
	MaterialCode        string          `gorm:"size:100;not null" json:"material_code"`
	MaterialName        string          `gorm:"size:255" json:"material_name"`
	Qty                 decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	Unit                string          `gorm:"size:50" json:"unit"`
	Condition           Condition       `gorm:"size:20;not null;default:good" json:"condition"`
	Notes               string          `gorm:"type:text" json:"notes"`
}

// BuildRequestBaseKey derives the deterministic base key for one gated
// context.
func BuildRequestBaseKey(activityId string, activityType ActivityType, phase, subPhase string) string {
	return strings.Join([]string{
		strings.TrimSpace(activityId),
		string(activityType),
		strings.TrimSpace(phase),
		strings.TrimSpace(subPhase),
	}, ":")
}

// RequestKey renders the wire-format key. Generation 1 keeps the bare base
// key for compatibility with pre-versioning records.
func (r *AllocationRequest) RequestKey() string {
	if r.Generation <= 1 {
		return r.BaseKey
	}
	return fmt.Sprintf("%s_v%d", r.BaseKey, r.Generation)
}

// FindPendingRequestByBaseKey returns the pending request for a base key, or
// a NotFoundError if every generation is resolved (or none exists).
func FindPendingRequestByBaseKey(tx *gorm.DB, baseKey string) (*AllocationRequest, error) {
	var req AllocationRequest
	err := tx.Preload("Materials").
		Where("base_key = ? AND status = ?", baseKey, RequestStatusPending).
		Order("generation DESC").
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NewNotFoundError("pending allocation request", baseKey)
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// NextRequestGeneration returns 1 + the highest existing generation for a
// base key (1 when the key is unseen).
func NextRequestGeneration(tx *gorm.DB, baseKey string) (int, error) {
	var maxGen *int
	err := tx.Model(&AllocationRequest{}).
		Where("base_key = ?", baseKey).
		Select("MAX(generation)").
		Scan(&maxGen).Error
	if err != nil {
		return 0, err
	}
	if maxGen == nil {
		return 1, nil
	}
	return *maxGen + 1, nil
}

// GetAllocationRequest fetches one request by its public request id.
func GetAllocationRequest(tx *gorm.DB, requestId string) (*AllocationRequest, error) {
	var req AllocationRequest
	err := tx.Preload("Materials").Where("request_id = ?", requestId).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NewNotFoundError("allocation request", requestId)
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// ListAllocationRequests filters requests for the review surface.
func ListAllocationRequests(tx *gorm.DB, status RequestStatus, activityId string) ([]*AllocationRequest, error) {
	q := tx.Preload("Materials").Order("requested_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if activityId != "" {
		q = q.Where("activity_id = ?", activityId)
	}
	var requests []*AllocationRequest
	if err := q.Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}
