package utils

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
)

var ErrorRecordNotFound = errors.New("record not found")

// ValidationError covers missing or malformed input: empty material codes,
// non-positive quantities, unknown provenance.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError covers a material, activity or allocation request that does
// not exist.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
}

func NewNotFoundError(resource, key string) error {
	return &NotFoundError{Resource: resource, Key: key}
}

// InsufficientStockError reports how much was available vs requested so the
// caller can surface actionable counts.
type InsufficientStockError struct {
	MaterialCode string
	Available    decimal.Decimal
	Requested    decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %s, requested %s",
		e.MaterialCode, e.Available.String(), e.Requested.String())
}

// ConflictError covers duplicate creation, e.g. two concurrent first
// contributions racing on the same material code.
type ConflictError struct {
	Resource string
	Key      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Resource, e.Key)
}

// StateError covers operating on an allocation request outside pending.
type StateError struct {
	Resource string
	Current  string
	Wanted   string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s is %s, must be %s", e.Resource, e.Current, e.Wanted)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) || errors.Is(err, ErrorRecordNotFound)
}

// MapDuplicateEntry converts a MySQL duplicate-key violation into the
// engine's ConflictError; any other error passes through unchanged.
func MapDuplicateEntry(err error, resource, key string) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return &ConflictError{Resource: resource, Key: key}
	}
	return err
}
