package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
)

func TestErrorTaxonomyMatchesWithAs(t *testing.T) {
	wrapped := fmt.Errorf("posting: %w", NewValidationError("qty", "must be positive"))
	var ve *ValidationError
	if !errors.As(wrapped, &ve) || ve.Field != "qty" {
		t.Fatalf("ValidationError not matched through wrapping: %v", wrapped)
	}

	var ise *InsufficientStockError
	err := fmt.Errorf("allocate: %w", &InsufficientStockError{
		MaterialCode: "M-1",
		Available:    decimal.NewFromInt(2),
		Requested:    decimal.NewFromInt(5),
	})
	if !errors.As(err, &ise) {
		t.Fatalf("InsufficientStockError not matched: %v", err)
	}
	if !ise.Available.Equal(decimal.NewFromInt(2)) || !ise.Requested.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("counts lost in transit: %+v", ise)
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(NewNotFoundError("stock item", "M-1")) {
		t.Fatal("NotFoundError must satisfy IsNotFound")
	}
	if !IsNotFound(fmt.Errorf("load: %w", ErrorRecordNotFound)) {
		t.Fatal("wrapped sentinel must satisfy IsNotFound")
	}
	if IsNotFound(errors.New("boom")) {
		t.Fatal("unrelated error must not satisfy IsNotFound")
	}
}

func TestMapDuplicateEntry(t *testing.T) {
	dup := fmt.Errorf("create: %w", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mapped := MapDuplicateEntry(dup, "allocation request", "ACT-1:cow:deployment:civil-works")
	var ce *ConflictError
	if !errors.As(mapped, &ce) || ce.Resource != "allocation request" {
		t.Fatalf("duplicate key must map to ConflictError, got %v", mapped)
	}

	other := errors.New("deadlock found")
	if got := MapDuplicateEntry(other, "allocation request", "k"); got != other {
		t.Fatalf("non-duplicate errors must pass through, got %v", got)
	}
	lockTimeout := &mysql.MySQLError{Number: 1205}
	if got := MapDuplicateEntry(lockTimeout, "allocation request", "k"); got != error(lockTimeout) {
		t.Fatalf("other mysql errors must pass through, got %v", got)
	}
}

func TestErrorMessages(t *testing.T) {
	if got := NewNotFoundError("stock item", "M-1").Error(); got != `stock item "M-1" not found` {
		t.Fatalf("NotFoundError message: %q", got)
	}
	se := &StateError{Resource: "allocation request r1", Current: "approved", Wanted: "pending"}
	if got := se.Error(); got != "allocation request r1 is approved, must be pending" {
		t.Fatalf("StateError message: %q", got)
	}
}
