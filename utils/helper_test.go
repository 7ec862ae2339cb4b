package utils

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeMaterialCode(t *testing.T) {
	if got := NormalizeMaterialCode("  m-0010 "); got != "M-0010" {
		t.Fatalf("NormalizeMaterialCode = %q", got)
	}
	if got := NormalizeMaterialCode("   "); got != "" {
		t.Fatalf("blank code must normalize to empty: %q", got)
	}
}

func TestNormalizeUnit(t *testing.T) {
	if got := NormalizeUnit(" Pcs "); got != "pcs" {
		t.Fatalf("NormalizeUnit = %q", got)
	}
	if got := NormalizeUnit(""); got != "pcs" {
		t.Fatalf("empty unit must default to pcs: %q", got)
	}
	if got := NormalizeUnit("METERS"); got != "meters" {
		t.Fatalf("NormalizeUnit = %q", got)
	}
}

func TestParseDecimal(t *testing.T) {
	d, err := ParseDecimal(" 12.5 ")
	if err != nil {
		t.Fatalf("ParseDecimal: %v", err)
	}
	if !d.Equal(decimal.NewFromFloat(12.5)) {
		t.Fatalf("ParseDecimal = %s", d)
	}
	if _, err := ParseDecimal(""); err == nil {
		t.Fatal("empty string must fail")
	}
	if _, err := ParseDecimal("12x"); err == nil {
		t.Fatal("garbage must fail")
	}
}

func TestClampQuantity(t *testing.T) {
	if got := ClampQuantity(decimal.NewFromInt(-3), "M-1", "qty_good"); !got.IsZero() {
		t.Fatalf("negative must clamp to zero: %s", got)
	}
	if got := ClampQuantity(decimal.NewFromInt(7), "M-1", "qty_good"); !got.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("positive must pass through: %s", got)
	}
	if got := ClampQuantity(decimal.Zero, "M-1", "qty_good"); !got.IsZero() {
		t.Fatalf("zero must pass through: %s", got)
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]string{"b", "a", "b", "c", "a"})
	want := []string{"b", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("UniqueSlice = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("UniqueSlice = %v, want %v (first occurrence order)", got, want)
		}
	}
}
