package verify

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/convergedb/sync/pkg/utm"
)

// Default float tolerances: exact for every UniversalType except the
// two float kinds, which compare within a small absolute tolerance —
// wide enough to absorb a source driver's binary-float round-trip
// noise, narrow enough that a real divergence still fails verify.
const (
	DefaultFloat32Tolerance = 1e-4
	DefaultFloat64Tolerance = 1e-9
)

// Comparator is harness/verify's own value comparator, named directly by
// utm.Value.Equal's doc comment as the tolerance-aware counterpart to
// its exact structural comparison.
type Comparator struct {
	Float32Tolerance float64
	Float64Tolerance float64
}

// NewComparator returns a Comparator using the default tolerances.
func NewComparator() Comparator {
	return Comparator{Float32Tolerance: DefaultFloat32Tolerance, Float64Tolerance: DefaultFloat64Tolerance}
}

// Equal reports whether a and b are equal for verify purposes: exact
// for every kind except Float32/Float64, which allow c's tolerance.
func (c Comparator) Equal(a, b utm.Value) bool {
	if a.IsNull() != b.IsNull() {
		return false
	}
	if a.IsNull() {
		return true
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case utm.KindFloat32:
		x, _ := a.AsFloat32()
		y, _ := b.AsFloat32()
		return math.Abs(float64(x-y)) <= c.Float32Tolerance
	case utm.KindFloat64:
		x, _ := a.AsFloat64()
		y, _ := b.AsFloat64()
		return math.Abs(x-y) <= c.Float64Tolerance
	case utm.KindDecimal:
		return decimalEqual(a, b)
	default:
		return a.Equal(b)
	}
}

// decimalEqual compares two Decimal-kinded values by numeric value
// rather than literal text, so "10.50" and "10.5" verify as equal the
// way a.Equal(b)'s plain string comparison would not (spec invariant
// (b): Decimal is carried as a literal, never widened to a binary
// float, but two differently-formatted literals of the same source row
// must still verify as a match).
func decimalEqual(a, b utm.Value) bool {
	al, aok := a.AsDecimal()
	bl, bok := b.AsDecimal()
	if !aok || !bok {
		return a.Equal(b)
	}
	ad, err := decimal.NewFromString(al.Text)
	if err != nil {
		return a.Equal(b)
	}
	bd, err := decimal.NewFromString(bl.Text)
	if err != nil {
		return a.Equal(b)
	}
	return ad.Equal(bd)
}

// Diff compares every column of expected against actual and returns the
// column names that disagree, in map iteration order is not guaranteed
// so callers needing determinism should sort the result.
func (c Comparator) Diff(expected, actual map[string]utm.Value) []string {
	var mismatched []string
	for col, want := range expected {
		got, ok := actual[col]
		if !ok || !c.Equal(want, got) {
			mismatched = append(mismatched, col)
		}
	}
	return mismatched
}
