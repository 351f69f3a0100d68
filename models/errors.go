package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Calculation and validation failures are returned as typed values so handlers
// can map them to inline field errors instead of a blanket 500.

type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// OverAllocationError reports an allocation set whose percentages exceed 100.
// The offending sum is carried for display; the set is never clamped.
type OverAllocationError struct {
	Sum decimal.Decimal
}

func (e *OverAllocationError) Error() string {
	return fmt.Sprintf("allocation percentages sum to %s, exceeding 100", e.Sum.String())
}

// EmptyTargetError reports an allocation entry with no target reference.
// Position is the zero-based index of the entry in the submitted set.
type EmptyTargetError struct {
	Position int
}

func (e *EmptyTargetError) Error() string {
	return fmt.Sprintf("allocation at position %d has no target", e.Position)
}
