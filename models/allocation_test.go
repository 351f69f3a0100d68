package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
)

func targets(ids ...string) []AllocationTargetInput {
	out := make([]AllocationTargetInput, 0, len(ids))
	for _, id := range ids {
		out = append(out, AllocationTargetInput{TargetType: AllocationTargetTypeProject, TargetId: id})
	}
	return out
}

func weighted(ids []string, weights []int64) []AllocationTargetInput {
	out := make([]AllocationTargetInput, 0, len(ids))
	for i, id := range ids {
		out = append(out, AllocationTargetInput{
			TargetType: AllocationTargetTypeProject,
			TargetId:   id,
			Weight:     decimal.NewFromInt(weights[i]),
		})
	}
	return out
}

func percentages(allocations []NewAllocation) []string {
	out := make([]string, 0, len(allocations))
	for _, a := range allocations {
		out = append(out, a.Percentage.String())
	}
	return out
}

func assertPercentages(t *testing.T, allocations []NewAllocation, expected ...string) {
	t.Helper()
	got := percentages(allocations)
	if len(got) != len(expected) {
		t.Fatalf("expected %d allocations, got %d (%v)", len(expected), len(got), got)
	}
	sum := decimal.Zero
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("allocation %d expected %s%%, got %s%% (full: %v)", i, expected[i], got[i], got)
		}
		sum = sum.Add(allocations[i].Percentage)
	}
	if !sum.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("split must sum to exactly 100, got %s", sum)
	}
}

func mustEvenSplit(t *testing.T, in []AllocationTargetInput) []NewAllocation {
	t.Helper()
	allocations, err := EvenSplit(in)
	if err != nil {
		t.Fatalf("EvenSplit: %v", err)
	}
	return allocations
}

func TestEvenSplit_RemainderGoesToFirstEntry(t *testing.T) {
	assertPercentages(t, mustEvenSplit(t, targets("a", "b", "c")), "34", "33", "33")
	assertPercentages(t, mustEvenSplit(t, targets("a", "b", "c", "d", "e", "f", "g")), "16", "14", "14", "14", "14", "14", "14")
	assertPercentages(t, mustEvenSplit(t, targets("a")), "100")
	assertPercentages(t, mustEvenSplit(t, targets("a", "b")), "50", "50")
}

func TestEvenSplit_EmptyInput(t *testing.T) {
	if got := mustEvenSplit(t, nil); len(got) != 0 {
		t.Fatalf("expected empty split, got %v", got)
	}
}

func manyTargets(n int) []AllocationTargetInput {
	out := make([]AllocationTargetInput, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, AllocationTargetInput{
			TargetType: AllocationTargetTypeProject,
			TargetId:   fmt.Sprintf("proj-%d", i),
			Weight:     decimal.NewFromInt(1),
		})
	}
	return out
}

func TestSplits_BoundedAtHundredTargets(t *testing.T) {
	// At exactly 100 targets every entry gets 1%; past that an even split
	// would emit 0% entries the validator refuses, so both splits reject.
	allocations := mustEvenSplit(t, manyTargets(100))
	for i, alloc := range allocations {
		if alloc.Percentage.String() != "1" {
			t.Fatalf("entry %d expected 1%%, got %s", i, alloc.Percentage)
		}
	}
	if err := ValidateAllocations(allocations); err != nil {
		t.Fatalf("100-way even split must be saveable: %v", err)
	}

	var invalid *InvalidInputError
	if _, err := EvenSplit(manyTargets(101)); !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidInputError for 101 targets, got %v", err)
	}
	if _, err := ProportionalSplit(manyTargets(101)); !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidInputError for 101 weighted targets, got %v", err)
	}
}

func TestProportionalSplit_ExactWeights(t *testing.T) {
	allocations, err := ProportionalSplit(weighted([]string{"a", "b"}, []int64{3, 2}))
	if err != nil {
		t.Fatalf("ProportionalSplit: %v", err)
	}
	assertPercentages(t, allocations, "60", "40")
}

func TestProportionalSplit_DriftGoesToLargestRaw(t *testing.T) {
	// 2/7 rounds to 29, the five 1/7 entries round to 14 each: sum 99.
	// The +1 drift lands on the largest raw entry, not the first entry.
	allocations, err := ProportionalSplit(weighted(
		[]string{"a", "b", "c", "d", "e", "f"},
		[]int64{1, 1, 1, 1, 1, 2},
	))
	if err != nil {
		t.Fatalf("ProportionalSplit: %v", err)
	}
	assertPercentages(t, allocations, "14", "14", "14", "14", "14", "30")
}

func TestProportionalSplit_TieOnLargestRawFirstWins(t *testing.T) {
	// Raw percentages 25/37.5/37.5 round to 25/38/38: sum 101. The -1 drift
	// goes to the first of the two tied-largest entries.
	allocations, err := ProportionalSplit(weighted([]string{"a", "b", "c"}, []int64{2, 3, 3}))
	if err != nil {
		t.Fatalf("ProportionalSplit: %v", err)
	}
	assertPercentages(t, allocations, "25", "37", "38")
}

func TestProportionalSplit_EqualWeights(t *testing.T) {
	allocations, err := ProportionalSplit(weighted([]string{"a", "b", "c"}, []int64{1, 1, 1}))
	if err != nil {
		t.Fatalf("ProportionalSplit: %v", err)
	}
	assertPercentages(t, allocations, "34", "33", "33")
}

func TestProportionalSplit_RejectsBadWeights(t *testing.T) {
	var invalid *InvalidInputError

	_, err := ProportionalSplit(weighted([]string{"a", "b"}, []int64{0, 0}))
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidInputError for zero-sum weights, got %v", err)
	}

	_, err = ProportionalSplit(weighted([]string{"a", "b"}, []int64{5, -1}))
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidInputError for negative weight, got %v", err)
	}
}

func TestProportionalSplit_EmptyInput(t *testing.T) {
	allocations, err := ProportionalSplit(nil)
	if err != nil {
		t.Fatalf("ProportionalSplit: %v", err)
	}
	if len(allocations) != 0 {
		t.Fatalf("expected empty split, got %v", allocations)
	}
}

func TestAllocationAmounts_DerivedFromPercentages(t *testing.T) {
	amounts := AllocationAmounts(decimal.RequireFromString("104.5"), []NewAllocation{
		{TargetId: "a", Percentage: decimal.NewFromInt(60)},
		{TargetId: "b", Percentage: decimal.NewFromInt(40)},
	})
	if amounts[0].Amount.String() != "62.7" {
		t.Fatalf("expected 62.7 for 60%%, got %s", amounts[0].Amount)
	}
	if amounts[1].Amount.String() != "41.8" {
		t.Fatalf("expected 41.8 for 40%%, got %s", amounts[1].Amount)
	}
}

func TestValidateAllocations(t *testing.T) {
	ok := []NewAllocation{
		{TargetId: "a", Percentage: decimal.NewFromInt(60)},
		{TargetId: "b", Percentage: decimal.NewFromInt(40)},
	}
	if err := ValidateAllocations(ok); err != nil {
		t.Fatalf("valid set rejected: %v", err)
	}

	// Under-allocation is allowed; the remainder is simply unallocated.
	partial := []NewAllocation{{TargetId: "a", Percentage: decimal.NewFromInt(30)}}
	if err := ValidateAllocations(partial); err != nil {
		t.Fatalf("partial set rejected: %v", err)
	}

	// Empty set means "unallocated" and passes.
	if err := ValidateAllocations(nil); err != nil {
		t.Fatalf("empty set rejected: %v", err)
	}
}

func TestValidateAllocations_RejectsOverHundred(t *testing.T) {
	// The sum check is strict: 100.01 is an error, never clamped.
	over := []NewAllocation{
		{TargetId: "a", Percentage: decimal.NewFromInt(60)},
		{TargetId: "b", Percentage: decimal.RequireFromString("40.01")},
	}
	err := ValidateAllocations(over)
	var overAlloc *OverAllocationError
	if !errors.As(err, &overAlloc) {
		t.Fatalf("expected OverAllocationError, got %v", err)
	}
	if overAlloc.Sum.String() != "100.01" {
		t.Fatalf("expected reported sum 100.01, got %s", overAlloc.Sum)
	}

	exact := []NewAllocation{
		{TargetId: "a", Percentage: decimal.NewFromInt(60)},
		{TargetId: "b", Percentage: decimal.NewFromInt(40)},
	}
	if err := ValidateAllocations(exact); err != nil {
		t.Fatalf("sum of exactly 100 must pass: %v", err)
	}
}

func TestValidateAllocations_RejectsBadEntries(t *testing.T) {
	err := ValidateAllocations([]NewAllocation{
		{TargetId: "a", Percentage: decimal.NewFromInt(50)},
		{TargetId: "", Percentage: decimal.NewFromInt(50)},
	})
	var emptyTarget *EmptyTargetError
	if !errors.As(err, &emptyTarget) || emptyTarget.Position != 1 {
		t.Fatalf("expected EmptyTargetError at position 1, got %v", err)
	}

	var invalid *InvalidInputError
	err = ValidateAllocations([]NewAllocation{{TargetId: "a", Percentage: decimal.Zero}})
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidInputError for zero percentage, got %v", err)
	}

	err = ValidateAllocations([]NewAllocation{{TargetId: "a", Percentage: decimal.NewFromInt(101)}})
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidInputError for percentage over 100, got %v", err)
	}
}
