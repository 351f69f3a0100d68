package utils

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRoundCurrency_HalfAwayFromZero(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"2.344", "2.34"},
		{"2.345", "2.35"},
		{"2.355", "2.36"},
		{"-2.345", "-2.35"},
		{"100", "100"},
		{"0.005", "0.01"},
	}
	for _, tc := range cases {
		d := decimal.RequireFromString(tc.in)
		got := RoundCurrency(d)
		if got.String() != tc.expected {
			t.Fatalf("RoundCurrency(%s) expected %s, got %s", tc.in, tc.expected, got.String())
		}
	}
}

func TestPercentageAmount(t *testing.T) {
	cases := []struct {
		base     string
		rate     string
		expected string
	}{
		{"100", "7.5", "7.5"},
		{"33.33", "10", "3.33"},
		{"90", "5", "4.5"},
		{"104.5", "60", "62.7"},
		{"104.5", "40", "41.8"},
	}
	for _, tc := range cases {
		got := PercentageAmount(decimal.RequireFromString(tc.base), decimal.RequireFromString(tc.rate))
		if got.String() != tc.expected {
			t.Fatalf("PercentageAmount(%s, %s) expected %s, got %s", tc.base, tc.rate, tc.expected, got.String())
		}
	}
}

func TestCalculateDiscountAmount(t *testing.T) {
	subtotal := decimal.NewFromInt(200)

	if got := CalculateDiscountAmount(subtotal, decimal.NewFromInt(10), "P"); !got.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("10%% of 200 expected 20, got %s", got)
	}
	if got := CalculateDiscountAmount(subtotal, decimal.NewFromInt(50), "A"); !got.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("fixed 50 expected 50, got %s", got)
	}
	// A fixed discount larger than the subtotal is clamped, never negative.
	if got := CalculateDiscountAmount(subtotal, decimal.NewFromInt(300), "A"); !got.Equal(subtotal) {
		t.Fatalf("fixed 300 on 200 expected clamp to 200, got %s", got)
	}
	if got := CalculateDiscountAmount(subtotal, decimal.Zero, "P"); !got.IsZero() {
		t.Fatalf("zero discount expected 0, got %s", got)
	}
	if got := CalculateDiscountAmount(subtotal, decimal.NewFromInt(-5), "A"); !got.IsZero() {
		t.Fatalf("negative discount expected 0, got %s", got)
	}
}
