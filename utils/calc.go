package utils

import (
	"github.com/shopspring/decimal"
)

// CurrencyScale is the precision every derived monetary amount is rounded to.
const CurrencyScale = 2

var decimalOneHundred = decimal.NewFromInt(100)

// RoundCurrency rounds a derived amount to currency precision. All rate-based
// math (taxes, percentage discounts, deposits, allocation amounts) goes through
// this so that recomputing from the same inputs always yields the same bytes.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyScale)
}

// PercentageAmount returns base * rate / 100 rounded to currency precision.
func PercentageAmount(base decimal.Decimal, rate decimal.Decimal) decimal.Decimal {
	return RoundCurrency(base.Mul(rate).Div(decimalOneHundred))
}

// CalculateDiscountAmount computes a document-level discount against a subtotal.
// discountType "P" treats discount as a percentage of subtotal; "A" treats it
// as a fixed amount, clamped at subtotal so the post-discount subtotal can
// never be negative.
func CalculateDiscountAmount(subTotal decimal.Decimal, discount decimal.Decimal, discountType string) decimal.Decimal {
	if !discount.GreaterThan(decimal.Zero) {
		return decimal.Zero
	}

	var discountAmount decimal.Decimal
	if discountType == "P" {
		discountAmount = PercentageAmount(subTotal, discount)
	} else {
		discountAmount = discount
	}

	if discountAmount.GreaterThan(subTotal) {
		discountAmount = subTotal
	}
	return discountAmount
}
