package models

import (
	"github.com/quantabooks/crm_backend/utils"
	"github.com/shopspring/decimal"
)

// DiscountInput is a document-level discount. Type must be explicit whenever
// Value is non-zero; it is never inferred from which form field happens to be
// populated.
type DiscountInput struct {
	Type  *DiscountType   `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// DepositInput is an informational deposit requested on the document total.
// A nil Type or zero Value means no deposit.
type DepositInput struct {
	Type  *DepositType    `json:"type"`
	Value decimal.Decimal `json:"value"`
}

type NewDocumentTax struct {
	Name string          `json:"name" binding:"required"`
	Rate decimal.Decimal `json:"rate"`
}

type DocumentTax struct {
	Name   string          `json:"name"`
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
}

// DocumentTotals is the single derived result for a document. Every field is a
// pure function of the inputs; nothing here is independently settable.
type DocumentTotals struct {
	Subtotal         decimal.Decimal `json:"subtotal"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	ItemTaxTotal     decimal.Decimal `json:"item_tax_total"`
	DocumentTaxes    []DocumentTax   `json:"document_taxes"`
	DocumentTaxTotal decimal.Decimal `json:"document_tax_total"`
	Total            decimal.Decimal `json:"total"`
	DepositAmount    decimal.Decimal `json:"deposit_amount"`
}

// CalculateDocumentTotals composes line amounts, item taxes, the document
// discount, document taxes and the deposit into one DocumentTotals.
//
// The ordering is a fixed contract:
//  1. subtotal = sum of line amounts
//  2. discount applies to the subtotal
//  3. each document tax applies independently to the post-discount subtotal
//     (document taxes are never compounded on each other)
//  4. total = postDiscountSubtotal + documentTaxTotal + itemTaxTotal
//
// Item tax rides on top of the total untouched by the discount. The function
// is pure and idempotent; identical inputs produce identical output.
func CalculateDocumentTotals(items []LineItem, discount DiscountInput, docTaxes []NewDocumentTax, deposit DepositInput) (*DocumentTotals, error) {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Amount)
	}
	itemTaxTotal := ItemTaxTotal(items)

	discountAmount, err := resolveDiscount(subtotal, discount)
	if err != nil {
		return nil, err
	}
	postDiscountSubtotal := subtotal.Sub(discountAmount)

	documentTaxes := make([]DocumentTax, 0, len(docTaxes))
	documentTaxTotal := decimal.Zero
	for _, tax := range docTaxes {
		if tax.Rate.IsNegative() || tax.Rate.GreaterThan(decimal.NewFromInt(100)) {
			return nil, &InvalidInputError{Field: "document tax rate", Reason: "must be between 0 and 100"}
		}
		amount := utils.PercentageAmount(postDiscountSubtotal, tax.Rate)
		documentTaxes = append(documentTaxes, DocumentTax{Name: tax.Name, Rate: tax.Rate, Amount: amount})
		documentTaxTotal = documentTaxTotal.Add(amount)
	}

	total := postDiscountSubtotal.Add(documentTaxTotal).Add(itemTaxTotal)

	depositAmount, err := CalculateDepositAmount(total, deposit)
	if err != nil {
		return nil, err
	}

	return &DocumentTotals{
		Subtotal:         subtotal,
		DiscountAmount:   discountAmount,
		ItemTaxTotal:     itemTaxTotal,
		DocumentTaxes:    documentTaxes,
		DocumentTaxTotal: documentTaxTotal,
		Total:            total,
		DepositAmount:    depositAmount,
	}, nil
}

// CalculateDepositAmount derives the deposit from the fully-taxed total.
// The deposit is informational only: it is clamped at the total and never
// subtracted from it.
func CalculateDepositAmount(total decimal.Decimal, deposit DepositInput) (decimal.Decimal, error) {
	if deposit.Value.IsNegative() {
		return decimal.Zero, &InvalidInputError{Field: "deposit value", Reason: "must not be negative"}
	}
	if deposit.Type == nil || deposit.Value.IsZero() {
		return decimal.Zero, nil
	}

	var amount decimal.Decimal
	switch *deposit.Type {
	case DepositTypePercentage:
		amount = utils.PercentageAmount(total, deposit.Value)
	case DepositTypeAmount:
		amount = deposit.Value
	default:
		return decimal.Zero, &InvalidInputError{Field: "deposit type", Reason: "must be P or A"}
	}

	if amount.GreaterThan(total) {
		amount = total
	}
	return amount, nil
}

func resolveDiscount(subtotal decimal.Decimal, discount DiscountInput) (decimal.Decimal, error) {
	if discount.Value.IsNegative() {
		return decimal.Zero, &InvalidInputError{Field: "discount value", Reason: "must not be negative"}
	}
	if discount.Value.IsZero() {
		return decimal.Zero, nil
	}
	// An explicit type is required for a non-zero discount; guessing from
	// which field is populated is ambiguous when both are present.
	if discount.Type == nil {
		return decimal.Zero, &InvalidInputError{Field: "discount type", Reason: "required when discount value is set"}
	}
	switch *discount.Type {
	case DiscountTypePercentage, DiscountTypeAmount:
	default:
		return decimal.Zero, &InvalidInputError{Field: "discount type", Reason: "must be P or A"}
	}
	return utils.CalculateDiscountAmount(subtotal, discount.Value, string(*discount.Type)), nil
}
