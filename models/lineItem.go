package models

import (
	"github.com/quantabooks/crm_backend/utils"
	"github.com/shopspring/decimal"
)

// LineItem is the calculation-side view of one document line. Amount is
// derived from Qty x UnitRate unless the line is in manual-amount mode
// (a user override for odd cases like bundled pricing). Tax amounts are
// always derived from the current Amount; they are never carried over from
// an earlier computation.
type LineItem struct {
	Name           string          `json:"name"`
	Qty            decimal.Decimal `json:"qty"`
	UnitRate       decimal.Decimal `json:"unit_rate"`
	Amount         decimal.Decimal `json:"amount"`
	IsManualAmount bool            `json:"is_manual_amount"`
	Taxes          []ItemTax       `json:"taxes"`
}

type ItemTax struct {
	Name   string          `json:"name"`
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
}

// Inputs as they come from forms. Amount, when set, switches the line to
// manual-amount mode.
type NewLineItem struct {
	Name     string           `json:"name"`
	Qty      decimal.Decimal  `json:"qty"`
	UnitRate decimal.Decimal  `json:"unit_rate"`
	Amount   *decimal.Decimal `json:"amount"`
	Taxes    []NewItemTax     `json:"taxes"`
}

type NewItemTax struct {
	Name string          `json:"name" binding:"required"`
	Rate decimal.Decimal `json:"rate"`
}

// CalculateLineAmount derives a line amount from quantity and unit rate,
// rounded to currency precision.
func CalculateLineAmount(qty decimal.Decimal, unitRate decimal.Decimal) (decimal.Decimal, error) {
	if qty.IsNegative() {
		return decimal.Zero, &InvalidInputError{Field: "qty", Reason: "must not be negative"}
	}
	if unitRate.IsNegative() {
		return decimal.Zero, &InvalidInputError{Field: "unit_rate", Reason: "must not be negative"}
	}
	return utils.RoundCurrency(qty.Mul(unitRate)), nil
}

// CalculateItemTaxes derives per-line tax amounts from the line amount.
// Each rate must be within [0, 100].
func CalculateItemTaxes(amount decimal.Decimal, taxes []NewItemTax) ([]ItemTax, error) {
	if len(taxes) == 0 {
		return nil, nil
	}
	result := make([]ItemTax, 0, len(taxes))
	for _, tax := range taxes {
		if tax.Rate.IsNegative() || tax.Rate.GreaterThan(decimal.NewFromInt(100)) {
			return nil, &InvalidInputError{Field: "tax rate", Reason: "must be between 0 and 100"}
		}
		result = append(result, ItemTax{
			Name:   tax.Name,
			Rate:   tax.Rate,
			Amount: utils.PercentageAmount(amount, tax.Rate),
		})
	}
	return result, nil
}

// BuildLineItem resolves one form input into a calculated line. A populated
// Amount puts the line into manual-amount mode; the derived amount is used
// otherwise. Taxes are computed from whichever amount won.
func BuildLineItem(input NewLineItem) (*LineItem, error) {
	derived, err := CalculateLineAmount(input.Qty, input.UnitRate)
	if err != nil {
		return nil, err
	}

	item := LineItem{
		Name:     input.Name,
		Qty:      input.Qty,
		UnitRate: input.UnitRate,
		Amount:   derived,
	}
	if input.Amount != nil {
		if input.Amount.IsNegative() {
			return nil, &InvalidInputError{Field: "amount", Reason: "must not be negative"}
		}
		item.Amount = utils.RoundCurrency(*input.Amount)
		item.IsManualAmount = true
	}

	taxes, err := CalculateItemTaxes(item.Amount, input.Taxes)
	if err != nil {
		return nil, err
	}
	item.Taxes = taxes
	return &item, nil
}

// BuildLineItems resolves a full form into calculated lines, preserving order.
func BuildLineItems(inputs []NewLineItem) ([]LineItem, error) {
	items := make([]LineItem, 0, len(inputs))
	for _, input := range inputs {
		item, err := BuildLineItem(input)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, nil
}

// Recalculate rederives Amount (unless the line is in manual-amount mode) and
// then rederives every tax amount from the current Amount. Callers must invoke
// this after changing Qty, UnitRate or the tax list; stale tax amounts are
// recomputed, not reused.
func (item *LineItem) Recalculate() error {
	if !item.IsManualAmount {
		amount, err := CalculateLineAmount(item.Qty, item.UnitRate)
		if err != nil {
			return err
		}
		item.Amount = amount
	}

	taxes, err := CalculateItemTaxes(item.Amount, taxRateInputs(item.Taxes))
	if err != nil {
		return err
	}
	item.Taxes = taxes
	return nil
}

// ItemTaxTotal sums the per-line tax amounts across all lines.
func ItemTaxTotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		for _, tax := range item.Taxes {
			total = total.Add(tax.Amount)
		}
	}
	return total
}

func taxRateInputs(taxes []ItemTax) []NewItemTax {
	inputs := make([]NewItemTax, 0, len(taxes))
	for _, tax := range taxes {
		inputs = append(inputs, NewItemTax{Name: tax.Name, Rate: tax.Rate})
	}
	return inputs
}
