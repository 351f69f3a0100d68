package models

import (
	"context"
	"errors"
	"time"

	"github.com/quantabooks/crm_backend/config"
	"github.com/quantabooks/crm_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Expense is a single-amount document: one base amount, an optional tax, and
// an allocation of the total across projects.
type Expense struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index;not null" json:"business_id" binding:"required"`
	ExpenseNumber   string          `gorm:"size:255;not null" json:"expense_number"`
	ExpenseDate     time.Time       `gorm:"not null" json:"expense_date" binding:"required"`
	ReferenceNumber string          `gorm:"size:255" json:"reference_number"`
	Notes           string          `gorm:"type:text" json:"notes"`
	SupplierName    string          `gorm:"size:255" json:"supplier_name"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	TaxName         string          `gorm:"size:100" json:"tax_name"`
	TaxRate         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_rate"`
	TaxAmount       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_amount"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewExpense struct {
	ExpenseNumber   string          `json:"expense_number"`
	ExpenseDate     time.Time       `json:"expense_date" binding:"required"`
	ReferenceNumber string          `json:"reference_number"`
	Notes           string          `json:"notes"`
	SupplierName    string          `json:"supplier_name"`
	Amount          decimal.Decimal `json:"amount" binding:"required"`
	TaxName         string          `json:"tax_name"`
	TaxRate         decimal.Decimal `json:"tax_rate"`
	Allocations     []NewAllocation `json:"allocations"`
}

func (input *NewExpense) validate(ctx context.Context, businessId string) error {
	if input.Amount.IsNegative() {
		return &InvalidInputError{Field: "amount", Reason: "must not be negative"}
	}
	if input.TaxRate.IsNegative() || input.TaxRate.GreaterThan(decimal.NewFromInt(100)) {
		return &InvalidInputError{Field: "tax_rate", Reason: "must be between 0 and 100"}
	}
	if err := ValidateAllocations(input.Allocations); err != nil {
		return err
	}
	return ValidateAllocationTargets(ctx, businessId, input.Allocations)
}

// applyTotals recomputes the derived tax and total columns from the inputs.
func (e *Expense) applyTotals(input *NewExpense) {
	e.Amount = utils.RoundCurrency(input.Amount)
	e.TaxName = input.TaxName
	e.TaxRate = input.TaxRate
	e.TaxAmount = utils.PercentageAmount(e.Amount, input.TaxRate)
	e.TotalAmount = e.Amount.Add(e.TaxAmount)
}

func CreateExpense(ctx context.Context, input *NewExpense) (*Expense, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	expense := Expense{
		BusinessId:      businessId,
		ExpenseNumber:   resolveDocumentNumber(input.ExpenseNumber, "EXP"),
		ExpenseDate:     input.ExpenseDate,
		ReferenceNumber: input.ReferenceNumber,
		Notes:           input.Notes,
		SupplierName:    input.SupplierName,
	}
	expense.applyTotals(input)

	// Document and allocation rows commit together; an allocation failure
	// must not strand an expense with no allocation set.
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&expense).Error; err != nil {
			return err
		}
		if len(input.Allocations) == 0 {
			return nil
		}
		_, err := replaceAllocationsInTx(tx, businessId, AllocationReferenceTypeExpense, expense.ID, input.Allocations)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &expense, nil
}

func UpdateExpense(ctx context.Context, id int, input *NewExpense) (*Expense, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	expense, err := utils.FetchModel[Expense](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	expense.ExpenseDate = input.ExpenseDate
	expense.ReferenceNumber = input.ReferenceNumber
	expense.Notes = input.Notes
	expense.SupplierName = input.SupplierName
	if input.ExpenseNumber != "" {
		expense.ExpenseNumber = input.ExpenseNumber
	}
	expense.applyTotals(input)

	// The allocation set is always rewritten wholesale alongside the document,
	// in the same transaction.
	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(expense).Error; err != nil {
			return err
		}
		_, err := replaceAllocationsInTx(tx, businessId, AllocationReferenceTypeExpense, expense.ID, input.Allocations)
		return err
	})
	if err != nil {
		return nil, err
	}
	return expense, nil
}

func GetExpense(ctx context.Context, id int) (*Expense, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Expense](ctx, businessId, id)
}

func GetExpenses(ctx context.Context) ([]*Expense, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchAllModels[Expense](ctx, businessId)
}

func DeleteExpense(ctx context.Context, id int) (*Expense, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	expense, err := utils.FetchModel[Expense](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("business_id = ? AND reference_type = ? AND reference_id = ?",
			businessId, AllocationReferenceTypeExpense, expense.ID).Delete(&Allocation{}).Error; err != nil {
			return err
		}
		return tx.Delete(expense).Error
	})
	if err != nil {
		return nil, err
	}
	return expense, nil
}
