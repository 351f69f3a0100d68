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

// Payment records money received against one invoice. Its amount may be
// allocated across projects by percentage, same as expenses.
type Payment struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index;not null" json:"business_id" binding:"required"`
	InvoiceId       int             `gorm:"index;not null" json:"invoice_id" binding:"required"`
	PaymentNumber   string          `gorm:"size:255;not null" json:"payment_number"`
	PaymentDate     time.Time       `gorm:"not null" json:"payment_date" binding:"required"`
	ReferenceNumber string          `gorm:"size:255" json:"reference_number"`
	Notes           string          `gorm:"type:text" json:"notes"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPayment struct {
	InvoiceId       int             `json:"invoice_id" binding:"required"`
	PaymentNumber   string          `json:"payment_number"`
	PaymentDate     time.Time       `json:"payment_date" binding:"required"`
	ReferenceNumber string          `json:"reference_number"`
	Notes           string          `json:"notes"`
	Amount          decimal.Decimal `json:"amount" binding:"required"`
	Allocations     []NewAllocation `json:"allocations"`
}

func CreatePayment(ctx context.Context, input *NewPayment) (*Payment, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := ValidateAllocations(input.Allocations); err != nil {
		return nil, err
	}
	if err := ValidateAllocationTargets(ctx, businessId, input.Allocations); err != nil {
		return nil, err
	}

	invoice, err := utils.FetchModel[Invoice](ctx, businessId, input.InvoiceId)
	if err != nil {
		return nil, errors.New("invoice not found")
	}
	if invoice.CurrentStatus == InvoiceStatusVoid {
		return nil, errors.New("void invoice cannot receive payments")
	}

	amount := utils.RoundCurrency(input.Amount)
	if err := invoice.recordPayment(amount); err != nil {
		return nil, err
	}

	payment := Payment{
		BusinessId:      businessId,
		InvoiceId:       input.InvoiceId,
		PaymentNumber:   resolveDocumentNumber(input.PaymentNumber, "PAY"),
		PaymentDate:     input.PaymentDate,
		ReferenceNumber: input.ReferenceNumber,
		Notes:           input.Notes,
		Amount:          amount,
	}

	// Payment row, invoice paid totals, and allocation rows commit together.
	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}
		if err := tx.Model(&Invoice{}).Where("id = ?", invoice.ID).Updates(map[string]interface{}{
			"total_paid_amount": invoice.TotalPaidAmount,
			"remaining_balance": invoice.RemainingBalance,
			"current_status":    invoice.CurrentStatus,
		}).Error; err != nil {
			return err
		}
		if len(input.Allocations) == 0 {
			return nil
		}
		_, err := replaceAllocationsInTx(tx, businessId, AllocationReferenceTypePayment, payment.ID, input.Allocations)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func DeletePayment(ctx context.Context, id int) (*Payment, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	payment, err := utils.FetchModel[Payment](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	invoice, err := utils.FetchModel[Invoice](ctx, businessId, payment.InvoiceId)
	if err != nil {
		return nil, errors.New("invoice not found")
	}
	if err := invoice.reversePayment(payment.Amount); err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("business_id = ? AND reference_type = ? AND reference_id = ?",
			businessId, AllocationReferenceTypePayment, payment.ID).Delete(&Allocation{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(payment).Error; err != nil {
			return err
		}
		return tx.Model(&Invoice{}).Where("id = ?", invoice.ID).Updates(map[string]interface{}{
			"total_paid_amount": invoice.TotalPaidAmount,
			"remaining_balance": invoice.RemainingBalance,
			"current_status":    invoice.CurrentStatus,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

func GetPayment(ctx context.Context, id int) (*Payment, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Payment](ctx, businessId, id)
}

func GetPayments(ctx context.Context, invoiceId *int) ([]*Payment, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if invoiceId != nil {
		dbCtx = dbCtx.Where("invoice_id = ?", *invoiceId)
	}
	var payments []*Payment
	if err := dbCtx.Order("payment_date DESC").Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}
