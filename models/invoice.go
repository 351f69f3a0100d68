package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quantabooks/crm_backend/config"
	"github.com/quantabooks/crm_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Invoice struct {
	ID               int                  `gorm:"primary_key" json:"id"`
	BusinessId       string               `gorm:"index;not null" json:"business_id" binding:"required"`
	CustomerId       int                  `gorm:"index;not null" json:"customer_id" binding:"required"`
	InvoiceNumber    string               `gorm:"size:255;not null" json:"invoice_number"`
	ReferenceNumber  string               `gorm:"size:255;default:null" json:"reference_number"`
	InvoiceDate      time.Time            `gorm:"not null" json:"invoice_date" binding:"required"`
	DueDate          *time.Time           `json:"due_date"`
	Notes            string               `gorm:"type:text;default:null" json:"notes"`
	DiscountType     *DiscountType        `gorm:"type:enum('P', 'A');default:null" json:"discount_type"`
	DiscountValue    decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"discount_value"`
	DiscountAmount   decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"discount_amount"`
	DepositType      *DepositType         `gorm:"type:enum('P', 'A');default:null" json:"deposit_type"`
	DepositValue     decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"deposit_value"`
	DepositAmount    decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"deposit_amount"`
	Subtotal         decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	ItemTaxTotal     decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"item_tax_total"`
	DocumentTaxTotal decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"document_tax_total"`
	TotalAmount      decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	TotalPaidAmount  decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"total_paid_amount"`
	RemainingBalance decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"remaining_balance"`
	CurrentStatus    InvoiceStatus        `gorm:"type:enum('Draft', 'Confirmed', 'Partial Paid', 'Paid', 'Void');not null" json:"current_status"`
	Details          []InvoiceDetail      `gorm:"foreignKey:InvoiceId" json:"details"`
	DocumentTaxes    []InvoiceDocumentTax `gorm:"foreignKey:InvoiceId" json:"document_taxes"`
	CreatedAt        time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

type InvoiceDetail struct {
	ID             int               `gorm:"primary_key" json:"id"`
	InvoiceId      int               `gorm:"index;not null" json:"invoice_id"`
	Name           string            `gorm:"size:255;not null" json:"name"`
	DetailQty      decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"detail_qty"`
	DetailUnitRate decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"detail_unit_rate"`
	DetailAmount   decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"detail_amount"`
	IsManualAmount *bool             `gorm:"not null;default:false" json:"is_manual_amount"`
	DetailTaxTotal decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"detail_tax_total"`
	SortOrder      int               `gorm:"default:0" json:"sort_order"`
	Taxes          []InvoiceDetailTax `gorm:"foreignKey:InvoiceDetailId" json:"taxes"`
	CreatedAt      time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type InvoiceDetailTax struct {
	ID              int             `gorm:"primary_key" json:"id"`
	InvoiceDetailId int             `gorm:"index;not null" json:"invoice_detail_id"`
	Name            string          `gorm:"size:100;not null" json:"name"`
	Rate            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"rate"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
}

type InvoiceDocumentTax struct {
	ID        int             `gorm:"primary_key" json:"id"`
	InvoiceId int             `gorm:"index;not null" json:"invoice_id"`
	Name      string          `gorm:"size:100;not null" json:"name"`
	Rate      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"rate"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
}

type NewInvoice struct {
	CustomerId      int              `json:"customer_id" binding:"required"`
	InvoiceNumber   string           `json:"invoice_number"`
	ReferenceNumber string           `json:"reference_number"`
	InvoiceDate     time.Time        `json:"invoice_date" binding:"required"`
	DueDate         *time.Time       `json:"due_date"`
	Notes           string           `json:"notes"`
	DiscountType    *DiscountType    `json:"discount_type"`
	DiscountValue   decimal.Decimal  `json:"discount_value"`
	DepositType     *DepositType     `json:"deposit_type"`
	DepositValue    decimal.Decimal  `json:"deposit_value"`
	Details         []NewLineItem    `json:"details" binding:"required"`
	DocumentTaxes   []NewDocumentTax `json:"document_taxes"`
	CurrentStatus   InvoiceStatus    `json:"current_status"`
}

func (input *NewInvoice) validate(ctx context.Context, businessId string, id int) error {
	if err := utils.ValidateResourceId[Customer](ctx, businessId, input.CustomerId); err != nil {
		return errors.New("customer not found")
	}
	if len(input.Details) == 0 {
		return errors.New("invoice requires at least one line item")
	}
	if input.InvoiceNumber != "" {
		if err := utils.ValidateUnique[Invoice](ctx, businessId, "invoice_number", input.InvoiceNumber, id); err != nil {
			return err
		}
	}
	return nil
}

// applyTotals recomputes every derived column of the invoice from its inputs.
// Derived columns are write-through snapshots of the pure calculation; they
// are never adjusted in place.
func (inv *Invoice) applyTotals(input *NewInvoice) error {
	items, err := BuildLineItems(input.Details)
	if err != nil {
		return err
	}

	totals, err := CalculateDocumentTotals(items,
		DiscountInput{Type: input.DiscountType, Value: input.DiscountValue},
		input.DocumentTaxes,
		DepositInput{Type: input.DepositType, Value: input.DepositValue},
	)
	if err != nil {
		return err
	}

	details := make([]InvoiceDetail, 0, len(items))
	for i, item := range items {
		detailTaxes := make([]InvoiceDetailTax, 0, len(item.Taxes))
		detailTaxTotal := decimal.Zero
		for _, tax := range item.Taxes {
			detailTaxes = append(detailTaxes, InvoiceDetailTax{Name: tax.Name, Rate: tax.Rate, Amount: tax.Amount})
			detailTaxTotal = detailTaxTotal.Add(tax.Amount)
		}
		manual := item.IsManualAmount
		details = append(details, InvoiceDetail{
			Name:           item.Name,
			DetailQty:      item.Qty,
			DetailUnitRate: item.UnitRate,
			DetailAmount:   item.Amount,
			IsManualAmount: &manual,
			DetailTaxTotal: detailTaxTotal,
			SortOrder:      i,
			Taxes:          detailTaxes,
		})
	}

	documentTaxes := make([]InvoiceDocumentTax, 0, len(totals.DocumentTaxes))
	for _, tax := range totals.DocumentTaxes {
		documentTaxes = append(documentTaxes, InvoiceDocumentTax{Name: tax.Name, Rate: tax.Rate, Amount: tax.Amount})
	}

	inv.DiscountType = input.DiscountType
	inv.DiscountValue = input.DiscountValue
	inv.DiscountAmount = totals.DiscountAmount
	inv.DepositType = input.DepositType
	inv.DepositValue = input.DepositValue
	inv.DepositAmount = totals.DepositAmount
	inv.Subtotal = totals.Subtotal
	inv.ItemTaxTotal = totals.ItemTaxTotal
	inv.DocumentTaxTotal = totals.DocumentTaxTotal
	inv.TotalAmount = totals.Total
	inv.RemainingBalance = totals.Total.Sub(inv.TotalPaidAmount)
	inv.Details = details
	inv.DocumentTaxes = documentTaxes
	return nil
}

func CreateInvoice(ctx context.Context, input *NewInvoice) (*Invoice, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	status := input.CurrentStatus
	if status == "" {
		status = InvoiceStatusDraft
	}

	invoice := Invoice{
		BusinessId:      businessId,
		CustomerId:      input.CustomerId,
		InvoiceNumber:   resolveDocumentNumber(input.InvoiceNumber, "INV"),
		ReferenceNumber: input.ReferenceNumber,
		InvoiceDate:     input.InvoiceDate,
		DueDate:         input.DueDate,
		Notes:           input.Notes,
		CurrentStatus:   status,
	}
	if err := invoice.applyTotals(input); err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// UpdateInvoice replaces the invoice's details and document taxes wholesale
// and recomputes all derived columns. Partial detail updates do not exist;
// the form always submits the full document.
func UpdateInvoice(ctx context.Context, id int, input *NewInvoice) (*Invoice, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	invoice, err := utils.FetchModel[Invoice](ctx, businessId, id, "Details", "DocumentTaxes")
	if err != nil {
		return nil, err
	}
	if invoice.CurrentStatus == InvoiceStatusVoid {
		return nil, errors.New("void invoice cannot be edited")
	}

	invoice.CustomerId = input.CustomerId
	invoice.ReferenceNumber = input.ReferenceNumber
	invoice.InvoiceDate = input.InvoiceDate
	invoice.DueDate = input.DueDate
	invoice.Notes = input.Notes
	if input.InvoiceNumber != "" {
		invoice.InvoiceNumber = input.InvoiceNumber
	}

	oldDetails := invoice.Details
	oldDocumentTaxes := invoice.DocumentTaxes
	if err := invoice.applyTotals(input); err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, detail := range oldDetails {
			if err := tx.Where("invoice_detail_id = ?", detail.ID).Delete(&InvoiceDetailTax{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("invoice_id = ?", invoice.ID).Delete(&InvoiceDetail{}).Error; err != nil {
			return err
		}
		if len(oldDocumentTaxes) > 0 {
			if err := tx.Where("invoice_id = ?", invoice.ID).Delete(&InvoiceDocumentTax{}).Error; err != nil {
				return err
			}
		}
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(invoice).Error
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func GetInvoice(ctx context.Context, id int) (*Invoice, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Invoice](ctx, businessId, id, "Details", "Details.Taxes", "DocumentTaxes")
}

func GetInvoices(ctx context.Context, customerId *int) ([]*Invoice, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if customerId != nil {
		dbCtx = dbCtx.Where("customer_id = ?", *customerId)
	}
	var invoices []*Invoice
	err := dbCtx.Preload("Details").Preload("Details.Taxes").Preload("DocumentTaxes").
		Order("invoice_date DESC").Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func VoidInvoice(ctx context.Context, id int) (*Invoice, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	invoice, err := utils.FetchModel[Invoice](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if invoice.TotalPaidAmount.GreaterThan(decimal.Zero) {
		return nil, errors.New("invoice with recorded payments cannot be voided")
	}

	invoice.CurrentStatus = InvoiceStatusVoid
	db := config.GetDB()
	if err := db.WithContext(ctx).Save(invoice).Error; err != nil {
		return nil, err
	}
	return invoice, nil
}

// recordPayment moves the invoice's paid totals and status. Callers persist.
func (inv *Invoice) recordPayment(amount decimal.Decimal) error {
	if !amount.GreaterThan(decimal.Zero) {
		return &InvalidInputError{Field: "amount", Reason: "must be greater than 0"}
	}
	if amount.GreaterThan(inv.RemainingBalance) {
		return errors.New("payment exceeds remaining balance")
	}
	inv.TotalPaidAmount = inv.TotalPaidAmount.Add(amount)
	inv.RemainingBalance = inv.RemainingBalance.Sub(amount)
	if inv.RemainingBalance.IsZero() {
		inv.CurrentStatus = InvoiceStatusPaid
	} else {
		inv.CurrentStatus = InvoiceStatusPartialPaid
	}
	return nil
}

// reversePayment backs a payment out of the invoice totals. Callers persist.
func (inv *Invoice) reversePayment(amount decimal.Decimal) error {
	remaining := inv.TotalPaidAmount.Sub(amount)
	if remaining.IsNegative() {
		return errors.New("resulting invoice total paid amount cannot be negative")
	}
	inv.TotalPaidAmount = remaining
	inv.RemainingBalance = inv.RemainingBalance.Add(amount)
	if remaining.GreaterThan(decimal.Zero) {
		inv.CurrentStatus = InvoiceStatusPartialPaid
	} else {
		inv.CurrentStatus = InvoiceStatusConfirmed
	}
	return nil
}

func resolveDocumentNumber(provided string, prefix string) string {
	if strings.TrimSpace(provided) != "" {
		return provided
	}
	return prefix + "-" + strings.ToUpper(uuid.NewString()[:8])
}
