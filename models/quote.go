package models

import (
	"context"
	"errors"
	"time"

	"github.com/quantabooks/crm_backend/config"
	"github.com/quantabooks/crm_backend/utils"
	"github.com/shopspring/decimal"
)

// Quote shares the invoice's calculation pipeline. It carries no payment
// state; accepting a quote converts it into a draft invoice.
type Quote struct {
	ID               int                `gorm:"primary_key" json:"id"`
	BusinessId       string             `gorm:"index;not null" json:"business_id" binding:"required"`
	CustomerId       int                `gorm:"index;not null" json:"customer_id" binding:"required"`
	QuoteNumber      string             `gorm:"size:255;not null" json:"quote_number"`
	QuoteDate        time.Time          `gorm:"not null" json:"quote_date" binding:"required"`
	ExpiryDate       *time.Time         `json:"expiry_date"`
	Notes            string             `gorm:"type:text;default:null" json:"notes"`
	DiscountType     *DiscountType      `gorm:"type:enum('P', 'A');default:null" json:"discount_type"`
	DiscountValue    decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"discount_value"`
	DiscountAmount   decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"discount_amount"`
	DepositType      *DepositType       `gorm:"type:enum('P', 'A');default:null" json:"deposit_type"`
	DepositValue     decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"deposit_value"`
	DepositAmount    decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"deposit_amount"`
	Subtotal         decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	ItemTaxTotal     decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"item_tax_total"`
	DocumentTaxTotal decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"document_tax_total"`
	TotalAmount      decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	CurrentStatus    QuoteStatus        `gorm:"type:enum('Draft', 'Sent', 'Accepted', 'Declined', 'Converted');not null" json:"current_status"`
	InvoiceId        int                `gorm:"default:null" json:"invoice_id"`
	Details          []QuoteDetail      `gorm:"foreignKey:QuoteId" json:"details"`
	DocumentTaxes    []QuoteDocumentTax `gorm:"foreignKey:QuoteId" json:"document_taxes"`
	CreatedAt        time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type QuoteDetail struct {
	ID             int              `gorm:"primary_key" json:"id"`
	QuoteId        int              `gorm:"index;not null" json:"quote_id"`
	Name           string           `gorm:"size:255;not null" json:"name"`
	DetailQty      decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"detail_qty"`
	DetailUnitRate decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"detail_unit_rate"`
	DetailAmount   decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"detail_amount"`
	IsManualAmount *bool            `gorm:"not null;default:false" json:"is_manual_amount"`
	DetailTaxTotal decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"detail_tax_total"`
	SortOrder      int              `gorm:"default:0" json:"sort_order"`
	Taxes          []QuoteDetailTax `gorm:"foreignKey:QuoteDetailId" json:"taxes"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type QuoteDetailTax struct {
	ID            int             `gorm:"primary_key" json:"id"`
	QuoteDetailId int             `gorm:"index;not null" json:"quote_detail_id"`
	Name          string          `gorm:"size:100;not null" json:"name"`
	Rate          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"rate"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
}

type QuoteDocumentTax struct {
	ID      int             `gorm:"primary_key" json:"id"`
	QuoteId int             `gorm:"index;not null" json:"quote_id"`
	Name    string          `gorm:"size:100;not null" json:"name"`
	Rate    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"rate"`
	Amount  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
}

type NewQuote struct {
	CustomerId    int              `json:"customer_id" binding:"required"`
	QuoteNumber   string           `json:"quote_number"`
	QuoteDate     time.Time        `json:"quote_date" binding:"required"`
	ExpiryDate    *time.Time       `json:"expiry_date"`
	Notes         string           `json:"notes"`
	DiscountType  *DiscountType    `json:"discount_type"`
	DiscountValue decimal.Decimal  `json:"discount_value"`
	DepositType   *DepositType     `json:"deposit_type"`
	DepositValue  decimal.Decimal  `json:"deposit_value"`
	Details       []NewLineItem    `json:"details" binding:"required"`
	DocumentTaxes []NewDocumentTax `json:"document_taxes"`
}

func (input *NewQuote) validate(ctx context.Context, businessId string) error {
	if err := utils.ValidateResourceId[Customer](ctx, businessId, input.CustomerId); err != nil {
		return errors.New("customer not found")
	}
	if len(input.Details) == 0 {
		return errors.New("quote requires at least one line item")
	}
	return nil
}

func (q *Quote) applyTotals(input *NewQuote) error {
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

	details := make([]QuoteDetail, 0, len(items))
	for i, item := range items {
		detailTaxes := make([]QuoteDetailTax, 0, len(item.Taxes))
		detailTaxTotal := decimal.Zero
		for _, tax := range item.Taxes {
			detailTaxes = append(detailTaxes, QuoteDetailTax{Name: tax.Name, Rate: tax.Rate, Amount: tax.Amount})
			detailTaxTotal = detailTaxTotal.Add(tax.Amount)
		}
		manual := item.IsManualAmount
		details = append(details, QuoteDetail{
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

	documentTaxes := make([]QuoteDocumentTax, 0, len(totals.DocumentTaxes))
	for _, tax := range totals.DocumentTaxes {
		documentTaxes = append(documentTaxes, QuoteDocumentTax{Name: tax.Name, Rate: tax.Rate, Amount: tax.Amount})
	}

	q.DiscountType = input.DiscountType
	q.DiscountValue = input.DiscountValue
	q.DiscountAmount = totals.DiscountAmount
	q.DepositType = input.DepositType
	q.DepositValue = input.DepositValue
	q.DepositAmount = totals.DepositAmount
	q.Subtotal = totals.Subtotal
	q.ItemTaxTotal = totals.ItemTaxTotal
	q.DocumentTaxTotal = totals.DocumentTaxTotal
	q.TotalAmount = totals.Total
	q.Details = details
	q.DocumentTaxes = documentTaxes
	return nil
}

func CreateQuote(ctx context.Context, input *NewQuote) (*Quote, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	quote := Quote{
		BusinessId:    businessId,
		CustomerId:    input.CustomerId,
		QuoteNumber:   resolveDocumentNumber(input.QuoteNumber, "QT"),
		QuoteDate:     input.QuoteDate,
		ExpiryDate:    input.ExpiryDate,
		Notes:         input.Notes,
		CurrentStatus: QuoteStatusDraft,
	}
	if err := quote.applyTotals(input); err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&quote).Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

func GetQuote(ctx context.Context, id int) (*Quote, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Quote](ctx, businessId, id, "Details", "Details.Taxes", "DocumentTaxes")
}

func GetQuotes(ctx context.Context) ([]*Quote, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchAllModels[Quote](ctx, businessId, "Details", "Details.Taxes", "DocumentTaxes")
}

// ConvertQuoteToInvoice creates a draft invoice from an accepted quote's
// current lines and marks the quote converted. The invoice totals are
// recomputed through the same pipeline, not copied, so a stale quote row can
// never smuggle totals into an invoice.
func ConvertQuoteToInvoice(ctx context.Context, id int) (*Invoice, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	quote, err := utils.FetchModel[Quote](ctx, businessId, id, "Details", "Details.Taxes", "DocumentTaxes")
	if err != nil {
		return nil, err
	}
	if quote.CurrentStatus == QuoteStatusConverted {
		return nil, errors.New("quote already converted")
	}
	if quote.CurrentStatus == QuoteStatusDeclined {
		return nil, errors.New("declined quote cannot be converted")
	}

	details := make([]NewLineItem, 0, len(quote.Details))
	for _, detail := range quote.Details {
		taxes := make([]NewItemTax, 0, len(detail.Taxes))
		for _, tax := range detail.Taxes {
			taxes = append(taxes, NewItemTax{Name: tax.Name, Rate: tax.Rate})
		}
		item := NewLineItem{
			Name:     detail.Name,
			Qty:      detail.DetailQty,
			UnitRate: detail.DetailUnitRate,
			Taxes:    taxes,
		}
		if utils.DereferencePtr(detail.IsManualAmount) {
			amount := detail.DetailAmount
			item.Amount = &amount
		}
		details = append(details, item)
	}

	documentTaxes := make([]NewDocumentTax, 0, len(quote.DocumentTaxes))
	for _, tax := range quote.DocumentTaxes {
		documentTaxes = append(documentTaxes, NewDocumentTax{Name: tax.Name, Rate: tax.Rate})
	}

	invoice, err := CreateInvoice(ctx, &NewInvoice{
		CustomerId:      quote.CustomerId,
		ReferenceNumber: quote.QuoteNumber,
		InvoiceDate:     time.Now().UTC(),
		Notes:           quote.Notes,
		DiscountType:    quote.DiscountType,
		DiscountValue:   quote.DiscountValue,
		DepositType:     quote.DepositType,
		DepositValue:    quote.DepositValue,
		Details:         details,
		DocumentTaxes:   documentTaxes,
	})
	if err != nil {
		return nil, err
	}

	quote.CurrentStatus = QuoteStatusConverted
	quote.InvoiceId = invoice.ID
	db := config.GetDB()
	if err := db.WithContext(ctx).Save(quote).Error; err != nil {
		return nil, err
	}
	return invoice, nil
}
