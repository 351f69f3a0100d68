package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
)

// DiscountType: P = percentage of subtotal, A = fixed amount.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "P"
	DiscountTypeAmount     DiscountType = "A"
)

func (t DiscountType) Value() (driver.Value, error) {
	return string(t), nil
}

func (t *DiscountType) Scan(v interface{}) error {
	return scanEnumString((*string)(t), v, "discount type")
}

// DepositType: P = percentage of the fully-taxed total, A = fixed amount.
type DepositType string

const (
	DepositTypePercentage DepositType = "P"
	DepositTypeAmount     DepositType = "A"
)

func (t DepositType) Value() (driver.Value, error) {
	return string(t), nil
}

func (t *DepositType) Scan(v interface{}) error {
	return scanEnumString((*string)(t), v, "deposit type")
}

type InvoiceStatus string

const (
	InvoiceStatusDraft       InvoiceStatus = "Draft"
	InvoiceStatusConfirmed   InvoiceStatus = "Confirmed"
	InvoiceStatusPartialPaid InvoiceStatus = "Partial Paid"
	InvoiceStatusPaid        InvoiceStatus = "Paid"
	InvoiceStatusVoid        InvoiceStatus = "Void"
)

type QuoteStatus string

const (
	QuoteStatusDraft     QuoteStatus = "Draft"
	QuoteStatusSent      QuoteStatus = "Sent"
	QuoteStatusAccepted  QuoteStatus = "Accepted"
	QuoteStatusDeclined  QuoteStatus = "Declined"
	QuoteStatusConverted QuoteStatus = "Converted"
)

// AllocationReferenceType names the document kind an allocation set belongs to.
type AllocationReferenceType string

const (
	AllocationReferenceTypeInvoice AllocationReferenceType = "Invoice"
	AllocationReferenceTypeExpense AllocationReferenceType = "Expense"
	AllocationReferenceTypePayment AllocationReferenceType = "Payment"
)

func ParseAllocationReferenceType(s string) (AllocationReferenceType, error) {
	switch strings.ToLower(s) {
	case "invoice", "invoices":
		return AllocationReferenceTypeInvoice, nil
	case "expense", "expenses":
		return AllocationReferenceTypeExpense, nil
	case "payment", "payments":
		return AllocationReferenceTypePayment, nil
	}
	return "", fmt.Errorf("invalid allocation reference type: %q", s)
}

// AllocationTargetType names the entity kind a percentage is assigned to.
type AllocationTargetType string

const (
	AllocationTargetTypeProject AllocationTargetType = "Project"
	AllocationTargetTypeService AllocationTargetType = "Service"
)

func scanEnumString(dest *string, v interface{}, what string) error {
	switch s := v.(type) {
	case string:
		*dest = s
	case []byte:
		*dest = string(s)
	default:
		return errors.New(what + " must be string")
	}
	return nil
}
