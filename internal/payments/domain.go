// Package payments records payments and receipts, allocates them to invoices
// and routes overpayments.
package payments

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-billing/internal/documents"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

// Payment is money received against an invoice.
type Payment struct {
	ID              string          `json:"id"`
	CompanyID       string          `json:"company_id"`
	InvoiceID       string          `json:"invoice_id"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentMethod   string          `json:"payment_method"`
	PaymentDate     time.Time       `json:"payment_date"`
	ReferenceNumber *string         `json:"reference_number,omitempty"`
	CreatedBy       *string         `json:"created_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Allocation assigns part of a payment to an invoice.
type Allocation struct {
	ID        string          `json:"id"`
	CompanyID string          `json:"company_id"`
	PaymentID string          `json:"payment_id"`
	InvoiceID string          `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// ExcessHandling names where an overpayment goes.
type ExcessHandling string

const (
	HandlingNone          ExcessHandling = "none"
	HandlingPending       ExcessHandling = "pending"
	HandlingCreditBalance ExcessHandling = "credit_balance"
	HandlingChangeNote    ExcessHandling = "change_note"
)

// Valid reports whether h can be requested by a caller.
func (h ExcessHandling) Valid() bool {
	switch h {
	case HandlingPending, HandlingCreditBalance, HandlingChangeNote:
		return true
	}
	return false
}

// Receipt acknowledges a payment and records its excess.
type Receipt struct {
	ID             string          `json:"id"`
	CompanyID      string          `json:"company_id"`
	CustomerID     string          `json:"customer_id"`
	PaymentID      string          `json:"payment_id"`
	InvoiceID      string          `json:"invoice_id"`
	ReceiptNumber  string          `json:"receipt_number"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	ExcessAmount   decimal.Decimal `json:"excess_amount"`
	ExcessHandling ExcessHandling  `json:"excess_handling"`
	ChangeNoteID   *string         `json:"change_note_id,omitempty"`
	CreatedBy      *string         `json:"created_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// CreditBalance is customer credit created from an overpayment.
type CreditBalance struct {
	ID         string          `json:"id"`
	CompanyID  string          `json:"company_id"`
	CustomerID string          `json:"customer_id"`
	Amount     decimal.Decimal `json:"amount"`
	ReceiptID  *string         `json:"receipt_id,omitempty"`
	PaymentID  *string         `json:"payment_id,omitempty"`
	InvoiceID  *string         `json:"invoice_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// PaymentResult is the outcome of a payment operation.
type PaymentResult struct {
	Payment  *Payment              `json:"payment"`
	Invoices []*documents.Document `json:"invoices"`
	Warnings shared.Warnings       `json:"-"`
}

// ReceiptResult is the outcome of receipt creation.
type ReceiptResult struct {
	Receipt  *Receipt            `json:"receipt"`
	Payment  *Payment            `json:"payment"`
	Invoice  *documents.Document `json:"invoice"`
	Excess   *ExcessResult       `json:"excess,omitempty"`
	Warnings shared.Warnings     `json:"-"`
}

// ExcessResult reports what happened to an overpayment.
type ExcessResult struct {
	Handling        ExcessHandling  `json:"handling"`
	Amount          decimal.Decimal `json:"amount"`
	CreditBalanceID string          `json:"credit_balance_id,omitempty"`
	CreditNoteID    string          `json:"credit_note_id,omitempty"`
	Warnings        shared.Warnings `json:"-"`
}
