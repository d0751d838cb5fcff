// Package creditnotes issues, applies and withdraws credit notes together with
// their inventory and invoice effects.
package creditnotes

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-billing/internal/money"
	"github.com/odyssey-erp/odyssey-billing/internal/pricing"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

// Status enumerates credit note states.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusIssued    Status = "issued"
	StatusApplied   Status = "applied"
	StatusCancelled Status = "cancelled"
)

// Reasons used by generated credit notes.
const (
	ReasonOverpayment       = "Overpayment"
	ReasonInvoiceConversion = "Invoice conversion"
)

// CreditNote reduces what a customer owes.
type CreditNote struct {
	ID               string             `json:"id"`
	CompanyID        string             `json:"company_id"`
	CustomerID       string             `json:"customer_id"`
	InvoiceID        *string            `json:"invoice_id,omitempty"`
	ReceiptID        *string            `json:"receipt_id,omitempty"`
	Number           string             `json:"credit_note_number"`
	NoteDate         time.Time          `json:"credit_note_date"`
	Status           Status             `json:"status"`
	Reason           string             `json:"reason"`
	AffectsInventory bool               `json:"affects_inventory"`
	Subtotal         decimal.Decimal    `json:"subtotal"`
	TaxAmount        decimal.Decimal    `json:"tax_amount"`
	TotalAmount      decimal.Decimal    `json:"total_amount"`
	AppliedAmount    decimal.Decimal    `json:"applied_amount"`
	Balance          decimal.Decimal    `json:"balance"`
	CreatedBy        *string            `json:"created_by,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	Items            []pricing.LineItem `json:"items,omitempty"`
}

// ApplyTotals copies totals and re-derives the unapplied balance.
func (n *CreditNote) ApplyTotals(t pricing.Totals) {
	n.Subtotal = t.Subtotal
	n.TaxAmount = t.TaxAmount
	n.TotalAmount = t.TotalAmount
	n.rebalance()
}

// rebalance keeps balance == total - applied and marks fully used notes applied.
func (n *CreditNote) rebalance() {
	n.Balance = money.Round(n.TotalAmount.Sub(n.AppliedAmount))
	if n.Status == StatusCancelled {
		return
	}
	if money.IsPositive(n.AppliedAmount) && money.Negligible(n.Balance) {
		n.Status = StatusApplied
	}
}

// Allocation applies part of a credit note to an invoice.
type Allocation struct {
	ID              string          `json:"id"`
	CompanyID       string          `json:"company_id"`
	CreditNoteID    string          `json:"credit_note_id"`
	InvoiceID       string          `json:"invoice_id"`
	AllocatedAmount decimal.Decimal `json:"allocated_amount"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Result carries a credit note and the partial failures of the operation.
type Result struct {
	CreditNote *CreditNote     `json:"credit_note"`
	Warnings   shared.Warnings `json:"-"`
}
