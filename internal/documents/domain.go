// Package documents owns quotations, proformas, invoices and delivery notes,
// their state machine and document-to-document conversion.
package documents

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-billing/internal/inventory"
	"github.com/odyssey-erp/odyssey-billing/internal/money"
	"github.com/odyssey-erp/odyssey-billing/internal/pricing"
)

// DocumentType enumerates the document kinds stored in documents.
type DocumentType string

const (
	TypeQuotation    DocumentType = "quotation"
	TypeProforma     DocumentType = "proforma"
	TypeInvoice      DocumentType = "invoice"
	TypeDeliveryNote DocumentType = "delivery_note"
)

// Valid reports whether t is a known document type.
func (t DocumentType) Valid() bool {
	switch t {
	case TypeQuotation, TypeProforma, TypeInvoice, TypeDeliveryNote:
		return true
	}
	return false
}

// AffectsInventory reports whether documents of t take goods out of stock.
func (t DocumentType) AffectsInventory() bool {
	return t == TypeInvoice || t == TypeDeliveryNote
}

// StockReference is the movement reference type used for t.
func (t DocumentType) StockReference() string {
	if t == TypeDeliveryNote {
		return inventory.RefDeliveryNote
	}
	return inventory.RefInvoice
}

// Status enumerates document states across types.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
	StatusConverted Status = "converted"
	StatusPartial   Status = "partial"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

var transitions = map[DocumentType]map[Status][]Status{
	TypeQuotation: {
		StatusDraft:    {StatusSent, StatusConverted},
		StatusSent:     {StatusAccepted, StatusRejected, StatusExpired, StatusConverted},
		StatusAccepted: {StatusConverted},
	},
	TypeProforma: {
		StatusDraft:    {StatusSent, StatusConverted},
		StatusSent:     {StatusAccepted, StatusExpired, StatusConverted},
		StatusAccepted: {StatusConverted},
	},
	TypeInvoice: {
		StatusDraft:   {StatusSent, StatusPartial, StatusPaid, StatusCancelled},
		StatusSent:    {StatusPartial, StatusPaid, StatusCancelled},
		StatusPartial: {StatusPaid, StatusCancelled},
		StatusPaid:    {StatusCancelled},
	},
	TypeDeliveryNote: {
		StatusDraft: {StatusSent, StatusCancelled},
		StatusSent:  {StatusCancelled},
	},
}

// CanTransition reports whether a document of type t may move from one status to another.
func CanTransition(t DocumentType, from, to Status) bool {
	for _, next := range transitions[t][from] {
		if next == to {
			return true
		}
	}
	return false
}

// Conversion pairs that Convert accepts.
var conversions = map[DocumentType][]DocumentType{
	TypeQuotation: {TypeProforma, TypeInvoice, TypeDeliveryNote},
	TypeProforma:  {TypeInvoice, TypeDeliveryNote},
}

// CanConvert reports whether source documents of type from may produce type to.
func CanConvert(from, to DocumentType) bool {
	for _, dest := range conversions[from] {
		if dest == to {
			return true
		}
	}
	return false
}

// InitialStatus is the status a converted destination starts in.
func InitialStatus(dest DocumentType) Status {
	if dest == TypeInvoice {
		return StatusSent
	}
	return StatusDraft
}

// Document is the shared shape of every stored document.
type Document struct {
	ID                 string             `json:"id"`
	CompanyID          string             `json:"company_id"`
	CustomerID         string             `json:"customer_id"`
	Type               DocumentType       `json:"document_type"`
	Number             string             `json:"document_number"`
	DocumentDate       time.Time          `json:"document_date"`
	ValidUntil         *time.Time         `json:"valid_until,omitempty"`
	Status             Status             `json:"status"`
	Subtotal           decimal.Decimal    `json:"subtotal"`
	TaxAmount          decimal.Decimal    `json:"tax_amount"`
	TotalAmount        decimal.Decimal    `json:"total_amount"`
	PaidAmount         decimal.Decimal    `json:"paid_amount"`
	CreditedAmount     decimal.Decimal    `json:"credited_amount"`
	BalanceDue         decimal.Decimal    `json:"balance_due"`
	SourceDocumentID   *string            `json:"source_document_id,omitempty"`
	SourceDocumentType *DocumentType      `json:"source_document_type,omitempty"`
	Notes              string             `json:"notes,omitempty"`
	CreatedBy          *string            `json:"created_by,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	Items              []pricing.LineItem `json:"items,omitempty"`
}

// ApplyTotals copies aggregated totals and resets the balance of an unsettled document.
func (d *Document) ApplyTotals(t pricing.Totals) {
	d.Subtotal = t.Subtotal
	d.TaxAmount = t.TaxAmount
	d.TotalAmount = t.TotalAmount
	d.Settle()
}

// Settled is the amount covered by payments and credit notes.
func (d Document) Settled() decimal.Decimal {
	return d.PaidAmount.Add(d.CreditedAmount)
}

// Settle derives balance_due and, for invoices, the payment status from the
// paid and credited amounts.
func (d *Document) Settle() {
	if d.Type != TypeInvoice {
		d.BalanceDue = decimal.Zero
		return
	}
	settled := d.Settled()
	d.BalanceDue = money.Round(money.ClampZero(d.TotalAmount.Sub(settled)))
	if d.Status == StatusCancelled {
		return
	}
	switch {
	case money.Negligible(d.BalanceDue) && money.IsPositive(settled):
		d.Status = StatusPaid
	case money.IsPositive(settled):
		d.Status = StatusPartial
	case d.Status == StatusPartial || d.Status == StatusPaid:
		// settlements were withdrawn
		d.Status = StatusSent
	}
}
