package inventory

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

// MovementType enumerates stock directions.
type MovementType string

const (
	// MovementIn adds stock.
	MovementIn MovementType = "IN"
	// MovementOut removes stock.
	MovementOut MovementType = "OUT"
)

// Inverse returns the opposite direction.
func (t MovementType) Inverse() MovementType {
	if t == MovementIn {
		return MovementOut
	}
	return MovementIn
}

// Valid reports whether t is a known direction.
func (t MovementType) Valid() bool {
	return t == MovementIn || t == MovementOut
}

// Sign returns +1 for IN and -1 for OUT.
func (t MovementType) Sign() decimal.Decimal {
	if t == MovementIn {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(-1)
}

// Reference types tag the document a movement belongs to.
const (
	RefInvoice      = "INVOICE"
	RefDeliveryNote = "DELIVERY_NOTE"
	RefCreditNote   = "CREDIT_NOTE"
	RefRestock      = "RESTOCK"

	// ReversalSuffix marks compensating movements.
	ReversalSuffix = "_REVERSAL"
)

// ReversalOf returns the reference type used for compensating movements.
func ReversalOf(referenceType string) string {
	return referenceType + ReversalSuffix
}

// Movement is one append-only ledger entry.
type Movement struct {
	ID            string          `json:"id"`
	CompanyID     string          `json:"company_id"`
	ProductID     string          `json:"product_id"`
	Type          MovementType    `json:"movement_type"`
	Quantity      decimal.Decimal `json:"quantity"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   string          `json:"reference_id"`
	Notes         string          `json:"notes,omitempty"`
	CreatedBy     *string         `json:"created_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Signed returns the quantity with the direction applied.
func (m Movement) Signed() decimal.Decimal {
	return m.Quantity.Mul(m.Type.Sign())
}

// MovementInput describes a movement to record.
type MovementInput struct {
	CompanyID     string
	ProductID     string
	Type          MovementType
	Quantity      decimal.Decimal
	ReferenceType string
	ReferenceID   string
	Notes         string
	CreatedBy     string
}

// ErrInvalidQuantity rejects zero or negative movement quantities.
var ErrInvalidQuantity = &shared.ValidationError{Field: "quantity", Message: "inventory: quantity must be greater than zero"}

func (in MovementInput) validate() error {
	if in.CompanyID == "" || in.ProductID == "" {
		return shared.Validation("product_id", "inventory: company and product required")
	}
	if !in.Type.Valid() {
		return shared.Validation("movement_type", "inventory: unknown movement type %q", in.Type)
	}
	if !in.Quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	if in.ReferenceType == "" || in.ReferenceID == "" {
		return shared.Validation("reference_id", "inventory: reference required")
	}
	return nil
}
