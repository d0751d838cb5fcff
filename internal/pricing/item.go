package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LineItem is the persisted shape shared by every document type.
// Derived amounts are always recomputed from the entered fields.
type LineItem struct {
	ID          string          `json:"id,omitempty"`
	ProductID   *string         `json:"product_id,omitempty"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount
	TaxPercentage decimal.Decimal `json:"tax_percentage"`
	TaxInclusive  bool            `json:"tax_inclusive"`
	Position      int             `json:"position"`
	LineAmounts
}

// Input extracts the calculator input.
func (li LineItem) Input() LineInput {
	return LineInput{
		Quantity:      li.Quantity,
		UnitPrice:     li.UnitPrice,
		Discount:      li.Discount,
		TaxPercentage: li.TaxPercentage,
		TaxInclusive:  li.TaxInclusive,
	}
}

// Recompute refreshes the derived amounts in place.
func (li *LineItem) Recompute() error {
	amounts, err := ComputeLine(li.Input())
	if err != nil {
		return err
	}
	li.LineAmounts = amounts
	return nil
}

// HasProduct reports whether the line references a stocked product.
func (li LineItem) HasProduct() bool {
	return li.ProductID != nil && *li.ProductID != ""
}

// Clone returns a deep copy stripped of its persisted identity.
func (li LineItem) Clone() LineItem {
	out := li
	out.ID = ""
	if li.ProductID != nil {
		pid := *li.ProductID
		out.ProductID = &pid
	}
	return out
}

// Totals are document-level sums.
type Totals struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// Aggregate sums the derived amounts of items. An empty list yields zeros.
func Aggregate(items []LineItem) Totals {
	totals := Totals{Subtotal: decimal.Zero, TaxAmount: decimal.Zero, TotalAmount: decimal.Zero}
	for _, item := range items {
		totals.Subtotal = totals.Subtotal.Add(item.Subtotal)
		totals.TaxAmount = totals.TaxAmount.Add(item.TaxAmount)
		totals.TotalAmount = totals.TotalAmount.Add(item.LineTotal)
	}
	return totals
}

// Recalculate recomputes every line, renumbers positions and aggregates.
// The input slice is not modified.
func Recalculate(items []LineItem) ([]LineItem, Totals, error) {
	out := make([]LineItem, len(items))
	for i, item := range items {
		if err := item.Recompute(); err != nil {
			return nil, Totals{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		item.Position = i + 1
		out[i] = item
	}
	return out, Aggregate(out), nil
}
