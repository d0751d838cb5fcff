// Package pricing computes line item amounts and document totals.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-billing/internal/money"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

// DiscountMode names how a discount value is interpreted.
type DiscountMode string

const (
	// DiscountNone applies no discount.
	DiscountNone DiscountMode = ""
	// DiscountAmount is a flat amount deducted before VAT.
	DiscountAmount DiscountMode = "amount"
	// DiscountPercent is a percentage of the line base.
	DiscountPercent DiscountMode = "percent"
)

// Discount pairs a value with its mode.
type Discount struct {
	Mode  DiscountMode    `json:"discount_mode"`
	Value decimal.Decimal `json:"discount_value"`
}

// FlatDiscount returns a pre-VAT amount discount.
func FlatDiscount(v decimal.Decimal) Discount {
	return Discount{Mode: DiscountAmount, Value: v}
}

// PercentDiscount returns a percentage discount.
func PercentDiscount(pct decimal.Decimal) Discount {
	return Discount{Mode: DiscountPercent, Value: pct}
}

// LineInput carries the entered fields of one line.
type LineInput struct {
	Quantity      decimal.Decimal
	UnitPrice     decimal.Decimal
	Discount      Discount
	TaxPercentage decimal.Decimal
	TaxInclusive  bool
}

// LineAmounts are the derived figures of one line.
type LineAmounts struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// ComputeLine derives subtotal, tax and total for a single line.
//
// Discounts never push a line below zero: a discount larger than the base is
// clamped to the base.
func ComputeLine(in LineInput) (LineAmounts, error) {
	if err := in.validate(); err != nil {
		return LineAmounts{}, err
	}

	base := in.Quantity.Mul(in.UnitPrice)
	discount := in.discountAmount(base)
	if discount.GreaterThan(base) {
		discount = base
	}
	afterDiscount := base.Sub(discount)
	rate := in.TaxPercentage.Div(money.Hundred)

	if in.TaxInclusive {
		total := money.Round(afterDiscount)
		tax := decimal.Zero
		if !in.TaxPercentage.IsZero() {
			tax = money.Round(afterDiscount.Sub(afterDiscount.Div(decimal.NewFromInt(1).Add(rate))))
		}
		return LineAmounts{Subtotal: total.Sub(tax), TaxAmount: tax, LineTotal: total}, nil
	}

	subtotal := money.Round(afterDiscount)
	tax := money.Round(afterDiscount.Mul(rate))
	return LineAmounts{Subtotal: subtotal, TaxAmount: tax, LineTotal: subtotal.Add(tax)}, nil
}

func (in LineInput) validate() error {
	if !in.Quantity.IsPositive() {
		return shared.Validation("quantity", "must be greater than zero")
	}
	if in.UnitPrice.IsNegative() {
		return shared.Validation("unit_price", "must not be negative")
	}
	if in.TaxPercentage.IsNegative() {
		return shared.Validation("tax_percentage", "must not be negative")
	}
	switch in.Discount.Mode {
	case DiscountNone:
		if !in.Discount.Value.IsZero() {
			return shared.Validation("discount_mode", "required when a discount value is given")
		}
	case DiscountAmount:
	case DiscountPercent:
		if in.Discount.Value.GreaterThan(money.Hundred) {
			return shared.Validation("discount_value", "percentage must not exceed 100")
		}
	default:
		return shared.Validation("discount_mode", "unknown mode %q", in.Discount.Mode)
	}
	if in.Discount.Value.IsNegative() {
		return shared.Validation("discount_value", "must not be negative")
	}
	return nil
}

func (in LineInput) discountAmount(base decimal.Decimal) decimal.Decimal {
	switch in.Discount.Mode {
	case DiscountAmount:
		return in.Discount.Value
	case DiscountPercent:
		return money.Percent(base, in.Discount.Value)
	default:
		return decimal.Zero
	}
}
