package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-billing/internal/money"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, d(want).Equal(got), "want %s got %s", want, got)
}

func TestComputeLineExclusive(t *testing.T) {
	got, err := ComputeLine(LineInput{Quantity: d("2"), UnitPrice: d("100"), TaxPercentage: d("16")})
	require.NoError(t, err)
	requireDecimal(t, "200", got.Subtotal)
	requireDecimal(t, "32", got.TaxAmount)
	requireDecimal(t, "232", got.LineTotal)
}

func TestComputeLineInclusive(t *testing.T) {
	got, err := ComputeLine(LineInput{Quantity: d("1"), UnitPrice: d("116"), TaxPercentage: d("16"), TaxInclusive: true})
	require.NoError(t, err)
	requireDecimal(t, "100", got.Subtotal)
	requireDecimal(t, "16", got.TaxAmount)
	requireDecimal(t, "116", got.LineTotal)
}

func TestComputeLineZeroTax(t *testing.T) {
	for _, inclusive := range []bool{true, false} {
		got, err := ComputeLine(LineInput{Quantity: d("3"), UnitPrice: d("9.99"), TaxInclusive: inclusive})
		require.NoError(t, err)
		require.True(t, got.TaxAmount.IsZero())
		requireDecimal(t, "29.97", got.LineTotal)
	}
}

func TestComputeLineDiscountModes(t *testing.T) {
	flat, err := ComputeLine(LineInput{Quantity: d("2"), UnitPrice: d("50"), Discount: FlatDiscount(d("10")), TaxPercentage: d("10")})
	require.NoError(t, err)
	requireDecimal(t, "90", flat.Subtotal)
	requireDecimal(t, "9", flat.TaxAmount)
	requireDecimal(t, "99", flat.LineTotal)

	pct, err := ComputeLine(LineInput{Quantity: d("2"), UnitPrice: d("50"), Discount: PercentDiscount(d("10")), TaxPercentage: d("10")})
	require.NoError(t, err)
	requireDecimal(t, "90", pct.Subtotal)
	requireDecimal(t, "99", pct.LineTotal)
}

func TestComputeLineClampsDiscount(t *testing.T) {
	got, err := ComputeLine(LineInput{Quantity: d("1"), UnitPrice: d("20"), Discount: FlatDiscount(d("35")), TaxPercentage: d("16")})
	require.NoError(t, err)
	require.True(t, got.Subtotal.IsZero())
	require.True(t, got.TaxAmount.IsZero())
	require.True(t, got.LineTotal.IsZero())
}

func TestComputeLineRejectsBadInput(t *testing.T) {
	cases := map[string]LineInput{
		"negative quantity": {Quantity: d("-1"), UnitPrice: d("10")},
		"zero quantity":     {Quantity: d("0"), UnitPrice: d("10")},
		"negative price":    {Quantity: d("1"), UnitPrice: d("-10")},
		"negative tax":      {Quantity: d("1"), UnitPrice: d("10"), TaxPercentage: d("-1")},
		"negative discount": {Quantity: d("1"), UnitPrice: d("10"), Discount: FlatDiscount(d("-1"))},
		"unnamed discount":  {Quantity: d("1"), UnitPrice: d("10"), Discount: Discount{Value: d("1")}},
		"percent over 100":  {Quantity: d("1"), UnitPrice: d("10"), Discount: PercentDiscount(d("101"))},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ComputeLine(in)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestComputeLineRoundsHalfAwayFromZero(t *testing.T) {
	got, err := ComputeLine(LineInput{Quantity: d("1"), UnitPrice: d("0.125"), TaxPercentage: d("0")})
	require.NoError(t, err)
	requireDecimal(t, "0.13", got.LineTotal)
}

func sampleItems() []LineItem {
	p1, p2 := "prod-1", "prod-2"
	return []LineItem{
		{ProductID: &p1, Description: "Widget", Quantity: d("2"), UnitPrice: d("100"), TaxPercentage: d("16")},
		{ProductID: &p2, Description: "Gadget", Quantity: d("1"), UnitPrice: d("50"), TaxPercentage: d("0")},
	}
}

func TestRecalculate(t *testing.T) {
	items, totals, err := Recalculate(sampleItems())
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, 2, items[1].Position)
	requireDecimal(t, "250", totals.Subtotal)
	requireDecimal(t, "32", totals.TaxAmount)
	requireDecimal(t, "282", totals.TotalAmount)
	require.True(t, totals.TotalAmount.Equal(totals.Subtotal.Add(totals.TaxAmount)))
}

func TestAggregateEmpty(t *testing.T) {
	totals := Aggregate(nil)
	require.True(t, totals.Subtotal.IsZero())
	require.True(t, totals.TaxAmount.IsZero())
	require.True(t, totals.TotalAmount.IsZero())
}

func TestAggregateIsIdempotent(t *testing.T) {
	items, first, err := Recalculate(sampleItems())
	require.NoError(t, err)
	second := Aggregate(items)
	require.True(t, first.Subtotal.Equal(second.Subtotal))
	require.True(t, first.TaxAmount.Equal(second.TaxAmount))
	require.True(t, first.TotalAmount.Equal(second.TotalAmount))

	again, third, err := Recalculate(items)
	require.NoError(t, err)
	require.Equal(t, len(items), len(again))
	require.True(t, first.TotalAmount.Equal(third.TotalAmount))
}

func TestInclusiveExclusiveRoundTrip(t *testing.T) {
	cases := []struct{ qty, price, tax string }{
		{"1", "116", "16"},
		{"3", "19.99", "16"},
		{"7", "3.33", "8"},
		{"2.5", "1234.56", "20"},
		{"1", "0.99", "7.5"},
	}
	for _, tc := range cases {
		inclusive, err := ComputeLine(LineInput{Quantity: d(tc.qty), UnitPrice: d(tc.price), TaxPercentage: d(tc.tax), TaxInclusive: true})
		require.NoError(t, err)

		implied := inclusive.Subtotal.Div(d(tc.qty))
		exclusive, err := ComputeLine(LineInput{Quantity: d(tc.qty), UnitPrice: implied, TaxPercentage: d(tc.tax)})
		require.NoError(t, err)
		require.True(t, money.Equal(inclusive.LineTotal, exclusive.LineTotal),
			"inclusive %s exclusive %s", inclusive.LineTotal, exclusive.LineTotal)
	}
}
