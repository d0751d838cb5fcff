// Package money holds the decimal helpers shared by every billing engine.
package money

import "github.com/shopspring/decimal"

// Places is the number of decimals persisted for monetary values.
const Places = 2

var (
	// Zero is the decimal zero value.
	Zero = decimal.Zero
	// Hundred is used to turn percentages into ratios.
	Hundred = decimal.NewFromInt(100)
	// Tolerance absorbs rounding noise in equality and zero checks.
	Tolerance = decimal.New(1, -2)
)

// Round rounds half away from zero to two decimals.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Percent returns d * pct / 100.
func Percent(d, pct decimal.Decimal) decimal.Decimal {
	return d.Mul(pct).Div(Hundred)
}

// IsPositive reports whether d exceeds the tolerance.
func IsPositive(d decimal.Decimal) bool {
	return d.GreaterThan(Tolerance)
}

// Negligible reports whether |d| is below the tolerance.
func Negligible(d decimal.Decimal) bool {
	return d.Abs().LessThan(Tolerance)
}

// Equal compares a and b within the tolerance.
func Equal(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// ClampZero returns d, or zero when d is negative.
func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Sum adds up values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
