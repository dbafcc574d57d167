package tradingutils

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// RoundPrice rounds a price to the specified decimals
func RoundPrice(price decimal.Decimal, priceDecimals int) decimal.Decimal {
	return price.Round(int32(priceDecimals))
}

// RoundQuantity rounds a quantity to the specified decimals
func RoundQuantity(qty decimal.Decimal, qtyDecimals int) decimal.Decimal {
	return qty.Round(int32(qtyDecimals))
}

// OffsetByPercent moves price up (positive pct) or down (negative pct) by pct percent
func OffsetByPercent(price, pct decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(1).Add(pct.Div(hundred)))
}

// Ratio returns num/den, or false when den is not positive
func Ratio(num, den decimal.Decimal) (decimal.Decimal, bool) {
	if !den.IsPositive() {
		return decimal.Zero, false
	}
	return num.Div(den), true
}

// Bounds for values that arrive from outside the process. Aligning a decimal
// with an extreme exponent allocates a power of ten of that size.
const (
	MaxExponent = 18
	MaxDigits   = 32
)

// WithinMagnitude reports whether d's exponent lies in [-MaxExponent, MaxExponent]
// and its coefficient has at most MaxDigits digits
func WithinMagnitude(d decimal.Decimal) bool {
	e := d.Exponent()
	if e < -MaxExponent || e > MaxExponent {
		return false
	}
	return d.NumDigits() <= MaxDigits
}
