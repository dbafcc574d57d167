// Package sizing converts balance, risk fraction and leverage into an order quantity
package sizing

import (
	"errors"
	"fmt"

	"signal_gateway/pkg/tradingutils"

	"github.com/shopspring/decimal"
)

var (
	ErrNonPositivePrice = errors.New("entry price must be positive")
	ErrNegativeBalance  = errors.New("balance must not be negative")
	ErrOutOfRange       = errors.New("input out of range")
)

// Quantity returns balance x riskFraction x leverage / entryPrice rounded to qtyDecimals.
// A zero result means nothing should be submitted.
func Quantity(balance, riskFraction, leverage, entryPrice decimal.Decimal, qtyDecimals int) (decimal.Decimal, error) {
	for _, v := range []decimal.Decimal{balance, riskFraction, leverage, entryPrice} {
		if !tradingutils.WithinMagnitude(v) {
			return decimal.Zero, fmt.Errorf("%w: exponent %d, %d digits", ErrOutOfRange, v.Exponent(), v.NumDigits())
		}
	}
	if !entryPrice.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNonPositivePrice, entryPrice)
	}
	if balance.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNegativeBalance, balance)
	}

	notional := balance.Mul(riskFraction).Mul(leverage)
	qty := tradingutils.RoundQuantity(notional.Div(entryPrice), qtyDecimals)
	if qty.IsNegative() {
		return decimal.Zero, nil
	}
	return qty, nil
}
