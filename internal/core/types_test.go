package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParseDirection(t *testing.T) {
	for _, label := range []string{"bull", "Long", " BUY "} {
		side, ok := ParseDirection(label)
		assert.True(t, ok, label)
		assert.Equal(t, SideBuy, side)
	}
	for _, label := range []string{"bear", "short", "sell"} {
		side, ok := ParseDirection(label)
		assert.True(t, ok, label)
		assert.Equal(t, SideSell, side)
	}
	_, ok := ParseDirection("sideways")
	assert.False(t, ok)
}

func TestSideOpposite(t *testing.T) {
	assert.Equal(t, SideSell, SideBuy.Opposite())
	assert.Equal(t, SideBuy, SideSell.Opposite())
}

func TestPositionExposure(t *testing.T) {
	short := Position{Size: decimal.RequireFromString("-100"), MarkPrice: decimal.RequireFromString("1.5")}
	assert.True(t, short.IsOpen())
	assert.Equal(t, "150", short.Exposure().String())

	flat := Position{Size: decimal.Zero, MarkPrice: decimal.RequireFromString("1.5")}
	assert.False(t, flat.IsOpen())
	assert.True(t, flat.Exposure().IsZero())
}

func TestExecutionResult_PartialFailure(t *testing.T) {
	ok := &LegResult{Leg: LegStopLoss, Attempted: true, OrderID: 7}
	bad := &LegResult{Leg: LegTakeProfit, Attempted: true, Err: errors.New("rejected")}

	r := ExecutionResult{Outcome: OutcomeExecuted, TakeProfit: bad, StopLoss: ok}
	assert.True(t, r.PartialFailure())
	assert.Equal(t, []Leg{LegTakeProfit}, r.FailedProtectiveLegs())

	r.TakeProfit = &LegResult{Leg: LegTakeProfit, Attempted: true, OrderID: 8}
	assert.False(t, r.PartialFailure())

	failed := ExecutionResult{Outcome: OutcomeFailed}
	assert.False(t, failed.PartialFailure())
}

func TestOutcomeIsSkip(t *testing.T) {
	assert.True(t, OutcomeSkippedOpenPosition.IsSkip())
	assert.True(t, OutcomeSkippedRiskLimit.IsSkip())
	assert.True(t, OutcomeSkippedZeroQuantity.IsSkip())
	assert.False(t, OutcomeExecuted.IsSkip())
	assert.False(t, OutcomeFailed.IsSkip())
}

func TestSizingPolicy(t *testing.T) {
	p := SizingPolicy{
		BaseRiskFraction:       decimal.RequireFromString("0.10"),
		ReinforcedRiskFraction: decimal.RequireFromString("0.20"),
		ReinforceWindow:        90 * time.Minute,
		DefaultPrecision:       SymbolPrecision{QuantityDecimals: 2, PriceDecimals: 4},
		Symbols:                map[string]SymbolPrecision{"BTCUSDT": {QuantityDecimals: 3, PriceDecimals: 1}},
	}

	assert.Equal(t, SymbolPrecision{QuantityDecimals: 3, PriceDecimals: 1}, p.PrecisionFor("BTCUSDT"))
	assert.Equal(t, SymbolPrecision{QuantityDecimals: 2, PriceDecimals: 4}, p.PrecisionFor("ADAUSDT"))
	assert.Equal(t, "0.2", p.RiskFraction(true).String())
	assert.Equal(t, "0.1", p.RiskFraction(false).String())
}
