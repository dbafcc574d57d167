package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// SymbolPrecision is the rounding applied to an instrument's quantities and prices
type SymbolPrecision struct {
	QuantityDecimals int
	PriceDecimals    int
}

// SizingPolicy is loaded once at startup and shared read-only by every pipeline run
type SizingPolicy struct {
	BaseRiskFraction       decimal.Decimal
	ReinforcedRiskFraction decimal.Decimal
	Leverage               decimal.Decimal
	TakeProfitPct          decimal.Decimal
	StopLossPct            decimal.Decimal
	MaxExposureRatio       decimal.Decimal
	ReinforceWindow        time.Duration
	DefaultPrecision       SymbolPrecision
	Symbols                map[string]SymbolPrecision
}

// PrecisionFor returns the per-symbol override or the default precision
func (p SizingPolicy) PrecisionFor(symbol string) SymbolPrecision {
	if sp, ok := p.Symbols[symbol]; ok {
		return sp
	}
	return p.DefaultPrecision
}

// RiskFraction picks the base or reinforced fraction
func (p SizingPolicy) RiskFraction(reinforced bool) decimal.Decimal {
	if reinforced {
		return p.ReinforcedRiskFraction
	}
	return p.BaseRiskFraction
}
