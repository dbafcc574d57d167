// Package risk gates signals on existing positions and aggregate exposure
package risk

import (
	"context"

	"signal_gateway/internal/core"
	"signal_gateway/pkg/telemetry"
	"signal_gateway/pkg/tradingutils"

	"github.com/shopspring/decimal"
)

const (
	ReasonOpenPosition = "open position exists"
	ReasonRiskLimit    = "risk limit exceeded"
)

// Decision is the result of a gate evaluation. Balance is reused for sizing.
type Decision struct {
	Approved bool
	Outcome  core.Outcome // set when not approved
	Reason   string
	Ratio    decimal.Decimal
	// account state read for this evaluation, empty when the position check rejected
	core.AccountSnapshot
}

// Gate runs the position check and then the exposure check
type Gate struct {
	reader   core.IAccountReader
	maxRatio decimal.Decimal
	logger   core.ILogger
	metrics  *telemetry.MetricsHolder
}

// NewGate creates a risk gate. A ratio strictly above maxRatio is rejected.
func NewGate(reader core.IAccountReader, maxRatio decimal.Decimal, logger core.ILogger) *Gate {
	return &Gate{
		reader:   reader,
		maxRatio: maxRatio,
		logger:   logger.WithField("component", "risk_gate"),
		metrics:  telemetry.GetGlobalMetrics(),
	}
}

// Evaluate returns an error only when account state cannot be read and the
// reader is configured not to assume a flat account.
func (g *Gate) Evaluate(ctx context.Context, symbol string) (Decision, error) {
	open, err := g.reader.HasOpenPosition(ctx, symbol)
	if err != nil {
		return Decision{}, err
	}
	if open {
		g.logger.Info("Signal skipped", "symbol", symbol, "reason", ReasonOpenPosition)
		return Decision{Outcome: core.OutcomeSkippedOpenPosition, Reason: ReasonOpenPosition}, nil
	}

	exposure := g.reader.TotalOpenExposureValue(ctx)
	balance := g.reader.Balance(ctx)

	d := Decision{AccountSnapshot: core.AccountSnapshot{Balance: balance, OpenExposure: exposure}}

	ratio, ok := tradingutils.Ratio(exposure, balance)
	if !ok {
		g.logger.Info("Signal skipped", "symbol", symbol, "reason", ReasonRiskLimit, "balance", balance.String())
		d.Outcome = core.OutcomeSkippedRiskLimit
		d.Reason = ReasonRiskLimit
		return d, nil
	}
	d.Ratio = ratio
	g.metrics.SetExposureRatio(symbol, ratio.InexactFloat64())

	if ratio.GreaterThan(g.maxRatio) {
		g.logger.Info("Signal skipped",
			"symbol", symbol,
			"reason", ReasonRiskLimit,
			"ratio", ratio.String(),
			"max_ratio", g.maxRatio.String())
		d.Outcome = core.OutcomeSkippedRiskLimit
		d.Reason = ReasonRiskLimit
		return d, nil
	}

	d.Approved = true
	return d, nil
}
