// Package account reads balance and open exposure from the exchange for risk decisions.
//
// Every read goes to the exchange; nothing is cached between pipeline runs.
// Read failures degrade to fail-safe defaults (no open position, zero balance,
// zero exposure). The no-position default is optimistic: a transient read failure
// can let an entry through while a position is open. It can be turned off, in which
// case HasOpenPosition returns ErrAccountStateUnavailable instead.
package account

import (
	"context"
	"errors"
	"time"

	"signal_gateway/internal/core"
	"signal_gateway/pkg/telemetry"

	"github.com/shopspring/decimal"
)

// ErrAccountStateUnavailable is returned when the position read fails and fail-open is disabled
var ErrAccountStateUnavailable = errors.New("account state unavailable")

// Reader implements core.IAccountReader on top of an exchange
type Reader struct {
	exchange   core.IExchange
	quoteAsset string
	failOpen   bool
	timeout    time.Duration
	logger     core.ILogger
	metrics    *telemetry.MetricsHolder
}

// NewReader creates an account reader. timeout bounds each exchange call.
func NewReader(exchange core.IExchange, quoteAsset string, failOpen bool, timeout time.Duration, logger core.ILogger) *Reader {
	return &Reader{
		exchange:   exchange,
		quoteAsset: quoteAsset,
		failOpen:   failOpen,
		timeout:    timeout,
		logger:     logger.WithField("component", "account_reader"),
		metrics:    telemetry.GetGlobalMetrics(),
	}
}

// HasOpenPosition reports whether symbol has a non-zero position
func (r *Reader) HasOpenPosition(ctx context.Context, symbol string) (bool, error) {
	positions, err := r.positions(ctx)
	if err != nil {
		r.metrics.RecordFailSafeDefault(ctx, "open_position")
		if !r.failOpen {
			r.logger.Error("Position read failed, refusing to assume flat", "symbol", symbol, "error", err)
			return false, errors.Join(ErrAccountStateUnavailable, err)
		}
		r.logger.Warn("Position read failed, assuming no open position",
			"symbol", symbol,
			"fail_safe_default", "open_position=false",
			"error", err)
		return false, nil
	}

	for _, p := range positions {
		if p.Symbol == symbol && p.IsOpen() {
			return true, nil
		}
	}
	return false, nil
}

// TotalOpenExposureValue sums |size| x mark price over every open position
func (r *Reader) TotalOpenExposureValue(ctx context.Context) decimal.Decimal {
	positions, err := r.positions(ctx)
	if err != nil {
		r.metrics.RecordFailSafeDefault(ctx, "open_exposure")
		r.logger.Warn("Position read failed, assuming zero exposure",
			"fail_safe_default", "open_exposure=0",
			"error", err)
		return decimal.Zero
	}

	total := decimal.Zero
	for _, p := range positions {
		if p.IsOpen() {
			total = total.Add(p.Exposure())
		}
	}
	return total
}

// Balance returns the quote-asset wallet balance
func (r *Reader) Balance(ctx context.Context) decimal.Decimal {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	bal, err := r.exchange.GetBalance(ctx, r.quoteAsset)
	if err != nil {
		r.metrics.RecordFailSafeDefault(ctx, "balance")
		r.logger.Warn("Balance read failed, assuming zero balance",
			"asset", r.quoteAsset,
			"fail_safe_default", "balance=0",
			"error", err)
		return decimal.Zero
	}
	return bal
}

func (r *Reader) positions(ctx context.Context) ([]core.Position, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.exchange.GetPositions(ctx)
}

// withTimeout bounds a read by the configured timeout. Zero means unbounded.
func (r *Reader) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}
