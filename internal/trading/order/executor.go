// Package order places single orders against the exchange with rate limiting.
// Placements are never retried: a second attempt after an ambiguous failure
// could open a duplicate position.
package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"signal_gateway/internal/core"
	apperrors "signal_gateway/pkg/errors"
	"signal_gateway/pkg/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	defaultErrorCapacity = 1000
	unhealthyErrorCount  = 50
	unhealthyErrorWindow = 5 * time.Minute
)

// Executor implements core.IOrderExecutor
type Executor struct {
	exchange core.IExchange
	logger   core.ILogger
	timeout  time.Duration

	mu          sync.RWMutex
	rateLimiter *rate.Limiter

	// recent failures, ring buffer
	errorTimestamps []time.Time
	errorIndex      int
	errorCapacity   int
	errorMu         sync.Mutex

	tracer       trace.Tracer
	orderCounter metric.Int64Counter
	failCounter  metric.Int64Counter
	metrics      *telemetry.MetricsHolder
	now          func() time.Time
}

// NewExecutor creates an order executor. ratePerSec <= 0 disables limiting.
func NewExecutor(exchange core.IExchange, ratePerSec float64, burst int, timeout time.Duration, logger core.ILogger) *Executor {
	meter := telemetry.GetMeter("order-executor")
	orderCounter, _ := meter.Int64Counter("order_placements_total",
		metric.WithDescription("Total number of order placement attempts"))
	failCounter, _ := meter.Int64Counter("order_placement_failures_total",
		metric.WithDescription("Total number of failed order placements"))

	return &Executor{
		exchange:        exchange,
		logger:          logger.WithField("component", "order_executor"),
		timeout:         timeout,
		rateLimiter:     newLimiter(ratePerSec, burst),
		errorCapacity:   defaultErrorCapacity,
		errorTimestamps: make([]time.Time, 0, defaultErrorCapacity),
		tracer:          telemetry.GetTracer("order-executor"),
		orderCounter:    orderCounter,
		failCounter:     failCounter,
		metrics:         telemetry.GetGlobalMetrics(),
		now:             time.Now,
	}
}

func newLimiter(ratePerSec float64, burst int) *rate.Limiter {
	if ratePerSec <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(ratePerSec), burst)
}

// PlaceOrder submits a single order. A response without an order id is an error.
func (e *Executor) PlaceOrder(ctx context.Context, intent core.OrderIntent) (*core.Order, error) {
	ctx, span := e.tracer.Start(ctx, "PlaceOrder",
		trace.WithAttributes(
			attribute.String("symbol", intent.Symbol),
			attribute.String("side", string(intent.Side)),
			attribute.String("type", string(intent.Type)),
		),
	)
	defer span.End()

	e.mu.RLock()
	limiter := e.rateLimiter
	e.mu.RUnlock()

	if err := limiter.Wait(ctx); err != nil {
		span.SetStatus(codes.Error, "rate limit wait")
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	attrs := metric.WithAttributes(
		attribute.String("symbol", intent.Symbol),
		attribute.String("type", string(intent.Type)),
	)
	e.orderCounter.Add(ctx, 1, attrs)

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := e.now()
	order, err := e.exchange.PlaceOrder(callCtx, intent)
	e.metrics.RecordExchangeLatency(ctx, "place_order", float64(e.now().Sub(start).Milliseconds()))

	if err == nil && (order == nil || order.OrderID == 0) {
		err = apperrors.NewTransportError("place order", apperrors.ErrMissingOrderID)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !apperrors.IsTransport(err) {
			err = apperrors.NewTransportError("place order", fmt.Errorf("%w: %w", apperrors.ErrTimeout, err))
		}
		e.failCounter.Add(ctx, 1, attrs)
		e.recordError()
		span.RecordError(err)
		span.SetStatus(codes.Error, "placement failed")
		e.logger.Warn("Order placement failed",
			"symbol", intent.Symbol,
			"side", intent.Side,
			"type", intent.Type,
			"client_order_id", intent.ClientOrderID,
			"error", err)
		return nil, err
	}

	e.logger.Debug("Order placed",
		"symbol", intent.Symbol,
		"type", intent.Type,
		"order_id", order.OrderID)
	return order, nil
}

// CheckHealth returns an error when placements have been failing at a high rate
func (e *Executor) CheckHealth() error {
	if n := e.recentErrorCount(unhealthyErrorWindow); n > unhealthyErrorCount {
		return fmt.Errorf("high error rate: %d errors in last %s", n, unhealthyErrorWindow)
	}
	return nil
}

func (e *Executor) recordError() {
	e.errorMu.Lock()
	defer e.errorMu.Unlock()

	if len(e.errorTimestamps) < e.errorCapacity {
		e.errorTimestamps = append(e.errorTimestamps, e.now())
		return
	}
	e.errorTimestamps[e.errorIndex] = e.now()
	e.errorIndex = (e.errorIndex + 1) % e.errorCapacity
}

func (e *Executor) recentErrorCount(window time.Duration) int {
	e.errorMu.Lock()
	defer e.errorMu.Unlock()

	cutoff := e.now().Add(-window)
	count := 0
	for _, t := range e.errorTimestamps {
		if t.After(cutoff) {
			count++
		}
	}
	return count
}
