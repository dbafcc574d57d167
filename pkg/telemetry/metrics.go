package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricSignalsReceivedTotal       = "signal_gateway_signals_received_total"
	MetricPipelineOutcomesTotal      = "signal_gateway_pipeline_outcomes_total"
	MetricOrdersPlacedTotal          = "signal_gateway_orders_placed_total"
	MetricOrderFailuresTotal         = "signal_gateway_order_failures_total"
	MetricProtectiveLegFailuresTotal = "signal_gateway_protective_leg_failures_total"
	MetricFailSafeDefaultsTotal      = "signal_gateway_fail_safe_defaults_total"
	MetricNotificationsDroppedTotal  = "signal_gateway_notifications_dropped_total"
	MetricLatencyExchange            = "signal_gateway_latency_exchange_ms"
	MetricLatencyPipeline            = "signal_gateway_latency_pipeline_ms"
	MetricExposureRatio              = "signal_gateway_exposure_ratio"
)

// MetricsHolder holds initialized instruments.
// Every Record method is a no-op until InitMetrics has run.
type MetricsHolder struct {
	SignalsReceivedTotal       metric.Int64Counter
	PipelineOutcomesTotal      metric.Int64Counter
	OrdersPlacedTotal          metric.Int64Counter
	OrderFailuresTotal         metric.Int64Counter
	ProtectiveLegFailuresTotal metric.Int64Counter
	FailSafeDefaultsTotal      metric.Int64Counter
	NotificationsDroppedTotal  metric.Int64Counter
	LatencyExchange            metric.Float64Histogram
	LatencyPipeline            metric.Float64Histogram
	ExposureRatio              metric.Float64ObservableGauge

	mu               sync.RWMutex
	exposureRatioMap map[string]float64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = NewMetricsHolder()
	})
	return globalMetrics
}

// NewMetricsHolder returns an uninitialized holder. Tests use it with a private meter.
func NewMetricsHolder() *MetricsHolder {
	return &MetricsHolder{
		exposureRatioMap: make(map[string]float64),
	}
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.SignalsReceivedTotal, err = meter.Int64Counter(MetricSignalsReceivedTotal, metric.WithDescription("Signals accepted into the pipeline"))
	if err != nil {
		return err
	}

	m.PipelineOutcomesTotal, err = meter.Int64Counter(MetricPipelineOutcomesTotal, metric.WithDescription("Pipeline runs by terminal outcome"))
	if err != nil {
		return err
	}

	m.OrdersPlacedTotal, err = meter.Int64Counter(MetricOrdersPlacedTotal, metric.WithDescription("Orders acknowledged by the exchange"))
	if err != nil {
		return err
	}

	m.OrderFailuresTotal, err = meter.Int64Counter(MetricOrderFailuresTotal, metric.WithDescription("Order placements that failed"))
	if err != nil {
		return err
	}

	m.ProtectiveLegFailuresTotal, err = meter.Int64Counter(MetricProtectiveLegFailuresTotal, metric.WithDescription("Take-profit or stop-loss legs left unplaced after a filled entry"))
	if err != nil {
		return err
	}

	m.FailSafeDefaultsTotal, err = meter.Int64Counter(MetricFailSafeDefaultsTotal, metric.WithDescription("Account reads replaced by a fail-safe default"))
	if err != nil {
		return err
	}

	m.NotificationsDroppedTotal, err = meter.Int64Counter(MetricNotificationsDroppedTotal, metric.WithDescription("Notifications dropped because the alert pool was full"))
	if err != nil {
		return err
	}

	m.LatencyExchange, err = meter.Float64Histogram(MetricLatencyExchange, metric.WithDescription("Latency of exchange API calls"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.LatencyPipeline, err = meter.Float64Histogram(MetricLatencyPipeline, metric.WithDescription("Duration of a full pipeline run"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.ExposureRatio, err = meter.Float64ObservableGauge(MetricExposureRatio, metric.WithDescription("Open exposure over balance at the last risk check"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.exposureRatioMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// RecordSignal counts a signal entering the pipeline
func (m *MetricsHolder) RecordSignal(ctx context.Context, strategy, symbol string) {
	if m.SignalsReceivedTotal == nil {
		return
	}
	m.SignalsReceivedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("symbol", symbol),
	))
}

// RecordOutcome counts a finished pipeline run and its duration
func (m *MetricsHolder) RecordOutcome(ctx context.Context, outcome string, durationMs float64) {
	if m.PipelineOutcomesTotal == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.PipelineOutcomesTotal.Add(ctx, 1, attrs)
	m.LatencyPipeline.Record(ctx, durationMs, attrs)
}

// RecordOrder counts a placement attempt for a bracket leg
func (m *MetricsHolder) RecordOrder(ctx context.Context, leg string, ok bool) {
	if m.OrdersPlacedTotal == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("leg", leg))
	if ok {
		m.OrdersPlacedTotal.Add(ctx, 1, attrs)
		return
	}
	m.OrderFailuresTotal.Add(ctx, 1, attrs)
}

// RecordProtectiveLegFailure counts a missing TP/SL order
func (m *MetricsHolder) RecordProtectiveLegFailure(ctx context.Context, symbol, leg string) {
	if m.ProtectiveLegFailuresTotal == nil {
		return
	}
	m.ProtectiveLegFailuresTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("symbol", symbol),
		attribute.String("leg", leg),
	))
}

// RecordFailSafeDefault counts an account read that fell back to its default
func (m *MetricsHolder) RecordFailSafeDefault(ctx context.Context, read string) {
	if m.FailSafeDefaultsTotal == nil {
		return
	}
	m.FailSafeDefaultsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("read", read)))
}

// RecordNotificationDropped counts an alert that could not be queued
func (m *MetricsHolder) RecordNotificationDropped(ctx context.Context, channel string) {
	if m.NotificationsDroppedTotal == nil {
		return
	}
	m.NotificationsDroppedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel)))
}

// RecordExchangeLatency records the duration of one exchange call
func (m *MetricsHolder) RecordExchangeLatency(ctx context.Context, op string, durationMs float64) {
	if m.LatencyExchange == nil {
		return
	}
	m.LatencyExchange.Record(ctx, durationMs, metric.WithAttributes(attribute.String("op", op)))
}

// SetExposureRatio updates the exposure ratio gauge for a symbol
func (m *MetricsHolder) SetExposureRatio(symbol string, ratio float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exposureRatioMap[symbol] = ratio
}

// ExposureRatioFor returns the last recorded ratio for symbol
func (m *MetricsHolder) ExposureRatioFor(symbol string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.exposureRatioMap[symbol]
	return v, ok
}
