package telemetry

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestTelemetrySetup(t *testing.T) {
	var traces, logs bytes.Buffer
	tel, err := Setup("test-service", Options{TraceWriter: &traces, LogWriter: &logs})
	require.NoError(t, err)

	assert.NotNil(t, otel.GetTracerProvider())
	assert.NotNil(t, otel.GetMeterProvider())

	_, span := GetTracer("test-tracer").Start(context.Background(), "unit")
	span.End()

	assert.NotNil(t, GetMeter("test-meter"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, tel.Shutdown(ctx))
	assert.Contains(t, traces.String(), "unit")
}

func TestMetricsHolder_Uninitialized(t *testing.T) {
	m := NewMetricsHolder()
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordSignal(ctx, "rsi_divergence", "ADAUSDT")
		m.RecordOutcome(ctx, "executed", 12)
		m.RecordOrder(ctx, "entry", true)
		m.RecordProtectiveLegFailure(ctx, "ADAUSDT", "take_profit")
		m.RecordFailSafeDefault(ctx, "balance")
		m.RecordNotificationDropped(ctx, "telegram")
		m.RecordExchangeLatency(ctx, "place_order", 3)
	})
}

func TestMetricsHolder_Records(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	m := NewMetricsHolder()
	require.NoError(t, m.InitMetrics(mp.Meter("test")))

	ctx := context.Background()
	m.RecordOrder(ctx, "entry", true)
	m.RecordOrder(ctx, "entry", true)
	m.RecordOrder(ctx, "stop_loss", false)
	m.RecordFailSafeDefault(ctx, "positions")
	m.SetExposureRatio("ADAUSDT", 0.42)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sums := map[string]int64{}
	gauges := map[string]float64{}
	for _, sm := range rm.ScopeMetrics {
		for _, mt := range sm.Metrics {
			switch data := mt.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					sums[mt.Name] += dp.Value
				}
			case metricdata.Gauge[float64]:
				for _, dp := range data.DataPoints {
					gauges[mt.Name] = dp.Value
				}
			}
		}
	}

	assert.Equal(t, int64(2), sums[MetricOrdersPlacedTotal])
	assert.Equal(t, int64(1), sums[MetricOrderFailuresTotal])
	assert.Equal(t, int64(1), sums[MetricFailSafeDefaultsTotal])
	assert.InDelta(t, 0.42, gauges[MetricExposureRatio], 1e-9)

	ratio, ok := m.ExposureRatioFor("ADAUSDT")
	assert.True(t, ok)
	assert.InDelta(t, 0.42, ratio, 1e-9)
}
