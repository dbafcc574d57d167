package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	tracetype "go.opentelemetry.io/otel/trace"
)

// Options controls where the stdout exporters write
type Options struct {
	// TraceWriter receives finished spans. Defaults to stdout.
	TraceWriter io.Writer
	// LogWriter receives bridged log records. Defaults to stdout.
	LogWriter io.Writer
}

// Telemetry owns the installed global providers
type Telemetry struct {
	tp *trace.TracerProvider
	mp *sdkmetric.MeterProvider
	lp *sdklog.LoggerProvider
}

// Setup installs tracing, Prometheus-backed metrics and log export.
// Install it before creating loggers so the otelzap bridge sees the provider.
func Setup(serviceName string, opts Options) (*Telemetry, error) {
	if opts.TraceWriter == nil {
		opts.TraceWriter = os.Stdout
	}
	if opts.LogWriter == nil {
		opts.LogWriter = os.Stdout
	}

	res, err := newResource(serviceName)
	if err != nil {
		return nil, err
	}

	t := &Telemetry{}
	if t.mp, err = newMeterProvider(serviceName, res); err != nil {
		return nil, err
	}
	if t.tp, err = newTracerProvider(res, opts.TraceWriter); err != nil {
		_ = t.Shutdown(context.Background())
		return nil, err
	}
	if t.lp, err = newLoggerProvider(res, opts.LogWriter); err != nil {
		_ = t.Shutdown(context.Background())
		return nil, err
	}

	otel.SetTracerProvider(t.tp)
	global.SetLoggerProvider(t.lp)
	return t, nil
}

// SetupMetrics installs only the meter provider, for runs without span or log export
func SetupMetrics(serviceName string) (*Telemetry, error) {
	res, err := newResource(serviceName)
	if err != nil {
		return nil, err
	}
	mp, err := newMeterProvider(serviceName, res)
	if err != nil {
		return nil, err
	}
	return &Telemetry{mp: mp}, nil
}

func newResource(serviceName string) (*resource.Resource, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}
	return res, nil
}

func newTracerProvider(res *resource.Resource, w io.Writer) (*trace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	return trace.NewTracerProvider(trace.WithBatcher(exporter), trace.WithResource(res)), nil
}

func newLoggerProvider(res *resource.Resource, w io.Writer) (*sdklog.LoggerProvider, error) {
	exporter, err := stdoutlog.New(stdoutlog.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("log exporter: %w", err)
	}
	return sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
		sdklog.WithResource(res),
	), nil
}

// newMeterProvider registers a Prometheus reader on the default registry, which
// the HTTP server exposes at /metrics.
func newMeterProvider(serviceName string, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	if err := GetGlobalMetrics().InitMetrics(mp.Meter(serviceName)); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return mp, nil
}

// Shutdown flushes and stops whichever providers were installed
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.tp != nil {
		if err := t.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider: %w", err))
		}
	}
	if t.mp != nil {
		if err := t.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	if t.lp != nil {
		if err := t.lp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("log provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// GetMeter returns a meter for the given name
func GetMeter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}

// GetTracer returns a tracer for the given name
func GetTracer(name string) tracetype.Tracer {
	return otel.GetTracerProvider().Tracer(name)
}
