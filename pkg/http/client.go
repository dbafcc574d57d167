// Package http provides a reusable HTTP client with resilience features
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	apperrors "signal_gateway/pkg/errors"
	"signal_gateway/pkg/telemetry"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// APIError represents a non-2xx response
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: status=%d body=%s", e.StatusCode, string(e.Body))
}

// Signer is an interface for signing requests
type Signer interface {
	SignRequest(req *http.Request) error
}

// response is a fully read reply so failed attempts never leak bodies
type response struct {
	StatusCode int
	Body       []byte
}

// Client is a wrapper around http.Client with resilience.
// Reads go through retry and the circuit breaker; writes only through the breaker,
// so an order is never submitted twice by the transport.
type Client struct {
	client        *http.Client
	baseURL       string
	signer        Signer
	readPipeline  failsafe.Executor[*response]
	writePipeline failsafe.Executor[*response]

	// OTel
	tracer      trace.Tracer
	reqCounter  metric.Int64Counter
	errCounter  metric.Int64Counter
	latencyHist metric.Float64Histogram
}

// NewClient creates a new HTTP client with default resilience policies.
// timeout bounds every single attempt.
func NewClient(baseURL string, timeout time.Duration, signer Signer) *Client {
	retryPolicy := retrypolicy.NewBuilder[*response]().
		HandleIf(func(resp *response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		}).
		WithBackoff(100*time.Millisecond, 2*time.Second).
		WithMaxRetries(3).
		ReturnLastFailure().
		Build()

	breaker := circuitbreaker.NewBuilder[*response]().
		HandleIf(func(resp *response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode >= 500
		}).
		WithFailureThresholdRatio(5, 10). // 5 failures out of 10
		WithDelay(10 * time.Second).
		Build()

	tracer := telemetry.GetTracer("exchange-http")
	meter := telemetry.GetMeter("exchange-http")

	reqCounter, _ := meter.Int64Counter("exchange_http_requests_total",
		metric.WithDescription("Total number of exchange HTTP requests"))
	errCounter, _ := meter.Int64Counter("exchange_http_errors_total",
		metric.WithDescription("Total number of exchange HTTP errors"))
	latencyHist, _ := meter.Float64Histogram("exchange_http_request_duration_seconds",
		metric.WithDescription("Exchange HTTP request latency in seconds"))

	return &Client{
		client: &http.Client{
			Timeout: timeout,
		},
		baseURL:       baseURL,
		signer:        signer,
		readPipeline:  failsafe.With[*response](retryPolicy, breaker),
		writePipeline: failsafe.With[*response](breaker),
		tracer:        tracer,
		reqCounter:    reqCounter,
		errCounter:    errCounter,
		latencyHist:   latencyHist,
	}
}

// Get sends a GET request with query parameters. Transient failures are retried.
func (c *Client) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, params)
	if err != nil {
		return nil, err
	}
	return c.do(req, c.readPipeline)
}

// Post sends a POST request with query parameters. It is never retried.
func (c *Client) Post(ctx context.Context, path string, params url.Values) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, params)
	if err != nil {
		return nil, err
	}
	return c.do(req, c.writePipeline)
}

func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if len(params) > 0 {
		req.URL.RawQuery = params.Encode()
	}
	return req, nil
}

func (c *Client) do(req *http.Request, pipeline failsafe.Executor[*response]) ([]byte, error) {
	start := time.Now()
	ctx := req.Context()

	ctx, span := c.tracer.Start(ctx, fmt.Sprintf("%s %s", req.Method, req.URL.Path),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.path", req.URL.Path),
		),
	)
	defer span.End()

	req = req.WithContext(ctx)

	if c.signer != nil {
		if err := c.signer.SignRequest(req); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to sign request: %w", err)
		}
	}

	resp, err := pipeline.WithContext(ctx).GetWithExecution(func(exec failsafe.Execution[*response]) (*response, error) {
		r, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer r.Body.Close()
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		return &response{StatusCode: r.StatusCode, Body: body}, nil
	})

	attrs := metric.WithAttributes(
		attribute.String("method", req.Method),
		attribute.String("path", req.URL.Path),
	)
	c.reqCounter.Add(ctx, 1, attrs)
	c.latencyHist.Record(ctx, time.Since(start).Seconds(), attrs)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		c.errCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("method", req.Method),
			attribute.String("path", req.URL.Path),
			attribute.String("error", "pipeline_failed"),
		))
		return nil, classify(err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		c.errCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("method", req.Method),
			attribute.String("path", req.URL.Path),
			attribute.Int("status", resp.StatusCode),
		))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
		}
	}

	return resp.Body, nil
}

// classify tags a transport failure with the matching sentinel
func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("request failed: %w: %w", apperrors.ErrTimeout, err)
	}
	return fmt.Errorf("request failed: %w: %w", apperrors.ErrNetwork, err)
}
