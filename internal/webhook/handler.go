// Package webhook exposes the inbound signal endpoint
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"signal_gateway/internal/core"
	"signal_gateway/pkg/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const maxBodyBytes = 64 << 10

const (
	StatusReceived            = "received"
	StatusExecuted            = "executed"
	StatusSkippedOpenPosition = "skipped (open position)"
	StatusSkippedRiskLimit    = "skipped (risk limit)"
	StatusSkippedZeroQuantity = "skipped (zero quantity)"
	StatusOrderFailed         = "error (order failed)"
	StatusInvalid             = "error (invalid payload)"
	StatusUnauthorized        = "error (unauthorized)"
)

// Processor runs a validated signal to completion
type Processor interface {
	Process(ctx context.Context, sig core.Signal) core.ExecutionResult
}

// Response is the JSON body returned to the caller
type Response struct {
	Status     string   `json:"status"`
	RunID      string   `json:"run_id,omitempty"`
	Outcome    string   `json:"outcome,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Reinforced bool     `json:"reinforced,omitempty"`
	Quantity   string   `json:"quantity,omitempty"`
	Partial    bool     `json:"partial,omitempty"`
	FailedLegs []string `json:"failed_legs,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Handler implements http.Handler for POST /webhook
type Handler struct {
	processor  Processor
	filter     Filter
	passphrase string
	logger     core.ILogger
	tracer     trace.Tracer
	metrics    *telemetry.MetricsHolder
	now        func() time.Time
}

// NewHandler creates the webhook handler. An empty passphrase disables the check.
func NewHandler(processor Processor, filter Filter, passphrase string, logger core.ILogger) *Handler {
	return &Handler{
		processor:  processor,
		filter:     filter,
		passphrase: passphrase,
		logger:     logger.WithField("component", "webhook"),
		tracer:     telemetry.GetTracer("webhook"),
		metrics:    telemetry.GetGlobalMetrics(),
		now:        time.Now,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, Response{Status: StatusInvalid, Error: "method not allowed"})
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "Webhook")
	defer span.End()

	receivedAt := h.now()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, Response{Status: StatusInvalid, Error: "body too large"})
		return
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		h.logger.Warn("Malformed webhook payload", "error", err, "remote", r.RemoteAddr)
		writeJSON(w, http.StatusBadRequest, Response{Status: StatusInvalid, Error: "malformed JSON"})
		return
	}

	if h.passphrase != "" && subtle.ConstantTimeCompare([]byte(p.Passphrase), []byte(h.passphrase)) != 1 {
		h.logger.Warn("Webhook passphrase mismatch", "remote", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, Response{Status: StatusUnauthorized})
		return
	}

	span.SetAttributes(
		attribute.String("strategy", p.Strategy),
		attribute.String("signal", p.Signal),
	)

	if !h.filter.Accepts(p) {
		h.logger.Debug("Signal ignored", "strategy", p.Strategy, "signal", p.Signal)
		writeJSON(w, http.StatusOK, Response{Status: StatusReceived})
		return
	}

	sig, err := h.filter.ToSignal(p, receivedAt)
	if err != nil {
		var verr ValidationError
		if errors.As(err, &verr) {
			h.logger.Warn("Invalid signal", "field", verr.Field, "reason", verr.Reason)
		}
		writeJSON(w, http.StatusBadRequest, Response{Status: StatusInvalid, Error: err.Error()})
		return
	}

	h.metrics.RecordSignal(ctx, sig.Strategy, sig.Symbol)
	h.logger.Info("Signal accepted",
		"strategy", sig.Strategy,
		"symbol", sig.Symbol,
		"side", sig.Side,
		"price", sig.Price.String())

	// a caller hanging up must not abort a bracket between legs
	res := h.processor.Process(context.WithoutCancel(ctx), sig)

	status, resp := ResponseFor(res)
	writeJSON(w, status, resp)
}

// ResponseFor maps a pipeline result to an HTTP status and body
func ResponseFor(res core.ExecutionResult) (int, Response) {
	resp := Response{
		RunID:      res.RunID,
		Outcome:    string(res.Outcome),
		Reason:     res.Reason,
		Reinforced: res.Reinforced,
	}
	if !res.Quantity.IsZero() {
		resp.Quantity = res.Quantity.String()
	}

	switch res.Outcome {
	case core.OutcomeExecuted:
		resp.Status = StatusExecuted
		resp.Partial = res.PartialFailure()
		for _, leg := range res.FailedProtectiveLegs() {
			resp.FailedLegs = append(resp.FailedLegs, string(leg))
		}
		return http.StatusOK, resp
	case core.OutcomeSkippedOpenPosition:
		resp.Status = StatusSkippedOpenPosition
		return http.StatusOK, resp
	case core.OutcomeSkippedRiskLimit:
		resp.Status = StatusSkippedRiskLimit
		return http.StatusOK, resp
	case core.OutcomeSkippedZeroQuantity:
		resp.Status = StatusSkippedZeroQuantity
		return http.StatusOK, resp
	default:
		resp.Status = StatusOrderFailed
		return http.StatusInternalServerError, resp
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
