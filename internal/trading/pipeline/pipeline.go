// Package pipeline runs one signal through reinforcement, the risk gate,
// sizing and the bracket executor, serialized per symbol.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"signal_gateway/internal/core"
	"signal_gateway/internal/risk"
	"signal_gateway/internal/trading/bracket"
	"signal_gateway/internal/trading/sizing"
	"signal_gateway/pkg/telemetry"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	ReasonAccountUnavailable = "account state unavailable"
	ReasonZeroQuantity       = "quantity rounds to zero"
	ReasonOrderFailed        = "order failed"
	ReasonInvalidSizing      = "invalid sizing input"
)

// Reinforcer records a signal arrival and reports whether it reinforces the previous one
type Reinforcer interface {
	ShouldReinforce(ctx context.Context, symbol string, now time.Time) bool
}

// RiskGate approves or skips a signal for a symbol
type RiskGate interface {
	Evaluate(ctx context.Context, symbol string) (risk.Decision, error)
}

// BracketExecutor places the entry and protective legs
type BracketExecutor interface {
	Execute(ctx context.Context, plan bracket.Plan) bracket.Result
}

// Pipeline orchestrates a signal run. It holds no state beyond the per-symbol locks.
type Pipeline struct {
	reinforcer Reinforcer
	gate       RiskGate
	bracket    BracketExecutor
	policy     core.SizingPolicy

	notifiers []core.INotifier
	observers []core.IResultObserver

	locks   *symbolLocks
	logger  core.ILogger
	tracer  trace.Tracer
	metrics *telemetry.MetricsHolder
	now     func() time.Time
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithNotifier adds an event notifier
func WithNotifier(n core.INotifier) Option {
	return func(p *Pipeline) { p.notifiers = append(p.notifiers, n) }
}

// WithObserver adds a result observer
func WithObserver(o core.IResultObserver) Option {
	return func(p *Pipeline) { p.observers = append(p.observers, o) }
}

// WithClock overrides the clock used for run timestamps
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline
func New(reinforcer Reinforcer, gate RiskGate, executor BracketExecutor, policy core.SizingPolicy, logger core.ILogger, opts ...Option) *Pipeline {
	p := &Pipeline{
		reinforcer: reinforcer,
		gate:       gate,
		bracket:    executor,
		policy:     policy,
		locks:      newSymbolLocks(),
		logger:     logger.WithField("component", "pipeline"),
		tracer:     telemetry.GetTracer("pipeline"),
		metrics:    telemetry.GetGlobalMetrics(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs sig to completion and returns its result. Runs for the same
// symbol never overlap. Errors are reported through the result, never returned.
func (p *Pipeline) Process(ctx context.Context, sig core.Signal) core.ExecutionResult {
	ctx, span := p.tracer.Start(ctx, "Process",
		trace.WithAttributes(
			attribute.String("symbol", sig.Symbol),
			attribute.String("side", string(sig.Side)),
			attribute.String("strategy", sig.Strategy),
		),
	)
	defer span.End()

	unlock := p.locks.lock(sig.Symbol)
	res := p.run(ctx, sig)
	unlock()

	span.SetAttributes(
		attribute.String("run_id", res.RunID),
		attribute.String("outcome", string(res.Outcome)),
		attribute.Bool("reinforced", res.Reinforced),
	)
	if res.Outcome == core.OutcomeFailed {
		span.SetStatus(codes.Error, res.Reason)
	}

	p.metrics.RecordOutcome(ctx, string(res.Outcome), float64(res.FinishedAt.Sub(res.StartedAt).Milliseconds()))
	p.publish(ctx, res)
	return res
}

func (p *Pipeline) run(ctx context.Context, sig core.Signal) core.ExecutionResult {
	res := core.ExecutionResult{
		RunID:     uuid.NewString(),
		Symbol:    sig.Symbol,
		Side:      sig.Side,
		StartedAt: p.now(),
	}
	logger := p.logger.WithFields(map[string]interface{}{
		"run_id": res.RunID,
		"symbol": sig.Symbol,
		"side":   sig.Side,
	})

	arrival := sig.ReceivedAt
	if arrival.IsZero() {
		arrival = res.StartedAt
	}
	res.Reinforced = p.reinforcer.ShouldReinforce(ctx, sig.Symbol, arrival)

	decision, err := p.gate.Evaluate(ctx, sig.Symbol)
	if err != nil {
		logger.Error("Risk gate could not read account state", "error", err)
		return p.fail(res, core.EventRunAborted, ReasonAccountUnavailable, "", err)
	}
	if !decision.Approved {
		return p.skip(res, decision.Outcome, decision.Reason)
	}

	prec := p.policy.PrecisionFor(sig.Symbol)
	qty, err := sizing.Quantity(decision.Balance, p.policy.RiskFraction(res.Reinforced), p.policy.Leverage, sig.Price, prec.QuantityDecimals)
	if err != nil {
		logger.Error("Sizing rejected inputs", "error", err)
		return p.fail(res, core.EventRunAborted, ReasonInvalidSizing, "", err)
	}
	if qty.IsZero() {
		logger.Info("Signal skipped", "reason", ReasonZeroQuantity, "balance", decision.Balance.String())
		return p.skip(res, core.OutcomeSkippedZeroQuantity, ReasonZeroQuantity)
	}
	res.Quantity = qty

	br := p.bracket.Execute(ctx, bracket.Plan{
		RunID:         res.RunID,
		Symbol:        sig.Symbol,
		Side:          sig.Side,
		SignalPrice:   sig.Price,
		Quantity:      qty,
		Precision:     prec,
		TakeProfitPct: p.policy.TakeProfitPct,
		StopLossPct:   p.policy.StopLossPct,
	})
	res.EntryPrice = br.EntryPrice
	res.Entry, res.TakeProfit, res.StopLoss = br.Entry, br.TakeProfit, br.StopLoss

	if !br.EntrySucceeded() {
		return p.fail(res, core.EventEntryFailed, ReasonOrderFailed, core.LegEntry, legErr(br.Entry))
	}

	res.Outcome = core.OutcomeExecuted
	for _, lr := range []*core.LegResult{br.TakeProfit, br.StopLoss} {
		if lr.Succeeded() {
			continue
		}
		res.Events = append(res.Events, p.event(res, core.EventProtectiveLegFailed, lr.Leg, lr.Intent.StopPrice, errDetail(lr.Err)))
	}
	// the success notice follows the protective leg attempts
	res.Events = append(res.Events, p.event(res, core.EventEntryPlaced, core.LegEntry, res.EntryPrice, ""))
	res.FinishedAt = p.now()

	logger.Info("Bracket executed",
		"quantity", qty.String(),
		"entry_price", res.EntryPrice.String(),
		"reinforced", res.Reinforced,
		"partial", res.PartialFailure())
	return res
}

func (p *Pipeline) skip(res core.ExecutionResult, outcome core.Outcome, reason string) core.ExecutionResult {
	res.Outcome = outcome
	res.Reason = reason
	res.Events = append(res.Events, p.event(res, core.EventSignalSkipped, "", decimal.Zero, reason))
	res.FinishedAt = p.now()
	return res
}

func (p *Pipeline) fail(res core.ExecutionResult, kind core.EventKind, reason string, leg core.Leg, err error) core.ExecutionResult {
	res.Outcome = core.OutcomeFailed
	res.Reason = reason
	detail := reason
	if err != nil {
		detail = fmt.Sprintf("%s: %s", reason, err)
	}
	res.Events = append(res.Events, p.event(res, kind, leg, res.EntryPrice, detail))
	res.FinishedAt = p.now()
	return res
}

func (p *Pipeline) event(res core.ExecutionResult, kind core.EventKind, leg core.Leg, price decimal.Decimal, detail string) core.Event {
	return core.Event{
		Kind:       kind,
		RunID:      res.RunID,
		Symbol:     res.Symbol,
		Side:       res.Side,
		Leg:        leg,
		Price:      price,
		Quantity:   res.Quantity,
		Reinforced: res.Reinforced,
		Detail:     detail,
		Timestamp:  p.now(),
	}
}

// publish hands events to notifiers and the result to observers. Notifiers
// must not block; a panicking observer is logged and ignored.
func (p *Pipeline) publish(ctx context.Context, res core.ExecutionResult) {
	for _, ev := range res.Events {
		for _, n := range p.notifiers {
			n.Notify(ctx, ev)
		}
	}
	for _, o := range p.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("Result observer panicked", "run_id", res.RunID, "panic", r)
				}
			}()
			o.OnResult(res)
		}()
	}
}

func legErr(lr *core.LegResult) error {
	if lr == nil {
		return errors.New("entry leg not attempted")
	}
	return lr.Err
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
