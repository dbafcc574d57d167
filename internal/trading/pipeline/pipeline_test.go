package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"signal_gateway/internal/account"
	"signal_gateway/internal/core"
	"signal_gateway/internal/mock"
	"signal_gateway/internal/risk"
	"signal_gateway/internal/trading/bracket"
	"signal_gateway/internal/trading/order"
	"signal_gateway/internal/trading/reinforce"
	apperrors "signal_gateway/pkg/errors"
	"signal_gateway/pkg/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testPolicy() core.SizingPolicy {
	return core.SizingPolicy{
		BaseRiskFraction:       d("0.10"),
		ReinforcedRiskFraction: d("0.20"),
		Leverage:               d("2"),
		TakeProfitPct:          d("3.5"),
		StopLossPct:            d("1.0"),
		MaxExposureRatio:       d("1.0"),
		ReinforceWindow:        90 * time.Minute,
		DefaultPrecision:       core.SymbolPrecision{QuantityDecimals: 2, PriceDecimals: 4},
	}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *eventRecorder) Notify(_ context.Context, ev core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) kinds() []core.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.EventKind
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

type resultRecorder struct {
	mu      sync.Mutex
	results []core.ExecutionResult
}

func (r *resultRecorder) OnResult(res core.ExecutionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

type harness struct {
	ex      *mock.MockExchange
	p       *Pipeline
	events  *eventRecorder
	results *resultRecorder
}

func newHarness(t *testing.T, failOpen bool, opts ...Option) *harness {
	t.Helper()
	logger := logging.NewNop()
	policy := testPolicy()

	ex := mock.NewMockExchange("test")
	reader := account.NewReader(ex, "USDT", failOpen, time.Second, logger)
	gate := risk.NewGate(reader, policy.MaxExposureRatio, logger)
	tracker := reinforce.NewTracker(reinforce.NewMemoryStore(), policy.ReinforceWindow, logger)
	br := bracket.NewExecutor(order.NewExecutor(ex, 0, 0, time.Second, logger), logger)

	h := &harness{ex: ex, events: &eventRecorder{}, results: &resultRecorder{}}
	opts = append([]Option{WithNotifier(h.events), WithObserver(h.results)}, opts...)
	h.p = New(tracker, gate, br, policy, logger, opts...)
	return h
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func signal(symbol, price string, at time.Time) core.Signal {
	return core.Signal{
		Strategy:   "rsi_divergence",
		Direction:  "bull",
		Side:       core.SideBuy,
		Symbol:     symbol,
		Price:      d(price),
		ReceivedAt: at,
	}
}

func TestProcess_WorkedExample(t *testing.T) {
	h := newHarness(t, true)

	res := h.p.Process(context.Background(), signal("ADAUSDT", "1.25", t0))

	require.Equal(t, core.OutcomeExecuted, res.Outcome)
	assert.False(t, res.Reinforced)
	assert.Equal(t, "1600", res.Quantity.String())
	assert.Equal(t, "1.25", res.EntryPrice.String())
	assert.Equal(t, "1.2938", res.TakeProfit.Intent.StopPrice.String())
	assert.Equal(t, "1.2375", res.StopLoss.Intent.StopPrice.String())
	assert.False(t, res.PartialFailure())
	assert.NotEmpty(t, res.RunID)

	assert.Equal(t, []core.EventKind{core.EventEntryPlaced}, h.events.kinds())
	require.Len(t, h.results.results, 1)
	assert.Equal(t, res.RunID, h.results.results[0].RunID)
}

func TestProcess_ReinforcedDoublesQuantity(t *testing.T) {
	h := newHarness(t, true)

	first := h.p.Process(context.Background(), signal("ADAUSDT", "1.25", t0))
	second := h.p.Process(context.Background(), signal("ADAUSDT", "1.25", t0.Add(10*time.Minute)))

	assert.Equal(t, "1600", first.Quantity.String())
	assert.True(t, second.Reinforced)
	assert.Equal(t, "3200", second.Quantity.String())
}

func TestProcess_WindowBoundaryIsNotReinforced(t *testing.T) {
	h := newHarness(t, true)

	h.p.Process(context.Background(), signal("ADAUSDT", "1.25", t0))
	res := h.p.Process(context.Background(), signal("ADAUSDT", "1.25", t0.Add(90*time.Minute)))

	assert.False(t, res.Reinforced)
	assert.Equal(t, "1600", res.Quantity.String())
}

func TestProcess_OpenPositionSkipsWithoutOrders(t *testing.T) {
	h := newHarness(t, true)
	h.ex.SetPosition("ADAUSDT", d("100"), d("1.2"))

	res := h.p.Process(context.Background(), signal("ADAUSDT", "1.25", t0))

	assert.Equal(t, core.OutcomeSkippedOpenPosition, res.Outcome)
	assert.Equal(t, risk.ReasonOpenPosition, res.Reason)
	assert.Empty(t, h.ex.Orders())
	assert.Equal(t, []core.EventKind{core.EventSignalSkipped}, h.events.kinds())
}

func TestProcess_RiskLimit(t *testing.T) {
	h := newHarness(t, true)
	h.ex.SetPosition("BTCUSDT", d("1"), d("20000"))

	res := h.p.Process(context.Background(), signal("ADAUSDT", "1.25", t0))

	assert.Equal(t, core.OutcomeSkippedRiskLimit, res.Outcome)
	assert.Empty(t, h.ex.Orders())
}

func TestProcess_ZeroBalanceSkipsRiskLimit(t *testing.T) {
	h := newHarness(t, true)
	h.ex.SetBalance("USDT", decimal.Zero)

	res := h.p.Process(context.Background(), signal("ADAUSDT", "1.25", t0))
	assert.Equal(t, core.OutcomeSkippedRiskLimit, res.Outcome)
}

func TestProcess_SkippedSignalStillReinforces(t *testing.T) {
	h := newHarness(t, true)
	h.ex.SetPosition("ADAUSDT", d("100"), d("1.2"))

	first := h.p.Process(context.Background(), signal("ADAUSDT", "1.25", t0))
	require.Equal(t, core.OutcomeSkippedOpenPosition, first.Outcome)

	h.ex.SetPosition("ADAUSDT", decimal.Zero, decimal.Zero)
	second := h.p.Process(context.Background(), signal("ADAUSDT", "1.25", t0.Add(10*time.Minute)))

	assert.Equal(t, core.OutcomeExecuted, second.Outcome)
	assert.True(t, second.Reinforced)
	assert.Equal(t, "3200", second.Quantity.String())
}

func TestProcess_ZeroQuantity(t *testing.T) {
	h := newHarness(t, true)

	res := h.p.Process(context.Background(), signal("BTCUSDT", "1000000000", t0))

	assert.Equal(t, core.OutcomeSkippedZeroQuantity, res.Outcome)
	assert.True(t, res.Outcome.IsSkip())
	assert.Empty(t, h.ex.Orders())
}

func TestProcess_EntryFailure(t *testing.T) {
	h := newHarness(t, true)
	h.ex.FailOrders(core.OrderTypeLimit, apperrors.ErrInsufficientFunds)

	res := h.p.Process(context.Background(), signal("ADAUSDT", "1.25", t0))

	assert.Equal(t, core.OutcomeFailed, res.Outcome)
	assert.Equal(t, ReasonOrderFailed, res.Reason)
	assert.Nil(t, res.TakeProfit)
	assert.Nil(t, res.StopLoss)
	assert.Len(t, h.ex.Orders(), 1)

	kinds := h.events.kinds()
	require.Equal(t, []core.EventKind{core.EventEntryFailed}, kinds)
	assert.Contains(t, h.events.events[0].Detail, "insufficient funds")
}

func TestProcess_TakeProfitFailureIsPartial(t *testing.T) {
	h := newHarness(t, true)
	h.ex.FailOrders(core.OrderTypeTakeProfitMarket, errors.New("order would immediately trigger"))

	res := h.p.Process(context.Background(), signal("ADAUSDT", "1.25", t0))

	assert.Equal(t, core.OutcomeExecuted, res.Outcome)
	assert.True(t, res.PartialFailure())
	assert.Equal(t, []core.Leg{core.LegTakeProfit}, res.FailedProtectiveLegs())
	assert.True(t, res.StopLoss.Succeeded())

	assert.Equal(t, []core.EventKind{core.EventProtectiveLegFailed, core.EventEntryPlaced}, h.events.kinds())
	assert.Equal(t, core.LegTakeProfit, h.events.events[0].Leg)
}

func TestProcess_FailClosedOnPositionRead(t *testing.T) {
	h := newHarness(t, false)
	h.ex.FailPositions(apperrors.ErrNetwork)

	res := h.p.Process(context.Background(), signal("ADAUSDT", "1.25", t0))
	assert.Equal(t, core.OutcomeFailed, res.Outcome)
	assert.Equal(t, ReasonAccountUnavailable, res.Reason)
	assert.Empty(t, h.ex.Orders())
	assert.Equal(t, []core.EventKind{core.EventRunAborted}, h.events.kinds())
	assert.Empty(t, h.events.events[0].Leg)

	// the arrival was still recorded
	h.ex.FailPositions(nil)
	next := h.p.Process(context.Background(), signal("ADAUSDT", "1.25", t0.Add(time.Minute)))
	assert.True(t, next.Reinforced)
}

func TestProcess_FailOpenOnPositionRead(t *testing.T) {
	h := newHarness(t, true)
	h.ex.FailPositions(apperrors.ErrNetwork)

	res := h.p.Process(context.Background(), signal("ADAUSDT", "1.25", t0))
	assert.Equal(t, core.OutcomeExecuted, res.Outcome)
}

func TestProcess_SameSymbolIsSerialized(t *testing.T) {
	h := newHarness(t, true)
	h.ex.SetFillEntries(true)
	h.ex.SetPlaceDelay(20 * time.Millisecond)

	const n = 5
	var wg sync.WaitGroup
	outcomes := make([]core.Outcome, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := h.p.Process(context.Background(), signal("ADAUSDT", "1.25", t0.Add(time.Duration(i)*time.Second)))
			outcomes[i] = res.Outcome
		}(i)
	}
	wg.Wait()

	executed := 0
	for _, o := range outcomes {
		if o == core.OutcomeExecuted {
			executed++
			continue
		}
		assert.Equal(t, core.OutcomeSkippedOpenPosition, o)
	}
	assert.Equal(t, 1, executed)
	assert.Zero(t, h.p.locks.len())
}

func TestProcess_DifferentSymbolsRunConcurrently(t *testing.T) {
	h := newHarness(t, true)
	h.ex.SetPlaceDelay(50 * time.Millisecond)

	symbols := []string{"ADAUSDT", "XRPUSDT", "DOGEUSDT"}
	start := time.Now()
	var wg sync.WaitGroup
	for _, s := range symbols {
		wg.Add(1)
		go func(s string) {
			defer wg.Done()
			h.p.Process(context.Background(), signal(s, "1.25", t0))
		}(s)
	}
	wg.Wait()

	// three serialized legs per run; serial execution across symbols would take 450ms
	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.Len(t, h.ex.Orders(), 9)
}

type panickingObserver struct{}

func (panickingObserver) OnResult(core.ExecutionResult) { panic("boom") }

func TestProcess_ObserverPanicIsContained(t *testing.T) {
	h := newHarness(t, true, WithObserver(panickingObserver{}))

	assert.NotPanics(t, func() {
		res := h.p.Process(context.Background(), signal("ADAUSDT", "1.25", t0))
		assert.Equal(t, core.OutcomeExecuted, res.Outcome)
	})
}
