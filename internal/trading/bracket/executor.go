// Package bracket places an entry order and its take-profit and stop-loss legs.
//
// The exchange has no atomic multi-leg placement. Once the entry is
// acknowledged the position exists, so a protective leg failure is reported
// on its LegResult and never rolls the entry back.
package bracket

import (
	"context"
	"strings"

	"signal_gateway/internal/core"
	"signal_gateway/pkg/telemetry"
	"signal_gateway/pkg/tradingutils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Plan is a sized, risk-approved bracket
type Plan struct {
	RunID         string
	Symbol        string
	Side          core.Side
	SignalPrice   decimal.Decimal
	Quantity      decimal.Decimal
	Precision     core.SymbolPrecision
	TakeProfitPct decimal.Decimal
	StopLossPct   decimal.Decimal
}

// Result holds the per-leg outcome. TakeProfit and StopLoss are nil when
// the entry failed.
type Result struct {
	EntryPrice decimal.Decimal
	Entry      *core.LegResult
	TakeProfit *core.LegResult
	StopLoss   *core.LegResult
}

// EntrySucceeded reports whether the entry leg was acknowledged
func (r Result) EntrySucceeded() bool {
	return r.Entry.Succeeded()
}

// Prices returns the rounded entry, take-profit and stop-loss prices.
// Protective prices are offset from the unrounded signal price and mirrored for SELL.
func Prices(side core.Side, signalPrice, tpPct, slPct decimal.Decimal, priceDecimals int) (entry, tp, sl decimal.Decimal) {
	tpOffset, slOffset := tpPct, slPct.Neg()
	if side == core.SideSell {
		tpOffset, slOffset = tpPct.Neg(), slPct
	}
	entry = tradingutils.RoundPrice(signalPrice, priceDecimals)
	tp = tradingutils.RoundPrice(tradingutils.OffsetByPercent(signalPrice, tpOffset), priceDecimals)
	sl = tradingutils.RoundPrice(tradingutils.OffsetByPercent(signalPrice, slOffset), priceDecimals)
	return entry, tp, sl
}

// Executor runs the three-leg state machine
type Executor struct {
	orders  core.IOrderExecutor
	logger  core.ILogger
	metrics *telemetry.MetricsHolder
}

// NewExecutor creates a bracket executor on top of a single-order executor
func NewExecutor(orders core.IOrderExecutor, logger core.ILogger) *Executor {
	return &Executor{
		orders:  orders,
		logger:  logger.WithField("component", "bracket_executor"),
		metrics: telemetry.GetGlobalMetrics(),
	}
}

// Execute places the entry, then TP and SL independently of each other.
// A non-positive quantity is a no-op: nothing is submitted and Entry is left unattempted.
func (e *Executor) Execute(ctx context.Context, plan Plan) Result {
	entryPrice, tpPrice, slPrice := Prices(plan.Side, plan.SignalPrice, plan.TakeProfitPct, plan.StopLossPct, plan.Precision.PriceDecimals)
	ids := newClientOrderIDs(plan.RunID)

	res := Result{EntryPrice: entryPrice}
	if !plan.Quantity.IsPositive() {
		e.logger.Info("Bracket skipped, nothing to size", "run_id", plan.RunID, "symbol", plan.Symbol, "quantity", plan.Quantity.String())
		res.Entry = &core.LegResult{Leg: core.LegEntry}
		return res
	}

	res.Entry = e.place(ctx, plan, core.LegEntry, core.OrderIntent{
		Symbol:        plan.Symbol,
		Side:          plan.Side,
		Type:          core.OrderTypeLimit,
		TimeInForce:   core.TimeInForceGTC,
		Quantity:      plan.Quantity,
		Price:         entryPrice,
		ClientOrderID: ids.entry,
	})
	if !res.Entry.Succeeded() {
		return res
	}

	closeSide := plan.Side.Opposite()
	res.TakeProfit = e.place(ctx, plan, core.LegTakeProfit, core.OrderIntent{
		Symbol:        plan.Symbol,
		Side:          closeSide,
		Type:          core.OrderTypeTakeProfitMarket,
		StopPrice:     tpPrice,
		ClosePosition: true,
		ClientOrderID: ids.takeProfit,
	})
	res.StopLoss = e.place(ctx, plan, core.LegStopLoss, core.OrderIntent{
		Symbol:        plan.Symbol,
		Side:          closeSide,
		Type:          core.OrderTypeStopMarket,
		StopPrice:     slPrice,
		ClosePosition: true,
		ClientOrderID: ids.stopLoss,
	})
	return res
}

func (e *Executor) place(ctx context.Context, plan Plan, leg core.Leg, intent core.OrderIntent) *core.LegResult {
	lr := &core.LegResult{Leg: leg, Intent: intent, Attempted: true}

	order, err := e.orders.PlaceOrder(ctx, intent)
	if err == nil {
		lr.OrderID = order.OrderID
	}
	lr.Err = err

	e.metrics.RecordOrder(ctx, string(leg), err == nil)

	if err != nil {
		if leg != core.LegEntry {
			e.metrics.RecordProtectiveLegFailure(ctx, plan.Symbol, string(leg))
		}
		e.logger.Error("Bracket leg failed",
			"run_id", plan.RunID,
			"symbol", plan.Symbol,
			"leg", leg,
			"error", err)
		return lr
	}

	e.logger.Info("Bracket leg placed",
		"run_id", plan.RunID,
		"symbol", plan.Symbol,
		"leg", leg,
		"order_id", lr.OrderID)
	return lr
}

type clientOrderIDs struct {
	entry, takeProfit, stopLoss string
}

// newClientOrderIDs derives per-leg ids from the run id. Binance caps
// newClientOrderId at 36 characters.
func newClientOrderIDs(runID string) clientOrderIDs {
	base := strings.ReplaceAll(runID, "-", "")
	if _, err := uuid.Parse(runID); err != nil || len(base) != 32 {
		base = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return clientOrderIDs{
		entry:      "sge" + base,
		takeProfit: "sgt" + base,
		stopLoss:   "sgs" + base,
	}
}
