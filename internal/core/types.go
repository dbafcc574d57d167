package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order on the exchange
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the side that closes a position opened with s
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// ParseDirection maps a signal direction label to the entry side.
// Returns false for labels the gateway does not understand.
func ParseDirection(label string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "bull", "long", "buy":
		return SideBuy, true
	case "bear", "short", "sell":
		return SideSell, true
	default:
		return "", false
	}
}

// OrderType mirrors the futures order types the gateway submits
type OrderType string

const (
	OrderTypeLimit            OrderType = "LIMIT"
	OrderTypeTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
	OrderTypeStopMarket       OrderType = "STOP_MARKET"
)

// TimeInForce is the order validity policy
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
)

// Signal is an inbound trading signal. It is never mutated after validation.
type Signal struct {
	Strategy   string
	Direction  string // raw label, e.g. "bull"
	Side       Side   // entry side derived from Direction
	Symbol     string
	Price      decimal.Decimal
	ReceivedAt time.Time
}

// Position is an open position as reported by the exchange
type Position struct {
	Symbol     string
	Size       decimal.Decimal // signed quantity
	EntryPrice decimal.Decimal
	MarkPrice  decimal.Decimal
}

// IsOpen reports whether the position holds a non-zero quantity
func (p Position) IsOpen() bool {
	return !p.Size.IsZero()
}

// Exposure is |size| x mark price in quote currency
func (p Position) Exposure() decimal.Decimal {
	return p.Size.Abs().Mul(p.MarkPrice)
}

// AccountSnapshot is the account state read for a single pipeline run
type AccountSnapshot struct {
	Balance      decimal.Decimal
	OpenExposure decimal.Decimal
}

// OrderIntent is a fully specified order, built once and passed by value to the transport
type OrderIntent struct {
	Symbol        string
	Side          Side
	Type          OrderType
	TimeInForce   TimeInForce
	Quantity      decimal.Decimal // zero for closePosition conditional orders
	Price         decimal.Decimal // limit price, zero for conditional orders
	StopPrice     decimal.Decimal // trigger price for TP/SL legs
	ClosePosition bool
	ClientOrderID string
}

// Order is the synchronous placement response from the exchange
type Order struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Status        string
	UpdateTime    int64
}

// Leg names one order of a bracket
type Leg string

const (
	LegEntry      Leg = "entry"
	LegTakeProfit Leg = "take_profit"
	LegStopLoss   Leg = "stop_loss"
)

// LegResult records what happened to a single bracket leg
type LegResult struct {
	Leg       Leg
	Intent    OrderIntent
	Attempted bool
	OrderID   int64
	Err       error
}

// Succeeded reports whether the leg was placed and acknowledged with an order id
func (l *LegResult) Succeeded() bool {
	return l != nil && l.Attempted && l.Err == nil && l.OrderID != 0
}

// Outcome is the terminal tag of a pipeline run
type Outcome string

const (
	OutcomeExecuted            Outcome = "executed"
	OutcomeSkippedOpenPosition Outcome = "skipped_open_position"
	OutcomeSkippedRiskLimit    Outcome = "skipped_risk_limit"
	OutcomeSkippedZeroQuantity Outcome = "skipped_zero_quantity"
	OutcomeFailed              Outcome = "failed"
)

// IsSkip reports whether the outcome is a policy skip (no order placed, not an error)
func (o Outcome) IsSkip() bool {
	return strings.HasPrefix(string(o), "skipped_")
}

// ExecutionResult is the terminal value of one pipeline run. It is not persisted.
type ExecutionResult struct {
	RunID      string
	Outcome    Outcome
	Symbol     string
	Side       Side
	Reason     string
	Reinforced bool
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	Entry      *LegResult
	TakeProfit *LegResult
	StopLoss   *LegResult
	Events     []Event
	StartedAt  time.Time
	FinishedAt time.Time
}

// FailedProtectiveLegs lists the TP/SL legs that were attempted and failed
func (r ExecutionResult) FailedProtectiveLegs() []Leg {
	var legs []Leg
	for _, l := range []*LegResult{r.TakeProfit, r.StopLoss} {
		if l != nil && l.Attempted && !l.Succeeded() {
			legs = append(legs, l.Leg)
		}
	}
	return legs
}

// PartialFailure reports an executed entry with at least one missing protective order
func (r ExecutionResult) PartialFailure() bool {
	return r.Outcome == OutcomeExecuted && len(r.FailedProtectiveLegs()) > 0
}
