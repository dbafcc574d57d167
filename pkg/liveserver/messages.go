package liveserver

import (
	"time"

	"signal_gateway/internal/core"
)

// Message is the websocket envelope
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	TypeExecutionResult = "execution_result"
	TypeEvent           = "event"
)

// LegView is the wire form of a bracket leg
type LegView struct {
	Leg       string `json:"leg"`
	Type      string `json:"type"`
	Side      string `json:"side"`
	Price     string `json:"price,omitempty"`
	StopPrice string `json:"stop_price,omitempty"`
	OrderID   int64  `json:"order_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ResultView is the wire form of an ExecutionResult
type ResultView struct {
	RunID      string    `json:"run_id"`
	Outcome    string    `json:"outcome"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Reason     string    `json:"reason,omitempty"`
	Reinforced bool      `json:"reinforced"`
	Quantity   string    `json:"quantity,omitempty"`
	EntryPrice string    `json:"entry_price,omitempty"`
	Partial    bool      `json:"partial"`
	Legs       []LegView `json:"legs,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}

// EventView is the wire form of a pipeline Event
type EventView struct {
	Kind       string    `json:"kind"`
	RunID      string    `json:"run_id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Leg        string    `json:"leg,omitempty"`
	Price      string    `json:"price,omitempty"`
	Quantity   string    `json:"quantity,omitempty"`
	Reinforced bool      `json:"reinforced"`
	Detail     string    `json:"detail,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewResultMessage converts a result for the wire
func NewResultMessage(res core.ExecutionResult) Message {
	view := ResultView{
		RunID:      res.RunID,
		Outcome:    string(res.Outcome),
		Symbol:     res.Symbol,
		Side:       string(res.Side),
		Reason:     res.Reason,
		Reinforced: res.Reinforced,
		Partial:    res.PartialFailure(),
		StartedAt:  res.StartedAt,
		DurationMs: res.FinishedAt.Sub(res.StartedAt).Milliseconds(),
	}
	if !res.Quantity.IsZero() {
		view.Quantity = res.Quantity.String()
	}
	if !res.EntryPrice.IsZero() {
		view.EntryPrice = res.EntryPrice.String()
	}
	for _, lr := range []*core.LegResult{res.Entry, res.TakeProfit, res.StopLoss} {
		if lr == nil {
			continue
		}
		lv := LegView{
			Leg:     string(lr.Leg),
			Type:    string(lr.Intent.Type),
			Side:    string(lr.Intent.Side),
			OrderID: lr.OrderID,
		}
		if !lr.Intent.Price.IsZero() {
			lv.Price = lr.Intent.Price.String()
		}
		if !lr.Intent.StopPrice.IsZero() {
			lv.StopPrice = lr.Intent.StopPrice.String()
		}
		if lr.Err != nil {
			lv.Error = lr.Err.Error()
		}
		view.Legs = append(view.Legs, lv)
	}
	return Message{Type: TypeExecutionResult, Data: view}
}

// NewEventMessage converts an event for the wire
func NewEventMessage(ev core.Event) Message {
	view := EventView{
		Kind:       string(ev.Kind),
		RunID:      ev.RunID,
		Symbol:     ev.Symbol,
		Side:       string(ev.Side),
		Leg:        string(ev.Leg),
		Reinforced: ev.Reinforced,
		Detail:     ev.Detail,
		Timestamp:  ev.Timestamp,
	}
	if !ev.Price.IsZero() {
		view.Price = ev.Price.String()
	}
	if !ev.Quantity.IsZero() {
		view.Quantity = ev.Quantity.String()
	}
	return Message{Type: TypeEvent, Data: view}
}
