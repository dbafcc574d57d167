package alert

import (
	"context"
	"fmt"

	"signal_gateway/internal/core"
)

// EventNotifier turns pipeline events into operator alerts.
// Skipped signals are logged by the pipeline and not alerted.
type EventNotifier struct {
	manager *AlertManager
}

func NewEventNotifier(manager *AlertManager) *EventNotifier {
	return &EventNotifier{manager: manager}
}

func (n *EventNotifier) Notify(ctx context.Context, ev core.Event) {
	title, message, level, ok := Describe(ev)
	if !ok {
		return
	}
	n.manager.Alert(ctx, title, message, level, map[string]string{
		"symbol": ev.Symbol,
		"side":   string(ev.Side),
		"run_id": ev.RunID,
	})
}

// Describe renders an event as alert text. ok is false for events that are not alerted.
func Describe(ev core.Event) (title, message string, level AlertLevel, ok bool) {
	switch ev.Kind {
	case core.EventEntryPlaced:
		reinforced := ""
		if ev.Reinforced {
			reinforced = " (reinforced)"
		}
		return "Entry complete",
			fmt.Sprintf("%s %s %s @ %s%s", ev.Side, ev.Quantity, ev.Symbol, ev.Price, reinforced),
			Info, true
	case core.EventEntryFailed:
		return "Order failed",
			fmt.Sprintf("%s %s entry not placed: %s", ev.Side, ev.Symbol, ev.Detail),
			Error, true
	case core.EventRunAborted:
		return "Signal not executed",
			fmt.Sprintf("%s %s no order attempted: %s", ev.Side, ev.Symbol, ev.Detail),
			Error, true
	case core.EventProtectiveLegFailed:
		return "Protective order failed",
			fmt.Sprintf("%s for %s at %s not placed, position is open without it: %s", ev.Leg, ev.Symbol, ev.Price, ev.Detail),
			Critical, true
	default:
		return "", "", "", false
	}
}
