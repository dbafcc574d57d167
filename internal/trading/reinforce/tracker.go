// Package reinforce tracks the last accepted signal per symbol and decides
// whether a new signal reinforces a recent one.
package reinforce

import (
	"context"
	"time"

	"signal_gateway/internal/core"
)

// Tracker decides reinforcement against an injected signal store
type Tracker struct {
	store  core.ISignalStore
	window time.Duration
	logger core.ILogger
}

// NewTracker creates a tracker with the given reinforcement window
func NewTracker(store core.ISignalStore, window time.Duration, logger core.ILogger) *Tracker {
	return &Tracker{
		store:  store,
		window: window,
		logger: logger.WithField("component", "reinforcement_tracker"),
	}
}

// ShouldReinforce records now for symbol and reports whether the previous signal
// arrived less than the window ago. The timestamp is recorded whatever happens
// to the signal afterwards.
func (t *Tracker) ShouldReinforce(ctx context.Context, symbol string, now time.Time) bool {
	prev, found, err := t.store.Swap(ctx, symbol, now)
	if err != nil {
		t.logger.Error("Signal memory unavailable, sizing as a base signal", "symbol", symbol, "error", err)
		return false
	}
	if !found {
		return false
	}

	elapsed := now.Sub(prev)
	reinforced := elapsed < t.window
	if reinforced {
		t.logger.Info("Reinforced signal", "symbol", symbol, "since_previous", elapsed.String())
	}
	return reinforced
}
