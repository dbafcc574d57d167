package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind classifies a pipeline event delivered to notifiers
type EventKind string

const (
	EventEntryPlaced         EventKind = "entry_placed"
	EventEntryFailed         EventKind = "entry_failed"
	EventProtectiveLegFailed EventKind = "protective_leg_failed"
	EventSignalSkipped       EventKind = "signal_skipped"
	// EventRunAborted means the run failed before any order was attempted
	EventRunAborted EventKind = "run_aborted"
)

// Event is an explicit output of a pipeline run. Notifiers decide how to deliver it.
type Event struct {
	Kind       EventKind
	RunID      string
	Symbol     string
	Side       Side
	Leg        Leg
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	Reinforced bool
	Detail     string
	Timestamp  time.Time
}
