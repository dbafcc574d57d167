// Package core defines the core interfaces for the signal gateway
package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// IExchange is the exchange transport the gateway depends on
type IExchange interface {
	GetName() string
	CheckHealth(ctx context.Context) error

	// Account reads
	GetPositions(ctx context.Context) ([]Position, error)
	GetBalance(ctx context.Context, asset string) (decimal.Decimal, error)

	// Order placement. Returns an error for transport failures and exchange rejections.
	PlaceOrder(ctx context.Context, intent OrderIntent) (*Order, error)
}

// IAccountReader answers the account questions the risk gate asks.
// Read failures degrade to fail-safe defaults instead of surfacing.
type IAccountReader interface {
	HasOpenPosition(ctx context.Context, symbol string) (bool, error)
	TotalOpenExposureValue(ctx context.Context) decimal.Decimal
	Balance(ctx context.Context) decimal.Decimal
}

// IOrderExecutor places single orders on behalf of the bracket executor
type IOrderExecutor interface {
	PlaceOrder(ctx context.Context, intent OrderIntent) (*Order, error)
}

// ISignalStore holds the last accepted signal time per symbol
type ISignalStore interface {
	// Swap records ts for symbol and returns the previously stored time, if any
	Swap(ctx context.Context, symbol string, ts time.Time) (prev time.Time, found bool, err error)
	Get(ctx context.Context, symbol string) (time.Time, bool, error)
}

// INotifier receives pipeline events. Delivery is best-effort and must not block the caller.
type INotifier interface {
	Notify(ctx context.Context, event Event)
}

// IResultObserver is told about every finished pipeline run
type IResultObserver interface {
	OnResult(result ExecutionResult)
}

// IHealthMonitor defines the interface for health monitoring
type IHealthMonitor interface {
	Register(component string, check func() error)
	GetStatus() map[string]string
	IsHealthy() bool
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
