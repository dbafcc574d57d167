// Package alert delivers operator notifications to chat channels in the background
package alert

import (
	"context"
	"sync"
	"time"

	"signal_gateway/internal/core"
	"signal_gateway/pkg/concurrency"
	"signal_gateway/pkg/telemetry"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

type AlertLevel string

const (
	Info     AlertLevel = "INFO"
	Warning  AlertLevel = "WARNING"
	Error    AlertLevel = "ERROR"
	Critical AlertLevel = "CRITICAL"
)

const sendTimeout = 10 * time.Second

type AlertPayload struct {
	Level     AlertLevel
	Title     string
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

type AlertChannel interface {
	Send(ctx context.Context, alert AlertPayload) error
	Name() string
}

// AlertManager fans alerts out to every channel on a worker pool.
// Alert never blocks the caller and delivery failures are only logged.
type AlertManager struct {
	channels []AlertChannel
	pool     *concurrency.WorkerPool
	retry    retrypolicy.RetryPolicy[any]
	logger   core.ILogger
	metrics  *telemetry.MetricsHolder
	mu       sync.RWMutex
}

func NewAlertManager(pool *concurrency.WorkerPool, logger core.ILogger) *AlertManager {
	return &AlertManager{
		pool: pool,
		retry: retrypolicy.NewBuilder[any]().
			WithMaxRetries(2).
			WithBackoff(200*time.Millisecond, 2*time.Second).
			Build(),
		logger:  logger.WithField("component", "alert_manager"),
		metrics: telemetry.GetGlobalMetrics(),
	}
}

func (am *AlertManager) AddChannel(ch AlertChannel) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.channels = append(am.channels, ch)
	am.logger.Info("Added alert channel", "name", ch.Name())
}

// Channels returns the names of the registered channels
func (am *AlertManager) Channels() []string {
	am.mu.RLock()
	defer am.mu.RUnlock()
	names := make([]string, 0, len(am.channels))
	for _, ch := range am.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Alert queues the payload for every channel. The caller's cancellation does not
// abort delivery.
func (am *AlertManager) Alert(ctx context.Context, title, message string, level AlertLevel, fields map[string]string) {
	payload := AlertPayload{
		Level:     level,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
		Fields:    fields,
	}

	am.logger.Debug("Triggering alert", "title", title, "level", level)

	detached := context.WithoutCancel(ctx)

	am.mu.RLock()
	channels := append([]AlertChannel(nil), am.channels...)
	am.mu.RUnlock()

	for _, ch := range channels {
		c := ch
		err := am.pool.Submit(func() { am.deliver(detached, c, payload) })
		if err != nil {
			am.metrics.RecordNotificationDropped(ctx, c.Name())
			am.logger.Warn("Alert dropped", "channel", c.Name(), "title", title, "queued", am.pool.Stats().Waiting, "error", err)
		}
	}
}

func (am *AlertManager) deliver(ctx context.Context, ch AlertChannel, payload AlertPayload) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	err := failsafe.With[any](am.retry).WithContext(ctx).Run(func() error {
		return ch.Send(ctx, payload)
	})
	if err != nil {
		am.metrics.RecordNotificationDropped(ctx, ch.Name())
		am.logger.Error("Failed to send alert", "channel", ch.Name(), "title", payload.Title, "error", err)
	}
}
