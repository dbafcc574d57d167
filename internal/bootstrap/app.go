// Package bootstrap wires the gateway's components from configuration and runs them
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signal_gateway/internal/account"
	"signal_gateway/internal/alert"
	"signal_gateway/internal/config"
	"signal_gateway/internal/core"
	"signal_gateway/internal/exchange"
	"signal_gateway/internal/infrastructure/grpchealth"
	"signal_gateway/internal/infrastructure/health"
	"signal_gateway/internal/infrastructure/server"
	"signal_gateway/internal/risk"
	"signal_gateway/internal/trading/bracket"
	"signal_gateway/internal/trading/order"
	"signal_gateway/internal/trading/pipeline"
	"signal_gateway/internal/trading/reinforce"
	"signal_gateway/internal/webhook"
	"signal_gateway/pkg/concurrency"
	"signal_gateway/pkg/liveserver"
	"signal_gateway/pkg/logging"
	"signal_gateway/pkg/telemetry"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	healthCheckTimeout = 3 * time.Second
	alertDrainTimeout  = 5 * time.Second
)

// Runner is a component that runs until its context is cancelled
type Runner interface {
	Run(ctx context.Context) error
}

// Options adjust wiring for the CLI subcommands
type Options struct {
	// LogWriter receives console logs. Defaults to stdout.
	LogWriter io.Writer
	// Exchange replaces the configured adapter
	Exchange core.IExchange
}

// App holds the wired components
type App struct {
	Cfg       *config.Config
	Logger    *logging.ZapLogger
	Exchange  core.IExchange
	Pipeline  *pipeline.Pipeline
	Health    *health.HealthManager
	Alerts    *alert.AlertManager
	HTTP      *server.HTTPServer
	Hub       *liveserver.Hub
	telemetry *telemetry.Telemetry
	runners   []Runner
	closers   []func() error
}

// NewApp builds every component. Close must be called when NewApp succeeds.
func NewApp(cfg *config.Config, opts Options) (_ *App, err error) {
	app := &App{Cfg: cfg}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	if err := app.initTelemetry(); err != nil {
		return nil, err
	}

	w := opts.LogWriter
	if w == nil {
		w = os.Stdout
	}
	logger, err := logging.NewZapLoggerTo(cfg.System.LogLevel, w)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	app.Logger = logger
	app.closers = append(app.closers, func() error { _ = logger.Sync(); return nil })

	ex := opts.Exchange
	if ex == nil {
		ex, err = exchange.NewExchange(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("exchange: %w", err)
		}
	}
	app.Exchange = ex

	store, err := app.newSignalStore()
	if err != nil {
		return nil, fmt.Errorf("signal memory: %w", err)
	}

	policy := cfg.SizingPolicy()
	reader := account.NewReader(ex, cfg.Exchange.QuoteAsset, cfg.Exchange.FailOpenOnReadError, cfg.Exchange.RequestTimeout, logger)
	gate := risk.NewGate(reader, policy.MaxExposureRatio, logger)
	tracker := reinforce.NewTracker(store, policy.ReinforceWindow, logger)
	orders := order.NewExecutor(ex, cfg.Exchange.RateLimit, cfg.Exchange.RateBurst, cfg.Exchange.RequestTimeout, logger)
	brackets := bracket.NewExecutor(orders, logger)

	app.Alerts = app.newAlertManager()

	app.Hub = liveserver.NewHub(logger)
	publisher := liveserver.NewPublisher(app.Hub)

	app.Pipeline = pipeline.New(tracker, gate, brackets, policy, logger,
		pipeline.WithNotifier(alert.NewEventNotifier(app.Alerts)),
		pipeline.WithNotifier(publisher),
		pipeline.WithObserver(publisher),
	)

	app.Health = health.NewHealthManager(logger)
	app.Health.Register("exchange", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
		defer cancel()
		return ex.CheckHealth(ctx)
	})
	app.Health.Register("order_executor", orders.CheckHealth)
	if pinger, ok := store.(interface{ Ping(context.Context) error }); ok {
		app.Health.Register("signal_memory", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
			defer cancel()
			return pinger.Ping(ctx)
		})
	}

	hook := webhook.NewHandler(app.Pipeline, webhook.Filter{
		Strategies:    cfg.Signals.Strategies,
		Directions:    cfg.Signals.Directions,
		DefaultTicker: cfg.Signals.DefaultTicker,
	}, cfg.Signals.Passphrase.Reveal(), logger)

	app.HTTP = server.NewHTTPServer(cfg.Server.Port, cfg.Server.ShutdownTimeout, server.Routes{
		Webhook:     hook,
		EventStream: liveserver.NewServer(app.Hub, logger, cfg.Server.AllowedOrigins, cfg.Server.MaxEventClients),
	}, app.Health, logger)
	app.HTTP.UpdateStatus("exchange_adapter", ex.GetName())
	app.HTTP.UpdateStatus("signal_memory_backend", cfg.SignalMemory.Backend)
	app.HTTP.UpdateStatus("reinforce_window", policy.ReinforceWindow.String())
	app.HTTP.UpdateStatus("max_exposure_ratio", policy.MaxExposureRatio.String())

	app.runners = append(app.runners, app.Hub, app.HTTP)
	if cfg.Server.GRPCHealthPort != 0 {
		app.runners = append(app.runners, grpchealth.New(cfg.Server.GRPCHealthPort, 0, app.Health, logger))
	}

	logger.Info("Gateway wired",
		"exchange", ex.GetName(),
		"strategies", cfg.Signals.Strategies,
		"alert_channels", app.Alerts.Channels(),
		"fail_open_on_read_error", cfg.Exchange.FailOpenOnReadError)
	return app, nil
}

func (a *App) initTelemetry() error {
	if !a.Cfg.Telemetry.Enabled {
		return nil
	}
	var (
		t   *telemetry.Telemetry
		err error
	)
	if a.Cfg.Telemetry.ExportTraces {
		t, err = telemetry.Setup(a.Cfg.App.Name, telemetry.Options{})
	} else {
		t, err = telemetry.SetupMetrics(a.Cfg.App.Name)
	}
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	a.telemetry = t
	return nil
}

func (a *App) newSignalStore() (core.ISignalStore, error) {
	switch a.Cfg.SignalMemory.Backend {
	case config.MemoryBackendSQLite:
		store, err := reinforce.NewSQLiteStore(a.Cfg.SignalMemory.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return reinforce.NewMemoryStore(), nil
	}
}

func (a *App) newAlertManager() *alert.AlertManager {
	cfg := a.Cfg.Alerts
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "alerts",
		MaxWorkers:  cfg.PoolSize,
		MaxCapacity: cfg.QueueSize,
		NonBlocking: true,
	}, a.Logger)
	a.closers = append(a.closers, func() error {
		if !pool.Drain(alertDrainTimeout) {
			a.Logger.Warn("Pending alerts abandoned on shutdown")
		}
		return nil
	})

	am := alert.NewAlertManager(pool, a.Logger)
	if token := cfg.Telegram.Token.Reveal(); token != "" && cfg.Telegram.ChatID != "" {
		am.AddChannel(alert.NewTelegramChannel(token, cfg.Telegram.ChatID))
	}
	if url := cfg.Slack.WebhookURL.Reveal(); url != "" {
		am.AddChannel(alert.NewSlackChannel(url))
	}
	return am
}

// Run starts every runner and blocks until SIGINT/SIGTERM, ctx cancellation or
// the first runner error.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	a.Logger.Info("Starting gateway", "port", a.Cfg.Server.Port)
	for _, runner := range a.runners {
		r := runner
		g.Go(func() error {
			return r.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error("Gateway stopped with error", "error", err)
		return err
	}
	a.Logger.Info("Gateway shut down gracefully")
	return nil
}

// Simulate runs one signal through the wired pipeline without the HTTP surface
func (a *App) Simulate(ctx context.Context, symbol string, direction string, price decimal.Decimal) (core.ExecutionResult, error) {
	side, ok := core.ParseDirection(direction)
	if !ok {
		return core.ExecutionResult{}, fmt.Errorf("unknown direction %q", direction)
	}
	if !price.IsPositive() {
		return core.ExecutionResult{}, fmt.Errorf("price must be positive")
	}
	return a.Pipeline.Process(ctx, core.Signal{
		Strategy:   "simulate",
		Direction:  direction,
		Side:       side,
		Symbol:     symbol,
		Price:      price,
		ReceivedAt: time.Now(),
	}), nil
}

// Close releases resources in reverse order of creation
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		a.telemetry = nil
	}
	return errors.Join(errs...)
}
