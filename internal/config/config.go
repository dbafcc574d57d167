// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"signal_gateway/internal/core"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Exchange adapters selectable via app.exchange
const (
	ExchangeBinance    = "binance"
	ExchangeBinanceSDK = "binance_sdk"
	ExchangeMock       = "mock"
)

// Signal memory backends
const (
	MemoryBackendMemory = "memory"
	MemoryBackendSQLite = "sqlite"
)

// Config represents the complete configuration structure
type Config struct {
	App          AppConfig          `yaml:"app"`
	Exchange     ExchangeConfig     `yaml:"exchange"`
	Sizing       SizingConfig       `yaml:"sizing"`
	Signals      SignalsConfig      `yaml:"signals"`
	SignalMemory SignalMemoryConfig `yaml:"signal_memory"`
	Alerts       AlertsConfig       `yaml:"alerts"`
	Server       ServerConfig       `yaml:"server"`
	System       SystemConfig       `yaml:"system"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name     string `yaml:"name"`
	Exchange string `yaml:"exchange"` // binance | binance_sdk | mock
}

// ExchangeConfig contains exchange connection settings
type ExchangeConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         Secret        `yaml:"api_key"`
	SecretKey      Secret        `yaml:"secret_key"`
	RecvWindowMs   int64         `yaml:"recv_window_ms"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	QuoteAsset     string        `yaml:"quote_asset"`
	RateLimit      float64       `yaml:"rate_limit"` // order placements per second
	RateBurst      int           `yaml:"rate_burst"`
	// FailOpenOnReadError keeps the pipeline running on a failed position read
	// by assuming no position is open.
	FailOpenOnReadError bool `yaml:"fail_open_on_read_error"`
}

// SymbolConfig overrides rounding for one instrument
type SymbolConfig struct {
	QuantityDecimals int `yaml:"quantity_decimals"`
	PriceDecimals    int `yaml:"price_decimals"`
}

// SizingConfig holds the sizing and bracket policy
type SizingConfig struct {
	BaseRiskFraction       float64                 `yaml:"base_risk_fraction"`
	ReinforcedRiskFraction float64                 `yaml:"reinforced_risk_fraction"`
	Leverage               float64                 `yaml:"leverage"`
	TakeProfitPct          float64                 `yaml:"take_profit_pct"`
	StopLossPct            float64                 `yaml:"stop_loss_pct"`
	MaxExposureRatio       float64                 `yaml:"max_exposure_ratio"`
	ReinforceWindow        time.Duration           `yaml:"reinforce_window"`
	QuantityDecimals       int                     `yaml:"quantity_decimals"`
	PriceDecimals          int                     `yaml:"price_decimals"`
	Symbols                map[string]SymbolConfig `yaml:"symbols"`
}

// SignalsConfig filters inbound webhook payloads
type SignalsConfig struct {
	Strategies    []string `yaml:"strategies"`
	Directions    []string `yaml:"directions"`
	DefaultTicker string   `yaml:"default_ticker"`
	Passphrase    Secret   `yaml:"passphrase"`
}

// SignalMemoryConfig selects where last-signal timestamps live
type SignalMemoryConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// TelegramConfig contains Telegram bot settings
type TelegramConfig struct {
	Token  Secret `yaml:"token"`
	ChatID string `yaml:"chat_id"`
}

// SlackConfig contains the Slack incoming webhook
type SlackConfig struct {
	WebhookURL Secret `yaml:"webhook_url"`
}

// AlertsConfig contains notification channel settings
type AlertsConfig struct {
	Telegram  TelegramConfig `yaml:"telegram"`
	Slack     SlackConfig    `yaml:"slack"`
	PoolSize  int            `yaml:"pool_size"`
	QueueSize int            `yaml:"queue_size"`
}

// ServerConfig contains listener settings
type ServerConfig struct {
	Port            int           `yaml:"port"`
	GRPCHealthPort  int           `yaml:"grpc_health_port"` // 0 disables the gRPC health service
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	MaxEventClients int           `yaml:"max_event_clients"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	Enabled      bool `yaml:"enabled"`
	ExportTraces bool `yaml:"export_traces"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion.
// Fields absent from the file keep their DefaultConfig values.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expandedData), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.ApplyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// FromEnv builds a configuration from DefaultConfig and process environment only
func FromEnv() (*Config, error) {
	config := DefaultConfig()
	if err := config.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// ApplyEnvOverrides copies well-known environment variables over the loaded values
func (c *Config) ApplyEnvOverrides() error {
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		c.Exchange.APIKey = Secret(v)
	}
	if v := os.Getenv("BINANCE_SECRET_KEY"); v != "" {
		c.Exchange.SecretKey = Secret(v)
	}
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		c.Alerts.Telegram.Token = Secret(v)
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Alerts.Telegram.ChatID = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return ValidationError{Field: "PORT", Value: v, Message: "must be an integer"}
		}
		c.Server.Port = port
	}
	return nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errors []string

	validators := []func() error{
		c.validateAppConfig,
		c.validateExchangeConfig,
		c.validateSizingConfig,
		c.validateSignalsConfig,
		c.validateSignalMemoryConfig,
		c.validateServerConfig,
		c.validateSystemConfig,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			errors = append(errors, err.Error())
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

func (c *Config) validateAppConfig() error {
	validExchanges := []string{ExchangeBinance, ExchangeBinanceSDK, ExchangeMock}
	if !contains(validExchanges, c.App.Exchange) {
		return ValidationError{
			Field:   "app.exchange",
			Value:   c.App.Exchange,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validExchanges, ", ")),
		}
	}
	return nil
}

func (c *Config) validateExchangeConfig() error {
	if c.App.Exchange == ExchangeMock {
		return nil
	}

	if c.Exchange.BaseURL == "" {
		return ValidationError{Field: "exchange.base_url", Message: "base URL is required"}
	}
	if c.Exchange.APIKey == "" {
		return ValidationError{Field: "exchange.api_key", Message: "API key is required"}
	}
	if c.Exchange.SecretKey == "" {
		return ValidationError{Field: "exchange.secret_key", Message: "secret key is required"}
	}
	if c.Exchange.RecvWindowMs <= 0 || c.Exchange.RecvWindowMs > 60000 {
		return ValidationError{
			Field:   "exchange.recv_window_ms",
			Value:   c.Exchange.RecvWindowMs,
			Message: "must be between 1 and 60000",
		}
	}
	if c.Exchange.RequestTimeout <= 0 {
		return ValidationError{
			Field:   "exchange.request_timeout",
			Value:   c.Exchange.RequestTimeout,
			Message: "outbound calls need a positive timeout",
		}
	}
	if c.Exchange.QuoteAsset == "" {
		return ValidationError{Field: "exchange.quote_asset", Message: "quote asset is required"}
	}
	if c.Exchange.RateLimit <= 0 || c.Exchange.RateBurst <= 0 {
		return ValidationError{
			Field:   "exchange.rate_limit",
			Value:   c.Exchange.RateLimit,
			Message: "rate limit and burst must be positive",
		}
	}
	return nil
}

func (c *Config) validateSizingConfig() error {
	s := c.Sizing
	if s.BaseRiskFraction <= 0 || s.BaseRiskFraction > 1 {
		return ValidationError{Field: "sizing.base_risk_fraction", Value: s.BaseRiskFraction, Message: "must be in (0, 1]"}
	}
	if s.ReinforcedRiskFraction < s.BaseRiskFraction || s.ReinforcedRiskFraction > 1 {
		return ValidationError{Field: "sizing.reinforced_risk_fraction", Value: s.ReinforcedRiskFraction, Message: "must be in [base_risk_fraction, 1]"}
	}
	if s.Leverage < 1 {
		return ValidationError{Field: "sizing.leverage", Value: s.Leverage, Message: "must be at least 1"}
	}
	if s.TakeProfitPct <= 0 {
		return ValidationError{Field: "sizing.take_profit_pct", Value: s.TakeProfitPct, Message: "must be positive"}
	}
	if s.StopLossPct <= 0 || s.StopLossPct >= 100 {
		return ValidationError{Field: "sizing.stop_loss_pct", Value: s.StopLossPct, Message: "must be in (0, 100)"}
	}
	if s.MaxExposureRatio <= 0 {
		return ValidationError{Field: "sizing.max_exposure_ratio", Value: s.MaxExposureRatio, Message: "must be positive"}
	}
	if s.ReinforceWindow <= 0 {
		return ValidationError{Field: "sizing.reinforce_window", Value: s.ReinforceWindow, Message: "must be positive"}
	}
	if err := validateDecimals("sizing", s.QuantityDecimals, s.PriceDecimals); err != nil {
		return err
	}
	for symbol, sc := range s.Symbols {
		if err := validateDecimals("sizing.symbols."+symbol, sc.QuantityDecimals, sc.PriceDecimals); err != nil {
			return err
		}
	}
	return nil
}

func validateDecimals(prefix string, qty, price int) error {
	if qty < 0 || qty > 8 {
		return ValidationError{Field: prefix + ".quantity_decimals", Value: qty, Message: "must be between 0 and 8"}
	}
	if price < 0 || price > 8 {
		return ValidationError{Field: prefix + ".price_decimals", Value: price, Message: "must be between 0 and 8"}
	}
	return nil
}

func (c *Config) validateSignalsConfig() error {
	if len(c.Signals.Strategies) == 0 {
		return ValidationError{Field: "signals.strategies", Message: "at least one strategy must be accepted"}
	}
	if len(c.Signals.Directions) == 0 {
		return ValidationError{Field: "signals.directions", Message: "at least one direction must be accepted"}
	}
	for _, d := range c.Signals.Directions {
		if _, ok := core.ParseDirection(d); !ok {
			return ValidationError{Field: "signals.directions", Value: d, Message: "unknown direction label"}
		}
	}
	if c.Signals.DefaultTicker == "" {
		return ValidationError{Field: "signals.default_ticker", Message: "default ticker is required"}
	}
	return nil
}

func (c *Config) validateSignalMemoryConfig() error {
	switch c.SignalMemory.Backend {
	case MemoryBackendMemory:
		return nil
	case MemoryBackendSQLite:
		if c.SignalMemory.Path == "" {
			return ValidationError{Field: "signal_memory.path", Message: "path is required for the sqlite backend"}
		}
		return nil
	default:
		return ValidationError{
			Field:   "signal_memory.backend",
			Value:   c.SignalMemory.Backend,
			Message: "must be one of: memory, sqlite",
		}
	}
}

func (c *Config) validateServerConfig() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return ValidationError{Field: "server.port", Value: c.Server.Port, Message: "must be between 1 and 65535"}
	}
	if c.Server.GRPCHealthPort < 0 || c.Server.GRPCHealthPort > 65535 {
		return ValidationError{Field: "server.grpc_health_port", Value: c.Server.GRPCHealthPort, Message: "must be between 0 and 65535"}
	}
	if c.Server.GRPCHealthPort != 0 && c.Server.GRPCHealthPort == c.Server.Port {
		return ValidationError{Field: "server.grpc_health_port", Value: c.Server.GRPCHealthPort, Message: "must differ from server.port"}
	}
	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

// SizingPolicy converts the sizing section into the immutable policy used by the pipeline
func (c *Config) SizingPolicy() core.SizingPolicy {
	s := c.Sizing
	symbols := make(map[string]core.SymbolPrecision, len(s.Symbols))
	for symbol, sc := range s.Symbols {
		symbols[strings.ToUpper(symbol)] = core.SymbolPrecision{
			QuantityDecimals: sc.QuantityDecimals,
			PriceDecimals:    sc.PriceDecimals,
		}
	}
	return core.SizingPolicy{
		BaseRiskFraction:       decimal.NewFromFloat(s.BaseRiskFraction),
		ReinforcedRiskFraction: decimal.NewFromFloat(s.ReinforcedRiskFraction),
		Leverage:               decimal.NewFromFloat(s.Leverage),
		TakeProfitPct:          decimal.NewFromFloat(s.TakeProfitPct),
		StopLossPct:            decimal.NewFromFloat(s.StopLossPct),
		MaxExposureRatio:       decimal.NewFromFloat(s.MaxExposureRatio),
		ReinforceWindow:        s.ReinforceWindow,
		DefaultPrecision: core.SymbolPrecision{
			QuantityDecimals: s.QuantityDecimals,
			PriceDecimals:    s.PriceDecimals,
		},
		Symbols: symbols,
	}
}

// String returns a YAML representation with credentials redacted
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

// Helper functions

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns the configuration the gateway runs with when nothing is overridden
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:     "signal_gateway",
			Exchange: ExchangeBinance,
		},
		Exchange: ExchangeConfig{
			BaseURL:             "https://testnet.binancefuture.com",
			RecvWindowMs:        5000,
			RequestTimeout:      10 * time.Second,
			QuoteAsset:          "USDT",
			RateLimit:           10,
			RateBurst:           5,
			FailOpenOnReadError: true,
		},
		Sizing: SizingConfig{
			BaseRiskFraction:       0.10,
			ReinforcedRiskFraction: 0.20,
			Leverage:               2,
			TakeProfitPct:          3.5,
			StopLossPct:            1.0,
			MaxExposureRatio:       1.0,
			ReinforceWindow:        90 * time.Minute,
			QuantityDecimals:       2,
			PriceDecimals:          4,
			Symbols:                map[string]SymbolConfig{},
		},
		Signals: SignalsConfig{
			Strategies:    []string{"rsi_divergence"},
			Directions:    []string{"bull"},
			DefaultTicker: "ADAUSDT",
		},
		SignalMemory: SignalMemoryConfig{
			Backend: MemoryBackendMemory,
			Path:    "signal_memory.db",
		},
		Alerts: AlertsConfig{
			PoolSize:  4,
			QueueSize: 256,
		},
		Server: ServerConfig{
			Port:            5000,
			AllowedOrigins:  []string{"localhost", "127.0.0.1"},
			MaxEventClients: 50,
			ShutdownTimeout: 10 * time.Second,
		},
		System: SystemConfig{
			LogLevel: "INFO",
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
		},
	}
}
