package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestExpandEnvVars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{
			name:     "expand single env var",
			input:    "api_key: ${TEST_API_KEY}",
			envVars:  map[string]string{"TEST_API_KEY": "test_key_123"},
			expected: "api_key: test_key_123",
		},
		{
			name:     "expand multiple env vars",
			input:    "api_key: ${API_KEY}\nsecret: ${SECRET_KEY}",
			envVars:  map[string]string{"API_KEY": "key_value", "SECRET_KEY": "secret_value"},
			expected: "api_key: key_value\nsecret: secret_value",
		},
		{
			name:     "missing env var returns empty string",
			input:    "api_key: ${MISSING_VAR_FOR_TEST}",
			envVars:  map[string]string{},
			expected: "api_key: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.expected, expandEnvVars(tt.input))
		})
	}
}

func TestLoadConfigWithEnvVars(t *testing.T) {
	t.Setenv("TEST_GW_API_KEY", "env_key")
	t.Setenv("TEST_GW_SECRET_KEY", "env_secret")

	path := writeConfig(t, `
app:
  exchange: binance
exchange:
  api_key: "${TEST_GW_API_KEY}"
  secret_key: "${TEST_GW_SECRET_KEY}"
  request_timeout: 3s
sizing:
  max_exposure_ratio: 0.5
  take_profit_pct: 2.5
  symbols:
    btcusdt:
      quantity_decimals: 3
      price_decimals: 1
signals:
  directions: [bull, bear]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "env_key", cfg.Exchange.APIKey.Reveal())
	assert.Equal(t, "env_secret", cfg.Exchange.SecretKey.Reveal())
	assert.Equal(t, 3*time.Second, cfg.Exchange.RequestTimeout)
	assert.Equal(t, 0.5, cfg.Sizing.MaxExposureRatio)

	// untouched fields keep their defaults
	assert.Equal(t, 0.10, cfg.Sizing.BaseRiskFraction)
	assert.Equal(t, 90*time.Minute, cfg.Sizing.ReinforceWindow)
	assert.Equal(t, "https://testnet.binancefuture.com", cfg.Exchange.BaseURL)
	assert.True(t, cfg.Exchange.FailOpenOnReadError)

	policy := cfg.SizingPolicy()
	assert.Equal(t, "2.5", policy.TakeProfitPct.String())
	assert.Equal(t, 3, policy.PrecisionFor("BTCUSDT").QuantityDecimals)
	assert.Equal(t, 2, policy.PrecisionFor("ADAUSDT").QuantityDecimals)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "app: [unterminated")
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestFromEnv(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "k")
	t.Setenv("BINANCE_SECRET_KEY", "s")
	t.Setenv("TELEGRAM_TOKEN", "tok")
	t.Setenv("TELEGRAM_CHAT_ID", "42")
	t.Setenv("PORT", "8081")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "tok", cfg.Alerts.Telegram.Token.Reveal())
	assert.Equal(t, "42", cfg.Alerts.Telegram.ChatID)
}

func TestFromEnv_BadPort(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "k")
	t.Setenv("BINANCE_SECRET_KEY", "s")
	t.Setenv("PORT", "http")

	_, err := FromEnv()
	require.Error(t, err)
	var verr ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, "PORT", verr.Field)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Exchange.APIKey = "k"
		cfg.Exchange.SecretKey = "s"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults with credentials", mutate: func(*Config) {}},
		{name: "mock needs no credentials", mutate: func(c *Config) {
			c.App.Exchange = ExchangeMock
			c.Exchange.APIKey = ""
		}},
		{name: "unknown exchange", mutate: func(c *Config) { c.App.Exchange = "ftx" }, wantErr: "app.exchange"},
		{name: "missing api key", mutate: func(c *Config) { c.Exchange.APIKey = "" }, wantErr: "exchange.api_key"},
		{name: "zero timeout", mutate: func(c *Config) { c.Exchange.RequestTimeout = 0 }, wantErr: "exchange.request_timeout"},
		{name: "reinforced below base", mutate: func(c *Config) { c.Sizing.ReinforcedRiskFraction = 0.05 }, wantErr: "sizing.reinforced_risk_fraction"},
		{name: "leverage below one", mutate: func(c *Config) { c.Sizing.Leverage = 0.5 }, wantErr: "sizing.leverage"},
		{name: "stop loss 100", mutate: func(c *Config) { c.Sizing.StopLossPct = 100 }, wantErr: "sizing.stop_loss_pct"},
		{name: "bad symbol precision", mutate: func(c *Config) {
			c.Sizing.Symbols["ETHUSDT"] = SymbolConfig{QuantityDecimals: 12}
		}, wantErr: "sizing.symbols.ETHUSDT.quantity_decimals"},
		{name: "no strategies", mutate: func(c *Config) { c.Signals.Strategies = nil }, wantErr: "signals.strategies"},
		{name: "unknown direction", mutate: func(c *Config) { c.Signals.Directions = []string{"up"} }, wantErr: "signals.directions"},
		{name: "sqlite without path", mutate: func(c *Config) {
			c.SignalMemory.Backend = MemoryBackendSQLite
			c.SignalMemory.Path = ""
		}, wantErr: "signal_memory.path"},
		{name: "grpc port clash", mutate: func(c *Config) { c.Server.GRPCHealthPort = c.Server.Port }, wantErr: "server.grpc_health_port"},
		{name: "bad log level", mutate: func(c *Config) { c.System.LogLevel = "LOUD" }, wantErr: "system.log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigString_RedactsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Exchange.APIKey = "super-secret-api-key"
	cfg.Alerts.Telegram.Token = "bot-token"

	out := cfg.String()
	assert.NotContains(t, out, "super-secret-api-key")
	assert.NotContains(t, out, "bot-token")
	assert.Contains(t, out, "[REDACTED]")
}

func TestLoadConfig_SampleFile(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "k")
	t.Setenv("BINANCE_SECRET_KEY", "s")

	cfg, err := LoadConfig(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ExchangeBinance, cfg.App.Exchange)
	assert.Equal(t, 0, cfg.SizingPolicy().PrecisionFor("ADAUSDT").QuantityDecimals)
	assert.Equal(t, "", cfg.Alerts.Telegram.ChatID)
}
