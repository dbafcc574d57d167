package exchange

import (
	"testing"

	"signal_gateway/internal/config"
	"signal_gateway/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExchange(t *testing.T) {
	logger := logging.NewNop()

	for _, name := range []string{config.ExchangeBinance, config.ExchangeBinanceSDK, config.ExchangeMock} {
		cfg := config.DefaultConfig()
		cfg.App.Exchange = name
		ex, err := NewExchange(cfg, logger)
		require.NoError(t, err, name)
		assert.Equal(t, name, ex.GetName())
	}

	cfg := config.DefaultConfig()
	cfg.App.Exchange = "kraken"
	_, err := NewExchange(cfg, logger)
	assert.Error(t, err)
}
