// Package exchange provides exchange implementations
package exchange

import (
	"fmt"
	"strings"

	"signal_gateway/internal/config"
	"signal_gateway/internal/core"
	"signal_gateway/internal/exchange/binance"
	"signal_gateway/internal/exchange/binancesdk"
	"signal_gateway/internal/mock"
)

// NewExchange creates the adapter selected by app.exchange
func NewExchange(cfg *config.Config, logger core.ILogger) (core.IExchange, error) {
	switch strings.ToLower(cfg.App.Exchange) {
	case config.ExchangeBinance:
		return binance.NewBinanceExchange(&cfg.Exchange, logger), nil
	case config.ExchangeBinanceSDK:
		return binancesdk.NewExchange(&cfg.Exchange, logger), nil
	case config.ExchangeMock:
		logger.Warn("Using in-memory mock exchange, no orders reach a venue")
		ex := mock.NewMockExchange("mock")
		ex.SetFillEntries(true)
		return ex, nil
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", cfg.App.Exchange)
	}
}
