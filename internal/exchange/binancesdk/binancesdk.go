// Package binancesdk adapts the go-binance futures client to core.IExchange
package binancesdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"signal_gateway/internal/config"
	"signal_gateway/internal/core"
	apperrors "signal_gateway/pkg/errors"
	"signal_gateway/pkg/telemetry"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
)

// Exchange places orders through the go-binance futures SDK
type Exchange struct {
	client     *futures.Client
	recvWindow int64
	logger     core.ILogger
	metrics    *telemetry.MetricsHolder
}

// NewExchange builds an SDK-backed adapter pointed at cfg.BaseURL
func NewExchange(cfg *config.ExchangeConfig, logger core.ILogger) *Exchange {
	client := futures.NewClient(cfg.APIKey.Reveal(), cfg.SecretKey.Reveal())
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}
	client.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}

	return &Exchange{
		client:     client,
		recvWindow: cfg.RecvWindowMs,
		logger:     logger.WithField("exchange", "binance_sdk"),
		metrics:    telemetry.GetGlobalMetrics(),
	}
}

func (e *Exchange) GetName() string {
	return "binance_sdk"
}

func (e *Exchange) CheckHealth(ctx context.Context) error {
	return wrap("ping", e.client.NewPingService().Do(ctx))
}

func (e *Exchange) GetPositions(ctx context.Context) ([]core.Position, error) {
	start := time.Now()
	risks, err := e.client.NewGetPositionRiskService().Do(ctx, futures.WithRecvWindow(e.recvWindow))
	e.metrics.RecordExchangeLatency(ctx, "position_risk", float64(time.Since(start).Milliseconds()))
	if err != nil {
		return nil, wrap("get_positions", err)
	}

	positions := make([]core.Position, 0, len(risks))
	for _, r := range risks {
		amt, err := decimal.NewFromString(r.PositionAmt)
		if err != nil {
			return nil, apperrors.NewTransportError("get_positions", fmt.Errorf("positionAmt %q for %s: %w", r.PositionAmt, r.Symbol, err))
		}
		mark, err := decimal.NewFromString(r.MarkPrice)
		if err != nil {
			return nil, apperrors.NewTransportError("get_positions", fmt.Errorf("markPrice %q for %s: %w", r.MarkPrice, r.Symbol, err))
		}
		entry, _ := decimal.NewFromString(r.EntryPrice)
		positions = append(positions, core.Position{
			Symbol:     r.Symbol,
			Size:       amt,
			EntryPrice: entry,
			MarkPrice:  mark,
		})
	}
	return positions, nil
}

func (e *Exchange) GetBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	start := time.Now()
	balances, err := e.client.NewGetBalanceService().Do(ctx, futures.WithRecvWindow(e.recvWindow))
	e.metrics.RecordExchangeLatency(ctx, "balance", float64(time.Since(start).Milliseconds()))
	if err != nil {
		return decimal.Zero, wrap("get_balance", err)
	}

	for _, b := range balances {
		if b.Asset != asset {
			continue
		}
		bal, err := decimal.NewFromString(b.Balance)
		if err != nil {
			return decimal.Zero, apperrors.NewTransportError("get_balance", fmt.Errorf("balance %q: %w", b.Balance, err))
		}
		return bal, nil
	}
	return decimal.Zero, nil
}

func (e *Exchange) PlaceOrder(ctx context.Context, intent core.OrderIntent) (*core.Order, error) {
	svc := e.client.NewCreateOrderService().
		Symbol(intent.Symbol).
		Side(futures.SideType(intent.Side)).
		Type(futures.OrderType(intent.Type))

	switch intent.Type {
	case core.OrderTypeLimit:
		svc = svc.TimeInForce(futures.TimeInForceTypeGTC).
			Quantity(intent.Quantity.String()).
			Price(intent.Price.String())
	case core.OrderTypeTakeProfitMarket, core.OrderTypeStopMarket:
		svc = svc.StopPrice(intent.StopPrice.String())
		if intent.ClosePosition {
			svc = svc.ClosePosition(true)
		} else {
			svc = svc.Quantity(intent.Quantity.String())
		}
	default:
		return nil, fmt.Errorf("%w: order type %q", apperrors.ErrInvalidOrderParameter, intent.Type)
	}
	if intent.ClientOrderID != "" {
		svc = svc.NewClientOrderID(intent.ClientOrderID)
	}

	start := time.Now()
	res, err := svc.Do(ctx, futures.WithRecvWindow(e.recvWindow))
	e.metrics.RecordExchangeLatency(ctx, "place_order", float64(time.Since(start).Milliseconds()))
	if err != nil {
		return nil, wrap("place_order", err)
	}
	if res == nil || res.OrderID == 0 {
		return nil, apperrors.NewTransportError("place_order", apperrors.ErrMissingOrderID)
	}

	return &core.Order{
		OrderID:       res.OrderID,
		ClientOrderID: res.ClientOrderID,
		Symbol:        res.Symbol,
		Status:        string(res.Status),
		UpdateTime:    res.UpdateTime,
	}, nil
}

// wrap maps SDK API errors onto the shared sentinels
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return apperrors.NewTransportError(op, err)
	}

	var sentinel error
	switch apiErr.Code {
	case -2015, -2014, -1022:
		sentinel = apperrors.ErrAuthenticationFailed
	case -2019, -2010:
		sentinel = apperrors.ErrInsufficientFunds
	case -1003:
		sentinel = apperrors.ErrRateLimitExceeded
	case -1121:
		sentinel = apperrors.ErrInvalidSymbol
	case -1021:
		sentinel = apperrors.ErrTimestampOutOfBounds
	case -4116, -2012:
		sentinel = apperrors.ErrDuplicateOrder
	default:
		sentinel = apperrors.ErrOrderRejected
	}
	return apperrors.NewTransportError(op, fmt.Errorf("%w: binance error %d: %s", sentinel, apiErr.Code, apiErr.Message))
}
