// Package binance provides Binance USDⓈ-M futures connectivity over signed REST
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"signal_gateway/internal/config"
	"signal_gateway/internal/core"
	apperrors "signal_gateway/pkg/errors"
	gwhttp "signal_gateway/pkg/http"
	"signal_gateway/pkg/telemetry"

	"github.com/shopspring/decimal"
)

const (
	defaultFuturesURL = "https://fapi.binance.com"

	pathPing         = "/fapi/v1/ping"
	pathPositionRisk = "/fapi/v2/positionRisk"
	pathBalance      = "/fapi/v2/balance"
	pathOrder        = "/fapi/v1/order"
)

// Signer adds the API key header and an HMAC-SHA256 signature over the canonical query
type Signer struct {
	apiKey     string
	secretKey  []byte
	recvWindow int64
	now        func() time.Time
}

// NewSigner creates a request signer
func NewSigner(apiKey, secretKey string, recvWindowMs int64) *Signer {
	return &Signer{
		apiKey:     apiKey,
		secretKey:  []byte(secretKey),
		recvWindow: recvWindowMs,
		now:        time.Now,
	}
}

// SignRequest appends recvWindow and timestamp, then the signature as the final parameter
func (s *Signer) SignRequest(req *http.Request) error {
	req.Header.Set("X-MBX-APIKEY", s.apiKey)

	q := req.URL.Query()
	if s.recvWindow > 0 {
		q.Set("recvWindow", strconv.FormatInt(s.recvWindow, 10))
	}
	q.Set("timestamp", strconv.FormatInt(s.now().UnixMilli(), 10))

	payload := q.Encode()
	req.URL.RawQuery = payload + "&signature=" + s.Sign(payload)
	return nil
}

// Sign returns the hex HMAC-SHA256 of payload
func (s *Signer) Sign(payload string) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// BinanceExchange implements core.IExchange for Binance futures
type BinanceExchange struct {
	cfg     *config.ExchangeConfig
	logger  core.ILogger
	public  *gwhttp.Client
	signed  *gwhttp.Client
	metrics *telemetry.MetricsHolder
}

// NewBinanceExchange creates a new Binance exchange instance
func NewBinanceExchange(cfg *config.ExchangeConfig, logger core.ILogger) *BinanceExchange {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultFuturesURL
	}
	signer := NewSigner(cfg.APIKey.Reveal(), cfg.SecretKey.Reveal(), cfg.RecvWindowMs)

	return &BinanceExchange{
		cfg:     cfg,
		logger:  logger.WithField("exchange", "binance"),
		public:  gwhttp.NewClient(baseURL, cfg.RequestTimeout, nil),
		signed:  gwhttp.NewClient(baseURL, cfg.RequestTimeout, signer),
		metrics: telemetry.GetGlobalMetrics(),
	}
}

func (e *BinanceExchange) GetName() string {
	return "binance"
}

func (e *BinanceExchange) CheckHealth(ctx context.Context) error {
	_, err := e.public.Get(ctx, pathPing, nil)
	return e.wrap("ping", err)
}

// GetPositions returns every position reported by positionRisk, flat ones included
func (e *BinanceExchange) GetPositions(ctx context.Context) ([]core.Position, error) {
	start := time.Now()
	body, err := e.signed.Get(ctx, pathPositionRisk, nil)
	e.metrics.RecordExchangeLatency(ctx, "position_risk", msSince(start))
	if err != nil {
		return nil, e.wrap("get_positions", err)
	}

	var rawPositions []struct {
		Symbol      string `json:"symbol"`
		PositionAmt string `json:"positionAmt"`
		EntryPrice  string `json:"entryPrice"`
		MarkPrice   string `json:"markPrice"`
	}
	if err := json.Unmarshal(body, &rawPositions); err != nil {
		return nil, apperrors.NewTransportError("get_positions", fmt.Errorf("decode positionRisk: %w", err))
	}

	positions := make([]core.Position, 0, len(rawPositions))
	for _, p := range rawPositions {
		amt, err := decimal.NewFromString(p.PositionAmt)
		if err != nil {
			return nil, apperrors.NewTransportError("get_positions", fmt.Errorf("positionAmt %q for %s: %w", p.PositionAmt, p.Symbol, err))
		}
		mark, err := decimal.NewFromString(p.MarkPrice)
		if err != nil {
			return nil, apperrors.NewTransportError("get_positions", fmt.Errorf("markPrice %q for %s: %w", p.MarkPrice, p.Symbol, err))
		}
		positions = append(positions, core.Position{
			Symbol:     p.Symbol,
			Size:       amt,
			EntryPrice: e.parseDecimal(p.EntryPrice),
			MarkPrice:  mark,
		})
	}
	return positions, nil
}

// GetBalance returns the wallet balance of asset. A missing asset is a zero balance.
func (e *BinanceExchange) GetBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	start := time.Now()
	body, err := e.signed.Get(ctx, pathBalance, nil)
	e.metrics.RecordExchangeLatency(ctx, "balance", msSince(start))
	if err != nil {
		return decimal.Zero, e.wrap("get_balance", err)
	}

	var balances []struct {
		Asset   string `json:"asset"`
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(body, &balances); err != nil {
		return decimal.Zero, apperrors.NewTransportError("get_balance", fmt.Errorf("decode balance: %w", err))
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

// PlaceOrder submits a single order. It is not retried.
func (e *BinanceExchange) PlaceOrder(ctx context.Context, intent core.OrderIntent) (*core.Order, error) {
	params, err := orderParams(intent)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	body, err := e.signed.Post(ctx, pathOrder, params)
	e.metrics.RecordExchangeLatency(ctx, "place_order", msSince(start))
	if err != nil {
		return nil, e.wrap("place_order", err)
	}

	var rawOrder struct {
		OrderID       int64  `json:"orderId"`
		Symbol        string `json:"symbol"`
		Status        string `json:"status"`
		ClientOrderID string `json:"clientOrderId"`
		UpdateTime    int64  `json:"updateTime"`
	}
	if err := json.Unmarshal(body, &rawOrder); err != nil {
		return nil, apperrors.NewTransportError("place_order", fmt.Errorf("decode order: %w", err))
	}
	if rawOrder.OrderID == 0 {
		return nil, apperrors.NewTransportError("place_order", fmt.Errorf("%w: %s", apperrors.ErrMissingOrderID, string(body)))
	}

	return &core.Order{
		OrderID:       rawOrder.OrderID,
		ClientOrderID: rawOrder.ClientOrderID,
		Symbol:        rawOrder.Symbol,
		Status:        rawOrder.Status,
		UpdateTime:    rawOrder.UpdateTime,
	}, nil
}

// orderParams renders an intent in the parameter set /fapi/v1/order expects
func orderParams(intent core.OrderIntent) (url.Values, error) {
	q := url.Values{}
	q.Set("symbol", intent.Symbol)

	switch intent.Side {
	case core.SideBuy, core.SideSell:
		q.Set("side", string(intent.Side))
	default:
		return nil, fmt.Errorf("%w: side %q", apperrors.ErrInvalidOrderParameter, intent.Side)
	}

	q.Set("type", string(intent.Type))
	switch intent.Type {
	case core.OrderTypeLimit:
		if !intent.Quantity.IsPositive() || !intent.Price.IsPositive() {
			return nil, fmt.Errorf("%w: limit order needs positive quantity and price", apperrors.ErrInvalidOrderParameter)
		}
		tif := intent.TimeInForce
		if tif == "" {
			tif = core.TimeInForceGTC
		}
		q.Set("timeInForce", string(tif))
		q.Set("quantity", intent.Quantity.String())
		q.Set("price", intent.Price.String())
	case core.OrderTypeTakeProfitMarket, core.OrderTypeStopMarket:
		if !intent.StopPrice.IsPositive() {
			return nil, fmt.Errorf("%w: conditional order needs a stop price", apperrors.ErrInvalidOrderParameter)
		}
		q.Set("stopPrice", intent.StopPrice.String())
		if intent.ClosePosition {
			q.Set("closePosition", "true")
		} else {
			q.Set("quantity", intent.Quantity.String())
		}
		if intent.TimeInForce != "" {
			q.Set("timeInForce", string(intent.TimeInForce))
		}
	default:
		return nil, fmt.Errorf("%w: order type %q", apperrors.ErrInvalidOrderParameter, intent.Type)
	}

	if intent.ClientOrderID != "" {
		q.Set("newClientOrderId", intent.ClientOrderID)
	}
	return q, nil
}

// wrap turns any client failure into a TransportError, mapping Binance error codes
func (e *BinanceExchange) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *gwhttp.APIError
	if errors.As(err, &apiErr) {
		return apperrors.NewTransportError(op, parseError(apiErr))
	}
	return apperrors.NewTransportError(op, err)
}

func parseError(apiErr *gwhttp.APIError) error {
	var errResp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(apiErr.Body, &errResp); err != nil || errResp.Code == 0 {
		return apiErr
	}

	detail := fmt.Sprintf("binance error %d: %s", errResp.Code, errResp.Msg)
	var sentinel error
	switch errResp.Code {
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
	case -1111, -1013, -4014, -2021:
		sentinel = apperrors.ErrInvalidOrderParameter
	case -1001, -1008:
		sentinel = apperrors.ErrSystemOverload
	default:
		sentinel = apperrors.ErrOrderRejected
	}
	return fmt.Errorf("%w: %s", sentinel, detail)
}

func (e *BinanceExchange) parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		e.logger.Warn("failed to parse decimal", "value", s, "error", err)
		return decimal.Zero
	}
	return d
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
