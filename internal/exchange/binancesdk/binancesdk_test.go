package binancesdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"signal_gateway/internal/config"
	"signal_gateway/internal/core"
	apperrors "signal_gateway/pkg/errors"
	"signal_gateway/pkg/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExchange(t *testing.T, handler http.HandlerFunc) *Exchange {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewExchange(&config.ExchangeConfig{
		BaseURL:        server.URL,
		APIKey:         "key",
		SecretKey:      "secret",
		RecvWindowMs:   5000,
		RequestTimeout: 2 * time.Second,
	}, logging.NewNop())
}

func TestGetPositionsAndBalance(t *testing.T) {
	ex := newTestExchange(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-MBX-APIKEY"))
		// the SDK may target v2 or v3 of these endpoints
		switch {
		case strings.HasSuffix(r.URL.Path, "/positionRisk"):
			_, _ = w.Write([]byte(`[{"symbol":"ADAUSDT","positionAmt":"-200","entryPrice":"1.3","markPrice":"1.25"}]`))
		case strings.HasSuffix(r.URL.Path, "/balance"):
			_, _ = w.Write([]byte(`[{"asset":"USDT","balance":"2500.5"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	positions, err := ex.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.True(t, positions[0].Exposure().Equal(decimal.NewFromInt(250)))

	bal, err := ex.GetBalance(context.Background(), "USDT")
	require.NoError(t, err)
	assert.Equal(t, "2500.5", bal.String())
}

func TestPlaceOrder(t *testing.T) {
	ex := newTestExchange(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "/fapi/v1/order", r.URL.Path)
		assert.Equal(t, "STOP_MARKET", r.Form.Get("type"))
		assert.Equal(t, "SELL", r.Form.Get("side"))
		assert.Equal(t, "1.2375", r.Form.Get("stopPrice"))
		assert.Equal(t, "true", r.Form.Get("closePosition"))
		assert.NotEmpty(t, r.Form.Get("signature"))
		_, _ = w.Write([]byte(`{"orderId":99,"symbol":"ADAUSDT","status":"NEW","clientOrderId":"sl-1"}`))
	})

	order, err := ex.PlaceOrder(context.Background(), core.OrderIntent{
		Symbol:        "ADAUSDT",
		Side:          core.SideSell,
		Type:          core.OrderTypeStopMarket,
		StopPrice:     decimal.RequireFromString("1.2375"),
		ClosePosition: true,
		ClientOrderID: "sl-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(99), order.OrderID)
}

func TestPlaceOrder_Rejected(t *testing.T) {
	ex := newTestExchange(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-2019,"msg":"Margin is insufficient."}`))
	})

	_, err := ex.PlaceOrder(context.Background(), core.OrderIntent{
		Symbol: "ADAUSDT", Side: core.SideBuy, Type: core.OrderTypeLimit,
		Quantity: decimal.NewFromInt(10), Price: decimal.NewFromInt(1),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
	assert.True(t, apperrors.IsTransport(err))
}

func TestPlaceOrder_UnsupportedType(t *testing.T) {
	ex := newTestExchange(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := ex.PlaceOrder(context.Background(), core.OrderIntent{Symbol: "ADAUSDT", Side: core.SideBuy, Type: "MARKET"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrderParameter)
}
