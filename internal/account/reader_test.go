package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"signal_gateway/internal/mock"
	"signal_gateway/pkg/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newReader(ex *mock.MockExchange, failOpen bool) (*Reader, *observer.ObservedLogs) {
	obsCore, logs := observer.New(zap.DebugLevel)
	return NewReader(ex, "USDT", failOpen, time.Second, logging.NewFromCore(obsCore)), logs
}

func TestHasOpenPosition(t *testing.T) {
	ex := mock.NewMockExchange("test")
	ex.SetPosition("ADAUSDT", d("-50"), d("1.2"))
	r, _ := newReader(ex, true)

	open, err := r.HasOpenPosition(context.Background(), "ADAUSDT")
	require.NoError(t, err)
	assert.True(t, open)

	open, err = r.HasOpenPosition(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.False(t, open)
}

func TestTotalOpenExposureValue(t *testing.T) {
	ex := mock.NewMockExchange("test")
	ex.SetPosition("ADAUSDT", d("100"), d("1.25"))
	ex.SetPosition("BTCUSDT", d("-0.01"), d("40000"))
	r, _ := newReader(ex, true)

	assert.True(t, d("525").Equal(r.TotalOpenExposureValue(context.Background())))
}

func TestBalance(t *testing.T) {
	ex := mock.NewMockExchange("test")
	ex.SetBalance("USDT", d("1234.5"))
	r, _ := newReader(ex, true)

	assert.True(t, d("1234.5").Equal(r.Balance(context.Background())))
}

func TestFailSafeDefaults(t *testing.T) {
	ex := mock.NewMockExchange("test")
	ex.SetPosition("ADAUSDT", d("100"), d("1.25"))
	ex.FailPositions(errors.New("connection reset"))
	ex.FailBalance(errors.New("timeout"))
	r, logs := newReader(ex, true)
	ctx := context.Background()

	open, err := r.HasOpenPosition(ctx, "ADAUSDT")
	require.NoError(t, err)
	assert.False(t, open, "optimistic default when reads fail")
	assert.True(t, r.TotalOpenExposureValue(ctx).IsZero())
	assert.True(t, r.Balance(ctx).IsZero())

	warnings := logs.FilterField(zap.String("fail_safe_default", "open_position=false")).Len() +
		logs.FilterField(zap.String("fail_safe_default", "open_exposure=0")).Len() +
		logs.FilterField(zap.String("fail_safe_default", "balance=0")).Len()
	assert.Equal(t, 3, warnings)
}

func TestFailClosed(t *testing.T) {
	ex := mock.NewMockExchange("test")
	ex.FailPositions(errors.New("connection reset"))
	r, _ := newReader(ex, false)

	_, err := r.HasOpenPosition(context.Background(), "ADAUSDT")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAccountStateUnavailable)
}

func TestReadsAreNeverCached(t *testing.T) {
	ex := mock.NewMockExchange("test")
	r, _ := newReader(ex, true)
	ctx := context.Background()

	open, _ := r.HasOpenPosition(ctx, "ADAUSDT")
	assert.False(t, open)

	ex.SetPosition("ADAUSDT", d("1"), d("1"))
	open, _ = r.HasOpenPosition(ctx, "ADAUSDT")
	assert.True(t, open)
	assert.Equal(t, 2, ex.ReadCalls())
}

func TestZeroTimeoutMeansUnbounded(t *testing.T) {
	ex := mock.NewMockExchange("test")
	ex.SetBalance("USDT", d("500"))
	ex.SetPosition("ADAUSDT", d("10"), d("2"))
	obsCore, logs := observer.New(zap.DebugLevel)
	r := NewReader(ex, "USDT", false, 0, logging.NewFromCore(obsCore))

	assert.True(t, d("500").Equal(r.Balance(context.Background())))
	open, err := r.HasOpenPosition(context.Background(), "ADAUSDT")
	require.NoError(t, err)
	assert.True(t, open)
	assert.True(t, d("20").Equal(r.TotalOpenExposureValue(context.Background())))
	assert.Zero(t, logs.FilterField(zap.String("fail_safe_default", "balance=0")).Len())
}

func TestCancelledReadFallsBack(t *testing.T) {
	ex := mock.NewMockExchange("test")
	r, _ := newReader(ex, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, r.Balance(ctx).IsZero())
}
