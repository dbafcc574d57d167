package logging

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"signal_gateway/pkg/telemetry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_OTelBridge(t *testing.T) {
	tel, err := telemetry.Setup("test-logger", telemetry.Options{TraceWriter: io.Discard, LogWriter: io.Discard})
	require.NoError(t, err)
	defer func() {
		_ = tel.Shutdown(context.Background())
	}()

	var buf bytes.Buffer
	logger, err := NewZapLoggerTo("DEBUG", &buf)
	require.NoError(t, err)

	logger.Info("Test OTel bridging", "key", "value")
	logger.Debug("Debug message", "status", "testing")
	time.Sleep(50 * time.Millisecond)

	out := buf.String()
	assert.Contains(t, out, "Test OTel bridging")
	assert.Contains(t, out, "Debug message")
}

func TestZapLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLoggerTo("WARN", &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zap.InfoLevel, lvl)

	lvl, err = ParseLevel("warning")
	require.NoError(t, err)
	assert.Equal(t, zap.WarnLevel, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestZapLogger_Fields(t *testing.T) {
	obsCore, logs := observer.New(zap.DebugLevel)
	logger := NewFromCore(obsCore)

	logger.WithField("component", "risk_gate").
		WithFields(map[string]interface{}{"symbol": "ADAUSDT"}).
		Warn("fail-safe default applied", "fail_safe_default", "balance=0", "error", errors.New("timeout"), "dangling")

	entries := logs.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "risk_gate", ctx["component"])
	assert.Equal(t, "ADAUSDT", ctx["symbol"])
	assert.Equal(t, "balance=0", ctx["fail_safe_default"])
	assert.Equal(t, "timeout", ctx["error"])
	assert.Equal(t, "<missing>", ctx["dangling"])
}
