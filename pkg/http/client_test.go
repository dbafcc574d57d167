package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	apperrors "signal_gateway/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type headerSigner struct{}

func (headerSigner) SignRequest(req *http.Request) error {
	req.Header.Set("X-Test-Signed", "yes")
	return nil
}

func TestHttpClient_GetRetriesServerErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("success"))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, nil)
	body, err := client.Get(context.Background(), "/", nil)
	require.NoError(t, err)
	assert.Equal(t, "success", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestHttpClient_PostIsNotRetried(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"code":-1001,"msg":"disconnected"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, nil)
	_, err := client.Post(context.Background(), "/fapi/v1/order", url.Values{"symbol": {"ADAUSDT"}})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Contains(t, string(apiErr.Body), "disconnected")
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestHttpClient_ClientErrorReturnsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "yes", r.Header.Get("X-Test-Signed"))
		assert.Equal(t, "ADAUSDT", r.URL.Query().Get("symbol"))
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, headerSigner{})
	_, err := client.Get(context.Background(), "/fapi/v2/positionRisk", url.Values{"symbol": {"ADAUSDT"}})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestHttpClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(server.URL, 20*time.Millisecond, nil)
	_, err := client.Post(context.Background(), "/", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrTimeout), "got %v", err)
}

func TestHttpClient_CircuitBreaker(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, nil)

	// a full window of failed writes opens the breaker
	for i := 0; i < 10; i++ {
		_, _ = client.Post(context.Background(), "/", nil)
	}

	startAttempts := atomic.LoadInt32(&attempts)
	_, err := client.Get(context.Background(), "/", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNetwork)
	assert.Equal(t, startAttempts, atomic.LoadInt32(&attempts), "server reached while circuit open")
}
