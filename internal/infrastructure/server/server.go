// Package server hosts the gateway's HTTP surface: the webhook, health,
// status, metrics and the event stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"signal_gateway/internal/core"
	"signal_gateway/pkg/telemetry"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Routes are the handlers mounted by the server. Nil handlers are not mounted.
type Routes struct {
	Webhook     http.Handler
	EventStream http.Handler
}

// HTTPServer implements bootstrap.Runner
type HTTPServer struct {
	port            int
	shutdownTimeout time.Duration
	logger          core.ILogger
	hm              core.IHealthMonitor
	tracer          trace.Tracer

	mu     sync.RWMutex
	status map[string]string

	handler http.Handler
	addr    chan string
}

// NewHTTPServer builds the mux. port 0 picks a free port.
func NewHTTPServer(port int, shutdownTimeout time.Duration, routes Routes, hm core.IHealthMonitor, logger core.ILogger) *HTTPServer {
	s := &HTTPServer{
		port:            port,
		shutdownTimeout: shutdownTimeout,
		logger:          logger.WithField("component", "http_server"),
		hm:              hm,
		tracer:          telemetry.GetTracer("http-server"),
		status:          make(map[string]string),
		addr:            make(chan string, 1),
	}

	mux := http.NewServeMux()
	if routes.Webhook != nil {
		mux.Handle("/webhook", s.traced("/webhook", routes.Webhook))
	}
	if routes.EventStream != nil {
		mux.Handle("/ws/events", routes.EventStream)
	}
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())
	s.handler = mux
	return s
}

// Handler exposes the mux for tests
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

// Addr blocks until the listener is bound and returns its address
func (s *HTTPServer) Addr(ctx context.Context) (string, error) {
	select {
	case a := <-s.addr:
		s.addr <- a
		return a, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// UpdateStatus sets a static key reported by /status
func (s *HTTPServer) UpdateStatus(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[key] = value
}

// Run serves until ctx is cancelled, then drains in-flight requests
func (s *HTTPServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(s.port))
	if err != nil {
		return err
	}
	s.addr <- loopbackAddr(ln.Addr())

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	s.logger.Info("Stopping HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *HTTPServer) traced(route string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := s.tracer.Start(r.Context(), "HTTP "+r.Method+" "+route,
			trace.WithAttributes(attribute.String("http.remote_addr", r.RemoteAddr)))
		defer span.End()
		h.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	}

	code := http.StatusOK
	if s.hm != nil {
		health["components"] = s.hm.GetStatus()
		if !s.hm.IsHealthy() {
			health["status"] = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(health)
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	merged := make(map[string]string, len(s.status))
	for k, v := range s.status {
		merged[k] = v
	}
	s.mu.RUnlock()

	if s.hm != nil {
		for k, v := range s.hm.GetStatus() {
			merged[k] = v
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(merged)
}

// loopbackAddr turns a wildcard listen address into one a local client can dial
func loopbackAddr(a net.Addr) string {
	tcp, ok := a.(*net.TCPAddr)
	if !ok || !tcp.IP.IsUnspecified() {
		return a.String()
	}
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(tcp.Port))
}
