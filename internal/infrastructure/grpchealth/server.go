// Package grpchealth serves the standard gRPC health protocol for orchestrator
// probes, mirroring the HealthManager's view.
package grpchealth

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"signal_gateway/internal/core"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the overall service reported alongside the empty name
const ServiceName = "signal_gateway.Gateway"

// Server implements bootstrap.Runner
type Server struct {
	port     int
	interval time.Duration
	hm       core.IHealthMonitor
	health   *health.Server
	logger   core.ILogger
	addr     chan string
}

// New creates the gRPC health server. Status is refreshed every interval.
func New(port int, interval time.Duration, hm core.IHealthMonitor, logger core.ILogger) *Server {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Server{
		port:     port,
		interval: interval,
		hm:       hm,
		health:   health.NewServer(),
		logger:   logger.WithField("component", "grpc_health"),
		addr:     make(chan string, 1),
	}
}

// Addr blocks until the listener is bound
func (s *Server) Addr(ctx context.Context) (string, error) {
	select {
	case a := <-s.addr:
		s.addr <- a
		return a, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Run serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", ":"+strconv.Itoa(s.port))
	if err != nil {
		return err
	}
	s.addr <- loopbackAddr(lis.Addr())

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, s.health)
	s.sync()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting gRPC health server", "addr", lis.Addr().String())
		errCh <- srv.Serve(lis)
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sync()
		case err := <-errCh:
			return err
		case <-ctx.Done():
			s.health.Shutdown()
			srv.GracefulStop()
			return nil
		}
	}
}

// sync copies the HealthManager view into the gRPC health server
func (s *Server) sync() {
	overall := healthpb.HealthCheckResponse_SERVING
	for component, status := range s.hm.GetStatus() {
		st := healthpb.HealthCheckResponse_SERVING
		if strings.HasPrefix(status, "Unhealthy") {
			st = healthpb.HealthCheckResponse_NOT_SERVING
			overall = healthpb.HealthCheckResponse_NOT_SERVING
		}
		s.health.SetServingStatus(component, st)
	}
	s.health.SetServingStatus("", overall)
	s.health.SetServingStatus(ServiceName, overall)
}

// loopbackAddr turns a wildcard listen address into one a local client can dial
func loopbackAddr(a net.Addr) string {
	tcp, ok := a.(*net.TCPAddr)
	if !ok || !tcp.IP.IsUnspecified() {
		return a.String()
	}
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(tcp.Port))
}
