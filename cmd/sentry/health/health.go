// Package health serves the standard gRPC health protocol for the sentry.
//
// The overall status ("") and the ServiceName entry report SERVING once a
// model snapshot is published and NOT_SERVING while the controller warms up.
package health

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health entry for the detection service.
const ServiceName = "sentry.Detector"

// Server is a gRPC server exposing health and reflection.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	ready  func() bool
	logger *slog.Logger

	mu   sync.Mutex
	last healthpb.HealthCheckResponse_ServingStatus
}

// New creates a Server whose status follows ready. opts are passed to
// grpc.NewServer, e.g. transport credentials.
func New(ready func() bool, logger *slog.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		grpc:   grpc.NewServer(opts...),
		health: health.NewServer(),
		ready:  ready,
		logger: logger.With("component", "grpc-health"),
		last:   healthpb.HealthCheckResponse_UNKNOWN,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	s.Refresh()
	return s
}

// Refresh copies the current readiness into the health service.
func (s *Server) Refresh() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.ready() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == s.last {
		return
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	s.logger.Info("health status changed", "status", status.String())
	s.last = status
}

// Watch refreshes the status every interval until ctx is done.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh()
		}
	}
}

// Serve accepts connections on ln until Stop.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting gRPC health server", "addr", ln.Addr().String())
	return s.grpc.Serve(ln)
}

// Stop marks every service NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
	s.logger.Info("gRPC health server stopped")
}
