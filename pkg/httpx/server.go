// Package httpx provides HTTP server utilities and helpers for the sentry.
package httpx

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	sentrytls "github.com/HatiCode/kedastral-sentry/pkg/tls"
)

// Server wraps http.Server with graceful shutdown.
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// NewServer creates a server for addr. A detect cycle may wait on a metric
// fetch and an orchestrator write, so the write timeout leaves room for both.
func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger.With("component", "http"),
	}
}

// SetTLSConfig enables TLS. Must be called before Start or Serve.
func (s *Server) SetTLSConfig(config *tls.Config) {
	s.server.TLSConfig = config
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln, over TLS when a TLS config was set. It blocks until Stop.
func (s *Server) Serve(ln net.Listener) error {
	var err error
	if s.server.TLSConfig != nil {
		s.logger.Info("starting HTTPS server", "addr", ln.Addr().String())
		err = s.server.ServeTLS(ln, "", "")
	} else {
		s.logger.Info("starting HTTP server", "addr", ln.Addr().String())
		err = s.server.Serve(ln)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server, waiting up to timeout for active
// requests to complete.
func (s *Server) Stop(timeout time.Duration) error {
	s.logger.Info("stopping HTTP server", "timeout", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("HTTP server stopped gracefully")
	return nil
}

// NewClient creates an HTTP client with a bounded timeout. When tlsCfg is
// enabled its client certificate and CA are used for HTTPS connections.
func NewClient(tlsCfg sentrytls.Config, timeout time.Duration) (*http.Client, error) {
	var clientTLS *tls.Config
	if tlsCfg.Enabled {
		var err error
		clientTLS, err = tlsCfg.ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("create TLS config: %w", err)
		}
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
		TLSClientConfig:     clientTLS,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}, nil
}
