// Command sentry implements the Kedastral anomaly-driven autoscaling controller.
//
// The sentry runs two loops that share one model slot:
//  1. A retrain loop that periodically fetches a metric window, fits an
//     anomaly model (isolation forest or MAD) and publishes the snapshot
//  2. A detect-and-scale path, triggered over HTTP, that scores the latest
//     window and steps the target's replicas up or down within bounds,
//     at most once per cooldown
//
// The fitted model is persisted (file, Redis or memory) and restored on
// start, so a restart does not reopen the warming period.
//
// HTTP API (default :8080):
//   - GET|POST /detect, POST /train, GET /model
//   - GET /healthz, GET /readyz, GET /metrics
//
// gRPC health (default :9090): grpc.health.v1 with reflection.
//
// Usage:
//
//	sentry \
//	  -workload=my-api \
//	  -adapter=prometheus \
//	  -adapter-url=http://prometheus:9090 \
//	  -adapter-query='sum(rate(http_requests_total[1m]))' \
//	  -min=2 -max=20 -cooldown=2m
//
// Environment variables mirror the flags (WORKLOAD, ADAPTER, ADAPTER_QUERY,
// MIN_REPLICAS, MAX_REPLICAS, COOLDOWN, MODEL, CONTAMINATION, STORAGE, ...).
// A YAML file can be supplied with -config-file or CONFIG_FILE.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/HatiCode/kedastral-sentry/cmd/sentry/config"
	"github.com/HatiCode/kedastral-sentry/cmd/sentry/health"
	"github.com/HatiCode/kedastral-sentry/cmd/sentry/logger"
	"github.com/HatiCode/kedastral-sentry/cmd/sentry/tracing"
	"github.com/HatiCode/kedastral-sentry/pkg/httpx"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: invalid configuration:", err)
		os.Exit(2)
	}

	lg := logger.New(cfg)
	slog.SetDefault(lg)

	if err := run(cfg, lg); err != nil {
		lg.Error("sentry failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, lg *slog.Logger) error {
	lg.Info("starting kedastral sentry",
		"version", version,
		"workload", cfg.Workload,
		"adapter", cfg.Adapter,
		"model", cfg.Model,
		"orchestrator", cfg.Orchestrator,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Options{
		Endpoint: cfg.TracingEndpoint,
		Insecure: cfg.TracingInsecure,
		Version:  version,
		Workload: cfg.Workload,
	}, lg)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			lg.Error("failed to flush traces", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := newApp(cfg, nil, reg, lg)
	if err != nil {
		return err
	}
	defer a.close()

	a.restore(ctx)

	go func() {
		if err := a.retrainer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			lg.Error("retrain loop failed", "error", err)
		}
	}()

	httpServer := httpx.NewServer(cfg.Listen, a.handler, lg)
	var grpcOpts []grpc.ServerOption
	if cfg.TLS.Enabled {
		tlsConfig, err := cfg.TLS.ServerConfig()
		if err != nil {
			return fmt.Errorf("tls: %w", err)
		}
		httpServer.SetTLSConfig(tlsConfig)
		grpcOpts = append(grpcOpts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}

	serverErr := make(chan error, 2)
	go func() {
		serverErr <- httpServer.Start()
	}()

	var healthServer *health.Server
	if cfg.HealthListen != "" {
		ln, err := net.Listen("tcp", cfg.HealthListen)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.HealthListen, err)
		}
		healthServer = health.New(a.holder.Ready, lg, grpcOpts...)
		go healthServer.Watch(ctx, time.Second)
		go func() {
			serverErr <- healthServer.Serve(ln)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		lg.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			lg.Error("server failed", "error", err)
		}
	}

	lg.Info("shutting down")
	cancel()

	if healthServer != nil {
		healthServer.Stop()
	}
	if err := httpServer.Stop(10 * time.Second); err != nil {
		return err
	}

	lg.Info("shutdown complete", "last_scale", a.executor.LastScale())
	return nil
}
