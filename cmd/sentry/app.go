package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/kedastral-sentry/cmd/sentry/config"
	"github.com/HatiCode/kedastral-sentry/cmd/sentry/metrics"
	"github.com/HatiCode/kedastral-sentry/cmd/sentry/models"
	"github.com/HatiCode/kedastral-sentry/cmd/sentry/router"
	"github.com/HatiCode/kedastral-sentry/cmd/sentry/store"
	"github.com/HatiCode/kedastral-sentry/pkg/adapters"
	"github.com/HatiCode/kedastral-sentry/pkg/anomaly"
	"github.com/HatiCode/kedastral-sentry/pkg/controller"
	"github.com/HatiCode/kedastral-sentry/pkg/httpx"
	"github.com/HatiCode/kedastral-sentry/pkg/orchestrator"
	"github.com/HatiCode/kedastral-sentry/pkg/scaling"
	"github.com/HatiCode/kedastral-sentry/pkg/storage"
)

// app holds the wired components of one sentry process.
type app struct {
	logger    *slog.Logger
	holder    *controller.ModelHolder
	store     storage.Store
	retrainer *controller.Retrainer
	detector  *controller.Detector
	executor  *scaling.Executor
	metrics   *metrics.Metrics
	handler   http.Handler
}

// newApp builds every component from cfg. orch may be nil, in which case
// one is built from cfg. reg receives the Prometheus collectors.
func newApp(cfg *config.Config, orch scaling.Orchestrator, reg *prometheus.Registry, logger *slog.Logger) (*app, error) {
	httpClient, err := httpx.NewClient(cfg.AdapterTLS, cfg.FetchTimeout)
	if err != nil {
		return nil, fmt.Errorf("adapter client: %w", err)
	}
	adapter, err := adapters.NewWithClient(cfg.Adapter, cfg.AdapterConfig, int(cfg.Step.Seconds()), httpClient)
	if err != nil {
		return nil, fmt.Errorf("adapter: %w", err)
	}

	model, err := models.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	contamination, err := anomaly.ParseContamination(cfg.Contamination)
	if err != nil {
		return nil, err
	}

	st, err := store.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	if orch == nil {
		orch, err = newOrchestrator(cfg, logger)
		if err != nil {
			closeStore(st, logger)
			return nil, fmt.Errorf("orchestrator: %w", err)
		}
	}

	executor, err := scaling.NewExecutor(scaling.Policy{
		MinReplicas: cfg.MinReplicas,
		MaxReplicas: cfg.MaxReplicas,
		Cooldown:    cfg.Cooldown,
	}, orch, cfg.OrchestratorTimeout, logger)
	if err != nil {
		closeStore(st, logger)
		return nil, fmt.Errorf("scale executor: %w", err)
	}

	m := metrics.New(cfg.Workload, reg)
	holder := &controller.ModelHolder{}

	retrainer := controller.NewRetrainer(controller.RetrainerConfig{
		Workload:      cfg.Workload,
		Window:        cfg.Window,
		Interval:      cfg.RetrainInterval,
		FetchTimeout:  cfg.FetchTimeout,
		Contamination: contamination,
		Seed:          cfg.Seed,
	}, adapter, model, holder, st, logger, m)

	detector := controller.NewDetector(adapter, model, holder, executor, cfg.Window, cfg.FetchTimeout, logger, m)

	handler := router.SetupRoutes(router.Deps{
		Detector:       detector,
		Trainer:        retrainer,
		Holder:         holder,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		RequestTimeout: cfg.FetchTimeout + cfg.OrchestratorTimeout*2,
		Logger:         logger,
	})

	return &app{
		logger:    logger,
		holder:    holder,
		store:     st,
		retrainer: retrainer,
		detector:  detector,
		executor:  executor,
		metrics:   m,
		handler:   handler,
	}, nil
}

// restore publishes the persisted snapshot if there is a usable one. Any
// failure means a cold start.
func (a *app) restore(ctx context.Context) {
	restored, err := a.retrainer.Restore(ctx)
	if err != nil {
		a.logger.Warn("could not restore model snapshot, starting cold", "error", err)
		a.metrics.RecordError("store", "restore_failed")
		return
	}
	if !restored {
		a.logger.Info("no model restored, warming up")
	}
}

func (a *app) close() {
	closeStore(a.store, a.logger)
}

func newOrchestrator(cfg *config.Config, logger *slog.Logger) (scaling.Orchestrator, error) {
	switch cfg.Orchestrator {
	case config.OrchestratorDryRun:
		logger.Warn("dry-run orchestrator: scale actions are logged, not applied", "initial_replicas", cfg.DryRunReplicas)
		return orchestrator.NewDryRun(cfg.DryRunReplicas, logger), nil
	case config.OrchestratorKubernetes:
		client, err := orchestrator.NewClientset(cfg.Kubeconfig)
		if err != nil {
			return nil, err
		}
		k, err := orchestrator.NewKubernetes(client, cfg.TargetKind, cfg.Namespace, cfg.TargetName, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("scaling kubernetes workload", "target", k.Target())
		return k, nil
	default:
		return nil, fmt.Errorf("unknown orchestrator %q", cfg.Orchestrator)
	}
}

func closeStore(st storage.Store, logger *slog.Logger) {
	if closer, ok := st.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}
}
