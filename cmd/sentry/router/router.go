// Package router configures the sentry's HTTP API.
//
// Routes:
//   - GET|POST /detect - Run one detect-and-scale cycle
//   - POST /train      - Retrain now (409 while a retrain is running)
//   - GET /model       - Metadata of the published model snapshot
//   - GET /healthz     - Liveness (always 200)
//   - GET /readyz      - Readiness (503 while warming)
//   - GET /metrics     - Prometheus metrics
package router

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/kedastral-sentry/pkg/adapters"
	"github.com/HatiCode/kedastral-sentry/pkg/anomaly"
	"github.com/HatiCode/kedastral-sentry/pkg/controller"
	"github.com/HatiCode/kedastral-sentry/pkg/httpx"
)

// Detector runs detection cycles.
type Detector interface {
	Detect(ctx context.Context) (controller.Result, error)
}

// Trainer runs explicit retrains.
type Trainer interface {
	Train(ctx context.Context) (*controller.Snapshot, error)
	State() controller.RetrainState
}

// Deps bundles what the routes need.
type Deps struct {
	Detector Detector
	Trainer  Trainer
	Holder   *controller.ModelHolder
	// Metrics serves /metrics. Nil uses promhttp.Handler().
	Metrics http.Handler
	// RequestTimeout bounds /detect and /train. Zero means 30s.
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

var errWarming = errors.New("model warming up")

// SetupRoutes returns the API handler behind the httpx middleware chain.
func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = promhttp.Handler()
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}

	mux := http.NewServeMux()

	detect := handleDetect(d)
	mux.HandleFunc("GET /detect", detect)
	mux.HandleFunc("POST /detect", detect)
	mux.HandleFunc("POST /train", handleTrain(d))
	mux.HandleFunc("GET /model", handleModel(d))

	mux.Handle("GET /healthz", httpx.HealthHandler())
	mux.Handle("GET /readyz", httpx.HealthHandlerWithCheck(func() error {
		if !d.Holder.Ready() {
			return errWarming
		}
		return nil
	}))
	mux.Handle("GET /metrics", d.Metrics)

	return httpx.Chain(mux,
		httpx.RecoveryMiddleware(d.Logger),
		httpx.TracingMiddleware(nil),
		httpx.LoggingMiddleware(d.Logger),
	)
}

func handleDetect(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d.RequestTimeout)
		defer cancel()

		res, err := d.Detector.Detect(ctx)
		if err != nil {
			d.Logger.Warn("detection failed", "error", err)
			httpx.WriteError(w, statusFor(err), err)
			return
		}
		if err := httpx.WriteJSON(w, http.StatusOK, res); err != nil {
			d.Logger.Error("failed to write JSON response", "error", err)
		}
	}
}

type trainResponse struct {
	Status      string    `json:"status"`
	Model       string    `json:"model"`
	FittedAt    time.Time `json:"fitted_at"`
	SampleCount int       `json:"sample_count"`
	Version     int64     `json:"version"`
}

func handleTrain(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d.RequestTimeout)
		defer cancel()

		snap, err := d.Trainer.Train(ctx)
		if err != nil {
			d.Logger.Warn("explicit retrain failed", "error", err)
			httpx.WriteError(w, statusFor(err), err)
			return
		}
		resp := trainResponse{
			Status:      "trained",
			Model:       snap.Model,
			FittedAt:    snap.FittedAt,
			SampleCount: snap.SampleCount,
			Version:     snap.Version,
		}
		if err := httpx.WriteJSON(w, http.StatusOK, resp); err != nil {
			d.Logger.Error("failed to write JSON response", "error", err)
		}
	}
}

type modelResponse struct {
	Status       string                  `json:"status"`
	RetrainState controller.RetrainState `json:"retrain_state"`
	Model        string                  `json:"model,omitempty"`
	FittedAt     *time.Time              `json:"fitted_at,omitempty"`
	AgeSeconds   float64                 `json:"age_seconds,omitempty"`
	SampleCount  int                     `json:"sample_count,omitempty"`
	Version      int64                   `json:"version,omitempty"`
}

func handleModel(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := modelResponse{
			Status:       string(controller.StatusWarming),
			RetrainState: d.Trainer.State(),
		}
		status := http.StatusServiceUnavailable

		if snap := d.Holder.Load(); snap != nil {
			fittedAt := snap.FittedAt
			resp.Status = "ready"
			resp.Model = snap.Model
			resp.FittedAt = &fittedAt
			resp.AgeSeconds = time.Since(fittedAt).Seconds()
			resp.SampleCount = snap.SampleCount
			resp.Version = snap.Version
			status = http.StatusOK
		}

		if err := httpx.WriteJSON(w, status, resp); err != nil {
			d.Logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// statusFor maps controller errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, controller.ErrRetrainInProgress):
		return http.StatusConflict
	case errors.Is(err, anomaly.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, adapters.ErrMalformedResponse):
		return http.StatusBadGateway
	case errors.Is(err, adapters.ErrSourceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
