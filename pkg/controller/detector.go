package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/HatiCode/kedastral-sentry/pkg/adapters"
	"github.com/HatiCode/kedastral-sentry/pkg/anomaly"
	"github.com/HatiCode/kedastral-sentry/pkg/scaling"
)

// Status is the outcome class of a detection cycle.
type Status string

const (
	// StatusWarming means no model has been published yet.
	StatusWarming Status = "warming"
	// StatusNoData means the metric source returned an empty window.
	StatusNoData Status = "no_data"
	StatusOK     Status = "ok"
)

// Scaler is the part of scaling.Executor the detector needs.
type Scaler interface {
	MaybeScale(ctx context.Context, anomalies int) scaling.Outcome
}

// Result reports one detection cycle. Only StatusOK results carry counts.
// CurrentReplicas is nil when the orchestrator could not be read.
type Result struct {
	Status            Status
	AnomaliesDetected int
	TotalPoints       int
	CurrentReplicas   *int
	ScaleOutcome      *scaling.Outcome
	ModelFittedAt     time.Time
}

type okPayload struct {
	Status            Status           `json:"status"`
	AnomaliesDetected int              `json:"anomalies_detected"`
	TotalPoints       int              `json:"total_points"`
	CurrentReplicas   *int             `json:"current_replicas,omitempty"`
	ScaleOutcome      *scaling.Outcome `json:"scale_outcome,omitempty"`
	ModelFittedAt     time.Time        `json:"model_fitted_at"`
}

// MarshalJSON renders warming and no_data results as {"status": ...} only.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Status != StatusOK {
		return json.Marshal(struct {
			Status Status `json:"status"`
		}{r.Status})
	}
	return json.Marshal(okPayload{
		Status:            r.Status,
		AnomaliesDetected: r.AnomaliesDetected,
		TotalPoints:       r.TotalPoints,
		CurrentReplicas:   r.CurrentReplicas,
		ScaleOutcome:      r.ScaleOutcome,
		ModelFittedAt:     r.ModelFittedAt,
	})
}

// Detector runs detect-and-scale cycles on demand.
type Detector struct {
	adapter      adapters.Adapter
	model        anomaly.Model
	holder       *ModelHolder
	scaler       Scaler
	window       time.Duration
	fetchTimeout time.Duration
	logger       *slog.Logger
	recorder     Recorder
	tracer       trace.Tracer
}

// NewDetector creates a Detector. recorder may be nil.
func NewDetector(
	adapter adapters.Adapter,
	model anomaly.Model,
	holder *ModelHolder,
	scaler Scaler,
	window, fetchTimeout time.Duration,
	logger *slog.Logger,
	recorder Recorder,
) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	if fetchTimeout <= 0 {
		fetchTimeout = 10 * time.Second
	}
	return &Detector{
		adapter:      adapter,
		model:        model,
		holder:       holder,
		scaler:       scaler,
		window:       window,
		fetchTimeout: fetchTimeout,
		logger:       logger.With("component", "detector"),
		recorder:     recorder,
		tracer:       otel.Tracer(tracerName),
	}
}

// Detect runs one cycle. The snapshot is read once at the start, so a
// retrain that publishes mid-cycle never mixes two models in one result.
//
// Metric source failures are returned as errors. Orchestrator failures are
// reported inside Result.ScaleOutcome.
func (d *Detector) Detect(ctx context.Context) (Result, error) {
	ctx, span := d.tracer.Start(ctx, "sentry.detect")
	defer span.End()

	snap := d.holder.Load()
	if snap == nil {
		span.SetAttributes(attribute.String("sentry.status", string(StatusWarming)))
		d.record(StatusWarming, 0)
		return Result{Status: StatusWarming}, nil
	}

	window, err := d.fetch(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		if d.recorder != nil {
			d.recorder.RecordError("adapter", "collect_failed")
		}
		return Result{}, fmt.Errorf("fetch detection window: %w", err)
	}
	if window.Len() == 0 {
		span.SetAttributes(attribute.String("sentry.status", string(StatusNoData)))
		d.record(StatusNoData, 0)
		return Result{Status: StatusNoData}, nil
	}

	labels, err := d.model.Score(snap.State, window.Values())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "score failed")
		if d.recorder != nil {
			d.recorder.RecordError("model", "score_failed")
		}
		return Result{}, fmt.Errorf("score window: %w", err)
	}
	count := anomaly.CountOutliers(labels)

	outcome := d.scaler.MaybeScale(ctx, count)
	var replicas *int
	if outcome.Action != scaling.ActionUnavailable {
		current := outcome.From
		if outcome.Scaled() {
			current = outcome.To
		}
		replicas = &current
	}

	span.SetAttributes(
		attribute.String("sentry.status", string(StatusOK)),
		attribute.Int("sentry.points", len(labels)),
		attribute.Int("sentry.anomalies", count),
		attribute.String("sentry.scale.action", string(outcome.Action)),
	)
	d.record(StatusOK, count)
	if d.recorder != nil {
		d.recorder.RecordScale(string(outcome.Action), string(outcome.Reason))
		if replicas != nil {
			d.recorder.SetReplicas(*replicas)
		}
	}

	d.logger.Debug("detection cycle complete",
		"points", len(labels),
		"anomalies", count,
		"action", outcome.Action,
		"reason", outcome.Reason,
	)

	return Result{
		Status:            StatusOK,
		AnomaliesDetected: count,
		TotalPoints:       len(labels),
		CurrentReplicas:   replicas,
		ScaleOutcome:      &outcome,
		ModelFittedAt:     snap.FittedAt,
	}, nil
}

func (d *Detector) fetch(ctx context.Context) (*adapters.Window, error) {
	ctx, cancel := context.WithTimeout(ctx, d.fetchTimeout)
	defer cancel()

	start := time.Now()
	w, err := d.adapter.Collect(ctx, int(d.window.Seconds()))
	if err != nil {
		return nil, err
	}
	if d.recorder != nil {
		d.recorder.RecordFetch(time.Since(start).Seconds())
	}
	return w, nil
}

func (d *Detector) record(status Status, anomalies int) {
	if d.recorder != nil {
		d.recorder.RecordDetect(string(status), anomalies)
	}
}
