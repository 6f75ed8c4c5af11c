package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/HatiCode/kedastral-sentry/pkg/adapters"
	"github.com/HatiCode/kedastral-sentry/pkg/anomaly"
	"github.com/HatiCode/kedastral-sentry/pkg/storage"
)

const tracerName = "github.com/HatiCode/kedastral-sentry/pkg/controller"

// ErrRetrainInProgress is returned by Train when another retrain holds the lock.
var ErrRetrainInProgress = errors.New("retrain already in progress")

// RetrainState is the retrainer's lifecycle state.
type RetrainState string

const (
	StateIdle       RetrainState = "idle"
	StateRetraining RetrainState = "retraining"
)

// RetrainerConfig holds the retrain loop settings.
type RetrainerConfig struct {
	// Workload keys the persisted snapshot.
	Workload string
	// Window is the lookback fetched for each fit.
	Window time.Duration
	// Interval is the time between scheduled retrains.
	Interval time.Duration
	// FetchTimeout bounds each metric fetch.
	FetchTimeout time.Duration
	// StoreTimeout bounds each store call. Defaults to 5s.
	StoreTimeout time.Duration
	// Contamination and Seed are recorded with persisted snapshots.
	Contamination float64
	Seed          int64
}

// Retrainer periodically fetches a training window, fits the model and
// publishes the result. It is the only writer of the ModelHolder.
type Retrainer struct {
	cfg      RetrainerConfig
	adapter  adapters.Adapter
	model    anomaly.Model
	holder   *ModelHolder
	store    storage.Store
	logger   *slog.Logger
	recorder Recorder
	tracer   trace.Tracer

	// mu serializes fits; scheduled ticks wait, explicit Train calls do not.
	mu    sync.Mutex
	state atomic.Value
	now   func() time.Time
}

// NewRetrainer creates a Retrainer. store and recorder may be nil.
func NewRetrainer(
	cfg RetrainerConfig,
	adapter adapters.Adapter,
	model anomaly.Model,
	holder *ModelHolder,
	store storage.Store,
	logger *slog.Logger,
	recorder Recorder,
) *Retrainer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	r := &Retrainer{
		cfg:      cfg,
		adapter:  adapter,
		model:    model,
		holder:   holder,
		store:    store,
		logger:   logger.With("component", "retrainer"),
		recorder: recorder,
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	r.state.Store(StateIdle)
	return r
}

// State reports whether a fit is currently running.
func (r *Retrainer) State() RetrainState {
	return r.state.Load().(RetrainState)
}

// Run retrains every Interval until ctx is canceled. When no snapshot was
// restored it retrains once immediately to shorten the warming period.
// Tick errors are logged, never returned.
func (r *Retrainer) Run(ctx context.Context) error {
	r.logger.Info("starting retrain loop",
		"interval", r.cfg.Interval,
		"window", r.cfg.Window,
		"model", r.model.Name(),
	)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	if !r.holder.Ready() {
		if err := r.Tick(ctx); err != nil {
			r.logger.Warn("initial retrain failed", "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("retrain loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				r.logger.Warn("retrain failed", "error", err)
			}
		}
	}
}

// Tick performs one scheduled retrain, waiting for any fit in progress.
func (r *Retrainer) Tick(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.retrain(ctx, "scheduled")
	return err
}

// Train performs an explicit retrain and returns the published snapshot. It
// fails fast with ErrRetrainInProgress instead of queueing behind another fit.
func (r *Retrainer) Train(ctx context.Context) (*Snapshot, error) {
	if !r.mu.TryLock() {
		return nil, ErrRetrainInProgress
	}
	defer r.mu.Unlock()
	return r.retrain(ctx, "explicit")
}

func (r *Retrainer) retrain(ctx context.Context, trigger string) (*Snapshot, error) {
	r.state.Store(StateRetraining)
	defer r.state.Store(StateIdle)

	ctx, span := r.tracer.Start(ctx, "sentry.retrain",
		trace.WithAttributes(
			attribute.String("sentry.workload", r.cfg.Workload),
			attribute.String("sentry.model", r.model.Name()),
			attribute.String("sentry.trigger", trigger),
		),
	)
	defer span.End()

	fail := func(result string, err error) (*Snapshot, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		if r.recorder != nil {
			r.recorder.RecordRetrain(result)
		}
		return nil, err
	}

	window, err := r.fetch(ctx)
	if err != nil {
		if r.recorder != nil {
			r.recorder.RecordError("adapter", "collect_failed")
		}
		return fail(RetrainFetchFailed, fmt.Errorf("fetch training window: %w", err))
	}

	values := window.Values()
	span.SetAttributes(attribute.Int("sentry.samples", len(values)))
	if len(values) < anomaly.MinFitSamples {
		r.logger.Info("not enough samples to retrain, keeping current model",
			"samples", len(values),
			"required", anomaly.MinFitSamples,
		)
		return fail(RetrainInsufficientData, fmt.Errorf("%w: have %d samples, need %d",
			anomaly.ErrInsufficientData, len(values), anomaly.MinFitSamples))
	}

	start := time.Now()
	state, err := r.model.Fit(values)
	fitDuration := time.Since(start)
	if err != nil {
		return fail(RetrainFitFailed, fmt.Errorf("fit %s: %w", r.model.Name(), err))
	}
	if r.recorder != nil {
		r.recorder.RecordFit(fitDuration.Seconds())
	}

	var version int64 = 1
	if prev := r.holder.Load(); prev != nil {
		version = prev.Version + 1
	}
	snap := &Snapshot{
		Model:       r.model.Name(),
		State:       state,
		FittedAt:    r.now().UTC(),
		SampleCount: len(values),
		Version:     version,
	}
	r.holder.Publish(snap)

	if r.recorder != nil {
		r.recorder.RecordRetrain(RetrainOK)
		r.recorder.SetModel(true, snap.FittedAt, snap.SampleCount)
	}
	r.logger.Info("model retrained",
		"model", snap.Model,
		"samples", snap.SampleCount,
		"version", snap.Version,
		"fit_ms", fitDuration.Milliseconds(),
		"trigger", trigger,
	)

	r.persist(ctx, snap)
	return snap, nil
}

func (r *Retrainer) fetch(ctx context.Context) (*adapters.Window, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	w, err := r.adapter.Collect(ctx, int(r.cfg.Window.Seconds()))
	if err != nil {
		return nil, err
	}
	if r.recorder != nil {
		r.recorder.RecordFetch(time.Since(start).Seconds())
	}
	return w, nil
}

// persist saves the snapshot. Failures are logged and never undo the publish.
func (r *Retrainer) persist(ctx context.Context, snap *Snapshot) {
	if r.store == nil {
		return
	}
	data, err := r.model.Encode(snap.State)
	if err != nil {
		r.logger.Error("failed to encode model state", "error", err)
		if r.recorder != nil {
			r.recorder.RecordError("store", "encode_failed")
		}
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	err = r.store.Put(ctx, storage.Snapshot{
		Workload:      r.cfg.Workload,
		Model:         snap.Model,
		FittedAt:      snap.FittedAt,
		SampleCount:   snap.SampleCount,
		Contamination: r.cfg.Contamination,
		Seed:          r.cfg.Seed,
		Version:       snap.Version,
		State:         data,
	})
	if err != nil {
		r.logger.Warn("failed to persist model snapshot", "error", err)
		if r.recorder != nil {
			r.recorder.RecordError("store", "put_failed")
		}
		return
	}
	r.logger.Debug("persisted model snapshot", "version", snap.Version)
}

// Restore loads the last persisted snapshot and publishes it. It reports
// whether a snapshot was published. A snapshot of a different model kind is
// skipped with a warning; store or decode failures are returned so the
// caller can log them and start cold.
func (r *Retrainer) Restore(ctx context.Context) (bool, error) {
	if r.store == nil {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	saved, found, err := r.store.GetLatest(ctx, r.cfg.Workload)
	if err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}
	if !found {
		r.logger.Info("no persisted model found, starting cold")
		return false, nil
	}
	if saved.Model != r.model.Name() {
		r.logger.Warn("ignoring persisted snapshot for a different model",
			"persisted", saved.Model,
			"configured", r.model.Name(),
		)
		return false, nil
	}

	state, err := r.model.Decode(saved.State)
	if err != nil {
		return false, fmt.Errorf("decode snapshot: %w", err)
	}

	snap := &Snapshot{
		Model:       saved.Model,
		State:       state,
		FittedAt:    saved.FittedAt,
		SampleCount: saved.SampleCount,
		Version:     saved.Version,
	}
	r.holder.Publish(snap)
	if r.recorder != nil {
		r.recorder.SetModel(true, snap.FittedAt, snap.SampleCount)
	}
	r.logger.Info("restored model snapshot",
		"model", snap.Model,
		"fitted_at", snap.FittedAt,
		"samples", snap.SampleCount,
		"version", snap.Version,
	)
	return true, nil
}
