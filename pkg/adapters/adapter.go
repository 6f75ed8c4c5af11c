// Package adapters provides metric source connectors that retrieve a trailing
// window of scalar samples from an external metrics backend.
//
// Each adapter implements the Adapter interface and is consumed by both the
// retrain loop and the detection path. Available adapters include:
//   - PrometheusAdapter: fetches samples via the Prometheus HTTP API
//   - VictoriaMetricsAdapter: fetches samples via the VictoriaMetrics Prometheus-compatible API
//   - HTTPAdapter: generic adapter for any REST API with JSON responses
//
// Adapters are intentionally lightweight. They pull raw data and shape it into
// a [Window]; points that cannot be converted to a number are dropped so a
// single bad point never fails the whole fetch.
package adapters

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSourceUnavailable reports a transport failure, a non-2xx status or an
	// error status in the backend response.
	ErrSourceUnavailable = errors.New("metric source unavailable")

	// ErrMalformedResponse reports a response whose top-level shape cannot be
	// understood at all. Individual bad points never produce this error.
	ErrMalformedResponse = errors.New("malformed metric source response")
)

// Sample is a single scalar observation.
type Sample struct {
	TS    time.Time `json:"ts"`
	Value float64   `json:"value"`
}

// Window is an ordered sequence of samples covering a trailing lookback
// duration. A Window is produced fresh on every fetch and never persisted.
type Window struct {
	Samples []Sample
}

// Len returns the number of samples in the window.
func (w *Window) Len() int {
	if w == nil {
		return 0
	}
	return len(w.Samples)
}

// Values returns the scalar series in timestamp order.
func (w *Window) Values() []float64 {
	if w == nil {
		return nil
	}
	out := make([]float64, len(w.Samples))
	for i, s := range w.Samples {
		out[i] = s.Value
	}
	return out
}

// Adapter is the interface that all metric source adapters must implement.
//
// The Collect() call is synchronous and should respect context cancellation
// and deadlines.
type Adapter interface {
	// Collect fetches samples for the last windowSeconds and returns them as a
	// Window sorted by timestamp. An empty window is not an error.
	Collect(ctx context.Context, windowSeconds int) (*Window, error)

	// Name returns a short, unique identifier for the adapter.
	// Example: "prometheus", "victoria-metrics", "http".
	Name() string
}

// AlignTimestamp truncates ts to a multiple of stepSec.
func AlignTimestamp(ts time.Time, stepSec int) time.Time {
	return ts.Truncate(time.Duration(stepSec) * time.Second)
}
