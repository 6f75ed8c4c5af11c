// Package controller wires the two halves of the sentry together: a
// background Retrainer that fits and publishes model snapshots, and a
// Detector that scores fresh windows against the current snapshot and asks
// the scale executor to act.
//
// The two never call each other. They share one ModelHolder: the Retrainer is
// its only writer, the Detector reads it once per cycle.
package controller

import (
	"sync/atomic"
	"time"

	"github.com/HatiCode/kedastral-sentry/pkg/anomaly"
)

// Snapshot is an immutable fitted model. Once published it is never mutated;
// a retrain publishes a new Snapshot instead.
type Snapshot struct {
	Model       string
	State       anomaly.FittedState
	FittedAt    time.Time
	SampleCount int
	Version     int64
}

// ModelHolder is the single slot holding the current snapshot. A nil slot
// means the controller is still warming up.
type ModelHolder struct {
	p atomic.Pointer[Snapshot]
}

// Load returns the current snapshot or nil.
func (h *ModelHolder) Load() *Snapshot {
	return h.p.Load()
}

// Publish atomically replaces the current snapshot.
func (h *ModelHolder) Publish(s *Snapshot) {
	h.p.Store(s)
}

// Ready reports whether a snapshot has been published.
func (h *ModelHolder) Ready() bool {
	return h.p.Load() != nil
}
