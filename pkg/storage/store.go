// Package storage persists fitted model snapshots so a restarted controller
// can resume scoring without a cold period.
//
// Three backends implement Store: FileStore (a mounted volume, the default),
// RedisStore and MemoryStore. File and Redis payloads share one codec:
// JSON compressed with LZ4.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrStoreUnavailable reports an I/O or backend failure.
	ErrStoreUnavailable = errors.New("model store unavailable")

	// ErrCorrupt reports a stored payload that cannot be decoded.
	ErrCorrupt = errors.New("model snapshot corrupt")
)

// Snapshot is the persisted form of a fitted model.
type Snapshot struct {
	Workload      string    `json:"workload"`
	Model         string    `json:"model"`
	FittedAt      time.Time `json:"fitted_at"`
	SampleCount   int       `json:"sample_count"`
	Contamination float64   `json:"contamination"`
	Seed          int64     `json:"seed"`
	// Version counts successful fits for the workload.
	Version int64 `json:"version"`
	// State is the model-encoded fitted state.
	State []byte `json:"state"`
}

type Store interface {
	Put(ctx context.Context, snapshot Snapshot) error
	GetLatest(ctx context.Context, workload string) (Snapshot, bool, error)
}

// validateWorkload restricts workload names to characters that are safe in
// file names and Redis keys.
func validateWorkload(workload string) error {
	if workload == "" {
		return errors.New("workload name required")
	}
	for _, c := range workload {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.') {
			return fmt.Errorf("invalid workload name %q: only alphanumeric, dots, hyphens, and underscores allowed", workload)
		}
	}
	if workload == "." || workload == ".." {
		return fmt.Errorf("invalid workload name %q", workload)
	}
	return nil
}
