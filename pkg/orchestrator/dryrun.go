package orchestrator

import (
	"context"
	"log/slog"
	"sync"
)

// DryRun keeps a replica count in memory and logs every write. It lets the
// controller run end to end without a cluster.
type DryRun struct {
	mu       sync.Mutex
	replicas int
	writes   int
	logger   *slog.Logger
}

func NewDryRun(initial int, logger *slog.Logger) *DryRun {
	if logger == nil {
		logger = slog.Default()
	}
	return &DryRun{replicas: initial, logger: logger}
}

func (d *DryRun) ReadReplicas(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.replicas, nil
}

func (d *DryRun) WriteReplicas(ctx context.Context, replicas int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logger.Info("dry-run scale", "from", d.replicas, "to", replicas)
	d.replicas = replicas
	d.writes++
	return nil
}

// Writes returns how many writes have been applied.
func (d *DryRun) Writes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}
