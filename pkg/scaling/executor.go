package scaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrOrchestratorUnavailable reports that the current replica count could not be read.
	ErrOrchestratorUnavailable = errors.New("orchestrator unavailable")

	// ErrScaleFailed reports that the orchestrator rejected or failed a replica write.
	ErrScaleFailed = errors.New("scale request failed")
)

// Orchestrator reads and writes the replica count of one managed workload.
type Orchestrator interface {
	ReadReplicas(ctx context.Context) (int, error)
	WriteReplicas(ctx context.Context, replicas int) error
}

// Action is what MaybeScale did.
type Action string

const (
	ActionNone        Action = "none"
	ActionScaleUp     Action = "scale_up"
	ActionScaleDown   Action = "scale_down"
	ActionFailed      Action = "scale_failed"
	ActionUnavailable Action = "orchestrator_unavailable"
)

// Reason explains an ActionNone outcome.
type Reason string

const (
	ReasonCooldown  Reason = "cooldown"
	ReasonAtCeiling Reason = "at_ceiling"
	ReasonAtFloor   Reason = "at_floor"
)

// Outcome is the result of one MaybeScale call. Failures are reported here
// rather than as a Go error so a detection cycle can still return its counts.
type Outcome struct {
	Action Action    `json:"action"`
	Reason Reason    `json:"reason,omitempty"`
	From   int       `json:"from"`
	To     int       `json:"to"`
	At     time.Time `json:"at"`
	Err    error     `json:"-"`
	// Error mirrors Err for JSON payloads.
	Error string `json:"error,omitempty"`
}

// Scaled reports whether a replica write was confirmed.
func (o Outcome) Scaled() bool {
	return o.Action == ActionScaleUp || o.Action == ActionScaleDown
}

// Executor applies Policy to anomaly counts. The read, cooldown check and
// write of one call happen under a single mutex, so concurrent callers can
// never both pass the cooldown check.
type Executor struct {
	policy  Policy
	orch    Orchestrator
	timeout time.Duration
	logger  *slog.Logger

	mu sync.Mutex
	// lastScale is the time of the last confirmed write; zero means never.
	lastScale time.Time
	now       func() time.Time
}

// NewExecutor validates the policy. timeout bounds each orchestrator call;
// zero means 5s.
func NewExecutor(policy Policy, orch Orchestrator, timeout time.Duration, logger *slog.Logger) (*Executor, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scaling policy: %w", err)
	}
	if orch == nil {
		return nil, errors.New("orchestrator is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		policy:  policy,
		orch:    orch,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// LastScale returns the time of the last confirmed scale action (zero if none).
func (e *Executor) LastScale() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastScale
}

// MaybeScale reads the current replicas and, outside the cooldown, moves one
// step toward what the anomaly count asks for. It never retries.
func (e *Executor) MaybeScale(ctx context.Context, anomalies int) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()

	readCtx, cancel := context.WithTimeout(ctx, e.timeout)
	current, err := e.orch.ReadReplicas(readCtx)
	cancel()
	if err != nil {
		e.logger.Warn("failed to read replicas", "error", err)
		wrapped := fmt.Errorf("%w: %v", ErrOrchestratorUnavailable, err)
		return Outcome{Action: ActionUnavailable, At: now, Err: wrapped, Error: wrapped.Error()}
	}

	out := Outcome{Action: ActionNone, From: current, To: current, At: now}

	if !e.lastScale.IsZero() && now.Sub(e.lastScale) < e.policy.Cooldown {
		out.Reason = ReasonCooldown
		return out
	}

	target, reason := e.policy.desired(current, anomalies)
	if reason != "" || target == current {
		out.Reason = reason
		return out
	}

	writeCtx, cancel := context.WithTimeout(ctx, e.timeout)
	err = e.orch.WriteReplicas(writeCtx, target)
	cancel()
	if err != nil {
		e.logger.Error("scale request failed", "from", current, "to", target, "error", err)
		wrapped := fmt.Errorf("%w: %v", ErrScaleFailed, err)
		out.Action = ActionFailed
		out.To = target
		out.Err = wrapped
		out.Error = wrapped.Error()
		return out
	}

	e.lastScale = e.now()
	out.To = target
	if target > current {
		out.Action = ActionScaleUp
	} else {
		out.Action = ActionScaleDown
	}
	e.logger.Info("scaled workload",
		"action", out.Action,
		"from", current,
		"to", target,
		"anomalies", anomalies,
	)
	return out
}
