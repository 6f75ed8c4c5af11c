// Package scaling turns an anomaly count into at most one replica change,
// bounded by a Policy and paced by a cooldown.
package scaling

import (
	"errors"
	"fmt"
	"time"
)

// Policy bounds the replica count and paces scale actions.
type Policy struct {
	// MinReplicas is the floor for scale-down. Must be >= 0.
	MinReplicas int
	// MaxReplicas is the ceiling for scale-up. Must be > 0 and >= MinReplicas.
	MaxReplicas int
	// Cooldown is the minimum time between two successful scale actions.
	Cooldown time.Duration
}

// Validate reports the first invalid field.
func (p Policy) Validate() error {
	if p.MinReplicas < 0 {
		return fmt.Errorf("min replicas must be >= 0, got %d", p.MinReplicas)
	}
	if p.MaxReplicas <= 0 {
		return fmt.Errorf("max replicas must be > 0, got %d", p.MaxReplicas)
	}
	if p.MaxReplicas < p.MinReplicas {
		return fmt.Errorf("max replicas (%d) must be >= min replicas (%d)", p.MaxReplicas, p.MinReplicas)
	}
	if p.Cooldown < 0 {
		return errors.New("cooldown must be >= 0")
	}
	return nil
}

// desired returns the replica count the policy asks for, and the reason when
// it asks for no change. A positive anomaly count steps up by one, a quiet
// window steps down by one.
func (p Policy) desired(current, anomalies int) (int, Reason) {
	if anomalies > 0 {
		if current >= p.MaxReplicas {
			return current, ReasonAtCeiling
		}
		return clampBounds(current+1, p.MinReplicas, p.MaxReplicas), ""
	}
	if current <= p.MinReplicas {
		return current, ReasonAtFloor
	}
	return clampBounds(current-1, p.MinReplicas, p.MaxReplicas), ""
}

func clampBounds(x, lo, hi int) int {
	if x > hi {
		return hi
	}
	if x < lo {
		return lo
	}
	return x
}
