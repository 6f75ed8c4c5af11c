package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps the latest snapshot per workload in process memory.
// It is safe for concurrent use. Snapshots do not survive a restart, so it
// only suits tests and deployments that accept a cold start.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
	// fail, when set, is returned by every call. Used by tests to simulate
	// an unavailable backend.
	fail error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]Snapshot)}
}

// Put stores a copy of the snapshot, replacing any previous one.
func (s *MemoryStore) Put(ctx context.Context, snapshot Snapshot) error {
	if err := validateWorkload(snapshot.Workload); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	snapshot.State = append([]byte(nil), snapshot.State...)
	s.snapshots[snapshot.Workload] = snapshot
	return nil
}

func (s *MemoryStore) GetLatest(ctx context.Context, workload string) (Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail != nil {
		return Snapshot{}, false, s.fail
	}
	snapshot, found := s.snapshots[workload]
	if found {
		snapshot.State = append([]byte(nil), snapshot.State...)
	}
	return snapshot, found, nil
}

// SetFailure makes every subsequent call return err (nil clears it).
func (s *MemoryStore) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// Len returns the number of snapshots currently stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// Delete removes a snapshot and reports whether one existed.
func (s *MemoryStore) Delete(workload string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.snapshots[workload]
	delete(s.snapshots, workload)
	return existed
}
