package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func testSnapshot(workload string, version int64) Snapshot {
	return Snapshot{
		Workload:      workload,
		Model:         "isolation-forest",
		FittedAt:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		SampleCount:   120,
		Contamination: 0.1,
		Seed:          42,
		Version:       version,
		State:         bytes.Repeat([]byte(`{"trees":[[{"leaf":true,"n":10}]]}`), 20),
	}
}

// storeContract runs the behavior every Store implementation must share.
func storeContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("not found", func(t *testing.T) {
		s := newStore(t)
		got, found, err := s.GetLatest(context.Background(), "missing")
		if err != nil {
			t.Fatalf("GetLatest() unexpected error = %v", err)
		}
		if found {
			t.Fatal("GetLatest() found = true for missing workload")
		}
		if got.Workload != "" {
			t.Error("expected zero snapshot")
		}
	})

	t.Run("round trip", func(t *testing.T) {
		s := newStore(t)
		want := testSnapshot("checkout-api", 1)
		if err := s.Put(context.Background(), want); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		got, found, err := s.GetLatest(context.Background(), want.Workload)
		if err != nil || !found {
			t.Fatalf("GetLatest() = found %v, err %v", found, err)
		}
		assertSnapshotEqual(t, got, want)
	})

	t.Run("overwrite keeps latest", func(t *testing.T) {
		s := newStore(t)
		for v := int64(1); v <= 3; v++ {
			if err := s.Put(context.Background(), testSnapshot("api", v)); err != nil {
				t.Fatalf("Put(v%d) error = %v", v, err)
			}
		}
		got, _, err := s.GetLatest(context.Background(), "api")
		if err != nil {
			t.Fatalf("GetLatest() error = %v", err)
		}
		if got.Version != 3 {
			t.Errorf("Version = %d, want 3", got.Version)
		}
	})

	t.Run("invalid workload", func(t *testing.T) {
		s := newStore(t)
		for _, name := range []string{"", "a/b", "has space", ".."} {
			if err := s.Put(context.Background(), testSnapshot(name, 1)); err == nil {
				t.Errorf("Put(%q) expected error", name)
			}
		}
	})

	t.Run("concurrent puts", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				w := fmt.Sprintf("w-%d", i%4)
				if err := s.Put(context.Background(), testSnapshot(w, int64(i))); err != nil {
					t.Errorf("Put() error = %v", err)
				}
				if _, _, err := s.GetLatest(context.Background(), w); err != nil {
					t.Errorf("GetLatest() error = %v", err)
				}
			}(i)
		}
		wg.Wait()
		for i := range 4 {
			if _, found, _ := s.GetLatest(context.Background(), fmt.Sprintf("w-%d", i)); !found {
				t.Errorf("workload w-%d missing", i)
			}
		}
	})
}

func assertSnapshotEqual(t *testing.T, got, want Snapshot) {
	t.Helper()
	if got.Workload != want.Workload || got.Model != want.Model {
		t.Errorf("identity = %s/%s, want %s/%s", got.Workload, got.Model, want.Workload, want.Model)
	}
	if !got.FittedAt.Equal(want.FittedAt) {
		t.Errorf("FittedAt = %v, want %v", got.FittedAt, want.FittedAt)
	}
	if got.SampleCount != want.SampleCount || got.Seed != want.Seed || got.Version != want.Version {
		t.Errorf("metadata = %+v, want %+v", got, want)
	}
	if got.Contamination != want.Contamination {
		t.Errorf("Contamination = %v, want %v", got.Contamination, want.Contamination)
	}
	if !bytes.Equal(got.State, want.State) {
		t.Error("State bytes differ")
	}
}

func TestMemoryStore_Contract(t *testing.T) {
	storeContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestFileStore_Contract(t *testing.T) {
	storeContract(t, func(t *testing.T) Store {
		s, err := NewFileStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewFileStore() error = %v", err)
		}
		return s
	})
}

func TestMemoryStore_CopiesState(t *testing.T) {
	s := NewMemoryStore()
	snap := testSnapshot("api", 1)
	if err := s.Put(context.Background(), snap); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	snap.State[0] = 'X'

	got, _, _ := s.GetLatest(context.Background(), "api")
	if got.State[0] == 'X' {
		t.Fatal("stored state must not alias caller memory")
	}
}

func TestMemoryStore_FailureAndDelete(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Put(context.Background(), testSnapshot("api", 1)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}

	s.SetFailure(ErrStoreUnavailable)
	if err := s.Put(context.Background(), testSnapshot("api", 2)); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Put() error = %v, want ErrStoreUnavailable", err)
	}
	if _, _, err := s.GetLatest(context.Background(), "api"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("GetLatest() error = %v, want ErrStoreUnavailable", err)
	}
	s.SetFailure(nil)

	if !s.Delete("api") {
		t.Error("Delete() = false, want true")
	}
	if s.Delete("api") {
		t.Error("second Delete() = true, want false")
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Put(ctx, testSnapshot("api", 1)); !errors.Is(err, context.Canceled) {
		t.Errorf("Put() error = %v, want context.Canceled", err)
	}
	if _, _, err := s.GetLatest(ctx, "api"); !errors.Is(err, context.Canceled) {
		t.Errorf("GetLatest() error = %v, want context.Canceled", err)
	}
}
