package anomaly

import (
	"errors"
	"math/rand"
	"testing"
)

func spikeWindow() []float64 {
	return []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 50}
}

func TestModels_SpikeIsOutlier(t *testing.T) {
	models := []Model{
		&IsolationForest{Trees: 50, Contamination: 0.1, Seed: 42},
		&MAD{Contamination: 0.1},
	}
	for _, m := range models {
		t.Run(m.Name(), func(t *testing.T) {
			st, err := m.Fit(spikeWindow())
			if err != nil {
				t.Fatalf("Fit error: %v", err)
			}
			labels, err := m.Score(st, []float64{50, 1})
			if err != nil {
				t.Fatalf("Score error: %v", err)
			}
			if !labels[0].IsOutlier {
				t.Errorf("50 should be an outlier (score %v)", labels[0].Score)
			}
			if labels[1].IsOutlier {
				t.Errorf("1 should be an inlier (score %v)", labels[1].Score)
			}
			if labels[0].Value != 50 || labels[1].Value != 1 {
				t.Errorf("labels must echo input values: %+v", labels)
			}
		})
	}
}

func TestModels_InsufficientData(t *testing.T) {
	models := []Model{
		&IsolationForest{Contamination: 0.1},
		&MAD{Contamination: 0.1},
	}
	for _, m := range models {
		t.Run(m.Name(), func(t *testing.T) {
			_, err := m.Fit([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9})
			if !errors.Is(err, ErrInsufficientData) {
				t.Fatalf("expected ErrInsufficientData, got %v", err)
			}
		})
	}
}

func TestModels_ConstantWindowHasNoOutliers(t *testing.T) {
	window := make([]float64, 20)
	for i := range window {
		window[i] = 7
	}
	models := []Model{
		&IsolationForest{Contamination: 0.1, Seed: 1},
		&MAD{Contamination: 0.1},
	}
	for _, m := range models {
		t.Run(m.Name(), func(t *testing.T) {
			st, err := m.Fit(window)
			if err != nil {
				t.Fatalf("Fit error: %v", err)
			}
			labels, err := m.Score(st, window)
			if err != nil {
				t.Fatalf("Score error: %v", err)
			}
			if n := CountOutliers(labels); n != 0 {
				t.Fatalf("expected no outliers, got %d", n)
			}
		})
	}
}

func TestModels_InvalidContamination(t *testing.T) {
	for _, c := range []float64{0, -0.1, 0.6} {
		if _, err := (&IsolationForest{Contamination: c}).Fit(spikeWindow()); err == nil {
			t.Errorf("forest: expected error for contamination %v", c)
		}
		if _, err := (&MAD{Contamination: c}).Fit(spikeWindow()); err == nil {
			t.Errorf("mad: expected error for contamination %v", c)
		}
	}
}

func TestIsolationForest_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	window := make([]float64, 300)
	for i := range window {
		window[i] = 100 + rng.NormFloat64()*5
	}
	window[150] = 400

	f := &IsolationForest{Trees: 64, SampleSize: 128, Contamination: 0.05, Seed: 99}
	a, err := f.Fit(window)
	if err != nil {
		t.Fatalf("Fit error: %v", err)
	}
	b, err := f.Fit(window)
	if err != nil {
		t.Fatalf("Fit error: %v", err)
	}

	la, _ := f.Score(a, window)
	lb, _ := f.Score(b, window)
	for i := range la {
		if la[i] != lb[i] {
			t.Fatalf("label %d differs between fits: %+v vs %+v", i, la[i], lb[i])
		}
	}
	if !la[150].IsOutlier {
		t.Errorf("injected spike should be an outlier (score %v, threshold %v)", la[150].Score, a.(*ForestState).Threshold)
	}
	if a.(*ForestState).SampleSize != 128 {
		t.Errorf("SampleSize = %d, want 128", a.(*ForestState).SampleSize)
	}
}

func TestIsolationForest_SampleSizeCappedAtWindow(t *testing.T) {
	f := &IsolationForest{Trees: 5, Contamination: 0.1}
	st, err := f.Fit(spikeWindow())
	if err != nil {
		t.Fatalf("Fit error: %v", err)
	}
	fs := st.(*ForestState)
	if fs.SampleSize != 10 {
		t.Errorf("SampleSize = %d, want 10", fs.SampleSize)
	}
	if len(fs.Trees) != 5 {
		t.Errorf("got %d trees, want 5", len(fs.Trees))
	}
}

func TestModels_EncodeDecodeRoundTrip(t *testing.T) {
	window := []float64{10, 12, 11, 13, 9, 10, 11, 12, 10, 95, 11, 10}
	probe := []float64{10, 11, 95, 40, -3}

	models := []Model{
		&IsolationForest{Trees: 30, Contamination: 0.1, Seed: 3},
		&MAD{Contamination: 0.1},
	}
	for _, m := range models {
		t.Run(m.Name(), func(t *testing.T) {
			st, err := m.Fit(window)
			if err != nil {
				t.Fatalf("Fit error: %v", err)
			}
			data, err := m.Encode(st)
			if err != nil {
				t.Fatalf("Encode error: %v", err)
			}
			restored, err := m.Decode(data)
			if err != nil {
				t.Fatalf("Decode error: %v", err)
			}
			if restored.ModelName() != m.Name() {
				t.Errorf("ModelName = %s, want %s", restored.ModelName(), m.Name())
			}

			want, _ := m.Score(st, probe)
			got, err := m.Score(restored, probe)
			if err != nil {
				t.Fatalf("Score error: %v", err)
			}
			for i := range want {
				if want[i] != got[i] {
					t.Errorf("label %d: got %+v, want %+v", i, got[i], want[i])
				}
			}
		})
	}
}

func TestModels_StateMismatch(t *testing.T) {
	forest := &IsolationForest{Contamination: 0.1}
	mad := &MAD{Contamination: 0.1}

	madState, err := mad.Fit(spikeWindow())
	if err != nil {
		t.Fatalf("Fit error: %v", err)
	}
	if _, err := forest.Score(madState, []float64{1}); !errors.Is(err, ErrStateMismatch) {
		t.Errorf("expected ErrStateMismatch, got %v", err)
	}
	if _, err := forest.Encode(madState); !errors.Is(err, ErrStateMismatch) {
		t.Errorf("expected ErrStateMismatch, got %v", err)
	}

	data, _ := mad.Encode(madState)
	if _, err := forest.Decode(data); !errors.Is(err, ErrStateMismatch) {
		t.Errorf("expected ErrStateMismatch decoding mad state as forest, got %v", err)
	}
	if _, err := mad.Decode([]byte(`{"trees":[[{"leaf":true,"n":3}]],"sample_size":3}`)); !errors.Is(err, ErrStateMismatch) {
		t.Errorf("expected ErrStateMismatch decoding forest state as mad, got %v", err)
	}
	if _, err := forest.Decode([]byte(`{"trees":[[{"s":1,"l":0,"r":0}]],"sample_size":10}`)); !errors.Is(err, ErrStateMismatch) {
		t.Errorf("expected ErrStateMismatch for cyclic tree, got %v", err)
	}
	if _, err := forest.Decode([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid json")
	}
}

func TestCountOutliers(t *testing.T) {
	labels := []Label{{IsOutlier: true}, {}, {IsOutlier: true}}
	if n := CountOutliers(labels); n != 2 {
		t.Fatalf("CountOutliers = %d, want 2", n)
	}
	if n := CountOutliers(nil); n != 0 {
		t.Fatalf("CountOutliers(nil) = %d, want 0", n)
	}
}
