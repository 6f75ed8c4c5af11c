package anomaly

import (
	"encoding/json"
	"fmt"
	"math"
)

// madConsistency scales the MAD to the standard deviation of a normal distribution.
const madConsistency = 1.4826

// MAD scores each sample by its robust z-score |x - median| / scale.
//
// scale is 1.4826*MAD; when the MAD is zero (more than half the window is
// identical) it falls back to the mean absolute deviation, then to 1.
type MAD struct {
	Contamination float64
}

// MADState is the fitted state of a MAD model.
type MADState struct {
	Median    float64 `json:"median"`
	Scale     float64 `json:"scale"`
	Threshold float64 `json:"threshold"`
}

func (*MADState) ModelName() string { return "mad" }

func (m *MAD) Name() string { return "mad" }

// Fit implements Model.
func (m *MAD) Fit(samples []float64) (FittedState, error) {
	if len(samples) < MinFitSamples {
		return nil, fmt.Errorf("%w: have %d samples, need %d", ErrInsufficientData, len(samples), MinFitSamples)
	}
	if err := ValidateContamination(m.Contamination); err != nil {
		return nil, err
	}

	med := median(samples)
	dev := make([]float64, len(samples))
	var sum float64
	for i, v := range samples {
		dev[i] = math.Abs(v - med)
		sum += dev[i]
	}

	scale := madConsistency * median(dev)
	if scale == 0 {
		scale = sum / float64(len(samples))
	}
	if scale == 0 {
		scale = 1
	}

	st := &MADState{Median: med, Scale: scale}
	st.Threshold = thresholdFor(madScores(st, samples), m.Contamination)
	return st, nil
}

// Score implements Model.
func (m *MAD) Score(state FittedState, samples []float64) ([]Label, error) {
	st, ok := state.(*MADState)
	if !ok || st == nil {
		return nil, fmt.Errorf("%w: %s got %T", ErrStateMismatch, m.Name(), state)
	}
	return label(samples, madScores(st, samples), st.Threshold), nil
}

// Encode implements Model.
func (m *MAD) Encode(state FittedState) ([]byte, error) {
	st, ok := state.(*MADState)
	if !ok || st == nil {
		return nil, fmt.Errorf("%w: %s got %T", ErrStateMismatch, m.Name(), state)
	}
	return json.Marshal(st)
}

// Decode implements Model.
func (m *MAD) Decode(data []byte) (FittedState, error) {
	var st MADState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode mad state: %w", err)
	}
	if !(st.Scale > 0) {
		return nil, fmt.Errorf("%w: non-positive scale", ErrStateMismatch)
	}
	return &st, nil
}

func madScores(st *MADState, samples []float64) []float64 {
	scores := make([]float64, len(samples))
	for i, v := range samples {
		scores[i] = math.Abs(v-st.Median) / st.Scale
	}
	return scores
}
