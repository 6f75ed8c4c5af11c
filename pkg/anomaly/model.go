// Package anomaly provides unsupervised scorers that learn the "normal"
// shape of a single scalar metric and label new samples as inliers or
// outliers.
//
// A Model is stateless configuration. Fit returns an immutable FittedState and
// Score reads one; the same (config, state, samples) always yields the same
// labels. Two variants are available:
//   - IsolationForest: 1-D isolation trees, score in (0, 1]
//   - MAD: robust z-score around the median
//
// Both derive their outlier threshold from the training scores using the
// configured contamination: the threshold is the 100*(1-contamination)
// percentile, and a sample is an outlier iff its score is strictly greater.
package anomaly

import "errors"

// MinFitSamples is the smallest training window a model accepts.
const MinFitSamples = 10

// DefaultContamination is the expected outlier fraction when none is configured.
const DefaultContamination = 0.1

var (
	// ErrInsufficientData is returned by Fit when fewer than MinFitSamples are given.
	ErrInsufficientData = errors.New("insufficient data to fit model")

	// ErrStateMismatch is returned when a fitted state does not belong to the model.
	ErrStateMismatch = errors.New("fitted state does not match model")
)

// FittedState is the learned, immutable result of Fit.
type FittedState interface {
	// ModelName reports which model produced the state.
	ModelName() string
}

// Label is the classification of a single sample.
type Label struct {
	Value     float64 `json:"value"`
	Score     float64 `json:"score"`
	IsOutlier bool    `json:"is_outlier"`
}

// Model is the capability interface shared by all scorers.
type Model interface {
	// Name returns the model identifier (e.g. "isolation-forest").
	Name() string

	// Fit learns a state from training samples.
	Fit(samples []float64) (FittedState, error)

	// Score labels every sample against a previously fitted state.
	Score(state FittedState, samples []float64) ([]Label, error)

	// Encode serializes a fitted state for persistence.
	Encode(state FittedState) ([]byte, error)

	// Decode restores a fitted state produced by Encode.
	Decode(data []byte) (FittedState, error)
}

// CountOutliers returns how many labels are outliers.
func CountOutliers(labels []Label) int {
	n := 0
	for _, l := range labels {
		if l.IsOutlier {
			n++
		}
	}
	return n
}
