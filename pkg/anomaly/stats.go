package anomaly

import (
	"math"
	"sort"
)

const eulerGamma = 0.5772156649015329

// percentile returns the p-th percentile (0..100) of values using linear
// interpolation between closest ranks. values is not modified.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	if len(s) == 1 {
		return s[0]
	}
	rank := p / 100 * float64(len(s)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 {
		lo = 0
	}
	if hi >= len(s) {
		hi = len(s) - 1
	}
	if lo == hi {
		return s[lo]
	}
	return s[lo] + (s[hi]-s[lo])*(rank-float64(lo))
}

func median(values []float64) float64 {
	return percentile(values, 50)
}

// avgPathLength is c(n), the average path length of an unsuccessful search
// in a binary search tree of n nodes.
func avgPathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
	}
}

func thresholdFor(scores []float64, contamination float64) float64 {
	return percentile(scores, 100*(1-contamination))
}

func label(samples, scores []float64, threshold float64) []Label {
	out := make([]Label, len(samples))
	for i := range samples {
		out[i] = Label{
			Value:     samples[i],
			Score:     scores[i],
			IsOutlier: scores[i] > threshold,
		}
	}
	return out
}
