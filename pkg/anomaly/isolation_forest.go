package anomaly

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
)

const (
	defaultTrees      = 100
	defaultSampleSize = 256
)

// IsolationForest isolates samples with random axis splits. Points that are
// isolated in few splits get a score close to 1; typical points score near
// or below 0.5.
//
// The random source is seeded from Seed on every Fit, so fitting the same
// window twice produces the same forest.
type IsolationForest struct {
	// Trees is the ensemble size. Defaults to 100.
	Trees int
	// SampleSize is the subsample drawn per tree (psi). Defaults to 256 and is
	// capped at the training window length.
	SampleSize int
	// Contamination is the expected outlier fraction, in (0, 0.5].
	Contamination float64
	Seed          int64
}

// Node is one node of a flattened isolation tree. Leaves carry the number of
// training points that reached them; internal nodes carry the split value and
// the indexes of their children.
type Node struct {
	Leaf  bool    `json:"leaf,omitempty"`
	Size  int     `json:"n,omitempty"`
	Split float64 `json:"s,omitempty"`
	Left  int     `json:"l,omitempty"`
	Right int     `json:"r,omitempty"`
}

// ForestState is the fitted state of an IsolationForest.
type ForestState struct {
	SampleSize int      `json:"sample_size"`
	Threshold  float64  `json:"threshold"`
	Trees      [][]Node `json:"trees"`
}

func (*ForestState) ModelName() string { return "isolation-forest" }

func (f *IsolationForest) Name() string { return "isolation-forest" }

func (f *IsolationForest) trees() int {
	if f.Trees <= 0 {
		return defaultTrees
	}
	return f.Trees
}

func (f *IsolationForest) sampleSize(n int) int {
	psi := f.SampleSize
	if psi <= 0 {
		psi = defaultSampleSize
	}
	if psi > n {
		psi = n
	}
	return psi
}

// Fit implements Model.
func (f *IsolationForest) Fit(samples []float64) (FittedState, error) {
	if len(samples) < MinFitSamples {
		return nil, fmt.Errorf("%w: have %d samples, need %d", ErrInsufficientData, len(samples), MinFitSamples)
	}
	if err := ValidateContamination(f.Contamination); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(f.Seed))
	psi := f.sampleSize(len(samples))
	heightLimit := int(math.Ceil(math.Log2(float64(psi))))

	st := &ForestState{
		SampleSize: psi,
		Trees:      make([][]Node, f.trees()),
	}
	sub := make([]float64, psi)
	for t := range st.Trees {
		perm := rng.Perm(len(samples))
		for i := 0; i < psi; i++ {
			sub[i] = samples[perm[i]]
		}
		b := &treeBuilder{rng: rng, limit: heightLimit}
		b.build(append([]float64(nil), sub...), 0)
		st.Trees[t] = b.nodes
	}

	st.Threshold = thresholdFor(forestScores(st, samples), f.Contamination)
	return st, nil
}

// Score implements Model.
func (f *IsolationForest) Score(state FittedState, samples []float64) ([]Label, error) {
	st, ok := state.(*ForestState)
	if !ok || st == nil {
		return nil, fmt.Errorf("%w: %s got %T", ErrStateMismatch, f.Name(), state)
	}
	return label(samples, forestScores(st, samples), st.Threshold), nil
}

// Encode implements Model.
func (f *IsolationForest) Encode(state FittedState) ([]byte, error) {
	st, ok := state.(*ForestState)
	if !ok || st == nil {
		return nil, fmt.Errorf("%w: %s got %T", ErrStateMismatch, f.Name(), state)
	}
	return json.Marshal(st)
}

// Decode implements Model.
func (f *IsolationForest) Decode(data []byte) (FittedState, error) {
	var st ForestState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode forest state: %w", err)
	}
	if len(st.Trees) == 0 || st.SampleSize < 2 {
		return nil, fmt.Errorf("%w: empty forest", ErrStateMismatch)
	}
	for i, tree := range st.Trees {
		if err := checkTree(tree); err != nil {
			return nil, fmt.Errorf("%w: tree %d: %v", ErrStateMismatch, i, err)
		}
	}
	return &st, nil
}

func checkTree(tree []Node) error {
	if len(tree) == 0 {
		return fmt.Errorf("no nodes")
	}
	for i, n := range tree {
		if n.Leaf {
			continue
		}
		// children are always appended after their parent
		if n.Left <= i || n.Right <= i || n.Left >= len(tree) || n.Right >= len(tree) {
			return fmt.Errorf("node %d has invalid children", i)
		}
	}
	return nil
}

type treeBuilder struct {
	rng   *rand.Rand
	limit int
	nodes []Node
}

func (b *treeBuilder) build(data []float64, depth int) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{})

	lo, hi := minMax(data)
	if len(data) <= 1 || depth >= b.limit || lo == hi {
		b.nodes[idx] = Node{Leaf: true, Size: len(data)}
		return idx
	}

	split := lo + b.rng.Float64()*(hi-lo)
	var left, right []float64
	for _, v := range data {
		if v < split {
			left = append(left, v)
		} else {
			right = append(right, v)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		b.nodes[idx] = Node{Leaf: true, Size: len(data)}
		return idx
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[idx] = Node{Split: split, Left: l, Right: r}
	return idx
}

func minMax(data []float64) (float64, float64) {
	if len(data) == 0 {
		return 0, 0
	}
	lo, hi := data[0], data[0]
	for _, v := range data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func pathLength(tree []Node, x float64) float64 {
	i, depth := 0, 0
	for !tree[i].Leaf {
		if x < tree[i].Split {
			i = tree[i].Left
		} else {
			i = tree[i].Right
		}
		depth++
	}
	return float64(depth) + avgPathLength(tree[i].Size)
}

func forestScores(st *ForestState, samples []float64) []float64 {
	cn := avgPathLength(st.SampleSize)
	scores := make([]float64, len(samples))
	for i, x := range samples {
		var sum float64
		for _, tree := range st.Trees {
			sum += pathLength(tree, x)
		}
		mean := sum / float64(len(st.Trees))
		scores[i] = math.Pow(2, -mean/cn)
	}
	return scores
}
