package learn

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// ForestConfig holds the random forest hyperparameters.
type ForestConfig struct {
	NumTrees    int
	MaxDepth    int
	MinLeafSize int
	Seed        int64
}

// Node is one node of a decision tree. Leaves have Feature == -1 and carry
// the weighted positive-class probability. The structure is exported so a
// trained forest serializes as part of the model artifact.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Prob      float64 `json:"prob"`
	Left      *Node   `json:"left,omitempty"`
	Right     *Node   `json:"right,omitempty"`
}

// Forest is a trained ensemble of CART trees with class-balanced sample
// weighting and Gini-based feature importances.
type Forest struct {
	Trees       []*Node   `json:"trees"`
	NumFeatures int       `json:"num_features"`
	Importances []float64 `json:"importances"`
}

// trainer carries shared training state for one forest fit.
type trainer struct {
	x           [][]float64
	y           []int
	weights     []float64
	cfg         ForestConfig
	mtry        int
	importances []float64
}

// TrainForest fits a random forest on the dataset. Sample weights are
// balanced per class so the minority class is not drowned out. Given the
// same dataset and seed, the fit is identical across runs.
func TrainForest(d *Dataset, cfg ForestConfig) (*Forest, error) {
	if d.Len() == 0 {
		return nil, ErrEmptyDataset
	}
	counts := map[int]int{}
	for _, y := range d.Y {
		counts[y]++
	}
	if len(counts) < 2 {
		return nil, fmt.Errorf("%w: %d class(es) at fit time", ErrDegenerateLabels, len(counts))
	}

	// Balanced weighting: w_c = n / (numClasses * n_c).
	n := float64(d.Len())
	classWeight := map[int]float64{}
	for c, nc := range counts {
		classWeight[c] = n / (2 * float64(nc))
	}
	weights := make([]float64, d.Len())
	for i, y := range d.Y {
		weights[i] = classWeight[y]
	}

	numFeatures := len(d.Features)
	t := &trainer{
		x:           d.X,
		y:           d.Y,
		weights:     weights,
		cfg:         cfg,
		mtry:        max(1, int(math.Sqrt(float64(numFeatures)))),
		importances: make([]float64, numFeatures),
	}

	master := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // seeded for reproducible training
	forest := &Forest{
		Trees:       make([]*Node, cfg.NumTrees),
		NumFeatures: numFeatures,
	}
	for i := 0; i < cfg.NumTrees; i++ {
		rng := rand.New(rand.NewSource(master.Int63())) //nolint:gosec // derived tree seed
		sample := bootstrap(d.Len(), rng)
		forest.Trees[i] = t.buildNode(sample, 0, rng)
	}

	// Normalize accumulated impurity decreases into importances.
	var total float64
	for _, v := range t.importances {
		total += v
	}
	forest.Importances = make([]float64, numFeatures)
	if total > 0 {
		for j, v := range t.importances {
			forest.Importances[j] = v / total
		}
	}
	return forest, nil
}

// PredictProba returns the forest's positive-class probability for one row:
// the mean of the leaf probabilities across trees.
func (f *Forest) PredictProba(row []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	var sum float64
	for _, t := range f.Trees {
		sum += predictNode(t, row)
	}
	return sum / float64(len(f.Trees))
}

// Predict returns the hard label at the 0.5 threshold.
func (f *Forest) Predict(row []float64) int {
	if f.PredictProba(row) >= 0.5 {
		return 1
	}
	return 0
}

func predictNode(n *Node, row []float64) float64 {
	for n.Feature >= 0 {
		if row[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Prob
}

func bootstrap(n int, rng *rand.Rand) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rng.Intn(n)
	}
	return idx
}

// buildNode grows one subtree over the given sample indices.
func (t *trainer) buildNode(idx []int, depth int, rng *rand.Rand) *Node {
	w0, w1 := t.classWeights(idx)
	leaf := &Node{Feature: -1, Prob: prob(w0, w1)}

	if depth >= t.cfg.MaxDepth || len(idx) < 2*t.cfg.MinLeafSize || w0 == 0 || w1 == 0 {
		return leaf
	}

	feature, threshold, gain := t.bestSplit(idx, rng)
	if feature < 0 {
		return leaf
	}
	t.importances[feature] += gain

	var left, right []int
	for _, i := range idx {
		if t.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	return &Node{
		Feature:   feature,
		Threshold: threshold,
		Prob:      prob(w0, w1),
		Left:      t.buildNode(left, depth+1, rng),
		Right:     t.buildNode(right, depth+1, rng),
	}
}

// bestSplit scans a random feature subset for the threshold with the
// largest weighted Gini decrease. Returns feature -1 when no split
// improves on the parent or satisfies the leaf size minimum.
func (t *trainer) bestSplit(idx []int, rng *rand.Rand) (feature int, threshold, gain float64) {
	w0, w1 := t.classWeights(idx)
	totalW := w0 + w1
	parentImpurity := gini(w0, w1)

	feature = -1
	bestGain := 1e-12

	type cell struct {
		v float64
		y int
		w float64
	}
	cells := make([]cell, len(idx))

	for _, j := range featureSubset(len(t.importances), t.mtry, rng) {
		for k, i := range idx {
			cells[k] = cell{v: t.x[i][j], y: t.y[i], w: t.weights[i]}
		}
		sort.Slice(cells, func(a, b int) bool { return cells[a].v < cells[b].v })

		var lw0, lw1 float64
		leftCount := 0
		for k := 0; k < len(cells)-1; k++ {
			if cells[k].y == 0 {
				lw0 += cells[k].w
			} else {
				lw1 += cells[k].w
			}
			leftCount++

			// No threshold exists between equal values.
			if cells[k].v == cells[k+1].v {
				continue
			}
			if leftCount < t.cfg.MinLeafSize || len(cells)-leftCount < t.cfg.MinLeafSize {
				continue
			}

			rw0, rw1 := w0-lw0, w1-lw1
			leftW, rightW := lw0+lw1, rw0+rw1
			weighted := (leftW*gini(lw0, lw1) + rightW*gini(rw0, rw1)) / totalW
			g := (parentImpurity - weighted) * totalW
			if g > bestGain {
				bestGain = g
				feature = j
				threshold = (cells[k].v + cells[k+1].v) / 2
			}
		}
	}

	if feature < 0 {
		return -1, 0, 0
	}
	return feature, threshold, bestGain
}

func (t *trainer) classWeights(idx []int) (w0, w1 float64) {
	for _, i := range idx {
		if t.y[i] == 0 {
			w0 += t.weights[i]
		} else {
			w1 += t.weights[i]
		}
	}
	return w0, w1
}

// featureSubset draws mtry distinct feature indices.
func featureSubset(numFeatures, mtry int, rng *rand.Rand) []int {
	perm := rng.Perm(numFeatures)
	return perm[:mtry]
}

func gini(w0, w1 float64) float64 {
	total := w0 + w1
	if total == 0 {
		return 0
	}
	p := w1 / total
	return 2 * p * (1 - p)
}

func prob(w0, w1 float64) float64 {
	if w0+w1 == 0 {
		return 0
	}
	return w1 / (w0 + w1)
}
