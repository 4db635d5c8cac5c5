package classifier

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// ForestConfig holds the random forest hyperparameters. MTry of zero means
// sqrt of the feature count, the usual default for classification.
type ForestConfig struct {
	Trees   int   `json:"trees"`
	MTry    int   `json:"mtry"`
	MinLeaf int   `json:"minLeaf"`
	Seed    int64 `json:"seed"`
}

// Forest is a seeded random forest over binary labels. The seed fully
// determines the bootstrap samples and feature subsets, so identical inputs
// and configuration reproduce an identical forest.
type Forest struct {
	Config      ForestConfig `json:"config"`
	NumFeatures int          `json:"numFeatures"`
	Trees       []*node      `json:"trees"`
	Importance  []float64    `json:"importance"`
}

type node struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Prob      float64 `json:"p,omitempty"`
	Feature   int     `json:"f,omitempty"`
	Threshold float64 `json:"t,omitempty"`
	Left      *node   `json:"l,omitempty"`
	Right     *node   `json:"r,omitempty"`
}

// NewForest returns an unfitted forest with defaults applied.
func NewForest(cfg ForestConfig) *Forest {
	if cfg.Trees <= 0 {
		cfg.Trees = 200
	}
	if cfg.MinLeaf <= 0 {
		cfg.MinLeaf = 1
	}
	return &Forest{Config: cfg}
}

// Fit grows the configured number of trees on bootstrap samples of x.
func (f *Forest) Fit(x [][]float64, y []int) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("classifier: %d samples vs %d labels", len(x), len(y))
	}
	p := len(x[0])
	if p == 0 {
		return fmt.Errorf("classifier: no feature columns")
	}
	for i, row := range x {
		if len(row) != p {
			return fmt.Errorf("classifier: row %d has %d features, expected %d", i, len(row), p)
		}
	}

	mtry := f.Config.MTry
	if mtry <= 0 || mtry > p {
		mtry = int(math.Sqrt(float64(p)))
		if mtry < 1 {
			mtry = 1
		}
	}

	f.NumFeatures = p
	f.Trees = make([]*node, f.Config.Trees)
	f.Importance = make([]float64, p)

	b := &builder{
		x: x, y: y,
		mtry:    mtry,
		minLeaf: f.Config.MinLeaf,
		imp:     f.Importance,
		total:   len(x),
	}
	for i := range f.Trees {
		// One source per tree keeps growth order-independent and
		// reproducible.
		rng := rand.New(rand.NewSource(f.Config.Seed + int64(i)*7919))
		sample := make([]int, len(x))
		for j := range sample {
			sample[j] = rng.Intn(len(x))
		}
		f.Trees[i] = b.grow(sample, rng)
	}

	normalize(f.Importance)
	return nil
}

// PredictProba averages the presence probability of the leaves the vector
// reaches across all trees.
func (f *Forest) PredictProba(row []float64) (float64, error) {
	if len(f.Trees) == 0 {
		return 0, ErrNotFitted
	}
	if len(row) != f.NumFeatures {
		return 0, fmt.Errorf("%w: got %d features, trained on %d", ErrDimension, len(row), f.NumFeatures)
	}
	sum := 0.0
	for _, t := range f.Trees {
		n := t
		for !n.Leaf {
			if row[n.Feature] <= n.Threshold {
				n = n.Left
			} else {
				n = n.Right
			}
		}
		sum += n.Prob
	}
	return sum / float64(len(f.Trees)), nil
}

// Importances returns the normalized mean decrease in Gini impurity per
// feature column accumulated during Fit.
func (f *Forest) Importances() []float64 {
	return f.Importance
}

type builder struct {
	x       [][]float64
	y       []int
	mtry    int
	minLeaf int
	imp     []float64
	total   int
}

func (b *builder) grow(idx []int, rng *rand.Rand) *node {
	pos := 0
	for _, i := range idx {
		pos += b.y[i]
	}
	prob := float64(pos) / float64(len(idx))
	if pos == 0 || pos == len(idx) || len(idx) < 2*b.minLeaf {
		return &node{Leaf: true, Prob: prob}
	}

	features := rng.Perm(len(b.x[0]))[:b.mtry]
	sort.Ints(features)

	parent := gini(prob)
	best := split{impurity: math.Inf(1)}
	for _, feat := range features {
		if s, ok := b.bestSplit(idx, feat); ok && s.impurity < best.impurity {
			best = s
		}
	}
	if math.IsInf(best.impurity, 1) {
		return &node{Leaf: true, Prob: prob}
	}

	b.imp[best.feature] += float64(len(idx)) / float64(b.total) * (parent - best.impurity)

	var left, right []int
	for _, i := range idx {
		if b.x[i][best.feature] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &node{
		Feature:   best.feature,
		Threshold: best.threshold,
		Left:      b.grow(left, rng),
		Right:     b.grow(right, rng),
	}
}

type split struct {
	feature   int
	threshold float64
	impurity  float64
}

// bestSplit scans the sorted values of one feature and returns the midpoint
// threshold minimizing weighted child Gini impurity, honoring the minimum
// leaf size. Thresholds are scanned in ascending order with strict
// improvement, so ties resolve to the lowest threshold.
func (b *builder) bestSplit(idx []int, feat int) (split, bool) {
	type pair struct {
		v float64
		y int
	}
	pairs := make([]pair, len(idx))
	for i, j := range idx {
		pairs[i] = pair{b.x[j][feat], b.y[j]}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].v != pairs[j].v {
			return pairs[i].v < pairs[j].v
		}
		return pairs[i].y < pairs[j].y
	})

	totalPos := 0
	for _, p := range pairs {
		totalPos += p.y
	}
	n := len(pairs)

	best := split{feature: feat, impurity: math.Inf(1)}
	found := false
	leftPos := 0
	for i := 1; i < n; i++ {
		leftPos += pairs[i-1].y
		if pairs[i].v == pairs[i-1].v {
			continue
		}
		if i < b.minLeaf || n-i < b.minLeaf {
			continue
		}
		pl := float64(leftPos) / float64(i)
		pr := float64(totalPos-leftPos) / float64(n-i)
		w := (float64(i)*gini(pl) + float64(n-i)*gini(pr)) / float64(n)
		if w < best.impurity {
			best.impurity = w
			best.threshold = (pairs[i-1].v + pairs[i].v) / 2
			found = true
		}
	}
	return best, found
}

func gini(p float64) float64 { return 2 * p * (1 - p) }

func normalize(v []float64) {
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	if sum <= 0 {
		return
	}
	for i := range v {
		v[i] /= sum
	}
}
