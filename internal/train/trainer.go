package train

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"nichecast/internal/classifier"
	"nichecast/internal/occurrence"
)

// Config drives model training. The seed is distinct from the selector's so
// the split and the ranking are independently reproducible. New defaults to
// the bundled forest.
type Config struct {
	TestFraction float64
	Folds        int
	Trees        int
	MTryGrid     []int
	MinLeafGrid  []int
	Seed         int64
	New          classifier.Factory
}

// Model is the fitted classifier artifact. It records the covariate names in
// the exact order the classifier was trained on; prediction must assemble
// feature vectors in this order. Created once by Train, then read-only. The
// persisted form carries the bundled forest; a substitute classifier predicts
// through the unexported handle for the lifetime of the process but is not
// serialized.
type Model struct {
	Covariates []string           `json:"covariates"`
	Forest     *classifier.Forest `json:"forest"`
	Fitted     FitInfo            `json:"fitted"`

	clf classifier.Classifier
}

// FitInfo captures the training configuration for reproducibility auditing.
type FitInfo struct {
	Seed         int64     `json:"seed"`
	TestFraction float64   `json:"testFraction"`
	Folds        int       `json:"folds"`
	MTry         int       `json:"mtry"`
	MinLeaf      int       `json:"minLeaf"`
	CVAUC        float64   `json:"cvAUC"`
	TrainedAt    time.Time `json:"trainedAt"`
}

// PredictProba scores one feature vector ordered like m.Covariates.
func (m *Model) PredictProba(row []float64) (float64, error) {
	if m.clf != nil {
		return m.clf.PredictProba(row)
	}
	if m.Forest == nil {
		return 0, classifier.ErrNotFitted
	}
	return m.Forest.PredictProba(row)
}

// Train stratifies the dataset into training and held-out partitions, runs
// k-fold cross-validation over the hyperparameter grid maximizing mean AUC,
// refits the winning configuration on the full training partition and returns
// the model plus the untouched held-out partition.
func Train(ds occurrence.Dataset, covariates []string, cfg Config) (*Model, occurrence.Dataset, error) {
	if cfg.TestFraction <= 0 || cfg.TestFraction >= 1 {
		cfg.TestFraction = 0.2
	}
	if cfg.Folds < 2 {
		cfg.Folds = 5
	}
	if len(cfg.MTryGrid) == 0 {
		cfg.MTryGrid = []int{0}
	}
	if len(cfg.MinLeafGrid) == 0 {
		cfg.MinLeafGrid = []int{1, 5}
	}
	if cfg.New == nil {
		cfg.New = classifier.DefaultFactory
	}

	restricted := ds.Restrict(covariates)
	labels := restricted.Labels()
	absences, presences := classCounts(labels)
	if absences == 0 || presences == 0 {
		return nil, occurrence.Dataset{}, fmt.Errorf("%w (%d absences, %d presences)", ErrSingleClass, absences, presences)
	}
	if absences < cfg.Folds || presences < cfg.Folds {
		return nil, occurrence.Dataset{}, fmt.Errorf(
			"train: %d folds need at least %d records per class (have %d absences, %d presences)",
			cfg.Folds, cfg.Folds, absences, presences)
	}

	trainIdx, testIdx := stratifiedSplit(labels, 1-cfg.TestFraction, cfg.Seed)
	trainSet := restricted.Subset(trainIdx)
	heldout := restricted.Subset(testIdx)

	x := trainSet.Matrix(covariates)
	y := trainSet.Labels()
	folds := stratifiedFolds(y, cfg.Folds)

	bestAUC := math.Inf(-1)
	bestMTry, bestMinLeaf := cfg.MTryGrid[0], cfg.MinLeafGrid[0]
	for _, mtry := range cfg.MTryGrid {
		for _, minLeaf := range cfg.MinLeafGrid {
			mean, err := crossValidate(x, y, folds, cfg.New, classifier.ForestConfig{
				Trees:   cfg.Trees,
				MTry:    mtry,
				MinLeaf: minLeaf,
				Seed:    cfg.Seed,
			})
			if err != nil {
				return nil, occurrence.Dataset{}, err
			}
			log.Debug().
				Int("mtry", mtry).
				Int("min_leaf", minLeaf).
				Float64("cv_auc", mean).
				Msg("Cross-validated configuration")
			if mean > bestAUC {
				bestAUC = mean
				bestMTry, bestMinLeaf = mtry, minLeaf
			}
		}
	}

	clf := cfg.New(classifier.ForestConfig{
		Trees:   cfg.Trees,
		MTry:    bestMTry,
		MinLeaf: bestMinLeaf,
		Seed:    cfg.Seed,
	})
	if err := clf.Fit(x, y); err != nil {
		return nil, occurrence.Dataset{}, fmt.Errorf("train: final fit: %w", err)
	}
	forest, _ := clf.(*classifier.Forest)

	model := &Model{
		Covariates: append([]string(nil), covariates...),
		Forest:     forest,
		clf:        clf,
		Fitted: FitInfo{
			Seed:         cfg.Seed,
			TestFraction: cfg.TestFraction,
			Folds:        cfg.Folds,
			MTry:         bestMTry,
			MinLeaf:      bestMinLeaf,
			CVAUC:        bestAUC,
			TrainedAt:    time.Now().UTC(),
		},
	}

	log.Info().
		Int("train_records", trainSet.Len()).
		Int("heldout_records", heldout.Len()).
		Int("mtry", bestMTry).
		Int("min_leaf", bestMinLeaf).
		Float64("cv_auc", bestAUC).
		Msg("Trained model")

	return model, heldout, nil
}

// stratifiedSplit shuffles each class independently with a seeded source and
// takes trainFrac of each, preserving label proportions in both partitions.
func stratifiedSplit(labels []int, trainFrac float64, seed int64) (trainIdx, testIdx []int) {
	rng := rand.New(rand.NewSource(seed))
	for _, class := range []int{0, 1} {
		var idx []int
		for i, l := range labels {
			if l == class {
				idx = append(idx, i)
			}
		}
		rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		n := int(math.Round(trainFrac * float64(len(idx))))
		trainIdx = append(trainIdx, idx[:n]...)
		testIdx = append(testIdx, idx[n:]...)
	}
	return trainIdx, testIdx
}

// stratifiedFolds assigns samples to folds round-robin within each class so
// every fold sees both classes.
func stratifiedFolds(labels []int, k int) []int {
	folds := make([]int, len(labels))
	counts := [2]int{}
	for i, l := range labels {
		folds[i] = counts[l] % k
		counts[l]++
	}
	return folds
}

func crossValidate(x [][]float64, y []int, folds []int, build classifier.Factory, cfg classifier.ForestConfig) (float64, error) {
	k := 0
	for _, f := range folds {
		if f+1 > k {
			k = f + 1
		}
	}
	sum := 0.0
	for f := 0; f < k; f++ {
		var tx [][]float64
		var ty []int
		var vx [][]float64
		var vy []int
		for i := range x {
			if folds[i] == f {
				vx = append(vx, x[i])
				vy = append(vy, y[i])
			} else {
				tx = append(tx, x[i])
				ty = append(ty, y[i])
			}
		}
		foldCfg := cfg
		foldCfg.Seed = cfg.Seed + int64(f+1)*104729
		clf := build(foldCfg)
		if err := clf.Fit(tx, ty); err != nil {
			return 0, fmt.Errorf("train: fold %d fit: %w", f, err)
		}
		scores := make([]float64, len(vx))
		for i, row := range vx {
			p, err := clf.PredictProba(row)
			if err != nil {
				return 0, fmt.Errorf("train: fold %d predict: %w", f, err)
			}
			scores[i] = p
		}
		sum += rankAUC(scores, vy)
	}
	return sum / float64(k), nil
}

func classCounts(labels []int) (absences, presences int) {
	for _, l := range labels {
		if l == 1 {
			presences++
		} else {
			absences++
		}
	}
	return absences, presences
}
