// Package classifier defines the fit/predict-probability capability the
// pipeline trains and queries, and provides the bundled random forest
// implementation. Orchestration code depends only on the interface, so the
// concrete statistical algorithm can be swapped without touching it.
package classifier

import "errors"

// Classifier is the capability the training and prediction stages consume:
// fit on a feature matrix with binary labels, then score single feature
// vectors with a presence-class probability in [0,1].
type Classifier interface {
	// Fit trains on x (one row per sample, columns in a fixed order) and
	// binary labels y.
	Fit(x [][]float64, y []int) error

	// PredictProba returns the presence-class probability for one feature
	// vector in the same column order Fit saw.
	PredictProba(row []float64) (float64, error)
}

// ImportanceScorer is implemented by classifiers that can rank the features
// they were fitted on. The feature selector requires it.
type ImportanceScorer interface {
	// Importances returns one score per feature column, normalized to sum
	// to 1 when any split was made.
	Importances() []float64
}

// Factory builds an unfitted classifier from a training configuration. The
// selector and trainer construct every classifier through a Factory, so the
// statistical algorithm can be swapped without touching orchestration.
type Factory func(ForestConfig) Classifier

// DefaultFactory constructs the bundled random forest.
func DefaultFactory(cfg ForestConfig) Classifier {
	return NewForest(cfg)
}

var (
	// ErrNotFitted is returned when prediction is attempted before Fit.
	ErrNotFitted = errors.New("classifier: not fitted")

	// ErrDimension is returned when a feature vector does not match the
	// fitted column count.
	ErrDimension = errors.New("classifier: feature dimension mismatch")
)
