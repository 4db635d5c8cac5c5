// Package train fits the suitability classifier: covariate selection by
// importance, stratified train/test partitioning with cross-validated
// hyperparameter search, and held-out evaluation.
package train

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"nichecast/internal/classifier"
	"nichecast/internal/occurrence"
)

// ErrSingleClass is returned when the label column holds only one class.
// Nothing downstream is meaningful without both presences and absences.
var ErrSingleClass = errors.New("train: labels contain a single class")

// Selector ranks covariates by the importance a preliminary classifier
// assigns them and keeps the top K. The seed makes the ranking reproducible.
// New defaults to the bundled forest; any substitute must also implement
// classifier.ImportanceScorer.
type Selector struct {
	K     int
	Trees int
	Seed  int64
	New   classifier.Factory
}

// Select returns the top-K covariate names by importance, ties broken by
// original column order. When fewer than K covariates exist all of them are
// returned.
func (s Selector) Select(ds occurrence.Dataset) ([]string, error) {
	if len(ds.Covariates) == 0 {
		return nil, fmt.Errorf("train: no candidate covariates")
	}
	absences, presences := ds.ClassCounts()
	if absences == 0 || presences == 0 {
		return nil, fmt.Errorf("%w (%d absences, %d presences)", ErrSingleClass, absences, presences)
	}

	build := s.New
	if build == nil {
		build = classifier.DefaultFactory
	}
	clf := build(classifier.ForestConfig{
		Trees: s.Trees,
		Seed:  s.Seed,
	})
	if err := clf.Fit(ds.Matrix(ds.Covariates), ds.Labels()); err != nil {
		return nil, fmt.Errorf("train: preliminary fit: %w", err)
	}
	scorer, ok := clf.(classifier.ImportanceScorer)
	if !ok {
		return nil, fmt.Errorf("train: classifier does not expose feature importances")
	}

	imp := scorer.Importances()
	order := make([]int, len(ds.Covariates))
	for i := range order {
		order[i] = i
	}
	// Stable sort keeps column order on importance ties, so selection is
	// deterministic.
	sort.SliceStable(order, func(a, b int) bool {
		return imp[order[a]] > imp[order[b]]
	})

	k := s.K
	if k <= 0 || k > len(order) {
		k = len(order)
	}
	names := make([]string, k)
	for i := 0; i < k; i++ {
		names[i] = ds.Covariates[order[i]]
	}

	log.Info().
		Int("candidates", len(ds.Covariates)).
		Int("selected", k).
		Strs("top", names[:min(k, 5)]).
		Msg("Selected covariates by importance")

	return names, nil
}
