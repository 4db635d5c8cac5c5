package train

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"nichecast/internal/occurrence"
)

// Confusion holds the four confusion matrix counts at the 0.5 threshold.
type Confusion struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	TN int `json:"tn"`
	FN int `json:"fn"`
}

// Total returns the number of scored records.
func (c Confusion) Total() int { return c.TP + c.FP + c.TN + c.FN }

// Evaluation summarizes held-out performance. It is informational only and
// never gates downstream stages.
type Evaluation struct {
	AUC       float64   `json:"auc"`
	Accuracy  float64   `json:"accuracy"`
	Confusion Confusion `json:"confusion"`
}

// Evaluate scores the held-out partition with the model: presence
// probabilities thresholded at 0.5 for the confusion matrix and accuracy,
// plus ROC AUC over the raw probabilities.
func Evaluate(m *Model, heldout occurrence.Dataset) (Evaluation, error) {
	if heldout.Len() == 0 {
		return Evaluation{}, fmt.Errorf("train: empty held-out partition")
	}
	x := heldout.Matrix(m.Covariates)
	y := heldout.Labels()

	scores := make([]float64, len(x))
	for i, row := range x {
		p, err := m.PredictProba(row)
		if err != nil {
			return Evaluation{}, fmt.Errorf("train: evaluate record %d: %w", i, err)
		}
		scores[i] = p
	}

	var ev Evaluation
	for i, p := range scores {
		switch {
		case p >= 0.5 && y[i] == 1:
			ev.Confusion.TP++
		case p >= 0.5 && y[i] == 0:
			ev.Confusion.FP++
		case p < 0.5 && y[i] == 0:
			ev.Confusion.TN++
		default:
			ev.Confusion.FN++
		}
	}
	ev.Accuracy = float64(ev.Confusion.TP+ev.Confusion.TN) / float64(len(y))
	ev.AUC = rankAUC(scores, y)
	return ev, nil
}

// rankAUC computes the area under the ROC curve for presence scores. A
// single-class slice has no defined ranking, which scores as 0.5.
func rankAUC(scores []float64, labels []int) float64 {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] < scores[order[b]]
	})

	y := make([]float64, len(order))
	classes := make([]bool, len(order))
	pos := 0
	for i, j := range order {
		y[i] = scores[j]
		classes[i] = labels[j] == 1
		if labels[j] == 1 {
			pos++
		}
	}
	if pos == 0 || pos == len(labels) {
		return 0.5
	}

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}
