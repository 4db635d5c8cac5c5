package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsWithRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.RecordsDroppedAdd(7)
	m.VariablesSkippedInc()
	m.VariablesSkippedInc()
	m.PredictionsInc()
	m.CellsPredictedAdd(360)
	m.ModelAUCSet(0.91)
	m.RasterizeDuration(50 * time.Millisecond)
	m.PredictDuration(120 * time.Millisecond)

	if got := testutil.ToFloat64(m.RecordsDropped); got != 7 {
		t.Errorf("records_dropped_total = %v, want 7", got)
	}
	if got := testutil.ToFloat64(m.VariablesSkipped); got != 2 {
		t.Errorf("variables_skipped_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Predictions); got != 1 {
		t.Errorf("predictions_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CellsPredicted); got != 360 {
		t.Errorf("cells_predicted_total = %v, want 360", got)
	}
	if got := testutil.ToFloat64(m.ModelAUC); got != 0.91 {
		t.Errorf("model_auc = %v, want 0.91", got)
	}
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	t.Parallel()

	a := NewWithRegistry(prometheus.NewRegistry())
	b := NewWithRegistry(prometheus.NewRegistry())
	a.PredictionsInc()
	if got := testutil.ToFloat64(b.Predictions); got != 0 {
		t.Errorf("second registry counter = %v, want 0", got)
	}
}
