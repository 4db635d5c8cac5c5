// Package predict applies a trained model pixel-wise across a scenario's
// raster stack and computes change surfaces between epochs.
package predict

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"nichecast/internal/raster"
	"nichecast/internal/train"
)

// Stack maps variable name to its raster for one climate epoch.
type Stack map[string]*raster.Grid

// MissingVariablesError names every covariate the model requires that the
// scenario stack lacks. Prediction never proceeds with a subset.
type MissingVariablesError struct {
	Variables []string
}

func (e *MissingVariablesError) Error() string {
	return fmt.Sprintf("predict: scenario stack missing required covariates: %s",
		strings.Join(e.Variables, ", "))
}

// MetricsInterface is the observability surface the predictor needs.
type MetricsInterface interface {
	PredictionsInc()
	CellsPredictedAdd(int)
	PredictDuration(time.Duration)
}

// Config bounds the predictor's row-block parallelism.
type Config struct {
	Workers int
	Metrics MetricsInterface
}

// Suitability produces the per-pixel presence-probability surface for one
// scenario. Every required covariate must be present in the stack and share
// the template geometry. A cell where any covariate is unset yields an unset
// output cell. Rows are partitioned across workers, each writing a disjoint
// slice of the output, so the result is bit-identical across runs.
func Suitability(m *train.Model, stack Stack, tmpl raster.Template, cfg Config) (*raster.Grid, error) {
	var missing []string
	for _, name := range m.Covariates {
		if _, ok := stack[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MissingVariablesError{Variables: missing}
	}

	grids := make([]*raster.Grid, len(m.Covariates))
	for i, name := range m.Covariates {
		g := stack[name]
		if !g.Template.SameGeometry(tmpl) {
			return nil, fmt.Errorf("predict: raster %q does not match template geometry (%s vs %s)",
				name, g.Template, tmpl)
		}
		grids[i] = g
	}

	start := time.Now()
	out := raster.NewGrid("suitability", tmpl)

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > tmpl.Rows {
		workers = tmpl.Rows
	}
	if workers < 1 {
		workers = 1
	}

	var firstErr error
	var errOnce sync.Once
	var wg sync.WaitGroup
	rowsPer := (tmpl.Rows + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo, hi := w*rowsPer, (w+1)*rowsPer
		if hi > tmpl.Rows {
			hi = tmpl.Rows
		}
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			row := make([]float64, len(grids))
			for r := lo; r < hi; r++ {
				for c := 0; c < tmpl.Cols; c++ {
					complete := true
					for gi, g := range grids {
						v := g.At(c, r)
						if raster.IsNoData(v) {
							complete = false
							break
						}
						row[gi] = v
					}
					if !complete {
						continue
					}
					p, err := m.PredictProba(row)
					if err != nil {
						errOnce.Do(func() { firstErr = err })
						return
					}
					out.Set(c, r, p)
				}
			}
		}(lo, hi)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, fmt.Errorf("predict: %w", firstErr)
	}

	if cfg.Metrics != nil {
		cfg.Metrics.PredictionsInc()
		cfg.Metrics.CellsPredictedAdd(out.DefinedCells())
		cfg.Metrics.PredictDuration(time.Since(start))
	}
	log.Debug().
		Int("cells", out.DefinedCells()).
		Dur("elapsed", time.Since(start)).
		Msg("Predicted suitability surface")
	return out, nil
}

// Change computes the cell-wise difference future − historical. Geometry is
// verified, not assumed; a cell is unset in the output when either operand is
// unset there. No resampling happens here.
func Change(future, historical *raster.Grid) (*raster.Grid, error) {
	if !future.Template.SameGeometry(historical.Template) {
		return nil, fmt.Errorf("predict: change surfaces have mismatched geometry (%s vs %s)",
			future.Template, historical.Template)
	}
	out := raster.NewGrid("change", future.Template)
	for i := range out.Cells {
		fv, hv := future.Cells[i], historical.Cells[i]
		if raster.IsNoData(fv) || raster.IsNoData(hv) {
			continue
		}
		out.Cells[i] = fv - hv
	}
	return out, nil
}
