package rasterize

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"nichecast/internal/raster"
)

// Status of one variable's rasterization.
type Status string

const (
	StatusRasterized Status = "rasterized"
	StatusSkipped    Status = "skipped"
)

// Unit is the immutable outcome for one variable: either a grid conforming
// to the template, or a skip with its reason.
type Unit struct {
	Variable string
	Status   Status
	Reason   string
	Grid     *raster.Grid
}

// MetricsInterface is the observability surface the rasterizer needs.
type MetricsInterface interface {
	VariablesSkippedInc()
	RasterizeDuration(time.Duration)
}

// Config bounds the rasterizer. MinPoints is the viability floor below which
// a variable column is skipped outright.
type Config struct {
	MinPoints int
	Workers   int
	Metrics   MetricsInterface
}

// Rasterize converts every variable column of the table into a raster on the
// template. Variables run concurrently on a bounded pool; each worker owns
// its variable's grid outright, so results merge without shared state. The
// returned units are ordered like tbl.Variables regardless of completion
// order, keeping output deterministic.
func Rasterize(tbl *PointTable, tmpl raster.Template, cfg Config) []Unit {
	if cfg.MinPoints <= 0 {
		cfg.MinPoints = 10
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(tbl.Variables) {
		workers = len(tbl.Variables)
	}
	if workers < 1 {
		workers = 1
	}

	units := make([]Unit, len(tbl.Variables))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for vi := range jobs {
				start := time.Now()
				units[vi] = rasterizeVariable(tbl, vi, tmpl, cfg.MinPoints)
				if cfg.Metrics != nil {
					cfg.Metrics.RasterizeDuration(time.Since(start))
					if units[vi].Status == StatusSkipped {
						cfg.Metrics.VariablesSkippedInc()
					}
				}
			}
		}()
	}
	for vi := range tbl.Variables {
		jobs <- vi
	}
	close(jobs)
	wg.Wait()

	for _, u := range units {
		if u.Status == StatusSkipped {
			log.Warn().Str("variable", u.Variable).Str("reason", u.Reason).Msg("Skipped variable")
		}
	}
	return units
}

func rasterizeVariable(tbl *PointTable, vi int, tmpl raster.Template, minPoints int) Unit {
	name := tbl.Variables[vi]
	vals := tbl.Values[vi]

	var lons, lats, vs []float64
	for i, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lons = append(lons, tbl.Lons[i])
		lats = append(lats, tbl.Lats[i])
		vs = append(vs, v)
	}
	if len(vs) < minPoints {
		return Unit{
			Variable: name,
			Status:   StatusSkipped,
			Reason:   fmt.Sprintf("too few valid points: %d < %d", len(vs), minPoints),
		}
	}

	g := aggregateMean(name, tmpl, lons, lats, vs)
	if g.DefinedCells() == 0 {
		// Point density mismatched with the template; fall back to
		// nearest-neighbor interpolation onto the cell centers.
		g = nearestNeighbor(name, tmpl, lons, lats, vs)
	}
	if g.DefinedCells() == 0 {
		return Unit{
			Variable: name,
			Status:   StatusSkipped,
			Reason:   "rasterization produced an empty grid after fallback interpolation",
		}
	}
	return Unit{Variable: name, Status: StatusRasterized, Grid: smooth3x3(g)}
}

// aggregateMean averages all points falling into each template cell. Points
// are visited in table order, so the accumulated sums (and therefore the
// output bits) do not depend on scheduling.
func aggregateMean(name string, tmpl raster.Template, lons, lats, vs []float64) *raster.Grid {
	sums := make([]float64, tmpl.Cols*tmpl.Rows)
	counts := make([]int, tmpl.Cols*tmpl.Rows)
	for i, v := range vs {
		col, row, ok := tmpl.CellOf(lons[i], lats[i])
		if !ok {
			continue
		}
		idx := row*tmpl.Cols + col
		sums[idx] += v
		counts[idx]++
	}
	g := raster.NewGrid(name, tmpl)
	for i, c := range counts {
		if c > 0 {
			g.Cells[i] = sums[i] / float64(c)
		}
	}
	return g
}

// nearestNeighbor assigns each cell the value of the nearest sample point.
// Ties resolve to the lowest point index (strict distance improvement), so
// the result is independent of processing order.
func nearestNeighbor(name string, tmpl raster.Template, lons, lats, vs []float64) *raster.Grid {
	g := raster.NewGrid(name, tmpl)
	for row := 0; row < tmpl.Rows; row++ {
		for col := 0; col < tmpl.Cols; col++ {
			cx, cy := tmpl.CellCenter(col, row)
			best := math.Inf(1)
			bestVal := math.NaN()
			for i := range vs {
				dx, dy := lons[i]-cx, lats[i]-cy
				d := dx*dx + dy*dy
				if d < best {
					best = d
					bestVal = vs[i]
				}
			}
			g.Set(col, row, bestVal)
		}
	}
	return g
}

// smooth3x3 replaces each defined cell with the mean of its defined 3x3
// neighborhood. Unset cells stay unset; smoothing never invents data where
// aggregation produced none.
func smooth3x3(g *raster.Grid) *raster.Grid {
	t := g.Template
	out := raster.NewGrid(g.Name, t)
	for row := 0; row < t.Rows; row++ {
		for col := 0; col < t.Cols; col++ {
			if raster.IsNoData(g.At(col, row)) {
				continue
			}
			sum := 0.0
			n := 0
			for dr := -1; dr <= 1; dr++ {
				for dc := -1; dc <= 1; dc++ {
					r, c := row+dr, col+dc
					if r < 0 || r >= t.Rows || c < 0 || c >= t.Cols {
						continue
					}
					if v := g.At(c, r); !raster.IsNoData(v) {
						sum += v
						n++
					}
				}
			}
			out.Set(col, row, sum/float64(n))
		}
	}
	return out
}
