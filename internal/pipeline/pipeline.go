// Package pipeline orchestrates a projection run: normalize and load the
// occurrence table, select covariates, train and evaluate the model, then per
// scenario rasterize the climate points, predict suitability and derive
// change surfaces against the baseline epoch. Per-unit outcomes are collected
// into a manifest instead of aborting sibling work.
package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"nichecast/internal/cfg"
	"nichecast/internal/occurrence"
	"nichecast/internal/predict"
	"nichecast/internal/raster"
	"nichecast/internal/rasterize"
	"nichecast/internal/train"
)

// Unit statuses recorded in the manifest.
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Unit kinds recorded in the manifest.
const (
	KindVariable = "variable"
	KindScenario = "scenario"
	KindChange   = "change"
)

// UnitResult is the machine-readable outcome of one unit of work.
type UnitResult struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Manifest summarizes what a run produced, what it skipped and why.
type Manifest struct {
	RunLabel   string               `json:"runLabel"`
	StartedAt  time.Time            `json:"startedAt"`
	FinishedAt time.Time            `json:"finishedAt"`
	Dropped    occurrence.DropStats `json:"droppedRecords"`
	Covariates []string             `json:"covariates"`
	Evaluation train.Evaluation     `json:"evaluation"`
	Units      []UnitResult         `json:"units"`
}

// Summary counts the units by status.
func (m *Manifest) Summary() (ok, skipped, failed int) {
	for _, u := range m.Units {
		switch u.Status {
		case StatusOK:
			ok++
		case StatusSkipped:
			skipped++
		case StatusFailed:
			failed++
		}
	}
	return ok, skipped, failed
}

// WriteFile writes the manifest as indented JSON.
func (m *Manifest) WriteFile(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest %s: %w", path, err)
	}
	return nil
}

// MetricsInterface aggregates the observability surfaces of the stages.
type MetricsInterface interface {
	RecordsDroppedAdd(int)
	ModelAUCSet(float64)
	rasterize.MetricsInterface
	predict.MetricsInterface
}

// Result is everything a completed run hands back to the caller.
type Result struct {
	Manifest *Manifest
	Model    *train.Model
	Heldout  occurrence.Dataset
	Surfaces map[string]*raster.Grid
	Changes  map[string]*raster.Grid
}

// Pipeline wires the stages together under one configuration.
type Pipeline struct {
	settings cfg.Settings
	metrics  MetricsInterface
}

// New builds a pipeline. metrics may be nil.
func New(settings cfg.Settings, metrics MetricsInterface) *Pipeline {
	return &Pipeline{settings: settings, metrics: metrics}
}

// Run executes the full pipeline. Fatal precondition failures return an
// error; failures local to one variable or scenario are contained in the
// manifest and never abort siblings.
func (p *Pipeline) Run() (*Result, error) {
	s := p.settings
	man := &Manifest{RunLabel: s.RunLabel, StartedAt: time.Now().UTC()}

	tmpl, err := raster.ReadTemplate(s.TemplatePath, s.CRS)
	if err != nil {
		return nil, fmt.Errorf("pipeline: template: %w", err)
	}
	log.Info().Stringer("template", tmpl).Msg("Loaded raster template")

	ds, drops, err := occurrence.LoadTable(s.OccurrencesPath, s.LabelColumn)
	if err != nil {
		return nil, fmt.Errorf("pipeline: occurrences: %w", err)
	}
	man.Dropped = drops
	if drops.Total() > 0 {
		log.Warn().
			Int("bad_label", drops.BadLabel).
			Int("bad_value", drops.BadValue).
			Msg("Dropped occurrence records during normalization")
	}
	if p.metrics != nil {
		p.metrics.RecordsDroppedAdd(drops.Total())
	}

	selector := train.Selector{K: s.TopK, Trees: s.Trees, Seed: s.SelectorSeed}
	covariates, err := selector.Select(ds)
	if err != nil {
		return nil, fmt.Errorf("pipeline: feature selection: %w", err)
	}
	man.Covariates = covariates

	model, heldout, err := train.Train(ds, covariates, train.Config{
		TestFraction: s.TestFraction,
		Folds:        s.Folds,
		Trees:        s.Trees,
		MTryGrid:     s.MTryGrid,
		MinLeafGrid:  s.MinLeafGrid,
		Seed:         s.SplitSeed,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: training: %w", err)
	}

	eval, err := train.Evaluate(model, heldout)
	if err != nil {
		return nil, fmt.Errorf("pipeline: evaluation: %w", err)
	}
	man.Evaluation = eval
	if p.metrics != nil {
		p.metrics.ModelAUCSet(eval.AUC)
	}
	log.Info().
		Float64("auc", eval.AUC).
		Float64("accuracy", eval.Accuracy).
		Int("heldout", eval.Confusion.Total()).
		Msg("Evaluated model on held-out partition")

	if err := os.MkdirAll(s.OutputPath, 0o755); err != nil {
		return nil, fmt.Errorf("pipeline: output directory: %w", err)
	}

	res := &Result{
		Manifest: man,
		Model:    model,
		Heldout:  heldout,
		Surfaces: map[string]*raster.Grid{},
		Changes:  map[string]*raster.Grid{},
	}

	for _, sc := range s.Scenarios {
		p.runScenario(sc, model, tmpl, res)
	}
	p.runChanges(res)

	man.FinishedAt = time.Now().UTC()
	return res, nil
}

// runScenario rasterizes one epoch's point table and predicts its
// suitability surface. Any failure here withholds this scenario's surface
// and is recorded; other scenarios still run.
func (p *Pipeline) runScenario(sc cfg.Scenario, model *train.Model, tmpl raster.Template, res *Result) {
	s := p.settings
	man := res.Manifest

	tbl, err := rasterize.LoadPointTable(sc.Path, s.VarColOffset)
	if err != nil {
		log.Error().Err(err).Str("scenario", sc.Label).Msg("Scenario point table rejected")
		man.Units = append(man.Units, UnitResult{
			Kind: KindScenario, Name: sc.Label, Status: StatusFailed, Reason: err.Error(),
		})
		return
	}

	units := rasterize.Rasterize(tbl, tmpl, rasterize.Config{
		MinPoints: s.MinPoints,
		Workers:   s.Workers,
		Metrics:   p.rasterizeMetrics(),
	})
	stack := predict.Stack{}
	for _, u := range units {
		name := sc.Label + "/" + u.Variable
		if u.Status == rasterize.StatusSkipped {
			man.Units = append(man.Units, UnitResult{
				Kind: KindVariable, Name: name, Status: StatusSkipped, Reason: u.Reason,
			})
			continue
		}
		man.Units = append(man.Units, UnitResult{Kind: KindVariable, Name: name, Status: StatusOK})
		stack[u.Variable] = u.Grid
	}

	surface, err := predict.Suitability(model, stack, tmpl, predict.Config{
		Workers: s.Workers,
		Metrics: p.predictMetrics(),
	})
	if err != nil {
		log.Error().Err(err).Str("scenario", sc.Label).Msg("Scenario prediction failed")
		man.Units = append(man.Units, UnitResult{
			Kind: KindScenario, Name: sc.Label, Status: StatusFailed, Reason: err.Error(),
		})
		return
	}
	surface.Name = "suitability_" + sc.Label

	out := filepath.Join(s.OutputPath, surface.Name+".asc")
	if err := raster.WriteGrid(surface, out); err != nil {
		man.Units = append(man.Units, UnitResult{
			Kind: KindScenario, Name: sc.Label, Status: StatusFailed, Reason: err.Error(),
		})
		return
	}

	res.Surfaces[sc.Label] = surface
	man.Units = append(man.Units, UnitResult{Kind: KindScenario, Name: sc.Label, Status: StatusOK})
	log.Info().Str("scenario", sc.Label).Str("path", out).Msg("Wrote suitability surface")
}

// runChanges diffs every non-baseline surface against the baseline epoch.
func (p *Pipeline) runChanges(res *Result) {
	s := p.settings
	man := res.Manifest

	baseline, ok := res.Surfaces[s.Baseline]
	if !ok {
		if len(res.Surfaces) > 0 {
			log.Warn().Str("baseline", s.Baseline).Msg("Baseline surface unavailable, change surfaces withheld")
		}
		return
	}
	for _, sc := range s.Scenarios {
		if sc.Label == s.Baseline {
			continue
		}
		future, ok := res.Surfaces[sc.Label]
		if !ok {
			continue
		}
		name := sc.Label + "-" + s.Baseline
		change, err := predict.Change(future, baseline)
		if err != nil {
			man.Units = append(man.Units, UnitResult{
				Kind: KindChange, Name: name, Status: StatusFailed, Reason: err.Error(),
			})
			continue
		}
		change.Name = "change_" + sc.Label + "_minus_" + s.Baseline

		out := filepath.Join(s.OutputPath, change.Name+".asc")
		if err := raster.WriteGrid(change, out); err != nil {
			man.Units = append(man.Units, UnitResult{
				Kind: KindChange, Name: name, Status: StatusFailed, Reason: err.Error(),
			})
			continue
		}
		res.Changes[name] = change
		man.Units = append(man.Units, UnitResult{Kind: KindChange, Name: name, Status: StatusOK})
		log.Info().Str("change", name).Str("path", out).Msg("Wrote change surface")
	}
}

func (p *Pipeline) rasterizeMetrics() rasterize.MetricsInterface {
	if p.metrics == nil {
		return nil
	}
	return p.metrics
}

func (p *Pipeline) predictMetrics() predict.MetricsInterface {
	if p.metrics == nil {
		return nil
	}
	return p.metrics
}
