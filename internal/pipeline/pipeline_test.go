package pipeline

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nichecast/internal/cfg"
	"nichecast/internal/raster"
)

func writeTemplate(t *testing.T, dir string) string {
	t.Helper()
	tmpl := raster.Template{MinX: 0, MinY: 0, CellX: 1, CellY: 1, Cols: 6, Rows: 6, CRS: "EPSG:4326"}
	g := raster.NewGrid("elev", tmpl)
	for i := range g.Cells {
		g.Cells[i] = float64(100 + i)
	}
	path := filepath.Join(dir, "elevation.asc")
	if err := raster.WriteGrid(g, path); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeOccurrences(t *testing.T, dir string) string {
	t.Helper()
	rng := rand.New(rand.NewSource(99))
	var b strings.Builder
	b.WriteString("id,presence,longitude,latitude,bio1,bio2,bio3,bio4,bio5\n")
	row := func(id int, label string, signal float64) {
		fmt.Fprintf(&b, "%d,%s,%.3f,%.3f,%.3f,%.3f,%.3f,%.3f,%.3f\n",
			id, label,
			rng.Float64()*6, rng.Float64()*6,
			signal+rng.NormFloat64(), signal+rng.NormFloat64(),
			rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64())
	}
	id := 0
	for i := 0; i < 60; i++ {
		id++
		row(id, "presence", 4)
	}
	for i := 0; i < 40; i++ {
		id++
		row(id, "absence", 0)
	}
	// Two rows with unrecognized labels must be dropped, not kept as null.
	row(101, "unknown", 2)
	row(102, "NA", 2)

	path := filepath.Join(dir, "occurrences.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeScenario(t *testing.T, dir, name string, variables []string, offset float64) string {
	t.Helper()
	tmpl := raster.Template{MinX: 0, MinY: 0, CellX: 1, CellY: 1, Cols: 6, Rows: 6}
	var b strings.Builder
	b.WriteString("Longitude,Latitude," + strings.Join(variables, ",") + "\n")
	for r := 0; r < tmpl.Rows; r++ {
		for c := 0; c < tmpl.Cols; c++ {
			lon, lat := tmpl.CellCenter(c, r)
			fmt.Fprintf(&b, "%.3f,%.3f", lon, lat)
			for vi := range variables {
				fmt.Fprintf(&b, ",%.3f", offset+float64(vi)+float64(r*tmpl.Cols+c)*0.1)
			}
			b.WriteString("\n")
		}
	}
	path := filepath.Join(dir, name+".csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testSettings(t *testing.T) cfg.Settings {
	t.Helper()
	dir := t.TempDir()
	allVars := []string{"bio1", "bio2", "bio3", "bio4", "bio5"}
	return cfg.Settings{
		RunLabel:        "test-run",
		OccurrencesPath: writeOccurrences(t, dir),
		TemplatePath:    writeTemplate(t, dir),
		Scenarios: []cfg.Scenario{
			{Label: "historical", Path: writeScenario(t, dir, "historical", allVars, 0)},
			{Label: "far-future", Path: writeScenario(t, dir, "far-future", allVars, 3)},
		},
		Baseline:     "historical",
		LabelColumn:  "presence",
		OutputPath:   filepath.Join(dir, "out"),
		TopK:         3,
		Trees:        20,
		Folds:        5,
		TestFraction: 0.2,
		SelectorSeed: 42,
		SplitSeed:    1337,
		MTryGrid:     []int{0},
		MinLeafGrid:  []int{1},
		MinPoints:    10,
		VarColOffset: 2,
		CRS:          "EPSG:4326",
	}
}

func TestPipelineRun(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	res, err := New(settings, nil).Run()
	if err != nil {
		t.Fatal(err)
	}

	man := res.Manifest
	if man.Dropped.BadLabel != 2 {
		t.Errorf("dropped bad labels = %d, want 2", man.Dropped.BadLabel)
	}
	if len(man.Covariates) != 3 {
		t.Errorf("selected %d covariates, want 3", len(man.Covariates))
	}
	if man.Evaluation.AUC < 0 || man.Evaluation.AUC > 1 {
		t.Errorf("AUC = %v", man.Evaluation.AUC)
	}
	if got := man.Evaluation.Confusion.Total(); got != 20 {
		t.Errorf("held-out confusion total = %d, want 20", got)
	}

	if len(res.Surfaces) != 2 {
		t.Fatalf("produced %d surfaces, want 2", len(res.Surfaces))
	}
	for label, surface := range res.Surfaces {
		for i, v := range surface.Cells {
			if raster.IsNoData(v) {
				continue
			}
			if v < 0 || v > 1 {
				t.Fatalf("scenario %s cell %d = %v out of [0,1]", label, i, v)
			}
		}
		path := filepath.Join(settings.OutputPath, "suitability_"+label+".asc")
		if _, err := os.Stat(path); err != nil {
			t.Errorf("surface file missing: %v", err)
		}
	}

	if len(res.Changes) != 1 {
		t.Fatalf("produced %d change surfaces, want 1", len(res.Changes))
	}
	change := res.Changes["far-future-historical"]
	if change == nil {
		t.Fatal("change surface not keyed by scenario pair")
	}
	future := res.Surfaces["far-future"]
	hist := res.Surfaces["historical"]
	for i := range change.Cells {
		fv, hv := future.Cells[i], hist.Cells[i]
		cv := change.Cells[i]
		if raster.IsNoData(fv) || raster.IsNoData(hv) {
			if !raster.IsNoData(cv) {
				t.Fatalf("cell %d should be no-data in change surface", i)
			}
			continue
		}
		if cv != fv-hv {
			t.Fatalf("cell %d change = %v, want %v", i, cv, fv-hv)
		}
	}

	ok, skipped, failed := man.Summary()
	if failed != 0 {
		t.Errorf("unexpected failed units: %d", failed)
	}
	if skipped != 0 {
		t.Errorf("unexpected skipped units: %d", skipped)
	}
	// 5 variables per scenario + 2 scenarios + 1 change surface.
	if ok != 13 {
		t.Errorf("ok units = %d, want 13", ok)
	}
}

func TestPipelineScenarioFailureIsContained(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	settings.Scenarios = append(settings.Scenarios, cfg.Scenario{
		Label: "broken", Path: filepath.Join(t.TempDir(), "missing.csv"),
	})
	res, err := New(settings, nil).Run()
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Surfaces) != 2 {
		t.Errorf("sibling scenarios affected: %d surfaces", len(res.Surfaces))
	}
	_, _, failed := res.Manifest.Summary()
	if failed != 1 {
		t.Errorf("failed units = %d, want 1", failed)
	}
}

func TestPipelineMissingCovariateWithholdsSurface(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	dir := t.TempDir()
	// Only two variables: at least one selected covariate must be absent.
	settings.Scenarios = []cfg.Scenario{
		{Label: "historical", Path: settings.Scenarios[0].Path},
		{Label: "sparse", Path: writeScenario(t, dir, "sparse", []string{"bio1", "bio2"}, 0)},
	}
	res, err := New(settings, nil).Run()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := res.Surfaces["sparse"]; ok {
		t.Error("surface produced despite missing covariates")
	}
	if _, ok := res.Surfaces["historical"]; !ok {
		t.Error("healthy sibling scenario withheld")
	}
	foundFailure := false
	for _, u := range res.Manifest.Units {
		if u.Kind == KindScenario && u.Name == "sparse" && u.Status == StatusFailed {
			foundFailure = true
			if !strings.Contains(u.Reason, "bio") {
				t.Errorf("failure reason does not name covariates: %s", u.Reason)
			}
		}
	}
	if !foundFailure {
		t.Error("missing-covariate failure not recorded in manifest")
	}
}

func TestPipelineFatalOnMissingOccurrences(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	settings.OccurrencesPath = filepath.Join(t.TempDir(), "nope.csv")
	if _, err := New(settings, nil).Run(); err == nil {
		t.Error("expected fatal error for missing occurrence table")
	}
}

func TestManifestWriteFile(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	res, err := New(settings, nil).Run()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(settings.OutputPath, "manifest.json")
	if err := res.Manifest.WriteFile(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"runLabel": "test-run"`) {
		t.Error("manifest JSON missing run label")
	}
}
