package cfg

import (
	"os"
	"path/filepath"
	"testing"

	"nichecast/internal/common"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleConfig = `
run:
  label: iberia-lynx
  dataPath: /tmp/lynx-data
  outputPath: /tmp/lynx-out
inputs:
  occurrences: occ.csv
  template: elev.asc
  labelColumn: presence
  crs: EPSG:4326
scenarios:
  - label: historical
    path: clim_hist.csv
  - label: far-future
    path: clim_2070.csv
baseline: historical
model:
  topK: 12
  trees: 300
  folds: 10
  testFraction: 0.25
  selectorSeed: 7
  splitSeed: 11
  mtryGrid: [2, 4]
  minLeafGrid: [1, 3]
rasterize:
  minPoints: 15
  workers: 4
  variableColumnOffset: 3
system:
  metricsPort: 9101
`

func TestLoadFromYAML(t *testing.T) {
	t.Setenv(common.EnvConfigFile, writeConfig(t, sampleConfig))

	s, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if s.RunLabel != "iberia-lynx" {
		t.Errorf("RunLabel = %q", s.RunLabel)
	}
	if len(s.Scenarios) != 2 || s.Scenarios[1].Label != "far-future" {
		t.Errorf("Scenarios = %+v", s.Scenarios)
	}
	if s.Baseline != "historical" {
		t.Errorf("Baseline = %q", s.Baseline)
	}
	if s.TopK != 12 || s.Trees != 300 || s.Folds != 10 {
		t.Errorf("model settings = %d/%d/%d", s.TopK, s.Trees, s.Folds)
	}
	if s.TestFraction != 0.25 {
		t.Errorf("TestFraction = %v", s.TestFraction)
	}
	if s.SelectorSeed != 7 || s.SplitSeed != 11 {
		t.Errorf("seeds = %d/%d", s.SelectorSeed, s.SplitSeed)
	}
	if len(s.MTryGrid) != 2 || s.MTryGrid[1] != 4 {
		t.Errorf("MTryGrid = %v", s.MTryGrid)
	}
	if s.MinPoints != 15 || s.Workers != 4 || s.VarColOffset != 3 {
		t.Errorf("rasterize settings = %d/%d/%d", s.MinPoints, s.Workers, s.VarColOffset)
	}
	if s.MetricsPort != 9101 {
		t.Errorf("MetricsPort = %d", s.MetricsPort)
	}
}

func TestLoadFileBypassesEnvLookup(t *testing.T) {
	t.Setenv(common.EnvConfigFile, "")

	s, err := LoadFile(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatal(err)
	}
	if s.RunLabel != "iberia-lynx" {
		t.Errorf("RunLabel = %q", s.RunLabel)
	}
	if len(s.Scenarios) != 2 {
		t.Errorf("Scenarios = %+v", s.Scenarios)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	t.Setenv(common.EnvConfigFile, writeConfig(t, sampleConfig))
	t.Setenv(common.EnvRunLabel, "override-run")
	t.Setenv(common.EnvTopK, "5")
	t.Setenv(common.EnvSelectorSeed, "21")

	s, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if s.RunLabel != "override-run" {
		t.Errorf("RunLabel = %q, want env override", s.RunLabel)
	}
	if s.TopK != 5 {
		t.Errorf("TopK = %d, want 5", s.TopK)
	}
	if s.SelectorSeed != 21 {
		t.Errorf("SelectorSeed = %d, want 21", s.SelectorSeed)
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv(common.EnvConfigFile, "")

	s, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if s.RunLabel != common.DefaultRunLabel {
		t.Errorf("RunLabel = %q", s.RunLabel)
	}
	if s.TopK != common.DefaultTopK {
		t.Errorf("TopK = %d", s.TopK)
	}
	if s.MinPoints != common.DefaultMinPoints {
		t.Errorf("MinPoints = %d", s.MinPoints)
	}
	if s.CRS != common.DefaultCRS {
		t.Errorf("CRS = %q", s.CRS)
	}
	if s.SelectorSeed == s.SplitSeed {
		t.Error("default seeds must differ")
	}
	if len(s.MTryGrid) == 0 || len(s.MinLeafGrid) == 0 {
		t.Error("hyperparameter grids must have defaults")
	}
}

func TestValidateRejectsDuplicateScenario(t *testing.T) {
	t.Setenv(common.EnvConfigFile, writeConfig(t, `
inputs:
  occurrences: occ.csv
  template: elev.asc
scenarios:
  - label: historical
    path: a.csv
  - label: historical
    path: b.csv
`))
	if _, err := Load(); err == nil {
		t.Error("expected error for duplicate scenario labels")
	}
}

func TestValidateRejectsUnknownBaseline(t *testing.T) {
	t.Setenv(common.EnvConfigFile, writeConfig(t, `
scenarios:
  - label: historical
    path: a.csv
baseline: future
`))
	if _, err := Load(); err == nil {
		t.Error("expected error for baseline not among scenarios")
	}
}

func TestValidateRejectsEqualSeeds(t *testing.T) {
	t.Setenv(common.EnvConfigFile, writeConfig(t, `
model:
  selectorSeed: 9
  splitSeed: 9
`))
	if _, err := Load(); err == nil {
		t.Error("expected error for equal selector and split seeds")
	}
}
