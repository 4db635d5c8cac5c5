// Package cfg loads pipeline configuration from a YAML file with environment
// variable overrides, falling back to environment variables alone when no
// file is configured.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"nichecast/internal/common"
)

// Scenario names one climate epoch and its point table.
type Scenario struct {
	Label string `yaml:"label"`
	Path  string `yaml:"path"`
}

// Settings is the resolved runtime configuration.
type Settings struct {
	RunLabel        string
	OccurrencesPath string
	TemplatePath    string
	Scenarios       []Scenario
	Baseline        string
	LabelColumn     string
	DataPath        string
	OutputPath      string
	TopK            int
	Trees           int
	Folds           int
	TestFraction    float64
	SelectorSeed    int64
	SplitSeed       int64
	MTryGrid        []int
	MinLeafGrid     []int
	MinPoints       int
	Workers         int
	VarColOffset    int
	CRS             string
	MetricsPort     int
}

// ConfigFile mirrors the YAML layout.
type ConfigFile struct {
	Run struct {
		Label    string `yaml:"label"`
		DataPath string `yaml:"dataPath"`
		Output   string `yaml:"outputPath"`
	} `yaml:"run"`

	Inputs struct {
		Occurrences string `yaml:"occurrences"`
		Template    string `yaml:"template"`
		LabelColumn string `yaml:"labelColumn"`
		CRS         string `yaml:"crs"`
	} `yaml:"inputs"`

	Scenarios []Scenario `yaml:"scenarios"`
	Baseline  string     `yaml:"baseline"`

	Model struct {
		TopK         int     `yaml:"topK"`
		Trees        int     `yaml:"trees"`
		Folds        int     `yaml:"folds"`
		TestFraction float64 `yaml:"testFraction"`
		SelectorSeed int64   `yaml:"selectorSeed"`
		SplitSeed    int64   `yaml:"splitSeed"`
		MTryGrid     []int   `yaml:"mtryGrid"`
		MinLeafGrid  []int   `yaml:"minLeafGrid"`
	} `yaml:"model"`

	Rasterize struct {
		MinPoints    int `yaml:"minPoints"`
		Workers      int `yaml:"workers"`
		VarColOffset int `yaml:"variableColumnOffset"`
	} `yaml:"rasterize"`

	System struct {
		MetricsPort int `yaml:"metricsPort"`
	} `yaml:"system"`
}

// Load resolves settings. A .env file is honored when present; a YAML file
// named by CONFIG_FILE is preferred, with environment variables overriding
// individual values either way.
func Load() (Settings, error) {
	_ = godotenv.Load()

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

// LoadFile resolves settings from a specific YAML file, bypassing the
// CONFIG_FILE lookup. Environment variables still override individual values.
func LoadFile(path string) (Settings, error) {
	_ = godotenv.Load()
	return loadFromYAML(path)
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	s := Settings{
		RunLabel:        getEnvOrDefault(common.EnvRunLabel, config.Run.Label),
		OccurrencesPath: getEnvOrDefault(common.EnvOccurrences, config.Inputs.Occurrences),
		TemplatePath:    getEnvOrDefault(common.EnvTemplate, config.Inputs.Template),
		Scenarios:       config.Scenarios,
		Baseline:        getEnvOrDefault(common.EnvBaselineLabel, config.Baseline),
		LabelColumn:     getEnvOrDefault(common.EnvLabelColumn, config.Inputs.LabelColumn),
		DataPath:        getEnvOrDefault(common.EnvDataPath, config.Run.DataPath),
		OutputPath:      getEnvOrDefault(common.EnvOutputPath, config.Run.Output),
		TopK:            getEnvInt(common.EnvTopK, config.Model.TopK),
		Trees:           getEnvInt(common.EnvTrees, config.Model.Trees),
		Folds:           getEnvInt(common.EnvFolds, config.Model.Folds),
		TestFraction:    getEnvFloat(common.EnvTestFraction, config.Model.TestFraction),
		SelectorSeed:    getEnvInt64(common.EnvSelectorSeed, config.Model.SelectorSeed),
		SplitSeed:       getEnvInt64(common.EnvSplitSeed, config.Model.SplitSeed),
		MTryGrid:        config.Model.MTryGrid,
		MinLeafGrid:     config.Model.MinLeafGrid,
		MinPoints:       getEnvInt(common.EnvMinPoints, config.Rasterize.MinPoints),
		Workers:         getEnvInt(common.EnvWorkers, config.Rasterize.Workers),
		VarColOffset:    getEnvInt(common.EnvVarColOffset, config.Rasterize.VarColOffset),
		CRS:             getEnvOrDefault(common.EnvCRS, config.Inputs.CRS),
		MetricsPort:     getEnvInt(common.EnvMetricsPort, config.System.MetricsPort),
	}
	applyDefaults(&s)
	return s, s.validate()
}

func loadFromEnv() (Settings, error) {
	s := Settings{
		RunLabel:        os.Getenv(common.EnvRunLabel),
		OccurrencesPath: os.Getenv(common.EnvOccurrences),
		TemplatePath:    os.Getenv(common.EnvTemplate),
		Baseline:        os.Getenv(common.EnvBaselineLabel),
		LabelColumn:     os.Getenv(common.EnvLabelColumn),
		DataPath:        os.Getenv(common.EnvDataPath),
		OutputPath:      os.Getenv(common.EnvOutputPath),
		TopK:            getEnvInt(common.EnvTopK, 0),
		Trees:           getEnvInt(common.EnvTrees, 0),
		Folds:           getEnvInt(common.EnvFolds, 0),
		TestFraction:    getEnvFloat(common.EnvTestFraction, 0),
		SelectorSeed:    getEnvInt64(common.EnvSelectorSeed, 0),
		SplitSeed:       getEnvInt64(common.EnvSplitSeed, 0),
		MinPoints:       getEnvInt(common.EnvMinPoints, 0),
		Workers:         getEnvInt(common.EnvWorkers, 0),
		VarColOffset:    getEnvInt(common.EnvVarColOffset, 0),
		CRS:             os.Getenv(common.EnvCRS),
		MetricsPort:     getEnvInt(common.EnvMetricsPort, 0),
	}
	applyDefaults(&s)
	return s, s.validate()
}

func applyDefaults(s *Settings) {
	if s.RunLabel == "" {
		s.RunLabel = common.DefaultRunLabel
	}
	if s.LabelColumn == "" {
		s.LabelColumn = common.DefaultLabelColumn
	}
	if s.DataPath == "" {
		s.DataPath = common.DefaultDataPath
	}
	if s.OutputPath == "" {
		s.OutputPath = common.DefaultOutputPath
	}
	if s.TopK <= 0 {
		s.TopK = common.DefaultTopK
	}
	if s.Trees <= 0 {
		s.Trees = common.DefaultTrees
	}
	if s.Folds <= 0 {
		s.Folds = common.DefaultFolds
	}
	if s.TestFraction <= 0 || s.TestFraction >= 1 {
		s.TestFraction = common.DefaultTestFraction
	}
	if s.SelectorSeed == 0 {
		s.SelectorSeed = common.DefaultSelectorSeed
	}
	if s.SplitSeed == 0 {
		s.SplitSeed = common.DefaultSplitSeed
	}
	if s.MinPoints <= 0 {
		s.MinPoints = common.DefaultMinPoints
	}
	if s.VarColOffset <= 0 {
		s.VarColOffset = common.DefaultVarColOffset
	}
	if s.CRS == "" {
		s.CRS = common.DefaultCRS
	}
	if len(s.MTryGrid) == 0 {
		s.MTryGrid = []int{0}
	}
	if len(s.MinLeafGrid) == 0 {
		s.MinLeafGrid = []int{1, 5}
	}
	if s.Baseline == "" && len(s.Scenarios) > 0 {
		s.Baseline = s.Scenarios[0].Label
	}
}

func (s Settings) validate() error {
	seen := map[string]bool{}
	for _, sc := range s.Scenarios {
		if sc.Label == "" || sc.Path == "" {
			return fmt.Errorf("scenario entries require both label and path")
		}
		if seen[sc.Label] {
			return fmt.Errorf("duplicate scenario label %q", sc.Label)
		}
		seen[sc.Label] = true
	}
	if s.Baseline != "" && len(s.Scenarios) > 0 && !seen[s.Baseline] {
		return fmt.Errorf("baseline scenario %q not among configured scenarios", s.Baseline)
	}
	if s.SelectorSeed == s.SplitSeed {
		return fmt.Errorf("selector and split seeds must differ for independent reproducibility")
	}
	return nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}
