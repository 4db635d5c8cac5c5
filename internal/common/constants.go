package common

// Environment variable keys
const (
	EnvConfigFile    = "CONFIG_FILE"
	EnvRunLabel      = "RUN_LABEL"
	EnvDataPath      = "DATA_PATH"
	EnvOutputPath    = "OUTPUT_PATH"
	EnvOccurrences   = "OCCURRENCES_PATH"
	EnvTemplate      = "TEMPLATE_PATH"
	EnvLabelColumn   = "LABEL_COLUMN"
	EnvTopK          = "TOP_K"
	EnvTrees         = "TREES"
	EnvFolds         = "FOLDS"
	EnvTestFraction  = "TEST_FRACTION"
	EnvSelectorSeed  = "SELECTOR_SEED"
	EnvSplitSeed     = "SPLIT_SEED"
	EnvMinPoints     = "MIN_POINTS"
	EnvWorkers       = "WORKERS"
	EnvVarColOffset  = "VARIABLE_COLUMN_OFFSET"
	EnvCRS           = "CRS"
	EnvMetricsPort   = "METRICS_PORT"
	EnvBaselineLabel = "BASELINE_SCENARIO"
)

// Configuration defaults
const (
	DefaultRunLabel     = "default"
	DefaultDataPath     = "data"
	DefaultOutputPath   = "output"
	DefaultLabelColumn  = "presence"
	DefaultTopK         = 30
	DefaultTrees        = 200
	DefaultFolds        = 5
	DefaultTestFraction = 0.2
	DefaultSelectorSeed = 42
	DefaultSplitSeed    = 1337
	DefaultMinPoints    = 10
	DefaultVarColOffset = 2
	DefaultCRS          = "EPSG:4326"
	DefaultMetricsPort  = 0
)
