package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"nichecast/internal/cfg"
	"nichecast/internal/metrics"
	"nichecast/internal/pipeline"
	"nichecast/internal/storage"
)

// scenarioFlags collects repeated -scenario label=path flags.
type scenarioFlags []cfg.Scenario

func (s *scenarioFlags) String() string {
	var parts []string
	for _, sc := range *s {
		parts = append(parts, sc.Label+"="+sc.Path)
	}
	return strings.Join(parts, ",")
}

func (s *scenarioFlags) Set(v string) error {
	label, path, ok := strings.Cut(v, "=")
	if !ok {
		return fmt.Errorf("scenario must be label=path, got %q", v)
	}
	*s = append(*s, cfg.Scenario{Label: label, Path: path})
	return nil
}

func main() {
	var scenarios scenarioFlags
	var (
		configFile  = flag.String("config", "", "Path to YAML config file (overrides CONFIG_FILE)")
		occurrences = flag.String("occurrences", "", "Path to occurrence CSV (overrides config)")
		template    = flag.String("template", "", "Path to reference elevation raster (overrides config)")
		baseline    = flag.String("baseline", "", "Baseline scenario label (overrides config)")
		outputPath  = flag.String("out", "", "Output directory for surfaces and manifest")
		metricsPort = flag.Int("metrics-port", 0, "Prometheus metrics port, 0 disables (overrides config)")
		logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Var(&scenarios, "scenario", "Scenario as label=path, repeatable")
	flag.Parse()

	// Setup logging
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var settings cfg.Settings
	if *configFile != "" {
		settings, err = cfg.LoadFile(*configFile)
	} else {
		settings, err = cfg.Load()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Override config with command line arguments
	if *occurrences != "" {
		settings.OccurrencesPath = *occurrences
	}
	if *template != "" {
		settings.TemplatePath = *template
	}
	if len(scenarios) > 0 {
		settings.Scenarios = scenarios
	}
	if *baseline != "" {
		settings.Baseline = *baseline
	}
	if *outputPath != "" {
		settings.OutputPath = *outputPath
	}
	if *metricsPort > 0 {
		settings.MetricsPort = *metricsPort
	}
	if settings.Baseline == "" && len(settings.Scenarios) > 0 {
		settings.Baseline = settings.Scenarios[0].Label
	}
	if settings.OccurrencesPath == "" || settings.TemplatePath == "" {
		log.Fatal().Msg("Occurrence table and template raster are required")
	}

	fmt.Println("=== Projection Run Configuration ===")
	fmt.Printf("Run Label: %s\n", settings.RunLabel)
	fmt.Printf("Occurrences: %s\n", settings.OccurrencesPath)
	fmt.Printf("Template: %s\n", settings.TemplatePath)
	fmt.Printf("Scenarios: %d (baseline %s)\n", len(settings.Scenarios), settings.Baseline)
	fmt.Printf("Output Directory: %s\n", settings.OutputPath)
	fmt.Println("====================================")

	m := metrics.New()
	if settings.MetricsPort > 0 {
		go func() {
			addr := fmt.Sprintf(":%d", settings.MetricsPort)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Info().Str("addr", addr).Msg("Serving metrics")
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	if err := os.MkdirAll(settings.DataPath, 0o755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create data directory")
	}
	store, err := storage.New(settings.DataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open artifact store")
	}
	defer store.Close()

	result, err := pipeline.New(settings, m).Run()
	if err != nil {
		log.Fatal().Err(err).Msg("Pipeline run failed")
	}

	if err := store.SaveModel(settings.RunLabel, result.Model); err != nil {
		log.Error().Err(err).Msg("Failed to persist model artifact")
	}
	if err := store.SaveManifest(result.Manifest); err != nil {
		log.Error().Err(err).Msg("Failed to persist run manifest")
	}
	manifestPath := filepath.Join(settings.OutputPath, "manifest.json")
	if err := result.Manifest.WriteFile(manifestPath); err != nil {
		log.Error().Err(err).Msg("Failed to write manifest file")
	}

	ok, skipped, failed := result.Manifest.Summary()
	fmt.Println("=== Run Summary ===")
	fmt.Printf("AUC: %.4f  Accuracy: %.4f\n", result.Manifest.Evaluation.AUC, result.Manifest.Evaluation.Accuracy)
	fmt.Printf("Covariates: %d selected\n", len(result.Manifest.Covariates))
	fmt.Printf("Units: %d ok, %d skipped, %d failed\n", ok, skipped, failed)
	fmt.Printf("Surfaces: %d, Changes: %d\n", len(result.Surfaces), len(result.Changes))
	fmt.Printf("Manifest: %s\n", manifestPath)
}
