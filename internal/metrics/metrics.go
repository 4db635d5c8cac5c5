// Package metrics provides Prometheus metrics for the projection pipeline:
// per-stage durations, dropped-record and skipped-variable counters, and the
// last model AUC. Components consume these through narrow interfaces so they
// never import prometheus directly.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for one pipeline process.
type Metrics struct {
	RecordsDropped   prometheus.Counter   // Occurrence rows excluded during normalization
	VariablesSkipped prometheus.Counter   // Climate variables skipped during rasterization
	Predictions      prometheus.Counter   // Suitability surfaces produced
	CellsPredicted   prometheus.Counter   // Grid cells scored by the model
	RasterizeSeconds prometheus.Histogram // Per-variable rasterization duration
	PredictSeconds   prometheus.Histogram // Per-scenario prediction duration
	ModelAUC         prometheus.Gauge     // Held-out AUC of the current model
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics on a custom registry, useful for isolated
// collection in tests.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		RecordsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "records_dropped_total",
			Help: "Occurrence records excluded during label normalization and loading",
		}),
		VariablesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "variables_skipped_total",
			Help: "Climate variables skipped during rasterization",
		}),
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Suitability surfaces produced",
		}),
		CellsPredicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "cells_predicted_total",
			Help: "Grid cells scored by the model",
		}),
		RasterizeSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rasterize_duration_seconds",
			Help:    "Per-variable rasterization duration",
			Buckets: prometheus.DefBuckets,
		}),
		PredictSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "predict_duration_seconds",
			Help:    "Per-scenario prediction duration",
			Buckets: prometheus.DefBuckets,
		}),
		ModelAUC: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_auc",
			Help: "Held-out AUC of the current model",
		}),
	}
}

func (m *Metrics) RecordsDroppedAdd(n int)           { m.RecordsDropped.Add(float64(n)) }
func (m *Metrics) VariablesSkippedInc()              { m.VariablesSkipped.Inc() }
func (m *Metrics) PredictionsInc()                   { m.Predictions.Inc() }
func (m *Metrics) CellsPredictedAdd(n int)           { m.CellsPredicted.Add(float64(n)) }
func (m *Metrics) RasterizeDuration(d time.Duration) { m.RasterizeSeconds.Observe(d.Seconds()) }
func (m *Metrics) PredictDuration(d time.Duration)   { m.PredictSeconds.Observe(d.Seconds()) }
func (m *Metrics) ModelAUCSet(v float64)             { m.ModelAUC.Set(v) }
