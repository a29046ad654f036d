// Package observability provides Prometheus build metrics and OpenTelemetry
// tracing for fluxbuild.
package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Build outcome labels
const (
	StatusSuccess  = "success"
	StatusFailure  = "failure"
	StatusCanceled = "canceled"
)

// Metrics holds all Prometheus metrics for fluxbuild. They live in a
// private registry so they can be written to a node_exporter textfile.
type Metrics struct {
	registry *prometheus.Registry

	buildsTotal       *prometheus.CounterVec
	buildDuration     prometheus.Histogram
	buildWarnings     prometheus.Counter
	outputBytes       prometheus.Gauge
	lastBuildTime     prometheus.Gauge
	cleanedPathsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		buildsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fluxbuild_builds_total",
				Help: "Total number of bundler runs by outcome",
			},
			[]string{"status"},
		),
		buildDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fluxbuild_build_duration_seconds",
				Help:    "Bundler run latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		buildWarnings: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fluxbuild_build_warnings_total",
				Help: "Total number of warnings reported by the bundler",
			},
		),
		outputBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fluxbuild_output_bytes",
				Help: "Size of the last written output file in bytes",
			},
		),
		lastBuildTime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fluxbuild_last_build_timestamp_seconds",
				Help: "Unix time of the last bundler run",
			},
		),
		cleanedPathsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fluxbuild_cleaned_paths_total",
				Help: "Total number of paths removed by the clean plugin",
			},
			[]string{"phase"},
		),
	}
}

// RecordBuild records the outcome of one bundler run
func (m *Metrics) RecordBuild(status string, duration time.Duration, outputBytes int64, warnings int) {
	m.buildsTotal.WithLabelValues(status).Inc()
	m.buildDuration.Observe(duration.Seconds())
	m.buildWarnings.Add(float64(warnings))
	if status == StatusSuccess {
		m.outputBytes.Set(float64(outputBytes))
	}
	m.lastBuildTime.SetToCurrentTime()
}

// RecordClean records the paths removed during a clean phase
func (m *Metrics) RecordClean(phase string, removed int) {
	m.cleanedPathsTotal.WithLabelValues(phase).Add(float64(removed))
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes all metrics in the text exposition format, atomically
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
