// Package metrics counts and times pipeline steps with Prometheus.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Step outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeRecovered = "recovered"
)

// Collector holds the step and run metrics in its own registry.
type Collector struct {
	registry *prometheus.Registry

	StepExecutions *prometheus.CounterVec
	StepDuration   *prometheus.HistogramVec
	PipelineRuns   *prometheus.CounterVec
}

// New creates a collector with a fresh registry.
func New() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		StepExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipecall_step_executions_total",
				Help: "Total number of step executions by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		StepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipecall_step_duration_seconds",
				Help:    "Duration of step executions",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"kind"},
		),
		PipelineRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipecall_pipeline_runs_total",
				Help: "Total number of pipeline runs by final status",
			},
			[]string{"status"},
		),
	}
}

// ObserveStep records one step attempt.
func (c *Collector) ObserveStep(kind, outcome string, elapsed time.Duration) {
	c.StepExecutions.WithLabelValues(kind, outcome).Inc()
	c.StepDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveRun records the final status of one pipeline run.
func (c *Collector) ObserveRun(status string) {
	c.PipelineRuns.WithLabelValues(status).Inc()
}

// Registry returns the registry the metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteFile writes the metrics in text exposition format, for node_exporter's
// textfile collector or inspection after a CLI run.
func (c *Collector) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("writing metrics file: %w", err)
	}
	return nil
}
