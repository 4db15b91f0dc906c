package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "audimg"

// Metrics holds the collectors of one process on a private registry.
// A nil *Metrics discards every observation.
type Metrics struct {
	registry     *prometheus.Registry
	cells        *prometheus.CounterVec
	cellDuration *prometheus.HistogramVec
	partials     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cells: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cells_total",
			Help:      "Analysis cells by task and outcome",
		}, []string{"task", "outcome"}),
		cellDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cell_duration_seconds",
			Help:      "Wall time of one analysis cell including null repetitions",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"task"}),
		partials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partials_total",
			Help:      "Partial result store operations by operation and outcome",
		}, []string{"operation", "outcome"}),
	}
	m.registry.MustRegister(m.cells, m.cellDuration, m.partials)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveCell(task, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.cells.WithLabelValues(task, outcome).Inc()
	m.cellDuration.WithLabelValues(task).Observe(elapsed.Seconds())
}

func (m *Metrics) ObservePartial(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.partials.WithLabelValues(operation, outcome).Inc()
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
