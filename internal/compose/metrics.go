package compose

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the composer's Prometheus collectors. Each Metrics owns its
// registry so tests and repeated runs never collide on registration.
type Metrics struct {
	Registry    *prometheus.Registry
	Runs        *prometheus.CounterVec
	Batches     prometheus.Counter
	Objects     prometheus.Counter
	Extractions prometheus.Counter
	Failures    *prometheus.CounterVec
	BatchTime   prometheus.Histogram
}

// NewMetrics creates and registers the composer collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "platebatch",
			Name:      "runs_total",
			Help:      "Composition runs by final status.",
		}, []string{"status"}),
		Batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "platebatch",
			Name:      "batches_total",
			Help:      "Output packages written.",
		}),
		Objects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "platebatch",
			Name:      "objects_total",
			Help:      "Template slots filled with specimen meshes.",
		}),
		Extractions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "platebatch",
			Name:      "specimen_extractions_total",
			Help:      "Specimen archives extracted.",
		}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "platebatch",
			Name:      "failures_total",
			Help:      "Failed runs by error kind.",
		}, []string{"kind"}),
		BatchTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "platebatch",
			Name:      "batch_duration_seconds",
			Help:      "Time to compose one output package, including post steps.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
	m.Registry.MustRegister(m.Runs, m.Batches, m.Objects, m.Extractions, m.Failures, m.BatchTime)
	return m
}

// WriteTextfile writes the current metric values in the text exposition
// format, for collection by a node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
