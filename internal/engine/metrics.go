package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records reconciliation outcomes for one process.
//
// Usage:
//
//	m := engine.NewMetrics()
//	run := engine.NewRun(factory, engine.WithMetrics(m))
//	...
//	prometheus.WriteToTextfile(path, m.Registry)
type Metrics struct {
	Registry *prometheus.Registry

	// StageCounter counts finished stages.
	// Labels: kind, outcome (created|updated|unchanged|skipped|failed)
	StageCounter *prometheus.CounterVec

	// StageDuration measures stage wall time in seconds.
	// Labels: kind
	StageDuration *prometheus.HistogramVec

	// ErrorCounter counts failed stages by error class.
	// Labels: kind, class
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		StageCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shipyard",
			Name:      "stages_total",
			Help:      "Reconciliation stages by kind and outcome.",
		}, []string{"kind", "outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shipyard",
			Name:      "stage_duration_seconds",
			Help:      "Reconciliation stage duration.",
			Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		}, []string{"kind"}),
		ErrorCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shipyard",
			Name:      "stage_errors_total",
			Help:      "Failed reconciliation stages by error class.",
		}, []string{"kind", "class"}),
	}
}

// ObserveStage records a finished stage. A nil receiver is a no-op.
func (m *Metrics) ObserveStage(kind string, outcome Outcome, d time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.StageCounter.WithLabelValues(kind, "failed").Inc()
		m.ErrorCounter.WithLabelValues(kind, string(ClassOf(err))).Inc()
	} else {
		m.StageCounter.WithLabelValues(kind, string(outcome)).Inc()
	}
	m.StageDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// WriteTextfile writes the metrics in the node exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
