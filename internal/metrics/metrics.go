// Package metrics provides the Prometheus instrumentation shared by the run
// pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusTimedOut  = "timed_out"
)

// Persistence backends.
const (
	BackendRelational = "relational"
	BackendBackup     = "backup"
)

// AI request outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeRetry   = "retry"
	OutcomeFailure = "failure"
)

// Metrics holds the collectors used across the pipeline.
type Metrics struct {
	RunsTotal           *prometheus.CounterVec
	RunDuration         prometheus.Histogram
	RunsInFlight        prometheus.Gauge
	AnomalyReports      *prometheus.CounterVec
	PersistenceFailures *prometheus.CounterVec
	AIRequests          *prometheus.CounterVec
	ScriptQuality       prometheus.Histogram
}

// New registers the collectors with reg. Each registry can hold one set.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loadgenie_runs_total",
			Help: "Total number of test runs by terminal status",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "loadgenie_run_duration_seconds",
			Help:    "Wall-clock duration of test runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		RunsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "loadgenie_runs_in_flight",
			Help: "Number of test runs currently executing",
		}),
		AnomalyReports: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loadgenie_anomaly_reports_total",
			Help: "Anomaly reports produced, by severity and source",
		}, []string{"severity", "source"}),
		PersistenceFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loadgenie_persistence_failures_total",
			Help: "Failed record writes by backend",
		}, []string{"backend"}),
		AIRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loadgenie_ai_requests_total",
			Help: "AI completion attempts by outcome",
		}, []string{"outcome"}),
		ScriptQuality: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "loadgenie_script_quality_score",
			Help:    "Capped quality score of validated scripts",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
	}
}

// RunStarted marks a run as in flight.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.RunsInFlight.Inc()
}

// RunFinished records the terminal status of a run started with RunStarted.
func (m *Metrics) RunFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsInFlight.Dec()
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(d.Seconds())
}

func (m *Metrics) AnomalyReport(severity, source string) {
	if m == nil {
		return
	}
	m.AnomalyReports.WithLabelValues(severity, source).Inc()
}

func (m *Metrics) PersistenceFailure(backend string) {
	if m == nil {
		return
	}
	m.PersistenceFailures.WithLabelValues(backend).Inc()
}

func (m *Metrics) AIRequest(outcome string) {
	if m == nil {
		return
	}
	m.AIRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ScriptScore(score int) {
	if m == nil {
		return
	}
	m.ScriptQuality.Observe(float64(score))
}
