package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Settlement outcomes used as the "outcome" label.
const (
	OutcomeFinished   = "finished"
	OutcomeDegraded   = "degraded"
	OutcomeFailed     = "failed"
	OutcomeRejected   = "rejected"
	OutcomeCancelled  = "cancelled"
	OutcomeInProgress = "in_progress"
)

// SettlementMetrics tracks settlement engine outcomes.
type SettlementMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	stalled  prometheus.Gauge
}

// NewSettlementMetrics registers the settlement metrics on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "runs_total",
		Help:      "Settlement run attempts by distribution method and outcome.",
	}, []string{"method", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "run_duration_seconds",
		Help:      "Wall time from PROCESSING to FINISHED.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	}, []string{"method"})
	stalled := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "stalled_runs",
		Help:      "Runs left in PROCESSING past the stall threshold at the last check.",
	})
	reg.MustRegister(runs, duration, stalled)
	return &SettlementMetrics{runs: runs, duration: duration, stalled: stalled}
}

// IncRun counts one engine invocation.
func (m *SettlementMetrics) IncRun(method, outcome string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(method), normalizeLabel(outcome)).Inc()
}

func (m *SettlementMetrics) ObserveDuration(method string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(method)).Observe(d.Seconds())
}

// SetStalled records the size of the stalled backlog.
func (m *SettlementMetrics) SetStalled(n int) {
	if m == nil || m.stalled == nil {
		return
	}
	m.stalled.Set(float64(n))
}
