package api

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus collectors served on /metrics.
type Metrics struct {
	// Decisions by final layer-5 action and whether enforcement was bypassed
	Decisions *prometheus.CounterVec

	// Requests rejected before processing
	Rejected *prometheus.CounterVec

	ProcessLatency prometheus.Histogram
}

// NewMetrics registers the API collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fusionintel_decisions_total",
			Help: "Pipeline decisions by delivery action and enforcement error",
		}, []string{"action", "enforcement_error"}),

		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fusionintel_rejected_requests_total",
			Help: "Requests rejected before reaching the pipeline, by reason",
		}, []string{"reason"}), // reason: "rate_limited", "malformed", "internal"

		ProcessLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fusionintel_process_duration_seconds",
			Help:    "Duration of /v1/process requests including audit writes",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementDecision records one pipeline outcome.
func (m *Metrics) IncrementDecision(action string, enforcementError bool) {
	if m != nil {
		m.Decisions.WithLabelValues(action, strconv.FormatBool(enforcementError)).Inc()
	}
}

// IncrementRejected records a request that never reached the pipeline.
func (m *Metrics) IncrementRejected(reason string) {
	if m != nil {
		m.Rejected.WithLabelValues(reason).Inc()
	}
}

// ObserveProcessLatency records one /v1/process duration.
func (m *Metrics) ObserveProcessLatency(d time.Duration) {
	if m != nil {
		m.ProcessLatency.Observe(d.Seconds())
	}
}
