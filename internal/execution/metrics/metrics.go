package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the execution module.
type Metrics struct {
	// Execution outcomes by action type and result
	Outcomes *prometheus.CounterVec

	// Platform call latency by action type
	PlatformLatency *prometheus.HistogramVec
}

// New creates a Metrics instance with all execution metrics registered.
func New() *Metrics {
	return &Metrics{
		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodian_execution_outcomes_total",
			Help: "Total execution outcomes by action type and result",
		}, []string{"action_type", "result"}),

		PlatformLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "custodian_execution_platform_duration_seconds",
			Help:    "Duration of platform capability calls by action type",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"action_type"}),
	}
}

// IncrementOutcome records one execution result ("executed" or "failed").
func (m *Metrics) IncrementOutcome(actionType, result string) {
	if m != nil {
		m.Outcomes.WithLabelValues(actionType, result).Inc()
	}
}

// ObservePlatformLatency records the duration of one platform call.
func (m *Metrics) ObservePlatformLatency(actionType string, d time.Duration) {
	if m != nil {
		m.PlatformLatency.WithLabelValues(actionType).Observe(d.Seconds())
	}
}
