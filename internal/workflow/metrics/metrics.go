package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the workflow module.
type Metrics struct {
	// Actions created by type
	ActionsCreated *prometheus.CounterVec

	// Consensus transitions by resulting status
	ConsensusTransitions *prometheus.CounterVec

	// Decision recording latency including consensus evaluation
	DecideLatency prometheus.Histogram
}

// New creates a Metrics instance with all workflow metrics registered.
func New() *Metrics {
	return &Metrics{
		ActionsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodian_workflow_actions_created_total",
			Help: "Total governance actions created by action type",
		}, []string{"action_type"}),

		ConsensusTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodian_workflow_consensus_transitions_total",
			Help: "Total consensus transitions by resulting action status",
		}, []string{"status"}),

		DecideLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "custodian_workflow_decide_duration_seconds",
			Help:    "Duration of decision recording including consensus evaluation",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// IncrementCreated records an action creation.
func (m *Metrics) IncrementCreated(actionType string) {
	if m != nil {
		m.ActionsCreated.WithLabelValues(actionType).Inc()
	}
}

// IncrementTransition records a consensus transition.
func (m *Metrics) IncrementTransition(status string) {
	if m != nil {
		m.ConsensusTransitions.WithLabelValues(status).Inc()
	}
}

// ObserveDecideLatency records the duration of one decide call.
func (m *Metrics) ObserveDecideLatency(d time.Duration) {
	if m != nil {
		m.DecideLatency.Observe(d.Seconds())
	}
}
