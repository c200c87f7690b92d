package runtime

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/intake/intake"
)

// Metrics holds the orchestrator's Prometheus collectors. A nil *Metrics is
// valid and every method becomes a no-op, so metrics remain optional for
// embedders that don't register a registry.
type Metrics struct {
	submissionsCreated   *prometheus.CounterVec
	transitions           *prometheus.CounterVec
	transitionFailures    *prometheus.CounterVec
	validationRuns        *prometheus.CounterVec
}

// NewMetrics constructs and registers the orchestrator's collectors against
// reg. Pass prometheus.DefaultRegisterer for the global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submissionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "submissions_created_total",
			Help:      "Submissions created, labeled by intake_id.",
		}, []string{"intake_id"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "submission_transitions_total",
			Help:      "Legal state transitions, labeled by intake_id and target state.",
		}, []string{"intake_id", "target_state"}),
		transitionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "submission_transition_failures_total",
			Help:      "Illegal transition attempts, labeled by intake_id.",
		}, []string{"intake_id"}),
		validationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "validation_runs_total",
			Help:      "Validation engine runs, labeled by intake_id and result (pass|fail).",
		}, []string{"intake_id", "result"}),
	}

	reg.MustRegister(m.submissionsCreated, m.transitions, m.transitionFailures, m.validationRuns)
	return m
}

func (m *Metrics) created(intakeID string) {
	if m == nil {
		return
	}
	m.submissionsCreated.WithLabelValues(intakeID).Inc()
}

func (m *Metrics) transitioned(intakeID string, target intake.SubmissionState) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(intakeID, string(target)).Inc()
}

func (m *Metrics) transitionFailed(intakeID string) {
	if m == nil {
		return
	}
	m.transitionFailures.WithLabelValues(intakeID).Inc()
}

func (m *Metrics) validated(intakeID string, valid bool) {
	if m == nil {
		return
	}
	result := "pass"
	if !valid {
		result = "fail"
	}
	m.validationRuns.WithLabelValues(intakeID, result).Inc()
}
