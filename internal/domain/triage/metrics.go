package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts transition log writes. A nil *Metrics records nothing.
type Metrics struct {
	transitions      *prometheus.CounterVec
	advisorSkipped   prometheus.Counter
	criticalReadings prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ercc",
			Subsystem: "triage",
			Name:      "transitions_total",
			Help:      "Transition log entries by source and whether they were applied.",
		}, []string{"source", "applied"}),
		advisorSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ercc",
			Subsystem: "triage",
			Name:      "advisor_skipped_total",
			Help:      "Vitals entries stored without a recommendation because the advisor was unavailable.",
		}),
		criticalReadings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ercc",
			Subsystem: "triage",
			Name:      "critical_vitals_total",
			Help:      "Vitals entries classified as critical.",
		}),
	}
	reg.MustRegister(m.transitions, m.advisorSkipped, m.criticalReadings)
	return m
}

func (m *Metrics) transition(t *TriageTransition) {
	if m == nil || t == nil {
		return
	}
	applied := "false"
	if t.IsApplied {
		applied = "true"
	}
	m.transitions.WithLabelValues(string(t.Source), applied).Inc()
}

func (m *Metrics) skipped() {
	if m != nil {
		m.advisorSkipped.Inc()
	}
}

func (m *Metrics) critical() {
	if m != nil {
		m.criticalReadings.Inc()
	}
}
