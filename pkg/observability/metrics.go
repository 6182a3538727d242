// Package observability exposes prometheus metrics for the survey
// engine. The engine packages publish through small observer interfaces;
// Metrics implements all of them, so wiring is a matter of passing one
// value to each constructor option.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's counters. It satisfies the condition,
// navigation, and editor observer interfaces.
type Metrics struct {
	evaluations *prometheus.CounterVec
	patternHits prometheus.Counter
	transitions *prometheus.CounterVec
	undoOps     *prometheus.CounterVec
}

// NewMetrics registers the engine counters with the given registerer.
// Pass prometheus.DefaultRegisterer outside of tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		evaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formwalk_condition_evaluations_total",
				Help: "Total condition evaluations by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		patternHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "formwalk_condition_pattern_hits_total",
				Help: "Total condition evaluations satisfied by the pattern catalogue",
			},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formwalk_history_transitions_total",
				Help: "Total navigation history transitions by trigger",
			},
			[]string{"trigger"},
		),
		undoOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formwalk_undo_operations_total",
				Help: "Total builder undo-log operations by op",
			},
			[]string{"op"},
		),
	}
}

// ConditionEvaluated implements condition.Observer.
func (m *Metrics) ConditionEvaluated(stage string, result bool) {
	outcome := "false"
	if result {
		outcome = "true"
	}
	m.evaluations.WithLabelValues(stage, outcome).Inc()
	if stage == "pattern" {
		m.patternHits.Inc()
	}
}

// HistoryTransition implements navigation.HistoryObserver.
func (m *Metrics) HistoryTransition(trigger string) {
	m.transitions.WithLabelValues(trigger).Inc()
}

// UndoOperation implements editor.UndoObserver.
func (m *Metrics) UndoOperation(op string) {
	m.undoOps.WithLabelValues(op).Inc()
}
