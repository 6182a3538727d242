package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formwalk/formwalk/pkg/editor"
	"github.com/formwalk/formwalk/pkg/survey/condition"
	"github.com/formwalk/formwalk/pkg/survey/navigation"
)

// Compile-time checks that Metrics satisfies the engine observer
// interfaces.
var (
	_ condition.Observer         = (*Metrics)(nil)
	_ navigation.HistoryObserver = (*Metrics)(nil)
	_ editor.UndoObserver        = (*Metrics)(nil)
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ConditionEvaluated("pattern", true)
	m.ConditionEvaluated("pattern", false)
	m.ConditionEvaluated("fallback", true)
	m.HistoryTransition("forward")
	m.HistoryTransition("forward")
	m.HistoryTransition("back")
	m.UndoOperation("push")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.evaluations.WithLabelValues("pattern", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evaluations.WithLabelValues("pattern", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evaluations.WithLabelValues("fallback", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.patternHits))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("forward")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("back")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.undoOps.WithLabelValues("push")))
}

func TestMetrics_WiredThroughEvaluator(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	eval := condition.New(condition.WithObserver(m))
	eval.EvaluateString("age >= 18", map[string]interface{}{"age": 20})
	eval.EvaluateString("age >= 18", map[string]interface{}{"age": 10})

	require.Equal(t, 2.0, testutil.ToFloat64(m.patternHits))
}
