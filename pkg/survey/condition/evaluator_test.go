package condition

import (
	"fmt"
	"testing"

	"github.com/formwalk/formwalk/pkg/survey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_EmptyConditionIsTrue(t *testing.T) {
	e := New()
	assert.True(t, e.Evaluate(nil, nil))
	assert.True(t, e.Evaluate(&survey.Condition{}, nil))
	assert.True(t, e.EvaluateString("", map[string]interface{}{}))
	assert.True(t, e.EvaluateString("   ", nil))
}

func TestEvaluate_Scenarios(t *testing.T) {
	e := New()

	assert.True(t, e.EvaluateString("age >= 18", map[string]interface{}{"age": 20}))
	assert.False(t, e.EvaluateString("age >= 18", map[string]interface{}{"age": 16}))
}

func TestEvaluate_BooleanLiterals(t *testing.T) {
	e := New()
	assert.True(t, e.EvaluateString("true", nil))
	assert.False(t, e.EvaluateString("false", nil))
}

func TestEvaluate_NeverErrors(t *testing.T) {
	e := New()
	ctx := map[string]interface{}{"age": 20}

	garbage := []string{
		"age >=",
		"((((",
		"age ==== 5",
		"nonexistent.deeply.nested > 4",
		"1 + 2", // non-boolean result
		`"unterminated`,
	}
	for _, expr := range garbage {
		assert.NotPanics(t, func() {
			assert.False(t, e.EvaluateString(expr, ctx), expr)
		})
	}
}

func TestEvaluate_Purity(t *testing.T) {
	e := New()
	ctx := map[string]interface{}{"country": "US", "age": 21}
	cond := survey.Expr(`country == 'US' && age >= 21`)

	first := e.Evaluate(cond, ctx)
	second := e.Evaluate(cond, ctx)
	assert.Equal(t, first, second)
	assert.True(t, first)
}

func TestEvaluate_FallbackExpressions(t *testing.T) {
	e := New()
	ctx := map[string]interface{}{
		"age":       25,
		"country":   "CA",
		"interests": []interface{}{"music", "sports"},
		"email":     "someone@example.edu",
		"address": map[string]interface{}{
			"city": "Toronto",
		},
	}

	tests := []struct {
		expr string
		want bool
	}{
		{`age >= 18 && country == 'CA'`, true},
		{`age < 18 || country == 'US'`, false},
		{`!(country == 'US')`, true},
		{`'music' in interests`, true},
		{`has(interests, 'sports')`, true},
		{`includes(interests, 'cooking')`, false},
		{`length(interests) == 2`, true},
		{`address.city == 'Toronto'`, true},
		{`endsWith(email, '.edu')`, true},
		{`matches(email, '^[^@]+@[^@]+$')`, true},
		// Unresolved references are nil, which compares false.
		{`missing == 'x'`, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.EvaluateString(tt.expr, ctx), tt.expr)
	}
}

func TestEvaluate_JSNormalization(t *testing.T) {
	e := New()
	ctx := map[string]interface{}{
		"country":   "US",
		"interests": []interface{}{"music"},
		"email":     "a@b.co",
		"name":      "Ada",
	}

	tests := []struct {
		expr string
		want bool
	}{
		// Strict operators rewritten inside compound expressions.
		{`country === 'US' && name === 'Ada'`, true},
		{`country !== 'US' || name !== 'Ada'`, false},
		// Method calls rewritten into helper functions.
		{`interests.includes('music') && country == 'US'`, true},
		{`email.endsWith('.co') && email.startsWith('a@')`, true},
		{`name.length == 3`, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.EvaluateString(tt.expr, ctx), tt.expr)
	}
}

func TestEvaluate_DenylistRejected(t *testing.T) {
	e := New()
	ctx := map[string]interface{}{"age": 99}

	for _, expr := range []string{
		`process.env.SECRET == 'x'`,
		`require('fs') != null`,
		`window.location != null`,
		`eval('age') > 0`,
		`global.thing == 1`,
		`document.cookie != ''`,
		`import('x') != null`,
	} {
		assert.False(t, e.EvaluateString(expr, ctx), expr)
	}
}

func TestEvaluator_Cache(t *testing.T) {
	e := New()
	ctx := map[string]interface{}{"x": 1}

	require.Equal(t, 0, e.CacheSize())
	e.EvaluateString("x == 1 && x < 2", ctx)
	require.Equal(t, 1, e.CacheSize())

	// Same source text reuses the cached program.
	e.EvaluateString("x == 1 && x < 2", ctx)
	require.Equal(t, 1, e.CacheSize())

	e.ClearCache()
	assert.Equal(t, 0, e.CacheSize())
}

func TestEvaluator_PatternsBypassCache(t *testing.T) {
	e := New()
	e.EvaluateString("age >= 18", map[string]interface{}{"age": 30})
	// Recognized shapes never reach the compiler.
	assert.Equal(t, 0, e.CacheSize())
}

type recordingObserver struct {
	stages []string
}

func (r *recordingObserver) ConditionEvaluated(stage string, result bool) {
	r.stages = append(r.stages, fmt.Sprintf("%s=%t", stage, result))
}

func TestEvaluator_Observer(t *testing.T) {
	obs := &recordingObserver{}
	e := New(WithObserver(obs))

	e.Evaluate(nil, nil)
	e.EvaluateString("age >= 18", map[string]interface{}{"age": 20})
	e.EvaluateString("age >= 18 && true", map[string]interface{}{"age": 20})
	e.Evaluate(&survey.Condition{Rule: &survey.ConditionRule{
		Field: "age", Operator: survey.OpGte, Value: 18, ValueType: survey.ValueTypeNumber,
	}}, map[string]interface{}{"age": 20})

	assert.Equal(t, []string{"empty=true", "pattern=true", "fallback=true", "rule=true"}, obs.stages)
}

func TestEvaluate_RuleListImplicitAnd(t *testing.T) {
	e := New()
	ctx := map[string]interface{}{"age": 30, "country": "US"}

	cond := &survey.Condition{Rules: []survey.ConditionRule{
		{Field: "age", Operator: survey.OpGte, Value: 18, ValueType: survey.ValueTypeNumber},
		{Field: "country", Operator: survey.OpEq, Value: "US"},
	}}
	assert.True(t, e.Evaluate(cond, ctx))

	cond.Rules[1].Value = "CA"
	assert.False(t, e.Evaluate(cond, ctx))
}
