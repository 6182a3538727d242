package computed

import (
	"context"
	"testing"
	"time"

	"github.com/formwalk/formwalk/pkg/survey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_DerivesValues(t *testing.T) {
	p := NewProvider()
	answers := map[string]interface{}{"price": 12.5, "quantity": 4}
	fields := []survey.ComputedField{
		{Name: "total", Expression: ".price * .quantity"},
		{Name: "bulk", Expression: ".total >= 40"},
	}

	got := p.Apply(context.Background(), fields, answers)

	assert.Equal(t, 50.0, got["total"])
	// Later fields see earlier results.
	assert.Equal(t, true, got["bulk"])
	// Originals are preserved and the input map is untouched.
	assert.Equal(t, 12.5, got["price"])
	_, dirty := answers["total"]
	assert.False(t, dirty)
}

func TestApply_StringAndArrayExpressions(t *testing.T) {
	p := NewProvider()
	answers := map[string]interface{}{
		"email": "Ada@Example.COM",
		"tags":  []string{"go", "jq", "survey"},
	}
	fields := []survey.ComputedField{
		{Name: "email_lc", Expression: ".email | ascii_downcase"},
		{Name: "tag_count", Expression: ".tags | length"},
		{Name: "has_go", Expression: ".tags | contains([\"go\"])"},
	}

	got := p.Apply(context.Background(), fields, answers)

	assert.Equal(t, "ada@example.com", got["email_lc"])
	assert.EqualValues(t, 3, got["tag_count"])
	assert.Equal(t, true, got["has_go"])
}

func TestApply_SkipsBrokenFields(t *testing.T) {
	p := NewProvider()
	fields := []survey.ComputedField{
		{Name: "bad_syntax", Expression: ".price *"},
		{Name: "runtime_error", Expression: ".price + \"x\""},
		{Name: "", Expression: ".price"},
		{Name: "ok", Expression: ".price + 1"},
	}

	got := p.Apply(context.Background(), fields, map[string]interface{}{"price": 1})

	assert.NotContains(t, got, "bad_syntax")
	assert.NotContains(t, got, "runtime_error")
	assert.Equal(t, 2.0, got["ok"])
}

func TestApply_TimeoutDoesNotHang(t *testing.T) {
	p := NewProvider(WithTimeout(50 * time.Millisecond))
	fields := []survey.ComputedField{
		{Name: "spin", Expression: ".n | until(. < 0; . + 1)"},
		{Name: "ok", Expression: ".n * 2"},
	}

	start := time.Now()
	got := p.Apply(context.Background(), fields, map[string]interface{}{"n": 3})

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.NotContains(t, got, "spin")
	assert.Equal(t, 6.0, got["ok"])
}

func TestApply_MultipleResultsBecomeArray(t *testing.T) {
	p := NewProvider()
	fields := []survey.ComputedField{
		{Name: "expanded", Expression: ".tags[]"},
	}

	got := p.Apply(context.Background(), fields, map[string]interface{}{
		"tags": []interface{}{"a", "b"},
	})
	assert.Equal(t, []interface{}{"a", "b"}, got["expanded"])
}

func TestValidate(t *testing.T) {
	p := NewProvider()

	require.NoError(t, p.Validate(".price * .quantity"))
	assert.Error(t, p.Validate(".price *"))
	assert.Error(t, p.Validate(""))
}

func TestNormalize_CoercesNumericTypes(t *testing.T) {
	p := NewProvider()
	fields := []survey.ComputedField{{Name: "sum", Expression: ".a + .b"}}

	got := p.Apply(context.Background(), fields, map[string]interface{}{
		"a": int(2), "b": int64(3),
	})
	assert.Equal(t, 5.0, got["sum"])
}
