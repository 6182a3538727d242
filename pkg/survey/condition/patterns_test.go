package condition

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evalPattern(t *testing.T, expr string, ctx map[string]interface{}) bool {
	t.Helper()
	result, ok := matchPattern(expr, ctx)
	require.True(t, ok, "expected the catalogue to recognize %q", expr)
	return result
}

func TestPatterns_GenericComparison(t *testing.T) {
	ctx := map[string]interface{}{"age": 20, "country": "US", "done": true}

	tests := []struct {
		expr string
		want bool
	}{
		{`age >= 18`, true},
		{`age > 20`, false},
		{`age == 20`, true},
		{`age === 20`, true},
		{`age !== 21`, true},
		{`country == 'US'`, true},
		{`country === "US"`, true},
		{`country != 'CA'`, true},
		{`done == true`, true},
		{`missing == null`, true},
		{`country == null`, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, evalPattern(t, tt.expr, ctx), tt.expr)
	}
}

func TestPatterns_DateComparisons(t *testing.T) {
	ctx := map[string]interface{}{"start": "2024-03-15"}

	tests := []struct {
		expr string
		want bool
	}{
		{`new Date(start).getTime() === new Date('2024-03-15').getTime()`, true},
		{`new Date(start) > new Date('2024-01-01')`, true},
		{`new Date(start) <= new Date('2024-03-14')`, false},
		{`new Date(start) >= new Date('2024-03-01') && new Date(start) <= new Date('2024-03-31')`, true},
		{`new Date(start) >= new Date('2024-04-01') && new Date(start) <= new Date('2024-04-30')`, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, evalPattern(t, tt.expr, ctx), tt.expr)
	}
}

func TestPatterns_IsToday(t *testing.T) {
	today := time.Now().Format("2006-01-02")
	ctx := map[string]interface{}{"visit": today, "old": "1999-12-31"}

	assert.True(t, evalPattern(t, `new Date(visit).toDateString() === new Date().toDateString()`, ctx))
	assert.False(t, evalPattern(t, `new Date(old).toDateString() === new Date().toDateString()`, ctx))
}

func TestPatterns_WeekendWeekday(t *testing.T) {
	ctx := map[string]interface{}{
		"saturday": "2024-03-16",
		"tuesday":  "2024-03-19",
	}

	assert.True(t, evalPattern(t, `[0, 6].includes(new Date(saturday).getDay())`, ctx))
	assert.False(t, evalPattern(t, `[0, 6].includes(new Date(tuesday).getDay())`, ctx))
	assert.True(t, evalPattern(t, `![0, 6].includes(new Date(tuesday).getDay())`, ctx))
	assert.True(t, evalPattern(t, `[0,6].includes(new Date(saturday).getDay())`, ctx))
}

func TestPatterns_AgeFromBirthdate(t *testing.T) {
	dob := time.Now().AddDate(-30, 0, -40).Format("2006-01-02")
	ctx := map[string]interface{}{"dob": dob}

	assert.True(t, evalPattern(t,
		fmt.Sprintf(`Math.floor((Date.now() - new Date(%s)) / 31557600000) >= 18`, "dob"), ctx))
	assert.True(t, evalPattern(t, `(Date.now() - new Date(dob)) / 31557600000 >= 30`, ctx))
	assert.False(t, evalPattern(t, `(new Date() - new Date(dob)) / 31557600000 >= 65`, ctx))
}

func TestPatterns_DateExtraction(t *testing.T) {
	// 2024-03-19 is a Tuesday in March.
	ctx := map[string]interface{}{"d": "2024-03-19"}

	assert.True(t, evalPattern(t, `new Date(d).getDay() === 2`, ctx))
	assert.True(t, evalPattern(t, `new Date(d).getMonth() === 2`, ctx)) // JS months are 0-based
	assert.True(t, evalPattern(t, `new Date(d).getFullYear() >= 2024`, ctx))
	assert.False(t, evalPattern(t, `new Date(d).getFullYear() < 2024`, ctx))
}

func TestPatterns_RegexTest(t *testing.T) {
	ctx := map[string]interface{}{"zip": "94110", "name": "Ada"}

	assert.True(t, evalPattern(t, `/^\d{5}$/.test(zip)`, ctx))
	assert.False(t, evalPattern(t, `/^\d{5}$/.test(name)`, ctx))
	assert.True(t, evalPattern(t, `/^ada$/i.test(name)`, ctx))
}

func TestPatterns_ArrayContainment(t *testing.T) {
	ctx := map[string]interface{}{
		"tags":  []interface{}{"a", "b"},
		"same":  []interface{}{"x", "x"},
		"title": "chief pattern officer",
	}

	assert.True(t, evalPattern(t, `tags.includes('a')`, ctx))
	assert.False(t, evalPattern(t, `tags.includes('z')`, ctx))
	assert.True(t, evalPattern(t, `!tags.includes('z')`, ctx))
	assert.True(t, evalPattern(t, `tags.some(v => v === 'b')`, ctx))
	assert.False(t, evalPattern(t, `tags.every(v => v === 'a')`, ctx))
	assert.True(t, evalPattern(t, `same.every(v => v === 'x')`, ctx))
	// String .includes is substring containment.
	assert.True(t, evalPattern(t, `title.includes('pattern')`, ctx))
}

func TestPatterns_StringMethods(t *testing.T) {
	ctx := map[string]interface{}{"email": "Admin@Example.EDU"}

	assert.True(t, evalPattern(t, `email.startsWith('Admin')`, ctx))
	assert.False(t, evalPattern(t, `email.endsWith('.com')`, ctx))
	assert.True(t, evalPattern(t, `email.toLowerCase() === 'admin@example.edu'`, ctx))
	assert.False(t, evalPattern(t, `email.toLowerCase() !== 'admin@example.edu'`, ctx))
}

func TestPatterns_UnrecognizedShapesFallThrough(t *testing.T) {
	ctx := map[string]interface{}{"a": 1}

	for _, expr := range []string{
		`a == 1 && a < 2`,
		`someFunction(a)`,
		`a.b.c.d(1).e`,
	} {
		_, ok := matchPattern(expr, ctx)
		assert.False(t, ok, expr)
	}
}

func TestPatterns_NilDateFieldIsFalse(t *testing.T) {
	ctx := map[string]interface{}{}
	assert.False(t, evalPattern(t, `new Date(missing) > new Date('2024-01-01')`, ctx))
}
