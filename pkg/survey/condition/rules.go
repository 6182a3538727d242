package condition

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/formwalk/formwalk/pkg/survey"
)

// EvaluateRule evaluates a single structured rule against the value
// context. Both operands are coerced to the rule's declared value type
// before the operator is applied. A nil field value short-circuits:
// empty is true, notEmpty is false, eq/neq compare against nil directly,
// and every other operator is false.
func EvaluateRule(r survey.ConditionRule, ctx map[string]interface{}) bool {
	fieldVal := Lookup(ctx, r.Field)

	if fieldVal == nil {
		switch r.Operator {
		case survey.OpEmpty:
			return true
		case survey.OpNotEmpty:
			return false
		case survey.OpEq:
			return r.Value == nil
		case survey.OpNeq:
			return r.Value != nil
		default:
			return false
		}
	}

	vt := r.ValueType
	if vt == "" {
		vt = survey.ValueTypeString
	}

	switch r.Operator {
	case survey.OpEmpty:
		return isEmpty(fieldVal)
	case survey.OpNotEmpty:
		return !isEmpty(fieldVal)

	case survey.OpEq:
		return compare(fieldVal, r.Value, vt) == 0
	case survey.OpNeq:
		return compare(fieldVal, r.Value, vt) != 0
	case survey.OpGt:
		return orderedCompare(fieldVal, r.Value, vt, func(c int) bool { return c > 0 })
	case survey.OpGte:
		return orderedCompare(fieldVal, r.Value, vt, func(c int) bool { return c >= 0 })
	case survey.OpLt:
		return orderedCompare(fieldVal, r.Value, vt, func(c int) bool { return c < 0 })
	case survey.OpLte:
		return orderedCompare(fieldVal, r.Value, vt, func(c int) bool { return c <= 0 })

	case survey.OpContains:
		return containsValue(fieldVal, r.Value, vt)
	case survey.OpNotContains:
		return !containsValue(fieldVal, r.Value, vt)
	case survey.OpStartsWith:
		return strings.HasPrefix(toString(fieldVal), toString(r.Value))
	case survey.OpEndsWith:
		return strings.HasSuffix(toString(fieldVal), toString(r.Value))

	case survey.OpBetween:
		return between(fieldVal, r.Value, vt)
	case survey.OpNotBetween:
		// A malformed bound list fails the rule either way.
		if _, _, ok := bounds(r.Value); !ok {
			return false
		}
		return !between(fieldVal, r.Value, vt)

	case survey.OpIn:
		return inList(fieldVal, r.Value, vt)
	case survey.OpNotIn:
		return !inList(fieldVal, r.Value, vt)

	case survey.OpContainsAny:
		return overlapCount(fieldVal, r.Value, vt) > 0
	case survey.OpContainsAll:
		want := toSlice(r.Value)
		return len(want) > 0 && overlapCount(fieldVal, r.Value, vt) == len(want)
	case survey.OpContainsNone:
		return overlapCount(fieldVal, r.Value, vt) == 0

	case survey.OpMatches:
		re, err := regexp.Compile(toString(r.Value))
		if err != nil {
			return false
		}
		return re.MatchString(toString(fieldVal))

	default:
		return false
	}
}

// Lookup resolves a field path in the value context. The whole path is
// tried as a flat key first (answers maps commonly use dotted keys), then
// segment by segment through nested maps. Returns nil when unresolved.
func Lookup(ctx map[string]interface{}, path string) interface{} {
	if path == "" {
		return nil
	}
	if v, ok := ctx[path]; ok {
		return v
	}
	var cur interface{} = ctx
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}

// compare coerces both operands to the value type and returns -1/0/1.
// Incomparable operands return a sentinel that makes every ordered
// operator false (and eq false, neq true, matching loose JS comparison
// of mismatched types).
const incomparable = -2

func compare(a, b interface{}, vt survey.ValueType) int {
	switch vt {
	case survey.ValueTypeNumber:
		af, aok := toNumber(a)
		bf, bok := toNumber(b)
		if !aok || !bok {
			return incomparable
		}
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	case survey.ValueTypeBoolean:
		ab, aok := toBool(a)
		bb, bok := toBool(b)
		if !aok || !bok {
			return incomparable
		}
		if ab == bb {
			return 0
		}
		return 1
	case survey.ValueTypeDate:
		at, aok := toDate(a)
		bt, bok := toDate(b)
		if !aok || !bok {
			return incomparable
		}
		switch {
		case at.Before(bt):
			return -1
		case at.After(bt):
			return 1
		default:
			return 0
		}
	default:
		return strings.Compare(toString(a), toString(b))
	}
}

func orderedCompare(a, b interface{}, vt survey.ValueType, ok func(int) bool) bool {
	c := compare(a, b, vt)
	if c == incomparable {
		return false
	}
	return ok(c)
}

// between checks lo <= field <= hi, bounds inclusive. The rule value must
// be a two-element list.
func between(fieldVal, value interface{}, vt survey.ValueType) bool {
	lo, hi, ok := bounds(value)
	if !ok {
		return false
	}
	return orderedCompare(fieldVal, lo, vt, func(c int) bool { return c >= 0 }) &&
		orderedCompare(fieldVal, hi, vt, func(c int) bool { return c <= 0 })
}

func bounds(value interface{}) (lo, hi interface{}, ok bool) {
	s := toSlice(value)
	if len(s) != 2 {
		return nil, nil, false
	}
	return s[0], s[1], true
}

// containsValue implements the contains operator: substring match for
// string fields, element membership for list fields.
func containsValue(fieldVal, value interface{}, vt survey.ValueType) bool {
	if isList(fieldVal) {
		for _, elem := range toSlice(fieldVal) {
			if compare(elem, value, vt) == 0 {
				return true
			}
		}
		return false
	}
	return strings.Contains(toString(fieldVal), toString(value))
}

// inList checks whether the field value equals any element of the rule's
// value list. A scalar rule value is treated as a one-element list.
func inList(fieldVal, value interface{}, vt survey.ValueType) bool {
	for _, elem := range toSlice(value) {
		if compare(fieldVal, elem, vt) == 0 {
			return true
		}
	}
	return false
}

// overlapCount counts distinct rule-value elements present in the field
// list. Used by the containsAny/All/None family.
func overlapCount(fieldVal, value interface{}, vt survey.ValueType) int {
	have := toSlice(fieldVal)
	count := 0
	for _, want := range toSlice(value) {
		for _, elem := range have {
			if compare(elem, want, vt) == 0 {
				count++
				break
			}
		}
	}
	return count
}

func isEmpty(v interface{}) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	default:
		return false
	}
}

func isList(v interface{}) bool {
	if v == nil {
		return false
	}
	k := reflect.ValueOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// toSlice flattens a value into []interface{}. Scalars become one-element
// slices so list operators accept single authored values.
func toSlice(v interface{}) []interface{} {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []interface{}{v}
	}
	out := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		// Avoid the %v scientific form for round numbers from YAML/JSON.
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func toBool(v interface{}) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "1":
			return true, true
		case "false", "no", "0", "":
			return false, true
		default:
			return false, false
		}
	default:
		if f, ok := toNumber(v); ok {
			return f != 0, true
		}
		return false, false
	}
}

// dateLayouts are the accepted authored date formats, most specific first.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

func toDate(v interface{}) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return d, true
	case string:
		s := strings.TrimSpace(d)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	default:
		if f, ok := toNumber(v); ok {
			// Unix seconds below 1e12, otherwise milliseconds.
			n := int64(f)
			if n > 1e12 {
				return time.UnixMilli(n).UTC(), true
			}
			return time.Unix(n, 0).UTC(), true
		}
		return time.Time{}, false
	}
}
