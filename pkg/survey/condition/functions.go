package condition

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// helperEnv returns the custom functions available to fallback
// expressions. The same map is used for compilation (so the functions are
// known to the type checker) and merged into the runtime context.
func helperEnv() map[string]interface{} {
	return map[string]interface{}{
		"has":        containsFunc,
		"includes":   containsFunc, // alias
		"length":     lengthFunc,
		"startsWith": startsWithFunc,
		"endsWith":   endsWithFunc,
		"matches":    matchesFunc,
	}
}

// containsFunc checks if a collection contains an element.
// Usage: has(interests, "music")
//
// Supports slices of any type (deep equality), maps (key presence), and
// strings (substring). Returns false for anything else.
func containsFunc(args ...interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("has requires exactly 2 arguments, got %d", len(args))
	}

	collection := args[0]
	target := args[1]

	if collection == nil {
		return false, nil
	}

	v := reflect.ValueOf(collection)

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if reflect.DeepEqual(v.Index(i).Interface(), target) {
				return true, nil
			}
		}
		return false, nil

	case reflect.Map:
		mapVal := v.MapIndex(reflect.ValueOf(target))
		return mapVal.IsValid(), nil

	case reflect.String:
		str, _ := collection.(string)
		substr, ok := target.(string)
		if !ok {
			return false, nil
		}
		return strings.Contains(str, substr), nil

	default:
		return false, nil
	}
}

// lengthFunc returns the length of a collection or string.
// Usage: length(interests) > 0
func lengthFunc(args ...interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("length requires exactly 1 argument, got %d", len(args))
	}

	if args[0] == nil {
		return 0, nil
	}

	v := reflect.ValueOf(args[0])

	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return v.Len(), nil
	default:
		return nil, fmt.Errorf("length: unsupported type %T", args[0])
	}
}

// startsWithFunc checks a string prefix.
// Usage: startsWith(email, "admin@")
func startsWithFunc(args ...interface{}) (interface{}, error) {
	s, prefix, err := twoStrings("startsWith", args)
	if err != nil {
		return nil, err
	}
	return strings.HasPrefix(s, prefix), nil
}

// endsWithFunc checks a string suffix.
// Usage: endsWith(email, ".edu")
func endsWithFunc(args ...interface{}) (interface{}, error) {
	s, suffix, err := twoStrings("endsWith", args)
	if err != nil {
		return nil, err
	}
	return strings.HasSuffix(s, suffix), nil
}

// matchesFunc checks a string against a regular expression.
// Usage: matches(zip, "^[0-9]{5}$")
func matchesFunc(args ...interface{}) (interface{}, error) {
	s, pattern, err := twoStrings("matches", args)
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("matches: %w", err)
	}
	return re.MatchString(s), nil
}

func twoStrings(name string, args []interface{}) (string, string, error) {
	if len(args) != 2 {
		return "", "", fmt.Errorf("%s requires exactly 2 arguments, got %d", name, len(args))
	}
	a, aok := args[0].(string)
	b, bok := args[1].(string)
	if !aok || !bok {
		return "", "", fmt.Errorf("%s requires string arguments", name)
	}
	return a, b, nil
}
