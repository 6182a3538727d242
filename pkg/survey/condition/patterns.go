package condition

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// The visual rule builder historically serialized conditions as small
// JavaScript snippets. The catalogue below recognizes those exact shapes
// and evaluates them directly against the value context, so the common
// case never reaches the expression engine. Order matters: date shapes
// must be tried before the generic field-vs-literal comparison.

const (
	fieldRe   = `([A-Za-z_][\w.]*)`
	literalRe = `('(?:[^'\\]|\\.)*'|"(?:[^"\\]|\\.)*"|-?\d+(?:\.\d+)?|true|false|null)`
	opRe      = `(===|==|!==|!=|>=|<=|>|<)`
	// Milliseconds per average year (365.25 days), the constant the rule
	// builder emits for age checks.
	msPerYear = 31557600000.0
)

type pattern struct {
	re   *regexp.Regexp
	eval func(m []string, ctx map[string]interface{}) (bool, bool)
}

func anchored(expr string) *regexp.Regexp {
	return regexp.MustCompile(`^\s*` + expr + `\s*$`)
}

var patterns = []pattern{
	// new Date(f) >= new Date('a') && new Date(f) <= new Date('b')
	{
		re: anchored(`new Date\(` + fieldRe + `\)\s*>=\s*new Date\(` + literalRe + `\)\s*&&\s*new Date\(` + fieldRe + `\)\s*<=\s*new Date\(` + literalRe + `\)`),
		eval: func(m []string, ctx map[string]interface{}) (bool, bool) {
			if m[1] != m[3] {
				return false, false
			}
			t, ok := fieldDate(ctx, m[1])
			if !ok {
				return false, true
			}
			lo, lok := toDate(unquote(m[2]))
			hi, hok := toDate(unquote(m[4]))
			if !lok || !hok {
				return false, true
			}
			return !t.Before(lo) && !t.After(hi), true
		},
	},
	// new Date(f).getTime() === new Date('a').getTime()
	{
		re: anchored(`new Date\(` + fieldRe + `\)\.getTime\(\)\s*` + opRe + `\s*new Date\(` + literalRe + `\)\.getTime\(\)`),
		eval: func(m []string, ctx map[string]interface{}) (bool, bool) {
			t, ok := fieldDate(ctx, m[1])
			if !ok {
				return false, true
			}
			other, ok := toDate(unquote(m[3]))
			if !ok {
				return false, true
			}
			return compareFloats(m[2], float64(t.UnixMilli()), float64(other.UnixMilli())), true
		},
	},
	// new Date(f) OP new Date('a')
	{
		re: anchored(`new Date\(` + fieldRe + `\)\s*` + opRe + `\s*new Date\(` + literalRe + `\)`),
		eval: func(m []string, ctx map[string]interface{}) (bool, bool) {
			t, ok := fieldDate(ctx, m[1])
			if !ok {
				return false, true
			}
			other, ok := toDate(unquote(m[3]))
			if !ok {
				return false, true
			}
			return compareFloats(m[2], float64(t.UnixMilli()), float64(other.UnixMilli())), true
		},
	},
	// new Date(f).toDateString() === new Date().toDateString()  ("is today")
	{
		re: anchored(`new Date\(` + fieldRe + `\)\.toDateString\(\)\s*===?\s*new Date\(\)\.toDateString\(\)`),
		eval: func(m []string, ctx map[string]interface{}) (bool, bool) {
			t, ok := fieldDate(ctx, m[1])
			if !ok {
				return false, true
			}
			now := time.Now()
			y1, mo1, d1 := t.Date()
			y2, mo2, d2 := now.Date()
			return y1 == y2 && mo1 == mo2 && d1 == d2, true
		},
	},
	// [0, 6].includes(new Date(f).getDay())  (weekend; leading ! for weekday)
	{
		re: anchored(`(!?)\[0,\s*6\]\.includes\(new Date\(` + fieldRe + `\)\.getDay\(\)\)`),
		eval: func(m []string, ctx map[string]interface{}) (bool, bool) {
			t, ok := fieldDate(ctx, m[2])
			if !ok {
				return false, true
			}
			weekend := t.Weekday() == time.Sunday || t.Weekday() == time.Saturday
			if m[1] == "!" {
				return !weekend, true
			}
			return weekend, true
		},
	},
	// Math.floor((Date.now() - new Date(f)) / 31557600000) OP N  (age check;
	// Math.floor and the Date.now()/new Date() spelling both optional)
	{
		re: anchored(`(?:Math\.floor\()?\(\s*(?:Date\.now\(\)|new Date\(\))\s*-\s*new Date\(` + fieldRe + `\)\s*\)\s*/\s*31557600000\s*\)?\s*` + opRe + `\s*(-?\d+(?:\.\d+)?)`),
		eval: func(m []string, ctx map[string]interface{}) (bool, bool) {
			birth, ok := fieldDate(ctx, m[1])
			if !ok {
				return false, true
			}
			n, err := strconv.ParseFloat(m[3], 64)
			if err != nil {
				return false, true
			}
			years := float64(time.Since(birth).Milliseconds()) / msPerYear
			// The floored and unfloored spellings agree for integer
			// thresholds, so a single evaluation covers both.
			return compareFloats(m[2], float64(int(years)), n), true
		},
	},
	// new Date(f).getDay()/getMonth()/getFullYear() OP N
	{
		re: anchored(`new Date\(` + fieldRe + `\)\.(getDay|getMonth|getFullYear)\(\)\s*` + opRe + `\s*(-?\d+)`),
		eval: func(m []string, ctx map[string]interface{}) (bool, bool) {
			t, ok := fieldDate(ctx, m[1])
			if !ok {
				return false, true
			}
			var extracted int
			switch m[2] {
			case "getDay":
				extracted = int(t.Weekday())
			case "getMonth":
				// JS months are 0-based.
				extracted = int(t.Month()) - 1
			case "getFullYear":
				extracted = t.Year()
			}
			n, err := strconv.Atoi(m[4])
			if err != nil {
				return false, true
			}
			return compareFloats(m[3], float64(extracted), float64(n)), true
		},
	},
	// /pattern/flags.test(f)
	{
		re: anchored(`/((?:[^/\\]|\\.)+)/([a-z]*)\.test\(` + fieldRe + `\)`),
		eval: func(m []string, ctx map[string]interface{}) (bool, bool) {
			pat := m[1]
			if strings.Contains(m[2], "i") {
				pat = "(?i)" + pat
			}
			re, err := regexp.Compile(pat)
			if err != nil {
				return false, true
			}
			s := toString(Lookup(ctx, m[3]))
			return re.MatchString(s), true
		},
	},
	// f.some(x => x === lit) / f.every(x => x === lit)
	{
		re: anchored(fieldRe + `\.(some|every)\(\s*\w+\s*=>\s*\w+\s*===?\s*` + literalRe + `\s*\)`),
		eval: func(m []string, ctx map[string]interface{}) (bool, bool) {
			elems := toSlice(Lookup(ctx, m[1]))
			want := parseLiteral(m[3])
			if m[2] == "some" {
				for _, e := range elems {
					if looseEqual(e, want) {
						return true, true
					}
				}
				return false, true
			}
			for _, e := range elems {
				if !looseEqual(e, want) {
					return false, true
				}
			}
			return len(elems) > 0, true
		},
	},
	// f.includes(lit)  (array membership or substring; leading ! negates)
	{
		re: anchored(`(!?)` + fieldRe + `\.includes\(` + literalRe + `\)`),
		eval: func(m []string, ctx map[string]interface{}) (bool, bool) {
			v := Lookup(ctx, m[2])
			want := parseLiteral(m[3])
			var found bool
			if isList(v) {
				for _, e := range toSlice(v) {
					if looseEqual(e, want) {
						found = true
						break
					}
				}
			} else if v != nil {
				found = strings.Contains(toString(v), toString(want))
			}
			if m[1] == "!" {
				return !found, true
			}
			return found, true
		},
	},
	// f.startsWith(lit) / f.endsWith(lit)
	{
		re: anchored(fieldRe + `\.(startsWith|endsWith)\(` + literalRe + `\)`),
		eval: func(m []string, ctx map[string]interface{}) (bool, bool) {
			v := Lookup(ctx, m[1])
			if v == nil {
				return false, true
			}
			s := toString(v)
			want := toString(parseLiteral(m[3]))
			if m[2] == "startsWith" {
				return strings.HasPrefix(s, want), true
			}
			return strings.HasSuffix(s, want), true
		},
	},
	// f.toLowerCase() === lit
	{
		re: anchored(fieldRe + `\.toLowerCase\(\)\s*` + opRe + `\s*` + literalRe),
		eval: func(m []string, ctx map[string]interface{}) (bool, bool) {
			v := Lookup(ctx, m[1])
			if v == nil {
				return false, true
			}
			eq := strings.ToLower(toString(v)) == toString(parseLiteral(m[3]))
			if m[2] == "!=" || m[2] == "!==" {
				return !eq, true
			}
			return eq, true
		},
	},
	// f OP lit  (the generic comparison, tried last)
	{
		re: anchored(fieldRe + `\s*` + opRe + `\s*` + literalRe),
		eval: func(m []string, ctx map[string]interface{}) (bool, bool) {
			v := Lookup(ctx, m[1])
			want := parseLiteral(m[3])
			switch m[2] {
			case "==", "===":
				return looseEqual(v, want), true
			case "!=", "!==":
				return !looseEqual(v, want), true
			default:
				a, aok := toNumber(v)
				b, bok := toNumber(want)
				if !aok || !bok {
					// Fall back to lexicographic ordering for strings.
					if v == nil || want == nil {
						return false, true
					}
					return compareFloats(m[2], float64(strings.Compare(toString(v), toString(want))), 0), true
				}
				return compareFloats(m[2], a, b), true
			}
		},
	},
}

// matchPattern tries the catalogue against the condition text. The second
// return value reports whether any shape matched; false means the caller
// should use the fallback interpreter.
func matchPattern(s string, ctx map[string]interface{}) (bool, bool) {
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		if result, handled := p.eval(m, ctx); handled {
			return result, true
		}
	}
	return false, false
}

// fieldDate resolves a field path and coerces it to a date.
func fieldDate(ctx map[string]interface{}, path string) (time.Time, bool) {
	v := Lookup(ctx, path)
	if v == nil {
		return time.Time{}, false
	}
	return toDate(v)
}

// parseLiteral decodes a matched literal token: quoted string, number,
// boolean, or null.
func parseLiteral(tok string) interface{} {
	switch tok {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if len(tok) >= 2 && (tok[0] == '\'' || tok[0] == '"') {
		return unquote(tok)
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return f
	}
	return tok
}

// unquote strips matching single or double quotes and unescapes the body.
func unquote(tok string) string {
	if len(tok) >= 2 && (tok[0] == '\'' || tok[0] == '"') && tok[len(tok)-1] == tok[0] {
		body := tok[1 : len(tok)-1]
		body = strings.ReplaceAll(body, `\`+string(tok[0]), string(tok[0]))
		body = strings.ReplaceAll(body, `\\`, `\`)
		return body
	}
	return tok
}

// looseEqual compares two values the way the rule builder's JS did:
// numerically when both coerce to numbers, by string otherwise.
func looseEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := toNumber(a); aok {
		if bf, bok := toNumber(b); bok {
			return af == bf
		}
	}
	return toString(a) == toString(b)
}

func compareFloats(op string, a, b float64) bool {
	switch op {
	case "==", "===":
		return a == b
	case "!=", "!==":
		return a != b
	case ">":
		return a > b
	case ">=":
		return a >= b
	case "<":
		return a < b
	case "<=":
		return a <= b
	default:
		return false
	}
}
