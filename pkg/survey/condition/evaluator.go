package condition

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/formwalk/formwalk/pkg/survey"
)

// Observer receives evaluation telemetry. Implementations must be cheap;
// they are invoked on every evaluation. Stage is one of "empty", "rule",
// "pattern", or "fallback".
type Observer interface {
	ConditionEvaluated(stage string, result bool)
}

// Evaluator evaluates conditions against a value context.
// It caches compiled fallback expressions for repeated evaluations.
// Safe for concurrent use.
type Evaluator struct {
	cache    map[string]*vm.Program
	mu       sync.RWMutex
	logger   *slog.Logger
	observer Observer
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger attaches a logger; evaluation failures are logged at debug
// level instead of being surfaced (the contract is that they become false).
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = logger }
}

// WithObserver attaches an evaluation observer (typically the metrics
// collector in pkg/observability).
func WithObserver(o Observer) Option {
	return func(e *Evaluator) { e.observer = o }
}

// New creates a new condition evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		cache: make(map[string]*vm.Program),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate evaluates a condition against the given value context and
// returns its boolean result. It never panics and never errors out: any
// internal failure (parse error, type error, unresolved reference) makes
// the condition false. A nil or empty condition is true.
//
// The context is the flat answers map merged with computed fields; dotted
// field paths resolve through nested maps.
func (e *Evaluator) Evaluate(c *survey.Condition, ctx map[string]interface{}) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			if e.logger != nil {
				e.logger.Debug("condition evaluation panicked", "panic", r)
			}
			result = false
		}
	}()

	switch {
	case c.IsZero():
		e.observe("empty", true)
		return true
	case c.Rule != nil:
		result = EvaluateRule(*c.Rule, ctx)
		e.observe("rule", result)
		return result
	case len(c.Rules) > 0:
		// Rule lists are an implicit AND.
		for _, r := range c.Rules {
			if !EvaluateRule(r, ctx) {
				e.observe("rule", false)
				return false
			}
		}
		e.observe("rule", true)
		return true
	default:
		return e.evaluateExpression(c.Expression, ctx)
	}
}

// EvaluateString evaluates a bare expression string. Equivalent to
// Evaluate with a string-form condition.
func (e *Evaluator) EvaluateString(expression string, ctx map[string]interface{}) bool {
	return e.Evaluate(survey.Expr(expression), ctx)
}

func (e *Evaluator) evaluateExpression(expression string, ctx map[string]interface{}) bool {
	s := strings.TrimSpace(expression)
	switch s {
	case "":
		e.observe("empty", true)
		return true
	case "true":
		e.observe("pattern", true)
		return true
	case "false":
		e.observe("pattern", false)
		return false
	}

	// Stage 1: the catalogue of shapes the visual rule builder emits.
	if result, ok := matchPattern(s, ctx); ok {
		e.observe("pattern", result)
		return result
	}

	// Stage 2: normalize and interpret with expr.
	result := e.evaluateFallback(s, ctx)
	e.observe("fallback", result)
	return result
}

// denylist rejects expression text that smuggles in host-environment
// references. The fallback interprets an AST rather than executing code,
// so this is defense in depth, not the safety boundary.
var denylist = regexp.MustCompile(`\b(import|require|process|global|window|document|eval)\b`)

func (e *Evaluator) evaluateFallback(expression string, ctx map[string]interface{}) bool {
	normalized := normalize(expression)
	if denylist.MatchString(normalized) {
		if e.logger != nil {
			e.logger.Debug("condition rejected by denylist", "condition", expression)
		}
		return false
	}

	program, err := e.compile(normalized)
	if err != nil {
		if e.logger != nil {
			e.logger.Debug("condition failed to compile", "condition", expression, "error", err)
		}
		return false
	}

	// Merge helper functions into the context for runtime.
	// Note: "contains" is reserved in expr for string operations.
	evalCtx := make(map[string]interface{}, len(ctx)+6)
	for k, v := range ctx {
		evalCtx[k] = v
	}
	for name, fn := range helperEnv() {
		if _, shadowed := evalCtx[name]; !shadowed {
			evalCtx[name] = fn
		}
	}

	result, err := expr.Run(program, evalCtx)
	if err != nil {
		if e.logger != nil {
			e.logger.Debug("condition evaluation failed", "condition", expression, "error", err)
		}
		return false
	}

	boolResult, ok := result.(bool)
	if !ok {
		return false
	}
	return boolResult
}

// compile compiles a normalized expression and caches the program.
func (e *Evaluator) compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	prog, err := expr.Compile(expression,
		expr.Env(helperEnv()),
		// The value context is supplied at runtime; unresolved fields
		// become nil rather than compile errors.
		expr.AllowUndefinedVariables(),
		// Conditions must be boolean.
		expr.AsBool(),
	)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = prog
	e.mu.Unlock()

	return prog, nil
}

// ClearCache clears the compiled-program cache.
// This is mainly useful for testing.
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	e.cache = make(map[string]*vm.Program)
	e.mu.Unlock()
}

// CacheSize returns the number of cached programs.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

func (e *Evaluator) observe(stage string, result bool) {
	if e.observer != nil {
		e.observer.ConditionEvaluated(stage, result)
	}
}

// Method-call rewrites for JS-authored snippets that survive to the
// fallback stage inside larger expressions.
var (
	reStrictEq   = regexp.MustCompile(`===`)
	reStrictNeq  = regexp.MustCompile(`!==`)
	reIncludes   = regexp.MustCompile(`([A-Za-z_][\w.]*)\.includes\(`)
	reStartsWith = regexp.MustCompile(`([A-Za-z_][\w.]*)\.startsWith\(`)
	reEndsWith   = regexp.MustCompile(`([A-Za-z_][\w.]*)\.endsWith\(`)
	reLengthProp = regexp.MustCompile(`([A-Za-z_][\w.]*)\.length\b`)
)

// normalize rewrites JS-isms the rule builder produced into forms the
// expr grammar accepts.
func normalize(expression string) string {
	s := reStrictNeq.ReplaceAllString(expression, "!=")
	s = reStrictEq.ReplaceAllString(s, "==")
	s = reIncludes.ReplaceAllString(s, "includes($1, ")
	s = reStartsWith.ReplaceAllString(s, "startsWith($1, ")
	s = reEndsWith.ReplaceAllString(s, "endsWith($1, ")
	s = reLengthProp.ReplaceAllString(s, "length($1)")
	// expr accepts double quotes too, so only strict operators and method
	// calls need rewriting; quotes pass through unchanged.
	return s
}
