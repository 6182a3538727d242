// Package computed derives answer-context values from jq expressions.
//
// Computed fields run against the raw answer map before conditions are
// evaluated, so navigation rules can branch on derived values (totals,
// category buckets, normalized strings) the respondent never typed in.
package computed

import (
	"context"
	"log/slog"
	"time"

	"github.com/itchyny/gojq"

	"github.com/formwalk/formwalk/pkg/errors"
	"github.com/formwalk/formwalk/pkg/survey"
)

// DefaultTimeout bounds a single field's evaluation.
const DefaultTimeout = 1 * time.Second

// Provider evaluates a definition's computed fields. Compiled queries are
// cached per expression; a Provider is safe for repeated Apply calls from
// one evaluation loop.
type Provider struct {
	timeout time.Duration
	logger  *slog.Logger
	cache   map[string]*gojq.Code
}

// Option configures a Provider.
type Option func(*Provider)

// WithTimeout overrides the per-field evaluation timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithLogger attaches a logger for evaluation failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

// NewProvider creates a computed-field provider.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		timeout: DefaultTimeout,
		cache:   map[string]*gojq.Code{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Apply evaluates each field against the answer map and returns a new map
// with the computed values merged in. Fields are evaluated in declaration
// order against the progressively merged map, so later fields can build on
// earlier ones. A field that fails to parse, errors, or times out is
// skipped; its name is simply absent from the result.
func (p *Provider) Apply(ctx context.Context, fields []survey.ComputedField, answers map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(answers)+len(fields))
	for k, v := range answers {
		merged[k] = v
	}

	for _, f := range fields {
		if f.Name == "" || f.Expression == "" {
			continue
		}
		value, err := p.evaluate(ctx, f.Expression, merged)
		if err != nil {
			if p.logger != nil {
				p.logger.Debug("computed field failed", "field", f.Name, "error", err)
			}
			continue
		}
		merged[f.Name] = value
	}
	return merged
}

// Validate compiles an expression without running it, for definition-time
// checks.
func (p *Provider) Validate(expression string) error {
	if expression == "" {
		return &errors.ValidationError{
			Field:      "expression",
			Message:    "computed expression is empty",
			Suggestion: "provide a jq expression, e.g. \".price * .quantity\"",
		}
	}
	_, err := p.compile(expression)
	return err
}

func (p *Provider) evaluate(ctx context.Context, expression string, input map[string]interface{}) (interface{}, error) {
	code, err := p.compile(expression)
	if err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resultChan := make(chan interface{}, 1)
	errorChan := make(chan error, 1)

	go func() {
		iter := code.RunWithContext(execCtx, normalize(input))

		var results []interface{}
		for {
			v, ok := iter.Next()
			if !ok {
				break
			}
			if err, isErr := v.(error); isErr {
				errorChan <- err
				return
			}
			results = append(results, v)
		}

		switch len(results) {
		case 0:
			resultChan <- nil
		case 1:
			resultChan <- results[0]
		default:
			resultChan <- results
		}
	}()

	select {
	case result := <-resultChan:
		return result, nil
	case err := <-errorChan:
		return nil, err
	case <-execCtx.Done():
		return nil, &errors.TimeoutError{Operation: "computed field", Duration: p.timeout}
	}
}

func (p *Provider) compile(expression string) (*gojq.Code, error) {
	if code, ok := p.cache[expression]; ok {
		return code, nil
	}
	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, errors.Wrap(err, "parsing jq expression")
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, errors.Wrap(err, "compiling jq expression")
	}
	p.cache[expression] = code
	return code, nil
}

// normalize coerces answer values into the types gojq accepts: numbers
// become float64, typed slices become []interface{}.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case []string:
		out := make([]interface{}, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}
