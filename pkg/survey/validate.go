package survey

import (
	"fmt"
	"strconv"

	"github.com/formwalk/formwalk/pkg/errors"
	"github.com/google/uuid"
)

// Validate checks the definition for structural problems: missing or
// duplicate UUIDs, unknown operators, unresolvable navigation targets, and
// malformed branching entries. All findings are aggregated into a single
// joined error; a nil return means the definition is well-formed.
//
// Unresolvable rule targets are reported here as authoring mistakes even
// though the runtime resolver tolerates them (it treats them as
// non-matches).
func (d *Definition) Validate() error {
	var errs []error

	if d.Name == "" {
		errs = append(errs, &errors.ValidationError{
			Field:      "name",
			Message:    "definition name is required",
			Suggestion: "add a top-level name field",
		})
	}

	switch d.Mode {
	case ModePaged, ModePageless:
	default:
		errs = append(errs, &errors.ValidationError{
			Field:      "mode",
			Message:    fmt.Sprintf("unknown mode %q", d.Mode),
			Suggestion: `use "paged" or "pageless"`,
		})
	}

	seen := map[string]bool{}
	var blocks []*Block
	d.walk(&d.RootNode, "root", &blocks, seen, &errs)

	// Target resolution needs the full uuid set, so rules are checked
	// after the walk.
	for _, b := range blocks {
		for i, rule := range b.NavigationRules {
			field := fmt.Sprintf("block %s: navigation_rules[%d]", b.UUID, i)
			if rule.Target == "" {
				errs = append(errs, &errors.ValidationError{
					Field:   field,
					Message: "rule target is required",
				})
				continue
			}
			if rule.Target != TargetSubmit && !seen[rule.Target] {
				errs = append(errs, &errors.ValidationError{
					Field:      field,
					Message:    fmt.Sprintf("target %q does not exist in this definition", rule.Target),
					Suggestion: "the runtime skips unresolvable targets; fix the rule or remove it",
				})
			}
			errs = appendConditionErrors(errs, field, rule.Condition)
		}
		if b.NextBlockID != "" && !seen[b.NextBlockID] {
			errs = append(errs, &errors.ValidationError{
				Field:   fmt.Sprintf("block %s: next_block", b.UUID),
				Message: fmt.Sprintf("block %q does not exist in this definition", b.NextBlockID),
			})
		}
		errs = appendConditionErrors(errs, fmt.Sprintf("block %s: visible_if", b.UUID), b.VisibleIf)
	}

	pageCount := len(d.RootNode.Items)
	for i, br := range d.Branching {
		field := fmt.Sprintf("branching[%d]", i)
		if br.Page < 0 || (pageCount > 0 && br.Page >= pageCount) {
			errs = append(errs, &errors.ValidationError{
				Field:   field,
				Message: fmt.Sprintf("page index %d out of range", br.Page),
			})
		}
		switch br.TargetPage {
		case TargetNext, TargetPrev, TargetSubmit:
		default:
			if _, err := strconv.Atoi(br.TargetPage); err != nil {
				errs = append(errs, &errors.ValidationError{
					Field:      field,
					Message:    fmt.Sprintf("target %q is not a page index, next, prev, or submit", br.TargetPage),
					Suggestion: "use a numeric page index or one of the keywords",
				})
			}
		}
		errs = appendConditionErrors(errs, field, br.Condition)
	}

	for i, cf := range d.Computed {
		if cf.Name == "" || cf.Expression == "" {
			errs = append(errs, &errors.ValidationError{
				Field:   fmt.Sprintf("computed[%d]", i),
				Message: "computed fields need both a name and an expression",
			})
		}
	}

	return errors.Join(errs...)
}

// walk collects blocks depth-first while checking UUID shape and uniqueness.
func (d *Definition) walk(n *Node, path string, blocks *[]*Block, seen map[string]bool, errs *[]error) {
	if n.UUID == "" && path != "root" {
		*errs = append(*errs, &errors.ValidationError{
			Field:      path,
			Message:    "node is missing a uuid",
			Suggestion: "every page and block needs a stable uuid",
		})
	}
	if n.UUID != "" {
		if err := uuid.Validate(n.UUID); err != nil {
			*errs = append(*errs, &errors.ValidationError{
				Field:   path,
				Message: fmt.Sprintf("uuid %q is not valid: %v", n.UUID, err),
			})
		}
		if seen[n.UUID] {
			*errs = append(*errs, &errors.ValidationError{
				Field:   path,
				Message: fmt.Sprintf("uuid %q is duplicated", n.UUID),
			})
		}
		seen[n.UUID] = true
	}

	if !n.IsSet() {
		*blocks = append(*blocks, &n.Block)
	}
	for i := range n.Items {
		d.walk(&n.Items[i], fmt.Sprintf("%s.items[%d]", path, i), blocks, seen, errs)
	}
}

// appendConditionErrors validates the structured parts of a condition.
// Expression strings are not checked here: the evaluator treats anything
// unparseable as false by contract.
func appendConditionErrors(errs []error, field string, c *Condition) []error {
	if c.IsZero() {
		return errs
	}
	check := func(r *ConditionRule) {
		if r.Field == "" {
			errs = append(errs, &errors.ValidationError{
				Field:   field,
				Message: "structured rule is missing a field name",
			})
		}
		if !KnownOperators[r.Operator] {
			errs = append(errs, &errors.ValidationError{
				Field:      field,
				Message:    fmt.Sprintf("unknown operator %q", r.Operator),
				Suggestion: "see the operator list in the package documentation",
			})
		}
	}
	if c.Rule != nil {
		check(c.Rule)
	}
	for i := range c.Rules {
		check(&c.Rules[i])
	}
	return errs
}
