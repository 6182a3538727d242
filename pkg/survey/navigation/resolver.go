// Package navigation turns block and page rules into concrete next
// positions, and tracks where the respondent has been.
//
// The resolver applies one total precedence order everywhere:
// first-matching rule > default rule > explicit next pointer > structural
// sequential fallback. The history manager keys its log by block/page
// UUIDs so that entries survive graph rebuilds (reordered or filtered
// definitions) between visits.
package navigation

import (
	"strconv"

	"github.com/formwalk/formwalk/pkg/survey"
	"github.com/formwalk/formwalk/pkg/survey/condition"
	"github.com/formwalk/formwalk/pkg/survey/graph"
)

// Decision reports how a next-step resolution concluded.
type Decision int

const (
	// Fallthrough means no rule applied; the caller should use the
	// structural default (NextSequential).
	Fallthrough Decision = iota

	// Advance means the returned position is the next step.
	Advance

	// Submit means the survey is complete.
	Submit
)

// SubmitPage is the page-level branching sentinel for submission.
const SubmitPage = -1

// Resolver resolves navigation rules against the current graph build.
type Resolver struct {
	eval *condition.Evaluator
}

// NewResolver creates a resolver using the given condition evaluator.
func NewResolver(eval *condition.Evaluator) *Resolver {
	if eval == nil {
		eval = condition.New()
	}
	return &Resolver{eval: eval}
}

// Evaluator exposes the underlying condition evaluator, shared with the
// history manager for visibility queries.
func (r *Resolver) Evaluator() *condition.Evaluator {
	return r.eval
}

// ResolveNextStep resolves a block's navigation rules to the next step.
//
// Precedence, first success wins:
//  1. Non-default rules in declaration order; the first one whose
//     condition is true and whose target resolves wins. An unresolvable
//     target is a non-match, not an error; resolution continues.
//  2. Default rules, same treatment.
//  3. The block's explicit next pointer.
//
// When nothing applies the decision is Fallthrough and the caller should
// advance sequentially.
func (r *Resolver) ResolveNextStep(block *survey.Block, g *graph.Graph, ctx map[string]interface{}) (graph.Position, Decision) {
	if block == nil || g == nil {
		return graph.Position{}, Fallthrough
	}

	for _, rule := range block.NavigationRules {
		if rule.IsDefault {
			continue
		}
		if !r.eval.Evaluate(rule.Condition, ctx) {
			continue
		}
		if pos, dec, ok := resolveTarget(rule, g); ok {
			return pos, dec
		}
	}

	for _, rule := range block.NavigationRules {
		if !rule.IsDefault {
			continue
		}
		if !r.eval.Evaluate(rule.Condition, ctx) {
			continue
		}
		if pos, dec, ok := resolveTarget(rule, g); ok {
			return pos, dec
		}
	}

	if block.NextBlockID != "" {
		if pos, ok := g.BlockIndex[block.NextBlockID]; ok {
			return pos, Advance
		}
	}

	return graph.Position{}, Fallthrough
}

// resolveTarget maps a rule target to a position. The bool result is
// false when the target does not exist in the current build.
func resolveTarget(rule survey.NavigationRule, g *graph.Graph) (graph.Position, Decision, bool) {
	if rule.Target == survey.TargetSubmit {
		return graph.Position{}, Submit, true
	}
	if rule.IsPage {
		if idx, ok := g.PageIndex[rule.Target]; ok {
			return graph.Position{Page: idx, Block: 0}, Advance, true
		}
		return graph.Position{}, Fallthrough, false
	}
	if pos, ok := g.BlockIndex[rule.Target]; ok {
		return pos, Advance, true
	}
	return graph.Position{}, Fallthrough, false
}

// NextSequential is the structural default: the next block in the current
// page, else the first block of the next non-empty page, else Submit.
func NextSequential(g *graph.Graph, pos graph.Position) (graph.Position, Decision) {
	if g == nil || pos.Page < 0 || pos.Page >= len(g.Pages) {
		return graph.Position{}, Submit
	}
	if pos.Block+1 < len(g.Pages[pos.Page].Blocks) {
		return graph.Position{Page: pos.Page, Block: pos.Block + 1}, Advance
	}
	for p := pos.Page + 1; p < len(g.Pages); p++ {
		if len(g.Pages[p].Blocks) > 0 {
			return graph.Position{Page: p, Block: 0}, Advance
		}
	}
	return graph.Position{}, Submit
}

// ResolveNextPage resolves page-level branching logic. Returns the next
// page index, or SubmitPage for submission. A nil entry, a false
// condition, or an out-of-range numeric target all fall back to the next
// sequential page (staying put when already on the last page).
func (r *Resolver) ResolveNextPage(currentPage int, b *survey.PageBranching, ctx map[string]interface{}, totalPages int) int {
	next := currentPage + 1
	if next >= totalPages {
		next = currentPage
	}

	if b == nil || !r.eval.Evaluate(b.Condition, ctx) {
		return next
	}

	switch b.TargetPage {
	case survey.TargetSubmit:
		return SubmitPage
	case survey.TargetNext:
		return next
	case survey.TargetPrev:
		if currentPage > 0 {
			return currentPage - 1
		}
		return 0
	default:
		idx, err := strconv.Atoi(b.TargetPage)
		if err != nil || idx < 0 || idx >= totalPages {
			return next
		}
		return idx
	}
}
