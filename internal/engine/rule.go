package engine

import (
	"context"
	"sort"

	"github.com/roach88/syncframe/internal/frames"
	"github.com/roach88/syncframe/internal/ir"
)

// QueryFunc is a named read-only lookup available to where clauses.
type QueryFunc = frames.QueryFunc

// WhereFunc is a Go frame transform. It receives the frames that survived
// the declarative where steps and a read-only view of the request, and
// returns the frames to fire. A returned error (or a panic) means the rule
// does not fire for this match.
type WhereFunc func(ctx context.Context, fs frames.Frames, wc WhereContext) (frames.Frames, error)

// WhereContext is the read-only context passed to a WhereFunc.
type WhereContext struct {
	FlowToken string
	SyncID    string

	// Bound lists the variables every incoming frame binds.
	Bound []ir.Var

	queries map[string]QueryFunc
	report  func(error)
}

// Query returns the named query.
func (wc WhereContext) Query(name string) (QueryFunc, bool) {
	fn, ok := wc.queries[name]
	return fn, ok
}

// OnError routes lookup failures inside a transform to the engine's
// logging and metrics. Pass it to Frames.Query.
func (wc WhereContext) OnError() frames.QueryOption {
	return frames.OnError(wc.report)
}

// Rule is a sync as registered with the engine: its declarative form plus
// an optional Go transform.
type Rule struct {
	Sync ir.SyncRule

	// Transform runs after the declarative where steps.
	Transform WhereFunc

	// Provides lists variables Transform binds, so then clauses that use
	// them pass validation.
	Provides []ir.Var
}

// Rules wraps declarative sync rules.
func Rules(syncs ...ir.SyncRule) []Rule {
	out := make([]Rule, len(syncs))
	for i, s := range syncs {
		out[i] = Rule{Sync: s}
	}
	return out
}

type compiledRule struct {
	Rule
	steps []whereStep
	bound []ir.Var
}

type whereStep struct {
	kind ir.WhereKind
	run  func(ctx context.Context, fs frames.Frames, report func(error)) frames.Frames
}

// compileRules validates the rule set and compiles where steps.
// All problems are returned, not just the first.
func compileRules(rules []Rule, registry *Registry, queries map[string]QueryFunc) ([]compiledRule, []error) {
	var errs []error
	seen := make(map[string]bool, len(rules))
	compiled := make([]compiledRule, 0, len(rules))

	for _, rule := range rules {
		id := rule.Sync.ID
		if id == "" {
			errs = append(errs, configErrorf("", "sync ID is required"))
			continue
		}
		if seen[id] {
			errs = append(errs, configErrorf(id, "duplicate sync ID"))
			continue
		}
		seen[id] = true

		cr, ruleErrs := compileRule(rule, registry, queries)
		if len(ruleErrs) > 0 {
			errs = append(errs, ruleErrs...)
			continue
		}
		compiled = append(compiled, cr)
	}
	return compiled, errs
}

func compileRule(rule Rule, registry *Registry, queries map[string]QueryFunc) (compiledRule, []error) {
	s := rule.Sync
	var errs []error

	if len(s.When) == 0 {
		errs = append(errs, configErrorf(s.ID, "when clause is empty"))
	}
	if len(s.Then) == 0 {
		errs = append(errs, configErrorf(s.ID, "then clause is empty"))
	}

	bound := make(map[ir.Var]bool)
	for i, p := range s.When {
		if p.Concept == "" || p.Method == "" {
			errs = append(errs, configErrorf(s.ID, "when[%d]: concept and method are required", i))
		}
		for _, v := range p.Vars() {
			bound[v] = true
		}
	}

	steps := make([]whereStep, 0, len(s.Where))
	for i, step := range s.Where {
		compiled, next, err := compileWhereStep(s.ID, i, step, bound, queries)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		steps = append(steps, compiled)
		bound = next
	}

	for _, v := range rule.Provides {
		bound[v] = true
	}

	for i, call := range s.Then {
		ref := call.ActionRef()
		if _, ok := registry.Lookup(ref); !ok {
			errs = append(errs, configErrorf(s.ID, "then[%d]: unknown action %s", i, ref))
		}
		for _, field := range call.Input.SortedFields() {
			term := call.Input[field]
			if term.IsVar() && !bound[term.Var] {
				errs = append(errs, configErrorf(s.ID, "then[%d] %s: variable $%s (field %q) is never bound", i, ref, term.Var, field))
			}
		}
	}

	if len(errs) > 0 {
		return compiledRule{}, errs
	}
	return compiledRule{Rule: rule, steps: steps, bound: sortedVars(bound)}, nil
}

func sortedVars(set map[ir.Var]bool) []ir.Var {
	out := make([]ir.Var, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
