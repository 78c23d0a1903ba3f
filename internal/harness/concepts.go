package harness

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/syncframe/internal/engine"
	"github.com/roach88/syncframe/internal/ir"
)

// scriptedConcept returns the output of the first case whose When matches.
func scriptedConcept(ref string, cases []ConceptCase) (engine.ActionFunc, error) {
	type compiled struct {
		when   ir.IRObject
		output ir.IRObject
		fail   string
	}
	all := make([]compiled, len(cases))
	for i, c := range cases {
		when, err := ir.ObjectFromGo(c.When)
		if err != nil {
			return nil, fmt.Errorf("concepts.%s[%d].when: %w", ref, i, err)
		}
		output, err := ir.ObjectFromGo(c.Output)
		if err != nil {
			return nil, fmt.Errorf("concepts.%s[%d].output: %w", ref, i, err)
		}
		all[i] = compiled{when: when, output: output, fail: c.Fail}
	}

	return func(_ context.Context, input ir.IRObject) (ir.IRObject, error) {
		for _, c := range all {
			if !subsetMatch(input, c.when) {
				continue
			}
			if c.fail != "" {
				return nil, errors.New(c.fail)
			}
			return c.output.Clone(), nil
		}
		return nil, fmt.Errorf("%s: no scripted case matches input %s", ref, ir.String(input))
	}, nil
}

// scriptedQuery returns the rows of the first case whose When matches, or
// no rows when none does.
func scriptedQuery(name string, cases []QueryCase) (engine.QueryFunc, error) {
	type compiled struct {
		when ir.IRObject
		rows []ir.IRObject
		fail string
	}
	all := make([]compiled, len(cases))
	for i, c := range cases {
		when, err := ir.ObjectFromGo(c.When)
		if err != nil {
			return nil, fmt.Errorf("queries.%s[%d].when: %w", name, i, err)
		}
		rows := make([]ir.IRObject, len(c.Rows))
		for j, row := range c.Rows {
			rows[j], err = ir.ObjectFromGo(row)
			if err != nil {
				return nil, fmt.Errorf("queries.%s[%d].rows[%d]: %w", name, i, j, err)
			}
		}
		all[i] = compiled{when: when, rows: rows, fail: c.Fail}
	}

	return func(_ context.Context, args ir.IRObject) ([]ir.IRObject, error) {
		for _, c := range all {
			if !subsetMatch(args, c.when) {
				continue
			}
			if c.fail != "" {
				return nil, errors.New(c.fail)
			}
			return c.rows, nil
		}
		return nil, nil
	}, nil
}

// buildRegistry registers every scripted concept, in name order.
func buildRegistry(concepts map[string][]ConceptCase) (*engine.Registry, error) {
	registry := engine.NewRegistry()

	refs := make([]string, 0, len(concepts))
	for ref := range concepts {
		refs = append(refs, ref)
	}
	sort.Strings(refs)

	for _, ref := range refs {
		fn, err := scriptedConcept(ref, concepts[ref])
		if err != nil {
			return nil, err
		}
		concept, method, _ := ir.SplitActionRef(ref)
		if err := registry.Register(concept, method, fn); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// subsetMatch reports whether every field of want is present in got with
// an equal value.
func subsetMatch(got, want ir.IRObject) bool {
	for k, v := range want {
		actual, ok := got[k]
		if !ok || !ir.Equal(actual, v) {
			return false
		}
	}
	return true
}
