package engine

import (
	"context"
	"fmt"
	"maps"

	"github.com/expr-lang/expr"

	"github.com/roach88/syncframe/internal/frames"
	"github.com/roach88/syncframe/internal/ir"
)

// compileWhereStep checks one declarative step against the variables bound
// before it and returns the runnable step plus the variables bound after it.
func compileWhereStep(syncID string, i int, step ir.WhereStep, bound map[ir.Var]bool, queries map[string]QueryFunc) (whereStep, map[ir.Var]bool, error) {
	next := maps.Clone(bound)
	requireBound := func(vars ...ir.Var) error {
		for _, v := range vars {
			if !bound[v] {
				return configErrorf(syncID, "where[%d] %s: variable $%s is not bound", i, step.Kind, v)
			}
		}
		return nil
	}

	switch step.Kind {
	case ir.WhereQuery, ir.WhereOptionalQuery:
		fn, ok := queries[step.Query]
		if !ok {
			return whereStep{}, nil, configErrorf(syncID, "where[%d]: unknown query %q", i, step.Query)
		}
		if len(step.Out) == 0 {
			return whereStep{}, nil, configErrorf(syncID, "where[%d]: query %q binds nothing", i, step.Query)
		}
		if err := requireBound(step.In.Vars()...); err != nil {
			return whereStep{}, nil, err
		}
		for _, v := range step.Binds() {
			next[v] = true
		}
		in, out, optional := step.In, step.Out, step.Kind == ir.WhereOptionalQuery
		return whereStep{
			kind: step.Kind,
			run: func(ctx context.Context, fs frames.Frames, report func(error)) frames.Frames {
				if optional {
					return fs.QueryOptional(ctx, fn, in, out, frames.OnError(report))
				}
				return fs.Query(ctx, fn, in, out, frames.OnError(report))
			},
		}, next, nil

	case ir.WhereFilter:
		if step.Expr == "" {
			return whereStep{}, nil, configErrorf(syncID, "where[%d]: filter expression is empty", i)
		}
		program, err := expr.Compile(step.Expr, expr.AllowUndefinedVariables(), expr.AsBool())
		if err != nil {
			return whereStep{}, nil, configErrorf(syncID, "where[%d]: compile filter %q: %v", i, step.Expr, err)
		}
		source := step.Expr
		return whereStep{
			kind: step.Kind,
			run: func(_ context.Context, fs frames.Frames, report func(error)) frames.Frames {
				return fs.Filter(func(f frames.Frame) bool {
					out, err := expr.Run(program, exprEnv(f))
					if err != nil {
						report(fmt.Errorf("eval filter %q: %w", source, err))
						return false
					}
					keep, ok := out.(bool)
					return ok && keep
				})
			},
		}, next, nil

	case ir.WhereDedupe:
		if err := requireBound(step.Vars...); err != nil {
			return whereStep{}, nil, err
		}
		vars := step.Vars
		return whereStep{
			kind: step.Kind,
			run: func(_ context.Context, fs frames.Frames, _ func(error)) frames.Frames {
				return fs.Dedupe(vars...)
			},
		}, next, nil

	case ir.WhereCoerceTime:
		if len(step.Vars) == 0 {
			return whereStep{}, nil, configErrorf(syncID, "where[%d]: coerce_time needs vars", i)
		}
		if err := requireBound(step.Vars...); err != nil {
			return whereStep{}, nil, err
		}
		vars := step.Vars
		return whereStep{
			kind: step.Kind,
			run: func(_ context.Context, fs frames.Frames, _ func(error)) frames.Frames {
				return fs.CoerceTime(vars...)
			},
		}, next, nil

	case ir.WhereCollect:
		if step.As == "" {
			return whereStep{}, nil, configErrorf(syncID, "where[%d]: collect needs as", i)
		}
		if err := requireBound(append(append([]ir.Var{}, step.Vars...), step.Fields...)...); err != nil {
			return whereStep{}, nil, err
		}
		// Only the group keys and the collected array survive grouping.
		next = map[ir.Var]bool{step.As: true}
		for _, v := range step.Vars {
			next[v] = true
		}
		groupBy, fields, as := step.Vars, step.Fields, step.As
		return whereStep{
			kind: step.Kind,
			run: func(_ context.Context, fs frames.Frames, _ func(error)) frames.Frames {
				return fs.Collect(groupBy, fields, as)
			},
		}, next, nil

	default:
		return whereStep{}, nil, configErrorf(syncID, "where[%d]: unknown step kind %q", i, step.Kind)
	}
}

// exprEnv exposes a frame's bindings to filter expressions.
func exprEnv(f frames.Frame) map[string]any {
	env := make(map[string]any, f.Len())
	for _, v := range f.Vars() {
		val, _ := f.Get(v)
		env[string(v)] = ir.ToGo(val)
	}
	return env
}
