package frames

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/syncframe/internal/ir"
)

// QueryFunc is a read-only lookup. It returns zero or more result rows for
// the given arguments and must not append to the action log.
type QueryFunc func(ctx context.Context, args ir.IRObject) ([]ir.IRObject, error)

// QueryError describes a lookup that failed for one frame. The frame
// contributes no rows to the join.
type QueryError struct {
	Args  ir.IRObject
	Err   error
	Panic bool
}

func (e *QueryError) Error() string {
	if e.Panic {
		return fmt.Sprintf("query panicked (args %s): %v", ir.String(e.Args), e.Err)
	}
	return fmt.Sprintf("query failed (args %s): %v", ir.String(e.Args), e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// QueryOption configures Query and QueryOptional.
type QueryOption func(*queryConfig)

type queryConfig struct {
	onError func(error)
}

// OnError routes per-frame lookup failures to fn instead of the default
// slog warning.
func OnError(fn func(error)) QueryOption {
	return func(c *queryConfig) {
		c.onError = fn
	}
}

// Query joins every frame with the rows fn returns.
//
// in maps argument names to terms resolved from the frame; out maps row
// fields to the variables they bind. Each row extends a copy of its
// originating frame, so N rows yield N frames and zero rows drop the frame
// (inner join). A row missing an out field, or whose value conflicts with
// an existing binding, is dropped.
//
// Errors and panics from fn are recovered and reported through OnError;
// the affected frame yields no rows and the remaining frames are still
// processed.
func (fs Frames) Query(ctx context.Context, fn QueryFunc, in ir.Template, out map[string]ir.Var, opts ...QueryOption) Frames {
	return fs.join(ctx, fn, in, out, false, opts)
}

// QueryOptional is the left-join variant of Query: a frame with zero rows,
// or whose lookup failed, passes through with each unbound out variable
// bound to null.
func (fs Frames) QueryOptional(ctx context.Context, fn QueryFunc, in ir.Template, out map[string]ir.Var, opts ...QueryOption) Frames {
	return fs.join(ctx, fn, in, out, true, opts)
}

func (fs Frames) join(ctx context.Context, fn QueryFunc, in ir.Template, out map[string]ir.Var, optional bool, opts []QueryOption) Frames {
	cfg := queryConfig{
		onError: func(err error) {
			slog.WarnContext(ctx, "query recovered", "error", err)
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var result Frames
	for _, f := range fs {
		joined := joinFrame(ctx, f, fn, in, out, cfg)
		if len(joined) == 0 && optional {
			joined = Frames{padNulls(f, out)}
		}
		result = append(result, joined...)
	}
	return result
}

func joinFrame(ctx context.Context, f Frame, fn QueryFunc, in ir.Template, out map[string]ir.Var, cfg queryConfig) Frames {
	args, err := f.Resolve(in)
	if err != nil {
		cfg.onError(&QueryError{Args: f.Bindings(), Err: err})
		return nil
	}

	rows, err := callQuery(ctx, fn, args)
	if err != nil {
		cfg.onError(err)
		return nil
	}

	var joined Frames
	for _, row := range rows {
		if next, ok := mergeRow(f, row, out); ok {
			joined = append(joined, next)
		}
	}
	return joined
}

func callQuery(ctx context.Context, fn QueryFunc, args ir.IRObject) (rows []ir.IRObject, err error) {
	defer func() {
		if r := recover(); r != nil {
			rows = nil
			err = &QueryError{Args: args, Err: fmt.Errorf("%v", r), Panic: true}
		}
	}()
	rows, err = fn(ctx, args)
	if err != nil {
		return nil, &QueryError{Args: args, Err: err}
	}
	return rows, nil
}

func mergeRow(f Frame, row ir.IRObject, out map[string]ir.Var) (Frame, bool) {
	next := f.clone()
	for field, v := range out {
		val, ok := row[field]
		if !ok {
			return Frame{}, false
		}
		if bound, exists := next.bindings[v]; exists {
			if !ir.Equal(bound, val) {
				return Frame{}, false
			}
			continue
		}
		next.bindings[v] = val
	}
	return next, true
}

func padNulls(f Frame, out map[string]ir.Var) Frame {
	next := f.clone()
	for _, v := range out {
		if _, ok := next.bindings[v]; !ok {
			next.bindings[v] = ir.IRNull{}
		}
	}
	return next
}
