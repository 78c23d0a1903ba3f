package engine

import (
	"context"
	"fmt"

	"github.com/roach88/syncframe/internal/ir"
)

// PanicError wraps a value recovered from a concept or query panic.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// guarded runs call on its own goroutine and returns when it finishes or
// ctx is done, whichever comes first. Panics become *PanicError.
//
// A call that ignores ctx keeps running after guarded returns; its result
// is discarded.
func guarded[T any](ctx context.Context, call func(context.Context) (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		var res result
		defer func() {
			if r := recover(); r != nil {
				res = result{err: &PanicError{Value: r}}
			}
			done <- res
		}()
		res.val, res.err = call(ctx)
	}()

	select {
	case res := <-done:
		return res.val, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func guardQuery(fn QueryFunc) QueryFunc {
	return func(ctx context.Context, args ir.IRObject) ([]ir.IRObject, error) {
		return guarded(ctx, func(ctx context.Context) ([]ir.IRObject, error) {
			return fn(ctx, args)
		})
	}
}

func invokeAction(ctx context.Context, fn ActionFunc, input ir.IRObject) (ir.IRObject, error) {
	return guarded(ctx, func(ctx context.Context) (ir.IRObject, error) {
		return fn(ctx, input)
	})
}
