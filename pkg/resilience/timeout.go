package resilience

import (
	"context"
	"fmt"
	"time"
)

// DeadlineError reports an operation that outlived its limit. It matches
// context.DeadlineExceeded under errors.Is.
type DeadlineError struct {
	Op    string
	Limit time.Duration
}

func (e *DeadlineError) Error() string {
	return fmt.Sprintf("%s: no result within %v", e.Op, e.Limit)
}

func (e *DeadlineError) Unwrap() error { return context.DeadlineExceeded }

// Bounded returns fn's result, or a *DeadlineError once limit passes. The
// context handed to fn carries the DeadlineError as its cancellation cause.
// fn is not waited for after the limit; whatever it returns later is dropped.
// A non-positive limit calls fn inline.
func Bounded[T any](ctx context.Context, limit time.Duration, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	if limit <= 0 {
		return fn(ctx)
	}
	deadline := &DeadlineError{Op: op, Limit: limit}
	bctx, cancel := context.WithTimeoutCause(ctx, limit, deadline)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(bctx)
		done <- outcome{v, err}
	}()

	var zero T
	select {
	case o := <-done:
		return o.val, o.err
	case <-bctx.Done():
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%s: caller gave up: %w", op, context.Cause(ctx))
		}
		return zero, deadline
	}
}

// WithTimeout is Bounded for operations without a result.
func WithTimeout(ctx context.Context, limit time.Duration, op string, fn func(ctx context.Context) error) error {
	_, err := Bounded(ctx, limit, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
