package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"peoplecounter/internal/model"
)

// withTimeout runs fn and gives up after timeout, returning model.ErrTimeout.
// Media and model calls cannot be interrupted, so fn keeps running in the background
// until it returns; its result is then dropped. A non-positive timeout disables the bound.
func withTimeout[T any](ctx context.Context, timeout time.Duration, stage string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return zero, fmt.Errorf("%s exceeded %s: %w", stage, timeout, model.ErrTimeout)
		}
		return r.value, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%s exceeded %s: %w", stage, timeout, model.ErrTimeout)
		}
		return zero, ctx.Err()
	}
}
