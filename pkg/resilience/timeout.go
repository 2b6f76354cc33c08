// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"time"

	"github.com/jllopis/riskcrew/pkg/errors"
)

// WithTimeout runs fn with a derived context bounded by d.
// fn must honor ctx; a zero duration runs fn with the parent context.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}

	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		value, err := fn(tctx)
		done <- result{value, err}
	}()

	var res result
	select {
	case <-tctx.Done():
	case res = <-done:
		if res.err == nil || tctx.Err() == nil {
			return res.value, res.err
		}
	}

	// fn failed because the deadline passed, or is still running.
	var zero T
	if ctx.Err() != nil {
		return zero, ctx.Err()
	}
	return zero, errors.New(errors.CodeTimeout, "operation exceeded timeout", tctx.Err()).
		WithContext("timeout", d.String()).
		WithRecoverable(true)
}
