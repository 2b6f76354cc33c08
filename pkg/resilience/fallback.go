// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
)

// FallbackFunc produces a value after the primary operation failed with err.
type FallbackFunc[T any] func(ctx context.Context, err error) (T, error)

// WithFallback runs fn and, on error, returns the fallback result instead.
func WithFallback[T any](ctx context.Context, fn func(context.Context) (T, error), fallback FallbackFunc[T]) (T, error) {
	value, err := fn(ctx)
	if err == nil || fallback == nil {
		return value, err
	}
	return fallback(ctx, err)
}

// Static returns a fallback that always yields value.
func Static[T any](value T) FallbackFunc[T] {
	return func(context.Context, error) (T, error) {
		return value, nil
	}
}

// Chain tries each fallback in order until one succeeds.
func Chain[T any](fallbacks ...FallbackFunc[T]) FallbackFunc[T] {
	return func(ctx context.Context, err error) (T, error) {
		var zero T
		last := err
		for _, fb := range fallbacks {
			value, fbErr := fb(ctx, last)
			if fbErr == nil {
				return value, nil
			}
			last = fbErr
		}
		return zero, last
	}
}
