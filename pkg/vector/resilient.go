// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package vector

import (
	"context"

	"github.com/jllopis/riskcrew/pkg/errors"
	"github.com/jllopis/riskcrew/pkg/resilience"
	"github.com/jllopis/riskcrew/pkg/telemetry"
)

// ResilientEmbedder retries recoverable embedding failures.
type ResilientEmbedder struct {
	next    Embedder
	retry   resilience.RetryConfig
	metrics *telemetry.Metrics
}

// NewResilientEmbedder wraps next with the retry policy.
func NewResilientEmbedder(next Embedder, retry resilience.RetryConfig) *ResilientEmbedder {
	return &ResilientEmbedder{next: next, retry: retry}
}

// WithMetrics counts embeddings that succeeded after a retry.
func (r *ResilientEmbedder) WithMetrics(m *telemetry.Metrics) *ResilientEmbedder {
	r.metrics = m
	return r
}

// Embed implements Embedder.
func (r *ResilientEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var retried error
	retry := r.retry
	retry.OnRetry = func(_ int, err error) { retried = err }
	vec, err := resilience.DoValue(ctx, retry, func() ([]float32, error) {
		return r.next.Embed(ctx, text)
	})
	if err == nil && retried != nil {
		r.metrics.RecordRecovery(ctx, errors.CodeOf(retried))
	}
	return vec, err
}

// Dimension forwards to the wrapped embedder when it knows its size.
func (r *ResilientEmbedder) Dimension() int {
	if d, ok := r.next.(Dimensioner); ok {
		return d.Dimension()
	}
	return 0
}
