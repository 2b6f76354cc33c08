// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"log/slog"

	"github.com/jllopis/riskcrew/pkg/errors"
	"github.com/jllopis/riskcrew/pkg/resilience"
	"github.com/jllopis/riskcrew/pkg/telemetry"
)

// Resilient wraps a Provider with retry and a circuit breaker.
type Resilient struct {
	next    Provider
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	metrics *telemetry.Metrics
}

// NewResilient returns a provider that retries recoverable failures and stops
// calling next while the breaker is open. A nil breaker disables it.
func NewResilient(next Provider, retry resilience.RetryConfig, breaker *resilience.CircuitBreaker) *Resilient {
	return &Resilient{next: next, retry: retry, breaker: breaker}
}

// WithMetrics counts calls that succeeded after a retry.
func (r *Resilient) WithMetrics(m *telemetry.Metrics) *Resilient {
	r.metrics = m
	return r
}

// Chat implements Provider.
func (r *Resilient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var retried error
	retry := r.retry
	retry.OnRetry = func(attempt int, err error) {
		retried = err
		slog.WarnContext(ctx, "llm.chat.retry", "model", req.Model, "attempt", attempt, "error", err)
	}
	resp, err := resilience.DoValue(ctx, retry, func() (*ChatResponse, error) {
		if r.breaker == nil {
			return r.next.Chat(ctx, req)
		}
		var resp *ChatResponse
		err := r.breaker.Call(ctx, func() error {
			var callErr error
			resp, callErr = r.next.Chat(ctx, req)
			return callErr
		})
		return resp, err
	})
	if err == nil && retried != nil {
		r.metrics.RecordRecovery(ctx, errors.CodeOf(retried))
	}
	return resp, err
}

// Ping delegates to the wrapped provider when it supports health checks.
func (r *Resilient) Ping(ctx context.Context) error {
	if p, ok := r.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

var _ Pinger = (*Resilient)(nil)
