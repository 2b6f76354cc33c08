// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package core holds the small shared pieces of the riskcrew runtime: run
// ids, crew events, task lifecycle and component health.
package core

import (
	"context"
	"time"
)

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	// HealthHealthy indicates the component is fully operational.
	HealthHealthy HealthStatus = "HEALTHY"

	// HealthDegraded indicates the component is operational but with reduced capacity.
	HealthDegraded HealthStatus = "DEGRADED"

	// HealthUnhealthy indicates the component is not operational.
	HealthUnhealthy HealthStatus = "UNHEALTHY"
)

// Value maps a status to the gauge value recorded in metrics.
func (s HealthStatus) Value() int64 {
	switch s {
	case HealthHealthy:
		return 2
	case HealthDegraded:
		return 1
	default:
		return 0
	}
}

// HealthResult represents the result of a health check.
type HealthResult struct {
	Status    HealthStatus  `json:"status"`
	Component string        `json:"component"`
	Message   string        `json:"message,omitempty"`
	Error     string        `json:"error,omitempty"`
	Latency   time.Duration `json:"latency_ns"`
	LastCheck time.Time     `json:"last_check"`
}

// HealthChecker checks the health of a component.
type HealthChecker interface {
	// Check returns the current health status of the component.
	// The context can be used to implement timeouts.
	Check(ctx context.Context) HealthResult
}

// HealthCheckProvider provides health check results for multiple components.
type HealthCheckProvider interface {
	RegisterChecker(name string, checker HealthChecker)
	CheckAll(ctx context.Context) ([]HealthResult, HealthStatus)
	Check(ctx context.Context, name string) (HealthResult, error)
}

// Overall folds component statuses: Healthy only if every component is
// healthy, Unhealthy if any is unhealthy, Degraded otherwise.
func Overall(results []HealthResult) HealthStatus {
	overall := HealthHealthy
	for _, r := range results {
		switch r.Status {
		case HealthUnhealthy:
			return HealthUnhealthy
		case HealthHealthy:
		default:
			overall = HealthDegraded
		}
	}
	return overall
}

// PingChecker reports Healthy when ping succeeds and failStatus otherwise.
func PingChecker(ping func(ctx context.Context) error, failStatus HealthStatus) HealthChecker {
	return NewFunctionHealthChecker(func(ctx context.Context) HealthResult {
		start := time.Now()
		err := ping(ctx)
		res := HealthResult{Status: HealthHealthy, Message: "ok", Latency: time.Since(start)}
		if err != nil {
			res.Status = failStatus
			res.Message = "unreachable"
			res.Error = err.Error()
		}
		return res
	})
}
