// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultHealthCheckProvider implements HealthCheckProvider. Results are
// cached per component for cacheTTL.
type DefaultHealthCheckProvider struct {
	checkers map[string]HealthChecker
	mu       sync.RWMutex
	cache    map[string]HealthResult
	cacheTTL time.Duration
	now      func() time.Time
	recorder HealthRecorder
}

// HealthRecorder receives the gauge value of every checked component.
type HealthRecorder interface {
	RecordHealthStatus(ctx context.Context, component string, status int64)
}

// OverallComponent is the component name under which CheckAll records the
// folded status.
const OverallComponent = "overall"

// NewDefaultHealthCheckProvider creates a new health check provider.
// A zero TTL defaults to 10s; a negative TTL disables caching.
func NewDefaultHealthCheckProvider(cacheTTL time.Duration) *DefaultHealthCheckProvider {
	if cacheTTL == 0 {
		cacheTTL = 10 * time.Second
	}
	return &DefaultHealthCheckProvider{
		checkers: make(map[string]HealthChecker),
		cache:    make(map[string]HealthResult),
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// SetRecorder records each CheckAll result and the overall status.
func (p *DefaultHealthCheckProvider) SetRecorder(r HealthRecorder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recorder = r
}

// RegisterChecker registers a health checker for a component.
func (p *DefaultHealthCheckProvider) RegisterChecker(name string, checker HealthChecker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkers[name] = checker
	delete(p.cache, name)
}

// Check checks the health of a specific component.
func (p *DefaultHealthCheckProvider) Check(ctx context.Context, name string) (HealthResult, error) {
	p.mu.RLock()
	checker, exists := p.checkers[name]
	cached, hit := p.cache[name]
	p.mu.RUnlock()

	if !exists {
		return HealthResult{}, fmt.Errorf("checker not registered: %s", name)
	}
	if hit && p.cacheTTL > 0 && p.now().Sub(cached.LastCheck) < p.cacheTTL {
		return cached, nil
	}

	result := checker.Check(ctx)
	result.Component = name
	if result.LastCheck.IsZero() {
		result.LastCheck = p.now()
	}
	if p.cacheTTL > 0 {
		p.mu.Lock()
		p.cache[name] = result
		p.mu.Unlock()
	}
	return result, nil
}

// CheckAll checks the health of all registered components, ordered by name.
// Returns individual results and overall status (Healthy only if all Healthy).
func (p *DefaultHealthCheckProvider) CheckAll(ctx context.Context) ([]HealthResult, HealthStatus) {
	names := p.names()
	results := make([]HealthResult, 0, len(names))
	for _, name := range names {
		result, err := p.Check(ctx, name)
		if err != nil {
			continue
		}
		results = append(results, result)
	}
	overall := Overall(results)

	p.mu.RLock()
	recorder := p.recorder
	p.mu.RUnlock()
	if recorder != nil {
		for _, r := range results {
			recorder.RecordHealthStatus(ctx, r.Component, r.Status.Value())
		}
		recorder.RecordHealthStatus(ctx, OverallComponent, overall.Value())
	}
	return results, overall
}

func (p *DefaultHealthCheckProvider) names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.checkers))
	for name := range p.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SimpleHealthChecker returns a constant status.
type SimpleHealthChecker struct {
	status  HealthStatus
	message string
}

// NewSimpleHealthChecker creates a new simple health checker.
func NewSimpleHealthChecker(status HealthStatus, message string) *SimpleHealthChecker {
	return &SimpleHealthChecker{
		status:  status,
		message: message,
	}
}

// Check returns the constant health status.
func (s *SimpleHealthChecker) Check(ctx context.Context) HealthResult {
	return HealthResult{
		Status:    s.status,
		Message:   s.message,
		LastCheck: time.Now(),
	}
}

// FunctionHealthChecker wraps a function as a health checker.
type FunctionHealthChecker struct {
	fn func(ctx context.Context) HealthResult
}

// NewFunctionHealthChecker creates a health checker from a function.
func NewFunctionHealthChecker(fn func(ctx context.Context) HealthResult) *FunctionHealthChecker {
	return &FunctionHealthChecker{fn: fn}
}

// Check calls the underlying function.
func (f *FunctionHealthChecker) Check(ctx context.Context) HealthResult {
	result := f.fn(ctx)
	if result.LastCheck.IsZero() {
		result.LastCheck = time.Now()
	}
	return result
}
