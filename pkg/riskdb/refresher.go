// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package riskdb

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/riskcrew/pkg/resilience"
)

// Refresher periodically records score snapshots and drops cached
// dashboards so the UI reflects fresh data.
type Refresher struct {
	repo      *Repository
	interval  time.Duration
	timeout   time.Duration
	retention time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRefresher creates a refresher. An interval <= 0 disables it.
func NewRefresher(repo *Repository, interval time.Duration) *Refresher {
	return &Refresher{
		repo:      repo,
		interval:  interval,
		timeout:   time.Minute,
		retention: 90 * 24 * time.Hour,
		logger:    repo.logger,
	}
}

// SetTimeout bounds a single refresh.
func (f *Refresher) SetTimeout(d time.Duration) {
	f.timeout = d
}

// Start launches the refresh loop.
func (f *Refresher) Start(ctx context.Context) {
	if f.interval <= 0 {
		f.logger.Info("riskdb.refresher.disabled", slog.Duration("interval", f.interval))
		return
	}
	f.Stop()

	f.mu.Lock()
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	f.cancel = cancel
	f.done = done
	f.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()
		f.logger.Info("riskdb.refresher.start", slog.Duration("interval", f.interval))
		for {
			select {
			case <-ctx.Done():
				f.logger.Info("riskdb.refresher.stop")
				return
			case <-ticker.C:
				_ = f.RefreshOnce(ctx)
			}
		}
	}()
}

// Stop ends the loop and waits for it to exit.
func (f *Refresher) Stop() {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.cancel, f.done = nil, nil
	f.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// RefreshOnce records scores, prunes old history and invalidates the cache.
func (f *Refresher) RefreshOnce(ctx context.Context) error {
	start := time.Now()
	ctx, span := f.repo.tracer.Start(ctx, "riskdb.refresh",
		trace.WithAttributes(attribute.String("timeout", f.timeout.String())),
	)
	defer span.End()

	written, err := resilience.WithTimeout(ctx, f.timeout, f.repo.RecordScores)
	elapsed := time.Since(start)
	durationMs := float64(elapsed.Milliseconds())
	f.repo.metrics.RecordRefresh(ctx, elapsed, err)
	if err != nil {
		span.RecordError(err)
		f.logger.WarnContext(ctx, "riskdb.refresh.error",
			slog.Float64("duration_ms", durationMs),
			slog.String("error", err.Error()),
		)
		return err
	}

	pruned := 0
	if h := f.repo.History(); h != nil && f.retention > 0 {
		if pruned, err = h.Prune(ctx, f.repo.now().Add(-f.retention)); err != nil {
			f.logger.WarnContext(ctx, "riskdb.refresh.prune.error", slog.String("error", err.Error()))
		}
	}
	f.repo.invalidate(ctx)

	span.SetAttributes(attribute.Int("snapshots", written), attribute.Int("pruned", pruned))
	f.logger.InfoContext(ctx, "riskdb.refresh.complete",
		slog.Int("snapshots", written),
		slog.Int("pruned", pruned),
		slog.Float64("duration_ms", durationMs),
	)
	return nil
}
