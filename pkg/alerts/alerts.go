// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package alerts publishes high-risk alerts and report events.
package alerts

import (
	"context"
	"log/slog"
	"time"

	"github.com/jllopis/riskcrew/pkg/risk"
)

// Alert announces a risk that reached a high level.
type Alert struct {
	RiskID    string    `json:"risk_id"`
	ProjectID string    `json:"project_id"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	Score     int       `json:"score"`
	Level     string    `json:"level"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers alerts and report events.
type Publisher interface {
	PublishAlert(ctx context.Context, a Alert) error
	PublishReport(ctx context.Context, r risk.Report) error
	Close() error
}

// Noop logs events instead of delivering them.
type Noop struct {
	logger *slog.Logger
}

// NewNoop returns a Publisher that only logs.
func NewNoop(logger *slog.Logger) *Noop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Noop{logger: logger}
}

// PublishAlert implements Publisher.
func (n *Noop) PublishAlert(ctx context.Context, a Alert) error {
	n.logger.InfoContext(ctx, "alert.raised",
		slog.String("risk_id", a.RiskID),
		slog.String("project_id", a.ProjectID),
		slog.Int("score", a.Score),
		slog.String("level", a.Level),
	)
	return nil
}

// PublishReport implements Publisher.
func (n *Noop) PublishReport(ctx context.Context, r risk.Report) error {
	n.logger.InfoContext(ctx, "report.generated",
		slog.String("report_id", r.ID),
		slog.String("project_id", r.ProjectID),
		slog.Int("overall_score", r.OverallScore),
	)
	return nil
}

// Close implements Publisher.
func (n *Noop) Close() error { return nil }
