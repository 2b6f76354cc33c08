// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package riskdb

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/riskcrew/pkg/cache"
	"github.com/jllopis/riskcrew/pkg/config"
	"github.com/jllopis/riskcrew/pkg/risk"
	"github.com/jllopis/riskcrew/pkg/telemetry"
)

// allProjectsKey is the history key of the aggregate over every project.
const allProjectsKey = "_all"

// Snapshot is the dashboard aggregate for a project or for all projects.
type Snapshot struct {
	Project        string               `json:"project"`
	DaysBack       int                  `json:"days_back"`
	Risks          []risk.ScoredRisk    `json:"risks"`
	TotalRisks     int                  `json:"total_risks"`
	HighRisks      int                  `json:"high_risks"`
	LevelCounts    map[string]int       `json:"level_counts"`
	RiskByCategory []risk.CategoryCount `json:"risk_by_category"`
	MitigationRate float64              `json:"mitigation_rate"`
	TrendData      []risk.TrendPoint    `json:"trend_data"`
	RiskTrend      float64              `json:"risk_trend"`
	OverallScore   int                  `json:"overall_score"`
	Level          risk.Level           `json:"level"`
	GeneratedAt    time.Time            `json:"generated_at"`
}

// Snapshot builds the dashboard aggregate for project (a name, an id or
// AllProjects) over the last daysBack days. Results are cached until the
// data changes or the cache TTL expires. A snapshot whose build overlapped a
// write is returned but not cached.
func (r *Repository) Snapshot(ctx context.Context, project string, daysBack int) (*Snapshot, error) {
	if project == "" {
		project = config.AllProjects
	}
	key := snapshotPrefix + cache.Key(project, strconv.Itoa(daysBack))

	ctx, span := r.tracer.Start(ctx, "riskdb.snapshot", trace.WithAttributes(
		attribute.String(telemetry.AttrProject, project),
	))
	defer span.End()

	gen := r.generation.Load()
	if r.cache != nil {
		var cached Snapshot
		hit, err := r.cache.Get(ctx, key, &cached)
		if err != nil {
			r.logger.WarnContext(ctx, "riskdb.cache.get.error", slog.String("key", key), slog.String("error", err.Error()))
		}
		span.SetAttributes(attribute.Bool(telemetry.AttrCacheHit, hit))
		if hit {
			return &cached, nil
		}
	}

	risks, projects, err := r.ResolveRisks(ctx, project)
	if err != nil {
		return nil, err
	}

	s := r.Scoring()
	scored := s.Score(risks)
	counts := risk.CountByLevel(scored)
	score := s.OverallScore(risks)
	level := s.LevelFor(score)
	now := r.now()

	snap := &Snapshot{
		Project:        project,
		DaysBack:       daysBack,
		Risks:          scored,
		TotalRisks:     len(scored),
		LevelCounts:    counts,
		RiskByCategory: risk.ByCategory(scored),
		MitigationRate: risk.MitigationRate(risks),
		OverallScore:   score,
		Level:          level,
		GeneratedAt:    now,
	}
	if len(s.Levels) > 0 {
		snap.HighRisks = counts[s.Levels[len(s.Levels)-1].Name]
	}

	if r.history != nil {
		points, err := r.history.Points(ctx, historyKey(project, projects), now.AddDate(0, 0, -daysBack))
		if err != nil {
			return nil, err
		}
		snap.TrendData = points
	}
	snap.TrendData = append(snap.TrendData, risk.TrendPoint{Date: now, Score: score})
	snap.RiskTrend = risk.TrendPercent(snap.TrendData)

	if r.cache != nil && r.generation.Load() == gen {
		if err := r.cache.Set(ctx, key, snap); err != nil {
			r.logger.WarnContext(ctx, "riskdb.cache.set.error", slog.String("key", key), slog.String("error", err.Error()))
		}
		// A write that landed between the check and Set.
		if r.generation.Load() != gen {
			if err := r.cache.DeletePrefix(ctx, key); err != nil {
				r.logger.WarnContext(ctx, "riskdb.cache.invalidate.error", slog.String("key", key), slog.String("error", err.Error()))
			}
		}
	}
	return snap, nil
}

func historyKey(project string, projects []risk.Project) string {
	if project == config.AllProjects || len(projects) != 1 {
		return allProjectsKey
	}
	return projects[0].ID
}

// RecordScores stores the current overall score of every project and of the
// aggregate, and returns how many snapshots were written.
func (r *Repository) RecordScores(ctx context.Context) (int, error) {
	if r.history == nil {
		return 0, nil
	}
	projects, err := r.AllProjects(ctx)
	if err != nil {
		return 0, err
	}
	all, err := r.AllRisks(ctx)
	if err != nil {
		return 0, err
	}

	byProject := make(map[string][]risk.Risk)
	for _, rk := range all {
		byProject[rk.ProjectID] = append(byProject[rk.ProjectID], rk)
	}

	s := r.Scoring()
	now := r.now()
	written := 0
	record := func(key, name string, risks []risk.Risk) error {
		score := s.OverallScore(risks)
		level := s.LevelFor(score)
		if err := r.history.Record(ctx, key, score, level.Name, now); err != nil {
			return err
		}
		r.metrics.RecordRiskScore(ctx, name, level.Name, float64(score))
		written++
		return nil
	}
	for _, p := range projects {
		if err := record(p.ID, p.Name, byProject[p.ID]); err != nil {
			return written, err
		}
	}
	if err := record(allProjectsKey, config.AllProjects, all); err != nil {
		return written, err
	}
	r.invalidate(ctx)
	return written, nil
}
