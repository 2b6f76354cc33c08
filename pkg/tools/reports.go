// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/riskcrew/pkg/risk"
)

// aggregateReportID is the project id under which All Projects reports are stored.
const aggregateReportID = "all"

// GenerateReport renders the markdown risk report of a project (or All
// Projects), stores it and publishes a report event.
func (r *Registry) GenerateReport(ctx context.Context, project string) (risk.Report, error) {
	risks, projects, err := r.repo.ResolveRisks(ctx, project)
	if err != nil {
		return risk.Report{}, err
	}
	name, id := allProjects, aggregateReportID
	if project != allProjects && project != "" && len(projects) == 1 {
		name, id = projects[0].Name, projects[0].ID
	}

	s := r.repo.Scoring()
	score := s.OverallScore(risks)
	now := r.now()
	rep := risk.Report{
		ProjectID:    id,
		ProjectName:  name,
		Timestamp:    now,
		OverallScore: score,
		Level:        s.LevelFor(score).Name,
		Summary:      s.Summary(name, s.Score(risks)),
		Content:      s.FormatReport(name, risks, score, now),
	}
	return r.repo.StoreReport(ctx, rep)
}

func (r *Registry) reportTool() *Tool {
	return New(mcp.NewTool(GenerateRiskReport,
		mcp.WithDescription("Generate, store and return the markdown risk report of a project."),
		projectArg(),
	), func(ctx context.Context, args Args) (any, error) {
		rep, err := r.GenerateReport(ctx, args.Project(ctx))
		if err != nil {
			return nil, err
		}
		return rep.Content, nil
	})
}

type reportBrief struct {
	ID           string `json:"id"`
	ProjectName  string `json:"project_name"`
	Timestamp    string `json:"timestamp"`
	OverallScore int    `json:"overall_score"`
	Level        string `json:"level"`
	Summary      string `json:"summary,omitempty"`
}

func (r *Registry) reportsTool() *Tool {
	return New(mcp.NewTool(ProjectReports,
		mcp.WithDescription("List the most recent risk reports of a project, newest first."),
		projectArg(),
		mcp.WithNumber("limit", mcp.Description("Maximum reports (default 5)")),
	), func(ctx context.Context, args Args) (any, error) {
		project := args.Project(ctx)
		id := aggregateReportID
		if project != allProjects {
			p, err := r.repo.FindProject(ctx, project)
			if err != nil {
				return nil, err
			}
			id = p.ID
		}
		reports, err := r.repo.ProjectReports(ctx, id, args.Int("limit", 5))
		if err != nil {
			return nil, err
		}
		out := make([]reportBrief, 0, len(reports))
		for _, rep := range reports {
			out = append(out, reportBrief{
				ID:           rep.ID,
				ProjectName:  rep.ProjectName,
				Timestamp:    rep.Timestamp.Format(risk.TimeLayout),
				OverallScore: rep.OverallScore,
				Level:        rep.Level,
				Summary:      rep.Summary,
			})
		}
		return map[string]any{"project": project, "reports": out}, nil
	})
}
