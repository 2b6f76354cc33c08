// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/riskcrew/pkg/errors"
	"github.com/jllopis/riskcrew/pkg/risk"
)

func projectArg() mcp.ToolOption {
	return mcp.WithString(argProject,
		mcp.Description("Project name or id, or 'All Projects' for every project"),
	)
}

func daysArg() mcp.ToolOption {
	return mcp.WithNumber(argDays,
		mcp.Description("Number of days of history to consider (default 30)"),
	)
}

type projectInfo struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	Description          string  `json:"description,omitempty"`
	Status               string  `json:"status"`
	Client               string  `json:"client,omitempty"`
	Industry             string  `json:"industry,omitempty"`
	StartDate            string  `json:"start_date"`
	EndDate              string  `json:"end_date"`
	CompletionPercentage float64 `json:"completion_percentage"`
	BudgetStatus         string  `json:"budget_status"`
	ResourceUtilization  float64 `json:"resource_utilization"`
	KeyMetrics           metrics `json:"key_metrics"`
}

type metrics struct {
	Budget             float64 `json:"budget"`
	Spent              float64 `json:"spent"`
	BudgetUsed         float64 `json:"budget_used_percentage"`
	ExpectedCompletion float64 `json:"expected_completion_percentage"`
	TeamSize           int     `json:"team_size"`
	DaysRemaining      int     `json:"days_remaining"`
	OpenRisks          int     `json:"open_risks"`
	OverallRiskScore   int     `json:"overall_risk_score"`
	RiskLevel          string  `json:"risk_level"`
}

func (r *Registry) projectInfoTool() *Tool {
	return New(mcp.NewTool(ProjectInfo,
		mcp.WithDescription("Get information about project status, including schedule, budget, resources and other key parameters."),
		projectArg(),
	), func(ctx context.Context, args Args) (any, error) {
		_, projects, err := r.repo.ResolveRisks(ctx, args.Project(ctx))
		if err != nil {
			return nil, err
		}
		out := make([]projectInfo, 0, len(projects))
		for _, p := range projects {
			info, err := r.describe(ctx, p)
			if err != nil {
				return nil, err
			}
			out = append(out, info)
		}
		if len(out) == 1 {
			return out[0], nil
		}
		return map[string]any{"projects": out}, nil
	})
}

func (r *Registry) describe(ctx context.Context, p risk.Project) (projectInfo, error) {
	risks, err := r.repo.ProjectRisks(ctx, p.ID)
	if err != nil {
		return projectInfo{}, err
	}
	s := r.repo.Scoring()
	score := s.OverallScore(risks)
	h := risk.AssessHealth(p, r.now())
	open := 0
	for _, rk := range risks {
		if !rk.Normalize().Status.Resolved() {
			open++
		}
	}
	return projectInfo{
		ID:                   p.ID,
		Name:                 p.Name,
		Description:          p.Description,
		Status:               p.Status,
		Client:               p.Client,
		Industry:             p.Industry,
		StartDate:            p.StartDate,
		EndDate:              p.EndDate,
		CompletionPercentage: p.CompletionPercentage,
		BudgetStatus:         h.BudgetStatus,
		ResourceUtilization:  h.ResourceUtilization,
		KeyMetrics: metrics{
			Budget:             p.Budget,
			Spent:              p.Spent,
			BudgetUsed:         h.BudgetUsed,
			ExpectedCompletion: h.ExpectedCompletion,
			TeamSize:           p.TeamSize,
			DaysRemaining:      h.DaysRemaining,
			OpenRisks:          open,
			OverallRiskScore:   score,
			RiskLevel:          s.LevelFor(score).Name,
		},
	}, nil
}

func (r *Registry) healthTool() *Tool {
	return New(mcp.NewTool(ProjectHealth,
		mcp.WithDescription("Rate project health as Green, Amber or Red for schedule, budget and resources."),
		projectArg(),
	), func(ctx context.Context, args Args) (any, error) {
		_, projects, err := r.repo.ResolveRisks(ctx, args.Project(ctx))
		if err != nil {
			return nil, err
		}
		now := r.now()
		out := make([]risk.Health, 0, len(projects))
		for _, p := range projects {
			out = append(out, risk.AssessHealth(p, now))
		}
		if len(out) == 1 {
			return out[0], nil
		}
		return map[string]any{"projects": out}, nil
	})
}

type comparison struct {
	Name              string   `json:"name"`
	TotalRisks        int      `json:"total_risks"`
	HighRisks         int      `json:"high_risks"`
	OverallScore      int      `json:"overall_score"`
	Level             string   `json:"level"`
	RiskTrend         float64  `json:"risk_trend"`
	TopRiskCategories []string `json:"top_risk_categories"`
	MitigationRate    float64  `json:"mitigation_rate"`
}

func (r *Registry) comparisonTool() *Tool {
	return New(mcp.NewTool(ProjectComparison,
		mcp.WithDescription("Compare risk profiles between projects. Provide a comma-separated list of project names."),
		mcp.WithString("projects", mcp.Required(),
			mcp.Description("Comma-separated project names, e.g. 'Cloud Migration, Mobile Banking App'"),
		),
	), func(ctx context.Context, args Args) (any, error) {
		requested := args.Strings("projects")
		known, err := r.repo.ProjectNames(ctx)
		if err != nil {
			return nil, err
		}
		var valid []string
		for _, name := range requested {
			if strings.EqualFold(name, allProjects) {
				valid = append(valid, allProjects)
				continue
			}
			if p, err := r.repo.FindProject(ctx, name); err == nil {
				valid = append(valid, p.Name)
			} else if !errors.IsCode(err, errors.CodeNotFound) {
				return nil, err
			}
		}
		if len(valid) == 0 {
			return nil, errors.InvalidInput("no valid projects found in the list: %s. Available projects are: %s",
				args.String("projects"), strings.Join(known, ", ")).WithContext("known", known)
		}

		out := make([]comparison, 0, len(valid))
		for _, name := range valid {
			snap, err := r.repo.Snapshot(ctx, name, 30)
			if err != nil {
				return nil, err
			}
			var top []string
			seen := make(map[string]bool)
			for _, c := range snap.RiskByCategory {
				if len(top) == 3 {
					break
				}
				if !seen[c.Category] {
					seen[c.Category] = true
					top = append(top, c.Category)
				}
			}
			out = append(out, comparison{
				Name:              name,
				TotalRisks:        snap.TotalRisks,
				HighRisks:         snap.HighRisks,
				OverallScore:      snap.OverallScore,
				Level:             snap.Level.Name,
				RiskTrend:         snap.RiskTrend,
				TopRiskCategories: top,
				MitigationRate:    snap.MitigationRate,
			})
		}
		return map[string]any{"projects": out}, nil
	})
}

func (r *Registry) trendsTool() *Tool {
	return New(mcp.NewTool(RiskTrends,
		mcp.WithDescription("Get the overall risk score history of a project within the last days."),
		projectArg(),
		daysArg(),
	), func(ctx context.Context, args Args) (any, error) {
		snap, err := r.repo.Snapshot(ctx, args.Project(ctx), args.Int(argDays, 30))
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"project":       snap.Project,
			"days_back":     snap.DaysBack,
			"trend_data":    snap.TrendData,
			"risk_trend":    snap.RiskTrend,
			"overall_score": snap.OverallScore,
			"level":         snap.Level.Name,
		}, nil
	})
}
