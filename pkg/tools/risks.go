// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/riskcrew/pkg/errors"
	"github.com/jllopis/riskcrew/pkg/risk"
	"github.com/jllopis/riskcrew/pkg/riskdb"
)

type riskBrief struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Project     string   `json:"project_id"`
	Category    string   `json:"category"`
	Probability float64  `json:"probability"`
	Impact      float64  `json:"impact"`
	Score       int      `json:"score"`
	Level       string   `json:"level"`
	Status      string   `json:"status"`
	Mitigations []string `json:"mitigation_strategies,omitempty"`
}

func brief(r risk.ScoredRisk) riskBrief {
	return riskBrief{
		ID:          r.ID,
		Title:       r.Title,
		Project:     r.ProjectID,
		Category:    r.Category,
		Probability: r.Probability,
		Impact:      r.Impact,
		Score:       r.Score,
		Level:       r.Level,
		Status:      string(r.Status),
		Mitigations: r.Mitigations,
	}
}

func (r *Registry) riskAnalysisTool() *Tool {
	return New(mcp.NewTool(RiskAnalysis,
		mcp.WithDescription("Analyze risks for a project or across all projects: counts per level, trend, top risks and categories."),
		projectArg(),
		daysArg(),
	), func(ctx context.Context, args Args) (any, error) {
		snap, err := r.repo.Snapshot(ctx, args.Project(ctx), args.Int(argDays, 30))
		if err != nil {
			return nil, err
		}
		levels := r.repo.Scoring().LevelNames()
		top := []riskBrief{}
		if len(levels) > 0 {
			highest := levels[len(levels)-1]
			for _, rk := range snap.Risks {
				if rk.Level == highest && len(top) < 3 {
					top = append(top, brief(rk))
				}
			}
		}
		counts := make(map[string]int, len(levels))
		for _, name := range levels {
			counts[strings.ToLower(name)+"_priority_risks"] = snap.LevelCounts[name]
		}
		return map[string]any{
			"project":         snap.Project,
			"total_risks":     snap.TotalRisks,
			"level_counts":    counts,
			"overall_score":   snap.OverallScore,
			"level":           snap.Level.Name,
			"risk_trend":      snap.RiskTrend,
			"mitigation_rate": snap.MitigationRate,
			"top_risks":       top,
			"risk_categories": snap.RiskByCategory,
			"days_back":       snap.DaysBack,
		}, nil
	})
}

func briefs(in []risk.ScoredRisk) []riskBrief {
	out := make([]riskBrief, 0, len(in))
	for _, rk := range in {
		out = append(out, brief(rk))
	}
	return out
}

func (r *Registry) mitigationTool() *Tool {
	return New(mcp.NewTool(MitigationStrategies,
		mcp.WithDescription("List mitigation strategies for the risks of a project, optionally filtered by category or level."),
		projectArg(),
		mcp.WithString("risk_category", mcp.Description("Only risks of this category")),
		mcp.WithString("risk_level", mcp.Description("Only risks at this level, e.g. High")),
	), func(ctx context.Context, args Args) (any, error) {
		project := args.Project(ctx)
		risks, _, err := r.repo.ResolveRisks(ctx, project)
		if err != nil {
			return nil, err
		}
		category, level := args.String("risk_category"), args.String("risk_level")
		var strategies []map[string]any
		for _, rk := range r.repo.Scoring().Score(risks) {
			if category != "" && !strings.EqualFold(rk.Category, category) {
				continue
			}
			if level != "" && !strings.EqualFold(rk.Level, level) {
				continue
			}
			strategies = append(strategies, map[string]any{
				"risk_id":               rk.ID,
				"risk_title":            rk.Title,
				"risk_level":            rk.Level,
				"risk_category":         rk.Category,
				"risk_status":           rk.Status,
				"mitigation_strategies": rk.Mitigations,
			})
		}
		if len(strategies) == 0 {
			return fmt.Sprintf("No risks found matching the specified criteria for project '%s'.", project), nil
		}
		return map[string]any{
			"project":    project,
			"risk_count": len(strategies),
			"strategies": strategies,
		}, nil
	})
}

type riskInput struct {
	Title       string  `json:"title"`
	Category    string  `json:"category"`
	Probability float64 `json:"probability"`
	Impact      float64 `json:"impact"`
	Status      string  `json:"status"`
}

func (r *Registry) calculateScoreTool() *Tool {
	return New(mcp.NewTool(CalculateRiskScore,
		mcp.WithDescription("Calculate the overall risk score (0-100) and level for a project, or for an explicit list of risks."),
		projectArg(),
		mcp.WithArray("risks",
			mcp.Description("Optional risks to score instead of a stored project: objects with title, category, probability, impact and status"),
			mcp.Items(map[string]any{"type": "object"}),
		),
	), func(ctx context.Context, args Args) (any, error) {
		s := r.repo.Scoring()
		var risks []risk.Risk
		scope := args.Project(ctx)
		if raw, ok := args["risks"]; ok && raw != nil {
			data, err := json.Marshal(raw)
			if err != nil {
				return nil, errors.New(errors.CodeInvalidInput, "decode risks", err)
			}
			var inputs []riskInput
			if err := json.Unmarshal(data, &inputs); err != nil {
				return nil, errors.New(errors.CodeInvalidInput, "risks must be a list of objects", err)
			}
			for i, in := range inputs {
				st, err := risk.ParseStatus(in.Status)
				if err != nil {
					return nil, err
				}
				rk := risk.Risk{
					ID:          fmt.Sprintf("input-%d", i+1),
					Title:       in.Title,
					Category:    in.Category,
					Probability: in.Probability,
					Impact:      in.Impact,
					Status:      st,
				}
				n := rk.Normalize()
				if n.Probability < 0 || n.Probability > 1 || n.Impact < 0 || n.Impact > 1 {
					return nil, errors.InvalidInput("risk %d: probability and impact must be in [0,1] or percentages", i+1)
				}
				risks = append(risks, rk)
			}
			scope = "provided risks"
		} else {
			var err error
			if risks, _, err = r.repo.ResolveRisks(ctx, scope); err != nil {
				return nil, err
			}
		}

		score := s.OverallScore(risks)
		level := s.LevelFor(score)
		return map[string]any{
			"scope":         scope,
			"overall_score": score,
			"level":         level.Name,
			"color":         level.Color,
			"risks":         briefs(s.Score(risks)),
		}, nil
	})
}

func (r *Registry) searchRisksTool() *Tool {
	return New(mcp.NewTool(SearchRisks,
		mcp.WithDescription("Semantic search over stored risks."),
		mcp.WithString("query", mcp.Required(), mcp.Description("What to look for, in natural language")),
		mcp.WithString(argProject, mcp.Description("Restrict the search to one project")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 10)")),
	), func(ctx context.Context, args Args) (any, error) {
		projectID := ""
		if name := args.String(argProject); name != "" && !strings.EqualFold(name, allProjects) {
			p, err := r.repo.FindProject(ctx, name)
			if err != nil {
				return nil, err
			}
			projectID = p.ID
		}
		found, err := r.repo.QueryRisks(ctx, args.String("query"), projectID, args.Int("limit", 10))
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"query":   args.String("query"),
			"results": briefs(r.repo.Scoring().Score(found)),
		}, nil
	})
}

func (r *Registry) addRiskTool() *Tool {
	return New(mcp.NewTool(AddRisk,
		mcp.WithDescription("Register a new risk for a project."),
		mcp.WithString(argProject, mcp.Required(), mcp.Description("Project name or id")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Short risk title")),
		mcp.WithString("description", mcp.Description("What could happen and why")),
		mcp.WithString("category", mcp.Description("Risk category, e.g. Technical, Budget, Security")),
		mcp.WithNumber("probability", mcp.Required(), mcp.Description("Likelihood in [0,1] or as a percentage")),
		mcp.WithNumber("impact", mcp.Required(), mcp.Description("Impact in [0,1] or as a percentage")),
		mcp.WithArray("mitigation_strategies", mcp.Description("Planned mitigations"), mcp.Items(map[string]any{"type": "string"})),
	), func(ctx context.Context, args Args) (any, error) {
		p, err := r.repo.FindProject(ctx, args.String(argProject))
		if err != nil {
			return nil, err
		}
		prob, _, err := args.Float("probability")
		if err != nil {
			return nil, err
		}
		impact, _, err := args.Float("impact")
		if err != nil {
			return nil, err
		}
		stored, err := r.repo.StoreRisk(ctx, risk.Risk{
			ProjectID:   p.ID,
			Title:       args.String("title"),
			Description: args.String("description"),
			Category:    args.String("category"),
			Probability: prob,
			Impact:      impact,
			Mitigations: args.Strings("mitigation_strategies"),
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"created": brief(r.repo.Scoring().Score([]risk.Risk{stored})[0])}, nil
	})
}

func (r *Registry) updateRiskTool() *Tool {
	return New(mcp.NewTool(UpdateRisk,
		mcp.WithDescription("Update the probability, impact, status or mitigations of an existing risk."),
		mcp.WithString("risk_id", mcp.Required(), mcp.Description("Id of the risk to update")),
		mcp.WithNumber("probability", mcp.Description("New likelihood in [0,1] or as a percentage")),
		mcp.WithNumber("impact", mcp.Description("New impact in [0,1] or as a percentage")),
		mcp.WithString("status", mcp.Description("Active, Monitoring, Mitigated or Closed"),
			mcp.Enum(string(risk.StatusActive), string(risk.StatusMonitoring), string(risk.StatusMitigated), string(risk.StatusClosed)),
		),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithArray("mitigation_strategies", mcp.Description("Replacement mitigations; an empty list clears them"), mcp.Items(map[string]any{"type": "string"})),
	), func(ctx context.Context, args Args) (any, error) {
		var u riskdb.RiskUpdate
		if v, ok, err := args.Float("probability"); err != nil {
			return nil, err
		} else if ok {
			u.Probability = &v
		}
		if v, ok, err := args.Float("impact"); err != nil {
			return nil, err
		} else if ok {
			u.Impact = &v
		}
		if v := args.String("status"); v != "" {
			u.Status = &v
		}
		if v := args.String("description"); v != "" {
			u.Description = &v
		}
		if v, ok := args["mitigation_strategies"]; ok && v != nil {
			m := args.Strings("mitigation_strategies")
			u.Mitigations = &m
		}

		updated, err := r.repo.UpdateRisk(ctx, args.String("risk_id"), u)
		if err != nil {
			return nil, err
		}
		return map[string]any{"updated": brief(r.repo.Scoring().Score([]risk.Risk{updated})[0])}, nil
	})
}
