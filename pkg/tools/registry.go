// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/jllopis/riskcrew/pkg/config"
	"github.com/jllopis/riskcrew/pkg/core"
	"github.com/jllopis/riskcrew/pkg/errors"
	"github.com/jllopis/riskcrew/pkg/llm"
	"github.com/jllopis/riskcrew/pkg/riskdb"
)

// Tool names.
const (
	ProjectInfo          = "project_info"
	RiskAnalysis         = "risk_analysis"
	MarketAnalysis       = "market_analysis"
	MarketNews           = "market_news"
	MitigationStrategies = "mitigation_strategies"
	ProjectComparison    = "project_comparison"
	CalculateRiskScore   = "calculate_risk_score"
	SearchRisks          = "search_risks"
	AddRisk              = "add_risk"
	UpdateRisk           = "update_risk"
	ProjectHealth        = "project_health"
	RiskTrends           = "risk_trends"
	GenerateRiskReport   = "generate_risk_report"
	ProjectReports       = "project_reports"
)

// AllTools selects every registered tool in Resolve.
const AllTools = "*"

const (
	argProject = "project_name"
	argDays    = "days_back"

	allProjects = config.AllProjects
)

func projectFromContext(ctx context.Context) (string, bool) {
	return core.ProjectFromContext(ctx)
}

// Registry holds the risk tools bound to a repository.
type Registry struct {
	repo  *riskdb.Repository
	now   func() time.Time
	tools map[string]*Tool
	order []string
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry builds the registry with every risk tool.
func NewRegistry(repo *riskdb.Repository, opts ...Option) *Registry {
	r := &Registry{
		repo:  repo,
		now:   time.Now,
		tools: make(map[string]*Tool),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, t := range []*Tool{
		r.projectInfoTool(),
		r.riskAnalysisTool(),
		r.marketAnalysisTool(),
		r.marketNewsTool(),
		r.mitigationTool(),
		r.comparisonTool(),
		r.calculateScoreTool(),
		r.searchRisksTool(),
		r.addRiskTool(),
		r.updateRiskTool(),
		r.healthTool(),
		r.trendsTool(),
		r.reportTool(),
		r.reportsTool(),
	} {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// All returns every tool in registration order.
func (r *Registry) All() []*Tool {
	out := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Names lists the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// Resolve returns the tools with the given names. AllTools selects every
// tool; unknown names are rejected.
func (r *Registry) Resolve(names []string) ([]*Tool, error) {
	var out []*Tool
	seen := make(map[string]bool)
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == AllTools {
			return r.All(), nil
		}
		t, ok := r.tools[name]
		if !ok {
			return nil, errors.InvalidInput("unknown tool %q", name).WithContext("known", r.Names())
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, t)
		}
	}
	return out, nil
}

// Definitions returns the LLM function definitions of tools.
func Definitions(tools []*Tool) []llm.Tool {
	defs := make([]llm.Tool, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, t.Definition())
	}
	return defs
}
