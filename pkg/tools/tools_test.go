// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jllopis/riskcrew/pkg/core"
	"github.com/jllopis/riskcrew/pkg/errors"
	"github.com/jllopis/riskcrew/pkg/llm"
	"github.com/jllopis/riskcrew/pkg/riskdb"
	"github.com/jllopis/riskcrew/pkg/vector"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newRegistry(t *testing.T) (*Registry, *riskdb.Repository) {
	t.Helper()
	clock := func() time.Time { return testNow }
	repo := riskdb.New(vector.NewInMemoryStore(), vector.NewHashEmbedder(512), riskdb.WithClock(clock))
	ctx := context.Background()
	require.NoError(t, repo.Init(ctx))
	_, err := repo.Seed(ctx)
	require.NoError(t, err)
	return NewRegistry(repo, WithClock(clock)), repo
}

func call(t *testing.T, r *Registry, name string, args any) any {
	t.Helper()
	tool, ok := r.Get(name)
	require.True(t, ok, "tool %s not registered", name)
	out, err := tool.Call(context.Background(), args)
	require.NoError(t, err)
	return out
}

func TestRegistryResolve(t *testing.T) {
	r, _ := newRegistry(t)
	assert.Len(t, r.All(), 14)

	all, err := r.Resolve([]string{AllTools})
	require.NoError(t, err)
	assert.Len(t, all, 14)

	set, err := r.Resolve([]string{MarketNews, MarketAnalysis, MarketNews})
	require.NoError(t, err)
	require.Len(t, set, 2)
	assert.Equal(t, MarketNews, set[0].Name())

	_, err = r.Resolve([]string{"web_search"})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidInput))
}

func TestDefinitionsCarrySchema(t *testing.T) {
	r, _ := newRegistry(t)
	tool, _ := r.Get(AddRisk)
	def := tool.Definition()
	assert.Equal(t, llm.ToolTypeFunction, def.Type)
	assert.Equal(t, AddRisk, def.Function.Name)

	data, err := json.Marshal(def.Function.Parameters)
	require.NoError(t, err)
	var schema struct {
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.Equal(t, "object", schema.Type)
	assert.Contains(t, schema.Properties, "probability")
	assert.ElementsMatch(t, []string{"project_name", "title", "probability", "impact"}, schema.Required)
}

func TestProjectInfo(t *testing.T) {
	r, _ := newRegistry(t)
	out := call(t, r, ProjectInfo, map[string]any{"project_name": "cloud migration"})
	info, ok := out.(projectInfo)
	require.True(t, ok, "unexpected result %T", out)
	assert.Equal(t, "p1001", info.ID)
	assert.Equal(t, "On Budget", info.BudgetStatus)
	assert.Equal(t, 100, info.KeyMetrics.OverallRiskScore)
	assert.Equal(t, "High", info.KeyMetrics.RiskLevel)
	assert.Equal(t, 3, info.KeyMetrics.OpenRisks)

	all := call(t, r, ProjectInfo, map[string]any{"project_name": "All Projects"})
	assert.Len(t, all.(map[string]any)["projects"], 3)

	tool, _ := r.Get(ProjectInfo)
	_, err := tool.Call(context.Background(), map[string]any{"project_name": "ERP Implementation"})
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestProjectDefaultsToCrewProject(t *testing.T) {
	r, _ := newRegistry(t)
	tool, _ := r.Get(ProjectHealth)
	ctx := core.WithProject(context.Background(), "Data Center Upgrade")
	out, err := tool.Call(ctx, nil)
	require.NoError(t, err)
	text, err := Render(out)
	require.NoError(t, err)
	assert.Contains(t, text, `"project": "Data Center Upgrade"`)
	assert.Contains(t, text, `"overall": "Red"`)
}

func TestProjectComparison(t *testing.T) {
	r, _ := newRegistry(t)
	out := call(t, r, ProjectComparison, map[string]any{"projects": "Cloud Migration, Unknown, p1003"})
	rows := out.(map[string]any)["projects"].([]comparison)
	require.Len(t, rows, 2)
	assert.Equal(t, "Cloud Migration", rows[0].Name)
	assert.Equal(t, "Data Center Upgrade", rows[1].Name)
	assert.Equal(t, 83, rows[1].OverallScore)
	assert.Len(t, rows[1].TopRiskCategories, 3)

	tool, _ := r.Get(ProjectComparison)
	_, err := tool.Call(context.Background(), map[string]any{"projects": "Foo, Bar"})
	require.True(t, errors.IsCode(err, errors.CodeInvalidInput))
	assert.Contains(t, err.Error(), "Available projects are: Cloud Migration, Data Center Upgrade, Mobile Banking App")
}

func TestRiskAnalysis(t *testing.T) {
	r, _ := newRegistry(t)
	out := call(t, r, RiskAnalysis, map[string]any{"project_name": "Mobile Banking App"}).(map[string]any)
	assert.Equal(t, 2, out["total_risks"])
	assert.Equal(t, 78, out["overall_score"])
	assert.Equal(t, map[string]int{"low_priority_risks": 0, "medium_priority_risks": 2, "high_priority_risks": 0}, out["level_counts"])
	assert.Empty(t, out["top_risks"])
}

func TestMitigationStrategies(t *testing.T) {
	r, _ := newRegistry(t)
	out := call(t, r, MitigationStrategies, map[string]any{"project_name": "Cloud Migration", "risk_category": "security"}).(map[string]any)
	assert.Equal(t, 1, out["risk_count"])

	msg := call(t, r, MitigationStrategies, map[string]any{"project_name": "Mobile Banking App", "risk_level": "High"})
	assert.Equal(t, "No risks found matching the specified criteria for project 'Mobile Banking App'.", msg)
}

func TestCalculateRiskScoreFromList(t *testing.T) {
	r, _ := newRegistry(t)
	out := call(t, r, CalculateRiskScore, `{"risks": [
		{"title": "a", "probability": 0.5, "impact": 0.5},
		{"title": "b", "probability": 60, "impact": 50},
		{"title": "c", "probability": 0.9, "impact": 0.9, "status": "Closed"}
	]}`).(map[string]any)
	assert.Equal(t, 55, out["overall_score"])
	assert.Equal(t, "Medium", out["level"])
	assert.Equal(t, "provided risks", out["scope"])

	tool, _ := r.Get(CalculateRiskScore)
	_, err := tool.Call(context.Background(), map[string]any{"risks": []any{map[string]any{"probability": 150, "impact": 0.5}}})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidInput))
}

func TestAddAndUpdateRisk(t *testing.T) {
	r, repo := newRegistry(t)
	out := call(t, r, AddRisk, `{"project_name":"Mobile Banking App","title":"API rate limits","category":"Technical","probability":"40%","impact":0.5,"mitigation_strategies":"Caching, Backoff"}`)
	created := out.(map[string]any)["created"].(riskBrief)
	assert.Equal(t, "p1002", created.Project)
	assert.Equal(t, 20, created.Score)
	assert.Equal(t, []string{"Caching", "Backoff"}, created.Mitigations)

	risks, err := repo.ProjectRisks(context.Background(), "p1002")
	require.NoError(t, err)
	assert.Len(t, risks, 3)

	out = call(t, r, UpdateRisk, map[string]any{"risk_id": created.ID, "status": "closed", "probability": 0.1})
	updated := out.(map[string]any)["updated"].(riskBrief)
	assert.Equal(t, "Closed", updated.Status)
	assert.Equal(t, 5, updated.Score)
	assert.Equal(t, []string{"Caching", "Backoff"}, updated.Mitigations)

	out = call(t, r, UpdateRisk, map[string]any{"risk_id": created.ID, "mitigation_strategies": []any{}})
	assert.Empty(t, out.(map[string]any)["updated"].(riskBrief).Mitigations)
	stored, err := repo.GetRisk(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Mitigations)

	add, _ := r.Get(AddRisk)
	_, err = add.Call(context.Background(), map[string]any{"project_name": "Mobile Banking App", "probability": 0.2, "impact": 0.2})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidInput))

	upd, _ := r.Get(UpdateRisk)
	_, err = upd.Call(context.Background(), map[string]any{"risk_id": "r9999"})
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestSearchRisksScopedToProject(t *testing.T) {
	r, _ := newRegistry(t)
	out := call(t, r, SearchRisks, map[string]any{"query": "security vulnerabilities", "project_name": "Cloud Migration", "limit": 2}).(map[string]any)
	results := out["results"].([]riskBrief)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 2)
	for _, rk := range results {
		assert.Equal(t, "p1001", rk.Project)
	}
}

func TestMarketAnalysis(t *testing.T) {
	r, _ := newRegistry(t)
	out := call(t, r, MarketAnalysis, nil).(map[string]any)
	assert.Equal(t, 4, out["signal_count"])
	assert.Equal(t, "High", out["market_risk_impact"])
	assert.Len(t, out["security_alerts"], 1)
	assert.Empty(t, out["regulatory_changes"])

	news := call(t, r, MarketNews, map[string]any{"query": "interest rates", "limit": 1}).(map[string]any)
	assert.Len(t, news["results"], 1)
}

func TestReports(t *testing.T) {
	r, _ := newRegistry(t)
	content := call(t, r, GenerateRiskReport, map[string]any{"project_name": "Data Center Upgrade"})
	assert.Contains(t, content, "# Risk Report: Data Center Upgrade")
	assert.Contains(t, content, "**Overall Risk Score:** 83/100 (HIGH)")

	_, err := r.GenerateReport(context.Background(), "All Projects")
	require.NoError(t, err)

	out := call(t, r, ProjectReports, map[string]any{"project_name": "p1003"}).(map[string]any)
	reports := out["reports"].([]reportBrief)
	require.Len(t, reports, 1)
	assert.Equal(t, 83, reports[0].OverallScore)
	assert.Equal(t, "Data Center Upgrade", reports[0].ProjectName)

	out = call(t, r, ProjectReports, map[string]any{"project_name": "all projects"}).(map[string]any)
	assert.Len(t, out["reports"], 1)
}

func TestInvokeRendersJSON(t *testing.T) {
	r, _ := newRegistry(t)
	tool, _ := r.Get(RiskTrends)
	text, err := tool.Invoke(context.Background(), llm.Arguments(`{"project_name":"Cloud Migration","days_back":"7"}`))
	require.NoError(t, err)
	assert.Contains(t, text, `"days_back": 7`)

	search, _ := r.Get(SearchRisks)
	_, err = search.Invoke(context.Background(), map[string]any{"query": "  "})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidInput))
}

func TestArgs(t *testing.T) {
	a := Args{"n": "12.5%", "s": 3.0, "list": []any{"a", " b ", ""}, "bad": "x"}
	f, ok, err := a.Float("n")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 12.5, f)
	assert.Equal(t, "3", a.String("s"))
	assert.Equal(t, []string{"a", "b"}, a.Strings("list"))
	assert.Equal(t, 7, a.Int("bad", 7))
	_, _, err = a.Float("bad")
	assert.Error(t, err)
}
