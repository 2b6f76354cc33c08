// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jllopis/riskcrew/pkg/chat"
	"github.com/jllopis/riskcrew/pkg/config"
	"github.com/jllopis/riskcrew/pkg/core"
	"github.com/jllopis/riskcrew/pkg/crew"
	"github.com/jllopis/riskcrew/pkg/errors"
	"github.com/jllopis/riskcrew/pkg/risk"
)

// Dashboard history range, in days.
const (
	minDays     = 7
	maxDays     = 90
	defaultDays = 30
)

// respondError writes a typed error as {error, code}.
func (s *Server) respondError(c *gin.Context, err error) {
	e := errors.As(err)
	status := e.StatusCode()
	msg := e.Message
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(c.Request.Context(), "web.handler.error",
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
		if e.Err != nil {
			msg = e.Message + ": " + e.Err.Error()
		}
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": e.Code})
}

func (s *Server) index(c *gin.Context) {
	names, err := s.projectNames(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Projects":   names,
		"Levels":     s.deps.Repo.Scoring().LevelNames(),
		"Categories": s.categories(),
		"MinDays":    minDays,
		"MaxDays":    maxDays,
		"Days":       defaultDays,
	})
}

func (s *Server) categories() []string {
	if len(s.deps.Categories) > 0 {
		return s.deps.Categories
	}
	return config.DefaultCategories
}

func (s *Server) projectNames(c *gin.Context) ([]string, error) {
	names, err := s.deps.Repo.ProjectNames(c.Request.Context())
	if err != nil {
		return nil, err
	}
	return append([]string{config.AllProjects}, names...), nil
}

func (s *Server) projects(c *gin.Context) {
	names, err := s.projectNames(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": names})
}

func projectParam(c *gin.Context) string {
	p := strings.TrimSpace(c.Query("project"))
	if p == "" || strings.EqualFold(p, config.AllProjects) {
		return config.AllProjects
	}
	return p
}

// clampDays parses the days parameter, defaulting to 30 and clamping to
// [7,90].
func clampDays(raw string) int {
	days, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return defaultDays
	}
	return max(minDays, min(maxDays, days))
}

func (s *Server) dashboard(c *gin.Context) {
	snap, err := s.deps.Repo.Snapshot(c.Request.Context(), projectParam(c), clampDays(c.Query("days")))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// listParam accepts repeated parameters and comma separated values.
func listParam(c *gin.Context, key string) []string {
	var out []string
	for _, raw := range c.QueryArray(key) {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func matches(set []string, v string) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

type riskSelection struct {
	Project  string            `json:"project"`
	Query    string            `json:"query,omitempty"`
	Matched  int               `json:"matched,omitempty"`
	Fallback bool              `json:"fallback,omitempty"`
	Risks    []risk.ScoredRisk `json:"risks"`
}

// selectRisks applies the project, search and level/category filters. A
// search with no hits falls back to every risk of the project.
func (s *Server) selectRisks(c *gin.Context) (*riskSelection, error) {
	ctx := c.Request.Context()
	project := projectParam(c)
	base, projects, err := s.deps.Repo.ResolveRisks(ctx, project)
	if err != nil {
		return nil, err
	}
	sel := &riskSelection{Project: project}
	if project != config.AllProjects && len(projects) == 1 {
		sel.Project = projects[0].Name
	}

	scoring := s.deps.Repo.Scoring()
	candidates := scoring.Score(base)
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		sel.Query = q
		projectID := ""
		if project != config.AllProjects && len(projects) == 1 {
			projectID = projects[0].ID
		}
		found, err := s.deps.Repo.QueryRisks(ctx, q, projectID, 10)
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			sel.Matched = len(found)
			candidates = scoring.Score(found)
		} else {
			sel.Fallback = true
		}
	}

	levels, categories := listParam(c, "levels"), listParam(c, "categories")
	sel.Risks = make([]risk.ScoredRisk, 0, len(candidates))
	for _, r := range candidates {
		if matches(levels, r.Level) && matches(categories, r.Category) {
			sel.Risks = append(sel.Risks, r)
		}
	}
	return sel, nil
}

func (s *Server) risks(c *gin.Context) {
	sel, err := s.selectRisks(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sel)
}

var csvHeader = []string{
	"id", "project_id", "title", "description", "category", "probability", "impact",
	"score", "level", "status", "mitigation_strategies",
}

func (s *Server) exportCSV(c *gin.Context) {
	sel, err := s.selectRisks(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	filename := fmt.Sprintf("risk_report_%s_%s.csv",
		strings.ToLower(strings.ReplaceAll(sel.Project, " ", "_")),
		s.now().Format("20060102"),
	)
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write(csvHeader)
	for _, r := range sel.Risks {
		_ = w.Write([]string{
			r.ID,
			r.ProjectID,
			r.Title,
			r.Description,
			r.Category,
			strconv.FormatFloat(r.Probability, 'f', -1, 64),
			strconv.FormatFloat(r.Impact, 'f', -1, 64),
			strconv.Itoa(r.Score),
			r.Level,
			string(r.Status),
			strings.Join(r.Mitigations, "; "),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		s.logger.WarnContext(c.Request.Context(), "web.csv.error", slog.String("error", err.Error()))
	}
}

func (s *Server) reportSummary(c *gin.Context) {
	sel, err := s.selectRisks(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"project":  sel.Project,
		"markdown": s.deps.Repo.Scoring().Summary(sel.Project, sel.Risks),
	})
}

type projectRequest struct {
	Project string `json:"project"`
}

func (s *Server) generateReport(c *gin.Context) {
	var req projectRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.respondError(c, errors.New(errors.CodeInvalidInput, "invalid request body", err))
			return
		}
	}
	project := strings.TrimSpace(req.Project)
	if project == "" {
		project = projectParam(c)
	}
	rep, err := s.deps.Tools.GenerateReport(c.Request.Context(), project)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rep)
}

type chatRequest struct {
	Message string `json:"message"`
	Project string `json:"project"`
}

func (s *Server) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, errors.New(errors.CodeInvalidInput, "invalid request body", err))
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		s.respondError(c, errors.InvalidInput("message is required"))
		return
	}
	project := strings.TrimSpace(req.Project)
	if project == "" {
		project = config.AllProjects
	}

	ctx := c.Request.Context()
	if err := s.deps.Guard.Check(ctx, req.Message); err != nil {
		s.respondError(c, err)
		return
	}
	now := s.now().UTC()
	question := chat.Message{Role: chat.RoleUser, Content: req.Message, Project: project, Timestamp: now}
	answer := crew.Assess(ctx, s.deps.Crew, req.Message, project)
	answer = s.deps.Guard.Filter(ctx, answer).Content
	reply := chat.Message{Role: chat.RoleAssistant, Content: answer, Project: project, Timestamp: s.now().UTC()}

	if err := s.deps.History.Append(ctx, question, reply); err != nil {
		s.respondError(c, errors.New(errors.CodeStorage, "save chat history", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

func (s *Server) chatHistory(c *gin.Context) {
	msgs, err := s.deps.History.Messages(c.Request.Context())
	if err != nil {
		s.respondError(c, errors.New(errors.CodeStorage, "load chat history", err))
		return
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (s *Server) clearHistory(c *gin.Context) {
	if err := s.deps.History.Clear(c.Request.Context()); err != nil {
		s.respondError(c, errors.New(errors.CodeStorage, "clear chat history", err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) healthz(c *gin.Context) {
	if s.deps.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": core.HealthHealthy, "components": []core.HealthResult{}})
		return
	}
	results, overall := s.deps.Health.CheckAll(c.Request.Context())
	status := http.StatusOK
	if overall == core.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": overall, "components": results})
}
