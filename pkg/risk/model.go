// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package risk holds the project risk data model, the scoring rules and the
// markdown report rendering.
package risk

import (
	"strings"
	"time"

	"github.com/jllopis/riskcrew/pkg/errors"
)

// Status is the lifecycle state of a risk.
type Status string

const (
	StatusActive     Status = "Active"
	StatusMonitoring Status = "Monitoring"
	StatusMitigated  Status = "Mitigated"
	StatusClosed     Status = "Closed"
)

// ParseStatus resolves a status case-insensitively. Empty input yields Active.
func ParseStatus(s string) (Status, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return StatusActive, nil
	}
	for _, st := range []Status{StatusActive, StatusMonitoring, StatusMitigated, StatusClosed} {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", errors.InvalidInput("unknown risk status %q", s)
}

// Resolved reports whether the risk no longer counts toward exposure.
func (s Status) Resolved() bool {
	return s == StatusMitigated || s == StatusClosed
}

// Project is a monitored IT project.
type Project struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	Description          string  `json:"description,omitempty"`
	Status               string  `json:"status,omitempty"`
	StartDate            string  `json:"start_date,omitempty"`
	EndDate              string  `json:"end_date,omitempty"`
	Budget               float64 `json:"budget,omitempty"`
	Spent                float64 `json:"spent,omitempty"`
	TeamSize             int     `json:"team_size,omitempty"`
	Client               string  `json:"client,omitempty"`
	Industry             string  `json:"industry,omitempty"`
	CompletionPercentage float64 `json:"completion_percentage"`
	ResourceUtilization  float64 `json:"resource_utilization"`
}

// Validate checks the fields required to store a project.
func (p Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.InvalidInput("project name is required")
	}
	if p.CompletionPercentage < 0 || p.CompletionPercentage > 100 {
		return errors.InvalidInput("completion_percentage %v out of range [0,100]", p.CompletionPercentage)
	}
	if p.Budget < 0 || p.Spent < 0 {
		return errors.InvalidInput("budget and spent must not be negative")
	}
	return nil
}

// Risk is an identified project risk. Probability and Impact are fractions
// in [0,1]; values above 1 are read as percentages.
type Risk struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category"`
	Probability float64   `json:"probability"`
	Impact      float64   `json:"impact"`
	Status      Status    `json:"status"`
	Mitigations []string  `json:"mitigation_strategies"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Fraction maps a percentage (>1) to the [0,1] scale.
func Fraction(v float64) float64 {
	if v > 1 {
		return v / 100
	}
	return v
}

// Normalize returns r with probability and impact on the [0,1] scale and a
// default status.
func (r Risk) Normalize() Risk {
	r.Probability = Fraction(r.Probability)
	r.Impact = Fraction(r.Impact)
	if r.Status == "" {
		r.Status = StatusActive
	}
	return r
}

// Validate checks the fields required to store a risk.
func (r Risk) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return errors.InvalidInput("risk title is required")
	}
	if strings.TrimSpace(r.ProjectID) == "" {
		return errors.InvalidInput("risk %q has no project_id", r.Title)
	}
	n := r.Normalize()
	if n.Probability < 0 || n.Probability > 1 {
		return errors.InvalidInput("probability %v out of range", r.Probability).WithContext("field", "probability")
	}
	if n.Impact < 0 || n.Impact > 1 {
		return errors.InvalidInput("impact %v out of range", r.Impact).WithContext("field", "impact")
	}
	if _, err := ParseStatus(string(r.Status)); err != nil {
		return err
	}
	return nil
}

// Exposure is probability times impact on the [0,1] scale.
func (r Risk) Exposure() float64 {
	n := r.Normalize()
	return n.Probability * n.Impact
}

// Market signal types.
const (
	SignalIndustryTrend      = "industry_trend"
	SignalEconomicIndicator  = "economic_indicator"
	SignalTechnologyTrend    = "technology_trend"
	SignalSecurityAlert      = "security_alert"
	SignalRegulatoryChange   = "regulatory_change"
	SignalCompetitorActivity = "competitor_activity"
)

// SignalTypes lists the known market signal types.
var SignalTypes = []string{
	SignalIndustryTrend,
	SignalEconomicIndicator,
	SignalTechnologyTrend,
	SignalSecurityAlert,
	SignalRegulatoryChange,
	SignalCompetitorActivity,
}

// MarketSignal is an external observation that may affect project risk.
type MarketSignal struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Summary   string    `json:"summary"`
	Details   string    `json:"details,omitempty"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks the fields required to store a market signal.
func (m MarketSignal) Validate() error {
	if strings.TrimSpace(m.Summary) == "" {
		return errors.InvalidInput("market signal summary is required")
	}
	if strings.TrimSpace(m.Type) == "" {
		return errors.InvalidInput("market signal type is required")
	}
	return nil
}

// Report is a generated risk report.
type Report struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	ProjectName  string    `json:"project_name"`
	Timestamp    time.Time `json:"timestamp"`
	OverallScore int       `json:"overall_score"`
	Level        string    `json:"level"`
	Summary      string    `json:"summary,omitempty"`
	Content      string    `json:"content,omitempty"`
}

// Validate checks the fields required to store a report.
func (r Report) Validate() error {
	if strings.TrimSpace(r.ProjectID) == "" {
		return errors.InvalidInput("report project_id is required")
	}
	if r.OverallScore < 0 || r.OverallScore > 100 {
		return errors.InvalidInput("overall_score %d out of range [0,100]", r.OverallScore)
	}
	return nil
}

// TimeLayout is the timestamp layout used in text renderings and reports.
const TimeLayout = "2006-01-02 15:04:05"
