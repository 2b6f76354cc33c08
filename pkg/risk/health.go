// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package risk

import (
	"math"
	"time"
)

// RAG ratings.
const (
	Green = "Green"
	Amber = "Amber"
	Red   = "Red"
)

// Health is the status of a project along schedule, budget and resources.
type Health struct {
	Project             string  `json:"project"`
	Overall             string  `json:"overall"`
	Schedule            string  `json:"schedule"`
	Budget              string  `json:"budget"`
	Resources           string  `json:"resources"`
	BudgetStatus        string  `json:"budget_status"`
	ExpectedCompletion  float64 `json:"expected_completion"`
	Completion          float64 `json:"completion_percentage"`
	BudgetUsed          float64 `json:"budget_used_percentage"`
	ResourceUtilization float64 `json:"resource_utilization"`
	DaysRemaining       int     `json:"days_remaining"`
}

const dateLayout = "2006-01-02"

// ExpectedCompletion is the share of the planned timeline elapsed at now,
// in percent. Unparseable dates yield -1.
func (p Project) ExpectedCompletion(now time.Time) float64 {
	start, err1 := time.Parse(dateLayout, p.StartDate)
	end, err2 := time.Parse(dateLayout, p.EndDate)
	if err1 != nil || err2 != nil || !end.After(start) {
		return -1
	}
	elapsed := now.Sub(start).Hours() / end.Sub(start).Hours()
	return math.Round(math.Max(0, math.Min(1, elapsed))*1000) / 10
}

// BudgetUsed is spent over budget in percent, or -1 without a budget.
func (p Project) BudgetUsed() float64 {
	if p.Budget <= 0 {
		return -1
	}
	return math.Round(p.Spent/p.Budget*1000) / 10
}

// BudgetStatus describes spend against progress.
func (p Project) BudgetStatus() string {
	used := p.BudgetUsed()
	switch {
	case used < 0:
		return "Unknown"
	case used > 100:
		return "Over Budget"
	case used-p.CompletionPercentage > 10:
		return "At Risk"
	default:
		return "On Budget"
	}
}

// AssessHealth rates a project. A gap of up to 10 points between plan and
// actual is Green, up to 25 Amber, beyond that Red. Resource utilisation
// above 85% is Amber and above 95% Red.
func AssessHealth(p Project, now time.Time) Health {
	h := Health{
		Project:             p.Name,
		Completion:          p.CompletionPercentage,
		ExpectedCompletion:  p.ExpectedCompletion(now),
		BudgetUsed:          p.BudgetUsed(),
		BudgetStatus:        p.BudgetStatus(),
		ResourceUtilization: Fraction(p.ResourceUtilization),
	}
	if end, err := time.Parse(dateLayout, p.EndDate); err == nil {
		h.DaysRemaining = int(math.Ceil(end.Sub(now).Hours() / 24))
	}

	h.Schedule = Green
	if h.ExpectedCompletion >= 0 {
		h.Schedule = gapRating(h.ExpectedCompletion - h.Completion)
	}
	h.Budget = Green
	if h.BudgetUsed >= 0 {
		h.Budget = gapRating(h.BudgetUsed - h.Completion)
	}
	switch u := h.ResourceUtilization; {
	case u > 0.95:
		h.Resources = Red
	case u > 0.85:
		h.Resources = Amber
	default:
		h.Resources = Green
	}
	h.Overall = worst(h.Schedule, h.Budget, h.Resources)
	return h
}

func gapRating(gap float64) string {
	switch {
	case gap > 25:
		return Red
	case gap > 10:
		return Amber
	default:
		return Green
	}
}

func worst(ratings ...string) string {
	out := Green
	for _, r := range ratings {
		if r == Red {
			return Red
		}
		if r == Amber {
			out = Amber
		}
	}
	return out
}
