// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package riskdb

import (
	"fmt"
	"strings"

	"github.com/jllopis/riskcrew/pkg/risk"
)

// The text renderings below are what gets embedded for each record kind.

func projectText(p risk.Project) string {
	return fmt.Sprintf("Project %s (ID: %s): Status: %s. Budget: %s. Timeline: %s to %s. Description: %s.",
		p.Name, p.ID,
		orUnknown(p.Status),
		budgetText(p.Budget),
		orUnknown(p.StartDate), orUnknown(p.EndDate),
		orDefault(p.Description, "No description"),
	)
}

func riskText(r risk.Risk) string {
	mitigation := "No mitigation strategy"
	if len(r.Mitigations) > 0 {
		mitigation = strings.Join(r.Mitigations, "; ")
	}
	return fmt.Sprintf("Risk: %s (ID: %s) for Project ID %s. Category: %s. Probability: %g. Impact: %g. Description: %s. Mitigation: %s.",
		r.Title, r.ID, r.ProjectID,
		orUnknown(r.Category),
		r.Probability, r.Impact,
		orDefault(r.Description, "No description"),
		mitigation,
	)
}

func marketText(m risk.MarketSignal) string {
	return fmt.Sprintf("Market Data (ID: %s): Type: %s. Time: %s. Summary: %s. Details: %s.",
		m.ID, orDefault(m.Type, "generic"),
		m.Timestamp.Format(risk.TimeLayout),
		orDefault(m.Summary, "No summary"),
		orDefault(m.Details, "No details"),
	)
}

func reportText(r risk.Report) string {
	text := fmt.Sprintf("Risk Report (ID: %s) for Project ID %s. Generated: %s. Overall Risk Score: %d. Summary: %s.",
		r.ID, r.ProjectID,
		r.Timestamp.Format(risk.TimeLayout),
		r.OverallScore,
		orDefault(r.Summary, "No summary"),
	)
	if r.Content != "" {
		text += "\n\nContent: " + r.Content
	}
	return text
}

func budgetText(b float64) string {
	if b <= 0 {
		return "Unknown"
	}
	return fmt.Sprintf("%.0f", b)
}

func orUnknown(s string) string {
	return orDefault(s, "Unknown")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
