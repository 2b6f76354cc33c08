// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package risk

import (
	"fmt"
	"strings"
	"time"
)

// highExposure is the probability x impact above which a risk gets a
// mitigation section in the report.
const highExposure = 0.5

// FormatReport renders the markdown risk report for a project.
func (s *Scoring) FormatReport(projectName string, risks []Risk, score int, now time.Time) string {
	var b strings.Builder
	level := s.LevelFor(score)

	fmt.Fprintf(&b, "# Risk Report: %s\n\n", projectName)
	fmt.Fprintf(&b, "**Overall Risk Score:** %d/100 (%s)\n\n", score, strings.ToUpper(level.Name))
	fmt.Fprintf(&b, "**Report Generated:** %s\n\n", now.Format(TimeLayout))

	b.WriteString("## Risk Summary by Category\n\n")

	var order []string
	groups := make(map[string][]Risk)
	for _, r := range risks {
		cat := r.Category
		if cat == "" {
			cat = "Uncategorized"
		}
		if _, ok := groups[cat]; !ok {
			order = append(order, cat)
		}
		groups[cat] = append(groups[cat], r)
	}

	for _, cat := range order {
		fmt.Fprintf(&b, "### %s\n\n", cat)
		b.WriteString("| Risk | Probability | Impact | Score | Status |\n")
		b.WriteString("|------|------------|--------|-------|--------|\n")
		for _, r := range groups[cat] {
			n := r.Normalize()
			fmt.Fprintf(&b, "| %s | %.0f%% | %.0f%% | %d | %s |\n",
				titleOr(n.Title), n.Probability*100, n.Impact*100, RiskScore(n), n.Status)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Mitigation Strategies\n\n")
	var high []Risk
	for _, r := range risks {
		if r.Exposure() > highExposure {
			high = append(high, r)
		}
	}
	if len(high) == 0 {
		b.WriteString("No high-priority risks requiring immediate mitigation.\n\n")
		return b.String()
	}
	for _, r := range high {
		fmt.Fprintf(&b, "### %s\n\n", titleOr(r.Title))
		if len(r.Mitigations) == 0 {
			b.WriteString("No mitigation strategy provided.\n\n")
			continue
		}
		for _, m := range r.Mitigations {
			fmt.Fprintf(&b, "- %s\n", m)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Summary renders the short markdown summary shown next to the risk list.
func (s *Scoring) Summary(projectName string, risks []ScoredRisk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### Risk Summary: %s\n\n", projectName)
	if len(risks) == 0 {
		b.WriteString("No risks match the current filters.\n")
		return b.String()
	}

	counts := CountByLevel(risks)
	plain := make([]Risk, 0, len(risks))
	for _, r := range risks {
		plain = append(plain, r.Risk)
	}
	score := s.OverallScore(plain)

	fmt.Fprintf(&b, "- **Total risks:** %d\n", len(risks))
	for i := len(s.Levels) - 1; i >= 0; i-- {
		name := s.Levels[i].Name
		fmt.Fprintf(&b, "- **%s:** %d\n", name, counts[name])
	}
	fmt.Fprintf(&b, "- **Overall score:** %d/100 (%s)\n", score, s.LevelFor(score).Name)
	fmt.Fprintf(&b, "- **Mitigation rate:** %.1f%%\n\n", MitigationRate(plain))

	b.WriteString("**Top risks:**\n\n")
	for i, r := range risks {
		if i == 3 {
			break
		}
		fmt.Fprintf(&b, "%d. %s (%s, score %d, %s)\n", i+1, titleOr(r.Title), r.Level, r.Score, r.Category)
	}
	return b.String()
}

func titleOr(title string) string {
	if strings.TrimSpace(title) == "" {
		return "Unnamed Risk"
	}
	return title
}
