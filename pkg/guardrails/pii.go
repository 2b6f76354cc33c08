// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"context"
	"regexp"
)

type piiRule struct {
	kind string
	re   *regexp.Regexp
	mask string
}

// Project reports quote dates, scores and budgets, so only contact and card
// data is masked. Cards come first because their digits also look like phones.
var piiRules = []piiRule{
	{"credit_card", regexp.MustCompile(`\b[0-9]{4}[- ]?[0-9]{4}[- ]?[0-9]{4}[- ]?[0-9]{4}\b`), "[CREDIT_CARD]"},
	{"email", regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), "[EMAIL]"},
	{"phone", regexp.MustCompile(`\+[0-9]{1,3}[-. ]?\(?[0-9]{2,4}\)?[-. ]?[0-9]{3}[-. ]?[0-9]{3,4}\b`), "[PHONE]"},
	{"phone", regexp.MustCompile(`\(?\b[0-9]{3}\)?[-. ][0-9]{3}[-. ][0-9]{4}\b`), "[PHONE]"},
}

// PIIMasker replaces emails, phone numbers and card numbers with placeholders.
type PIIMasker struct {
	rules []piiRule
}

// NewPIIMasker returns a masker with the built-in rules.
func NewPIIMasker() *PIIMasker {
	return &PIIMasker{rules: piiRules}
}

// ID implements OutputFilter.
func (m *PIIMasker) ID() string { return "pii-mask" }

// FilterOutput implements OutputFilter.
func (m *PIIMasker) FilterOutput(_ context.Context, output string) FilterResult {
	res := FilterResult{Content: output}
	for _, rule := range m.rules {
		locs := rule.re.FindAllStringIndex(res.Content, -1)
		if len(locs) == 0 {
			continue
		}
		for _, loc := range locs {
			res.Redactions = append(res.Redactions, Redaction{Type: rule.kind, Replacement: rule.mask, Position: loc[0]})
		}
		res.Content = rule.re.ReplaceAllLiteralString(res.Content, rule.mask)
		res.Modified = true
	}
	return res
}
