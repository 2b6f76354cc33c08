// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"context"
	"regexp"
)

var injectionPatterns = []string{
	`(?i)(ignore|disregard|forget|override)\s+(all\s+)?(the\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`,
	`(?i)you\s+are\s+now\s+(a|an)\s+`,
	`(?i)pretend\s+(you\s+are|to\s+be)\s+`,
	`(?i)(what\s+(is|are)|show\s+me|reveal|print|display)\s+your\s+(system\s+)?(prompt|instructions?)`,
	`(?i)do\s+anything\s+now`,
	`(?i)\bjailbreak`,
	`(?i)bypass\s+(the\s+)?(safety|content|filter)`,
	`(?i)(developer|debug|sudo|admin)\s+mode`,
	`(?i)\[/?INST\]`,
	`(?i)<</?SYS>>`,
	`<\|[a-z_]+\|>`,
}

// InjectionDetector blocks questions that try to override the agents'
// instructions.
type InjectionDetector struct {
	patterns []*regexp.Regexp
}

// NewInjectionDetector compiles the built-in patterns plus extra.
func NewInjectionDetector(extra ...string) *InjectionDetector {
	d := &InjectionDetector{}
	for _, p := range append(append([]string{}, injectionPatterns...), extra...) {
		if re, err := regexp.Compile(p); err == nil {
			d.patterns = append(d.patterns, re)
		}
	}
	return d
}

// ID implements InputChecker.
func (d *InjectionDetector) ID() string { return "prompt-injection" }

// CheckInput implements InputChecker.
func (d *InjectionDetector) CheckInput(_ context.Context, input string) CheckResult {
	var matches []string
	for _, re := range d.patterns {
		if m := re.FindString(input); m != "" {
			matches = append(matches, m)
		}
	}
	if len(matches) == 0 {
		return CheckResult{}
	}
	return CheckResult{Blocked: true, Reason: "potential prompt injection", Matches: matches}
}
