// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package guardrails screens assistant traffic: questions are checked before
// they reach the crew and answers are filtered before they are stored or
// shown.
//
//	guard := guardrails.Default()
//	if err := guard.Check(ctx, question); err != nil {
//	    return err // INVALID_INPUT
//	}
//	answer = guard.Filter(ctx, answer).Content
package guardrails

import (
	"context"
	"log/slog"

	"github.com/jllopis/riskcrew/pkg/errors"
	"github.com/jllopis/riskcrew/pkg/telemetry"
)

// CheckResult is the verdict of an input checker.
type CheckResult struct {
	Blocked bool
	Reason  string
	// Guard is the id of the checker that blocked.
	Guard   string
	Matches []string
}

// FilterResult is the outcome of output filtering.
type FilterResult struct {
	Content    string
	Modified   bool
	Redactions []Redaction
}

// Redaction records one masked span. The original text is not kept.
type Redaction struct {
	Type        string
	Replacement string
	Position    int
}

// InputChecker inspects a question before it is answered.
type InputChecker interface {
	ID() string
	CheckInput(ctx context.Context, input string) CheckResult
}

// OutputFilter rewrites an answer before it is returned.
type OutputFilter interface {
	ID() string
	FilterOutput(ctx context.Context, output string) FilterResult
}

// Guard runs input checkers and output filters in registration order.
// A nil *Guard lets everything through.
type Guard struct {
	checkers []InputChecker
	filters  []OutputFilter
	logger   *slog.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithInputChecker appends an input checker.
func WithInputChecker(c InputChecker) Option {
	return func(g *Guard) { g.checkers = append(g.checkers, c) }
}

// WithOutputFilter appends an output filter.
func WithOutputFilter(f OutputFilter) Option {
	return func(g *Guard) { g.filters = append(g.filters, f) }
}

// WithLogger sets the logger used for blocked and redacted content.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

// New builds a guard with no checks besides the given options.
func New(opts ...Option) *Guard {
	g := &Guard{logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = telemetry.Component(g.logger, "guardrails")
	return g
}

// Default blocks prompt injection and masks contact details.
func Default(opts ...Option) *Guard {
	base := []Option{
		WithInputChecker(NewInjectionDetector()),
		WithOutputFilter(NewPIIMasker()),
	}
	return New(append(base, opts...)...)
}

// Inspect returns the first blocking verdict, or a passing one.
func (g *Guard) Inspect(ctx context.Context, input string) CheckResult {
	if g == nil {
		return CheckResult{}
	}
	for _, c := range g.checkers {
		if ctx.Err() != nil {
			return CheckResult{Blocked: true, Reason: "check cancelled", Guard: "system"}
		}
		res := c.CheckInput(ctx, input)
		if res.Blocked {
			res.Guard = c.ID()
			return res
		}
	}
	return CheckResult{}
}

// Check is Inspect as an error: blocked input yields INVALID_INPUT.
func (g *Guard) Check(ctx context.Context, input string) error {
	res := g.Inspect(ctx, input)
	if !res.Blocked {
		return nil
	}
	g.logger.WarnContext(ctx, "guardrails.input.blocked",
		slog.String("guard", res.Guard),
		slog.Int("matches", len(res.Matches)),
	)
	return errors.Newf(errors.CodeInvalidInput, "message rejected: %s", res.Reason).
		WithContext("guard", res.Guard)
}

// Filter runs every output filter, each on the previous one's result.
func (g *Guard) Filter(ctx context.Context, output string) FilterResult {
	out := FilterResult{Content: output}
	if g == nil {
		return out
	}
	for _, f := range g.filters {
		res := f.FilterOutput(ctx, out.Content)
		if !res.Modified {
			continue
		}
		out.Content = res.Content
		out.Modified = true
		out.Redactions = append(out.Redactions, res.Redactions...)
	}
	if out.Modified {
		g.logger.InfoContext(ctx, "guardrails.output.redacted", slog.Int("redactions", len(out.Redactions)))
	}
	return out
}
