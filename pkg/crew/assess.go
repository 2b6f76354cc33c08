// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package crew

import (
	"context"
	"log/slog"

	"github.com/jllopis/riskcrew/pkg/errors"
	"github.com/jllopis/riskcrew/pkg/resilience"
)

// Chat fallback answers.
const (
	UnavailableMessage = "I'm having trouble connecting to the risk analysis system. Please try again later."
	FailurePrefix      = "I encountered an error while analyzing your request: "
)

// Assess answers a chat question with a crew run. It never fails: a missing
// or unreachable crew and failed runs produce a readable message instead.
func Assess(ctx context.Context, r Runner, query, project string) string {
	answer, _ := resilience.WithFallback(ctx,
		func(ctx context.Context) (string, error) {
			return kickoff(ctx, r, query, project)
		},
		resilience.Chain(
			onCode(errors.CodeUnavailable, resilience.Static(UnavailableMessage)),
			failureMessage,
		),
	)
	return answer
}

func kickoff(ctx context.Context, r Runner, query, project string) (string, error) {
	if r == nil {
		return "", errors.New(errors.CodeUnavailable, "no crew configured", nil)
	}
	if c, ok := r.(*Crew); ok && c == nil {
		return "", errors.New(errors.CodeUnavailable, "no crew configured", nil)
	}
	res, err := r.Kickoff(ctx, query, project)
	if err != nil {
		slog.WarnContext(ctx, "crew.assess.error", slog.String("error", err.Error()))
		return "", err
	}
	if res == nil || res.Final == "" {
		return "", errors.New(errors.CodeUnavailable, "crew returned no answer", nil)
	}
	return res.Final, nil
}

// onCode applies fb only to errors carrying code and passes others on.
func onCode(code errors.ErrorCode, fb resilience.FallbackFunc[string]) resilience.FallbackFunc[string] {
	return func(ctx context.Context, err error) (string, error) {
		if !errors.IsCode(err, code) {
			return "", err
		}
		return fb(ctx, err)
	}
}

func failureMessage(_ context.Context, err error) (string, error) {
	return FailurePrefix + err.Error(), nil
}
