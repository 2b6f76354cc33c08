// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	stderrors "errors"

	"github.com/jllopis/riskcrew/pkg/errors"
)

// WrapLLMError wraps a model failure with the model name. An unavailable
// backend keeps its code so callers can tell outages from bad answers.
func WrapLLMError(err error, model string) *errors.Error {
	if err == nil {
		return nil
	}
	code := errors.CodeLLMError
	switch errors.CodeOf(err) {
	case errors.CodeUnavailable:
		code = errors.CodeUnavailable
	case errors.CodeTimeout:
		code = errors.CodeTimeout
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		code = errors.CodeTimeout
	}
	return errors.New(code, "LLM call failed", err).
		WithContext("model", model).
		WithRecoverable(code != errors.CodeTimeout)
}

// WrapToolError wraps a tool execution error with the call details.
func WrapToolError(err error, toolName, toolCallID string) *errors.Error {
	if err == nil {
		return nil
	}
	if errors.CodeOf(err) != errors.CodeInternal {
		return errors.As(err).
			WithContext("tool_name", toolName).
			WithContext("tool_call_id", toolCallID)
	}
	return errors.New(errors.CodeToolFailure, "tool execution failed", err).
		WithContext("tool_name", toolName).
		WithContext("tool_call_id", toolCallID).
		WithRecoverable(true)
}

// WrapTimeoutError reports an agent loop that ran out of iterations.
func WrapTimeoutError(agentID string, maxIterations int) *errors.Error {
	return errors.Newf(errors.CodeTimeout, "agent %s exceeded %d iterations without a final answer", agentID, maxIterations).
		WithContext("agent_id", agentID).
		WithContext("max_iterations", maxIterations).
		WithRecoverable(false)
}
