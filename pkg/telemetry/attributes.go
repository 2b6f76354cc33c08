// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides logging, tracing and metrics for riskcrew.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys used on riskcrew spans and metrics.
const (
	AttrAgentID        = "riskcrew.agent.id"
	AttrAgentRole      = "riskcrew.agent.role"
	AttrAgentModel     = "riskcrew.agent.model"
	AttrAgentIteration = "riskcrew.agent.iteration"

	AttrCrewRunID   = "riskcrew.crew.run_id"
	AttrCrewProcess = "riskcrew.crew.process"

	AttrTaskID     = "riskcrew.task.id"
	AttrTaskStatus = "riskcrew.task.status"

	AttrToolName       = "riskcrew.tool.name"
	AttrToolCallID     = "riskcrew.tool.call_id"
	AttrToolArgs       = "riskcrew.tool.arguments"
	AttrToolResult     = "riskcrew.tool.result"
	AttrToolDurationMs = "riskcrew.tool.duration_ms"
	AttrToolSuccess    = "riskcrew.tool.success"

	AttrProject    = "riskcrew.project"
	AttrQuery      = "riskcrew.query"
	AttrRiskLevel  = "riskcrew.risk.level"
	AttrRiskScore  = "riskcrew.risk.score"
	AttrNamespace  = "riskcrew.vector.namespace"
	AttrComponent  = "component"
	AttrErrorCode  = "error.code"
	AttrCacheHit   = "riskcrew.cache.hit"

	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMMessages     = "gen_ai.request.messages"
	AttrLLMToolCalls    = "gen_ai.tool_calls"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
)

// AgentAttributes returns common attributes for agent spans.
func AgentAttributes(agentID, role, model string, iteration int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrAgentID, agentID),
	}
	if role != "" {
		attrs = append(attrs, attribute.String(AttrAgentRole, role))
	}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrAgentModel, model))
	}
	if iteration > 0 {
		attrs = append(attrs, attribute.Int(AttrAgentIteration, iteration))
	}
	return attrs
}

// CrewAttributes returns attributes for a crew kickoff span.
func CrewAttributes(runID, process, project, query string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrCrewRunID, runID),
		attribute.String(AttrCrewProcess, process),
		attribute.String(AttrProject, project),
		attribute.String(AttrQuery, truncate(query, 200)),
	}
}

// ToolCallAttributes returns attributes for a tool call span.
func ToolCallAttributes(name, callID string, durationMs float64, success bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrToolName, name),
		attribute.String(AttrToolCallID, callID),
		attribute.Float64(AttrToolDurationMs, durationMs),
		attribute.Bool(AttrToolSuccess, success),
	}
}

// ToolCallArgsResult returns attributes with tool arguments and result, truncated to maxLen.
func ToolCallArgsResult(args, result string, maxLen int) []attribute.KeyValue {
	if maxLen <= 0 {
		maxLen = 500
	}
	attrs := []attribute.KeyValue{}
	if args != "" {
		attrs = append(attrs, attribute.String(AttrToolArgs, truncate(args, maxLen)))
	}
	if result != "" {
		attrs = append(attrs, attribute.String(AttrToolResult, truncate(result, maxLen)))
	}
	return attrs
}

// LLMAttributes returns attributes for LLM call spans.
func LLMAttributes(model, provider string, msgCount, toolCallCount int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrLLMModel, model),
		attribute.Int(AttrLLMMessages, msgCount),
	}
	if provider != "" {
		attrs = append(attrs, attribute.String(AttrLLMProvider, provider))
	}
	if toolCallCount > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMToolCalls, toolCallCount))
	}
	return attrs
}

// TaskAttributes returns attributes for task tracking.
func TaskAttributes(taskID, status string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	if taskID != "" {
		attrs = append(attrs, attribute.String(AttrTaskID, taskID))
	}
	if status != "" {
		attrs = append(attrs, attribute.String(AttrTaskStatus, status))
	}
	return attrs
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
