// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent implements the LLM-driven agent loop and its configuration
// options. An agent answers a prompt by talking to a model and calling the
// risk tools the model asks for until it produces a final answer.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/riskcrew/pkg/core"
	"github.com/jllopis/riskcrew/pkg/errors"
	"github.com/jllopis/riskcrew/pkg/llm"
	"github.com/jllopis/riskcrew/pkg/resilience"
	"github.com/jllopis/riskcrew/pkg/telemetry"
	"github.com/jllopis/riskcrew/pkg/tools"
)

// DefaultMaxIterations bounds the tool loop when no limit is configured.
const DefaultMaxIterations = 6

// DefaultToolTimeout bounds a single tool call.
const DefaultToolTimeout = 30 * time.Second

// Agent is a role-playing assistant bound to a model and a tool set.
type Agent struct {
	id            string
	role          string
	goal          string
	backstory     string
	model         string
	temperature   float64
	tools         []*tools.Tool
	toolIndex     map[string]*tools.Tool
	maxIterations int
	toolTimeout   time.Duration

	llm     llm.Provider
	metrics *telemetry.Metrics
	emitter core.EventEmitter
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Option configures an Agent instance.
type Option func(*Agent) error

// New creates an agent with a required id and model provider.
func New(id string, provider llm.Provider, opts ...Option) (*Agent, error) {
	a := &Agent{
		id:            id,
		llm:           provider,
		maxIterations: DefaultMaxIterations,
		toolTimeout:   DefaultToolTimeout,
		temperature:   0.7,
		emitter:       core.NoopEventEmitter{},
		tracer:        telemetry.Tracer("riskcrew/agent"),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(a.id) == "" {
		return nil, errors.InvalidInput("agent id is required")
	}
	if a.llm == nil {
		return nil, errors.InvalidInput("agent %s: llm provider is required", a.id)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.logger = telemetry.Component(a.logger, "agent").With(slog.String("agent_id", a.id))
	a.toolIndex = make(map[string]*tools.Tool, len(a.tools))
	for _, t := range a.tools {
		a.toolIndex[t.Name()] = t
	}
	return a, nil
}

// WithRole sets the agent role.
func WithRole(role string) Option {
	return func(a *Agent) error {
		a.role = role
		return nil
	}
}

// WithGoal sets the goal the agent works towards.
func WithGoal(goal string) Option {
	return func(a *Agent) error {
		a.goal = goal
		return nil
	}
}

// WithBackstory sets the persona description used in the system prompt.
func WithBackstory(backstory string) Option {
	return func(a *Agent) error {
		a.backstory = backstory
		return nil
	}
}

// WithModel sets the model name sent to the provider.
func WithModel(model string) Option {
	return func(a *Agent) error {
		a.model = model
		return nil
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(a *Agent) error {
		if t < 0 || t > 2 {
			return errors.InvalidInput("temperature must be in [0,2], got %v", t)
		}
		a.temperature = t
		return nil
	}
}

// WithTools sets the tools the agent may call.
func WithTools(ts ...*tools.Tool) Option {
	return func(a *Agent) error {
		a.tools = append([]*tools.Tool(nil), ts...)
		return nil
	}
}

// WithMaxIterations bounds the number of model calls per run.
func WithMaxIterations(n int) Option {
	return func(a *Agent) error {
		if n <= 0 {
			return errors.InvalidInput("max iterations must be positive, got %d", n)
		}
		a.maxIterations = n
		return nil
	}
}

// WithToolTimeout bounds each tool call. Zero disables the bound.
func WithToolTimeout(d time.Duration) Option {
	return func(a *Agent) error {
		if d < 0 {
			return errors.InvalidInput("tool timeout must not be negative, got %s", d)
		}
		a.toolTimeout = d
		return nil
	}
}

// WithMetrics attaches the shared metric instruments.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(a *Agent) error {
		a.metrics = m
		return nil
	}
}

// WithEventEmitter receives tool call events.
func WithEventEmitter(e core.EventEmitter) Option {
	return func(a *Agent) error {
		if e != nil {
			a.emitter = e
		}
		return nil
	}
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) error {
		a.logger = l
		return nil
	}
}

// ID returns the agent identifier.
func (a *Agent) ID() string { return a.id }

// Role returns the agent role.
func (a *Agent) Role() string { return a.role }

// Goal returns the agent goal.
func (a *Agent) Goal() string { return a.goal }

// Model returns the configured model name.
func (a *Agent) Model() string { return a.model }

// MaxIterations returns the iteration limit.
func (a *Agent) MaxIterations() int { return a.maxIterations }

// ToolNames lists the tools available to the agent.
func (a *Agent) ToolNames() []string {
	names := make([]string, 0, len(a.tools))
	for _, t := range a.tools {
		names = append(names, t.Name())
	}
	return names
}

// SystemPrompt renders the persona the model is asked to play.
func (a *Agent) SystemPrompt() string {
	var b strings.Builder
	role := a.role
	if role == "" {
		role = a.id
	}
	fmt.Fprintf(&b, "You are %s.", role)
	if a.backstory != "" {
		fmt.Fprintf(&b, " %s", strings.TrimSpace(a.backstory))
	}
	if a.goal != "" {
		fmt.Fprintf(&b, "\n\nYour personal goal is: %s", strings.TrimSpace(a.goal))
	}
	if len(a.tools) > 0 {
		b.WriteString("\n\nYou can use these tools to gather data: ")
		b.WriteString(strings.Join(a.ToolNames(), ", "))
		b.WriteString(". Call a tool whenever you need facts about projects, risks or the market.")
	}
	b.WriteString("\n\nWhen you have enough information, reply with your final answer as plain text.")
	return b.String()
}

// Run answers prompt, calling tools as requested by the model.
func (a *Agent) Run(ctx context.Context, prompt string) (string, error) {
	ctx, span := a.tracer.Start(ctx, "Agent.Run")
	defer span.End()
	span.SetAttributes(telemetry.AgentAttributes(a.id, a.role, a.model, 0)...)

	runID, _ := core.RunID(ctx)
	log := a.logger.With(slog.String("run_id", runID))
	start := time.Now()
	log.InfoContext(ctx, "agent.run.start", slog.Int("tools", len(a.tools)))

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: a.SystemPrompt()},
		{Role: llm.RoleUser, Content: prompt},
	}
	defs := tools.Definitions(a.tools)

	for iter := 1; iter <= a.maxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return "", a.fail(ctx, span, log, errors.New(errors.CodeTimeout, "agent run cancelled", err))
		}
		resp, err := a.chat(ctx, messages, defs, iter)
		if err != nil {
			return "", a.fail(ctx, span, log, err)
		}
		if len(resp.ToolCalls) == 0 {
			answer := strings.TrimSpace(resp.Content)
			span.SetAttributes(attribute.Int(telemetry.AttrAgentIteration, iter))
			span.SetStatus(codes.Ok, "")
			log.InfoContext(ctx, "agent.run.end",
				slog.Int("iterations", iter),
				slog.Duration("duration", time.Since(start)),
			)
			return answer, nil
		}

		for i := range resp.ToolCalls {
			if resp.ToolCalls[i].ID == "" {
				resp.ToolCalls[i].ID = fmt.Sprintf("call_%d_%d", iter, i+1)
			}
		}
		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    a.callTool(ctx, log, call),
				ToolCallID: call.ID,
			})
		}
	}

	return "", a.fail(ctx, span, log, WrapTimeoutError(a.id, a.maxIterations))
}

func (a *Agent) fail(ctx context.Context, span trace.Span, log *slog.Logger, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	a.metrics.RecordError(ctx, err, "agent")
	log.ErrorContext(ctx, "agent.run.error",
		slog.String("error", err.Error()),
		slog.String("code", string(errors.CodeOf(err))),
	)
	return err
}

func (a *Agent) chat(ctx context.Context, messages []llm.Message, defs []llm.Tool, iter int) (*llm.ChatResponse, error) {
	ctx, span := a.tracer.Start(ctx, "Agent.LLM")
	defer span.End()
	span.SetAttributes(telemetry.AgentAttributes(a.id, a.role, a.model, iter)...)

	start := time.Now()
	resp, err := a.llm.Chat(ctx, llm.ChatRequest{
		Model:       a.model,
		Messages:    messages,
		Tools:       defs,
		Temperature: a.temperature,
	})
	a.metrics.RecordLLMLatency(ctx, a.id, a.model, time.Since(start), err == nil && resp != nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, WrapLLMError(err, a.model)
	}
	if resp == nil {
		return nil, WrapLLMError(fmt.Errorf("empty response"), a.model)
	}
	span.SetAttributes(telemetry.LLMAttributes(a.model, "ollama", len(messages), len(resp.ToolCalls))...)
	span.SetAttributes(
		attribute.Int(telemetry.AttrLLMTokensInput, resp.Usage.PromptTokens),
		attribute.Int(telemetry.AttrLLMTokensOutput, resp.Usage.CompletionTokens),
	)
	a.logger.DebugContext(ctx, "agent.llm.response",
		slog.Int("iteration", iter),
		slog.Int("tool_calls", len(resp.ToolCalls)),
	)
	return resp, nil
}

// callTool runs one tool call. Failures are reported back to the model as
// text so it can correct itself.
func (a *Agent) callTool(ctx context.Context, log *slog.Logger, call llm.ToolCall) string {
	name := call.Function.Name
	ctx, span := a.tracer.Start(ctx, "Agent.Tool "+name)
	defer span.End()
	start := time.Now()

	var (
		out string
		err error
	)
	tool, ok := a.toolIndex[name]
	if !ok {
		err = errors.Newf(errors.CodeToolFailure, "unknown tool %q", name).
			WithContext("available", a.ToolNames())
	} else {
		out, err = resilience.WithTimeout(ctx, a.toolTimeout, func(ctx context.Context) (string, error) {
			return tool.Invoke(ctx, call.Function.Arguments)
		})
		if err != nil {
			err = WrapToolError(err, name, call.ID)
		}
	}
	if err != nil {
		out = fmt.Sprintf("Error: %v", err)
		if !ok {
			out += fmt.Sprintf(". Available tools: %s", strings.Join(a.ToolNames(), ", "))
		}
	}

	elapsed := time.Since(start)
	success := err == nil
	span.SetAttributes(telemetry.ToolCallAttributes(name, call.ID, float64(elapsed.Microseconds())/1000, success)...)
	span.SetAttributes(telemetry.ToolCallArgsResult(call.Function.Arguments.String(), out, 500)...)
	a.metrics.RecordToolCall(ctx, name, success)

	runID, _ := core.RunID(ctx)
	payload := map[string]any{"tool": name, "call_id": call.ID, "success": success}
	if success {
		log.InfoContext(ctx, "agent.tool.call",
			slog.String("tool", name),
			slog.String("call_id", call.ID),
			slog.Duration("duration", elapsed),
		)
	} else {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.metrics.RecordError(ctx, err, "tool")
		payload["error"] = err.Error()
		log.WarnContext(ctx, "agent.tool.error",
			slog.String("tool", name),
			slog.String("call_id", call.ID),
			slog.String("error", err.Error()),
		)
	}
	a.emitter.Emit(ctx, core.NewEvent(core.EventToolCalled, runID, a.id, "", payload))
	return out
}
