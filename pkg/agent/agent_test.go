// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/riskcrew/pkg/core"
	"github.com/jllopis/riskcrew/pkg/errors"
	"github.com/jllopis/riskcrew/pkg/llm"
	"github.com/jllopis/riskcrew/pkg/telemetry/telemetrytest"
	"github.com/jllopis/riskcrew/pkg/tools"
)

func echoTool(calls *int) *tools.Tool {
	return tools.New(mcp.NewTool("echo",
		mcp.WithDescription("Echo the text back"),
		mcp.WithString("text", mcp.Required()),
	), func(_ context.Context, args tools.Args) (any, error) {
		*calls++
		return "echo: " + args.String("text"), nil
	})
}

func failingTool() *tools.Tool {
	return tools.New(mcp.NewTool("broken"), func(context.Context, tools.Args) (any, error) {
		return nil, fmt.Errorf("database offline")
	})
}

func TestNewValidation(t *testing.T) {
	if _, err := New("", &llm.MockProvider{}); !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected invalid input for empty id, got %v", err)
	}
	if _, err := New("a", nil); !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected invalid input for nil provider, got %v", err)
	}
	if _, err := New("a", &llm.MockProvider{}, WithMaxIterations(0)); err == nil {
		t.Fatal("expected error for zero iterations")
	}
	if _, err := New("a", &llm.MockProvider{}, WithTemperature(3)); err == nil {
		t.Fatal("expected error for temperature out of range")
	}
	if _, err := New("a", &llm.MockProvider{}, WithToolTimeout(-time.Second)); err == nil {
		t.Fatal("expected error for negative tool timeout")
	}
}

func TestRunPlainAnswer(t *testing.T) {
	provider := &llm.MockProvider{Response: "  All good.  "}
	a, err := New("risk_manager", provider,
		WithRole("Risk Manager"),
		WithGoal("Keep projects safe"),
		WithBackstory("You have managed risk for years."),
		WithModel("llama3"),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := a.Run(context.Background(), "How are we doing?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "All good." {
		t.Fatalf("unexpected answer %q", out)
	}

	reqs := provider.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	req := reqs[0]
	if req.Model != "llama3" {
		t.Errorf("model = %q", req.Model)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != llm.RoleSystem || req.Messages[1].Content != "How are we doing?" {
		t.Fatalf("unexpected messages %+v", req.Messages)
	}
	system := req.Messages[0].Content
	for _, want := range []string{"You are Risk Manager.", "You have managed risk for years.", "Your personal goal is: Keep projects safe"} {
		if !strings.Contains(system, want) {
			t.Errorf("system prompt missing %q: %s", want, system)
		}
	}
	if len(req.Tools) != 0 {
		t.Errorf("expected no tool definitions, got %d", len(req.Tools))
	}
}

func TestRunCallsTools(t *testing.T) {
	calls := 0
	provider := llm.NewScriptedProvider().
		AddToolCall("c1", "echo", `{"text":"hello"}`).
		AddResponse("done")

	var mu sync.Mutex
	var events []core.Event
	emitter := core.EmitterFunc(func(_ context.Context, e core.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})

	a, err := New("tracker", provider, WithTools(echoTool(&calls)), WithEventEmitter(emitter))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := a.Run(core.WithRunID(context.Background(), "run-1"), "say hello")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "done" || calls != 1 {
		t.Fatalf("out=%q calls=%d", out, calls)
	}
	if provider.CallCount() != 2 {
		t.Fatalf("expected 2 llm calls, got %d", provider.CallCount())
	}

	second := provider.Requests[1]
	if len(second.Tools) != 1 || second.Tools[0].Function.Name != "echo" {
		t.Fatalf("tool definitions not sent: %+v", second.Tools)
	}
	last := second.Messages[len(second.Messages)-1]
	if last.Role != llm.RoleTool || last.ToolCallID != "c1" || last.Content != "echo: hello" {
		t.Fatalf("unexpected tool message %+v", last)
	}
	if len(events) != 1 || events[0].Type != core.EventToolCalled || events[0].RunID != "run-1" {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestRunReportsToolErrorsToModel(t *testing.T) {
	calls := 0
	provider := llm.NewScriptedProvider().
		AddToolCall("c1", "web_search", `{}`).
		AddToolCall("c2", "broken", `{}`).
		AddToolCall("c3", "echo", `{}`).
		AddResponse("recovered")

	a, err := New("analyst", provider, WithTools(echoTool(&calls), failingTool()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := a.Run(context.Background(), "go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "recovered" {
		t.Fatalf("unexpected answer %q", out)
	}

	msgs := provider.Requests[3].Messages
	var toolMsgs []string
	for _, m := range msgs {
		if m.Role == llm.RoleTool {
			toolMsgs = append(toolMsgs, m.Content)
		}
	}
	if len(toolMsgs) != 3 {
		t.Fatalf("expected 3 tool messages, got %d", len(toolMsgs))
	}
	if !strings.Contains(toolMsgs[0], `unknown tool "web_search"`) || !strings.Contains(toolMsgs[0], "Available tools: echo, broken") {
		t.Errorf("unknown tool message: %s", toolMsgs[0])
	}
	if !strings.Contains(toolMsgs[1], "TOOL_FAILURE") || !strings.Contains(toolMsgs[1], "database offline") {
		t.Errorf("tool failure message: %s", toolMsgs[1])
	}
	if !strings.Contains(toolMsgs[2], "INVALID_INPUT") || calls != 0 {
		t.Errorf("missing argument message: %s (calls=%d)", toolMsgs[2], calls)
	}
}

func TestRunMaxIterations(t *testing.T) {
	calls := 0
	provider := llm.NewScriptedProvider()
	for i := 0; i < 3; i++ {
		provider.AddToolCall("", "echo", `{"text":"again"}`)
	}
	a, err := New("looper", provider, WithTools(echoTool(&calls)), WithMaxIterations(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = a.Run(context.Background(), "loop")
	if !errors.IsCode(err, errors.CodeTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
	if provider.CallCount() != 2 || calls != 2 {
		t.Fatalf("llm calls=%d tool calls=%d", provider.CallCount(), calls)
	}
	if id := provider.Requests[1].Messages[3].ToolCallID; id != "call_1_1" {
		t.Errorf("generated call id = %q", id)
	}
}

func TestRunLLMFailure(t *testing.T) {
	provider := &llm.MockProvider{Err: errors.New(errors.CodeUnavailable, "ollama unreachable", nil)}
	a, err := New("scorer", provider)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = a.Run(context.Background(), "score")
	if !errors.IsCode(err, errors.CodeUnavailable) {
		t.Fatalf("expected UNAVAILABLE, got %v", err)
	}

	a, _ = New("scorer", &llm.FailingMockProvider{})
	if _, err := a.Run(context.Background(), "score"); !errors.IsCode(err, errors.CodeLLMError) {
		t.Fatalf("expected LLM_ERROR, got %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	a, _ := New("x", &llm.MockProvider{Response: "never"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.Run(ctx, "hi"); !errors.IsCode(err, errors.CodeTimeout) {
		t.Fatalf("expected TIMEOUT on cancelled context, got %v", err)
	}
}

func TestRunToolTimeout(t *testing.T) {
	slow := tools.New(mcp.NewTool("slow"), func(ctx context.Context, _ tools.Args) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	provider := llm.NewScriptedProvider().
		AddToolCall("c1", "slow", `{}`).
		AddResponse("gave up on slow")

	a, err := New("analyst", provider, WithTools(slow), WithToolTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := a.Run(context.Background(), "go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "gave up on slow" {
		t.Fatalf("unexpected answer %q", out)
	}
	msgs := provider.Requests[1].Messages
	last := msgs[len(msgs)-1]
	if last.Role != llm.RoleTool || !strings.HasPrefix(last.Content, "Error: ") || !strings.Contains(last.Content, "TIMEOUT") {
		t.Fatalf("expected a timeout tool message, got %+v", last)
	}
}

func TestRunRecordsLLMLatency(t *testing.T) {
	rec := telemetrytest.New(t)
	calls := 0
	provider := llm.NewScriptedProvider().
		AddToolCall("c1", "echo", `{"text":"hi"}`).
		AddResponse("done")

	a, err := New("risk_analyst", provider,
		WithModel("llama3.1"),
		WithTools(echoTool(&calls)),
		WithMetrics(rec.Metrics),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.Run(context.Background(), "go"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := rec.Sum(t, "riskcrew.llm.latency"); n != 2 {
		t.Fatalf("expected 2 model calls recorded, got %d", n)
	}
	if n := rec.Sum(t, "riskcrew.tool.calls"); n != 1 {
		t.Fatalf("expected 1 tool call recorded, got %d", n)
	}
}
