package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	rerrors "github.com/jllopis/riskcrew/pkg/errors"
	"github.com/jllopis/riskcrew/pkg/resilience"
	"github.com/jllopis/riskcrew/pkg/telemetry/telemetrytest"
)

func TestMockProvider(t *testing.T) {
	mock := &MockProvider{Response: "Hello world"}
	resp, err := mock.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "Hello world" {
		t.Errorf("Expected 'Hello world', got '%s'", resp.Content)
	}
	if len(mock.Requests()) != 1 {
		t.Errorf("expected request to be recorded")
	}
}

func TestScriptedProvider(t *testing.T) {
	p := NewScriptedProvider().
		AddToolCall("call-1", "risk_analysis", `{"project_name":"Cloud Migration"}`).
		AddResponse("done")

	first, err := p.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if len(first.ToolCalls) != 1 || first.ToolCalls[0].Function.Name != "risk_analysis" {
		t.Fatalf("expected tool call, got %+v", first)
	}
	second, _ := p.Chat(context.Background(), ChatRequest{})
	if second.Content != "done" {
		t.Errorf("expected done, got %q", second.Content)
	}
	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Error("expected error when script is exhausted")
	}
	if p.CallCount() != 3 {
		t.Errorf("expected 3 calls, got %d", p.CallCount())
	}
}

func TestArgumentsAcceptObjectAndString(t *testing.T) {
	var fromObject FunctionCall
	if err := json.Unmarshal([]byte(`{"name":"x","arguments":{"project_name":"ERP"}}`), &fromObject); err != nil {
		t.Fatalf("unmarshal object: %v", err)
	}
	var fromString FunctionCall
	if err := json.Unmarshal([]byte(`{"name":"x","arguments":"{\"project_name\":\"ERP\"}"}`), &fromString); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	for _, fc := range []FunctionCall{fromObject, fromString} {
		m, err := fc.Arguments.Map()
		if err != nil {
			t.Fatalf("map: %v", err)
		}
		if m["project_name"] != "ERP" {
			t.Errorf("expected project_name ERP, got %v", m)
		}
	}

	out, err := json.Marshal(FunctionCall{Name: "x"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"name":"x","arguments":{}}` {
		t.Errorf("unexpected encoding %s", out)
	}
}

func TestOllamaChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("expected non-streaming request")
		}
		if req.Options["temperature"] != 0.2 {
			t.Errorf("expected temperature option, got %v", req.Options)
		}
		if len(req.Tools) != 1 {
			t.Errorf("expected tools to be forwarded")
		}
		_, _ = w.Write([]byte(`{
			"message": {"role": "assistant", "content": "",
				"tool_calls": [{"function": {"name": "project_info", "arguments": {"project_name": "Cloud Migration"}}}]},
			"done": true, "prompt_eval_count": 12, "eval_count": 8
		}`))
	}))
	defer srv.Close()

	p := NewOllama(srv.URL, time.Second)
	resp, err := p.Chat(context.Background(), ChatRequest{
		Model:       "llama3",
		Messages:    []Message{{Role: RoleUser, Content: "status?"}},
		Tools:       []Tool{{Type: ToolTypeFunction, Function: FunctionDef{Name: "project_info"}}},
		Temperature: 0.2,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected one tool call, got %+v", resp)
	}
	args, _ := resp.ToolCalls[0].Function.Arguments.Map()
	if args["project_name"] != "Cloud Migration" {
		t.Errorf("unexpected args %v", args)
	}
	if resp.Usage.TotalTokens != 20 {
		t.Errorf("expected 20 tokens, got %d", resp.Usage.TotalTokens)
	}
}

func TestOllamaChatErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL, time.Second).Chat(context.Background(), ChatRequest{Model: "missing"})
	if !rerrors.IsCode(err, rerrors.CodeLLMError) {
		t.Fatalf("expected LLM_ERROR, got %v", err)
	}
	if rerrors.As(err).Recoverable {
		t.Error("404 should not be recoverable")
	}
}

func TestOllamaPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	if err := NewOllama(srv.URL, time.Second).Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	srv.Close()
	if err := NewOllama(srv.URL, time.Second).Ping(context.Background()); !rerrors.IsCode(err, rerrors.CodeUnavailable) {
		t.Errorf("expected UNAVAILABLE after close, got %v", err)
	}
}

func TestResilientRetriesRecoverable(t *testing.T) {
	calls := 0
	mock := &MockProvider{ChatFunc: func(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
		calls++
		if calls == 1 {
			return nil, rerrors.New(rerrors.CodeLLMError, "busy", nil).WithRecoverable(true)
		}
		return &ChatResponse{Content: "ok"}, nil
	}}
	retry := resilience.DefaultRetryConfig().WithInitialDelay(time.Millisecond)
	rec := telemetrytest.New(t)
	p := NewResilient(mock, retry, resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "llm"})).
		WithMetrics(rec.Metrics)

	resp, err := p.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "ok" || calls != 2 {
		t.Errorf("expected ok after 2 calls, got %q after %d", resp.Content, calls)
	}
	if n := rec.Sum(t, "riskcrew.errors.recovered"); n != 1 {
		t.Errorf("expected 1 recovery recorded, got %d", n)
	}

	if _, err := p.Chat(context.Background(), ChatRequest{}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if n := rec.Sum(t, "riskcrew.errors.recovered"); n != 1 {
		t.Errorf("a first-try success must not count as a recovery, got %d", n)
	}
}

func TestResilientDoesNotRetryPermanent(t *testing.T) {
	calls := 0
	mock := &MockProvider{ChatFunc: func(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
		calls++
		return nil, rerrors.New(rerrors.CodeLLMError, "bad request", errors.New("400"))
	}}
	p := NewResilient(mock, resilience.DefaultRetryConfig().WithInitialDelay(time.Millisecond), nil)
	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected a single call, got %d", calls)
	}
}
