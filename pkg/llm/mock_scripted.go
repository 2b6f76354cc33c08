package llm

import (
	"context"
	"errors"
	"sync"
)

// ScriptedProvider returns a pre-defined sequence of responses, which may
// include tool calls. Useful for exercising the agent tool loop.
type ScriptedProvider struct {
	mu        sync.Mutex
	Responses []ChatResponse
	Err       error
	Requests  []ChatRequest
}

// NewScriptedProvider returns a provider that answers with the given texts in order.
func NewScriptedProvider(responses ...string) *ScriptedProvider {
	s := &ScriptedProvider{}
	for _, r := range responses {
		s.Responses = append(s.Responses, ChatResponse{Content: r})
	}
	return s
}

// Chat pops the next scripted response or returns the configured error.
func (s *ScriptedProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Requests = append(s.Requests, req)
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Responses) == 0 {
		return nil, errors.New("scripted provider: no more responses available")
	}

	resp := s.Responses[0]
	s.Responses = s.Responses[1:]
	resp.Usage = Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20}
	return &resp, nil
}

// AddResponse appends a plain text response to the queue.
func (s *ScriptedProvider) AddResponse(content string) *ScriptedProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Responses = append(s.Responses, ChatResponse{Content: content})
	return s
}

// AddToolCall appends a response that asks for a single tool call.
func (s *ScriptedProvider) AddToolCall(id, name, args string) *ScriptedProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Responses = append(s.Responses, ChatResponse{
		ToolCalls: []ToolCall{{
			ID:       id,
			Type:     ToolTypeFunction,
			Function: FunctionCall{Name: name, Arguments: Arguments(args)},
		}},
	})
	return s
}

// CallCount returns how many times Chat has been called.
func (s *ScriptedProvider) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}
