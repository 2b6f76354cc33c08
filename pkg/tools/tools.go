// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package tools implements the risk tools the agents call. Each tool is
// described by an MCP tool definition, so the same schema feeds the LLM
// function definitions and the MCP server.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/riskcrew/pkg/errors"
	"github.com/jllopis/riskcrew/pkg/llm"
)

// Handler executes a tool with normalized arguments.
type Handler func(ctx context.Context, args Args) (any, error)

// Tool is a named, schema-described operation over the risk data.
type Tool struct {
	spec    mcp.Tool
	handler Handler
}

// New builds a tool from an MCP definition and a handler.
func New(spec mcp.Tool, handler Handler) *Tool {
	return &Tool{spec: spec, handler: handler}
}

// Name returns the tool name.
func (t *Tool) Name() string { return t.spec.Name }

// Description returns the tool description.
func (t *Tool) Description() string { return t.spec.Description }

// Spec returns the MCP tool definition.
func (t *Tool) Spec() mcp.Tool { return t.spec }

// Definition returns the LLM function definition for this tool.
func (t *Tool) Definition() llm.Tool {
	var params any = t.spec.InputSchema
	if t.spec.RawInputSchema != nil {
		params = t.spec.RawInputSchema
	}
	return llm.Tool{
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionDef{
			Name:        t.spec.Name,
			Description: t.spec.Description,
			Parameters:  params,
		},
	}
}

// Call runs the tool. input may be a map, raw JSON or a JSON string.
func (t *Tool) Call(ctx context.Context, input any) (any, error) {
	args, err := normalizeArgs(input)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "invalid tool arguments", err).WithContext("tool", t.Name())
	}
	if err := t.validateRequired(args); err != nil {
		return nil, err
	}
	out, err := t.handler(ctx, args)
	if err != nil {
		if errors.CodeOf(err) == errors.CodeInternal {
			return nil, errors.New(errors.CodeToolFailure, "tool "+t.Name()+" failed", err).WithRecoverable(true)
		}
		return nil, err
	}
	return out, nil
}

// Invoke runs the tool and renders its result as text: strings are returned
// as is and anything else is encoded as indented JSON.
func (t *Tool) Invoke(ctx context.Context, input any) (string, error) {
	out, err := t.Call(ctx, input)
	if err != nil {
		return "", err
	}
	return Render(out)
}

// Render encodes a tool result as text.
func Render(out any) (string, error) {
	if s, ok := out.(string); ok {
		return s, nil
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", errors.New(errors.CodeToolFailure, "encode tool result", err)
	}
	return string(data), nil
}

func (t *Tool) validateRequired(args Args) error {
	for _, key := range t.spec.InputSchema.Required {
		v, ok := args[key]
		if !ok || v == nil {
			return errors.InvalidInput("missing required argument %q", key).WithContext("tool", t.Name())
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			return errors.InvalidInput("argument %q must not be empty", key).WithContext("tool", t.Name())
		}
	}
	return nil
}

func normalizeArgs(input any) (Args, error) {
	switch value := input.(type) {
	case nil:
		return Args{}, nil
	case Args:
		return value, nil
	case map[string]any:
		return Args(value), nil
	case llm.Arguments:
		m, err := value.Map()
		return Args(m), err
	case json.RawMessage:
		return decodeArgs(value)
	case []byte:
		return decodeArgs(value)
	case string:
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return Args{}, nil
		}
		if strings.HasPrefix(trimmed, "{") {
			return decodeArgs([]byte(trimmed))
		}
		return Args{"input": value}, nil
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("unsupported argument type %T", input)
		}
		return decodeArgs(encoded)
	}
}

func decodeArgs(data []byte) (Args, error) {
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if decoded == nil {
		decoded = map[string]any{}
	}
	return Args(decoded), nil
}

// Args are decoded tool arguments. Models are loose with types, so the
// accessors accept numbers as strings and lists as comma separated text.
type Args map[string]any

// String returns a trimmed string argument.
func (a Args) String(key string) string {
	switch v := a[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Float returns a numeric argument and whether it was present.
func (a Args) Float(key string) (float64, bool, error) {
	switch v := a[key].(type) {
	case nil:
		return 0, false, nil
	case float64:
		return v, true, nil
	case int:
		return float64(v), true, nil
	case json.Number:
		f, err := v.Float64()
		return f, err == nil, err
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(v), "%")
		if s == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, errors.InvalidInput("argument %q must be a number, got %q", key, v)
		}
		return f, true, nil
	default:
		return 0, false, errors.InvalidInput("argument %q must be a number", key)
	}
}

// Int returns an integer argument or def when absent or invalid.
func (a Args) Int(key string, def int) int {
	f, ok, err := a.Float(key)
	if !ok || err != nil {
		return def
	}
	return int(f)
}

// Strings returns a list argument.
func (a Args) Strings(key string) []string {
	var raw []string
	switch v := a[key].(type) {
	case []any:
		for _, item := range v {
			raw = append(raw, fmt.Sprint(item))
		}
	case []string:
		raw = v
	case string:
		raw = strings.Split(v, ",")
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Project returns the project_name argument, defaulting to the project of
// the running crew and then to All Projects.
func (a Args) Project(ctx context.Context) string {
	if p := a.String(argProject); p != "" {
		if strings.EqualFold(p, allProjects) {
			return allProjects
		}
		return p
	}
	if p, ok := projectFromContext(ctx); ok {
		return p
	}
	return allProjects
}
