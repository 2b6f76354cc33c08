// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcp exposes the risk tools over the Model Context Protocol and
// provides a client for tool servers speaking it.
package mcp

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/riskcrew/pkg/errors"
	"github.com/jllopis/riskcrew/pkg/telemetry"
	"github.com/jllopis/riskcrew/pkg/tools"
)

const serverInstructions = "Project risk tools: project status and health, risk scoring, " +
	"semantic risk search, market signals and markdown risk reports. " +
	`Pass project_name as a project name, a project id or "All Projects".`

// Server publishes a tool registry as an MCP server.
type Server struct {
	mcpServer *server.MCPServer
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithMetrics records tool call metrics.
func WithMetrics(m *telemetry.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer registers every tool of the registry.
func NewServer(name, version string, registry *tools.Registry, opts ...ServerOption) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(name, version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
			server.WithInstructions(serverInstructions),
		),
		logger: slog.Default(),
		tracer: telemetry.Tracer("riskcrew/mcp"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = telemetry.Component(s.logger, "mcp")
	for _, t := range registry.All() {
		s.RegisterTool(t)
	}
	return s
}

// RegisterTool publishes one tool.
func (s *Server) RegisterTool(t *tools.Tool) {
	s.mcpServer.AddTool(t.Spec(), s.handler(t))
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// HTTPHandler serves the tools over streamable HTTP.
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcpServer)
}

// ToolNames lists the published tools.
func (s *Server) ToolNames() []string {
	listed := s.mcpServer.ListTools()
	names := make([]string, 0, len(listed))
	for name := range listed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tool failures are reported as error results so the calling agent can read
// them; protocol errors are reserved for transport problems.
func (s *Server) handler(t *tools.Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := s.tracer.Start(ctx, "MCP.CallTool", trace.WithAttributes(
			attribute.String(telemetry.AttrToolName, t.Name()),
		))
		defer span.End()

		start := time.Now()
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		out, err := t.Invoke(ctx, args)
		s.metrics.RecordToolCall(ctx, t.Name(), err == nil)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.WarnContext(ctx, "mcp.tool.error",
				slog.String("tool", t.Name()),
				slog.String("code", string(errors.CodeOf(err))),
				slog.String("error", err.Error()),
			)
			return mcp.NewToolResultError(err.Error()), nil
		}
		s.logger.DebugContext(ctx, "mcp.tool.call",
			slog.String("tool", t.Name()),
			slog.Duration("duration", time.Since(start)),
		)
		return mcp.NewToolResultText(out), nil
	}
}

// Serve speaks MCP over the given streams until ctx is cancelled or in is
// closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	s.logger.InfoContext(ctx, "mcp.server.start", slog.Int("tools", len(s.ToolNames())))
	err := stdio.Listen(ctx, in, out)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
