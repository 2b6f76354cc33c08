// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/riskcrew/pkg/errors"
	"github.com/jllopis/riskcrew/pkg/resilience"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultCacheTTL = 30 * time.Second
	clientName      = "riskcrew-client"
)

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRetry sets the retry policy for transport failures.
func WithRetry(rc resilience.RetryConfig) ClientOption {
	return func(c *Client) { c.retry = rc }
}

// WithToolCacheTTL sets the tool list cache TTL. Use 0 to disable caching.
func WithToolCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		if ttl >= 0 {
			c.cacheTTL = ttl
		}
	}
}

// Client calls tools on an MCP server.
type Client struct {
	mcpClient client.MCPClient
	timeout   time.Duration
	retry     resilience.RetryConfig
	cacheTTL  time.Duration
	now       func() time.Time

	mu          sync.Mutex
	toolsCache  []mcp.Tool
	cacheExpiry time.Time
}

// NewClient wraps an initialized MCP client.
func NewClient(c client.MCPClient, opts ...ClientOption) *Client {
	cl := &Client{
		mcpClient: c,
		timeout:   defaultTimeout,
		retry:     resilience.DefaultRetryConfig().WithIsRecoverable(isTransportError),
		cacheTTL:  defaultCacheTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

// Dial connects to target: an http(s) URL speaks streamable HTTP, anything
// else is run as a command speaking stdio.
func Dial(ctx context.Context, target string, opts ...ClientOption) (*Client, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, errors.InvalidInput("mcp target is required")
	}
	var (
		c   *client.Client
		err error
	)
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		c, err = client.NewStreamableHttpClient(target)
	} else {
		fields := strings.Fields(target)
		c, err = client.NewStdioMCPClient(fields[0], nil, fields[1:]...)
	}
	if err != nil {
		return nil, errors.New(errors.CodeUnavailable, "connect mcp server", err).WithContext("target", target)
	}
	return Connect(ctx, c, opts...)
}

// DialInProcess connects to a server in the same process.
func DialInProcess(ctx context.Context, s *Server, opts ...ClientOption) (*Client, error) {
	c, err := client.NewInProcessClient(s.MCPServer())
	if err != nil {
		return nil, errors.New(errors.CodeUnavailable, "connect mcp server", err)
	}
	return Connect(ctx, c, opts...)
}

// Connect starts c and runs the initialize handshake.
func Connect(ctx context.Context, c *client.Client, opts ...ClientOption) (*Client, error) {
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, errors.New(errors.CodeUnavailable, "start mcp client", err)
	}
	cl := NewClient(c, opts...)

	initCtx, cancel := context.WithTimeout(ctx, cl.timeout)
	defer cancel()
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: "1.0.0"}
	if _, err := c.Initialize(initCtx, req); err != nil {
		_ = c.Close()
		return nil, errors.New(errors.CodeUnavailable, "initialize mcp session", err)
	}
	return cl, nil
}

// ListTools lists the server tools, cached for the configured TTL.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if cached := c.cachedTools(); cached != nil {
		return cached, nil
	}
	res, err := resilience.DoValue(ctx, c.retry, func() (*mcp.ListToolsResult, error) {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.mcpClient.ListTools(reqCtx, mcp.ListToolsRequest{})
	})
	if err != nil {
		return nil, wrapTransport(err, "list tools")
	}
	c.storeTools(res.Tools)
	return res.Tools, nil
}

// CallTool runs a tool and returns its text output. A tool reporting an
// error yields a TOOL_FAILURE error carrying the tool's message.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := resilience.DoValue(ctx, c.retry, func() (*mcp.CallToolResult, error) {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.mcpClient.CallTool(reqCtx, req)
	})
	if err != nil {
		return "", wrapTransport(err, "call tool").WithContext("tool", name)
	}
	text := resultText(res)
	if res.IsError {
		return "", errors.New(errors.CodeToolFailure, text, nil).WithContext("tool", name)
	}
	return text, nil
}

// Close closes the session.
func (c *Client) Close() error {
	return c.mcpClient.Close()
}

func resultText(res *mcp.CallToolResult) string {
	var parts []string
	for _, content := range res.Content {
		if tc, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func isTransportError(err error) bool {
	if err == nil || errors.IsCode(err, errors.CodeInvalidInput) {
		return false
	}
	return !stderrors.Is(err, context.Canceled) && !stderrors.Is(err, context.DeadlineExceeded)
}

func wrapTransport(err error, op string) *errors.Error {
	if e := errors.As(err); e.Code != errors.CodeInternal {
		return e
	}
	return errors.New(errors.CodeUnavailable, fmt.Sprintf("mcp %s", op), err).WithRecoverable(true)
}

func (c *Client) cachedTools() []mcp.Tool {
	if c.cacheTTL == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.toolsCache) == 0 || c.now().After(c.cacheExpiry) {
		return nil
	}
	out := make([]mcp.Tool, len(c.toolsCache))
	copy(out, c.toolsCache)
	return out
}

func (c *Client) storeTools(tools []mcp.Tool) {
	if c.cacheTTL == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolsCache = make([]mcp.Tool, len(tools))
	copy(c.toolsCache, tools)
	c.cacheExpiry = c.now().Add(c.cacheTTL)
}
