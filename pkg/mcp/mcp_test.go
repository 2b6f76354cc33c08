// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jllopis/riskcrew/pkg/errors"
	"github.com/jllopis/riskcrew/pkg/riskdb"
	"github.com/jllopis/riskcrew/pkg/tools"
	"github.com/jllopis/riskcrew/pkg/vector"
)

const stdioHelperEnv = "RISKCREW_MCP_STDIO_HELPER"

// newServer panics on setup failure so the stdio helper process can use it.
func newServer() *Server {
	clock := func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	repo := riskdb.New(vector.NewInMemoryStore(), vector.NewHashEmbedder(256), riskdb.WithClock(clock))
	ctx := context.Background()
	if err := repo.Init(ctx); err != nil {
		panic(err)
	}
	if _, err := repo.Seed(ctx); err != nil {
		panic(err)
	}
	return NewServer("riskcrew-test", "1.0.0", tools.NewRegistry(repo, tools.WithClock(clock)))
}

func TestServerPublishesRegistry(t *testing.T) {
	s := newServer()
	names := s.ToolNames()
	assert.Len(t, names, 14)
	assert.Contains(t, names, tools.GenerateRiskReport)
	assert.Contains(t, names, tools.ProjectInfo)
}

func TestInProcessClient(t *testing.T) {
	ctx := context.Background()
	c, err := DialInProcess(ctx, newServer())
	require.NoError(t, err)
	defer c.Close()

	listed, err := c.ListTools(ctx)
	require.NoError(t, err)
	assert.Len(t, listed, 14)

	out, err := c.CallTool(ctx, tools.ProjectInfo, map[string]any{"project_name": "Cloud Migration"})
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "p1001", info["id"])
	assert.Equal(t, "Cloud Migration", info["name"])

	_, err = c.CallTool(ctx, tools.SearchRisks, map[string]any{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeToolFailure))
	assert.Contains(t, err.Error(), `missing required argument "query"`)

	_, err = c.CallTool(ctx, tools.ProjectInfo, map[string]any{"project_name": "Moon Base"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestToolListIsCached(t *testing.T) {
	ctx := context.Background()
	c, err := DialInProcess(ctx, newServer(), WithToolCacheTTL(time.Minute))
	require.NoError(t, err)
	defer c.Close()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, err = c.ListTools(ctx)
	require.NoError(t, err)
	cached := c.cachedTools()
	assert.Len(t, cached, 14)

	now = now.Add(2 * time.Minute)
	assert.Nil(t, c.cachedTools())
}

func TestStreamableHTTP(t *testing.T) {
	ts := httptest.NewServer(newServer().HTTPHandler())
	defer ts.Close()

	ctx := context.Background()
	c, err := Dial(ctx, ts.URL+"/mcp")
	require.NoError(t, err)
	defer c.Close()

	out, err := c.CallTool(ctx, tools.CalculateRiskScore, map[string]any{"project_name": "Mobile Banking App"})
	require.NoError(t, err)
	assert.Contains(t, out, "Mobile Banking App")
}

func TestDialRequiresTarget(t *testing.T) {
	_, err := Dial(context.Background(), "  ")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidInput))
}

func TestHelperMCPStdioServer(t *testing.T) {
	if os.Getenv(stdioHelperEnv) != "1" {
		return
	}
	if err := newServer().Serve(context.Background(), os.Stdin, os.Stdout); err != nil {
		os.Exit(1)
	}
	os.Exit(0)
}

func TestStdioClient(t *testing.T) {
	t.Setenv(stdioHelperEnv, "1")
	exe, err := os.Executable()
	require.NoError(t, err)

	ctx := context.Background()
	c, err := Dial(ctx, exe+" -test.run ^TestHelperMCPStdioServer$")
	require.NoError(t, err)
	defer c.Close()

	listed, err := c.ListTools(ctx)
	require.NoError(t, err)
	assert.Len(t, listed, 14)
}
