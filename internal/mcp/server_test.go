package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codeaudit/internal/config"
	"github.com/dshills/codeaudit/internal/engine"
	apperrors "github.com/dshills/codeaudit/internal/errors"
	"github.com/dshills/codeaudit/internal/logging"
)

const appSource = `import sqlite3


def find_user(cursor, name):
    query = "SELECT * FROM users WHERE name = '" + name + "'"
    cursor.execute(query)
    return cursor.fetchone()


def load_settings(path):
    with open(path) as f:
        return f.read()
`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.Path = ":memory:"

	eng, err := engine.New(cfg, engine.WithLogger(logging.NewDiscardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return NewServer(eng, nil)
}

func fixtureDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.py"), []byte(appSource), 0o644))
	return dir
}

func call(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func decode(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	return out
}

func requireMCPError(t *testing.T, err error, code int) *MCPError {
	t.Helper()
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr), "expected MCPError, got %v", err)
	assert.Equal(t, code, mcpErr.Code)
	return mcpErr
}

func TestAnalyzeAndGetReport(t *testing.T) {
	s := newTestServer(t)
	dir := fixtureDir(t)

	result, err := s.handleAnalyzeRepository(context.Background(), call("analyze_repository", map[string]interface{}{
		"source": dir,
	}))
	require.NoError(t, err)
	out := decode(t, result)
	id, ok := out["analysis_id"].(string)
	require.True(t, ok)
	assert.Equal(t, engine.StatusCompleted, out["status"])
	assert.Equal(t, float64(1), out["files_analyzed"])
	assert.Greater(t, out["issues_count"], float64(0))

	report, err := s.handleGetReport(context.Background(), call("get_report", map[string]interface{}{
		"analysis_id": id,
		"format":      "markdown",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, report), "# Code Quality Report")

	report, err = s.handleGetReport(context.Background(), call("get_report", map[string]interface{}{
		"analysis_id": id,
	}))
	require.NoError(t, err)
	assert.Equal(t, id, decode(t, report)["analysis_id"])
}

func TestAnalyzeUploadedFiles(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleAnalyzeRepository(context.Background(), call("analyze_repository", map[string]interface{}{
		"files":           map[string]interface{}{"app.py": appSource, "main.go": "package main\n"},
		"language_filter": []interface{}{"python"},
	}))
	require.NoError(t, err)
	assert.Equal(t, float64(1), decode(t, result)["files_analyzed"])

	_, err = s.handleAnalyzeRepository(context.Background(), call("analyze_repository", map[string]interface{}{
		"files": map[string]interface{}{"app.py": 42},
	}))
	requireMCPError(t, err, apperrors.CodeInvalidParams)
}

func TestAnalyzeErrors(t *testing.T) {
	s := newTestServer(t)

	_, err := s.handleAnalyzeRepository(context.Background(), call("analyze_repository", map[string]interface{}{}))
	mcpErr := requireMCPError(t, err, apperrors.CodeInvalidParams)
	assert.Equal(t, apperrors.InvalidInput, mcpErr.Data.(map[string]interface{})["kind"])

	_, err = s.handleAnalyzeRepository(context.Background(), call("analyze_repository", map[string]interface{}{
		"source": filepath.Join(t.TempDir(), "missing"),
	}))
	requireMCPError(t, err, apperrors.CodeSourceError)

	_, err = s.handleGetReport(context.Background(), call("get_report", map[string]interface{}{"analysis_id": "unknown"}))
	requireMCPError(t, err, apperrors.CodeNotFound)

	_, err = s.handleGetReport(context.Background(), call("get_report", map[string]interface{}{}))
	requireMCPError(t, err, apperrors.CodeInvalidParams)
}

func TestIndexSearchAndStats(t *testing.T) {
	s := newTestServer(t)
	dir := fixtureDir(t)

	result, err := s.handleIndexCodebase(context.Background(), call("index_codebase", map[string]interface{}{
		"path":            dir,
		"collection_name": "fixture",
		"batch_size":      float64(16),
	}))
	require.NoError(t, err)
	out := decode(t, result)
	assert.Equal(t, "fixture", out["collection_name"])
	assert.GreaterOrEqual(t, out["total_chunks"], float64(2))
	counts := out["type_counts"].(map[string]interface{})
	assert.GreaterOrEqual(t, counts["function"], float64(2))

	result, err = s.handleSearchCode(context.Background(), call("search_code", map[string]interface{}{
		"query":           "load settings",
		"search_type":     "keyword",
		"collection_name": "fixture",
	}))
	require.NoError(t, err)
	out = decode(t, result)
	results := out["results"].([]interface{})
	require.NotEmpty(t, results)
	first := results[0].(map[string]interface{})
	assert.Equal(t, "load_settings", first["name"])
	assert.Equal(t, "app.py", first["file"])

	result, err = s.handleIndexStats(context.Background(), call("index_stats", map[string]interface{}{
		"collection_name": "fixture",
	}))
	require.NoError(t, err)
	out = decode(t, result)
	assert.Equal(t, dir, out["root_path"])
	assert.GreaterOrEqual(t, out["total_chunks"], float64(2))
}

func TestSearchValidation(t *testing.T) {
	s := newTestServer(t)

	_, err := s.handleSearchCode(context.Background(), call("search_code", map[string]interface{}{"query": ""}))
	requireMCPError(t, err, apperrors.CodeInvalidParams)

	_, err = s.handleSearchCode(context.Background(), call("search_code", map[string]interface{}{
		"query": "x",
		"limit": float64(500),
	}))
	requireMCPError(t, err, apperrors.CodeInvalidParams)

	_, err = s.handleSearchCode(context.Background(), call("search_code", map[string]interface{}{
		"query":           "x",
		"collection_name": "missing",
	}))
	requireMCPError(t, err, apperrors.CodeNotFound)

	_, err = s.handleIndexStats(context.Background(), call("index_stats", map[string]interface{}{"collection_name": "missing"}))
	requireMCPError(t, err, apperrors.CodeNotFound)
}

func TestAskCodebase(t *testing.T) {
	s := newTestServer(t)
	dir := fixtureDir(t)

	result, err := s.handleAskCodebase(context.Background(), call("ask_codebase", map[string]interface{}{
		"question": "Where are settings loaded?",
		"scope":    dir,
	}))
	require.NoError(t, err)
	out := decode(t, result)
	assert.Equal(t, []interface{}{"app.py"}, out["analyzed_files"])
	assert.Equal(t, float64(1), out["files_analyzed_count"])
	assert.NotEmpty(t, out["timestamp"])
	assert.Equal(t, "direct", out["mode"])

	result, err = s.handleAskCodebase(context.Background(), call("ask_codebase", map[string]interface{}{
		"question": "Which kafka brokers are configured?",
		"scope":    dir,
	}))
	require.NoError(t, err)
	out = decode(t, result)
	assert.Equal(t, true, out["insufficient"])
	assert.Equal(t, string(apperrors.RetrievalEmpty), out["error_kind"])

	_, err = s.handleAskCodebase(context.Background(), call("ask_codebase", map[string]interface{}{"scope": dir}))
	requireMCPError(t, err, apperrors.CodeInvalidParams)
}

func TestInvalidArguments(t *testing.T) {
	s := newTestServer(t)

	request := mcp.CallToolRequest{Params: mcp.CallToolParams{Name: "index_stats", Arguments: "not a map"}}
	_, err := s.handleIndexStats(context.Background(), request)
	requireMCPError(t, err, apperrors.CodeInvalidParams)
}

func TestToolDefinitions(t *testing.T) {
	tools := []mcp.Tool{
		analyzeRepositoryTool(),
		getReportTool(),
		askCodebaseTool(),
		indexCodebaseTool(),
		searchCodeTool(),
		indexStatsTool(),
	}
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
		assert.Equal(t, "object", tool.InputSchema.Type)
		assert.NotEmpty(t, tool.Description)
		for _, req := range tool.InputSchema.Required {
			assert.Contains(t, tool.InputSchema.Properties, req)
		}
	}
	assert.Equal(t, []string{"analyze_repository", "get_report", "ask_codebase", "index_codebase", "search_code", "index_stats"}, names)
}

func TestGetStringSlice(t *testing.T) {
	args := map[string]interface{}{
		"list":  []interface{}{"go", "", "python"},
		"comma": "go, python ,",
	}
	assert.Equal(t, []string{"go", "python"}, getStringSlice(args, "list"))
	assert.Equal(t, []string{"go", "python"}, getStringSlice(args, "comma"))
	assert.Nil(t, getStringSlice(args, "missing"))
}
