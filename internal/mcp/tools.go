package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/codeaudit/internal/engine"
	apperrors "github.com/dshills/codeaudit/internal/errors"
	"github.com/dshills/codeaudit/internal/searcher"
)

// remoteSource matches sources that must be cloned rather than read in place
var remoteSource = regexp.MustCompile(`^(https?://|ssh://|git@)`)

// handleAnalyzeRepository handles the analyze_repository tool invocation
func (s *Server) handleAnalyzeRepository(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	req := engine.AnalyzeRequest{
		LanguageFilter: getStringSlice(args, "language_filter"),
		MaxFiles:       getIntDefault(args, "max_files", 0),
	}
	if src := strings.TrimSpace(getStringDefault(args, "source", "")); src != "" {
		if remoteSource.MatchString(src) {
			req.URL = src
		} else {
			req.Path = src
		}
	}
	if files, ok := args["files"].(map[string]interface{}); ok {
		req.Files = make(map[string][]byte, len(files))
		for name, content := range files {
			text, ok := content.(string)
			if !ok {
				return nil, newMCPError(apperrors.CodeInvalidParams, "files values must be strings", map[string]interface{}{
					"param": "files",
					"file":  name,
				})
			}
			req.Files[name] = []byte(text)
		}
	}

	result, err := s.engine.Analyze(ctx, req)
	if err != nil {
		return nil, s.toMCPError("analyze_repository", err)
	}
	return jsonResult(result)
}

// handleGetReport handles the get_report tool invocation
func (s *Server) handleGetReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	id, err := requireString(args, "analysis_id")
	if err != nil {
		return nil, err
	}

	out, err := s.engine.RenderReport(ctx, id, getStringDefault(args, "format", "json"))
	if err != nil {
		return nil, s.toMCPError("get_report", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}

// handleAskCodebase handles the ask_codebase tool invocation
func (s *Server) handleAskCodebase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	question, err := requireString(args, "question")
	if err != nil {
		return nil, err
	}

	answer, err := s.engine.Ask(ctx, engine.AskRequest{
		Question:   question,
		Scope:      getStringDefault(args, "scope", ""),
		Collection: getStringDefault(args, "collection_name", ""),
	})
	if err != nil {
		return nil, s.toMCPError("ask_codebase", err)
	}
	return jsonResult(answer)
}

// handleIndexCodebase handles the index_codebase tool invocation
func (s *Server) handleIndexCodebase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	path, err := requireString(args, "path")
	if err != nil {
		return nil, err
	}

	stats, err := s.engine.Index(ctx, engine.IndexRequest{
		Path:       path,
		Collection: getStringDefault(args, "collection_name", ""),
		BatchSize:  getIntDefault(args, "batch_size", 0),
	})
	if err != nil {
		return nil, s.toMCPError("index_codebase", err)
	}

	response := map[string]interface{}{
		"collection_name": stats.Collection,
		"total_chunks":    stats.TotalChunks,
		"type_counts":     stats.TypeCounts,
		"files_indexed":   stats.FilesIndexed,
		"files_skipped":   stats.FilesSkipped,
		"files_failed":    stats.FilesFailed,
		"files_removed":   stats.FilesRemoved,
		"chunks_created":  stats.ChunksCreated,
		"duration_ms":     stats.Duration.Milliseconds(),
	}
	if len(stats.Errors) > 0 {
		// Include first few errors
		errorCount := len(stats.Errors)
		if errorCount > 5 {
			response["errors"] = stats.Errors[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.Errors
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	query, err := requireString(args, "query")
	if err != nil {
		return nil, err
	}

	limit := getIntDefault(args, "limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(apperrors.CodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	resp, err := s.engine.Search(ctx, engine.SearchRequest{
		Query:      query,
		SearchType: getStringDefault(args, "search_type", "hybrid"),
		Limit:      limit,
		Collection: getStringDefault(args, "collection_name", ""),
		Path:       getStringDefault(args, "path", ""),
	})
	if err != nil {
		return nil, s.toMCPError("search_code", err)
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		item := map[string]interface{}{
			"rank":            r.Rank,
			"relevance_score": r.RelevanceScore,
			"name":            r.Name,
			"chunk_type":      r.ChunkType,
			"content":         r.Content,
		}
		if r.File != nil {
			item["file"] = r.File.Path
			item["language"] = r.File.Language
			item["start_line"] = r.File.StartLine
			item["end_line"] = r.File.EndLine
		}
		results = append(results, item)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"collection_name": resp.Collection,
		"search_type":     resp.Mode,
		"total_results":   resp.TotalResults,
		"duration_ms":     resp.Duration.Milliseconds(),
		"results":         results,
	})), nil
}

// handleIndexStats handles the index_stats tool invocation
func (s *Server) handleIndexStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	name, err := requireString(args, "collection_name")
	if err != nil {
		return nil, err
	}

	stats, err := s.engine.IndexStats(ctx, name)
	if err != nil {
		return nil, s.toMCPError("index_stats", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"collection_name":  stats.Collection,
		"root_path":        stats.RootPath,
		"total_files":      stats.TotalFiles,
		"total_chunks":     stats.TotalChunks,
		"type_counts":      stats.TypeCounts,
		"embeddings_count": stats.EmbeddingsCount,
		"provider":         stats.Provider,
		"model":            stats.Model,
		"index_size_mb":    fmt.Sprintf("%.2f", stats.IndexSizeMB),
		"last_indexed_at":  stats.LastIndexedAt.Format("2006-01-02T15:04:05Z07:00"),
	})), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// toMCPError maps an engine failure onto a protocol error carrying its kind
func (s *Server) toMCPError(tool string, err error) error {
	var typed *apperrors.Error
	if !errors.As(err, &typed) {
		s.logger.Error("tool failed", "tool", tool, "error", err)
		return newMCPError(apperrors.CodeInternalError, err.Error(), map[string]interface{}{
			"kind": apperrors.KindOf(err),
		})
	}
	s.logger.Warn("tool failed", "tool", tool, "kind", typed.Kind, "error", err)
	data := map[string]interface{}{"kind": typed.Kind}
	if typed.Details != nil {
		data["details"] = typed.Details
	}
	return newMCPError(apperrors.MCPCode(typed.Kind), err.Error(), data)
}

func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(apperrors.CodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

func requireString(args map[string]interface{}, key string) (string, error) {
	val, ok := args[key].(string)
	if !ok || strings.TrimSpace(val) == "" {
		return "", newMCPError(apperrors.CodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}
	return val, nil
}

// jsonResult encodes v as an indented JSON text result
func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, newMCPError(apperrors.CodeInternalError, "encode result", map[string]interface{}{"error": err.Error()})
	}
	return mcp.NewToolResultText(string(data)), nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice accepts either a JSON array of strings or a comma separated string
func getStringSlice(args map[string]interface{}, key string) []string {
	switch val := args[key].(type) {
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return val
	case string:
		var out []string
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return nil
}
