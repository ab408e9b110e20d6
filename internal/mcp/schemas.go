package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// analyzeRepositoryTool returns the tool definition for analyze_repository
func analyzeRepositoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "analyze_repository",
		Description: "Analyze a repository for security, performance, complexity, duplication and testing issues",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"source": map[string]interface{}{
					"type":        "string",
					"description": "Git URL (https, ssh or git@) or local directory to analyze",
				},
				"files": map[string]interface{}{
					"type":                 "object",
					"description":          "Uploaded files keyed by relative path, used instead of source",
					"additionalProperties": map[string]interface{}{"type": "string"},
				},
				"language_filter": map[string]interface{}{
					"type":        "array",
					"description": "Only analyze these languages (e.g. python, go, javascript)",
					"items":       map[string]interface{}{"type": "string"},
				},
				"max_files": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of files to analyze",
					"minimum":     1,
				},
			},
		},
	}
}

// getReportTool returns the tool definition for get_report
func getReportTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_report",
		Description: "Fetch the report of a previous analysis",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"analysis_id": map[string]interface{}{
					"type":        "string",
					"description": "Id returned by analyze_repository",
				},
				"format": map[string]interface{}{
					"type":        "string",
					"description": "Output format",
					"enum":        []string{"json", "yaml", "markdown"},
					"default":     "json",
				},
			},
			Required: []string{"analysis_id"},
		},
	}
}

// askCodebaseTool returns the tool definition for ask_codebase
func askCodebaseTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ask_codebase",
		Description: "Answer a question about a codebase using only retrieved code as context",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "Natural language question",
				},
				"scope": map[string]interface{}{
					"type":        "string",
					"description": "Directory or analysis id the question is about",
				},
				"collection_name": map[string]interface{}{
					"type":        "string",
					"description": "Indexed collection to search; derived from scope when omitted",
				},
			},
			Required: []string{"question"},
		},
	}
}

// indexCodebaseTool returns the tool definition for index_codebase
func indexCodebaseTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_codebase",
		Description: "Index a codebase for semantic search and question answering",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Directory to index",
				},
				"collection_name": map[string]interface{}{
					"type":        "string",
					"description": "Collection to write; derived from path when omitted",
				},
				"batch_size": map[string]interface{}{
					"type":        "integer",
					"description": "Chunks per embedding request",
					"minimum":     1,
				},
			},
			Required: []string{"path"},
		},
	}
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Search an indexed codebase with natural language or keyword queries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"search_type": map[string]interface{}{
					"type":        "string",
					"description": "hybrid (semantic + keyword), semantic, or keyword (BM25 only)",
					"enum":        []string{"hybrid", "semantic", "keyword"},
					"default":     "hybrid",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"collection_name": map[string]interface{}{
					"type":        "string",
					"description": "Collection to search",
				},
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Indexed directory; used to derive the collection when collection_name is omitted",
				},
			},
			Required: []string{"query"},
		},
	}
}

// indexStatsTool returns the tool definition for index_stats
func indexStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_stats",
		Description: "Report chunk counts and freshness of an indexed collection",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"collection_name": map[string]interface{}{
					"type":        "string",
					"description": "Collection to inspect",
				},
			},
			Required: []string{"collection_name"},
		},
	}
}
