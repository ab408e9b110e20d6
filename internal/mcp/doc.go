// Package mcp implements the Model Context Protocol (MCP) server for codeaudit.
//
// The server exposes six tools to AI coding assistants:
//   - analyze_repository: Run a code quality analysis over a URL, path or upload
//   - get_report: Fetch a stored report as json, yaml or markdown
//   - ask_codebase: Answer a question using only retrieved code
//   - index_codebase: Index a directory for semantic search
//   - search_code: Keyword, semantic or hybrid search over an index
//   - index_stats: Chunk counts and freshness of a collection
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Stdout carries the protocol, so the server logs to stderr only.
//
// # Tool: analyze_repository
//
//	Request:
//	{
//	  "name": "analyze_repository",
//	  "arguments": {
//	    "source": "https://github.com/example/app.git",
//	    "language_filter": ["python"],
//	    "max_files": 100
//	  }
//	}
//
//	Response:
//	{
//	  "analysis_id": "5f0c...",
//	  "status": "completed",
//	  "quality_score": 87.5,
//	  "issues_count": 12,
//	  "files_analyzed": 48
//	}
//
// # Tool: ask_codebase
//
//	Request:
//	{
//	  "name": "ask_codebase",
//	  "arguments": {
//	    "question": "How are database connections opened?",
//	    "scope": "/path/to/project"
//	  }
//	}
//
//	Response:
//	{
//	  "answer": "...",
//	  "analyzed_files": ["internal/db/db.go"],
//	  "files_analyzed_count": 1,
//	  "timestamp": "2026-01-02T03:04:05Z",
//	  "mode": "indexed"
//	}
//
// When no relevant code is found the answer says so, "insufficient" is true
// and no model is called.
//
// # Errors
//
// Failures are JSON-RPC errors whose data carries the failure kind:
//
//	-32602  INVALID_INPUT, UNSUPPORTED_FILE_TYPE
//	-32001  SOURCE_UNAVAILABLE
//	-32002  NOT_FOUND, COLLECTION_NOT_FOUND
//	-32003  BUSY
//	-32004  INDEX_STORE_UNAVAILABLE
//	-32005  MODEL_TIMEOUT
//	-32603  anything else
package mcp
