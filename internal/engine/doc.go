// Package engine is the single entry point used by the MCP server and the
// CLI. It owns the shared services (storage, embedder, answer generator and
// response cache) and exposes analysis, reports, question answering,
// indexing and search over them.
package engine
