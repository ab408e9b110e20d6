package mcp

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/codeaudit/internal/engine"
)

const (
	// ServerName is the MCP server name
	ServerName = "codeaudit"
)

// ServerVersion is reported to clients; the CLI overrides it at build time
var ServerVersion = "dev"

// Server wraps the MCP server with the engine it exposes
type Server struct {
	mcp    *server.MCPServer
	engine *engine.Engine
	logger *slog.Logger
}

// NewServer creates an MCP server over eng. Logs must not go to stdout,
// which carries the protocol.
func NewServer(eng *engine.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		mcp:    server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		engine: eng,
		logger: logger,
	}
	s.registerTools()
	return s
}

// Serve runs the MCP server on stdio and blocks until the client
// disconnects or ctx is canceled
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("serving MCP over stdio", "name", ServerName, "version", ServerVersion)
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(analyzeRepositoryTool(), s.handleAnalyzeRepository)
	s.mcp.AddTool(getReportTool(), s.handleGetReport)
	s.mcp.AddTool(askCodebaseTool(), s.handleAskCodebase)
	s.mcp.AddTool(indexCodebaseTool(), s.handleIndexCodebase)
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(indexStatsTool(), s.handleIndexStats)
}
