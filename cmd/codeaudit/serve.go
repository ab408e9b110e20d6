package main

import (
	"github.com/spf13/cobra"

	"github.com/dshills/codeaudit/internal/mcp"
	"github.com/dshills/codeaudit/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	mcp.ServerVersion = version
	s.logger.Info("codeaudit MCP server starting",
		"version", version,
		"build_mode", storage.BuildMode,
		"driver", storage.DriverName)

	server := mcp.NewServer(s.engine, s.logger)
	err = server.Serve(cmd.Context())
	s.logger.Info("server stopped")
	return err
}
