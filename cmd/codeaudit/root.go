package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/codeaudit/internal/config"
	"github.com/dshills/codeaudit/internal/engine"
	"github.com/dshills/codeaudit/internal/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configPath string
	verbosity  int
	quiet      bool
	jsonLogs   bool
)

var rootCmd = &cobra.Command{
	Use:   "codeaudit",
	Short: "Code quality analysis and codebase question answering",
	Long: `codeaudit analyzes repositories for code quality issues, stores the
reports, indexes code for semantic search and answers questions about a
codebase using only retrieved code as evidence.

Run "codeaudit serve" to expose the same operations as MCP tools over stdio.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("codeaudit version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: codeaudit.{yaml,toml,json} in . or ~/.codeaudit)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v, -vv)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log errors")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Emit logs as JSON")
}

// session is the configured engine and logger behind one command
type session struct {
	engine *engine.Engine
	logger *slog.Logger
	closer io.Closer
}

func (s *session) Close() {
	if err := s.engine.Close(); err != nil {
		s.logger.Warn("close engine", "error", err)
	}
	_ = s.closer.Close()
}

// openSession loads configuration and builds the engine. Logs always go to
// stderr, since stdout carries command output or the MCP protocol.
func openSession() (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	opts := logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	}
	switch {
	case quiet:
		opts.Level = "error"
	case verbosity > 0:
		opts.Level = logging.LevelFromVerbosity(verbosity, false).String()
	}
	if jsonLogs {
		opts.Format = "json"
	}
	logger, closer, err := logging.Open(os.Stderr, opts)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	eng, err := engine.New(cfg, engine.WithLogger(logger))
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	return &session{engine: eng, logger: logger, closer: closer}, nil
}

// printJSON writes v to stdout as indented JSON
func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
