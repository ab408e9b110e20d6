package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/codeaudit/internal/engine"
)

var (
	askScope      string
	askCollection string
	askJSON       bool

	indexCollection string
	indexBatchSize  int

	searchType       string
	searchLimit      int
	searchCollection string
	searchPath       string
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question about a codebase from retrieved code",
	Long: `Ask retrieves the code most relevant to the question, from the semantic
index when the scope has been indexed and by reading files directly when it
has not, and answers using only that code.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a directory for semantic search",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search an indexed codebase",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var statsCmd = &cobra.Command{
	Use:   "stats <collection>",
	Short: "Show index statistics for a collection",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	askCmd.Flags().StringVarP(&askScope, "scope", "s", ".", "Directory or analysis id to ask about")
	askCmd.Flags().StringVar(&askCollection, "collection", "", "Index collection to retrieve from")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Print the full answer as JSON")

	indexCmd.Flags().StringVar(&indexCollection, "collection", "", "Collection name (default derived from the path)")
	indexCmd.Flags().IntVar(&indexBatchSize, "batch-size", 0, "Embedding batch size (0 uses the configured size)")

	searchCmd.Flags().StringVarP(&searchType, "type", "t", "hybrid", "Search type (hybrid, semantic, keyword)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "Maximum results")
	searchCmd.Flags().StringVar(&searchCollection, "collection", "", "Collection to search")
	searchCmd.Flags().StringVarP(&searchPath, "path", "p", ".", "Indexed directory, used when no collection is given")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statsCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	answer, err := s.engine.Ask(cmd.Context(), engine.AskRequest{
		Question:   strings.Join(args, " "),
		Scope:      askScope,
		Collection: askCollection,
	})
	if err != nil {
		return err
	}
	if askJSON {
		return printJSON(cmd, answer)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, answer.Answer)
	if len(answer.AnalyzedFiles) > 0 {
		fmt.Fprintf(w, "\nFiles analyzed (%d, %s):\n", answer.FilesAnalyzedCount, answer.Mode)
		for _, f := range answer.AnalyzedFiles {
			fmt.Fprintf(w, "  %s\n", f)
		}
	}
	for _, warning := range answer.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}
	return nil
}

func runIndex(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	path := "."
	if len(args) == 1 {
		path = args[0]
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	stats, err := s.engine.Index(cmd.Context(), engine.IndexRequest{
		Path:       abs,
		Collection: indexCollection,
		BatchSize:  indexBatchSize,
	})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Collection: %s\n", stats.Collection)
	fmt.Fprintf(w, "Files: %d indexed, %d unchanged, %d failed, %d removed\n",
		stats.FilesIndexed, stats.FilesSkipped, stats.FilesFailed, stats.FilesRemoved)
	fmt.Fprintf(w, "Chunks: %d created, %d total\n", stats.ChunksCreated, stats.TotalChunks)
	fmt.Fprintf(w, "Duration: %s\n", stats.Duration.Round(time.Millisecond))
	for _, msg := range stats.Errors {
		fmt.Fprintf(os.Stderr, "  %s\n", msg)
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	req := engine.SearchRequest{
		Query:      strings.Join(args, " "),
		SearchType: searchType,
		Limit:      searchLimit,
		Collection: searchCollection,
	}
	if req.Collection == "" {
		if req.Path, err = filepath.Abs(searchPath); err != nil {
			return fmt.Errorf("resolve path: %w", err)
		}
	}

	resp, err := s.engine.Search(cmd.Context(), req)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "No results.")
		return nil
	}
	for _, r := range resp.Results {
		loc := r.Name
		if r.File != nil {
			loc = fmt.Sprintf("%s:%d-%d", r.File.Path, r.File.StartLine, r.File.EndLine)
		}
		fmt.Fprintf(w, "%2d. %-50s %-10s %s (%.3f)\n", r.Rank, loc, r.ChunkType, r.Name, r.RelevanceScore)
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.engine.IndexStats(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd, stats)
}
