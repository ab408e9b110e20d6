package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/codeaudit/internal/engine"
)

var remoteSource = regexp.MustCompile(`^(https?://|ssh://|git@)`)

var (
	analyzeLanguages []string
	analyzeMaxFiles  int
	analyzeFormat    string
	reportFormat     string
	reportsLimit     int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <path|url>",
	Short: "Analyze a repository and store the report",
	Long: `Analyze runs every enabled analyzer over a local directory or a git URL,
scores the findings and stores the report. The analysis id printed on
success can be passed to "codeaudit report" or used as an ask scope.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var reportCmd = &cobra.Command{
	Use:   "report <analysis-id>",
	Short: "Render a stored report",
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List stored reports, newest first",
	Args:  cobra.NoArgs,
	RunE:  runReports,
}

func init() {
	analyzeCmd.Flags().StringSliceVarP(&analyzeLanguages, "lang", "l", nil, "Only analyze these languages (e.g. go,python)")
	analyzeCmd.Flags().IntVar(&analyzeMaxFiles, "max-files", 0, "Analyze at most this many files (0 uses the configured limit)")
	analyzeCmd.Flags().StringVarP(&analyzeFormat, "format", "f", "", "Also print the full report in this format (json, yaml, markdown)")
	reportCmd.Flags().StringVarP(&reportFormat, "format", "f", "markdown", "Output format (json, yaml, markdown)")
	reportsCmd.Flags().IntVarP(&reportsLimit, "limit", "n", 20, "Maximum reports to list")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(reportsCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	req := engine.AnalyzeRequest{
		LanguageFilter: analyzeLanguages,
		MaxFiles:       analyzeMaxFiles,
	}
	src := strings.TrimSpace(args[0])
	if remoteSource.MatchString(src) {
		req.URL = src
	} else {
		abs, err := filepath.Abs(src)
		if err != nil {
			return fmt.Errorf("resolve path: %w", err)
		}
		req.Path = abs
	}

	result, err := s.engine.Analyze(cmd.Context(), req)
	if result == nil {
		return err
	}
	if analyzeFormat == "" {
		if perr := printJSON(cmd, result); perr != nil {
			return perr
		}
		return err
	}

	out, rerr := s.engine.RenderReport(cmd.Context(), result.AnalysisID, analyzeFormat)
	if rerr != nil {
		return rerr
	}
	if _, werr := cmd.OutOrStdout().Write(out); werr != nil {
		return werr
	}
	if result.Status != engine.StatusCompleted {
		fmt.Fprintf(os.Stderr, "analysis %s: %s (%.0f%% of files covered)\n",
			result.AnalysisID, result.Status, result.Coverage*100)
	}
	return err
}

func runReport(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	out, err := s.engine.RenderReport(cmd.Context(), args[0], reportFormat)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func runReports(cmd *cobra.Command, _ []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	reports, err := s.engine.ListReports(cmd.Context(), reportsLimit)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if len(reports) == 0 {
		fmt.Fprintln(w, "No reports stored.")
		return nil
	}
	for _, r := range reports {
		fmt.Fprintf(w, "%s  %s  score %5.1f  %4d issues  %4d files  %s\n",
			r.AnalysisID, r.CreatedAt, r.QualityScore, r.IssuesCount, r.FilesAnalyzed, r.Source)
	}
	return nil
}
