package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/dshills/codeaudit/pkg/types"
)

// maxHotspots is how many hotspots the markdown summary lists
const maxHotspots = 10

// RenderMarkdown writes a human readable report. Issues are grouped by
// severity, most urgent first.
func RenderMarkdown(w io.Writer, r *types.Report) error {
	bw := bufio.NewWriter(w)
	s := r.Summary

	fmt.Fprintf(bw, "# Code Quality Report\n\n")
	fmt.Fprintf(bw, "- **Analysis:** `%s`\n", r.ID)
	fmt.Fprintf(bw, "- **Source:** %s\n", r.Source)
	fmt.Fprintf(bw, "- **Created:** %s\n", r.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	if r.Project.Type != "" {
		fmt.Fprintf(bw, "- **Project type:** %s\n", r.Project.Type)
	}
	if len(r.Project.TestFrameworks) > 0 {
		fmt.Fprintf(bw, "- **Test frameworks:** %s\n", strings.Join(r.Project.TestFrameworks, ", "))
	}

	fmt.Fprintf(bw, "\n## Summary\n\n")
	fmt.Fprintf(bw, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(bw, "| Quality score | %.1f / 100 |\n", s.QualityScore)
	fmt.Fprintf(bw, "| Total issues | %d |\n", s.TotalIssues)
	fmt.Fprintf(bw, "| Files analyzed | %d of %d |\n", s.FilesAnalyzed, s.FilesDiscovered)
	fmt.Fprintf(bw, "| Coverage | %.0f%% |\n", s.Coverage*100)
	fmt.Fprintf(bw, "| Passes | %d (%s) |\n", s.Passes, s.TerminationReason)

	if s.TotalIssues > 0 {
		fmt.Fprintf(bw, "\n### By severity\n\n")
		for _, sev := range types.Severities {
			if n := s.BySeverity[sev]; n > 0 {
				fmt.Fprintf(bw, "- %s: %d\n", sev, n)
			}
		}
		fmt.Fprintf(bw, "\n### By category\n\n")
		for _, cat := range types.Categories {
			if n := s.ByCategory[cat]; n > 0 {
				fmt.Fprintf(bw, "- %s: %d\n", cat, n)
			}
		}
	}

	if len(s.Hotspots) > 0 {
		fmt.Fprintf(bw, "\n## Hotspots\n\n| File | Issues | Penalty |\n|---|---|---|\n")
		for i, h := range s.Hotspots {
			if i == maxHotspots {
				break
			}
			fmt.Fprintf(bw, "| `%s` | %d | %.1f |\n", h.Path, h.IssueCount, h.Penalty)
		}
	}

	writeIssues(bw, r.Issues)

	if len(r.Failures) > 0 {
		fmt.Fprintf(bw, "\n## Analyzer failures\n\n")
		for _, f := range r.Failures {
			fmt.Fprintf(bw, "- `%s` on `%s`: %s\n", f.Analyzer, f.File, f.Reason)
		}
	}
	if len(r.Skipped) > 0 {
		fmt.Fprintf(bw, "\n## Skipped files\n\n")
		for _, f := range r.Skipped {
			fmt.Fprintf(bw, "- `%s`: %s\n", f.Path, f.Reason)
		}
	}
	return bw.Flush()
}

func writeIssues(w io.Writer, issues []types.Issue) {
	if len(issues) == 0 {
		fmt.Fprintf(w, "\nNo issues found.\n")
		return
	}
	for _, sev := range types.Severities {
		var group []types.Issue
		for _, is := range issues {
			if is.Severity == sev {
				group = append(group, is)
			}
		}
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n## %s (%d)\n", strings.ToUpper(string(sev)), len(group))
		for _, is := range group {
			fmt.Fprintf(w, "\n### %s\n\n", is.Title)
			fmt.Fprintf(w, "`%s` · %s · %s\n", is.Location(), is.Category, is.Analyzer)
			if is.Description != "" {
				fmt.Fprintf(w, "\n%s\n", is.Description)
			}
			if is.CodeSnippet != "" {
				fmt.Fprintf(w, "\n```\n%s\n```\n", strings.TrimRight(is.CodeSnippet, "\n"))
			}
			if is.Suggestion != "" {
				fmt.Fprintf(w, "\n**Suggestion:** %s\n", is.Suggestion)
			}
		}
	}
}
