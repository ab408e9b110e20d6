package types

import "time"

// Termination reasons recorded when an analysis session stops.
const (
	TerminationAllAnalyzed     = "all_analyzed"
	TerminationMaxPasses       = "max_passes"
	TerminationBudgetExhausted = "budget_exhausted"
	TerminationCanceled        = "canceled"
)

// AnalyzerFailure records one analyzer that failed on one file.
type AnalyzerFailure struct {
	Analyzer string `json:"analyzer" yaml:"analyzer"`
	File     string `json:"file" yaml:"file"`
	Reason   string `json:"reason" yaml:"reason"`
}

// SkippedFile records a file that was discovered but not analyzed or indexed.
type SkippedFile struct {
	Path   string `json:"path" yaml:"path"`
	Reason string `json:"reason" yaml:"reason"`
}

// ProjectInfo summarizes what the repository's manifests declare.
type ProjectInfo struct {
	Type           string         `json:"type" yaml:"type"`
	Name           string         `json:"name,omitempty" yaml:"name,omitempty"`
	Dependencies   []string       `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	TestFrameworks []string       `json:"test_frameworks,omitempty" yaml:"test_frameworks,omitempty"`
	Languages      map[string]int `json:"languages,omitempty" yaml:"languages,omitempty"`
}

// Summary carries the headline numbers of a report.
type Summary struct {
	QualityScore      float64          `json:"quality_score" yaml:"quality_score"`
	FilesAnalyzed     int              `json:"files_analyzed" yaml:"files_analyzed"`
	FilesDiscovered   int              `json:"files_discovered" yaml:"files_discovered"`
	TotalIssues       int              `json:"total_issues" yaml:"total_issues"`
	BySeverity        map[Severity]int `json:"by_severity" yaml:"by_severity"`
	ByCategory        map[Category]int `json:"by_category" yaml:"by_category"`
	FilesAffected     int              `json:"files_affected" yaml:"files_affected"`
	Coverage          float64          `json:"coverage" yaml:"coverage"`
	Passes            int              `json:"passes" yaml:"passes"`
	TerminationReason string           `json:"termination_reason" yaml:"termination_reason"`
	CoverageByPass    []float64        `json:"coverage_by_pass,omitempty" yaml:"coverage_by_pass,omitempty"`
	Hotspots          []FileHotspot    `json:"hotspots,omitempty" yaml:"hotspots,omitempty"`
}

// FileHotspot is a file ranked by the weight of its issues.
type FileHotspot struct {
	Path       string  `json:"path" yaml:"path"`
	IssueCount int     `json:"issue_count" yaml:"issue_count"`
	Penalty    float64 `json:"penalty" yaml:"penalty"`
}

// Report is the outcome of one analysis session.
type Report struct {
	ID        string            `json:"analysis_id" yaml:"analysis_id"`
	Source    string            `json:"source" yaml:"source"`
	CreatedAt time.Time         `json:"created_at" yaml:"created_at"`
	Duration  time.Duration     `json:"duration" yaml:"duration"`
	Summary   Summary           `json:"summary" yaml:"summary"`
	Project   ProjectInfo       `json:"project" yaml:"project"`
	Issues    []Issue           `json:"issues" yaml:"issues"`
	Failures  []AnalyzerFailure `json:"failures,omitempty" yaml:"failures,omitempty"`
	Skipped   []SkippedFile     `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Files     []string          `json:"files" yaml:"files"`
}

// ChatExchange is one question answered over a scope.
type ChatExchange struct {
	Question           string    `json:"question" yaml:"question"`
	Answer             string    `json:"answer" yaml:"answer"`
	AnalyzedFiles      []string  `json:"analyzed_files" yaml:"analyzed_files"`
	FilesAnalyzedCount int       `json:"files_analyzed_count" yaml:"files_analyzed_count"`
	Timestamp          time.Time `json:"timestamp" yaml:"timestamp"`
	Mode               string    `json:"mode" yaml:"mode"`
	Warnings           []string  `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}
