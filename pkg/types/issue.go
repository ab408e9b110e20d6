package types

import "fmt"

// Severity grades how urgently an issue should be addressed.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Severities lists severities from most to least urgent.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

// Rank returns 0 for critical through 4 for info; unknown severities sort last.
func (s Severity) Rank() int {
	for i, sev := range Severities {
		if sev == s {
			return i
		}
	}
	return len(Severities)
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s.Rank() < len(Severities)
}

// Category groups issues by the kind of problem found.
type Category string

const (
	CategorySecurity        Category = "security"
	CategoryPerformance     Category = "performance"
	CategoryComplexity      Category = "complexity"
	CategoryDuplication     Category = "duplication"
	CategoryTesting         Category = "testing"
	CategoryMaintainability Category = "maintainability"
	CategoryDocumentation   Category = "documentation"
	CategoryStyle           Category = "style"
)

// Categories lists categories in reporting priority order.
var Categories = []Category{
	CategorySecurity,
	CategoryPerformance,
	CategoryComplexity,
	CategoryDuplication,
	CategoryTesting,
	CategoryMaintainability,
	CategoryDocumentation,
	CategoryStyle,
}

// Priority returns the category's position in Categories; unknown categories sort last.
func (c Category) Priority() int {
	for i, cat := range Categories {
		if cat == c {
			return i
		}
	}
	return len(Categories)
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c.Priority() < len(Categories)
}

// Issue is a single finding emitted by an analyzer.
type Issue struct {
	Title       string            `json:"title" yaml:"title"`
	Description string            `json:"description" yaml:"description"`
	Severity    Severity          `json:"severity" yaml:"severity"`
	Category    Category          `json:"category" yaml:"category"`
	FilePath    string            `json:"file_path" yaml:"file_path"`
	LineNumber  int               `json:"line_number,omitempty" yaml:"line_number,omitempty"`
	EndLine     int               `json:"end_line,omitempty" yaml:"end_line,omitempty"`
	CodeSnippet string            `json:"code_snippet,omitempty" yaml:"code_snippet,omitempty"`
	Suggestion  string            `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
	Analyzer    string            `json:"analyzer" yaml:"analyzer"`
	Confidence  float64           `json:"confidence" yaml:"confidence"`
	AIDetected  bool              `json:"ai_detected" yaml:"ai_detected"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Validate checks the issue's required fields.
func (i *Issue) Validate() error {
	if i.Title == "" {
		return ErrMissingTitle
	}
	if !i.Severity.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSeverity, i.Severity)
	}
	if !i.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, i.Category)
	}
	if i.FilePath == "" {
		return ErrMissingFilePath
	}
	if i.LineNumber < 0 || i.EndLine < 0 {
		return ErrInvalidLine
	}
	return nil
}

// Span returns the issue's line range. Issues without a line use line 0.
func (i *Issue) Span() (int, int) {
	end := i.EndLine
	if end < i.LineNumber {
		end = i.LineNumber
	}
	return i.LineNumber, end
}

// Location formats the issue's file and line for display.
func (i *Issue) Location() string {
	if i.LineNumber > 0 {
		return fmt.Sprintf("%s:%d", i.FilePath, i.LineNumber)
	}
	return i.FilePath
}
