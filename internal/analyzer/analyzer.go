package analyzer

import (
	"context"
	"strings"

	"github.com/dshills/codeaudit/pkg/types"
)

// Analyzer inspects one file at a time and emits issues. Implementations
// must be safe for concurrent use across files.
type Analyzer interface {
	Name() string
	Applicable(f types.File) bool
	Analyze(ctx context.Context, f types.File, src []byte) ([]types.Issue, error)
}

// Finalizer is implemented by analyzers that report across files once
// every file of a session has been analyzed.
type Finalizer interface {
	Finalize(ctx context.Context) []types.Issue
}

// Options are the thresholds shared by the built-in analyzers
type Options struct {
	ComplexityThreshold int
	LongFunctionLines   int
	MinDuplicateLines   int
	RulesFile           string // TOML file of custom security rules
}

// DefaultOptions returns the built-in thresholds
func DefaultOptions() Options {
	return Options{
		ComplexityThreshold: 10,
		LongFunctionLines:   50,
		MinDuplicateLines:   5,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ComplexityThreshold <= 0 {
		o.ComplexityThreshold = d.ComplexityThreshold
	}
	if o.LongFunctionLines <= 0 {
		o.LongFunctionLines = d.LongFunctionLines
	}
	if o.MinDuplicateLines <= 0 {
		o.MinDuplicateLines = d.MinDuplicateLines
	}
	return o
}

// sourceFile is a file's content split for line-oriented checks
type sourceFile struct {
	file  types.File
	src   []byte
	lines []string
}

func newSourceFile(f types.File, src []byte) *sourceFile {
	text := strings.ReplaceAll(string(src), "\r\n", "\n")
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return &sourceFile{file: f, src: src, lines: lines}
}

// issue builds an issue at line with a marked snippet
func (s *sourceFile) issue(analyzer string, cat types.Category, sev types.Severity, line int, title, desc, suggestion string) types.Issue {
	return types.Issue{
		Title:       title,
		Description: desc,
		Severity:    sev,
		Category:    cat,
		FilePath:    s.file.Path,
		LineNumber:  line,
		CodeSnippet: MarkedSnippet(s.lines, line, DefaultContextLines),
		Suggestion:  suggestion,
		Analyzer:    analyzer,
		Confidence:  0.8,
	}
}

func isTestFile(f types.File) bool {
	return f.Role == types.RoleTest
}
