package analyzer

import (
	"context"
	"fmt"

	"github.com/dshills/codeaudit/internal/parser"
	"github.com/dshills/codeaudit/pkg/types"
)

// ComplexityName is the registry name of the complexity analyzer
const ComplexityName = "complexity"

// maxNesting is the deepest control-flow nesting tolerated in a function
const maxNesting = 4

// ComplexityAnalyzer reports functions whose cyclomatic complexity or
// nesting depth exceeds the configured limits
type ComplexityAnalyzer struct {
	opts   Options
	parser *parser.Parser
}

// NewComplexityAnalyzer creates a complexity analyzer
func NewComplexityAnalyzer(opts Options) *ComplexityAnalyzer {
	return &ComplexityAnalyzer{opts: opts.withDefaults(), parser: parser.New()}
}

func (a *ComplexityAnalyzer) Name() string { return ComplexityName }

func (a *ComplexityAnalyzer) Applicable(f types.File) bool {
	return parser.Supports(f.Language)
}

func (a *ComplexityAnalyzer) Analyze(ctx context.Context, f types.File, src []byte) ([]types.Issue, error) {
	fns, err := a.parser.Functions(ctx, f.Path, src)
	if err != nil {
		return nil, err
	}

	sf := newSourceFile(f, src)
	var issues []types.Issue
	for _, fn := range fns {
		name := fn.QualifiedName()
		if fn.Cyclomatic > a.opts.ComplexityThreshold {
			sev := types.SeverityMedium
			if fn.Cyclomatic > 2*a.opts.ComplexityThreshold {
				sev = types.SeverityHigh
			}
			issue := sf.issue(ComplexityName, types.CategoryComplexity, sev, fn.StartLine,
				"High Cyclomatic Complexity",
				fmt.Sprintf("Function '%s' has complexity of %d (threshold %d)", name, fn.Cyclomatic, a.opts.ComplexityThreshold),
				"Consider breaking this function into smaller, more focused functions")
			issue.EndLine = fn.EndLine
			issue.CodeSnippet = FunctionSnippet(sf.lines, fn.StartLine, fn.EndLine)
			issue.Metadata = map[string]string{"function": name, "complexity": fmt.Sprint(fn.Cyclomatic)}
			issues = append(issues, issue)
		}
		if fn.MaxNesting > maxNesting {
			issue := sf.issue(ComplexityName, types.CategoryMaintainability, types.SeverityMedium, fn.StartLine,
				"Deep Nesting",
				fmt.Sprintf("Function '%s' nests control flow %d levels deep", name, fn.MaxNesting),
				"Use guard clauses and early returns to reduce nesting")
			issue.EndLine = fn.EndLine
			issue.Metadata = map[string]string{"function": name, "nesting": fmt.Sprint(fn.MaxNesting)}
			issues = append(issues, issue)
		}
	}
	return issues, nil
}
