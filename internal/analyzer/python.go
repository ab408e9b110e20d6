package analyzer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dshills/codeaudit/internal/parser"
	"github.com/dshills/codeaudit/pkg/types"
)

// PythonName is the registry name of the Python analyzer
const PythonName = "python"

var (
	pyImportLine     = regexp.MustCompile(`^\s*import\s+(.+)$`)
	pyFromImportLine = regexp.MustCompile(`^\s*from\s+(\S+)\s+import\s+(.+)$`)
)

// PythonAnalyzer checks complexity, docstrings and imports in Python files
type PythonAnalyzer struct {
	opts   Options
	parser *parser.Parser
}

// NewPythonAnalyzer creates a Python analyzer
func NewPythonAnalyzer(opts Options) *PythonAnalyzer {
	return &PythonAnalyzer{opts: opts.withDefaults(), parser: parser.New()}
}

func (a *PythonAnalyzer) Name() string { return PythonName }

func (a *PythonAnalyzer) Applicable(f types.File) bool {
	return f.Language == types.LangPython
}

func (a *PythonAnalyzer) Analyze(ctx context.Context, f types.File, src []byte) ([]types.Issue, error) {
	sf := newSourceFile(f, src)

	result, err := a.parser.Parse(ctx, f.Path, src)
	if err != nil {
		return nil, err
	}

	var issues []types.Issue
	if len(result.Errors) > 0 {
		pe := result.Errors[0]
		issue := sf.issue(PythonName, types.CategoryStyle, types.SeverityCritical, pe.Line,
			"Syntax Error",
			fmt.Sprintf("Python syntax error: %s", pe.Message),
			"Fix the syntax error before proceeding with analysis")
		issue.Confidence = 0.9
		issues = append(issues, issue)
	}

	fns, err := a.parser.Functions(ctx, f.Path, src)
	if err != nil {
		return nil, err
	}
	issues = append(issues, a.checkComplexity(sf, fns)...)
	issues = append(issues, a.checkDocstrings(sf, result.Symbols)...)
	issues = append(issues, a.checkImports(sf)...)
	return issues, nil
}

func (a *PythonAnalyzer) checkComplexity(sf *sourceFile, fns []parser.Function) []types.Issue {
	var issues []types.Issue
	for _, fn := range fns {
		if fn.Cyclomatic <= a.opts.ComplexityThreshold {
			continue
		}
		sev := types.SeverityMedium
		if fn.Cyclomatic > a.opts.ComplexityThreshold+5 {
			sev = types.SeverityHigh
		}
		issue := sf.issue(PythonName, types.CategoryComplexity, sev, fn.StartLine,
			"High Cyclomatic Complexity",
			fmt.Sprintf("Function '%s' has complexity of %d", fn.Name, fn.Cyclomatic),
			"Consider breaking this function into smaller, more focused functions")
		issue.EndLine = fn.EndLine
		issue.CodeSnippet = FunctionSnippet(sf.lines, fn.StartLine, fn.EndLine)
		issue.Metadata = map[string]string{"function": fn.QualifiedName(), "complexity": fmt.Sprint(fn.Cyclomatic)}
		issues = append(issues, issue)
	}
	return issues
}

func (a *PythonAnalyzer) checkDocstrings(sf *sourceFile, symbols []types.Symbol) []types.Issue {
	var issues []types.Issue
	for _, sym := range symbols {
		if sym.DocComment != "" {
			continue
		}
		switch sym.Kind {
		case types.KindClass:
			issue := sf.issue(PythonName, types.CategoryDocumentation, types.SeverityLow, sym.Start.Line,
				"Missing Class Docstring",
				fmt.Sprintf("Class '%s' lacks a docstring", sym.Name),
				"Add a docstring describing the class purpose and usage")
			issue.Confidence = 0.95
			issues = append(issues, issue)
		case types.KindFunction, types.KindMethod:
			if strings.HasPrefix(sym.Name, "_") {
				continue
			}
			issue := sf.issue(PythonName, types.CategoryDocumentation, types.SeverityLow, sym.Start.Line,
				"Missing Docstring",
				fmt.Sprintf("Public function '%s' lacks a docstring", sym.Name),
				"Add a docstring describing the function's purpose, parameters, and return value")
			issue.CodeSnippet = FunctionSnippet(sf.lines, sym.Start.Line, sym.End.Line)
			issue.Confidence = 0.95
			issues = append(issues, issue)
		}
	}
	return issues
}

// checkImports reports modules or names imported more than once
func (a *PythonAnalyzer) checkImports(sf *sourceFile) []types.Issue {
	seen := make(map[string]int)
	var issues []types.Issue

	record := func(name string, line int) {
		if name == "" {
			return
		}
		if first, ok := seen[name]; ok {
			issues = append(issues, sf.issue(PythonName, types.CategoryStyle, types.SeverityLow, line,
				"Duplicate Import",
				fmt.Sprintf("Module '%s' is imported multiple times", name),
				fmt.Sprintf("Remove duplicate import (first import at line %d)", first)))
			return
		}
		seen[name] = line
	}

	for i := 0; i < len(sf.lines); i++ {
		line := codeOnly(sf.lines[i], types.LangPython)
		lineNo := i + 1

		if m := pyFromImportLine.FindStringSubmatch(line); m != nil {
			names := m[2]
			// Parenthesized imports may span lines
			if strings.Contains(names, "(") && !strings.Contains(names, ")") {
				for i+1 < len(sf.lines) {
					i++
					next := codeOnly(sf.lines[i], types.LangPython)
					names += " " + next
					if strings.Contains(next, ")") {
						break
					}
				}
			}
			names = strings.NewReplacer("(", " ", ")", " ", "\\", " ").Replace(names)
			for _, part := range strings.Split(names, ",") {
				fields := strings.Fields(part)
				if len(fields) == 0 {
					continue
				}
				record(m[1]+"."+fields[0], lineNo)
			}
			continue
		}
		if m := pyImportLine.FindStringSubmatch(line); m != nil {
			for _, part := range strings.Split(m[1], ",") {
				fields := strings.Fields(part)
				if len(fields) == 0 {
					continue
				}
				record(fields[0], lineNo)
			}
		}
	}
	return issues
}
