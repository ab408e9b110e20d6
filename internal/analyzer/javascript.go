package analyzer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dshills/codeaudit/internal/parser"
	"github.com/dshills/codeaudit/pkg/types"
)

// JavaScriptName is the registry name of the JavaScript/TypeScript analyzer
const JavaScriptName = "javascript"

var (
	consolePattern = regexp.MustCompile(`\bconsole\.(?:log|debug|info|warn|error)\b`)
	varPattern     = regexp.MustCompile(`\bvar\s+[A-Za-z_$]`)
	// Three nested function expressions with no closing brace between them
	callbackHellPattern = regexp.MustCompile(`function\s*\([^)]*\)\s*\{[^}]*function\s*\([^)]*\)\s*\{[^}]*function\s*\([^)]*\)`)
	arrowCallbackHeader = regexp.MustCompile(`\([^()]*\)\s*=>\s*\{\s*$|function\s*\([^)]*\)\s*\{\s*$`)
)

// maxCallbackDepth is the number of nested callbacks tolerated
const maxCallbackDepth = 3

// JavaScriptAnalyzer checks console statements, long functions, callback
// nesting and var usage in JavaScript and TypeScript
type JavaScriptAnalyzer struct {
	opts   Options
	parser *parser.Parser
}

// NewJavaScriptAnalyzer creates a JavaScript/TypeScript analyzer
func NewJavaScriptAnalyzer(opts Options) *JavaScriptAnalyzer {
	return &JavaScriptAnalyzer{opts: opts.withDefaults(), parser: parser.New()}
}

func (a *JavaScriptAnalyzer) Name() string { return JavaScriptName }

func (a *JavaScriptAnalyzer) Applicable(f types.File) bool {
	return f.Language == types.LangJavaScript || f.Language == types.LangTypeScript
}

func (a *JavaScriptAnalyzer) Analyze(ctx context.Context, f types.File, src []byte) ([]types.Issue, error) {
	sf := newSourceFile(f, src)

	var issues []types.Issue
	issues = append(issues, a.checkConsole(sf)...)
	issues = append(issues, a.checkVar(sf)...)

	fns, err := a.parser.Functions(ctx, f.Path, src)
	if err != nil {
		return nil, err
	}
	issues = append(issues, a.checkLongFunctions(sf, fns)...)
	issues = append(issues, a.checkCallbackHell(sf)...)
	return issues, nil
}

func (a *JavaScriptAnalyzer) checkConsole(sf *sourceFile) []types.Issue {
	var issues []types.Issue
	for i, line := range sf.lines {
		if isComment(strings.TrimSpace(line), sf.file.Language) {
			continue
		}
		if consolePattern.MatchString(codeOnly(line, sf.file.Language)) {
			issues = append(issues, sf.issue(JavaScriptName, types.CategoryStyle, types.SeverityLow, i+1,
				"Console Statement Found",
				"Console statements should be removed in production code",
				"Use a proper logging library or remove the console statement"))
		}
	}
	return issues
}

func (a *JavaScriptAnalyzer) checkVar(sf *sourceFile) []types.Issue {
	var issues []types.Issue
	for i, line := range sf.lines {
		if isComment(strings.TrimSpace(line), sf.file.Language) {
			continue
		}
		if varPattern.MatchString(codeOnly(line, sf.file.Language)) {
			issue := sf.issue(JavaScriptName, types.CategoryStyle, types.SeverityLow, i+1,
				"Using 'var' Instead of 'let' or 'const'",
				"'var' has function scope which can lead to bugs",
				"Use 'let' for variables that change or 'const' for constants")
			issue.Confidence = 0.95
			issues = append(issues, issue)
		}
	}
	return issues
}

func (a *JavaScriptAnalyzer) checkLongFunctions(sf *sourceFile, fns []parser.Function) []types.Issue {
	var issues []types.Issue
	for _, fn := range fns {
		// Counted as newlines within the body, so a one-line function is 0
		span := fn.EndLine - fn.StartLine
		if span <= a.opts.LongFunctionLines {
			continue
		}
		sev := types.SeverityMedium
		if span >= 2*a.opts.LongFunctionLines {
			sev = types.SeverityHigh
		}
		issue := sf.issue(JavaScriptName, types.CategoryComplexity, sev, fn.StartLine,
			"Long Function",
			fmt.Sprintf("Function '%s' has %d lines", fn.QualifiedName(), span),
			"Consider breaking this function into smaller, more focused functions")
		issue.EndLine = fn.EndLine
		issue.Metadata = map[string]string{"function": fn.QualifiedName(), "lines": fmt.Sprint(span)}
		issues = append(issues, issue)
	}
	return issues
}

// checkCallbackHell reports nested callback chains. Both the classic
// function-expression pattern and arrow callbacks opened at the end of a
// line count toward nesting.
func (a *JavaScriptAnalyzer) checkCallbackHell(sf *sourceFile) []types.Issue {
	reported := make(map[int]bool)
	var issues []types.Issue

	report := func(line int) {
		if reported[line] {
			return
		}
		reported[line] = true
		issues = append(issues, sf.issue(JavaScriptName, types.CategoryComplexity, types.SeverityMedium, line,
			"Callback Hell Detected",
			"Deeply nested callbacks make code hard to read and maintain",
			"Consider using Promises or async/await to flatten the callback structure"))
	}

	content := strings.Join(sf.lines, "\n")
	for _, loc := range callbackHellPattern.FindAllStringIndex(content, -1) {
		report(strings.Count(content[:loc[0]], "\n") + 1)
	}

	// stack holds the brace depth and start line of each open callback
	type frame struct{ depth, line int }
	var stack []frame
	depth := 0
	for i, line := range sf.lines {
		code := codeOnly(line, sf.file.Language)
		for len(stack) > 0 && depth < stack[len(stack)-1].depth {
			stack = stack[:len(stack)-1]
		}
		if arrowCallbackHeader.MatchString(code) && strings.Contains(code, "(") && callbackArgument(code) {
			stack = append(stack, frame{depth: depth + braceDelta(code), line: i + 1})
			if len(stack) == maxCallbackDepth {
				report(stack[0].line)
			}
		}
		depth += braceDelta(code)
		if depth < 0 {
			depth = 0
		}
	}
	return issues
}

// callbackArgument reports whether the function opened on this line is
// passed as an argument rather than declared or assigned.
func callbackArgument(code string) bool {
	trimmed := strings.TrimSpace(code)
	if strings.HasPrefix(trimmed, "function") || strings.HasPrefix(trimmed, "async function") {
		return false
	}
	if strings.Contains(trimmed, "=>") {
		head := trimmed[:strings.Index(trimmed, "=>")]
		open := strings.LastIndex(head, "(")
		if open <= 0 {
			return false
		}
		before := strings.TrimSpace(head[:open])
		return strings.HasSuffix(before, "(") || strings.HasSuffix(before, ",") || strings.HasSuffix(before, "async")
	}
	idx := strings.Index(trimmed, "function")
	before := strings.TrimSpace(trimmed[:idx])
	return strings.HasSuffix(before, "(") || strings.HasSuffix(before, ",")
}
