package analyzer

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"regexp"
	"strings"

	"github.com/dshills/codeaudit/pkg/types"
)

// PerformanceName is the registry name of the performance analyzer
const PerformanceName = "performance"

var (
	concatAssign  = regexp.MustCompile(`\b\w+(?:\.\w+)*\s*\+=\s*(?:["'\x60]|f["']|str\(|String\(|strconv\.)`)
	queryCall     = regexp.MustCompile(`\.(?:execute|executemany|query|Query|QueryRow|QueryContext|QueryRowContext|Exec|ExecContext|raw|findOne|findById|findUnique)\s*\(|\bobjects\.(?:get|filter)\s*\(`)
	regexpCompile = regexp.MustCompile(`\bre\.compile\s*\(|\bnew\s+RegExp\s*\(|\bregexp\.(?:Must)?Compile(?:POSIX)?\s*\(`)
)

// PerformanceAnalyzer reports work that scales badly inside loops
type PerformanceAnalyzer struct {
	opts Options
}

// NewPerformanceAnalyzer creates a performance analyzer
func NewPerformanceAnalyzer(opts Options) *PerformanceAnalyzer {
	return &PerformanceAnalyzer{opts: opts.withDefaults()}
}

func (a *PerformanceAnalyzer) Name() string { return PerformanceName }

func (a *PerformanceAnalyzer) Applicable(f types.File) bool {
	switch f.Language {
	case types.LangGo, types.LangPython, types.LangJavaScript, types.LangTypeScript,
		types.LangJava, types.LangCSharp, types.LangC, types.LangCPP, types.LangPHP, types.LangRust:
		return true
	}
	return false
}

func (a *PerformanceAnalyzer) Analyze(ctx context.Context, f types.File, src []byte) ([]types.Issue, error) {
	sf := newSourceFile(f, src)
	depths, headers := loopDepths(sf.lines, f.Language)

	var issues []types.Issue
	for i, line := range sf.lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isComment(trimmed, f.Language) {
			continue
		}
		lineNo := i + 1
		code := codeOnly(line, f.Language)

		if headers[i] && depths[i] >= 1 {
			nesting := depths[i] + 1
			sev := types.SeverityMedium
			if nesting >= 3 {
				sev = types.SeverityHigh
			}
			issue := sf.issue(PerformanceName, types.CategoryPerformance, sev, lineNo,
				"Nested Loop",
				fmt.Sprintf("Loop nested %d levels deep may have O(n^%d) cost", nesting, nesting),
				"Consider a lookup map or set, or restructure to avoid the inner loop")
			issue.EndLine = blockEnd(sf.lines, lineNo, f.Language)
			issue.Metadata = map[string]string{"nesting": fmt.Sprint(nesting)}
			issues = append(issues, issue)
		}
		if depths[i] == 0 {
			continue
		}

		if concatAssign.MatchString(code) {
			issues = append(issues, sf.issue(PerformanceName, types.CategoryPerformance, types.SeverityMedium, lineNo,
				"String Concatenation in Loop",
				"Repeated string concatenation copies the string on every iteration",
				concatSuggestion(f.Language)))
		}
		if queryCall.MatchString(code) {
			issues = append(issues, sf.issue(PerformanceName, types.CategoryPerformance, types.SeverityHigh, lineNo,
				"Database Query in Loop",
				"A query issued per iteration causes N+1 round trips",
				"Batch the lookups into a single query or prefetch the data before the loop"))
		}
		if f.Language != types.LangGo && regexpCompile.MatchString(code) {
			issues = append(issues, regexInLoop(sf, lineNo))
		}
	}

	if f.Language == types.LangGo {
		issues = append(issues, a.goLoopChecks(sf)...)
	}
	return issues, nil
}

func concatSuggestion(lang types.Language) string {
	switch lang {
	case types.LangGo:
		return "Use strings.Builder to accumulate the result"
	case types.LangPython:
		return "Collect parts in a list and use ''.join() after the loop"
	case types.LangJava:
		return "Use StringBuilder to accumulate the result"
	default:
		return "Collect parts in an array and join them after the loop"
	}
}

func regexInLoop(sf *sourceFile, line int) types.Issue {
	return sf.issue(PerformanceName, types.CategoryPerformance, types.SeverityMedium, line,
		"Regex Compiled in Loop",
		"The pattern is recompiled on every iteration",
		"Compile the regular expression once outside the loop")
}

// goLoopChecks uses go/ast to find defer statements and regexp compilation
// directly inside loop bodies. Function literals start a new scope, so a
// defer inside a goroutine closure is not reported.
func (a *PerformanceAnalyzer) goLoopChecks(sf *sourceFile) []types.Issue {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, sf.file.Path, sf.src, 0)
	if err != nil {
		return nil
	}

	var issues []types.Issue
	var inspectLoopBody func(n ast.Node) bool
	inspectLoopBody = func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.FuncLit:
			return false
		case *ast.DeferStmt:
			issues = append(issues, sf.issue(PerformanceName, types.CategoryPerformance, types.SeverityMedium,
				fset.Position(node.Pos()).Line,
				"Defer in Loop",
				"Deferred calls run only when the function returns and accumulate on every iteration",
				"Move the loop body into a function or release the resource explicitly"))
		case *ast.CallExpr:
			if sel, ok := node.Fun.(*ast.SelectorExpr); ok {
				if pkg, ok := sel.X.(*ast.Ident); ok && pkg.Name == "regexp" && strings.Contains(sel.Sel.Name, "Compile") {
					issues = append(issues, regexInLoop(sf, fset.Position(node.Pos()).Line))
				}
			}
		}
		return true
	}

	var visit func(n ast.Node) bool
	visit = func(n ast.Node) bool {
		var body *ast.BlockStmt
		switch loop := n.(type) {
		case *ast.ForStmt:
			body = loop.Body
		case *ast.RangeStmt:
			body = loop.Body
		default:
			return true
		}
		for _, stmt := range body.List {
			ast.Inspect(stmt, inspectLoopBody)
		}
		// Nested loops are already covered by the body walk
		ast.Inspect(body, func(inner ast.Node) bool {
			if lit, ok := inner.(*ast.FuncLit); ok {
				ast.Inspect(lit.Body, visit)
				return false
			}
			return true
		})
		return false
	}
	ast.Inspect(file, visit)
	return issues
}
