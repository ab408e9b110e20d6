package analyzer

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"strings"

	srcparser "github.com/dshills/codeaudit/internal/parser"
	"github.com/dshills/codeaudit/pkg/types"
)

// GoName is the registry name of the Go analyzer
const GoName = "go"

// cognitiveThreshold is the cognitive complexity above which a Go function is
// reported
const cognitiveThreshold = 15

// GoAnalyzer checks Go sources with go/ast: cognitive complexity, missing
// doc comments on exported declarations and panics in library code.
type GoAnalyzer struct {
	opts   Options
	parser *srcparser.Parser
}

// NewGoAnalyzer creates a Go analyzer
func NewGoAnalyzer(opts Options) *GoAnalyzer {
	return &GoAnalyzer{opts: opts.withDefaults(), parser: srcparser.New()}
}

func (a *GoAnalyzer) Name() string { return GoName }

func (a *GoAnalyzer) Applicable(f types.File) bool {
	return f.Language == types.LangGo
}

func (a *GoAnalyzer) Analyze(ctx context.Context, f types.File, src []byte) ([]types.Issue, error) {
	sf := newSourceFile(f, src)

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, f.Path, src, parser.ParseComments)
	if err != nil {
		issue := sf.issue(GoName, types.CategoryStyle, types.SeverityCritical, syntaxErrorLine(err),
			"Syntax Error",
			fmt.Sprintf("Go syntax error: %v", err),
			"Fix the syntax error before proceeding with analysis")
		issue.Confidence = 0.9
		return []types.Issue{issue}, nil
	}

	fns, err := a.parser.Functions(ctx, f.Path, src)
	if err != nil {
		return nil, err
	}

	var issues []types.Issue
	issues = append(issues, a.checkCognitive(sf, fns)...)
	if !isTestFile(f) {
		issues = append(issues, a.checkDocs(sf, fset, file)...)
		if file.Name.Name != "main" {
			issues = append(issues, a.checkPanics(sf, fset, file)...)
		}
	}
	return issues, nil
}

func syntaxErrorLine(err error) int {
	var list scanner.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		return list[0].Pos.Line
	}
	return 0
}

func (a *GoAnalyzer) checkCognitive(sf *sourceFile, fns []srcparser.Function) []types.Issue {
	var issues []types.Issue
	for _, fn := range fns {
		if fn.Cognitive <= cognitiveThreshold {
			continue
		}
		sev := types.SeverityMedium
		if fn.Cognitive > 2*cognitiveThreshold {
			sev = types.SeverityHigh
		}
		issue := sf.issue(GoName, types.CategoryComplexity, sev, fn.StartLine,
			"High Cognitive Complexity",
			fmt.Sprintf("Function '%s' has cognitive complexity of %d", fn.QualifiedName(), fn.Cognitive),
			"Flatten nested conditionals with early returns or extract helpers")
		issue.EndLine = fn.EndLine
		issue.CodeSnippet = FunctionSnippet(sf.lines, fn.StartLine, fn.EndLine)
		issue.Metadata = map[string]string{"function": fn.QualifiedName(), "cognitive": fmt.Sprint(fn.Cognitive)}
		issues = append(issues, issue)
	}
	return issues
}

func (a *GoAnalyzer) checkDocs(sf *sourceFile, fset *token.FileSet, file *ast.File) []types.Issue {
	var issues []types.Issue
	missing := func(kind, name string, pos token.Pos) {
		issue := sf.issue(GoName, types.CategoryDocumentation, types.SeverityLow, fset.Position(pos).Line,
			"Missing Doc Comment",
			fmt.Sprintf("Exported %s '%s' has no doc comment", kind, name),
			fmt.Sprintf("Add a comment starting with '%s' describing its purpose", name))
		issue.Confidence = 0.95
		issues = append(issues, issue)
	}

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if !d.Name.IsExported() || d.Doc != nil {
				continue
			}
			if d.Recv != nil && !exportedReceiver(d.Recv) {
				continue
			}
			kind := "function"
			if d.Recv != nil {
				kind = "method"
			}
			missing(kind, d.Name.Name, d.Pos())
		case *ast.GenDecl:
			if d.Tok != token.TYPE && d.Tok != token.CONST && d.Tok != token.VAR {
				continue
			}
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					if s.Name.IsExported() && s.Doc == nil && d.Doc == nil {
						missing("type", s.Name.Name, s.Pos())
					}
				case *ast.ValueSpec:
					// Grouped constants share the group's comment
					if d.Lparen.IsValid() || s.Doc != nil || d.Doc != nil {
						continue
					}
					for _, name := range s.Names {
						if name.IsExported() {
							missing(strings.ToLower(d.Tok.String()), name.Name, name.Pos())
						}
					}
				}
			}
		}
	}
	return issues
}

func exportedReceiver(recv *ast.FieldList) bool {
	if len(recv.List) == 0 {
		return false
	}
	expr := recv.List[0].Type
	for {
		switch t := expr.(type) {
		case *ast.StarExpr:
			expr = t.X
		case *ast.IndexExpr:
			expr = t.X
		case *ast.IndexListExpr:
			expr = t.X
		case *ast.Ident:
			return t.IsExported()
		default:
			return false
		}
	}
}

func (a *GoAnalyzer) checkPanics(sf *sourceFile, fset *token.FileSet, file *ast.File) []types.Issue {
	var issues []types.Issue
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}
		// init and Must* helpers panic by convention
		if fn.Name.Name == "init" || strings.HasPrefix(fn.Name.Name, "Must") {
			continue
		}
		ast.Inspect(fn.Body, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			if ident, ok := call.Fun.(*ast.Ident); ok && ident.Name == "panic" {
				issues = append(issues, sf.issue(GoName, types.CategoryMaintainability, types.SeverityMedium,
					fset.Position(call.Pos()).Line,
					"Panic in Library Code",
					fmt.Sprintf("Function '%s' calls panic", fn.Name.Name),
					"Return an error to the caller instead of panicking"))
			}
			return true
		})
	}
	return issues
}
