package parser

import (
	"fmt"
	"go/ast"
	goparser "go/parser"
	"go/token"
	"strconv"
	"strings"

	"github.com/dshills/codeaudit/pkg/types"
)

// parseGo extracts functions, methods and named struct or interface types
func (p *Parser) parseGo(filePath string, src []byte) *types.ParseResult {
	result := &types.ParseResult{}

	file, err := goparser.ParseFile(p.fset, filePath, src, goparser.ParseComments)
	if err != nil {
		// go/parser returns a partial AST alongside syntax errors
		result.AddError(filePath, 0, 0, fmt.Sprintf("syntax error: %v", err))
	}
	if file == nil {
		return result
	}

	if file.Name != nil {
		result.Module = file.Name.Name
	}
	result.Imports = p.extractImports(file)

	extractor := &symbolExtractor{fset: p.fset}
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			extractor.extractFunction(d)
		case *ast.GenDecl:
			extractor.extractGenDecl(d)
		}
	}
	result.Symbols = extractor.symbols
	return result
}

// extractImports extracts import statements from the AST
func (p *Parser) extractImports(file *ast.File) []types.Import {
	imports := make([]types.Import, 0, len(file.Imports))

	for _, imp := range file.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			path = strings.Trim(imp.Path.Value, "\"`")
		}
		spec := types.Import{
			Path: path,
			Line: p.fset.Position(imp.Pos()).Line,
		}
		if imp.Name != nil {
			spec.Alias = imp.Name.Name
		}
		imports = append(imports, spec)
	}

	return imports
}

type symbolExtractor struct {
	fset    *token.FileSet
	symbols []types.Symbol
}

// extractFunction extracts function and method declarations
func (e *symbolExtractor) extractFunction(fn *ast.FuncDecl) {
	sym := types.Symbol{
		Name:       fn.Name.Name,
		Kind:       types.KindFunction,
		DocComment: docText(fn.Doc),
		Start:      e.position(fn.Pos()),
		End:        e.position(fn.End()),
		Signature:  e.functionSignature(fn),
	}

	if fn.Recv != nil && len(fn.Recv.List) > 0 {
		sym.Kind = types.KindMethod
		sym.Parent = receiverType(fn.Recv.List[0].Type)
	}

	e.symbols = append(e.symbols, sym)
}

// extractGenDecl extracts struct and interface type declarations. Both
// map onto the class kind.
func (e *symbolExtractor) extractGenDecl(gen *ast.GenDecl) {
	if gen.Tok != token.TYPE {
		return
	}
	for _, spec := range gen.Specs {
		ts, ok := spec.(*ast.TypeSpec)
		if !ok {
			continue
		}

		var sig string
		switch t := ts.Type.(type) {
		case *ast.StructType:
			sig = fmt.Sprintf("type %s struct { ... } // %d fields", ts.Name.Name, t.Fields.NumFields())
		case *ast.InterfaceType:
			sig = fmt.Sprintf("type %s interface { ... } // %d methods", ts.Name.Name, t.Methods.NumFields())
		default:
			continue
		}

		doc := ts.Doc
		if doc == nil && len(gen.Specs) == 1 {
			doc = gen.Doc
		}

		// A lone spec spans its whole declaration, including the type keyword
		start, end := ts.Pos(), ts.End()
		if len(gen.Specs) == 1 {
			start, end = gen.Pos(), gen.End()
		}

		e.symbols = append(e.symbols, types.Symbol{
			Name:       ts.Name.Name,
			Kind:       types.KindClass,
			DocComment: docText(doc),
			Signature:  sig,
			Start:      e.position(start),
			End:        e.position(end),
		})
	}
}

// receiverType extracts the receiver type name from a method
func receiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverType(t.X)
	case *ast.IndexExpr:
		return receiverType(t.X)
	case *ast.IndexListExpr:
		return receiverType(t.X)
	case *ast.Ident:
		return t.Name
	}
	return ""
}

// functionSignature builds a function signature string
func (e *symbolExtractor) functionSignature(fn *ast.FuncDecl) string {
	var sig strings.Builder

	sig.WriteString("func ")
	if fn.Recv != nil && len(fn.Recv.List) > 0 {
		sig.WriteString("(")
		sig.WriteString(exprString(fn.Recv.List[0].Type))
		sig.WriteString(") ")
	}

	sig.WriteString(fn.Name.Name)
	sig.WriteString("(")
	sig.WriteString(fieldListString(fn.Type.Params))
	sig.WriteString(")")

	if fn.Type.Results != nil {
		results := fieldListString(fn.Type.Results)
		switch {
		case results == "":
		case fn.Type.Results.NumFields() > 1 || len(fn.Type.Results.List[0].Names) > 0:
			sig.WriteString(" (" + results + ")")
		default:
			sig.WriteString(" " + results)
		}
	}

	return sig.String()
}

// fieldListString converts a field list to a string representation
func fieldListString(fields *ast.FieldList) string {
	if fields == nil || len(fields.List) == 0 {
		return ""
	}

	var parts []string
	for _, field := range fields.List {
		typeStr := exprString(field.Type)
		if len(field.Names) == 0 {
			parts = append(parts, typeStr)
			continue
		}
		for _, name := range field.Names {
			parts = append(parts, name.Name+" "+typeStr)
		}
	}
	return strings.Join(parts, ", ")
}

// exprString converts a type expression to a string representation
func exprString(expr ast.Expr) string {
	switch t := expr.(type) {
	case nil:
		return ""
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + exprString(t.X)
	case *ast.ArrayType:
		return "[]" + exprString(t.Elt)
	case *ast.MapType:
		return fmt.Sprintf("map[%s]%s", exprString(t.Key), exprString(t.Value))
	case *ast.ChanType:
		return "chan " + exprString(t.Value)
	case *ast.FuncType:
		return "func(...)"
	case *ast.InterfaceType:
		return "interface{}"
	case *ast.SelectorExpr:
		return exprString(t.X) + "." + t.Sel.Name
	case *ast.Ellipsis:
		return "..." + exprString(t.Elt)
	case *ast.IndexExpr:
		return exprString(t.X) + "[" + exprString(t.Index) + "]"
	default:
		return "..."
	}
}

// docText returns the comment group text, trimmed
func docText(doc *ast.CommentGroup) string {
	if doc == nil {
		return ""
	}
	return strings.TrimSpace(doc.Text())
}

func (e *symbolExtractor) position(pos token.Pos) types.Position {
	p := e.fset.Position(pos)
	return types.Position{Line: p.Line, Column: p.Column}
}

// goFunctions computes complexity metrics for every function declaration
// and function literal bound at top level.
func (p *Parser) goFunctions(filePath string, src []byte) []Function {
	file, _ := goparser.ParseFile(p.fset, filePath, src, 0)
	if file == nil {
		return nil
	}

	var fns []Function
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}
		f := Function{
			Name:      fn.Name.Name,
			Kind:      types.KindFunction,
			StartLine: p.fset.Position(fn.Pos()).Line,
			EndLine:   p.fset.Position(fn.End()).Line,
		}
		if fn.Recv != nil && len(fn.Recv.List) > 0 {
			f.Kind = types.KindMethod
			f.Parent = receiverType(fn.Recv.List[0].Type)
		}
		m := &goMetrics{}
		m.walk(fn.Body, 0)
		f.Cyclomatic = 1 + m.decisions
		f.Cognitive = m.cognitive
		f.MaxNesting = m.maxNesting
		fns = append(fns, f)
	}
	return fns
}

type goMetrics struct {
	decisions  int
	cognitive  int
	maxNesting int
}

// walk visits node at the given nesting depth. Branching statements add a
// decision and open a deeper nesting level for their bodies.
func (m *goMetrics) walk(node ast.Node, depth int) {
	if node == nil {
		return
	}
	if depth > m.maxNesting {
		m.maxNesting = depth
	}

	ast.Inspect(node, func(n ast.Node) bool {
		if n == node {
			return true
		}
		switch x := n.(type) {
		case *ast.IfStmt:
			m.decide(depth)
			m.walkExpr(x.Cond, depth)
			m.walk(x.Body, depth+1)
			if x.Else != nil {
				if elseIf, ok := x.Else.(*ast.IfStmt); ok {
					m.walk(&ast.BlockStmt{List: []ast.Stmt{elseIf}}, depth)
				} else {
					m.walk(x.Else, depth+1)
				}
			}
			return false
		case *ast.ForStmt:
			m.decide(depth)
			m.walkExpr(x.Cond, depth)
			m.walk(x.Body, depth+1)
			return false
		case *ast.RangeStmt:
			m.decide(depth)
			m.walk(x.Body, depth+1)
			return false
		case *ast.SwitchStmt, *ast.TypeSwitchStmt, *ast.SelectStmt:
			m.cognitive += 1 + depth
			m.walkClauses(x, depth+1)
			return false
		case *ast.FuncLit:
			m.walk(x.Body, depth+1)
			return false
		case *ast.BinaryExpr:
			if x.Op == token.LAND || x.Op == token.LOR {
				m.decisions++
				m.cognitive++
			}
		}
		return true
	})
}

func (m *goMetrics) walkExpr(expr ast.Expr, depth int) {
	if expr != nil {
		m.walk(expr, depth)
	}
}

func (m *goMetrics) walkClauses(stmt ast.Node, depth int) {
	var body *ast.BlockStmt
	switch s := stmt.(type) {
	case *ast.SwitchStmt:
		body = s.Body
	case *ast.TypeSwitchStmt:
		body = s.Body
	case *ast.SelectStmt:
		body = s.Body
	}
	if body == nil {
		return
	}
	if depth > m.maxNesting {
		m.maxNesting = depth
	}
	for _, c := range body.List {
		switch cl := c.(type) {
		case *ast.CaseClause:
			if cl.List != nil {
				m.decisions++
			}
			for _, s := range cl.Body {
				m.walk(&ast.BlockStmt{List: []ast.Stmt{s}}, depth)
			}
		case *ast.CommClause:
			if cl.Comm != nil {
				m.decisions++
			}
			for _, s := range cl.Body {
				m.walk(&ast.BlockStmt{List: []ast.Stmt{s}}, depth)
			}
		}
	}
}

func (m *goMetrics) decide(depth int) {
	m.decisions++
	m.cognitive += 1 + depth
}
