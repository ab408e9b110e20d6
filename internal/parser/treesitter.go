//go:build cgo

package parser

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/dshills/codeaudit/pkg/types"
)

// TreeSitterAvailable reports whether Python and JavaScript/TypeScript are
// parsed with tree-sitter grammars.
const TreeSitterAvailable = true

func grammar(filePath string, lang types.Language) (*sitter.Language, error) {
	switch lang {
	case types.LangPython:
		return python.GetLanguage(), nil
	case types.LangJavaScript:
		return javascript.GetLanguage(), nil
	case types.LangTypeScript:
		if strings.HasSuffix(strings.ToLower(filePath), ".tsx") {
			return tsx.GetLanguage(), nil
		}
		return typescript.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("%s: %w", lang, ErrUnsupportedLanguage)
	}
}

// parseTree returns the root node of src. sitter.Parser is not safe for
// concurrent use, so each call gets its own.
func parseTree(ctx context.Context, filePath string, src []byte, lang types.Language) (*sitter.Node, error) {
	g, err := grammar(filePath, lang)
	if err != nil {
		return nil, err
	}
	p := sitter.NewParser()
	p.SetLanguage(g)
	tree, err := p.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return tree.RootNode(), nil
}

func parseSource(ctx context.Context, filePath string, src []byte, lang types.Language) (*types.ParseResult, error) {
	root, err := parseTree(ctx, filePath, src, lang)
	if err != nil {
		return nil, err
	}

	result := &types.ParseResult{}
	if root.HasError() {
		line := 0
		if n := firstError(root); n != nil {
			line = int(n.StartPoint().Row) + 1
		}
		result.AddError(filePath, line, 0, "syntax error")
	}

	w := &treeWalker{src: src, lang: lang, result: result}
	w.walk(root, "")
	return result, nil
}

type treeWalker struct {
	src    []byte
	lang   types.Language
	result *types.ParseResult
}

// walk collects symbols under node. class is the name of the directly
// enclosing class body, if any.
func (w *treeWalker) walk(node *sitter.Node, class string) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		w.visit(child, class)
	}
}

func (w *treeWalker) visit(node *sitter.Node, class string) {
	switch node.Type() {
	case "import_statement", "import_from_statement":
		w.addImport(node)
		return

	case "class_definition", "class_declaration", "abstract_class_declaration", "class":
		name := w.fieldText(node, "name")
		if name == "" {
			break
		}
		w.add(node, types.Symbol{Name: name, Kind: types.KindClass, Signature: w.header(node, ":{")})
		if body := node.ChildByFieldName("body"); body != nil {
			w.walk(body, name)
		}
		return

	case "function_definition", "function_declaration", "generator_function_declaration":
		name := w.fieldText(node, "name")
		if name == "" {
			break
		}
		sym := types.Symbol{Name: name, Kind: types.KindFunction, Signature: w.header(node, ":{")}
		if class != "" {
			sym.Kind = types.KindMethod
			sym.Parent = class
		}
		w.add(node, sym)
		if body := node.ChildByFieldName("body"); body != nil {
			w.walk(body, "")
		}
		return

	case "method_definition":
		name := w.fieldText(node, "name")
		if name == "" || class == "" {
			break
		}
		w.add(node, types.Symbol{Name: name, Kind: types.KindMethod, Parent: class, Signature: w.header(node, "{")})
		if body := node.ChildByFieldName("body"); body != nil {
			w.walk(body, "")
		}
		return

	case "variable_declarator":
		// const handler = (req) => { ... }
		value := node.ChildByFieldName("value")
		if value != nil && (value.Type() == "arrow_function" || value.Type() == "function" || value.Type() == "function_expression") {
			if name := w.fieldText(node, "name"); name != "" {
				decl := node
				if p := node.Parent(); p != nil && (p.Type() == "lexical_declaration" || p.Type() == "variable_declaration") {
					decl = p
				}
				w.add(decl, types.Symbol{Name: name, Kind: types.KindFunction, Signature: w.header(decl, "{")})
				if body := value.ChildByFieldName("body"); body != nil {
					w.walk(body, "")
				}
				return
			}
		}

	case "call_expression":
		if fn := node.ChildByFieldName("function"); fn != nil && fn.Content(w.src) == "require" {
			if args := node.ChildByFieldName("arguments"); args != nil && args.NamedChildCount() > 0 {
				if s := args.NamedChild(0); s.Type() == "string" {
					w.result.Imports = append(w.result.Imports, types.Import{
						Path: strings.Trim(s.Content(w.src), "'\"`"),
						Line: int(node.StartPoint().Row) + 1,
					})
				}
			}
		}
	}

	// Decorated definitions, export statements and other wrappers keep the
	// enclosing class context.
	switch node.Type() {
	case "decorated_definition", "export_statement", "block", "statement_block", "class_body":
		w.walk(node, class)
	default:
		w.walk(node, "")
	}
}

func (w *treeWalker) add(node *sitter.Node, sym types.Symbol) {
	sym.Start = types.Position{Line: int(node.StartPoint().Row) + 1, Column: int(node.StartPoint().Column) + 1}
	sym.End = types.Position{Line: int(node.EndPoint().Row) + 1, Column: int(node.EndPoint().Column) + 1}
	sym.DocComment = w.doc(node)
	w.result.Symbols = append(w.result.Symbols, sym)
}

func (w *treeWalker) addImport(node *sitter.Node) {
	line := int(node.StartPoint().Row) + 1
	switch w.lang {
	case types.LangPython:
		if node.Type() == "import_from_statement" {
			if m := node.ChildByFieldName("module_name"); m != nil {
				w.result.Imports = append(w.result.Imports, types.Import{Path: m.Content(w.src), Line: line})
			}
			return
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			c := node.NamedChild(i)
			switch c.Type() {
			case "dotted_name":
				w.result.Imports = append(w.result.Imports, types.Import{Path: c.Content(w.src), Line: line})
			case "aliased_import":
				imp := types.Import{Line: line}
				if n := c.ChildByFieldName("name"); n != nil {
					imp.Path = n.Content(w.src)
				}
				if a := c.ChildByFieldName("alias"); a != nil {
					imp.Alias = a.Content(w.src)
				}
				w.result.Imports = append(w.result.Imports, imp)
			}
		}
	default:
		if s := node.ChildByFieldName("source"); s != nil {
			w.result.Imports = append(w.result.Imports, types.Import{
				Path: strings.Trim(s.Content(w.src), "'\"`"),
				Line: line,
			})
		}
	}
}

// doc returns the first line of a Python docstring or of the JSDoc block
// immediately preceding node.
func (w *treeWalker) doc(node *sitter.Node) string {
	if w.lang == types.LangPython {
		body := node.ChildByFieldName("body")
		if body == nil || body.NamedChildCount() == 0 {
			return ""
		}
		first := body.NamedChild(0)
		if first.Type() != "expression_statement" || first.NamedChildCount() == 0 || first.NamedChild(0).Type() != "string" {
			return ""
		}
		raw := strings.TrimLeft(first.NamedChild(0).Content(w.src), "rbuRBUfF")
		return firstTextLine(strings.Trim(raw, `"'`))
	}

	target := node
	if p := node.Parent(); p != nil && p.Type() == "export_statement" {
		target = p
	}
	prev := target.PrevNamedSibling()
	if prev == nil || prev.Type() != "comment" {
		return ""
	}
	text := prev.Content(w.src)
	if !strings.HasPrefix(text, "/**") && !strings.HasPrefix(text, "//") {
		return ""
	}
	text = strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(text, "/**"), "//"), "*/")
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(l), "*"))
		if l != "" && !strings.HasPrefix(l, "@") {
			return l
		}
	}
	return ""
}

func (w *treeWalker) fieldText(node *sitter.Node, field string) string {
	n := node.ChildByFieldName(field)
	if n == nil {
		return ""
	}
	return n.Content(w.src)
}

// header returns the node's source up to the first body delimiter
func (w *treeWalker) header(node *sitter.Node, stops string) string {
	text := node.Content(w.src)
	if body := node.ChildByFieldName("body"); body != nil && body.StartByte() > node.StartByte() {
		text = string(w.src[node.StartByte():body.StartByte()])
	} else if i := strings.IndexAny(text, stops+"\n"); i > 0 {
		text = text[:i]
	}
	text = strings.Join(strings.Fields(text), " ")
	text = strings.TrimSuffix(strings.TrimSuffix(text, "{"), ":")
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return strings.TrimSpace(text)
}

func firstTextLine(s string) string {
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	return ""
}

func firstError(node *sitter.Node) *sitter.Node {
	if node.IsError() || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		c := node.Child(i)
		if c != nil && c.HasError() {
			if n := firstError(c); n != nil {
				return n
			}
		}
	}
	return nil
}

// Complexity metrics over tree-sitter nodes

var functionNodeTypes = map[types.Language][]string{
	types.LangPython:     {"function_definition"},
	types.LangJavaScript: {"function_declaration", "generator_function_declaration", "method_definition", "arrow_function", "function_expression", "function"},
	types.LangTypeScript: {"function_declaration", "generator_function_declaration", "method_definition", "arrow_function", "function_expression", "function"},
}

var decisionNodeTypes = map[types.Language][]string{
	types.LangPython: {
		"if_statement", "elif_clause", "for_statement", "while_statement",
		"except_clause", "boolean_operator", "conditional_expression",
		"list_comprehension", "dictionary_comprehension", "set_comprehension", "generator_expression",
	},
	types.LangJavaScript: {
		"if_statement", "for_statement", "for_in_statement", "while_statement", "do_statement",
		"switch_case", "catch_clause", "ternary_expression", "binary_expression",
	},
	types.LangTypeScript: {
		"if_statement", "for_statement", "for_in_statement", "while_statement", "do_statement",
		"switch_case", "catch_clause", "ternary_expression", "binary_expression",
	},
}

var nestingNodeTypes = map[types.Language][]string{
	types.LangPython: {
		"if_statement", "for_statement", "while_statement", "try_statement", "with_statement",
		"lambda", "list_comprehension", "dictionary_comprehension", "set_comprehension", "generator_expression",
	},
	types.LangJavaScript: {
		"if_statement", "for_statement", "for_in_statement", "while_statement", "do_statement",
		"switch_statement", "try_statement", "arrow_function", "function_expression",
	},
	types.LangTypeScript: {
		"if_statement", "for_statement", "for_in_statement", "while_statement", "do_statement",
		"switch_statement", "try_statement", "arrow_function", "function_expression",
	},
}

func sourceFunctions(ctx context.Context, filePath string, src []byte, lang types.Language) ([]Function, error) {
	root, err := parseTree(ctx, filePath, src, lang)
	if err != nil {
		return nil, err
	}

	// Names and parents come from symbol extraction; metrics from the tree.
	w := &treeWalker{src: src, lang: lang, result: &types.ParseResult{}}
	w.walk(root, "")
	byLine := make(map[int]types.Symbol, len(w.result.Symbols))
	for _, s := range w.result.Symbols {
		if s.Kind != types.KindClass {
			byLine[s.Start.Line] = s
		}
	}

	decisions := toSet(decisionNodeTypes[lang])
	nesting := toSet(nestingNodeTypes[lang])

	var fns []Function
	for _, node := range findNodes(root, toSet(functionNodeTypes[lang])) {
		start := int(node.StartPoint().Row) + 1
		sym, named := byLine[start]
		if !named {
			// Anonymous callbacks are measured as part of their enclosing function.
			continue
		}
		delete(byLine, start)

		m := &treeMetrics{src: src, lang: lang, decisions: decisions, nesting: nesting}
		for i := 0; i < int(node.ChildCount()); i++ {
			m.visit(node.Child(i), 0)
		}
		fns = append(fns, Function{
			Name:       sym.Name,
			Parent:     sym.Parent,
			Kind:       sym.Kind,
			StartLine:  start,
			EndLine:    int(node.EndPoint().Row) + 1,
			Cyclomatic: 1 + m.cyclomatic,
			Cognitive:  m.cognitive,
			MaxNesting: m.maxNesting,
		})
	}
	return fns, nil
}

type treeMetrics struct {
	src        []byte
	lang       types.Language
	decisions  map[string]bool
	nesting    map[string]bool
	cyclomatic int
	cognitive  int
	maxNesting int
}

func (m *treeMetrics) visit(node *sitter.Node, level int) {
	if node == nil {
		return
	}
	t := node.Type()
	if m.decisions[t] && (t != "binary_expression" || m.isBooleanOperator(node)) {
		m.cyclomatic++
		m.cognitive += 1 + level
	}
	if m.nesting[t] {
		level++
		if level > m.maxNesting {
			m.maxNesting = level
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		m.visit(node.Child(i), level)
	}
}

func (m *treeMetrics) isBooleanOperator(node *sitter.Node) bool {
	op := node.ChildByFieldName("operator")
	if op == nil {
		return false
	}
	switch op.Content(m.src) {
	case "&&", "||", "??":
		return true
	}
	return false
}

func findNodes(root *sitter.Node, kinds map[string]bool) []*sitter.Node {
	var result []*sitter.Node
	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil {
			return
		}
		if kinds[node.Type()] {
			result = append(result, node)
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			walk(node.Child(i))
		}
	}
	walk(root)
	return result
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		set[s] = true
	}
	return set
}
