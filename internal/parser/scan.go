package parser

import (
	"regexp"
	"strings"

	"github.com/dshills/codeaudit/pkg/types"
)

// The line scanner recovers symbols from Python and JavaScript/TypeScript
// without a grammar. Python blocks end at the first later line indented at
// or left of the header; brace languages end at the matching brace.

var (
	pyDefPattern        = regexp.MustCompile(`^(\s*)(?:async\s+)?def\s+([A-Za-z_]\w*)\s*\(`)
	pyClassPattern      = regexp.MustCompile(`^(\s*)class\s+([A-Za-z_]\w*)`)
	pyImportPattern     = regexp.MustCompile(`^\s*import\s+(.+)$`)
	pyFromImportPattern = regexp.MustCompile(`^\s*from\s+(\S+)\s+import\s+`)

	jsFunctionPattern = regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)\s*[(<]`)
	jsArrowPattern    = regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*(?::[^=]+)?=\s*(?:async\s+)?(?:function\b|\([^)]*\)\s*(?::[^=]+)?=>|[A-Za-z_$][\w$]*\s*=>)`)
	jsClassPattern    = regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][\w$]*)`)
	jsMethodPattern   = regexp.MustCompile(`^\s+(?:(?:public|private|protected|static|readonly|override|async|get|set)\s+)*\*?([A-Za-z_$#][\w$]*)\s*(?:<[^>]*>)?\(([^)]*)\)?\s*(?::[^{]+)?\{?\s*$`)
	jsImportPattern   = regexp.MustCompile(`^\s*import\s+(?:.+?\s+from\s+)?['"]([^'"]+)['"]`)
	jsRequirePattern  = regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`)
)

var jsKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true,
	"function": true, "return": true, "do": true, "else": true, "with": true,
}

// scanSymbols extracts symbols and imports with the line scanner
func scanSymbols(filePath string, src []byte, lang types.Language) *types.ParseResult {
	lines := splitLines(src)
	if lang == types.LangPython {
		return scanPython(lines)
	}
	return scanBraces(lines)
}

type pyScope struct {
	name   string
	indent int
	class  bool
}

func scanPython(lines []string) *types.ParseResult {
	result := &types.ParseResult{}
	var stack []pyScope

	for i, line := range lines {
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		indent := indentWidth(line)
		for len(stack) > 0 && indent <= stack[len(stack)-1].indent {
			stack = stack[:len(stack)-1]
		}

		if m := pyImportPattern.FindStringSubmatch(line); m != nil && indent == 0 {
			for _, part := range strings.Split(m[1], ",") {
				fields := strings.Fields(part)
				if len(fields) == 0 {
					continue
				}
				imp := types.Import{Path: fields[0], Line: lineNo}
				if len(fields) == 3 && fields[1] == "as" {
					imp.Alias = fields[2]
				}
				result.Imports = append(result.Imports, imp)
			}
			continue
		}
		if m := pyFromImportPattern.FindStringSubmatch(line); m != nil && indent == 0 {
			result.Imports = append(result.Imports, types.Import{Path: m[1], Line: lineNo})
			continue
		}

		var sym types.Symbol
		if m := pyClassPattern.FindStringSubmatch(line); m != nil {
			sym = types.Symbol{Name: m[2], Kind: types.KindClass}
			stack = append(stack, pyScope{name: m[2], indent: indent, class: true})
		} else if m := pyDefPattern.FindStringSubmatch(line); m != nil {
			sym = types.Symbol{Name: m[2], Kind: types.KindFunction}
			if n := len(stack); n > 0 && stack[n-1].class {
				sym.Kind = types.KindMethod
				sym.Parent = stack[n-1].name
			}
			stack = append(stack, pyScope{name: m[2], indent: indent})
		} else {
			continue
		}

		end := pythonBlockEnd(lines, i, indent)
		sym.Start = types.Position{Line: lineNo, Column: indent + 1}
		sym.End = types.Position{Line: end}
		sym.Signature = strings.TrimSuffix(trimmed, ":")
		sym.DocComment = pythonDocstring(lines, i, end)
		result.Symbols = append(result.Symbols, sym)
	}

	return result
}

// pythonBlockEnd returns the 1-based last line of the block opened at
// index start with the given header indentation.
func pythonBlockEnd(lines []string, start, indent int) int {
	end := start + 1
	depth := bracketDelta(lines[start])
	for j := start + 1; j < len(lines); j++ {
		trimmed := strings.TrimSpace(lines[j])
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		// Continuation lines of a multi-line header
		if depth > 0 {
			depth += bracketDelta(lines[j])
			end = j + 1
			continue
		}
		if indentWidth(lines[j]) <= indent {
			break
		}
		end = j + 1
	}
	return end
}

// pythonDocstring returns the first line of the docstring that opens the
// block starting at index start.
func pythonDocstring(lines []string, start, end int) string {
	header := true
	for j := start; j < end && j < len(lines); j++ {
		trimmed := strings.TrimSpace(lines[j])
		if header {
			if strings.HasSuffix(trimmed, ":") {
				header = false
			}
			continue
		}
		if trimmed == "" {
			continue
		}
		for _, q := range []string{`"""`, `'''`, `r"""`, `"`, `'`} {
			if strings.HasPrefix(trimmed, q) {
				text := strings.TrimSpace(strings.Trim(strings.TrimPrefix(trimmed, q), `"'`))
				if text == "" && j+1 < end {
					text = strings.TrimSpace(strings.Trim(lines[j+1], ` "'`))
				}
				return text
			}
		}
		return ""
	}
	return ""
}

func scanBraces(lines []string) *types.ParseResult {
	result := &types.ParseResult{}

	// depth is the brace depth inside the class body; methods sit at 1
	type classScope struct {
		name  string
		end   int
		depth int
	}
	var class *classScope

	for i, line := range lines {
		lineNo := i + 1
		if class != nil && lineNo > class.end {
			class = nil
		}
		lineDepth := -1
		if class != nil {
			lineDepth = class.depth
			class.depth += braceDelta(line)
		}

		if m := jsImportPattern.FindStringSubmatch(line); m != nil {
			result.Imports = append(result.Imports, types.Import{Path: m[1], Line: lineNo})
			continue
		}
		for _, m := range jsRequirePattern.FindAllStringSubmatch(line, -1) {
			result.Imports = append(result.Imports, types.Import{Path: m[1], Line: lineNo})
		}

		var sym types.Symbol
		switch {
		case jsClassPattern.MatchString(line):
			m := jsClassPattern.FindStringSubmatch(line)
			sym = types.Symbol{Name: m[1], Kind: types.KindClass}
		case jsFunctionPattern.MatchString(line):
			sym = types.Symbol{Name: jsFunctionPattern.FindStringSubmatch(line)[1], Kind: types.KindFunction}
		case jsArrowPattern.MatchString(line):
			sym = types.Symbol{Name: jsArrowPattern.FindStringSubmatch(line)[1], Kind: types.KindFunction}
		case lineDepth == 1 && jsMethodPattern.MatchString(line):
			name := jsMethodPattern.FindStringSubmatch(line)[1]
			if jsKeywords[name] {
				continue
			}
			sym = types.Symbol{Name: name, Kind: types.KindMethod, Parent: class.name}
		default:
			continue
		}

		end := braceBlockEnd(lines, i)
		sym.Start = types.Position{Line: lineNo, Column: indentWidth(line) + 1}
		sym.End = types.Position{Line: end}
		sym.Signature = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), "{"))
		sym.DocComment = jsDocComment(lines, i)
		result.Symbols = append(result.Symbols, sym)

		if sym.Kind == types.KindClass {
			class = &classScope{name: sym.Name, end: end, depth: braceDelta(line)}
		}
	}

	return result
}

// braceBlockEnd returns the 1-based line holding the brace that closes the
// first block opened at or after index start. A header without a block
// ends on its own line.
func braceBlockEnd(lines []string, start int) int {
	depth := 0
	opened := false
	for j := start; j < len(lines) && j < start+2000; j++ {
		line := stripStrings(lines[j])
		for _, r := range line {
			switch r {
			case '{':
				depth++
				opened = true
			case '}':
				depth--
			}
			if opened && depth == 0 {
				return j + 1
			}
		}
		// Expression-bodied arrow functions end on the first line that
		// completes a statement without opening a block.
		if !opened && j > start+2 {
			break
		}
		if !opened && strings.HasSuffix(strings.TrimSpace(line), ";") {
			return j + 1
		}
	}
	return start + 1
}

// jsDocComment returns the first text line of a /** */ block or a run of
// // comments directly above index i.
func jsDocComment(lines []string, i int) string {
	j := i - 1
	for j >= 0 && strings.HasPrefix(strings.TrimSpace(lines[j]), "@") {
		j-- // decorators
	}
	if j < 0 {
		return ""
	}
	prev := strings.TrimSpace(lines[j])
	switch {
	case strings.HasSuffix(prev, "*/"):
		first := ""
		for ; j >= 0; j-- {
			t := strings.TrimSpace(lines[j])
			t = strings.TrimSpace(strings.TrimLeft(strings.TrimSuffix(strings.TrimPrefix(t, "/**"), "*/"), "* "))
			if t != "" && !strings.HasPrefix(t, "@") {
				first = t
			}
			if strings.HasPrefix(strings.TrimSpace(lines[j]), "/*") {
				return first
			}
		}
	case strings.HasPrefix(prev, "//"):
		first := ""
		for ; j >= 0 && strings.HasPrefix(strings.TrimSpace(lines[j]), "//"); j-- {
			first = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(lines[j]), "//"))
		}
		return first
	}
	return ""
}

// stripStrings removes string literal contents and trailing line comments
// so braces inside them are not counted.
func stripStrings(line string) string {
	var b strings.Builder
	var quote rune
	escaped := false
	prev := rune(0)
	for _, r := range line {
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == quote:
				quote = 0
			}
			prev = r
			continue
		}
		if r == '/' && prev == '/' {
			s := b.String()
			return s[:len(s)-1]
		}
		if r == '"' || r == '\'' || r == '`' {
			quote = r
			prev = r
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

// braceDelta counts opening minus closing braces on a line
func braceDelta(line string) int {
	code := stripStrings(line)
	return strings.Count(code, "{") - strings.Count(code, "}")
}

// bracketDelta counts opening minus closing brackets on a line
func bracketDelta(line string) int {
	d := 0
	for _, r := range stripStrings(line) {
		switch r {
		case '(', '[', '{':
			d++
		case ')', ']', '}':
			d--
		}
	}
	return d
}

// indentWidth returns the leading whitespace width, counting tabs as 4
func indentWidth(line string) int {
	w := 0
	for _, r := range line {
		switch r {
		case ' ':
			w++
		case '\t':
			w += 4
		default:
			return w
		}
	}
	return w
}

var (
	pyDecisionPattern = regexp.MustCompile(`\b(?:if|elif|for|while|except|and|or)\b`)
	jsDecisionPattern = regexp.MustCompile(`\b(?:if|for|while|case|catch)\b|&&|\|\||\?\?|\?\s`)
)

// scanFunctions estimates complexity from the scanned symbols: decision
// keywords count toward cyclomatic complexity, and nesting follows
// indentation (Python) or brace depth.
func scanFunctions(src []byte, lang types.Language) []Function {
	lines := splitLines(src)
	var res *types.ParseResult
	decision := jsDecisionPattern
	if lang == types.LangPython {
		res = scanPython(lines)
		decision = pyDecisionPattern
	} else {
		res = scanBraces(lines)
	}

	var fns []Function
	for _, sym := range res.Symbols {
		if sym.Kind == types.KindClass {
			continue
		}
		f := Function{
			Name:      sym.Name,
			Parent:    sym.Parent,
			Kind:      sym.Kind,
			StartLine: sym.Start.Line,
			EndLine:   sym.End.Line,
		}

		baseIndent := -1
		unit := 0
		depth := 0
		for ln := sym.Start.Line + 1; ln <= sym.End.Line && ln <= len(lines); ln++ {
			line := lines[ln-1]
			code := stripStrings(line)
			trimmed := strings.TrimSpace(code)
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}

			var nesting int
			if lang == types.LangPython {
				ind := indentWidth(line)
				if baseIndent < 0 {
					baseIndent = ind
				}
				if unit == 0 && ind > baseIndent {
					unit = ind - baseIndent
				}
				if unit > 0 && ind > baseIndent {
					nesting = (ind - baseIndent) / unit
				}
			} else {
				nesting = depth
				depth += braceDelta(line)
				if depth < 0 {
					depth = 0
				}
			}

			n := len(decision.FindAllStringIndex(code, -1))
			f.Cyclomatic += n
			f.Cognitive += n * (1 + nesting)
			if nesting > f.MaxNesting {
				f.MaxNesting = nesting
			}
		}
		f.Cyclomatic++
		fns = append(fns, f)
	}
	return fns
}
