package analyzer

import (
	"regexp"
	"strings"

	"github.com/dshills/codeaudit/pkg/types"
)

// codeOnly blanks string literal contents and drops the trailing comment
// so structural checks do not react to text. Quotes are kept so callers
// can still see that a literal was present.
func codeOnly(line string, lang types.Language) string {
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
				b.WriteRune(r)
			}
			prev = r
			continue
		}
		if lang == types.LangPython && r == '#' {
			break
		}
		if lang != types.LangPython && r == '/' && prev == '/' {
			s := b.String()
			return s[:len(s)-1]
		}
		if r == '"' || r == '\'' || r == '`' {
			quote = r
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

// isComment reports whether the trimmed line is wholly a comment
func isComment(trimmed string, lang types.Language) bool {
	if lang == types.LangPython {
		return strings.HasPrefix(trimmed, "#")
	}
	return strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "/*") || strings.HasPrefix(trimmed, "*")
}

func braceDelta(code string) int {
	return strings.Count(code, "{") - strings.Count(code, "}")
}

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
	pyLoopHeader    = regexp.MustCompile(`^\s*(?:async\s+)?(?:for|while)\b.*:\s*$`)
	braceLoopHeader = regexp.MustCompile(`^\s*(?:\}\s*)?(?:for|while)\b|\.(?:forEach|map)\s*\(`)
	doWhileTail     = regexp.MustCompile(`^\s*\}\s*while\s*\(`)
)

// loopDepths returns, for each line, how many loops enclose it, and marks
// loop header lines. Python scopes by indentation; other languages by
// braces. A loop header is not inside its own loop.
func loopDepths(lines []string, lang types.Language) (depths []int, headers []bool) {
	depths = make([]int, len(lines))
	headers = make([]bool, len(lines))

	if lang == types.LangPython {
		var stack []int
		for i, line := range lines {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				depths[i] = len(stack)
				continue
			}
			indent := indentWidth(line)
			for len(stack) > 0 && indent <= stack[len(stack)-1] {
				stack = stack[:len(stack)-1]
			}
			depths[i] = len(stack)
			if pyLoopHeader.MatchString(codeOnly(line, lang)) {
				headers[i] = true
				stack = append(stack, indent)
			}
		}
		return depths, headers
	}

	// stack holds the brace depth of each open loop body
	var stack []int
	depth := 0
	pending := false
	for i, line := range lines {
		code := codeOnly(line, lang)
		trimmed := strings.TrimSpace(code)
		for len(stack) > 0 && depth < stack[len(stack)-1] {
			stack = stack[:len(stack)-1]
		}
		depths[i] = len(stack)

		if pending && strings.HasPrefix(trimmed, "{") {
			stack = append(stack, depth+1)
			pending = false
		} else if trimmed != "" {
			pending = false
		}

		if braceLoopHeader.MatchString(code) && !doWhileTail.MatchString(code) {
			headers[i] = true
			if d := braceDelta(code); d > 0 {
				stack = append(stack, depth+d)
			} else if !strings.HasSuffix(trimmed, ";") {
				pending = true
			}
		}
		depth += braceDelta(code)
		if depth < 0 {
			depth = 0
		}
	}
	return depths, headers
}

// blockEnd returns the 1-based last line of the block whose header is at
// 1-based line start.
func blockEnd(lines []string, start int, lang types.Language) int {
	if start < 1 || start > len(lines) {
		return start
	}
	if lang == types.LangPython {
		indent := indentWidth(lines[start-1])
		end := start
		for j := start; j < len(lines); j++ {
			trimmed := strings.TrimSpace(lines[j])
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
			if indentWidth(lines[j]) <= indent {
				break
			}
			end = j + 1
		}
		return end
	}

	depth := 0
	opened := false
	for j := start - 1; j < len(lines); j++ {
		for _, r := range codeOnly(lines[j], lang) {
			switch r {
			case '{':
				depth++
				opened = true
			case '}':
				depth--
			}
			if opened && depth <= 0 {
				return j + 1
			}
		}
		if !opened && j > start+1 {
			break
		}
	}
	return start
}
