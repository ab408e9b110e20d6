package analyzer

import (
	"fmt"
	"strings"
)

// DefaultContextLines is the context shown on each side of a marked line
const DefaultContextLines = 3

// MaxFunctionSnippetLines caps function windows
const MaxFunctionSnippetLines = 20

// MaxBlockSnippetLines caps block windows
const MaxBlockSnippetLines = 30

// MarkedSnippet renders line with up to context lines on each side. The
// problem line is prefixed with ">>>". Out-of-range lines yield "".
func MarkedSnippet(lines []string, line, context int) string {
	if line < 1 || line > len(lines) {
		return ""
	}
	start := max(1, line-context)
	end := min(len(lines), line+context)
	return renderWindow(lines, start, end, line)
}

// FunctionSnippet renders a function starting at line, ending at end or
// at MaxFunctionSnippetLines, whichever comes first. The header is marked.
func FunctionSnippet(lines []string, line, end int) string {
	if line < 1 || line > len(lines) {
		return ""
	}
	if end < line {
		end = line
	}
	end = min(end, len(lines), line+MaxFunctionSnippetLines-1)
	return renderWindow(lines, line, end, line)
}

// BlockSnippet renders lines start through end with start marked
func BlockSnippet(lines []string, start, end int) string {
	if start < 1 || start > len(lines) || end < start {
		return ""
	}
	end = min(end, len(lines), start+MaxBlockSnippetLines-1)
	return renderWindow(lines, start, end, start)
}

func renderWindow(lines []string, start, end, marked int) string {
	var b strings.Builder
	for n := start; n <= end; n++ {
		if n > start {
			b.WriteByte('\n')
		}
		text := strings.TrimRight(lines[n-1], "\r")
		if n == marked {
			fmt.Fprintf(&b, "%4d|>>> %s", n, text)
		} else {
			fmt.Fprintf(&b, "%4d|    %s", n, text)
		}
	}
	return b.String()
}
