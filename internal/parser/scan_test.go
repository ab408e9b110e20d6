package parser

import (
	"testing"

	"github.com/dshills/codeaudit/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanSymbols_Python(t *testing.T) {
	result := scanSymbols("service.py", []byte(pythonSource), types.LangPython)
	syms := symbolsByName(result)
	require.Len(t, syms, 5)
	assert.Equal(t, "UserService", syms["find"].Parent)
	assert.Equal(t, 22, syms["find"].End.Line)
	assert.Equal(t, "Find a user by name.", syms["find"].DocComment)
	assert.Equal(t, 27, syms["load"].End.Line)
}

func TestScanSymbols_PythonMultilineHeader(t *testing.T) {
	src := `def build(
    name,
    size=10,
):
    return name * size

x = 1
`
	result := scanSymbols("b.py", []byte(src), types.LangPython)
	require.Len(t, result.Symbols, 1)
	assert.Equal(t, 1, result.Symbols[0].Start.Line)
	assert.Equal(t, 5, result.Symbols[0].End.Line)
}

func TestScanSymbols_JavaScript(t *testing.T) {
	result := scanSymbols("server.js", []byte(jsSource), types.LangJavaScript)
	syms := symbolsByName(result)
	assert.Equal(t, types.KindMethod, syms["constructor"].Kind)
	assert.Equal(t, types.KindMethod, syms["list"].Kind)
	assert.Equal(t, 17, syms["list"].End.Line)
	assert.Equal(t, 24, syms["startServer"].End.Line)
	assert.Equal(t, "Handles user requests.", syms["UserController"].DocComment)
	assert.NotContains(t, syms, "if")
	assert.NotContains(t, syms, "json", "calls inside method bodies are not methods")
	assert.Len(t, result.Imports, 2)
}

func TestScanFunctions_JavaScript(t *testing.T) {
	fns := scanFunctions([]byte(jsSource), types.LangJavaScript)
	byName := make(map[string]Function)
	for _, f := range fns {
		byName[f.Name] = f
	}
	// if, &&
	assert.Equal(t, 3, byName["list"].Cyclomatic)
	assert.Equal(t, 1, byName["startServer"].Cyclomatic)
}

func TestBraceBlockEnd(t *testing.T) {
	lines := []string{
		`function f() {`,
		`  const s = "}{";`,
		`  // } comment`,
		`  return 1;`,
		`}`,
	}
	assert.Equal(t, 5, braceBlockEnd(lines, 0))

	arrow := []string{`const g = x => x * 2;`, `g(1);`}
	assert.Equal(t, 1, braceBlockEnd(arrow, 0))
}

func TestIndentWidth(t *testing.T) {
	assert.Equal(t, 0, indentWidth("x"))
	assert.Equal(t, 4, indentWidth("    x"))
	assert.Equal(t, 8, indentWidth("\t\tx"))
}
