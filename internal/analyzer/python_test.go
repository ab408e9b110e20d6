package analyzer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codeaudit/pkg/types"
)

const pythonModule = `"""Service module."""
import os
import sys
import os
from typing import (
    List,
    Dict,
)
from typing import List


class Service:
    """Handles requests."""

    def run(self, x):
        """Run the service."""
        return x


def helper(a):
    return a


def _private():
    return 1


class Bare:
    pass
`

func TestPython_DuplicateImports(t *testing.T) {
	f := sourceOf("app/service.py", types.LangPython, types.RoleCore)
	issues := withTitle(runAnalyzer(t, NewPythonAnalyzer(DefaultOptions()), f, pythonModule), "Duplicate Import")
	require.Len(t, issues, 2)

	assert.Equal(t, 4, issues[0].LineNumber)
	assert.Contains(t, issues[0].Description, "'os'")
	assert.Equal(t, "Remove duplicate import (first import at line 2)", issues[0].Suggestion)

	assert.Equal(t, 9, issues[1].LineNumber)
	assert.Contains(t, issues[1].Description, "'typing.List'")
	assert.Equal(t, "Remove duplicate import (first import at line 5)", issues[1].Suggestion)

	for _, issue := range issues {
		assert.Equal(t, types.CategoryStyle, issue.Category)
		assert.Equal(t, types.SeverityLow, issue.Severity)
	}
}

func TestPython_MissingDocstrings(t *testing.T) {
	f := sourceOf("app/service.py", types.LangPython, types.RoleCore)
	issues := runAnalyzer(t, NewPythonAnalyzer(DefaultOptions()), f, pythonModule)

	fns := withTitle(issues, "Missing Docstring")
	require.Len(t, fns, 1)
	assert.Equal(t, 20, fns[0].LineNumber)
	assert.Contains(t, fns[0].Description, "'helper'")
	assert.Equal(t, types.CategoryDocumentation, fns[0].Category)

	classes := withTitle(issues, "Missing Class Docstring")
	require.Len(t, classes, 1)
	assert.Equal(t, 28, classes[0].LineNumber)
	assert.Contains(t, classes[0].Description, "'Bare'")
}

func TestPython_Complexity(t *testing.T) {
	var b strings.Builder
	b.WriteString("def route(kind):\n    \"\"\"Route by kind.\"\"\"\n")
	for i := 0; i < 12; i++ {
		b.WriteString("    if kind == " + string(rune('a'+i)) + ":\n        return 1\n")
	}
	b.WriteString("    return 0\n")

	f := sourceOf("app/router.py", types.LangPython, types.RoleCore)
	issues := withTitle(runAnalyzer(t, NewPythonAnalyzer(DefaultOptions()), f, b.String()), "High Cyclomatic Complexity")
	require.Len(t, issues, 1)

	issue := issues[0]
	assert.Equal(t, 1, issue.LineNumber)
	assert.Equal(t, types.CategoryComplexity, issue.Category)
	assert.Equal(t, types.SeverityMedium, issue.Severity)
	assert.Equal(t, "route", issue.Metadata["function"])
	assert.True(t, strings.HasPrefix(issue.CodeSnippet, "   1|>>> def route(kind):"))
}

func TestPython_ComplexityThresholdIsConfigurable(t *testing.T) {
	src := "def pick(a, b):\n    \"\"\"Pick.\"\"\"\n    if a:\n        return 1\n    if b:\n        return 2\n    return 3\n"
	f := sourceOf("pick.py", types.LangPython, types.RoleCore)

	assert.Empty(t, withTitle(runAnalyzer(t, NewPythonAnalyzer(DefaultOptions()), f, src), "High Cyclomatic Complexity"))

	strict := NewPythonAnalyzer(Options{ComplexityThreshold: 1})
	issues := withTitle(runAnalyzer(t, strict, f, src), "High Cyclomatic Complexity")
	require.Len(t, issues, 1)
	assert.Equal(t, types.SeverityMedium, issues[0].Severity)
}

func TestPython_Applicable(t *testing.T) {
	a := NewPythonAnalyzer(DefaultOptions())
	assert.True(t, a.Applicable(types.File{Path: "a.py", Language: types.LangPython}))
	assert.False(t, a.Applicable(types.File{Path: "a.js", Language: types.LangJavaScript}))
}
