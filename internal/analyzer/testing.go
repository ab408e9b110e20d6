package analyzer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dshills/codeaudit/internal/parser"
	"github.com/dshills/codeaudit/pkg/types"
)

// TestingName is the registry name of the test-quality analyzer
const TestingName = "testing"

var (
	skippedTest = map[types.Language]*regexp.Regexp{
		types.LangGo:         regexp.MustCompile(`\bt\.Skip(?:f|Now)?\(`),
		types.LangPython:     regexp.MustCompile(`@(?:pytest\.mark\.skip|unittest\.skip)\w*|\bpytest\.skip\(|\bself\.skipTest\(`),
		types.LangJavaScript: regexp.MustCompile(`\b(?:it|test|describe)\.skip\s*\(|\bx(?:it|describe|test)\s*\(`),
	}
	focusedTest = regexp.MustCompile(`\b(?:it|test|describe|context)\.only\s*\(|\bf(?:it|describe)\s*\(`)
	jsTestCase  = regexp.MustCompile(`^\s*(?:it|test)\s*\(\s*["'\x60]`)

	assertions = map[types.Language]*regexp.Regexp{
		types.LangGo:         regexp.MustCompile(`\bt\.(?:Error|Errorf|Fatal|Fatalf|Fail|FailNow|Run)\b|\b(?:assert|require)\.\w+\(|\(\s*t\s*[,)]`),
		types.LangPython:     regexp.MustCompile(`\bassert\b|\bself\.assert\w*\(|\bpytest\.raises\(|\.assert_\w+\(|\bself\.fail\(`),
		types.LangJavaScript: regexp.MustCompile(`\bexpect\s*\(|\bassert\b|\.should\b|\.to(?:Be|Equal|Throw|Have)\w*\(`),
	}
)

// TestingAnalyzer checks test files for skipped, focused and
// assertion-free tests
type TestingAnalyzer struct {
	opts   Options
	parser *parser.Parser
}

// NewTestingAnalyzer creates a test-quality analyzer
func NewTestingAnalyzer(opts Options) *TestingAnalyzer {
	return &TestingAnalyzer{opts: opts.withDefaults(), parser: parser.New()}
}

func (a *TestingAnalyzer) Name() string { return TestingName }

func (a *TestingAnalyzer) Applicable(f types.File) bool {
	if !isTestFile(f) {
		return false
	}
	switch f.Language {
	case types.LangGo, types.LangPython, types.LangJavaScript, types.LangTypeScript:
		return true
	}
	return false
}

// family maps TypeScript onto the JavaScript patterns
func family(lang types.Language) types.Language {
	if lang == types.LangTypeScript {
		return types.LangJavaScript
	}
	return lang
}

func (a *TestingAnalyzer) Analyze(ctx context.Context, f types.File, src []byte) ([]types.Issue, error) {
	sf := newSourceFile(f, src)
	lang := family(f.Language)

	var issues []types.Issue
	for i, line := range sf.lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isComment(trimmed, f.Language) {
			continue
		}
		code := codeOnly(line, f.Language)
		if skippedTest[lang].MatchString(code) {
			issues = append(issues, sf.issue(TestingName, types.CategoryTesting, types.SeverityLow, i+1,
				"Skipped Test",
				"This test is skipped and does not run",
				"Fix or remove the skipped test, or document why it is disabled"))
		}
		if lang == types.LangJavaScript && focusedTest.MatchString(code) {
			issues = append(issues, sf.issue(TestingName, types.CategoryTesting, types.SeverityHigh, i+1,
				"Focused Test",
				"A focused test makes the runner skip every other test in the suite",
				"Remove .only/fit/fdescribe before committing"))
		}
	}

	cases, err := a.testCases(ctx, sf, lang)
	if err != nil {
		return nil, err
	}
	for _, tc := range cases {
		body := strings.Join(sf.lines[tc.start-1:tc.end], "\n")
		if assertions[lang].MatchString(body) {
			continue
		}
		issue := sf.issue(TestingName, types.CategoryTesting, types.SeverityMedium, tc.start,
			"Test Without Assertions",
			fmt.Sprintf("Test '%s' does not check any result", tc.name),
			"Add assertions that verify the behavior under test")
		issue.EndLine = tc.end
		issue.CodeSnippet = FunctionSnippet(sf.lines, tc.start, tc.end)
		issues = append(issues, issue)
	}
	return issues, nil
}

type testCase struct {
	name       string
	start, end int
}

func (a *TestingAnalyzer) testCases(ctx context.Context, sf *sourceFile, lang types.Language) ([]testCase, error) {
	var cases []testCase
	clamp := func(tc testCase) testCase {
		tc.end = min(max(tc.end, tc.start), len(sf.lines))
		return tc
	}

	if lang == types.LangJavaScript {
		for i, line := range sf.lines {
			if !jsTestCase.MatchString(line) {
				continue
			}
			name := strings.TrimSpace(line)
			if q := strings.IndexAny(name, "\"'`"); q >= 0 {
				rest := name[q+1:]
				if e := strings.IndexByte(rest, name[q]); e >= 0 {
					name = rest[:e]
				}
			}
			cases = append(cases, clamp(testCase{name: name, start: i + 1, end: blockEnd(sf.lines, i+1, sf.file.Language)}))
		}
		return cases, nil
	}

	fns, err := a.parser.Functions(ctx, sf.file.Path, sf.src)
	if err != nil {
		return nil, err
	}
	for _, fn := range fns {
		isTest := false
		switch lang {
		case types.LangGo:
			isTest = strings.HasPrefix(fn.Name, "Test") && fn.Name != "TestMain" && fn.Parent == ""
		case types.LangPython:
			isTest = strings.HasPrefix(fn.Name, "test")
		}
		if isTest && fn.StartLine >= 1 {
			cases = append(cases, clamp(testCase{name: fn.QualifiedName(), start: fn.StartLine, end: fn.EndLine}))
		}
	}
	return cases, nil
}
