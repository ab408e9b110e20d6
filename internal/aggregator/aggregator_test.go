package aggregator

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codeaudit/pkg/types"
)

func issueAt(file string, cat types.Category, sev types.Severity, line int, suggestion string) types.Issue {
	return types.Issue{
		Title:      string(cat) + " issue",
		Severity:   sev,
		Category:   cat,
		FilePath:   file,
		LineNumber: line,
		Suggestion: suggestion,
		Analyzer:   "test",
	}
}

func TestDedup_OverlappingSpansCollapse(t *testing.T) {
	issues := []types.Issue{
		issueAt("a.py", types.CategorySecurity, types.SeverityHigh, 10, "Use parameterized queries"),
		issueAt("a.py", types.CategorySecurity, types.SeverityCritical, 12, "Validate user input before use"),
	}
	issues[1].Analyzer = "security"

	out := Dedup(issues)
	require.Len(t, out, 1)
	assert.Equal(t, types.SeverityCritical, out[0].Severity)
	assert.Equal(t, 12, out[0].LineNumber)
	assert.Equal(t, "Validate user input before use\n- Use parameterized queries", out[0].Suggestion)
	assert.Equal(t, "test", out[0].Metadata["also_reported_by"])
}

func TestDedup_TieKeepsEarlierLine(t *testing.T) {
	out := Dedup([]types.Issue{
		issueAt("a.py", types.CategoryStyle, types.SeverityLow, 7, "Fix it"),
		issueAt("a.py", types.CategoryStyle, types.SeverityLow, 5, "Fix it"),
	})
	require.Len(t, out, 1)
	assert.Equal(t, 5, out[0].LineNumber)
	assert.Equal(t, "Fix it", out[0].Suggestion)
}

func TestDedup_KeepsDistinctIssues(t *testing.T) {
	issues := []types.Issue{
		issueAt("a.py", types.CategoryStyle, types.SeverityLow, 1, ""),
		issueAt("a.py", types.CategoryStyle, types.SeverityLow, 4, ""),      // gap of 3
		issueAt("a.py", types.CategorySecurity, types.SeverityLow, 1, ""),   // other category
		issueAt("b.py", types.CategoryStyle, types.SeverityLow, 1, ""),      // other file
	}
	assert.Len(t, Dedup(issues), 4)
}

func TestDedup_SpansUseEndLine(t *testing.T) {
	long := issueAt("a.py", types.CategoryComplexity, types.SeverityMedium, 10, "Split the function")
	long.EndLine = 40
	inner := issueAt("a.py", types.CategoryComplexity, types.SeverityHigh, 30, "Reduce nesting")

	out := Dedup([]types.Issue{long, inner})
	require.Len(t, out, 1)
	assert.Equal(t, 30, out[0].LineNumber)
}

func TestDedup_MissingLineIsZero(t *testing.T) {
	out := Dedup([]types.Issue{
		issueAt("a.py", types.CategoryDocumentation, types.SeverityLow, 0, ""),
		issueAt("a.py", types.CategoryDocumentation, types.SeverityLow, 2, ""),
	})
	require.Len(t, out, 1)
	assert.Equal(t, 0, out[0].LineNumber)
}

func TestDedup_SimilarSuggestionsNotRepeated(t *testing.T) {
	out := Dedup([]types.Issue{
		issueAt("a.py", types.CategoryStyle, types.SeverityLow, 3, "Remove the unused import"),
		issueAt("a.py", types.CategoryStyle, types.SeverityLow, 4, "Remove the unused imports"),
	})
	require.Len(t, out, 1)
	assert.Equal(t, "Remove the unused import", out[0].Suggestion)
}

func TestDedup_OrderIndependent(t *testing.T) {
	base := []types.Issue{
		issueAt("a.py", types.CategorySecurity, types.SeverityHigh, 10, "one"),
		issueAt("a.py", types.CategorySecurity, types.SeverityHigh, 11, "two"),
		issueAt("a.py", types.CategorySecurity, types.SeverityMedium, 20, "three"),
		issueAt("a.py", types.CategoryStyle, types.SeverityLow, 10, "four"),
		issueAt("b.py", types.CategorySecurity, types.SeverityCritical, 1, "five"),
		issueAt("b.py", types.CategorySecurity, types.SeverityLow, 3, "six"),
	}
	want := Dedup(base)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]types.Issue(nil), base...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, Dedup(shuffled))
	}
}

func TestDedup_Idempotent(t *testing.T) {
	issues := []types.Issue{
		issueAt("a.py", types.CategorySecurity, types.SeverityHigh, 10, "one"),
		issueAt("a.py", types.CategorySecurity, types.SeverityHigh, 11, "two"),
	}
	once := Dedup(issues)
	assert.Equal(t, once, Dedup(once))
}

func TestOrder(t *testing.T) {
	issues := []types.Issue{
		issueAt("b.py", types.CategoryStyle, types.SeverityLow, 1, ""),
		issueAt("a.py", types.CategoryStyle, types.SeverityCritical, 9, ""),
		issueAt("a.py", types.CategorySecurity, types.SeverityCritical, 9, ""),
		issueAt("c.py", types.CategorySecurity, types.SeverityHigh, 1, ""),
		issueAt("a.py", types.CategorySecurity, types.SeverityCritical, 2, ""),
	}
	Order(issues)

	got := make([]string, len(issues))
	for i, issue := range issues {
		got[i] = issue.Location() + " " + string(issue.Category)
	}
	assert.Equal(t, []string{
		"a.py:2 security",
		"a.py:9 security",
		"a.py:9 style",
		"c.py:1 security",
		"b.py:1 style",
	}, got)
}

func TestAggregator_MergeAcrossPasses(t *testing.T) {
	agg := New(DefaultPolicy())
	agg.Merge([]types.Issue{issueAt("a.py", types.CategorySecurity, types.SeverityHigh, 10, "one")})
	agg.Merge(nil)
	agg.Merge([]types.Issue{
		issueAt("a.py", types.CategorySecurity, types.SeverityCritical, 11, "two"),
		issueAt("b.py", types.CategoryStyle, types.SeverityLow, 1, ""),
	})

	require.Equal(t, 2, agg.Len())
	issues := agg.Issues()
	assert.Equal(t, types.SeverityCritical, issues[0].Severity)
	assert.Equal(t, "b.py", issues[1].FilePath)

	summary := agg.Summary(2)
	assert.Equal(t, 2, summary.TotalIssues)
	assert.Equal(t, 2, summary.FilesAffected)
	assert.Equal(t, 1, summary.BySeverity[types.SeverityCritical])
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("abc", "abc"))
	assert.Less(t, Similarity("Use parameterized queries", "Remove the console statement"), SimilarityThreshold)
	assert.GreaterOrEqual(t, Similarity("Remove the unused import", "Remove the unused imports"), SimilarityThreshold)
}
