package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codeaudit/internal/config"
	apperrors "github.com/dshills/codeaudit/internal/errors"
	"github.com/dshills/codeaudit/internal/logging"
	"github.com/dshills/codeaudit/internal/qa"
	"github.com/dshills/codeaudit/pkg/types"
)

const dbSource = `import sqlite3


def find_user(cursor, name):
    query = "SELECT * FROM users WHERE name = '" + name + "'"
    cursor.execute(query)
    return cursor.fetchone()
`

const loaderSource = `package app

// LoadSettings reads the settings file from path.
func LoadSettings(path string) (map[string]string, error) {
	return parse(path)
}
`

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.Path = ":memory:"
	cfg.Indexer.Workers = 2
	cfg.Orchestrator.Workers = 2

	e, err := New(cfg, WithLogger(logging.NewDiscardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func writeRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestAnalyze_StoresReport(t *testing.T) {
	e := newTestEngine(t)
	dir := writeRepo(t, map[string]string{"app/db.py": dbSource, "app/loader.go": loaderSource})

	result, err := e.Analyze(context.Background(), AnalyzeRequest{Path: dir})
	require.NoError(t, err)
	assert.NotEmpty(t, result.AnalysisID)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 2, result.FilesAnalyzed)
	assert.Equal(t, types.TerminationAllAnalyzed, result.TerminationReason)
	assert.GreaterOrEqual(t, result.QualityScore, 0.0)
	assert.LessOrEqual(t, result.QualityScore, 100.0)

	rep, err := e.Report(context.Background(), result.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, result.AnalysisID, rep.ID)
	abs, err := filepath.Abs(dir)
	require.NoError(t, err)
	assert.Equal(t, abs, rep.Source)
	assert.Equal(t, result.IssuesCount, len(rep.Issues))

	var sqlIssue *types.Issue
	for i := range rep.Issues {
		if rep.Issues[i].Category == types.CategorySecurity && rep.Issues[i].FilePath == "app/db.py" {
			sqlIssue = &rep.Issues[i]
		}
	}
	require.NotNil(t, sqlIssue)
	assert.Equal(t, 5, sqlIssue.LineNumber)
	assert.Equal(t, types.SeverityCritical, sqlIssue.Severity)
	assert.Contains(t, sqlIssue.Suggestion, "parameterized queries")
}

func TestAnalyze_Idempotent(t *testing.T) {
	e := newTestEngine(t)
	dir := writeRepo(t, map[string]string{"app/db.py": dbSource, "app/loader.go": loaderSource})

	first, err := e.Analyze(context.Background(), AnalyzeRequest{Path: dir})
	require.NoError(t, err)
	second, err := e.Analyze(context.Background(), AnalyzeRequest{Path: dir})
	require.NoError(t, err)
	assert.NotEqual(t, first.AnalysisID, second.AnalysisID)

	a, err := e.Report(context.Background(), first.AnalysisID)
	require.NoError(t, err)
	b, err := e.Report(context.Background(), second.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, a.Issues, b.Issues)
	assert.Equal(t, a.Summary.QualityScore, b.Summary.QualityScore)
}

func TestAnalyze_LanguageFilterAndBudget(t *testing.T) {
	e := newTestEngine(t)
	dir := writeRepo(t, map[string]string{
		"a.py":      "x = 1\n",
		"b.py":      "y = 2\n",
		"c.py":      "z = 3\n",
		"loader.go": loaderSource,
	})

	result, err := e.Analyze(context.Background(), AnalyzeRequest{Path: dir, LanguageFilter: []string{"py"}, MaxFiles: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesAnalyzed)
	assert.Equal(t, StatusPartial, result.Status)
	assert.Equal(t, types.TerminationBudgetExhausted, result.TerminationReason)

	rep, err := e.Report(context.Background(), result.AnalysisID)
	require.NoError(t, err)
	for _, f := range rep.Files {
		assert.True(t, strings.HasSuffix(f, ".py"), f)
	}
}

func TestAnalyze_Upload(t *testing.T) {
	e := newTestEngine(t)

	result, err := e.Analyze(context.Background(), AnalyzeRequest{Files: map[string][]byte{"db.py": []byte(dbSource)}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesAnalyzed)

	rep, err := e.Report(context.Background(), result.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, "upload (1 files)", rep.Source)
}

func TestAnalyze_InvalidSource(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Analyze(context.Background(), AnalyzeRequest{})
	assert.True(t, apperrors.IsKind(err, apperrors.InvalidInput))

	_, err = e.Analyze(context.Background(), AnalyzeRequest{Path: filepath.Join(t.TempDir(), "missing")})
	assert.True(t, apperrors.IsKind(err, apperrors.SourceUnavailable))

	_, err = e.Analyze(context.Background(), AnalyzeRequest{Path: t.TempDir(), MaxFiles: -1})
	assert.True(t, apperrors.IsKind(err, apperrors.InvalidInput))
}

func TestReport_NotFound(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Report(context.Background(), "nope")
	assert.True(t, apperrors.IsKind(err, apperrors.NotFound))

	_, err = e.Report(context.Background(), " ")
	assert.True(t, apperrors.IsKind(err, apperrors.InvalidInput))
}

func TestRenderReport(t *testing.T) {
	e := newTestEngine(t)
	dir := writeRepo(t, map[string]string{"db.py": dbSource})
	result, err := e.Analyze(context.Background(), AnalyzeRequest{Path: dir})
	require.NoError(t, err)

	md, err := e.RenderReport(context.Background(), result.AnalysisID, "markdown")
	require.NoError(t, err)
	assert.Contains(t, string(md), "# Code Quality Report")
	assert.Contains(t, string(md), "`db.py:5`")

	computations := e.CacheStats().Computations
	again, err := e.RenderReport(context.Background(), result.AnalysisID, "markdown")
	require.NoError(t, err)
	assert.Equal(t, md, again)
	assert.Equal(t, computations, e.CacheStats().Computations)

	y, err := e.RenderReport(context.Background(), result.AnalysisID, "yaml")
	require.NoError(t, err)
	assert.Contains(t, string(y), "analysis_id: "+result.AnalysisID)

	_, err = e.RenderReport(context.Background(), result.AnalysisID, "pdf")
	assert.True(t, apperrors.IsKind(err, apperrors.InvalidInput))
	assert.Equal(t, []string{"json", "markdown", "yaml"}, e.Formats())
}

func TestListReports(t *testing.T) {
	e := newTestEngine(t)
	dir := writeRepo(t, map[string]string{"db.py": dbSource})
	result, err := e.Analyze(context.Background(), AnalyzeRequest{Path: dir})
	require.NoError(t, err)

	reports, err := e.ListReports(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, result.AnalysisID, reports[0].AnalysisID)
	assert.Equal(t, result.IssuesCount, reports[0].IssuesCount)
}

func TestIndexSearchAndStats(t *testing.T) {
	e := newTestEngine(t)
	dir := writeRepo(t, map[string]string{"app/loader.go": loaderSource, "app/db.py": dbSource})

	stats, err := e.Index(context.Background(), IndexRequest{Path: dir, Collection: "demo"})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesIndexed)
	assert.GreaterOrEqual(t, stats.TotalChunks, 2)

	resp, err := e.Search(context.Background(), SearchRequest{Query: "LoadSettings", SearchType: "keyword", Collection: "demo"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "app/loader.go", resp.Results[0].File.Path)

	collStats, err := e.IndexStats(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, stats.TotalChunks, collStats.TotalChunks)

	_, err = e.Search(context.Background(), SearchRequest{Query: "x", SearchType: "fuzzy", Collection: "demo"})
	assert.True(t, apperrors.IsKind(err, apperrors.InvalidInput))

	_, err = e.IndexStats(context.Background(), "missing")
	assert.True(t, apperrors.IsKind(err, apperrors.CollectionNotFound))

	_, err = e.Index(context.Background(), IndexRequest{})
	assert.True(t, apperrors.IsKind(err, apperrors.InvalidInput))
}

func TestSearch_DerivesCollectionFromPath(t *testing.T) {
	e := newTestEngine(t)
	dir := writeRepo(t, map[string]string{"loader.go": loaderSource})

	_, err := e.Index(context.Background(), IndexRequest{Path: dir})
	require.NoError(t, err)

	resp, err := e.Search(context.Background(), SearchRequest{Query: "settings file", Path: dir})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Results)
}

func TestAsk_IndexedScope(t *testing.T) {
	e := newTestEngine(t)
	dir := writeRepo(t, map[string]string{"app/loader.go": loaderSource, "app/db.py": dbSource})
	_, err := e.Index(context.Background(), IndexRequest{Path: dir})
	require.NoError(t, err)

	answer, err := e.Ask(context.Background(), AskRequest{Question: "Where are settings loaded?", Scope: dir})
	require.NoError(t, err)
	assert.Equal(t, qa.ModeIndexed, answer.Mode)
	assert.Contains(t, answer.AnalyzedFiles, "app/loader.go")
	assert.Contains(t, answer.Answer, "app/loader.go")

	history, err := e.History(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Where are settings loaded?", history[0].Question)
}

func TestAsk_ByAnalysisID(t *testing.T) {
	e := newTestEngine(t)
	dir := writeRepo(t, map[string]string{"app/loader.go": loaderSource})
	result, err := e.Analyze(context.Background(), AnalyzeRequest{Path: dir})
	require.NoError(t, err)

	answer, err := e.Ask(context.Background(), AskRequest{Question: "Where are settings loaded?", Scope: result.AnalysisID})
	require.NoError(t, err)
	assert.Equal(t, qa.ModeDirect, answer.Mode)
	assert.Equal(t, []string{"app/loader.go"}, answer.AnalyzedFiles)
	assert.NotEmpty(t, answer.Warnings)
}

func TestAsk_UnknownScope(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Ask(context.Background(), AskRequest{Question: "what?", Scope: "not-a-dir-or-analysis"})
	assert.True(t, apperrors.IsKind(err, apperrors.SourceUnavailable))
}

func TestAsk_UploadedAnalysisHasNoDirectory(t *testing.T) {
	e := newTestEngine(t)
	result, err := e.Analyze(context.Background(), AnalyzeRequest{Files: map[string][]byte{"db.py": []byte(dbSource)}})
	require.NoError(t, err)

	_, err = e.Ask(context.Background(), AskRequest{Question: "what?", Scope: result.AnalysisID})
	assert.True(t, apperrors.IsKind(err, apperrors.SourceUnavailable))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Path = ":memory:"
	cfg.Retrieval.TopK = 0

	_, err := New(cfg)
	assert.True(t, apperrors.IsKind(err, apperrors.InvalidInput))
}

func TestClose_Idempotent(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Path = ":memory:"
	e, err := New(cfg)
	require.NoError(t, err)

	assert.NoError(t, e.Close())
	assert.NoError(t, e.Close())
}
