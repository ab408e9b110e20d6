package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codeaudit/internal/aggregator"
	"github.com/dshills/codeaudit/internal/analyzer"
	"github.com/dshills/codeaudit/internal/catalog"
	apperrors "github.com/dshills/codeaudit/internal/errors"
	"github.com/dshills/codeaudit/internal/logging"
	"github.com/dshills/codeaudit/pkg/types"
)

type fakeCatalog struct {
	files   []types.File
	skipped []types.SkippedFile
	err     error
}

func (c *fakeCatalog) Catalog(ctx context.Context, _ catalog.Options) ([]types.File, []types.SkippedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return c.files, c.skipped, c.err
}

// lineAnalyzer reports one low style issue at line 1 of every file
type lineAnalyzer struct {
	name    string
	onCall  func()
	mu      sync.Mutex
	seen    map[string]int
	crossed []types.Issue
}

func (a *lineAnalyzer) Name() string               { return a.name }
func (a *lineAnalyzer) Applicable(types.File) bool { return true }

func (a *lineAnalyzer) Analyze(_ context.Context, f types.File, _ []byte) ([]types.Issue, error) {
	if a.onCall != nil {
		a.onCall()
	}
	a.mu.Lock()
	if a.seen == nil {
		a.seen = make(map[string]int)
	}
	a.seen[f.Path]++
	a.mu.Unlock()
	return []types.Issue{{
		Analyzer:   a.name,
		Title:      "Trailing Whitespace",
		Severity:   types.SeverityLow,
		Category:   types.CategoryStyle,
		FilePath:   f.Path,
		LineNumber: 1,
		Confidence: 1,
	}}, nil
}

func (a *lineAnalyzer) Finalize(context.Context) []types.Issue {
	return a.crossed
}

func (a *lineAnalyzer) calls(path string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.seen[path]
}

// writeFiles creates n readable files and returns them in catalog form
func writeFiles(t *testing.T, n int) []types.File {
	t.Helper()
	dir := t.TempDir()
	files := make([]types.File, 0, n)
	for i := range n {
		name := string(rune('a'+i)) + ".py"
		abs := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(abs, []byte("x = 1 \n"), 0o644))
		files = append(files, types.File{
			Path:     name,
			AbsPath:  abs,
			Language: types.LangPython,
			Size:     int64(100 - i),
			Role:     types.RoleCore,
		})
	}
	return files
}

func newTestOrchestrator(opts Options) *Orchestrator {
	return New(opts, analyzer.NewPool(2, nil), aggregator.DefaultPolicy(), logging.NewDiscardLogger())
}

func TestRank(t *testing.T) {
	files := []types.File{
		{Path: "docs/guide.md", Role: types.RoleDoc, Size: 5000},
		{Path: "lib/small.py", Role: types.RoleCore, Size: 100},
		{Path: "lib/deep.py", Role: types.RoleCore, Size: 100, Nesting: 3},
		{Path: "main.py", Role: types.RoleEntry, Size: 10},
		{Path: "lib/also_small.py", Role: types.RoleCore, Size: 100},
		{Path: "tests/test_lib.py", Role: types.RoleTest, Size: 9000},
	}

	ranked := Rank(files)

	var paths []string
	for _, f := range ranked {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{
		"main.py",
		"lib/deep.py",
		"lib/also_small.py",
		"lib/small.py",
		"tests/test_lib.py",
		"docs/guide.md",
	}, paths)
	assert.Equal(t, "docs/guide.md", files[0].Path, "input is not reordered")
}

func TestRun_AllAnalyzed(t *testing.T) {
	files := writeFiles(t, 5)
	a := &lineAnalyzer{name: "lines"}
	o := newTestOrchestrator(Options{BatchSize: 2, MaxPasses: 10})

	s, err := o.Run(context.Background(), &fakeCatalog{files: files}, []analyzer.Analyzer{a})
	require.NoError(t, err)

	assert.Equal(t, StateDone, s.State)
	assert.Equal(t, types.TerminationAllAnalyzed, s.TerminationReason)
	assert.Equal(t, 3, s.Pass)
	assert.Equal(t, 5, s.TotalDiscoverable)
	assert.InDelta(t, 1.0, s.Coverage, 1e-9)
	require.Len(t, s.CoverageByPass, 3)
	assert.InDeltaSlice(t, []float64{0.4, 0.8, 1.0}, s.CoverageByPass, 1e-9)
	assert.Len(t, s.Issues(), 5)
	for _, f := range files {
		assert.Equal(t, 1, a.calls(f.Path), "file %s analyzed exactly once", f.Path)
	}

	report := s.Report()
	assert.Equal(t, s.ID, report.ID)
	assert.Equal(t, 5, report.Summary.FilesAnalyzed)
	assert.Equal(t, 5, report.Summary.TotalIssues)
	assert.Equal(t, []string{"a.py", "b.py", "c.py", "d.py", "e.py"}, report.Files)
	assert.False(t, report.CreatedAt.Before(s.StartedAt))
}

func TestRun_BudgetExhausted(t *testing.T) {
	files := writeFiles(t, 5)
	o := newTestOrchestrator(Options{BatchSize: 2, MaxPasses: 10, MaxFiles: 3})

	s, err := o.Run(context.Background(), &fakeCatalog{files: files}, []analyzer.Analyzer{&lineAnalyzer{name: "lines"}})
	require.NoError(t, err)

	assert.Equal(t, types.TerminationBudgetExhausted, s.TerminationReason)
	assert.Equal(t, 2, s.Pass)
	assert.Len(t, s.Analyzed(), 3)
	assert.InDelta(t, 0.6, s.Coverage, 1e-9)
	// Highest weighted files go first
	assert.Equal(t, []string{"a.py", "b.py", "c.py"}, s.Analyzed())
}

func TestRun_MaxPasses(t *testing.T) {
	files := writeFiles(t, 5)
	o := newTestOrchestrator(Options{BatchSize: 1, MaxPasses: 2})

	s, err := o.Run(context.Background(), &fakeCatalog{files: files}, []analyzer.Analyzer{&lineAnalyzer{name: "lines"}})
	require.NoError(t, err)

	assert.Equal(t, types.TerminationMaxPasses, s.TerminationReason)
	assert.Equal(t, 2, s.Pass)
	assert.InDelta(t, 0.4, s.Coverage, 1e-9)
	assert.Equal(t, 3, s.Remaining())
}

func TestRun_CoverageNeverDecreases(t *testing.T) {
	files := writeFiles(t, 7)
	o := newTestOrchestrator(Options{BatchSize: 3, MaxPasses: 10})

	s, err := o.Run(context.Background(), &fakeCatalog{files: files}, []analyzer.Analyzer{&lineAnalyzer{name: "lines"}})
	require.NoError(t, err)

	for i := 1; i < len(s.CoverageByPass); i++ {
		assert.GreaterOrEqual(t, s.CoverageByPass[i], s.CoverageByPass[i-1])
	}
	assert.LessOrEqual(t, s.Coverage, 1.0)
}

func TestRun_EmptyRepository(t *testing.T) {
	skipped := []types.SkippedFile{{Path: "big.bin", Reason: "too large"}}
	o := newTestOrchestrator(Options{})

	s, err := o.Run(context.Background(), &fakeCatalog{skipped: skipped}, []analyzer.Analyzer{&lineAnalyzer{name: "lines"}})
	require.NoError(t, err)

	assert.Equal(t, types.TerminationAllAnalyzed, s.TerminationReason)
	assert.Equal(t, 1, s.Pass)
	assert.InDelta(t, 1.0, s.Coverage, 1e-9)
	report := s.Report()
	assert.Empty(t, report.Issues)
	assert.Equal(t, skipped, report.Skipped)
	assert.InDelta(t, 100.0, report.Summary.QualityScore, 1e-9)
}

func TestRun_UnreadableFileNotRetried(t *testing.T) {
	files := writeFiles(t, 2)
	files = append(files, types.File{
		Path:     "gone.py",
		AbsPath:  filepath.Join(t.TempDir(), "gone.py"),
		Language: types.LangPython,
		Size:     1000,
		Role:     types.RoleCore,
	})
	a := &lineAnalyzer{name: "lines"}
	o := newTestOrchestrator(Options{BatchSize: 1, MaxPasses: 10})

	s, err := o.Run(context.Background(), &fakeCatalog{files: files}, []analyzer.Analyzer{a})
	require.NoError(t, err)

	assert.Equal(t, types.TerminationAllAnalyzed, s.TerminationReason)
	assert.Equal(t, 3, s.Pass)
	assert.Equal(t, 0, a.calls("gone.py"))
	report := s.Report()
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "gone.py", report.Skipped[0].Path)
	assert.Equal(t, 2, report.Summary.FilesAnalyzed)
}

func TestRun_FinalizeAddsCrossFileIssues(t *testing.T) {
	files := writeFiles(t, 2)
	a := &lineAnalyzer{name: "lines", crossed: []types.Issue{{
		Analyzer:   "lines",
		Title:      "Cross-File Duplication",
		Severity:   types.SeverityHigh,
		Category:   types.CategoryDuplication,
		FilePath:   "b.py",
		LineNumber: 1,
	}}}
	o := newTestOrchestrator(Options{BatchSize: 5})

	s, err := o.Run(context.Background(), &fakeCatalog{files: files}, []analyzer.Analyzer{a})
	require.NoError(t, err)

	issues := s.Issues()
	require.Len(t, issues, 3)
	assert.Equal(t, "Cross-File Duplication", issues[0].Title, "high severity orders first")
}

func TestRun_DuplicateFindingsMerged(t *testing.T) {
	files := writeFiles(t, 1)
	o := newTestOrchestrator(Options{})

	s, err := o.Run(context.Background(), &fakeCatalog{files: files}, []analyzer.Analyzer{
		&lineAnalyzer{name: "first"},
		&lineAnalyzer{name: "second"},
	})
	require.NoError(t, err)

	issues := s.Issues()
	require.Len(t, issues, 1)
	assert.Equal(t, "first", issues[0].Analyzer)
	assert.Equal(t, "second", issues[0].Metadata["also_reported_by"])
}

func TestRun_Canceled(t *testing.T) {
	files := writeFiles(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := &lineAnalyzer{name: "lines", onCall: cancel}
	o := newTestOrchestrator(Options{BatchSize: 2})

	s, err := o.Run(ctx, &fakeCatalog{files: files}, []analyzer.Analyzer{a})
	require.Error(t, err)
	assert.True(t, IsCanceled(err))
	require.NotNil(t, s)
	assert.Equal(t, StateDone, s.State)
	assert.Equal(t, types.TerminationCanceled, s.TerminationReason)
	assert.Equal(t, types.TerminationCanceled, s.Report().Summary.TerminationReason)
}

func TestRun_CanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := newTestOrchestrator(Options{})

	s, err := o.Run(ctx, &fakeCatalog{files: writeFiles(t, 1)}, []analyzer.Analyzer{&lineAnalyzer{name: "lines"}})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, s)
	assert.Equal(t, 0, s.Pass)
	assert.Equal(t, types.TerminationCanceled, s.TerminationReason)
}

func TestRun_CatalogFailure(t *testing.T) {
	o := newTestOrchestrator(Options{})

	_, err := o.Run(context.Background(), &fakeCatalog{err: errors.New("walk failed")}, []analyzer.Analyzer{&lineAnalyzer{name: "lines"}})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.SourceUnavailable))
}

func TestRun_InvalidInput(t *testing.T) {
	o := newTestOrchestrator(Options{})

	_, err := o.Run(context.Background(), nil, []analyzer.Analyzer{&lineAnalyzer{name: "lines"}})
	assert.True(t, apperrors.IsKind(err, apperrors.InvalidInput))

	_, err = o.Run(context.Background(), &fakeCatalog{}, nil)
	assert.True(t, apperrors.IsKind(err, apperrors.InvalidInput))
}

func TestOptionsWithDefaults(t *testing.T) {
	opts := Options{MaxFiles: -4}.withDefaults()
	assert.Equal(t, DefaultMaxPasses, opts.MaxPasses)
	assert.Equal(t, DefaultBatchSize, opts.BatchSize)
	assert.Equal(t, 0, opts.MaxFiles)
}
