package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/codeaudit/pkg/types"
)

// FinalizeFile is the file recorded on failures raised while finalizing
const FinalizeFile = "*"

// Pool runs analyzers over files with bounded concurrency
type Pool struct {
	workers  int
	logger   *slog.Logger
	readFile func(path string) ([]byte, error)
}

// Result collects one pool run
type Result struct {
	Issues   []types.Issue
	Failures []types.AnalyzerFailure
	Skipped  []types.SkippedFile
	Analyzed []string // Files that were read and handed to analyzers
}

// NewPool creates a pool with the given worker bound. Zero or negative
// workers default to the number of CPUs.
func NewPool(workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pool{workers: workers, logger: logger, readFile: os.ReadFile}
}

// Run analyzes files with every applicable analyzer. A failing analyzer
// costs only its own issues for that file; unreadable files are skipped.
// The only error returned is the context's.
func (p *Pool) Run(ctx context.Context, files []types.File, analyzers []Analyzer) (*Result, error) {
	result := &Result{}
	var mu sync.Mutex

	semaphore := make(chan struct{}, p.workers)
	acquire := func(ctx context.Context) error {
		select {
		case semaphore <- struct{}{}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	release := func() { <-semaphore }

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range files {
		g.Go(func() error {
			if err := acquire(gctx); err != nil {
				return err
			}
			src, err := p.readFile(f.AbsPath)
			release()
			if err != nil {
				mu.Lock()
				result.Skipped = append(result.Skipped, types.SkippedFile{Path: f.Path, Reason: fmt.Sprintf("unreadable: %v", err)})
				mu.Unlock()
				p.logger.Warn("skipping unreadable file", "file", f.Path, "error", err)
				return nil
			}

			mu.Lock()
			result.Analyzed = append(result.Analyzed, f.Path)
			mu.Unlock()

			for _, a := range analyzers {
				if !a.Applicable(f) {
					continue
				}
				g.Go(func() error {
					if err := acquire(gctx); err != nil {
						return err
					}
					issues, failure := p.invoke(gctx, a, f, src)
					release()

					mu.Lock()
					defer mu.Unlock()
					if failure != nil {
						result.Failures = append(result.Failures, *failure)
						return nil
					}
					result.Issues = append(result.Issues, issues...)
					return nil
				})
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	SortIssues(result.Issues)
	sortFailures(result.Failures)
	sort.Strings(result.Analyzed)
	sort.Slice(result.Skipped, func(i, j int) bool {
		return result.Skipped[i].Path < result.Skipped[j].Path
	})
	return result, nil
}

// invoke runs one analyzer on one file, converting errors and panics into
// a failure record.
func (p *Pool) invoke(ctx context.Context, a Analyzer, f types.File, src []byte) (issues []types.Issue, failure *types.AnalyzerFailure) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("analyzer panicked", "analyzer", a.Name(), "file", f.Path, "panic", r, "stack", string(debug.Stack()))
			issues = nil
			failure = &types.AnalyzerFailure{Analyzer: a.Name(), File: f.Path, Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()

	found, err := a.Analyze(ctx, f, src)
	if err != nil {
		p.logger.Warn("analyzer failed", "analyzer", a.Name(), "file", f.Path, "error", err)
		return nil, &types.AnalyzerFailure{Analyzer: a.Name(), File: f.Path, Reason: err.Error()}
	}

	for i := range found {
		found[i].FilePath = f.Path
		if found[i].Analyzer == "" {
			found[i].Analyzer = a.Name()
		}
	}
	return found, nil
}

// Finalize collects cross-file issues from analyzers that implement
// Finalizer.
func (p *Pool) Finalize(ctx context.Context, analyzers []Analyzer) ([]types.Issue, []types.AnalyzerFailure) {
	var issues []types.Issue
	var failures []types.AnalyzerFailure

	for _, a := range analyzers {
		fin, ok := a.(Finalizer)
		if !ok {
			continue
		}
		found, failure := p.finalizeOne(ctx, a.Name(), fin)
		if failure != nil {
			failures = append(failures, *failure)
			continue
		}
		issues = append(issues, found...)
	}

	SortIssues(issues)
	sortFailures(failures)
	return issues, failures
}

func (p *Pool) finalizeOne(ctx context.Context, name string, fin Finalizer) (issues []types.Issue, failure *types.AnalyzerFailure) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("analyzer finalize panicked", "analyzer", name, "panic", r)
			issues = nil
			failure = &types.AnalyzerFailure{Analyzer: name, File: FinalizeFile, Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()
	found := fin.Finalize(ctx)
	for i := range found {
		if found[i].Analyzer == "" {
			found[i].Analyzer = name
		}
	}
	return found, nil
}

// SortIssues orders issues by location, then by content, so output does
// not depend on scheduling.
func SortIssues(issues []types.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := &issues[i], &issues[j]
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.LineNumber != b.LineNumber {
			return a.LineNumber < b.LineNumber
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		if a.Analyzer != b.Analyzer {
			return a.Analyzer < b.Analyzer
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.Description < b.Description
	})
}

func sortFailures(failures []types.AnalyzerFailure) {
	sort.Slice(failures, func(i, j int) bool {
		if failures[i].File != failures[j].File {
			return failures[i].File < failures[j].File
		}
		return failures[i].Analyzer < failures[j].Analyzer
	})
}
