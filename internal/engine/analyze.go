package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/codeaudit/internal/analyzer"
	"github.com/dshills/codeaudit/internal/catalog"
	apperrors "github.com/dshills/codeaudit/internal/errors"
	"github.com/dshills/codeaudit/internal/orchestrator"
	"github.com/dshills/codeaudit/internal/respcache"
	"github.com/dshills/codeaudit/internal/source"
	"github.com/dshills/codeaudit/internal/storage"
	"github.com/dshills/codeaudit/pkg/types"
)

// Analysis statuses
const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusCanceled  = "canceled"
)

// AnalyzeRequest names a repository to analyze. Exactly one of URL, Path or
// Files is set.
type AnalyzeRequest struct {
	URL            string
	Path           string
	Files          map[string][]byte
	LanguageFilter []string
	MaxFiles       int
}

// AnalyzeResult is the headline of a finished analysis
type AnalyzeResult struct {
	AnalysisID        string  `json:"analysis_id"`
	Status            string  `json:"status"`
	QualityScore      float64 `json:"quality_score"`
	IssuesCount       int     `json:"issues_count"`
	FilesAnalyzed     int     `json:"files_analyzed"`
	Coverage          float64 `json:"coverage"`
	TerminationReason string  `json:"termination_reason"`
}

var languageAliases = map[string]types.Language{
	"py":     types.LangPython,
	"js":     types.LangJavaScript,
	"ts":     types.LangTypeScript,
	"golang": types.LangGo,
}

func parseLanguages(names []string) []types.Language {
	var langs []types.Language
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if lang, ok := languageAliases[name]; ok {
			langs = append(langs, lang)
			continue
		}
		langs = append(langs, types.Language(name))
	}
	return langs
}

// Analyze materializes the source, runs an analysis session over it and
// stores the report. A canceled analysis still stores its partial report
// and returns it together with the context error.
func (e *Engine) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	if req.MaxFiles < 0 {
		return nil, apperrors.New(apperrors.InvalidInput, "max_files must not be negative")
	}

	repo, err := e.materializer.Materialize(ctx, source.Spec{URL: req.URL, Path: req.Path, Files: req.Files})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := repo.Cleanup(); err != nil {
			e.logger.Warn("repository cleanup failed", "root", repo.Root, "error", err)
		}
	}()

	analyzers, err := e.analyzers.Build(e.cfg.Analyzers.Enabled)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.InvalidInput, "build analyzers", err)
	}

	opts := orchestrator.OptionsFromConfig(e.cfg)
	opts.Catalog.Languages = parseLanguages(req.LanguageFilter)
	if req.MaxFiles > 0 {
		opts.MaxFiles = req.MaxFiles
	}
	pool := analyzer.NewPool(e.cfg.Orchestrator.Workers, e.logger.With("component", "pool"))
	orch := orchestrator.New(opts, pool, e.policy, e.logger.With("component", "orchestrator"))

	session, runErr := orch.Run(ctx, repo, analyzers)
	if session == nil {
		return nil, runErr
	}

	rep := session.Report()
	rep.Source = repo.Origin
	if repo.Kind == source.KindLocal {
		rep.Source = repo.Root
	}
	rep.Project = catalog.DetectProject(repo.Root, repo.Files())

	if err := e.saveReport(context.WithoutCancel(ctx), rep); err != nil {
		return nil, err
	}

	result := &AnalyzeResult{
		AnalysisID:        rep.ID,
		Status:            StatusCompleted,
		QualityScore:      rep.Summary.QualityScore,
		IssuesCount:       rep.Summary.TotalIssues,
		FilesAnalyzed:     rep.Summary.FilesAnalyzed,
		Coverage:          rep.Summary.Coverage,
		TerminationReason: rep.Summary.TerminationReason,
	}
	switch {
	case orchestrator.IsCanceled(runErr):
		result.Status = StatusCanceled
	case runErr != nil, rep.Summary.Coverage < 1:
		result.Status = StatusPartial
	}
	e.logger.Info("analysis stored",
		"analysis_id", rep.ID,
		"status", result.Status,
		"score", result.QualityScore,
		"issues", result.IssuesCount,
		"attempted", session.Attempted(),
		"discovered", session.TotalDiscoverable)
	return result, runErr
}

func (e *Engine) saveReport(ctx context.Context, rep *types.Report) error {
	payload, err := json.Marshal(rep)
	if err != nil {
		return apperrors.Wrap(apperrors.Internal, "encode report", err)
	}
	err = e.store.SaveReport(ctx, &storage.Report{
		ID:            rep.ID,
		Source:        rep.Source,
		QualityScore:  rep.Summary.QualityScore,
		TotalIssues:   rep.Summary.TotalIssues,
		FilesAnalyzed: rep.Summary.FilesAnalyzed,
		Payload:       payload,
		CreatedAt:     rep.CreatedAt,
	})
	if err != nil {
		return apperrors.Wrap(apperrors.IndexStoreUnavailable, "save report", err)
	}
	return nil
}

// Report returns a stored report. Reports never change, so they are served
// from the response cache after the first read.
func (e *Engine) Report(ctx context.Context, id string) (*types.Report, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.New(apperrors.InvalidInput, "analysis_id is required")
	}
	return respcache.GetOrCompute(ctx, e.cache, respcache.Fingerprint("report", id), 0, func(ctx context.Context) (*types.Report, error) {
		stored, err := e.store.GetReport(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.Newf(apperrors.NotFound, "analysis %q not found", id)
		}
		if err != nil {
			return nil, apperrors.Wrap(apperrors.IndexStoreUnavailable, "get report", err)
		}
		var rep types.Report
		if err := json.Unmarshal(stored.Payload, &rep); err != nil {
			return nil, apperrors.Wrap(apperrors.Internal, fmt.Sprintf("decode report %s", id), err)
		}
		return &rep, nil
	})
}

// RenderReport renders a stored report in format (json, yaml or markdown)
func (e *Engine) RenderReport(ctx context.Context, id, format string) ([]byte, error) {
	if _, err := e.renderers.Get(format); err != nil {
		return nil, err
	}
	key := respcache.Fingerprint("render", id, strings.ToLower(format))
	return respcache.GetOrCompute(ctx, e.cache, key, 0, func(ctx context.Context) ([]byte, error) {
		rep, err := e.Report(ctx, id)
		if err != nil {
			return nil, err
		}
		return e.renderers.Render(rep, format)
	})
}

// ReportSummary is one row of the stored report listing
type ReportSummary struct {
	AnalysisID    string  `json:"analysis_id"`
	Source        string  `json:"source"`
	QualityScore  float64 `json:"quality_score"`
	IssuesCount   int     `json:"issues_count"`
	FilesAnalyzed int     `json:"files_analyzed"`
	CreatedAt     string  `json:"created_at"`
}

// ListReports returns the most recent reports, newest first
func (e *Engine) ListReports(ctx context.Context, limit int) ([]ReportSummary, error) {
	stored, err := e.store.ListReports(ctx, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.IndexStoreUnavailable, "list reports", err)
	}
	out := make([]ReportSummary, 0, len(stored))
	for _, r := range stored {
		out = append(out, ReportSummary{
			AnalysisID:    r.ID,
			Source:        r.Source,
			QualityScore:  r.QualityScore,
			IssuesCount:   r.TotalIssues,
			FilesAnalyzed: r.FilesAnalyzed,
			CreatedAt:     r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	return out, nil
}
