package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/codeaudit/internal/aggregator"
	"github.com/dshills/codeaudit/internal/analyzer"
	"github.com/dshills/codeaudit/internal/catalog"
	"github.com/dshills/codeaudit/internal/config"
	apperrors "github.com/dshills/codeaudit/internal/errors"
	"github.com/dshills/codeaudit/pkg/types"
)

// Default session bounds
const (
	DefaultMaxPasses = 10
	DefaultBatchSize = 20
)

// Cataloger lists the files of a materialized repository
type Cataloger interface {
	Catalog(ctx context.Context, opts catalog.Options) ([]types.File, []types.SkippedFile, error)
}

// Options bounds a session. MaxFiles of zero means no file budget.
type Options struct {
	MaxPasses int
	BatchSize int
	MaxFiles  int
	Catalog   catalog.Options
}

// OptionsFromConfig maps configuration onto session options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxPasses: cfg.Orchestrator.MaxPasses,
		BatchSize: cfg.Orchestrator.BatchSize,
		MaxFiles:  cfg.Orchestrator.MaxFiles,
		Catalog: catalog.Options{
			Include:       cfg.Catalog.Include,
			Exclude:       cfg.Catalog.Exclude,
			MaxFileSize:   cfg.Catalog.MaxFileSize,
			IncludeHidden: cfg.Catalog.IncludeHidden,
		},
	}
}

func (o Options) withDefaults() Options {
	if o.MaxPasses <= 0 {
		o.MaxPasses = DefaultMaxPasses
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.MaxFiles < 0 {
		o.MaxFiles = 0
	}
	return o
}

// Orchestrator drives the discover, select, analyze, aggregate loop
type Orchestrator struct {
	opts   Options
	pool   *analyzer.Pool
	policy aggregator.Policy
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// New creates an orchestrator. A nil pool gets a CPU-bound default.
func New(opts Options, pool *analyzer.Pool, policy aggregator.Policy, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if pool == nil {
		pool = analyzer.NewPool(0, logger)
	}
	return &Orchestrator{
		opts:   opts.withDefaults(),
		pool:   pool,
		policy: policy,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Run executes one analysis session. When ctx is canceled the partial
// session is still finalized and returned together with ctx.Err().
func (o *Orchestrator) Run(ctx context.Context, repo Cataloger, analyzers []analyzer.Analyzer) (*Session, error) {
	if repo == nil {
		return nil, apperrors.New(apperrors.InvalidInput, "repository is required")
	}
	if len(analyzers) == 0 {
		return nil, apperrors.New(apperrors.InvalidInput, "at least one analyzer is required")
	}

	s := newSession(o.newID(), o.policy, o.now())
	logger := o.logger.With("session", s.ID)
	var runErr error

	for s.State != StateDone {
		if runErr == nil && s.State != StateTerminate {
			if err := ctx.Err(); err != nil {
				runErr = err
				s.TerminationReason = types.TerminationCanceled
				s.State = StateTerminate
				continue
			}
		}

		switch s.State {
		case StateDiscover:
			if err := o.discover(ctx, repo, s); err != nil {
				if ctx.Err() != nil {
					runErr = ctx.Err()
					s.TerminationReason = types.TerminationCanceled
					s.State = StateTerminate
					continue
				}
				return nil, err
			}
			logger.Info("files discovered", "total", s.TotalDiscoverable, "skipped", len(s.skipped))
			s.State = StateSelect

		case StateSelect:
			s.Pass++
			s.batch = o.selectBatch(s)
			s.State = StateAnalyze

		case StateAnalyze:
			if err := o.analyze(ctx, s, analyzers); err != nil {
				runErr = err
				s.TerminationReason = types.TerminationCanceled
				s.State = StateTerminate
				continue
			}
			s.State = StateAggregate

		case StateAggregate:
			s.agg.Merge(s.pending)
			s.pending = nil
			s.updateCoverage()
			logger.Info("pass complete",
				"pass", s.Pass,
				"batch", len(s.batch),
				"analyzed", len(s.analyzed),
				"coverage", s.Coverage,
				"issues", s.agg.Len())
			s.batch = nil
			if reason := o.terminationReason(s); reason != "" {
				s.TerminationReason = reason
				s.State = StateTerminate
			} else {
				s.State = StateSelect
			}

		case StateTerminate:
			o.finalize(s, analyzers)
			s.FinishedAt = o.now()
			s.State = StateDone
			logger.Info("session finished",
				"reason", s.TerminationReason,
				"passes", s.Pass,
				"coverage", s.Coverage,
				"issues", s.agg.Len(),
				"duration", s.FinishedAt.Sub(s.StartedAt))

		default:
			return nil, apperrors.Newf(apperrors.Internal, "unknown session state %q", s.State)
		}
	}

	return s, runErr
}

func (o *Orchestrator) discover(ctx context.Context, repo Cataloger, s *Session) error {
	files, skipped, err := repo.Catalog(ctx, o.opts.Catalog)
	if err != nil {
		return apperrors.Wrap(apperrors.SourceUnavailable, "discover files", err)
	}
	s.ranked = Rank(files)
	s.TotalDiscoverable = len(s.ranked)
	s.skipped = append(s.skipped, skipped...)
	return nil
}

// selectBatch takes the highest ranked files not attempted yet, bounded by
// the batch size and the remaining file budget.
func (o *Orchestrator) selectBatch(s *Session) []types.File {
	limit := o.opts.BatchSize
	if o.opts.MaxFiles > 0 {
		limit = min(limit, o.opts.MaxFiles-len(s.attempts))
	}
	batch := make([]types.File, 0, max(limit, 0))
	for _, f := range s.ranked {
		if len(batch) >= limit {
			break
		}
		if !s.attempts[f.Path] {
			batch = append(batch, f)
		}
	}
	return batch
}

func (o *Orchestrator) analyze(ctx context.Context, s *Session, analyzers []analyzer.Analyzer) error {
	if len(s.batch) == 0 {
		return nil
	}
	result, err := o.pool.Run(ctx, s.batch, analyzers)
	if err != nil {
		return err
	}
	for _, f := range s.batch {
		s.attempts[f.Path] = true
	}
	s.analyzed = append(s.analyzed, result.Analyzed...)
	s.skipped = append(s.skipped, result.Skipped...)
	s.failures = append(s.failures, result.Failures...)
	s.pending = result.Issues
	return nil
}

// terminationReason reports why the session should stop after the current
// pass, or "" to continue.
func (o *Orchestrator) terminationReason(s *Session) string {
	switch {
	case s.Remaining() == 0:
		return types.TerminationAllAnalyzed
	case o.opts.MaxFiles > 0 && len(s.attempts) >= o.opts.MaxFiles:
		return types.TerminationBudgetExhausted
	case s.Pass >= o.opts.MaxPasses:
		return types.TerminationMaxPasses
	}
	return ""
}

// finalize collects cross-file findings. It runs on a fresh context so a
// canceled session still reports what the analyzed files share.
func (o *Orchestrator) finalize(s *Session, analyzers []analyzer.Analyzer) {
	issues, failures := o.pool.Finalize(context.Background(), analyzers)
	s.failures = append(s.failures, failures...)
	s.agg.Merge(issues)
}

// Rank orders files for selection: role tier first, then weight
// descending, then path.
func Rank(files []types.File) []types.File {
	ranked := make([]types.File, len(files))
	copy(ranked, files)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if ta, tb := a.Role.Tier(), b.Role.Tier(); ta != tb {
			return ta < tb
		}
		if wa, wb := a.Weight(), b.Weight(); wa != wb {
			return wa > wb
		}
		return a.Path < b.Path
	})
	return ranked
}

// IsCanceled reports whether err ended a session early
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (s *Session) String() string {
	return fmt.Sprintf("session %s: pass %d, %d/%d files, %s", s.ID, s.Pass, len(s.analyzed), s.TotalDiscoverable, s.State)
}
