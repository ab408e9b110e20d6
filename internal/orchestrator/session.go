package orchestrator

import (
	"slices"
	"sort"
	"time"

	"github.com/dshills/codeaudit/internal/aggregator"
	"github.com/dshills/codeaudit/pkg/types"
)

// State is a step of the analysis state machine
type State string

const (
	StateDiscover  State = "discover"
	StateSelect    State = "select"
	StateAnalyze   State = "analyze"
	StateAggregate State = "aggregate"
	StateTerminate State = "terminate"
	StateDone      State = "done"
)

// Session is the typed state of one analysis run. It is owned by a single
// Run call and must not be shared while the run is in progress.
type Session struct {
	ID                string
	State             State
	StartedAt         time.Time
	FinishedAt        time.Time
	Pass              int
	TotalDiscoverable int
	Coverage          float64
	CoverageByPass    []float64
	TerminationReason string

	ranked   []types.File    // discovery order after ranking
	attempts map[string]bool // files analyzed or skipped; never retried
	analyzed []string
	batch    []types.File
	pending  []types.Issue // issues of the current pass, before aggregation

	skipped  []types.SkippedFile
	failures []types.AnalyzerFailure
	agg      *aggregator.Aggregator
}

func newSession(id string, policy aggregator.Policy, now time.Time) *Session {
	return &Session{
		ID:        id,
		State:     StateDiscover,
		StartedAt: now,
		attempts:  make(map[string]bool),
		agg:       aggregator.New(policy),
	}
}

// Analyzed lists the files handed to analyzers, sorted
func (s *Session) Analyzed() []string {
	out := slices.Clone(s.analyzed)
	sort.Strings(out)
	return out
}

// Attempted is the number of files analyzed or skipped so far
func (s *Session) Attempted() int {
	return len(s.attempts)
}

// Remaining is the number of discovered files not yet attempted
func (s *Session) Remaining() int {
	return len(s.ranked) - len(s.attempts)
}

// Issues returns the deduplicated session issues in report order
func (s *Session) Issues() []types.Issue {
	return s.agg.Issues()
}

// Summary scores the session and fills in its progress fields
func (s *Session) Summary() types.Summary {
	summary := s.agg.Summary(len(s.analyzed))
	summary.FilesDiscovered = s.TotalDiscoverable
	summary.Coverage = s.Coverage
	summary.Passes = s.Pass
	summary.TerminationReason = s.TerminationReason
	summary.CoverageByPass = slices.Clone(s.CoverageByPass)
	return summary
}

// Report assembles the session outcome. Source and project details are
// left for the caller.
func (s *Session) Report() *types.Report {
	skipped := slices.Clone(s.skipped)
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].Path < skipped[j].Path })

	failures := slices.Clone(s.failures)
	sort.Slice(failures, func(i, j int) bool {
		if failures[i].File != failures[j].File {
			return failures[i].File < failures[j].File
		}
		return failures[i].Analyzer < failures[j].Analyzer
	})

	return &types.Report{
		ID:        s.ID,
		CreatedAt: s.FinishedAt,
		Duration:  s.FinishedAt.Sub(s.StartedAt),
		Summary:   s.Summary(),
		Issues:    s.Issues(),
		Failures:  failures,
		Skipped:   skipped,
		Files:     s.Analyzed(),
	}
}

// updateCoverage records the coverage after a pass. Coverage never
// decreases because files are only ever added to the analyzed set.
func (s *Session) updateCoverage() {
	coverage := 1.0
	if s.TotalDiscoverable > 0 {
		coverage = min(float64(len(s.analyzed))/float64(s.TotalDiscoverable), 1.0)
	}
	s.Coverage = max(s.Coverage, coverage)
	s.CoverageByPass = append(s.CoverageByPass, s.Coverage)
}
