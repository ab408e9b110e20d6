package aggregator

import (
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/dshills/codeaudit/pkg/types"
)

// LineTolerance is how far apart two spans may be and still describe the
// same problem
const LineTolerance = 2

// SimilarityThreshold is the difflib ratio at or above which two
// suggestions are considered the same text
const SimilarityThreshold = 0.9

// suggestionSeparator joins merged suggestions
const suggestionSeparator = "\n- "

// Aggregator accumulates the deduplicated issue set of one session
type Aggregator struct {
	policy Policy
	issues []types.Issue
}

// New creates an empty aggregator scoring with policy
func New(policy Policy) *Aggregator {
	return &Aggregator{policy: policy.withDefaults()}
}

// Merge folds a batch of issues into the session set
func (a *Aggregator) Merge(issues []types.Issue) {
	if len(issues) == 0 {
		return
	}
	combined := make([]types.Issue, 0, len(a.issues)+len(issues))
	combined = append(combined, a.issues...)
	combined = append(combined, issues...)
	a.issues = Dedup(combined)
}

// Issues returns the session set in report order
func (a *Aggregator) Issues() []types.Issue {
	out := slices.Clone(a.issues)
	Order(out)
	return out
}

// Len reports the number of distinct issues
func (a *Aggregator) Len() int {
	return len(a.issues)
}

// Summary scores the session set over filesAnalyzed files
func (a *Aggregator) Summary(filesAnalyzed int) types.Summary {
	return Summarize(a.issues, filesAnalyzed, a.policy)
}

// Dedup collapses issues in the same file and category whose line spans
// overlap within LineTolerance. The survivor is the more severe issue, or
// the earlier one on a tie; distinct suggestions are merged. The result
// does not depend on input order.
func Dedup(issues []types.Issue) []types.Issue {
	sorted := slices.Clone(issues)
	sort.SliceStable(sorted, func(i, j int) bool {
		return canonicalLess(&sorted[i], &sorted[j])
	})

	var out []types.Issue
	// last kept issue per file and category
	last := make(map[string]int)
	for _, issue := range sorted {
		key := issue.FilePath + "\x00" + string(issue.Category)
		idx, ok := last[key]
		if ok && overlaps(&out[idx], &issue) {
			out[idx] = merge(out[idx], issue)
			continue
		}
		last[key] = len(out)
		out = append(out, issue)
	}
	return out
}

func overlaps(a, b *types.Issue) bool {
	aStart, aEnd := a.Span()
	bStart, bEnd := b.Span()
	return aStart <= bEnd+LineTolerance && bStart <= aEnd+LineTolerance
}

// merge combines two duplicates into the survivor
func merge(kept, other types.Issue) types.Issue {
	winner, loser := kept, other
	if other.Severity.Rank() < kept.Severity.Rank() ||
		(other.Severity.Rank() == kept.Severity.Rank() && other.LineNumber < kept.LineNumber) {
		winner, loser = other, kept
	}

	winner.Suggestion = mergeSuggestions(winner.Suggestion, loser.Suggestion)
	if loser.Analyzer != "" && loser.Analyzer != winner.Analyzer {
		winner.Metadata = addReporter(winner.Metadata, loser.Analyzer)
	}
	for _, reporter := range splitReporters(loser.Metadata) {
		if reporter != winner.Analyzer {
			winner.Metadata = addReporter(winner.Metadata, reporter)
		}
	}
	winner.Confidence = max(winner.Confidence, loser.Confidence)
	return winner
}

// mergeSuggestions appends the parts of b that are not already in a
func mergeSuggestions(a, b string) string {
	if b == "" {
		return a
	}
	if a == "" {
		return b
	}
	merged := a
	existing := strings.Split(a, suggestionSeparator)
	for _, part := range strings.Split(b, suggestionSeparator) {
		dup := false
		for _, have := range existing {
			if Similarity(have, part) >= SimilarityThreshold {
				dup = true
				break
			}
		}
		if !dup {
			merged += suggestionSeparator + part
			existing = append(existing, part)
		}
	}
	return merged
}

// Similarity is the difflib SequenceMatcher ratio of a and b by character
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	m := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return m.Ratio()
}

const reportersKey = "also_reported_by"

func splitReporters(meta map[string]string) []string {
	if meta[reportersKey] == "" {
		return nil
	}
	return strings.Split(meta[reportersKey], ",")
}

func addReporter(meta map[string]string, name string) map[string]string {
	out := maps.Clone(meta)
	if out == nil {
		out = make(map[string]string)
	}
	reporters := splitReporters(out)
	if slices.Contains(reporters, name) {
		return out
	}
	reporters = append(reporters, name)
	sort.Strings(reporters)
	out[reportersKey] = strings.Join(reporters, ",")
	return out
}

// canonicalLess is a total order used to make Dedup order-independent
func canonicalLess(a, b *types.Issue) bool {
	switch {
	case a.FilePath != b.FilePath:
		return a.FilePath < b.FilePath
	case a.Category != b.Category:
		return a.Category < b.Category
	case a.LineNumber != b.LineNumber:
		return a.LineNumber < b.LineNumber
	case a.EndLine != b.EndLine:
		return a.EndLine < b.EndLine
	case a.Severity.Rank() != b.Severity.Rank():
		return a.Severity.Rank() < b.Severity.Rank()
	case a.Analyzer != b.Analyzer:
		return a.Analyzer < b.Analyzer
	case a.Title != b.Title:
		return a.Title < b.Title
	case a.Description != b.Description:
		return a.Description < b.Description
	default:
		return a.Suggestion < b.Suggestion
	}
}

// Order sorts issues for reporting: severity, category priority, file,
// then line
func Order(issues []types.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := &issues[i], &issues[j]
		switch {
		case a.Severity.Rank() != b.Severity.Rank():
			return a.Severity.Rank() < b.Severity.Rank()
		case a.Category.Priority() != b.Category.Priority():
			return a.Category.Priority() < b.Category.Priority()
		case a.FilePath != b.FilePath:
			return a.FilePath < b.FilePath
		case a.LineNumber != b.LineNumber:
			return a.LineNumber < b.LineNumber
		default:
			return canonicalLess(a, b)
		}
	})
}
