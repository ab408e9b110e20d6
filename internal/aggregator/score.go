package aggregator

import (
	"math"
	"sort"

	"github.com/dshills/codeaudit/internal/config"
	"github.com/dshills/codeaudit/pkg/types"
)

// MaxHotspots bounds the hotspot list in a summary
const MaxHotspots = 10

// Policy is the scoring policy. Weights are penalty points per issue by
// severity.
type Policy struct {
	Weights          map[types.Severity]float64
	NormalizePerFile bool
	PerFileCap       float64
}

// DefaultWeights returns the built-in severity weights
func DefaultWeights() map[types.Severity]float64 {
	return map[types.Severity]float64{
		types.SeverityCritical: 12,
		types.SeverityHigh:     6,
		types.SeverityMedium:   2,
		types.SeverityLow:      0.5,
		types.SeverityInfo:     0,
	}
}

// DefaultPolicy normalizes per file with a cap of 25 points
func DefaultPolicy() Policy {
	return Policy{Weights: DefaultWeights(), NormalizePerFile: true, PerFileCap: 25}
}

// PolicyFromConfig converts the scoring section of the configuration.
// Severities missing from cfg keep their default weight.
func PolicyFromConfig(cfg config.ScoringConfig) Policy {
	p := Policy{
		Weights:          DefaultWeights(),
		NormalizePerFile: cfg.NormalizePerFile,
		PerFileCap:       cfg.PerFileCap,
	}
	for name, w := range cfg.Weights {
		sev := types.Severity(name)
		if sev.Valid() && w >= 0 {
			p.Weights[sev] = w
		}
	}
	return p.withDefaults()
}

// withDefaults fills unset fields and raises weights where needed so a
// more severe issue never weighs less than a milder one.
func (p Policy) withDefaults() Policy {
	weights := DefaultWeights()
	if p.Weights != nil {
		weights = make(map[types.Severity]float64, len(types.Severities))
		for _, sev := range types.Severities {
			weights[sev] = max(p.Weights[sev], 0)
		}
	}
	floor := 0.0
	for i := len(types.Severities) - 1; i >= 0; i-- {
		sev := types.Severities[i]
		weights[sev] = max(weights[sev], floor)
		floor = weights[sev]
	}
	p.Weights = weights
	if p.PerFileCap <= 0 {
		p.PerFileCap = 25
	}
	return p
}

// Weight returns the penalty of one issue of severity sev
func (p Policy) Weight(sev types.Severity) float64 {
	return max(p.Weights[sev], 0)
}

// Score computes the 0-100 quality score of issues found across files.
// Adding an issue or raising a severity never raises the score.
func Score(issues []types.Issue, files int, p Policy) float64 {
	p = p.withDefaults()
	raw := 0.0
	for i := range issues {
		raw += p.Weight(issues[i].Severity)
	}

	penalty := raw
	if p.NormalizePerFile {
		perFile := raw / float64(max(files, 1))
		penalty = min(perFile, p.PerFileCap) / p.PerFileCap * 100
	}
	score := 100 - penalty
	score = math.Max(0, math.Min(100, score))
	return math.Round(score*10) / 10
}

// Summarize builds the issue-derived part of a summary. Session fields
// such as coverage and passes are left for the orchestrator.
func Summarize(issues []types.Issue, filesAnalyzed int, p Policy) types.Summary {
	p = p.withDefaults()
	s := types.Summary{
		QualityScore:  Score(issues, filesAnalyzed, p),
		FilesAnalyzed: filesAnalyzed,
		TotalIssues:   len(issues),
		BySeverity:    make(map[types.Severity]int),
		ByCategory:    make(map[types.Category]int),
	}

	byFile := make(map[string]*types.FileHotspot)
	for i := range issues {
		issue := &issues[i]
		s.BySeverity[issue.Severity]++
		s.ByCategory[issue.Category]++

		h, ok := byFile[issue.FilePath]
		if !ok {
			h = &types.FileHotspot{Path: issue.FilePath}
			byFile[issue.FilePath] = h
		}
		h.IssueCount++
		h.Penalty += p.Weight(issue.Severity)
	}
	s.FilesAffected = len(byFile)
	s.Hotspots = hotspots(byFile)
	return s
}

func hotspots(byFile map[string]*types.FileHotspot) []types.FileHotspot {
	out := make([]types.FileHotspot, 0, len(byFile))
	for _, h := range byFile {
		if h.Penalty > 0 {
			out = append(out, *h)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Penalty != out[j].Penalty {
			return out[i].Penalty > out[j].Penalty
		}
		if out[i].IssueCount != out[j].IssueCount {
			return out[i].IssueCount > out[j].IssueCount
		}
		return out[i].Path < out[j].Path
	})
	if len(out) > MaxHotspots {
		out = out[:MaxHotspots]
	}
	return out
}
