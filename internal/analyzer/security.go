package analyzer

import (
	"context"
	"strings"

	"github.com/dshills/codeaudit/pkg/types"
)

// SecurityName is the registry name of the security analyzer
const SecurityName = "security"

// SecurityAnalyzer applies pattern rules to every source line
type SecurityAnalyzer struct {
	rules []Rule
}

// NewSecurityAnalyzer creates a security analyzer with the built-in rules
// plus any rules loaded from opts.RulesFile.
func NewSecurityAnalyzer(opts Options) (*SecurityAnalyzer, error) {
	rules := BuiltinRules()
	if opts.RulesFile != "" {
		custom, err := LoadRules(opts.RulesFile)
		if err != nil {
			return nil, err
		}
		rules = append(rules, custom...)
	}
	return &SecurityAnalyzer{rules: rules}, nil
}

func (a *SecurityAnalyzer) Name() string { return SecurityName }

func (a *SecurityAnalyzer) Applicable(f types.File) bool {
	return f.Language.IsSource()
}

func (a *SecurityAnalyzer) Analyze(ctx context.Context, f types.File, src []byte) ([]types.Issue, error) {
	var rules []Rule
	for _, r := range a.rules {
		if r.Applies(f.Language) {
			rules = append(rules, r)
		}
	}
	if len(rules) == 0 {
		return nil, nil
	}

	sf := newSourceFile(f, src)
	var issues []types.Issue
	for i, line := range sf.lines {
		if i%512 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if isComment(strings.TrimSpace(line), f.Language) {
			continue
		}
		// One finding per title and line; several SQL rules can match the same statement
		titles := make(map[string]bool)
		for _, r := range rules {
			if titles[r.Title] || !r.Match(line) {
				continue
			}
			titles[r.Title] = true

			category := r.Category
			if category == "" {
				category = types.CategorySecurity
			}
			issue := sf.issue(SecurityName, category, r.Severity, i+1, r.Title, r.Description, r.Suggestion)
			if r.Confidence > 0 {
				issue.Confidence = r.Confidence
			}
			issue.Metadata = map[string]string{"rule": r.ID}
			issues = append(issues, issue)
		}
	}
	return issues, nil
}
