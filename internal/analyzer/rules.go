package analyzer

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/BurntSushi/toml"

	"github.com/dshills/codeaudit/pkg/types"
)

// Rule is a line-oriented pattern check
type Rule struct {
	ID          string
	Title       string
	Description string
	Suggestion  string
	Severity    types.Severity
	Category    types.Category
	Languages   []types.Language // empty matches every language
	Pattern     *regexp.Regexp
	Exclude     *regexp.Regexp // lines matching Exclude are ignored
	Confidence  float64
}

// Applies reports whether the rule runs on files of lang
func (r Rule) Applies(lang types.Language) bool {
	return len(r.Languages) == 0 || slices.Contains(r.Languages, lang)
}

// Match reports whether line triggers the rule
func (r Rule) Match(line string) bool {
	if !r.Pattern.MatchString(line) {
		return false
	}
	return r.Exclude == nil || !r.Exclude.MatchString(line)
}

// sqlStatement matches the leading keywords of a DML statement
const sqlStatement = `\b(?:select\s.+\sfrom|insert\s+into|update\s+\w+\s+set|delete\s+from)\b`

const sqlSuggestion = "Use parameterized queries or prepared statements instead of building SQL from strings"

var (
	scriptLanguages = []types.Language{types.LangPython, types.LangJavaScript, types.LangTypeScript, types.LangRuby, types.LangPHP}
	jsLanguages     = []types.Language{types.LangJavaScript, types.LangTypeScript}
)

// builtinRules are the security checks shipped with the analyzer
var builtinRules = []Rule{
	{
		ID:          "sql-concat",
		Title:       "SQL Injection Risk",
		Description: "SQL statement built by string concatenation",
		Suggestion:  sqlSuggestion,
		Severity:    types.SeverityCritical,
		Pattern:     regexp.MustCompile(`(?i)(?:"[^"]*` + sqlStatement + `[^"]*"|'[^']*` + sqlStatement + `[^']*'|\x60[^\x60]*` + sqlStatement + `[^\x60]*\x60)\s*(?:\+|\.\.|\|\|)`),
		Confidence:  0.9,
	},
	{
		ID:          "sql-concat-trailing",
		Title:       "SQL Injection Risk",
		Description: "SQL statement built by string concatenation",
		Suggestion:  sqlSuggestion,
		Severity:    types.SeverityCritical,
		Pattern:     regexp.MustCompile(`(?i)\+\s*["'\x60][^"'\x60]*\b(?:where|values|and|or|set)\b[^"'\x60]*["'\x60]`),
		Exclude:     regexp.MustCompile(`(?i)\b(?:log|print|console|fmt\.Print)`),
		Confidence:  0.7,
	},
	{
		ID:          "sql-format",
		Title:       "SQL Injection Risk",
		Description: "SQL statement built with string formatting",
		Suggestion:  sqlSuggestion,
		Severity:    types.SeverityCritical,
		Pattern:     regexp.MustCompile(`(?i)(?:\bf["']|Sprintf\(\s*["'\x60])[^\n]*` + sqlStatement + `|` + sqlStatement + `[^\n]*?(?:%s|%d|%v|\{\w*\})[^"\n]*["']\s*(?:%|\.format\()`),
		Confidence:  0.85,
	},
	{
		ID:          "sql-template",
		Title:       "SQL Injection Risk",
		Description: "SQL statement built with template literal interpolation",
		Suggestion:  sqlSuggestion,
		Severity:    types.SeverityCritical,
		Languages:   jsLanguages,
		Pattern:     regexp.MustCompile("(?i)`[^`]*\\b(?:select\\s.+\\sfrom|insert\\s+into|update\\s+\\w+\\s+set|delete\\s+from)\\b[^`]*\\$\\{"),
		Confidence:  0.9,
	},
	{
		ID:          "eval",
		Title:       "Dynamic Code Execution",
		Description: "eval or exec runs arbitrary code",
		Suggestion:  "Avoid eval/exec; parse the input explicitly or use a safe alternative such as ast.literal_eval or JSON.parse",
		Severity:    types.SeverityHigh,
		Languages:   scriptLanguages,
		Pattern:     regexp.MustCompile(`(?:^|[^.\w])(?:eval|exec)\s*\(|\bnew\s+Function\s*\(`),
		Exclude:     regexp.MustCompile(`\.exec\(|literal_eval`),
	},
	{
		ID:          "shell-injection",
		Title:       "Shell Injection Risk",
		Description: "Command executed through a shell with dynamic input",
		Suggestion:  "Pass arguments as a list without a shell and validate any user-controlled values",
		Severity:    types.SeverityHigh,
		Pattern:     regexp.MustCompile(`shell\s*=\s*True|\bos\.system\s*\(|\bos\.popen\s*\(|child_process\.exec\s*\(|\bexecSync\s*\(|exec\.Command\(\s*"(?:sh|bash)"\s*,\s*"-c"`),
	},
	{
		ID:          "hardcoded-secret",
		Title:       "Hardcoded Secret",
		Description: "Credential assigned from a string literal",
		Suggestion:  "Load secrets from the environment or a secret manager instead of source code",
		Severity:    types.SeverityHigh,
		Pattern:     regexp.MustCompile(`(?i)\b\w*(?:password|passwd|secret|api_?key|access_?token|auth_?token|private_?key)\w*\b["']?\s*(?::=|=|:)\s*["'][^"'\s]{8,}["']`),
		Exclude:     regexp.MustCompile(`(?i)example|sample|placeholder|dummy|changeme|your_|<your|xxx|getenv|environ|process\.env`),
		Confidence:  0.7,
	},
	{
		ID:          "private-key",
		Title:       "Hardcoded Secret",
		Description: "Private key material embedded in source",
		Suggestion:  "Remove the key from the repository and rotate it",
		Severity:    types.SeverityCritical,
		Pattern:     regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
		Confidence:  0.95,
	},
	{
		ID:          "aws-access-key",
		Title:       "Hardcoded Secret",
		Description: "AWS access key ID embedded in source",
		Suggestion:  "Remove the key from the repository and rotate it",
		Severity:    types.SeverityCritical,
		Pattern:     regexp.MustCompile(`(?:^|[^A-Z0-9])(?:AKIA|ASIA|AGPA|AIDA|AROA)[A-Z0-9]{16}(?:[^A-Z0-9]|$)`),
		Confidence:  0.95,
	},
	{
		ID:          "weak-hash",
		Title:       "Weak Hash Algorithm",
		Description: "MD5 and SHA-1 are broken for security purposes",
		Suggestion:  "Use SHA-256 or stronger; use bcrypt, scrypt or argon2 for passwords",
		Severity:    types.SeverityMedium,
		Pattern:     regexp.MustCompile(`(?i)\bhashlib\.(?:md5|sha1)\b|\bcrypto/(?:md5|sha1)"|\b(?:md5|sha1)\.(?:New|Sum)\b|createHash\(\s*["'](?:md5|sha1)["']`),
	},
	{
		ID:          "unsafe-deserialization",
		Title:       "Unsafe Deserialization",
		Description: "Deserializing untrusted data can execute code",
		Suggestion:  "Use a safe format such as JSON, or yaml.safe_load for YAML",
		Severity:    types.SeverityHigh,
		Pattern:     regexp.MustCompile(`\bpickle\.loads?\s*\(|\bcPickle\.loads?\s*\(|\bmarshal\.loads\s*\(|\byaml\.load\s*\(|\bunserialize\s*\(`),
		Exclude:     regexp.MustCompile(`Loader\s*=\s*(?:yaml\.)?SafeLoader|safe_load`),
	},
	{
		ID:          "tls-verify-disabled",
		Title:       "TLS Verification Disabled",
		Description: "Certificate verification is turned off",
		Suggestion:  "Keep certificate verification enabled and trust a custom CA if needed",
		Severity:    types.SeverityHigh,
		Pattern:     regexp.MustCompile(`InsecureSkipVerify\s*:\s*true|verify\s*=\s*False|rejectUnauthorized\s*:\s*false|NODE_TLS_REJECT_UNAUTHORIZED\s*=\s*["']?0`),
	},
}

// BuiltinRules returns a copy of the shipped security rules
func BuiltinRules() []Rule {
	return slices.Clone(builtinRules)
}

type rulesFile struct {
	Rules []ruleConfig `toml:"rule"`
}

type ruleConfig struct {
	ID          string   `toml:"id"`
	Title       string   `toml:"title"`
	Description string   `toml:"description"`
	Suggestion  string   `toml:"suggestion"`
	Severity    string   `toml:"severity"`
	Category    string   `toml:"category"`
	Languages   []string `toml:"languages"`
	Pattern     string   `toml:"pattern"`
	Exclude     string   `toml:"exclude"`
	Confidence  float64  `toml:"confidence"`
}

// LoadRules reads custom rules from a TOML file of [[rule]] tables
func LoadRules(path string) ([]Rule, error) {
	var file rulesFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	rules := make([]Rule, 0, len(file.Rules))
	for i, rc := range file.Rules {
		rule, err := rc.compile()
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i+1, rc.ID, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (rc ruleConfig) compile() (Rule, error) {
	if rc.ID == "" {
		return Rule{}, fmt.Errorf("id is required")
	}
	if rc.Pattern == "" {
		return Rule{}, fmt.Errorf("pattern is required")
	}
	pattern, err := regexp.Compile(rc.Pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("invalid pattern: %w", err)
	}

	rule := Rule{
		ID:          rc.ID,
		Title:       rc.Title,
		Description: rc.Description,
		Suggestion:  rc.Suggestion,
		Severity:    types.Severity(rc.Severity),
		Category:    types.Category(rc.Category),
		Pattern:     pattern,
		Confidence:  rc.Confidence,
	}
	if rule.Title == "" {
		rule.Title = rc.ID
	}
	if rule.Severity == "" {
		rule.Severity = types.SeverityMedium
	}
	if !rule.Severity.Valid() {
		return Rule{}, fmt.Errorf("%w: %q", types.ErrInvalidSeverity, rc.Severity)
	}
	if rule.Category == "" {
		rule.Category = types.CategorySecurity
	}
	if !rule.Category.Valid() {
		return Rule{}, fmt.Errorf("%w: %q", types.ErrInvalidCategory, rc.Category)
	}
	if rc.Exclude != "" {
		if rule.Exclude, err = regexp.Compile(rc.Exclude); err != nil {
			return Rule{}, fmt.Errorf("invalid exclude: %w", err)
		}
	}
	for _, lang := range rc.Languages {
		rule.Languages = append(rule.Languages, types.Language(lang))
	}
	return rule, nil
}
