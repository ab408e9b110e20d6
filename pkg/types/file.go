package types

import (
	"path/filepath"
	"strings"
)

// Language is the language tag assigned to a cataloged file.
type Language string

const (
	LangGo         Language = "go"
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangJava       Language = "java"
	LangRust       Language = "rust"
	LangC          Language = "c"
	LangCPP        Language = "cpp"
	LangCSharp     Language = "csharp"
	LangRuby       Language = "ruby"
	LangPHP        Language = "php"
	LangShell      Language = "shell"
	LangSQL        Language = "sql"
	LangYAML       Language = "yaml"
	LangTOML       Language = "toml"
	LangJSON       Language = "json"
	LangMarkdown   Language = "markdown"
	LangText       Language = "text"
	LangUnknown    Language = ""
)

var extLanguages = map[string]Language{
	".go":    LangGo,
	".py":    LangPython,
	".pyi":   LangPython,
	".js":    LangJavaScript,
	".jsx":   LangJavaScript,
	".mjs":   LangJavaScript,
	".cjs":   LangJavaScript,
	".ts":    LangTypeScript,
	".tsx":   LangTypeScript,
	".java":  LangJava,
	".rs":    LangRust,
	".c":     LangC,
	".h":     LangC,
	".cpp":   LangCPP,
	".cc":    LangCPP,
	".hpp":   LangCPP,
	".cs":    LangCSharp,
	".rb":    LangRuby,
	".php":   LangPHP,
	".sh":    LangShell,
	".bash":  LangShell,
	".sql":   LangSQL,
	".yaml":  LangYAML,
	".yml":   LangYAML,
	".toml":  LangTOML,
	".json":  LangJSON,
	".md":    LangMarkdown,
	".rst":   LangText,
	".txt":   LangText,
	".ini":   LangText,
	".cfg":   LangText,
}

var nameLanguages = map[string]Language{
	"Dockerfile": LangShell,
	"Makefile":   LangShell,
}

// DetectLanguage maps a file name onto a language tag. Unknown files yield LangUnknown.
func DetectLanguage(path string) Language {
	base := filepath.Base(path)
	if lang, ok := nameLanguages[base]; ok {
		return lang
	}
	return extLanguages[strings.ToLower(filepath.Ext(base))]
}

// IsSource reports whether the language is a programming language that
// parsers and analyzers understand as code.
func (l Language) IsSource() bool {
	switch l {
	case LangYAML, LangTOML, LangJSON, LangMarkdown, LangText, LangUnknown:
		return false
	default:
		return true
	}
}

// Role is a coarse hint about what a file is for, used to rank selection.
type Role string

const (
	RoleEntry  Role = "entry"
	RoleCore   Role = "core"
	RoleConfig Role = "config"
	RoleTest   Role = "test"
	RoleDoc    Role = "doc"
	RoleOther  Role = "other"
)

// Tier orders roles for selection; lower tiers are examined first.
func (r Role) Tier() int {
	switch r {
	case RoleEntry:
		return 0
	case RoleCore:
		return 1
	case RoleConfig:
		return 2
	case RoleTest:
		return 3
	case RoleDoc:
		return 4
	default:
		return 5
	}
}

// File is a cataloged source file. Content is read on demand.
type File struct {
	Path     string // Relative to the repository root, slash separated
	AbsPath  string
	Language Language
	Size     int64
	Role     Role
	Nesting  int // Estimated maximum nesting depth
}

// Weight is the within-tier ranking weight: larger, more deeply nested files first.
func (f File) Weight() int64 {
	return f.Size * int64(1+f.Nesting)
}
