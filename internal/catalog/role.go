package catalog

import (
	"path"
	"strings"

	"github.com/dshills/codeaudit/pkg/types"
)

var entryStems = map[string]bool{
	"main": true, "index": true, "app": true, "server": true, "cli": true,
}

var manifestNames = map[string]bool{
	"package.json":   true,
	"pyproject.toml": true,
	"go.mod":         true,
	"cargo.toml":     true,
	"setup.py":       true,
	"setup.cfg":      true,
	"dockerfile":     true,
	"makefile":       true,
	"tsconfig.json":  true,
}

var configExts = map[string]bool{
	".yaml": true, ".yml": true, ".toml": true, ".ini": true, ".cfg": true,
}

// ClassifyRole assigns a role hint from the file's path and language.
// Test and config hints win over entry, so app.test.js is a test.
func ClassifyRole(rel string, lang types.Language) types.Role {
	rel = strings.ToLower(rel)
	base := path.Base(rel)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	switch {
	case isTestPath(rel, base):
		return types.RoleTest
	case manifestNames[base] || (strings.HasPrefix(base, "requirements") && ext == ".txt"):
		return types.RoleConfig
	case configExts[ext] || strings.Contains(stem, "config") || strings.Contains(stem, "settings"):
		return types.RoleConfig
	case ext == ".md" || ext == ".rst" || ext == ".txt" || hasDir(rel, "docs"):
		return types.RoleDoc
	case base == "__main__.py" || base == "manage.py" || entryStems[stem]:
		return types.RoleEntry
	case lang.IsSource():
		return types.RoleCore
	default:
		return types.RoleOther
	}
}

func isTestPath(rel, base string) bool {
	if strings.HasPrefix(base, "test") || strings.Contains(base, "_test") ||
		strings.Contains(base, ".test.") || strings.Contains(base, ".spec.") {
		return true
	}
	return hasDir(rel, "tests") || hasDir(rel, "test") || hasDir(rel, "__tests__")
}

// hasDir reports whether dir is one of rel's directory components
func hasDir(rel, dir string) bool {
	parts := strings.Split(rel, "/")
	for _, p := range parts[:len(parts)-1] {
		if p == dir {
			return true
		}
	}
	return false
}
