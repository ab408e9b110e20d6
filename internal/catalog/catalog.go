package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	apperrors "github.com/dshills/codeaudit/internal/errors"
	"github.com/dshills/codeaudit/pkg/types"
)

// DefaultExcludes are always applied in addition to Options.Exclude
var DefaultExcludes = []string{
	"*.pyc", "*.pyo", "*.pyd", "__pycache__", ".git", ".svn",
	"node_modules", ".env", "*.log", "*.tmp", ".DS_Store",
	"*.egg-info", "dist", "build", ".pytest_cache", ".coverage",
	".next", "coverage", ".venv", "venv", "env",
	"vendor", "*.min.js", "*.min.css",
}

// DefaultMaxFileSize bounds files that are cataloged; larger files are skipped
const DefaultMaxFileSize = 1 << 20

// nestingSampleBytes is how much of each file is read to estimate nesting
const nestingSampleBytes = 64 << 10

// Options controls which files are cataloged
type Options struct {
	Include       []string // Glob patterns; when non-empty only matching files are kept
	Exclude       []string // Glob patterns added to DefaultExcludes
	MaxFileSize   int64
	IncludeHidden bool
	Languages     []types.Language // When non-empty only these languages are kept
	SourceOnly    bool             // Drop config, data and documentation files
}

// Result is the outcome of one catalog walk
type Result struct {
	Root    string
	Files   []types.File
	Skipped []types.SkippedFile
}

// Catalog walks root once and returns the files worth examining, ordered
// by relative path. Paths that cannot be read are reported in Skipped.
func Catalog(ctx context.Context, root string, opts Options) (*Result, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.SourceUnavailable, "invalid root path", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.SourceUnavailable, fmt.Sprintf("cannot read %s", root), err)
	}
	if !info.IsDir() {
		return nil, apperrors.Newf(apperrors.SourceUnavailable, "%s is not a directory", root)
	}
	if _, err := os.ReadDir(absRoot); err != nil {
		return nil, apperrors.Wrap(apperrors.SourceUnavailable, fmt.Sprintf("cannot list %s", root), err)
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	excludes := ignore.CompileIgnoreLines(append(append([]string{}, DefaultExcludes...), opts.Exclude...)...)
	var includes *ignore.GitIgnore
	if len(opts.Include) > 0 {
		includes = ignore.CompileIgnoreLines(opts.Include...)
	}
	gitignore := loadGitignore(absRoot)

	langSet := make(map[types.Language]bool, len(opts.Languages))
	for _, l := range opts.Languages {
		langSet[l] = true
	}

	result := &Result{Root: absRoot}
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, relErr := filepath.Rel(absRoot, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if walkErr != nil {
			if path == absRoot {
				return walkErr
			}
			result.Skipped = append(result.Skipped, types.SkippedFile{Path: rel, Reason: walkErr.Error()})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == absRoot {
			return nil
		}

		name := d.Name()
		hidden := strings.HasPrefix(name, ".")
		if d.IsDir() {
			if (hidden && !opts.IncludeHidden) || excludes.MatchesPath(rel+"/") ||
				(gitignore != nil && gitignore.MatchesPath(rel+"/")) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if hidden && !opts.IncludeHidden {
			return nil
		}
		if excludes.MatchesPath(rel) || (gitignore != nil && gitignore.MatchesPath(rel)) {
			return nil
		}
		if includes != nil && !includes.MatchesPath(rel) {
			return nil
		}

		lang := types.DetectLanguage(name)
		if lang == types.LangUnknown {
			return nil
		}
		if len(langSet) > 0 && !langSet[lang] {
			return nil
		}

		role := ClassifyRole(rel, lang)
		if opts.SourceOnly && (!lang.IsSource() || role == types.RoleConfig || role == types.RoleDoc) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			result.Skipped = append(result.Skipped, types.SkippedFile{Path: rel, Reason: err.Error()})
			return nil
		}
		if info.Size() > maxSize {
			result.Skipped = append(result.Skipped, types.SkippedFile{
				Path:   rel,
				Reason: fmt.Sprintf("file too large (%d bytes, limit %d)", info.Size(), maxSize),
			})
			return nil
		}

		nesting, err := estimateNesting(path, lang)
		if err != nil {
			result.Skipped = append(result.Skipped, types.SkippedFile{Path: rel, Reason: err.Error()})
			return nil
		}

		result.Files = append(result.Files, types.File{
			Path:     rel,
			AbsPath:  path,
			Language: lang,
			Size:     info.Size(),
			Role:     role,
			Nesting:  nesting,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, apperrors.Wrap(apperrors.SourceUnavailable, fmt.Sprintf("walking %s", root), err)
	}

	sort.Slice(result.Files, func(i, j int) bool {
		return result.Files[i].Path < result.Files[j].Path
	})
	sort.Slice(result.Skipped, func(i, j int) bool {
		return result.Skipped[i].Path < result.Skipped[j].Path
	})

	return result, nil
}

// LanguageCounts tallies files per language
func LanguageCounts(files []types.File) map[string]int {
	counts := make(map[string]int)
	for _, f := range files {
		counts[string(f.Language)]++
	}
	return counts
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}

// estimateNesting reads the head of a file and returns its deepest block
// nesting. Indentation-scoped languages use indent width; the rest count
// open braces.
func estimateNesting(path string, lang types.Language) (int, error) {
	if !lang.IsSource() {
		return 0, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	buf, err := io.ReadAll(io.LimitReader(f, nestingSampleBytes))
	if err != nil {
		return 0, err
	}

	maxDepth := 0
	if lang == types.LangPython {
		unit := 0
		for _, line := range strings.Split(string(buf), "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			w := indentWidth(line)
			if w > 0 && (unit == 0 || w < unit) {
				unit = w
			}
			if unit > 0 && w/unit > maxDepth {
				maxDepth = w / unit
			}
		}
		return maxDepth, nil
	}

	depth := 0
	for _, b := range buf {
		switch b {
		case '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case '}':
			if depth > 0 {
				depth--
			}
		}
	}
	return maxDepth, nil
}

func indentWidth(line string) int {
	w := 0
	for _, r := range line {
		switch r {
		case ' ':
			w++
		case '\t':
			w += 4
		default:
			return w
		}
	}
	return w
}
