package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/codeaudit/internal/catalog"
	apperrors "github.com/dshills/codeaudit/internal/errors"
	"github.com/dshills/codeaudit/pkg/types"
)

// Kind is how a repository was materialized
type Kind string

const (
	KindClone  Kind = "clone"
	KindUpload Kind = "upload"
	KindLocal  Kind = "local"
)

// DefaultCloneTimeout bounds a git clone
const DefaultCloneTimeout = 5 * time.Minute

// Spec names a repository. Exactly one of URL, Path or Files is set.
type Spec struct {
	URL   string
	Path  string
	Files map[string][]byte // Uploaded files keyed by relative path
}

// Origin describes the spec for reports and logs
func (s Spec) Origin() string {
	switch {
	case s.URL != "":
		return s.URL
	case s.Path != "":
		return s.Path
	default:
		return fmt.Sprintf("upload (%d files)", len(s.Files))
	}
}

// Repository is a materialized file tree
type Repository struct {
	ID     string
	Root   string
	Kind   Kind
	Origin string

	mu      sync.Mutex
	files   []types.File
	skipped []types.SkippedFile
	cleanup func() error
}

// Catalog discovers the repository's files once; later calls return the
// first result.
func (r *Repository) Catalog(ctx context.Context, opts catalog.Options) ([]types.File, []types.SkippedFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.files != nil {
		return r.files, r.skipped, nil
	}
	result, err := catalog.Catalog(ctx, r.Root, opts)
	if err != nil {
		return nil, nil, err
	}
	r.files = result.Files
	if r.files == nil {
		r.files = []types.File{}
	}
	r.skipped = result.Skipped
	return r.files, r.skipped, nil
}

// Files returns the cataloged files, or nil before Catalog has run
func (r *Repository) Files() []types.File {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.files
}

// Cleanup removes any temporary directory backing the repository. Local
// repositories are left untouched.
func (r *Repository) Cleanup() error {
	r.mu.Lock()
	fn := r.cleanup
	r.cleanup = nil
	r.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn()
}

// Materializer turns Specs into Repositories
type Materializer struct {
	Git           string // git binary, default "git"
	CloneTimeout  time.Duration
	TempDir       string // parent for clone and upload directories
	AllowFileURLs bool   // accept file:// clone URLs
	Logger        *slog.Logger
}

// NewMaterializer creates a Materializer with default settings
func NewMaterializer(logger *slog.Logger) *Materializer {
	return &Materializer{
		Git:          "git",
		CloneTimeout: DefaultCloneTimeout,
		Logger:       logger,
	}
}

var cloneURLPattern = regexp.MustCompile(`^(?:https?://[A-Za-z0-9.-]+(?::\d+)?/[A-Za-z0-9_.~/-]+|ssh://[^\s]+|git@[A-Za-z0-9.-]+:[A-Za-z0-9_.~/-]+)$`)

// Materialize produces a Repository for spec. Failures to reach or read
// the source are SourceUnavailable.
func (m *Materializer) Materialize(ctx context.Context, spec Spec) (*Repository, error) {
	set := 0
	for _, ok := range []bool{spec.URL != "", spec.Path != "", len(spec.Files) > 0} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return nil, apperrors.New(apperrors.InvalidInput, "exactly one of url, path or files is required")
	}

	switch {
	case spec.URL != "":
		return m.clone(ctx, strings.TrimSpace(spec.URL))
	case spec.Path != "":
		return m.local(strings.TrimSpace(spec.Path))
	default:
		return m.upload(spec.Files)
	}
}

func (m *Materializer) local(p string) (*Repository, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.SourceUnavailable, "invalid path", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.SourceUnavailable, fmt.Sprintf("path not found: %s", p), err)
	}
	if !info.IsDir() {
		return nil, apperrors.Newf(apperrors.SourceUnavailable, "path is not a directory: %s", p)
	}
	return &Repository{ID: uuid.New().String(), Root: abs, Kind: KindLocal, Origin: p}, nil
}

func (m *Materializer) clone(ctx context.Context, url string) (*Repository, error) {
	fileURL := m.AllowFileURLs && strings.HasPrefix(url, "file://")
	if !fileURL && !cloneURLPattern.MatchString(url) {
		return nil, apperrors.Newf(apperrors.InvalidInput, "invalid repository url: %s", url)
	}

	dir, err := os.MkdirTemp(m.TempDir, "codeaudit-clone-")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "creating clone directory", err)
	}

	timeout := m.CloneTimeout
	if timeout <= 0 {
		timeout = DefaultCloneTimeout
	}
	cloneCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	git := m.Git
	if git == "" {
		git = "git"
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(cloneCtx, git, "clone", "--depth", "1", "--quiet", "--", url, dir)
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	start := time.Now()
	if err := cmd.Run(); err != nil {
		_ = os.RemoveAll(dir)
		if cloneCtx.Err() == context.DeadlineExceeded {
			return nil, apperrors.Wrap(apperrors.SourceUnavailable, "repository clone timed out", cloneCtx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, apperrors.Newf(apperrors.SourceUnavailable, "failed to clone repository: %s", msg)
	}

	if m.Logger != nil {
		m.Logger.Info("repository cloned", "url", url, "dir", dir, "duration", time.Since(start))
	}
	return &Repository{
		ID:      uuid.New().String(),
		Root:    dir,
		Kind:    KindClone,
		Origin:  url,
		cleanup: func() error { return os.RemoveAll(dir) },
	}, nil
}

func (m *Materializer) upload(files map[string][]byte) (*Repository, error) {
	dir, err := os.MkdirTemp(m.TempDir, "codeaudit-upload-")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "creating upload directory", err)
	}

	analyzable := 0
	for name, content := range files {
		rel, err := cleanUploadPath(name)
		if err != nil {
			_ = os.RemoveAll(dir)
			return nil, err
		}
		dest := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			_ = os.RemoveAll(dir)
			return nil, apperrors.Wrap(apperrors.Internal, "writing upload", err)
		}
		if err := os.WriteFile(dest, content, 0o644); err != nil {
			_ = os.RemoveAll(dir)
			return nil, apperrors.Wrap(apperrors.Internal, "writing upload", err)
		}
		if types.DetectLanguage(rel).IsSource() {
			analyzable++
		}
	}

	if analyzable == 0 {
		_ = os.RemoveAll(dir)
		return nil, apperrors.New(apperrors.UnsupportedFileType, "upload contains no supported source files")
	}

	return &Repository{
		ID:      uuid.New().String(),
		Root:    dir,
		Kind:    KindUpload,
		Origin:  fmt.Sprintf("upload (%d files)", len(files)),
		cleanup: func() error { return os.RemoveAll(dir) },
	}, nil
}

// cleanUploadPath rejects absolute paths and paths escaping the upload root
func cleanUploadPath(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	if name == "" || strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return "", apperrors.Newf(apperrors.InvalidInput, "invalid upload path: %q", name)
	}
	clean := path.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", apperrors.Newf(apperrors.InvalidInput, "invalid upload path: %q", name)
	}
	return clean, nil
}
