package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/dshills/codeaudit/internal/errors"
	"github.com/dshills/codeaudit/pkg/types"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func paths(files []types.File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

func TestCatalog_FiltersAndOrders(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.py":                      "print('hi')\n",
		"src/service.py":               "def f():\n    return 1\n",
		"src/util.js":                  "function u() { return 1 }\n",
		"src/bundle.min.js":            "var a=1;",
		"src/__pycache__/service.pyc":  "x",
		"node_modules/lib/index.js":    "module.exports = 1",
		".hidden/secret.py":            "x = 1\n",
		".env":                         "TOKEN=1",
		"README.md":                    "# readme\n",
		"data.bin":                     "\x00\x01",
		"generated/out.py":             "x = 2\n",
		".gitignore":                   "generated/\n*.log\n",
		"debug.log":                    "log",
		"tests/test_service.py":        "def test_f():\n    assert True\n",
	})

	result, err := Catalog(context.Background(), root, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"README.md",
		"main.py",
		"src/service.py",
		"src/util.js",
		"tests/test_service.py",
	}, paths(result.Files))
	assert.Empty(t, result.Skipped)

	byPath := make(map[string]types.File)
	for _, f := range result.Files {
		byPath[f.Path] = f
	}
	assert.Equal(t, types.RoleEntry, byPath["main.py"].Role)
	assert.Equal(t, types.RoleCore, byPath["src/service.py"].Role)
	assert.Equal(t, types.RoleTest, byPath["tests/test_service.py"].Role)
	assert.Equal(t, types.RoleDoc, byPath["README.md"].Role)
	assert.Equal(t, types.LangJavaScript, byPath["src/util.js"].Language)
	assert.Equal(t, int64(len("print('hi')\n")), byPath["main.py"].Size)
	assert.True(t, filepath.IsAbs(byPath["main.py"].AbsPath))
}

func TestCatalog_IncludeExcludeAndLanguages(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a/one.py":   "x = 1\n",
		"a/two.js":   "let x = 1;\n",
		"b/three.py": "y = 2\n",
		"b/skip.py":  "z = 3\n",
	})

	result, err := Catalog(context.Background(), root, Options{Include: []string{"a/", "b/*.py"}, Exclude: []string{"skip.py"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a/one.py", "a/two.js", "b/three.py"}, paths(result.Files))

	result, err = Catalog(context.Background(), root, Options{Languages: []types.Language{types.LangJavaScript}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a/two.js"}, paths(result.Files))
}

func TestCatalog_SourceOnly(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"app.py":        "x = 1\n",
		"config.py":     "DEBUG = True\n",
		"settings.yaml": "a: 1\n",
		"notes.md":      "hi\n",
	})
	result, err := Catalog(context.Background(), root, Options{SourceOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"app.py"}, paths(result.Files))
}

func TestCatalog_OversizedFilesAreSkippedWithReason(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"small.py": "x = 1\n",
		"big.py":   strings.Repeat("x = 1\n", 100),
	})
	result, err := Catalog(context.Background(), root, Options{MaxFileSize: 50})
	require.NoError(t, err)
	assert.Equal(t, []string{"small.py"}, paths(result.Files))
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "big.py", result.Skipped[0].Path)
	assert.Contains(t, result.Skipped[0].Reason, "too large")
}

func TestCatalog_UnreadableSubdirIsSkipped(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.py":       "print('hi')\n",
		"locked/hid.py": "x = 1\n",
		"open/shown.py": "y = 2\n",
	})
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	result, err := Catalog(context.Background(), root, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"main.py", "open/shown.py"}, paths(result.Files))
	var skipped *types.SkippedFile
	for i := range result.Skipped {
		if result.Skipped[i].Path == "locked" {
			skipped = &result.Skipped[i]
		}
	}
	require.NotNil(t, skipped, "unreadable directory must be reported, got %v", result.Skipped)
	assert.Contains(t, skipped.Reason, "permission denied")
}

func TestCatalog_HiddenIncluded(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{".tools/gen.py": "x = 1\n"})
	result, err := Catalog(context.Background(), root, Options{IncludeHidden: true})
	require.NoError(t, err)
	assert.Equal(t, []string{".tools/gen.py"}, paths(result.Files))
}

func TestCatalog_MissingRoot(t *testing.T) {
	_, err := Catalog(context.Background(), filepath.Join(t.TempDir(), "nope"), Options{})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.SourceUnavailable))

	file := filepath.Join(t.TempDir(), "f.py")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = Catalog(context.Background(), file, Options{})
	assert.True(t, apperrors.IsKind(err, apperrors.SourceUnavailable))
}

func TestCatalog_Canceled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.py": "x = 1\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Catalog(ctx, root, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEstimateNesting(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"deep.js": "function a() {\n  if (x) {\n    for (;;) { y() }\n  }\n}\n",
		"flat.py": "x = 1\ny = 2\n",
		"deep.py": "def f():\n  if x:\n    for y in z:\n      pass\n",
	})

	n, err := estimateNesting(filepath.Join(root, "deep.js"), types.LangJavaScript)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = estimateNesting(filepath.Join(root, "flat.py"), types.LangPython)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = estimateNesting(filepath.Join(root, "deep.py"), types.LangPython)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestClassifyRole(t *testing.T) {
	tests := []struct {
		path string
		want types.Role
	}{
		{"main.go", types.RoleEntry},
		{"src/index.ts", types.RoleEntry},
		{"pkg/__main__.py", types.RoleEntry},
		{"manage.py", types.RoleEntry},
		{"app.test.js", types.RoleTest},
		{"src/user.spec.ts", types.RoleTest},
		{"store_test.go", types.RoleTest},
		{"test_api.py", types.RoleTest},
		{"src/__tests__/view.jsx", types.RoleTest},
		{"config.py", types.RoleConfig},
		{"app/settings.py", types.RoleConfig},
		{"package.json", types.RoleConfig},
		{"requirements-dev.txt", types.RoleConfig},
		{"Dockerfile", types.RoleConfig},
		{"deploy.yml", types.RoleConfig},
		{"README.md", types.RoleDoc},
		{"docs/api.py", types.RoleDoc},
		{"CHANGES.rst", types.RoleDoc},
		{"lib/parser.py", types.RoleCore},
		{"data.json", types.RoleOther},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyRole(tt.path, types.DetectLanguage(tt.path)))
		})
	}
}
