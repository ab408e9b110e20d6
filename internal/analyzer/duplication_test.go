package analyzer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codeaudit/pkg/types"
)

const duplicatedBlock = `total = 0
for item in items:
    total += item.price
    total -= item.discount
print(total)
`

func TestDuplication_WithinFile(t *testing.T) {
	src := duplicatedBlock + "\n" + indent(duplicatedBlock)
	f := sourceOf("shop.py", types.LangPython, types.RoleCore)

	issues := runAnalyzer(t, NewDuplicationAnalyzer(DefaultOptions()), f, src)
	require.Len(t, issues, 1)
	assert.Equal(t, "Duplicate Code Block", issues[0].Title)
	assert.Equal(t, types.SeverityMedium, issues[0].Severity)
	assert.Equal(t, 7, issues[0].LineNumber)
	assert.Equal(t, 11, issues[0].EndLine)
	assert.Contains(t, issues[0].Description, "5-line block is duplicated from line 1")
}

func TestDuplication_ShortBlocksIgnored(t *testing.T) {
	src := "a = 1\nb = 2\n\na = 1\nb = 2\n"
	f := sourceOf("short.py", types.LangPython, types.RoleCore)
	assert.Empty(t, runAnalyzer(t, NewDuplicationAnalyzer(DefaultOptions()), f, src))
}

func TestDuplication_AcrossFiles(t *testing.T) {
	a := NewDuplicationAnalyzer(DefaultOptions())
	ctx := context.Background()

	for _, path := range []string{"pkg/z.py", "pkg/a.py", "pkg/m.py"} {
		_, err := a.Analyze(ctx, sourceOf(path, types.LangPython, types.RoleCore), []byte("# header\n"+duplicatedBlock))
		require.NoError(t, err)
	}
	_, err := a.Analyze(ctx, sourceOf("pkg/unique.py", types.LangPython, types.RoleCore), []byte("x = 1\n"))
	require.NoError(t, err)

	issues := a.Finalize(ctx)
	require.Len(t, issues, 2)
	assert.Equal(t, "pkg/m.py", issues[0].FilePath)
	assert.Equal(t, "pkg/z.py", issues[1].FilePath)
	for _, issue := range issues {
		assert.Equal(t, "Cross-File Duplication", issue.Title)
		assert.Equal(t, types.SeverityHigh, issue.Severity)
		assert.Equal(t, types.CategoryDuplication, issue.Category)
		assert.Equal(t, 2, issue.LineNumber)
		assert.Equal(t, "pkg/a.py", issue.Metadata["original_file"])
		assert.Equal(t, "2", issue.Metadata["original_line"])
		assert.Equal(t, "Code duplicated from a.py:2", issue.Description)
		assert.NoError(t, issue.Validate())
	}
}

func TestDuplication_FinalizeWithoutDuplicates(t *testing.T) {
	a := NewDuplicationAnalyzer(DefaultOptions())
	_, err := a.Analyze(context.Background(), sourceOf("one.py", types.LangPython, types.RoleCore), []byte(duplicatedBlock))
	require.NoError(t, err)
	assert.Empty(t, a.Finalize(context.Background()))
}

func indent(block string) string {
	lines := strings.Split(strings.TrimSuffix(block, "\n"), "\n")
	return "    " + strings.Join(lines, "\n    ") + "\n"
}
