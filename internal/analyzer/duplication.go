package analyzer

import (
	"context"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/dshills/codeaudit/pkg/types"
)

// DuplicationName is the registry name of the duplication analyzer
const DuplicationName = "duplication"

// block is a maximal run of consecutive code lines
type block struct {
	hash    string
	file    string
	start   int
	end     int
	snippet string
}

// DuplicationAnalyzer finds repeated code blocks within a file, and across
// files once Finalize is called. An instance accumulates blocks for one
// session and must not be reused.
type DuplicationAnalyzer struct {
	opts Options

	mu     sync.Mutex
	blocks map[string][]block
}

// NewDuplicationAnalyzer creates a duplication analyzer
func NewDuplicationAnalyzer(opts Options) *DuplicationAnalyzer {
	return &DuplicationAnalyzer{
		opts:   opts.withDefaults(),
		blocks: make(map[string][]block),
	}
}

func (a *DuplicationAnalyzer) Name() string { return DuplicationName }

func (a *DuplicationAnalyzer) Applicable(f types.File) bool {
	return f.Language.IsSource()
}

func (a *DuplicationAnalyzer) Analyze(ctx context.Context, f types.File, src []byte) ([]types.Issue, error) {
	sf := newSourceFile(f, src)
	blocks := a.extractBlocks(sf)

	var issues []types.Issue
	seen := make(map[string]int)
	for _, b := range blocks {
		first, dup := seen[b.hash]
		if !dup {
			seen[b.hash] = b.start
			continue
		}
		size := b.end - b.start + 1
		issue := sf.issue(DuplicationName, types.CategoryDuplication, types.SeverityMedium, b.start,
			"Duplicate Code Block",
			fmt.Sprintf("This %d-line block is duplicated from line %d", size, first),
			"Extract duplicated code into a reusable function or module")
		issue.EndLine = b.end
		issue.CodeSnippet = b.snippet
		issue.Metadata = map[string]string{"original_line": fmt.Sprint(first)}
		issues = append(issues, issue)
	}

	a.mu.Lock()
	for _, b := range blocks {
		a.blocks[b.hash] = append(a.blocks[b.hash], b)
	}
	a.mu.Unlock()
	return issues, nil
}

// extractBlocks splits the file into runs of non-blank, non-comment lines
// at least MinDuplicateLines long. Lines are compared trimmed so
// re-indented copies still match.
func (a *DuplicationAnalyzer) extractBlocks(sf *sourceFile) []block {
	var blocks []block
	var run []string
	start := 0

	flush := func(end int) {
		if len(run) >= a.opts.MinDuplicateLines {
			sum := blake2b.Sum256([]byte(strings.Join(run, "\n")))
			blocks = append(blocks, block{
				hash:    hex.EncodeToString(sum[:]),
				file:    sf.file.Path,
				start:   start,
				end:     end,
				snippet: BlockSnippet(sf.lines, start, end),
			})
		}
		run = run[:0]
	}

	for i, line := range sf.lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isComment(trimmed, sf.file.Language) {
			flush(i)
			continue
		}
		if len(run) == 0 {
			start = i + 1
		}
		run = append(run, trimmed)
	}
	flush(len(sf.lines))
	return blocks
}

// Finalize reports blocks that also occur in another file. The earliest
// occurrence by path and line is treated as the original.
func (a *DuplicationAnalyzer) Finalize(ctx context.Context) []types.Issue {
	a.mu.Lock()
	defer a.mu.Unlock()

	hashes := make([]string, 0, len(a.blocks))
	for h := range a.blocks {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	var issues []types.Issue
	for _, h := range hashes {
		occ := a.blocks[h]
		sort.Slice(occ, func(i, j int) bool {
			if occ[i].file != occ[j].file {
				return occ[i].file < occ[j].file
			}
			return occ[i].start < occ[j].start
		})
		original := occ[0]
		for _, b := range occ[1:] {
			if b.file == original.file {
				continue
			}
			issues = append(issues, types.Issue{
				Title:       "Cross-File Duplication",
				Description: fmt.Sprintf("Code duplicated from %s:%d", filepath.Base(original.file), original.start),
				Severity:    types.SeverityHigh,
				Category:    types.CategoryDuplication,
				FilePath:    b.file,
				LineNumber:  b.start,
				EndLine:     b.end,
				CodeSnippet: b.snippet,
				Suggestion:  "Consider extracting shared code into a common module",
				Analyzer:    DuplicationName,
				Confidence:  0.9,
				Metadata: map[string]string{
					"original_file": original.file,
					"original_line": fmt.Sprint(original.start),
				},
			})
		}
	}
	return issues
}
