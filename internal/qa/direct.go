package qa

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dshills/codeaudit/internal/catalog"
	"github.com/dshills/codeaudit/internal/embedder"
	"github.com/dshills/codeaudit/internal/llm"
	"github.com/dshills/codeaudit/internal/orchestrator"
	"github.com/dshills/codeaudit/pkg/types"
)

// directWindow is how many lines around the best match a block carries
const directWindow = 8

// candidates catalogs root and returns the files a direct scan may read,
// highest ranked first
func (s *Service) candidates(ctx context.Context, root string) ([]types.File, error) {
	result, err := catalog.Catalog(ctx, root, s.opts.Catalog)
	if err != nil {
		return nil, err
	}
	ranked := orchestrator.Rank(result.Files)
	if len(ranked) > s.opts.DirectMaxFiles {
		ranked = ranked[:s.opts.DirectMaxFiles]
	}
	return ranked, nil
}

// contentDigest fingerprints the contents of files so a cached direct
// answer is dropped as soon as any file it could have read changes
func contentDigest(files []types.File) string {
	h := sha256.New()
	for _, f := range files {
		h.Write([]byte(f.Path))
		h.Write([]byte{0})
		src, err := os.ReadFile(f.AbsPath)
		if err != nil {
			h.Write([]byte("unreadable"))
		} else {
			sum := sha256.Sum256(src)
			h.Write(sum[:])
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

type fileMatch struct {
	order int
	score int
	block llm.ContextBlock
}

// directContext scans the top ranked files under root and keeps a window
// around the best matching line of every file that shares a term with the
// question
func (s *Service) directContext(ctx context.Context, question, root string) ([]llm.ContextBlock, error) {
	files, err := s.candidates(ctx, root)
	if err != nil {
		return nil, err
	}

	terms := make(map[string]bool)
	for _, t := range embedder.Tokenize(question) {
		terms[t] = true
	}
	if len(terms) == 0 {
		return nil, nil
	}

	var matches []fileMatch
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, err := os.ReadFile(f.AbsPath)
		if err != nil {
			s.logger.Debug("skipping unreadable file", "path", f.Path, "error", err)
			continue
		}
		if m, ok := matchFile(f.Path, string(src), terms); ok {
			m.order = i
			matches = append(matches, m)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].order < matches[j].order
	})

	budget := s.opts.ContextMaxChars
	var blocks []llm.ContextBlock
	for _, m := range matches {
		if budget <= 0 {
			break
		}
		m.block.Content = truncate(m.block.Content, budget)
		if m.block.Content == "" {
			break
		}
		budget -= len(m.block.Content)
		blocks = append(blocks, m.block)
	}
	return blocks, nil
}

// matchFile scores every line of src by question-term overlap. The file's
// score is the sum over its lines.
func matchFile(path, src string, terms map[string]bool) (fileMatch, bool) {
	lines := strings.Split(src, "\n")
	best, bestScore, total := -1, 0, 0
	for i, line := range lines {
		score := 0
		for _, t := range embedder.Tokenize(line) {
			if terms[t] {
				score++
			}
		}
		total += score
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return fileMatch{}, false
	}

	start := max(best-directWindow/2, 0)
	end := min(start+directWindow, len(lines))
	return fileMatch{
		score: total,
		block: llm.ContextBlock{
			Source:  fmt.Sprintf("%s:%d-%d", path, start+1, end),
			Path:    path,
			Content: strings.Join(lines[start:end], "\n"),
		},
	}, true
}
