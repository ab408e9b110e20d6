package llm

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dshills/codeaudit/internal/embedder"
)

// DefaultExtractiveLines caps how many lines an extractive answer quotes
const DefaultExtractiveLines = 8

// Extractive answers offline by quoting the context lines that share the
// most terms with the question. It never states anything the context does
// not contain.
type Extractive struct {
	MaxLines int
}

// NewExtractive returns an extractive generator with default limits
func NewExtractive() *Extractive {
	return &Extractive{MaxLines: DefaultExtractiveLines}
}

func (e *Extractive) Name() string {
	return ProviderExtractive
}

type scoredLine struct {
	source string
	text   string
	score  int
	order  int
}

func (e *Extractive) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(req.Context) == 0 {
		return "No relevant code was found to answer this question.", nil
	}

	terms := make(map[string]bool)
	for _, t := range embedder.Tokenize(req.Question) {
		terms[t] = true
	}

	var lines []scoredLine
	order := 0
	for _, block := range req.Context {
		path, start := splitSource(block)
		for i, text := range strings.Split(block.Content, "\n") {
			order++
			trimmed := strings.TrimSpace(text)
			if trimmed == "" {
				continue
			}
			score := 0
			for _, t := range embedder.Tokenize(trimmed) {
				if terms[t] {
					score++
				}
			}
			if score == 0 {
				continue
			}
			source := path
			if start > 0 {
				source = fmt.Sprintf("%s:%d", path, start+i)
			}
			lines = append(lines, scoredLine{source: source, text: trimmed, score: score, order: order})
		}
	}

	if len(lines) == 0 {
		sources := make([]string, 0, len(req.Context))
		for _, block := range req.Context {
			sources = append(sources, block.Source)
		}
		return fmt.Sprintf("The examined code does not directly address this question. Closest context: %s.",
			strings.Join(sources, ", ")), nil
	}

	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].score != lines[j].score {
			return lines[i].score > lines[j].score
		}
		return lines[i].order < lines[j].order
	})
	limit := e.MaxLines
	if limit <= 0 {
		limit = DefaultExtractiveLines
	}
	if len(lines) > limit {
		lines = lines[:limit]
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].order < lines[j].order })

	var b strings.Builder
	fmt.Fprintf(&b, "Relevant code from %d source(s):\n", len(req.Context))
	for _, l := range lines {
		fmt.Fprintf(&b, "\n- %s: %s", l.source, l.text)
	}
	return b.String(), nil
}

// splitSource returns the path and first line of a block. Sources without
// a line range report line 0.
func splitSource(block ContextBlock) (string, int) {
	path := block.Path
	if path == "" {
		path = block.Source
	}
	idx := strings.LastIndex(block.Source, ":")
	if idx < 0 {
		return path, 0
	}
	rng := block.Source[idx+1:]
	if dash := strings.Index(rng, "-"); dash >= 0 {
		rng = rng[:dash]
	}
	start, err := strconv.Atoi(rng)
	if err != nil {
		return path, 0
	}
	if block.Path == "" {
		path = block.Source[:idx]
	}
	return path, start
}
