package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dshills/codeaudit/internal/catalog"
	"github.com/dshills/codeaudit/internal/config"
	apperrors "github.com/dshills/codeaudit/internal/errors"
	"github.com/dshills/codeaudit/internal/indexer"
	"github.com/dshills/codeaudit/internal/llm"
	"github.com/dshills/codeaudit/internal/respcache"
	"github.com/dshills/codeaudit/internal/searcher"
	"github.com/dshills/codeaudit/internal/storage"
	"github.com/dshills/codeaudit/pkg/types"
)

// Answer modes
const (
	ModeIndexed = "indexed"
	ModeDirect  = "direct"
)

// Warnings attached to answers
const (
	WarnLowerCoverage = "answered from a direct scan of at most %d files; index the scope for better coverage"
	WarnStoreDegraded = "index store unavailable; coverage is degraded"
)

// InsufficientAnswer is returned when no relevant context was found
const InsufficientAnswer = "I could not find code relevant to this question in the examined files, so I cannot answer it without guessing."

// Defaults
const (
	DefaultTopK            = 8
	DefaultMinSimilarity   = 0.15
	DefaultDirectMaxFiles  = 25
	DefaultContextMaxChars = 12000
	DefaultHistorySize     = 20
)

// Options tunes retrieval
type Options struct {
	TopK            int
	MinSimilarity   float64
	DirectMaxFiles  int
	ContextMaxChars int
	HistorySize     int
	CacheTTL        time.Duration
	Catalog         catalog.Options
}

// OptionsFromConfig maps configuration onto Options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TopK:            cfg.Retrieval.TopK,
		MinSimilarity:   cfg.Retrieval.MinSimilarity,
		DirectMaxFiles:  cfg.Retrieval.DirectMaxFiles,
		ContextMaxChars: cfg.Retrieval.ContextMaxChars,
		HistorySize:     cfg.Retrieval.HistorySize,
		CacheTTL:        cfg.Cache.TTL,
		Catalog: catalog.Options{
			Include:       cfg.Catalog.Include,
			Exclude:       cfg.Catalog.Exclude,
			MaxFileSize:   cfg.Catalog.MaxFileSize,
			IncludeHidden: cfg.Catalog.IncludeHidden,
		},
	}
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.MinSimilarity <= 0 {
		o.MinSimilarity = DefaultMinSimilarity
	}
	if o.DirectMaxFiles <= 0 {
		o.DirectMaxFiles = DefaultDirectMaxFiles
	}
	if o.ContextMaxChars <= 0 {
		o.ContextMaxChars = DefaultContextMaxChars
	}
	if o.HistorySize <= 0 {
		o.HistorySize = DefaultHistorySize
	}
	return o
}

// Request is a question about a scope. Scope is a directory; Collection
// overrides the collection name derived from it.
type Request struct {
	Question   string
	Scope      string
	Collection string
}

// Answer is the outcome of one question
type Answer struct {
	Answer             string         `json:"answer"`
	AnalyzedFiles      []string       `json:"analyzed_files"`
	FilesAnalyzedCount int            `json:"files_analyzed_count"`
	Timestamp          time.Time      `json:"timestamp"`
	Mode               string         `json:"mode"`
	Sources            []string       `json:"sources,omitempty"`
	Warnings           []string       `json:"warnings,omitempty"`
	Insufficient       bool           `json:"insufficient"`
	ErrorKind          apperrors.Kind `json:"error_kind,omitempty"`

	// degraded marks an answer produced by a fallback; it is never cached
	degraded bool
}

// Service answers questions
type Service struct {
	store     storage.Storage
	searcher  *searcher.Searcher
	generator llm.Generator
	cache     *respcache.Cache
	opts      Options
	logger    *slog.Logger

	mu      sync.Mutex
	history map[string]*ring
}

// New creates a Service. cache may be nil.
func New(store storage.Storage, srch *searcher.Searcher, gen llm.Generator, cache *respcache.Cache, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		store:     store,
		searcher:  srch,
		generator: gen,
		cache:     cache,
		opts:      opts.withDefaults(),
		logger:    logger,
		history:   make(map[string]*ring),
	}
}

// plan is what Ask decided before computing an answer
type plan struct {
	mode       string
	collection string
	root       string
	question   string
	warnings   []string
	key        string
}

// Ask answers req. Questions that differ only in case or spacing are the
// same question: they share one computation and the generator sees the
// normalized form.
func (s *Service) Ask(ctx context.Context, req Request) (*Answer, error) {
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return nil, apperrors.New(apperrors.InvalidInput, "question is required")
	}
	if req.Scope == "" && req.Collection == "" {
		return nil, apperrors.New(apperrors.InvalidInput, "scope or collection_name is required")
	}

	p, err := s.plan(ctx, req)
	if err != nil {
		return nil, err
	}

	shared, err := respcache.GetOrCompute(ctx, s.cache, p.key, s.opts.CacheTTL, func(ctx context.Context) (*Answer, error) {
		return s.compute(ctx, p.question, p)
	})
	if err != nil {
		return nil, err
	}
	if shared.degraded {
		s.cache.Invalidate(p.key)
	}

	answer := *shared
	answer.Timestamp = time.Now().UTC()
	answer.Warnings = append(append([]string(nil), p.warnings...), shared.Warnings...)
	s.record(historyKey(req), req.Question, &answer)
	return &answer, nil
}

func (s *Service) plan(ctx context.Context, req Request) (*plan, error) {
	name := req.Collection
	if name == "" {
		name = indexer.CollectionName(req.Scope)
	}
	question := normalizeQuestion(req.Question)

	coll, err := s.store.GetCollection(ctx, name)
	switch {
	case err == nil && coll.TotalChunks > 0:
		return &plan{
			mode:       ModeIndexed,
			collection: coll.Name,
			root:       coll.RootPath,
			question:   question,
			key:        respcache.Fingerprint("ask", coll.Name, coll.Fingerprint, question),
		}, nil
	case err == nil:
		if req.Scope == "" {
			req.Scope = coll.RootPath
		}
	case errors.Is(err, storage.ErrNotFound):
		if req.Scope == "" {
			return nil, apperrors.Newf(apperrors.CollectionNotFound, "collection %q has not been indexed", name)
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	default:
		if req.Scope == "" {
			return nil, apperrors.Wrap(apperrors.IndexStoreUnavailable, "get collection", err)
		}
		s.logger.Warn("index store unavailable, falling back to direct scan", "collection", name, "error", err)
		return s.directPlan(ctx, req.Scope, question, WarnStoreDegraded)
	}
	return s.directPlan(ctx, req.Scope, question)
}

func (s *Service) directPlan(ctx context.Context, root, question string, warnings ...string) (*plan, error) {
	files, err := s.candidates(ctx, root)
	if err != nil {
		return nil, err
	}
	return &plan{
		mode:     ModeDirect,
		root:     root,
		question: question,
		warnings: warnings,
		key:      respcache.Fingerprint("ask-direct", root, contentDigest(files), question),
	}, nil
}

func (s *Service) compute(ctx context.Context, question string, p *plan) (*Answer, error) {
	var (
		blocks   []llm.ContextBlock
		warnings []string
		degraded bool
		err      error
	)
	switch p.mode {
	case ModeIndexed:
		blocks, err = s.indexedContext(ctx, question, p.collection)
		if apperrors.IsKind(err, apperrors.IndexStoreUnavailable) && p.root != "" {
			s.logger.Warn("search failed, falling back to direct scan", "collection", p.collection, "error", err)
			p.mode = ModeDirect
			degraded = true
			warnings = append(warnings, WarnStoreDegraded)
			blocks, err = s.directContext(ctx, question, p.root)
		}
	default:
		blocks, err = s.directContext(ctx, question, p.root)
	}
	if err != nil {
		return nil, err
	}
	if p.mode == ModeDirect {
		warnings = append(warnings, fmt.Sprintf(WarnLowerCoverage, s.opts.DirectMaxFiles))
	}

	answer := &Answer{Mode: p.mode, Warnings: warnings, AnalyzedFiles: []string{}, degraded: degraded}
	if len(blocks) == 0 {
		s.logger.Info("no relevant context", "mode", p.mode, "question", question)
		answer.Answer = InsufficientAnswer
		answer.Insufficient = true
		answer.ErrorKind = apperrors.RetrievalEmpty
		return answer, nil
	}

	seen := make(map[string]bool)
	for _, b := range blocks {
		answer.Sources = append(answer.Sources, b.Source)
		if !seen[b.Path] {
			seen[b.Path] = true
			answer.AnalyzedFiles = append(answer.AnalyzedFiles, b.Path)
		}
	}
	answer.FilesAnalyzedCount = len(answer.AnalyzedFiles)

	text, err := s.generator.Generate(ctx, llm.Request{Question: question, Context: blocks})
	if err != nil {
		return nil, err
	}
	answer.Answer = text
	s.logger.Debug("answered question",
		"mode", p.mode,
		"generator", s.generator.Name(),
		"files", answer.FilesAnalyzedCount,
		"sources", len(answer.Sources))
	return answer, nil
}

// indexedContext retrieves the top chunks for question, in rank order,
// until the character budget is spent
func (s *Service) indexedContext(ctx context.Context, question, collection string) ([]llm.ContextBlock, error) {
	resp, err := s.searcher.Search(ctx, searcher.Request{
		Query:      question,
		Collection: collection,
		Limit:      s.opts.TopK,
		Mode:       searcher.ModeSemantic,
		Filters:    &storage.SearchFilters{MinRelevance: s.opts.MinSimilarity},
	})
	if err != nil {
		return nil, err
	}

	budget := s.opts.ContextMaxChars
	var blocks []llm.ContextBlock
	for _, r := range resp.Results {
		if budget <= 0 || r.File == nil {
			break
		}
		content := truncate(r.Content, budget)
		if content == "" {
			break
		}
		budget -= len(content)
		blocks = append(blocks, llm.ContextBlock{
			Source:  fmt.Sprintf("%s:%d-%d", r.File.Path, r.File.StartLine, r.File.EndLine),
			Path:    r.File.Path,
			Content: content,
		})
	}
	return blocks, nil
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func normalizeQuestion(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

func historyKey(req Request) string {
	if req.Scope != "" {
		return req.Scope
	}
	return req.Collection
}

// History returns the exchanges recorded for scope, oldest first
func (s *Service) History(scope string) []types.ChatExchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.history[scope]
	if !ok {
		return nil
	}
	return r.list()
}

func (s *Service) record(scope, question string, a *Answer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.history[scope]
	if !ok {
		r = newRing(s.opts.HistorySize)
		s.history[scope] = r
	}
	r.add(types.ChatExchange{
		Question:           question,
		Answer:             a.Answer,
		AnalyzedFiles:      append([]string(nil), a.AnalyzedFiles...),
		FilesAnalyzedCount: a.FilesAnalyzedCount,
		Timestamp:          a.Timestamp,
		Mode:               a.Mode,
		Warnings:           append([]string(nil), a.Warnings...),
	})
}

// ring keeps the most recent exchanges
type ring struct {
	items []types.ChatExchange
	next  int
	full  bool
}

func newRing(size int) *ring {
	return &ring{items: make([]types.ChatExchange, size)}
}

func (r *ring) add(x types.ChatExchange) {
	r.items[r.next] = x
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) list() []types.ChatExchange {
	if !r.full {
		return append([]types.ChatExchange(nil), r.items[:r.next]...)
	}
	out := make([]types.ChatExchange, 0, len(r.items))
	out = append(out, r.items[r.next:]...)
	return append(out, r.items[:r.next]...)
}
