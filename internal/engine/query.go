package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/dshills/codeaudit/internal/errors"
	"github.com/dshills/codeaudit/internal/indexer"
	"github.com/dshills/codeaudit/internal/qa"
	"github.com/dshills/codeaudit/internal/searcher"
	"github.com/dshills/codeaudit/pkg/types"
)

// AskRequest is a question about a directory or a previous analysis.
// Scope is a path or an analysis id.
type AskRequest struct {
	Question   string
	Scope      string
	Collection string
}

// Ask answers a question from the code in scope
func (e *Engine) Ask(ctx context.Context, req AskRequest) (*qa.Answer, error) {
	scope, err := e.resolveScope(ctx, req.Scope)
	if err != nil {
		return nil, err
	}
	return e.qa.Ask(ctx, qa.Request{Question: req.Question, Scope: scope, Collection: req.Collection})
}

// History returns the recorded exchanges for a scope, oldest first
func (e *Engine) History(ctx context.Context, scope string) ([]types.ChatExchange, error) {
	resolved, err := e.resolveScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	return e.qa.History(resolved), nil
}

// resolveScope turns a directory or analysis id into an absolute directory.
// An analysis resolves to the directory it was run on, which only exists
// for local analyses.
func (e *Engine) resolveScope(ctx context.Context, scope string) (string, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return "", nil
	}
	if info, err := os.Stat(scope); err == nil && info.IsDir() {
		return filepath.Abs(scope)
	}

	rep, err := e.Report(ctx, scope)
	if apperrors.IsKind(err, apperrors.NotFound) {
		return "", apperrors.Newf(apperrors.SourceUnavailable, "scope %q is neither a directory nor a known analysis", scope)
	}
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(rep.Source); err != nil || !info.IsDir() {
		return "", apperrors.Newf(apperrors.SourceUnavailable,
			"analysis %s was run on %s, which is not a local directory; ask with a path instead", scope, rep.Source)
	}
	return rep.Source, nil
}

// IndexRequest names a directory to index
type IndexRequest struct {
	Path       string
	Collection string
	BatchSize  int
}

// Index brings the collection for a directory up to date
func (e *Engine) Index(ctx context.Context, req IndexRequest) (*indexer.Statistics, error) {
	if strings.TrimSpace(req.Path) == "" {
		return nil, apperrors.New(apperrors.InvalidInput, "path is required")
	}
	if req.BatchSize < 0 {
		return nil, apperrors.New(apperrors.InvalidInput, "batch_size must not be negative")
	}
	root, err := filepath.Abs(req.Path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.InvalidInput, "invalid path", err)
	}

	batch := req.BatchSize
	if batch == 0 {
		batch = e.cfg.Indexer.BatchSize
	}
	return e.indexer.Index(ctx, root, req.Collection, &indexer.Config{
		Workers:      e.cfg.Indexer.Workers,
		BatchSize:    batch,
		IncludeTests: e.cfg.Indexer.IncludeTests,
		Catalog:      e.catalogOptions(),
	})
}

// SearchRequest is a code search over an indexed collection. Path derives
// the collection name when Collection is empty.
type SearchRequest struct {
	Query      string
	SearchType string
	Limit      int
	Collection string
	Path       string
}

// Search runs a keyword, semantic or hybrid search
func (e *Engine) Search(ctx context.Context, req SearchRequest) (*searcher.Response, error) {
	mode, err := searcher.ParseMode(req.SearchType)
	if err != nil {
		return nil, err
	}
	collection := req.Collection
	if collection == "" && req.Path != "" {
		collection = indexer.CollectionName(req.Path)
	}
	return e.searcher.Search(ctx, searcher.Request{
		Query:      req.Query,
		Collection: collection,
		Limit:      req.Limit,
		Mode:       mode,
	})
}

// IndexStats reports what a collection holds
func (e *Engine) IndexStats(ctx context.Context, collection string) (*indexer.CollectionStats, error) {
	if strings.TrimSpace(collection) == "" {
		return nil, apperrors.New(apperrors.InvalidInput, "collection_name is required")
	}
	return e.indexer.Stats(ctx, collection)
}
