package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/dshills/codeaudit/internal/aggregator"
	"github.com/dshills/codeaudit/internal/analyzer"
	"github.com/dshills/codeaudit/internal/catalog"
	"github.com/dshills/codeaudit/internal/config"
	"github.com/dshills/codeaudit/internal/embedder"
	apperrors "github.com/dshills/codeaudit/internal/errors"
	"github.com/dshills/codeaudit/internal/indexer"
	"github.com/dshills/codeaudit/internal/llm"
	"github.com/dshills/codeaudit/internal/qa"
	"github.com/dshills/codeaudit/internal/report"
	"github.com/dshills/codeaudit/internal/respcache"
	"github.com/dshills/codeaudit/internal/searcher"
	"github.com/dshills/codeaudit/internal/source"
	"github.com/dshills/codeaudit/internal/storage"
)

// Engine wires the services together. It is safe for concurrent use.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	store        storage.Storage
	embedder     embedder.Embedder
	generator    llm.Generator
	cache        *respcache.Cache
	materializer *source.Materializer
	analyzers    *analyzer.Registry
	policy       aggregator.Policy
	indexer      *indexer.Indexer
	searcher     *searcher.Searcher
	qa           *qa.Service
	renderers    *report.Registry

	closeOnce sync.Once
	closeErr  error
}

// Option customizes an Engine
type Option func(*Engine)

// WithLogger sets the logger shared by every component
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithStorage uses store instead of opening the configured database
func WithStorage(store storage.Storage) Option {
	return func(e *Engine) { e.store = store }
}

// WithEmbedder uses emb instead of the configured provider
func WithEmbedder(emb embedder.Embedder) Option {
	return func(e *Engine) { e.embedder = emb }
}

// WithGenerator uses gen instead of the configured answer generator
func WithGenerator(gen llm.Generator) Option {
	return func(e *Engine) { e.generator = gen }
}

// WithMaterializer uses m to turn sources into repositories
func WithMaterializer(m *source.Materializer) Option {
	return func(e *Engine) { e.materializer = m }
}

// New creates an Engine from cfg. Services not supplied through options are
// built from the configuration.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.InvalidInput, "invalid configuration", err)
	}

	e := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}

	if e.store == nil {
		store, err := openStorage(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		e.store = store
	}
	if e.embedder == nil {
		emb, err := embedder.New(embedder.Config{
			Provider:  cfg.Embedding.Provider,
			APIKey:    cfg.Embedding.APIKey,
			CacheSize: cfg.Embedding.CacheSize,
			Timeout:   cfg.Embedding.Timeout,
		})
		if err != nil {
			_ = e.store.Close()
			return nil, fmt.Errorf("initialize embedder: %w", err)
		}
		e.embedder = emb
	}
	if e.generator == nil {
		gen, err := llm.New(cfg.LLM)
		if err != nil {
			_ = e.store.Close()
			return nil, fmt.Errorf("initialize llm: %w", err)
		}
		e.generator = gen
	}
	if e.materializer == nil {
		e.materializer = source.NewMaterializer(e.logger)
	}

	e.cache = respcache.New(respcache.OptionsFromConfig(cfg.Cache))
	e.analyzers = analyzer.DefaultRegistry(analyzer.Options{
		ComplexityThreshold: cfg.Analyzers.ComplexityThreshold,
		LongFunctionLines:   cfg.Analyzers.LongFunctionLines,
		MinDuplicateLines:   cfg.Analyzers.MinDuplicateLines,
		RulesFile:           cfg.Analyzers.RulesFile,
	})
	e.policy = aggregator.PolicyFromConfig(cfg.Scoring)
	e.indexer = indexer.New(e.store, e.embedder, e.logger.With("component", "indexer"))
	e.searcher = searcher.New(e.store, e.embedder, e.logger.With("component", "searcher"))
	e.qa = qa.New(e.store, e.searcher, e.generator, e.cache, qa.OptionsFromConfig(cfg), e.logger.With("component", "qa"))
	e.renderers = report.NewRegistry()

	e.logger.Info("engine ready",
		"storage", cfg.Storage.Path,
		"embedder", e.embedder.Provider(),
		"generator", e.generator.Name(),
		"analyzers", e.analyzers.Names(),
		"cache", cfg.Cache.Enabled)
	return e, nil
}

func openStorage(path string) (storage.Storage, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, apperrors.Wrap(apperrors.IndexStoreUnavailable, "create storage directory", err)
		}
	}
	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.IndexStoreUnavailable, "open storage", err)
	}
	return store, nil
}

// Config returns the engine's configuration
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// CacheStats reports response cache activity
func (e *Engine) CacheStats() respcache.Stats {
	return e.cache.Stats()
}

// Formats lists the report formats RenderReport accepts
func (e *Engine) Formats() []string {
	return e.renderers.Formats()
}

// Close releases every service. It is safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		var errs []error
		errs = append(errs, e.cache.Close())
		if c, ok := e.generator.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
		errs = append(errs, e.embedder.Close())
		errs = append(errs, e.store.Close())
		e.closeErr = errors.Join(errs...)
	})
	return e.closeErr
}

func (e *Engine) catalogOptions() catalog.Options {
	return catalog.Options{
		Include:       e.cfg.Catalog.Include,
		Exclude:       e.cfg.Catalog.Exclude,
		MaxFileSize:   e.cfg.Catalog.MaxFileSize,
		IncludeHidden: e.cfg.Catalog.IncludeHidden,
	}
}
