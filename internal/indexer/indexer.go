package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/codeaudit/internal/catalog"
	"github.com/dshills/codeaudit/internal/chunker"
	"github.com/dshills/codeaudit/internal/embedder"
	apperrors "github.com/dshills/codeaudit/internal/errors"
	"github.com/dshills/codeaudit/internal/parser"
	"github.com/dshills/codeaudit/internal/storage"
	"github.com/dshills/codeaudit/pkg/types"
)

// DefaultBatchSize is the number of chunks embedded per request
const DefaultBatchSize = 32

// Indexer coordinates the indexing pipeline: catalog -> parse -> chunk -> embed -> store
type Indexer struct {
	parser   *parser.Parser
	chunker  *chunker.Chunker
	storage  storage.Storage
	embedder embedder.Embedder
	logger   *slog.Logger
	locks    lockSet
}

// Config contains configuration for one indexing run
type Config struct {
	Workers      int  // Number of concurrent workers (default: runtime.NumCPU())
	BatchSize    int  // Number of chunks per embedding request (default: 32)
	IncludeTests bool // Whether to index test files
	Catalog      catalog.Options
}

// Statistics contains statistics about the indexing operation
type Statistics struct {
	Collection    string
	FilesIndexed  int
	FilesSkipped  int // Unchanged since the last run
	FilesFailed   int
	FilesRemoved  int // Vanished from disk since the last run
	ChunksCreated int
	TotalChunks   int
	TypeCounts    map[string]int
	Fingerprint   string
	Duration      time.Duration
	Errors        []string
}

// CollectionStats is the stored state of a collection
type CollectionStats struct {
	Collection      string
	RootPath        string
	TotalFiles      int
	TotalChunks     int
	TypeCounts      map[string]int
	EmbeddingsCount int
	Fingerprint     string
	Provider        string
	Model           string
	IndexSizeMB     float64
	LastIndexedAt   time.Time
}

// New creates a new Indexer instance
func New(store storage.Storage, emb embedder.Embedder, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Indexer{
		parser:   parser.New(),
		chunker:  chunker.New(),
		storage:  store,
		embedder: emb,
		logger:   logger,
	}
}

// Index brings a collection up to date with the source tree at root.
// Unchanged files are skipped, changed files are replaced and files that
// no longer exist are removed. Concurrent runs on the same collection fail
// with a Busy error.
func (idx *Indexer) Index(ctx context.Context, root, collection string, config *Config) (*Statistics, error) {
	if config == nil {
		config = &Config{IncludeTests: true}
	}
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if collection == "" {
		collection = CollectionName(root)
	}

	lock := idx.locks.get(collection)
	if !lock.TryAcquire() {
		return nil, apperrors.Newf(apperrors.Busy, "collection %q is already being indexed", collection)
	}
	defer lock.Release()

	startTime := time.Now()
	stats := &Statistics{Collection: collection}

	files, err := idx.discoverFiles(ctx, root, config)
	if err != nil {
		return nil, err
	}

	coll, rebuild, err := idx.getOrCreateCollection(ctx, collection, root)
	if err != nil {
		return nil, err
	}

	known, err := idx.storage.ListFiles(ctx, coll.ID)
	if err != nil {
		return nil, storeError("list files", err)
	}
	existing := make(map[string]*storage.File, len(known))
	for _, f := range known {
		existing[f.FilePath] = f
	}

	if err := idx.indexFiles(ctx, coll, files, existing, rebuild, config, stats); err != nil {
		return nil, err
	}

	removed, err := idx.removeVanished(ctx, files, existing)
	if err != nil {
		return nil, err
	}
	stats.FilesRemoved = removed

	if err := idx.updateCollectionStats(ctx, coll, stats); err != nil {
		return nil, err
	}

	stats.Duration = time.Since(startTime)
	idx.logger.Info("collection indexed",
		"collection", collection,
		"indexed", stats.FilesIndexed,
		"skipped", stats.FilesSkipped,
		"failed", stats.FilesFailed,
		"removed", stats.FilesRemoved,
		"chunks", stats.TotalChunks,
		"duration", stats.Duration)
	return stats, nil
}

// Stats reports the stored state of a collection
func (idx *Indexer) Stats(ctx context.Context, collection string) (*CollectionStats, error) {
	coll, err := idx.storage.GetCollection(ctx, collection)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.Newf(apperrors.CollectionNotFound, "collection %q has not been indexed", collection)
		}
		return nil, storeError("get collection", err)
	}
	status, err := idx.storage.GetStatus(ctx, coll.ID)
	if err != nil {
		return nil, storeError("collection status", err)
	}
	return &CollectionStats{
		Collection:      coll.Name,
		RootPath:        coll.RootPath,
		TotalFiles:      status.FilesCount,
		TotalChunks:     status.ChunksCount,
		TypeCounts:      status.TypeCounts,
		EmbeddingsCount: status.EmbeddingsCount,
		Fingerprint:     coll.Fingerprint,
		Provider:        coll.EmbeddingProvider,
		Model:           coll.EmbeddingModel,
		IndexSizeMB:     status.IndexSizeMB,
		LastIndexedAt:   coll.LastIndexedAt,
	}, nil
}

// discoverFiles catalogs the source files under root
func (idx *Indexer) discoverFiles(ctx context.Context, root string, config *Config) ([]types.File, error) {
	opts := config.Catalog
	opts.SourceOnly = true
	result, err := catalog.Catalog(ctx, root, opts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	files := make([]types.File, 0, len(result.Files))
	for _, f := range result.Files {
		if !config.IncludeTests && f.Role == types.RoleTest {
			continue
		}
		files = append(files, f)
	}
	return files, nil
}

// getOrCreateCollection retrieves an existing collection or creates a new
// one. rebuild is true when the stored vectors came from a different
// embedder and every file must be re-embedded.
func (idx *Indexer) getOrCreateCollection(ctx context.Context, name, root string) (*storage.Collection, bool, error) {
	coll, err := idx.storage.GetCollection(ctx, name)
	if err == nil {
		rebuild := coll.EmbeddingProvider != idx.embedder.Provider() ||
			coll.EmbeddingModel != idx.embedder.Model() ||
			coll.Dimension != idx.embedder.Dimension()
		if rebuild {
			idx.logger.Warn("embedder changed, re-embedding collection",
				"collection", name,
				"was", coll.EmbeddingProvider+"/"+coll.EmbeddingModel,
				"now", idx.embedder.Provider()+"/"+idx.embedder.Model())
		}
		coll.RootPath = root
		coll.EmbeddingProvider = idx.embedder.Provider()
		coll.EmbeddingModel = idx.embedder.Model()
		coll.Dimension = idx.embedder.Dimension()
		return coll, rebuild, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, storeError("get collection", err)
	}

	coll = &storage.Collection{
		Name:              name,
		RootPath:          root,
		EmbeddingProvider: idx.embedder.Provider(),
		EmbeddingModel:    idx.embedder.Model(),
		Dimension:         idx.embedder.Dimension(),
	}
	if err := idx.storage.CreateCollection(ctx, coll); err != nil {
		return nil, false, storeError("create collection", err)
	}
	return coll, false, nil
}

// preparedFile is a file parsed, chunked and embedded, ready to be written
type preparedFile struct {
	file    types.File
	hash    [32]byte
	lines   int
	parse   *types.ParseResult
	chunks  []*types.Chunk
	vectors [][]float32
}

// indexFiles prepares files concurrently and writes each one in its own
// short transaction. No lock or transaction is held while embedding.
func (idx *Indexer) indexFiles(ctx context.Context, coll *storage.Collection, files []types.File,
	existing map[string]*storage.File, rebuild bool, config *Config, stats *Statistics) error {

	var (
		indexed atomic.Int32
		skipped atomic.Int32
		failed  atomic.Int32
		chunks  atomic.Int32
		mu      sync.Mutex // Protects stats.Errors
	)
	fail := func(path string, err error) {
		failed.Add(1)
		mu.Lock()
		stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", path, err))
		mu.Unlock()
		idx.logger.Warn("failed to index file", "file", path, "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Workers)

	for _, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			src, err := os.ReadFile(f.AbsPath)
			if err != nil {
				fail(f.Path, err)
				return nil
			}
			hash := sha256.Sum256(src)
			if prev, ok := existing[f.Path]; ok && !rebuild && prev.ContentHash == hash {
				skipped.Add(1)
				return nil
			}

			prepared, err := idx.prepareFile(gctx, f, src, hash, config.BatchSize)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				fail(f.Path, err)
				return nil
			}

			written, err := idx.writeFile(gctx, coll.ID, prepared, rebuild)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				fail(f.Path, err)
				return nil
			}
			if !written {
				skipped.Add(1)
				return nil
			}
			indexed.Add(1)
			chunks.Add(int32(len(prepared.chunks)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	stats.FilesIndexed = int(indexed.Load())
	stats.FilesSkipped = int(skipped.Load())
	stats.FilesFailed = int(failed.Load())
	stats.ChunksCreated = int(chunks.Load())
	sort.Strings(stats.Errors)
	return nil
}

// prepareFile parses, chunks and embeds one file
func (idx *Indexer) prepareFile(ctx context.Context, f types.File, src []byte, hash [32]byte, batchSize int) (*preparedFile, error) {
	parseResult, err := idx.parser.Parse(ctx, f.Path, src)
	if errors.Is(err, parser.ErrUnsupportedLanguage) {
		parseResult, err = &types.ParseResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	fileChunks := idx.chunker.Chunk(f.Path, src, parseResult, 0)
	texts := make([]string, len(fileChunks))
	for i, c := range fileChunks {
		c.Language = f.Language
		texts[i] = EmbeddingText(c)
	}

	vectors, err := embedder.EmbedAll(ctx, idx.embedder, texts, batchSize)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	return &preparedFile{
		file:    f,
		hash:    hash,
		lines:   strings.Count(string(src), "\n") + 1,
		parse:   parseResult,
		chunks:  fileChunks,
		vectors: vectors,
	}, nil
}

// writeFile replaces a file's chunks and embeddings in one transaction.
// The stored hash is rechecked inside the transaction; when another run
// already wrote this exact content the write is skipped.
func (idx *Indexer) writeFile(ctx context.Context, collectionID int64, p *preparedFile, rebuild bool) (bool, error) {
	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return false, storeError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	prev, err := tx.GetFile(ctx, collectionID, p.file.Path)
	switch {
	case err == nil:
		if !rebuild && prev.ContentHash == p.hash {
			return false, nil
		}
		if _, err := tx.DeleteChunksByFile(ctx, prev.ID); err != nil {
			return false, fmt.Errorf("delete old chunks: %w", err)
		}
	case !errors.Is(err, storage.ErrNotFound):
		return false, err
	}

	file := &storage.File{
		CollectionID: collectionID,
		FilePath:     p.file.Path,
		Language:     string(p.file.Language),
		ContentHash:  p.hash,
		SizeBytes:    p.file.Size,
		LineCount:    p.lines,
	}
	if len(p.parse.Errors) > 0 {
		msg := fmt.Sprintf("line %d: %s", p.parse.Errors[0].Line, p.parse.Errors[0].Message)
		file.ParseError = &msg
	}
	if err := tx.UpsertFile(ctx, file); err != nil {
		return false, err
	}

	for i, c := range p.chunks {
		stored := storage.FromTypesChunk(c, file.ID, ChunkTerms(c))
		if err := tx.UpsertChunk(ctx, stored); err != nil {
			return false, fmt.Errorf("store chunk: %w", err)
		}
		emb := &storage.Embedding{
			ChunkID:   stored.ID,
			Vector:    storage.SerializeVector(p.vectors[i]),
			Dimension: len(p.vectors[i]),
			Provider:  idx.embedder.Provider(),
			Model:     idx.embedder.Model(),
		}
		if err := tx.UpsertEmbedding(ctx, emb); err != nil {
			return false, fmt.Errorf("store embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, storeError("commit", err)
	}
	return true, nil
}

// removeVanished deletes stored files that the catalog no longer lists.
// Chunks and embeddings go with them.
func (idx *Indexer) removeVanished(ctx context.Context, files []types.File, existing map[string]*storage.File) (int, error) {
	current := make(map[string]bool, len(files))
	for _, f := range files {
		current[f.Path] = true
	}

	var gone []*storage.File
	for path, f := range existing {
		if !current[path] {
			gone = append(gone, f)
		}
	}
	if len(gone) == 0 {
		return 0, nil
	}

	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return 0, storeError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, f := range gone {
		if err := tx.DeleteFile(ctx, f.ID); err != nil {
			return 0, storeError("remove file", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, storeError("commit", err)
	}
	return len(gone), nil
}

// updateCollectionStats recomputes the collection's counts and content
// fingerprint from what is stored
func (idx *Indexer) updateCollectionStats(ctx context.Context, coll *storage.Collection, stats *Statistics) error {
	files, err := idx.storage.ListFiles(ctx, coll.ID)
	if err != nil {
		return storeError("list files", err)
	}
	typeCounts, err := idx.storage.CountChunksByType(ctx, coll.ID)
	if err != nil {
		return storeError("count chunks", err)
	}

	total := 0
	for _, n := range typeCounts {
		total += n
	}

	coll.TotalFiles = len(files)
	coll.TotalChunks = total
	coll.Fingerprint = Fingerprint(files)
	coll.LastIndexedAt = time.Now()
	if err := idx.storage.UpdateCollection(ctx, coll); err != nil {
		return storeError("update collection", err)
	}

	stats.TotalChunks = total
	stats.TypeCounts = typeCounts
	stats.Fingerprint = coll.Fingerprint
	return nil
}

// Fingerprint digests the path and content hash of every file. It changes
// whenever any file in the collection is added, removed or modified.
func Fingerprint(files []*storage.File) string {
	sorted := make([]*storage.File, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FilePath < sorted[j].FilePath })

	h := sha256.New()
	for _, f := range sorted {
		h.Write([]byte(f.FilePath))
		h.Write([]byte{0})
		h.Write(f.ContentHash[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CollectionName derives a stable collection name from a source path
func CollectionName(root string) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	base := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, filepath.Base(abs))
	sum := sha256.Sum256([]byte(filepath.ToSlash(abs)))
	return base + "-" + hex.EncodeToString(sum[:4])
}

// EmbeddingText is the text embedded for a chunk: its signature and
// documentation line followed by the code
func EmbeddingText(c *types.Chunk) string {
	var b strings.Builder
	if c.Signature != "" {
		b.WriteString(c.Signature)
		b.WriteByte('\n')
	}
	if c.DocLine != "" {
		b.WriteString(c.DocLine)
		b.WriteByte('\n')
	}
	b.WriteString(c.Content)
	return b.String()
}

// ChunkTerms lists the distinct search terms of a chunk, identifiers split
// the same way queries are
func ChunkTerms(c *types.Chunk) string {
	seen := make(map[string]bool)
	var terms []string
	for _, t := range embedder.Tokenize(strings.Join([]string{c.Name, c.Parent, c.DocLine, c.Content}, " ")) {
		if !seen[t] {
			seen[t] = true
			terms = append(terms, t)
		}
	}
	return strings.Join(terms, " ")
}

func storeError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperrors.Wrap(apperrors.IndexStoreUnavailable, op, err)
}
