package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dshills/codeaudit/internal/embedder"
	apperrors "github.com/dshills/codeaudit/internal/errors"
	"github.com/dshills/codeaudit/internal/retry"
	"github.com/dshills/codeaudit/internal/storage"
	"github.com/dshills/codeaudit/pkg/types"
)

// Mode defines how search is performed
type Mode string

const (
	ModeHybrid   Mode = "hybrid"   // Vector + BM25 with RRF
	ModeSemantic Mode = "semantic" // Vector similarity only
	ModeKeyword  Mode = "keyword"  // BM25 text search only
)

// Search limits
const (
	DefaultLimit = 10
	MaxLimit     = 100
	DefaultRRFK  = 60
)

// ParseMode accepts a mode name; "vector" is an alias for semantic and an
// empty name means hybrid
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeHybrid):
		return ModeHybrid, nil
	case string(ModeSemantic), "vector":
		return ModeSemantic, nil
	case string(ModeKeyword):
		return ModeKeyword, nil
	}
	return "", apperrors.Newf(apperrors.InvalidInput, "unsupported search type %q", s)
}

// Request contains parameters for a search operation
type Request struct {
	Query       string
	Collection  string
	Limit       int
	Mode        Mode
	Filters     *storage.SearchFilters
	RRFConstant float64 // k value for Reciprocal Rank Fusion (default 60)
}

// Response contains search results and metadata
type Response struct {
	Collection    string
	Results       []types.SearchResult
	TotalResults  int
	Mode          Mode
	Duration      time.Duration
	VectorResults int
	TextResults   int
}

// Searcher coordinates search operations across vector and text search
type Searcher struct {
	storage  storage.Storage
	embedder embedder.Embedder
	logger   *slog.Logger
}

// New creates a new Searcher instance
func New(store storage.Storage, emb embedder.Embedder, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Searcher{storage: store, embedder: emb, logger: logger}
}

// Search performs a search based on the request parameters
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()

	if err := validateRequest(&req); err != nil {
		return nil, err
	}

	coll, err := s.storage.GetCollection(ctx, req.Collection)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.Newf(apperrors.CollectionNotFound, "collection %q has not been indexed", req.Collection)
		}
		return nil, storeError("get collection", err)
	}

	var response *Response
	switch req.Mode {
	case ModeHybrid:
		response, err = s.hybridSearch(ctx, coll.ID, req)
	case ModeSemantic:
		response, err = s.vectorSearch(ctx, coll.ID, req)
	case ModeKeyword:
		response, err = s.keywordSearch(ctx, coll.ID, req)
	default:
		return nil, apperrors.Newf(apperrors.InvalidInput, "unsupported search type %q", req.Mode)
	}
	if err != nil {
		return nil, err
	}

	response.Collection = coll.Name
	response.Mode = req.Mode
	response.Duration = time.Since(startTime)
	s.logger.Debug("search complete",
		"collection", coll.Name,
		"mode", req.Mode,
		"results", response.TotalResults,
		"duration", response.Duration)
	return response, nil
}

// searchResult holds results from concurrent search operations
type searchResult struct {
	vectorResults []storage.VectorResult
	textResults   []storage.TextResult
	err           error
}

// runVectorSearch executes vector search in a goroutine
func (s *Searcher) runVectorSearch(ctx context.Context, collectionID int64, req Request, limit int, resultChan chan<- searchResult) {
	var res searchResult
	res.vectorResults, res.err = s.searchVector(ctx, collectionID, req, limit)
	select {
	case resultChan <- res:
	case <-ctx.Done():
	}
}

// runTextSearch executes text search in a goroutine
func (s *Searcher) runTextSearch(ctx context.Context, collectionID int64, req Request, limit int, resultChan chan<- searchResult) {
	var res searchResult
	res.textResults, res.err = s.searchText(ctx, collectionID, req, limit)
	select {
	case resultChan <- res:
	case <-ctx.Done():
	}
}

// hybridSearch combines vector and BM25 search using Reciprocal Rank Fusion.
// Either side may fail; the other's ranking is used alone.
func (s *Searcher) hybridSearch(ctx context.Context, collectionID int64, req Request) (*Response, error) {
	vectorChan := make(chan searchResult, 1)
	textChan := make(chan searchResult, 1)

	go s.runVectorSearch(ctx, collectionID, req, req.Limit*2, vectorChan)
	go s.runTextSearch(ctx, collectionID, req, req.Limit*2, textChan)

	var vectorRes, textRes searchResult
	var vectorDone, textDone bool
	for !vectorDone || !textDone {
		select {
		case vectorRes = <-vectorChan:
			vectorDone = true
		case textRes = <-textChan:
			textDone = true
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if vectorRes.err != nil && textRes.err != nil {
		return nil, vectorRes.err
	}
	if vectorRes.err != nil {
		s.logger.Warn("vector search failed, using text results", "error", vectorRes.err)
	}
	if textRes.err != nil {
		s.logger.Warn("text search failed, using vector results", "error", textRes.err)
	}

	rrf := applyRRF(vectorRes.vectorResults, textRes.textResults, req.RRFConstant)
	results, err := s.fetchResults(ctx, rrf, req.Limit)
	if err != nil {
		return nil, err
	}

	return &Response{
		Results:       results,
		TotalResults:  len(results),
		VectorResults: len(vectorRes.vectorResults),
		TextResults:   len(textRes.textResults),
	}, nil
}

// vectorSearch performs only vector similarity search
func (s *Searcher) vectorSearch(ctx context.Context, collectionID int64, req Request) (*Response, error) {
	vectorResults, err := s.searchVector(ctx, collectionID, req, req.Limit)
	if err != nil {
		return nil, err
	}

	ranked := make([]rankedResult, len(vectorResults))
	for i, vr := range vectorResults {
		ranked[i] = rankedResult{chunkID: vr.ChunkID, score: vr.SimilarityScore, rank: i + 1}
	}

	results, err := s.fetchResults(ctx, ranked, req.Limit)
	if err != nil {
		return nil, err
	}
	return &Response{
		Results:       results,
		TotalResults:  len(results),
		VectorResults: len(vectorResults),
	}, nil
}

// keywordSearch performs only BM25 text search
func (s *Searcher) keywordSearch(ctx context.Context, collectionID int64, req Request) (*Response, error) {
	textResults, err := s.searchText(ctx, collectionID, req, req.Limit)
	if err != nil {
		return nil, err
	}

	ranked := make([]rankedResult, len(textResults))
	for i, tr := range textResults {
		ranked[i] = rankedResult{chunkID: tr.ChunkID, score: tr.BM25Score, rank: i + 1}
	}

	results, err := s.fetchResults(ctx, ranked, req.Limit)
	if err != nil {
		return nil, err
	}
	return &Response{
		Results:      results,
		TotalResults: len(results),
		TextResults:  len(textResults),
	}, nil
}

func (s *Searcher) searchVector(ctx context.Context, collectionID int64, req Request, limit int) ([]storage.VectorResult, error) {
	embedding, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: req.Query})
	if err != nil {
		return nil, embedError(err)
	}
	results, err := s.storage.SearchVector(ctx, collectionID, embedding.Vector, limit, req.Filters)
	if err != nil {
		return nil, storeError("vector search", err)
	}
	return results, nil
}

func (s *Searcher) searchText(ctx context.Context, collectionID int64, req Request, limit int) ([]storage.TextResult, error) {
	terms := embedder.Tokenize(req.Query)
	if len(terms) == 0 {
		return nil, nil
	}
	results, err := s.storage.SearchText(ctx, collectionID, terms, limit, req.Filters)
	if err != nil {
		return nil, storeError("text search", err)
	}
	return results, nil
}

// rankedResult represents a chunk with its relevance score and rank
type rankedResult struct {
	chunkID int64
	score   float64
	rank    int
}

// applyRRF applies Reciprocal Rank Fusion to combine vector and text results
// RRF formula: RRF(d) = Σ 1/(k + rank(d))
func applyRRF(vectorResults []storage.VectorResult, textResults []storage.TextResult, k float64) []rankedResult {
	if k <= 0 {
		k = DefaultRRFK
	}

	scores := make(map[int64]float64)
	for rank, vr := range vectorResults {
		scores[vr.ChunkID] += 1.0 / (k + float64(rank+1))
	}
	for rank, tr := range textResults {
		scores[tr.ChunkID] += 1.0 / (k + float64(rank+1))
	}

	results := make([]rankedResult, 0, len(scores))
	for chunkID, score := range scores {
		results = append(results, rankedResult{chunkID: chunkID, score: score})
	}
	sortRankedResults(results)
	for i := range results {
		results[i].rank = i + 1
	}
	return results
}

// fetchResults retrieves full chunk data and file metadata for ranked results.
// Chunks removed since ranking are skipped.
func (s *Searcher) fetchResults(ctx context.Context, ranked []rankedResult, limit int) ([]types.SearchResult, error) {
	limit = min(limit, len(ranked))
	results := make([]types.SearchResult, 0, limit)

	for i := 0; i < limit; i++ {
		rr := ranked[i]

		chunk, err := s.storage.GetChunk(ctx, rr.chunkID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, storeError("get chunk", err)
		}
		file, err := s.storage.GetFileByID(ctx, chunk.FileID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, storeError("get file", err)
		}

		results = append(results, types.SearchResult{
			ChunkID:        rr.chunkID,
			Rank:           len(results) + 1,
			RelevanceScore: rr.score,
			Name:           chunk.Name,
			ChunkType:      types.ChunkType(chunk.ChunkType),
			File: &types.FileInfo{
				Path:      file.FilePath,
				Language:  types.Language(file.Language),
				StartLine: chunk.StartLine,
				EndLine:   chunk.EndLine,
			},
			Content: chunk.Content,
			Context: chunk.ContextBefore,
		})
	}
	return results, nil
}

// validateRequest ensures search request is valid
func validateRequest(req *Request) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return apperrors.New(apperrors.InvalidInput, "query cannot be empty")
	}
	if req.Collection == "" {
		return apperrors.New(apperrors.InvalidInput, "collection name is required")
	}
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	if req.Mode == "" {
		req.Mode = ModeHybrid
	}
	if req.RRFConstant <= 0 {
		req.RRFConstant = DefaultRRFK
	}
	return nil
}

// sortRankedResults sorts results by score in descending order, breaking
// ties by chunk id so rankings are stable
func sortRankedResults(results []rankedResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].chunkID < results[j].chunkID
	})
}

func storeError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperrors.Wrap(apperrors.IndexStoreUnavailable, op, err)
}

func embedError(err error) error {
	var typed *apperrors.Error
	if errors.As(err, &typed) || errors.Is(err, context.Canceled) {
		return err
	}
	if retry.IsTimeout(err) {
		return apperrors.Wrap(apperrors.ModelTimeout, "embed query", err)
	}
	return fmt.Errorf("embed query: %w", err)
}
