package storage

import (
	"context"
	"time"

	"github.com/dshills/codeaudit/pkg/types"
)

// Storage persists semantic collections and analysis reports
type Storage interface {
	// Collection operations
	CreateCollection(ctx context.Context, collection *Collection) error
	GetCollection(ctx context.Context, name string) (*Collection, error)
	UpdateCollection(ctx context.Context, collection *Collection) error
	ListCollections(ctx context.Context) ([]*Collection, error)
	DeleteCollection(ctx context.Context, collectionID int64) error

	// File operations
	UpsertFile(ctx context.Context, file *File) error
	GetFile(ctx context.Context, collectionID int64, filePath string) (*File, error)
	GetFileByID(ctx context.Context, fileID int64) (*File, error)
	DeleteFile(ctx context.Context, fileID int64) error
	ListFiles(ctx context.Context, collectionID int64) ([]*File, error)

	// Chunk operations
	UpsertChunk(ctx context.Context, chunk *Chunk) error
	GetChunk(ctx context.Context, chunkID int64) (*Chunk, error)
	ListChunksByFile(ctx context.Context, fileID int64) ([]*Chunk, error)
	DeleteChunksByFile(ctx context.Context, fileID int64) (int, error)
	CountChunksByType(ctx context.Context, collectionID int64) (map[string]int, error)

	// Embedding operations
	UpsertEmbedding(ctx context.Context, embedding *Embedding) error
	GetEmbedding(ctx context.Context, chunkID int64) (*Embedding, error)

	// Search operations
	SearchVector(ctx context.Context, collectionID int64, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error)
	SearchText(ctx context.Context, collectionID int64, terms []string, limit int, filters *SearchFilters) ([]TextResult, error)

	// Report operations
	SaveReport(ctx context.Context, report *Report) error
	GetReport(ctx context.Context, id string) (*Report, error)
	ListReports(ctx context.Context, limit int) ([]*Report, error)

	// Status operations
	GetStatus(ctx context.Context, collectionID int64) (*CollectionStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage
}

// Collection is a named semantic index over one source tree
type Collection struct {
	ID                int64
	Name              string
	RootPath          string
	TotalFiles        int
	TotalChunks       int
	Fingerprint       string // Digest of every indexed file's content hash
	EmbeddingProvider string
	EmbeddingModel    string
	Dimension         int
	LastIndexedAt     time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// File represents a tracked source file within a collection
type File struct {
	ID            int64
	CollectionID  int64
	FilePath      string // Relative to the collection root
	Language      string
	ContentHash   [32]byte
	SizeBytes     int64
	LineCount     int
	ParseError    *string // Nullable
	LastIndexedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Chunk represents a stored code unit
type Chunk struct {
	ID            int64
	FileID        int64
	Name          string
	Parent        string
	Signature     string
	DocLine       string
	Content       string
	ContentHash   [32]byte
	TokenCount    int
	StartLine     int
	EndLine       int
	ContextBefore string
	ChunkType     string
	Language      string
	Terms         string // Space-separated search terms, indexed by FTS
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Embedding represents a vector embedding for a chunk
type Embedding struct {
	ID        int64
	ChunkID   int64
	Vector    []byte // Serialized float32 array
	Dimension int
	Provider  string
	Model     string
	CreatedAt time.Time
}

// Report is a persisted analysis report. Payload holds the encoded report
// and is compressed at rest.
type Report struct {
	ID            string
	Source        string
	QualityScore  float64
	TotalIssues   int
	FilesAnalyzed int
	Payload       []byte
	CreatedAt     time.Time
}

// SearchFilters contains filters for narrowing search results
type SearchFilters struct {
	ChunkTypes   []string // Filter by chunk type
	Languages    []string // Filter by file language
	FilePattern  string   // Glob pattern for file paths
	MinRelevance float64  // Minimum relevance score
}

// VectorResult represents a result from vector similarity search
type VectorResult struct {
	ChunkID         int64
	SimilarityScore float64
}

// TextResult represents a result from full-text search
type TextResult struct {
	ChunkID   int64
	BM25Score float64
}

// CollectionStatus contains statistics about an indexed collection
type CollectionStatus struct {
	Collection      *Collection
	FilesCount      int
	ChunksCount     int
	EmbeddingsCount int
	TypeCounts      map[string]int
	IndexSizeMB     float64
	LastIndexedAt   time.Time
	Health          HealthStatus
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
	FTSIndexesBuilt     bool
}

// FromTypesChunk converts a parsed chunk into its stored form
func FromTypesChunk(c *types.Chunk, fileID int64, terms string) *Chunk {
	return &Chunk{
		ID:            c.ID,
		FileID:        fileID,
		Name:          c.Name,
		Parent:        c.Parent,
		Signature:     c.Signature,
		DocLine:       c.DocLine,
		Content:       c.Content,
		ContentHash:   c.ContentHash,
		TokenCount:    c.TokenCount,
		StartLine:     c.StartLine,
		EndLine:       c.EndLine,
		ContextBefore: c.ContextBefore,
		ChunkType:     string(c.ChunkType),
		Language:      string(c.Language),
		Terms:         terms,
	}
}

// ToTypesChunk converts a stored chunk back into the shared type
func (c *Chunk) ToTypesChunk(filePath string) *types.Chunk {
	return &types.Chunk{
		ID:            c.ID,
		FileID:        c.FileID,
		Name:          c.Name,
		Parent:        c.Parent,
		Signature:     c.Signature,
		DocLine:       c.DocLine,
		Content:       c.Content,
		ContentHash:   c.ContentHash,
		TokenCount:    c.TokenCount,
		ContextBefore: c.ContextBefore,
		FilePath:      filePath,
		StartLine:     c.StartLine,
		EndLine:       c.EndLine,
		Language:      types.Language(c.Language),
		ChunkType:     types.ChunkType(c.ChunkType),
	}
}
