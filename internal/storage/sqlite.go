package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
	// ErrNestedTx is returned when BeginTx is called on a transaction
	ErrNestedTx = errors.New("nested transactions are not supported")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Single writer; also keeps ":memory:" databases on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to create decompressor: %w", err)
	}

	return &SQLiteStorage{db: db, enc: enc, dec: dec}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	s.dec.Close()
	_ = s.enc.Close()
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Collection operations

const collectionColumns = `id, name, root_path, total_files, total_chunks, fingerprint,
	embedding_provider, embedding_model, dimension, last_indexed_at, created_at, updated_at`

func scanCollection(r rowScanner) (*Collection, error) {
	var c Collection
	var lastIndexedAt sql.NullTime
	err := r.Scan(&c.ID, &c.Name, &c.RootPath, &c.TotalFiles, &c.TotalChunks, &c.Fingerprint,
		&c.EmbeddingProvider, &c.EmbeddingModel, &c.Dimension, &lastIndexedAt,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastIndexedAt.Valid {
		c.LastIndexedAt = lastIndexedAt.Time
	}
	return &c, nil
}

func (s *SQLiteStorage) createCollectionWithQuerier(ctx context.Context, q querier, c *Collection) error {
	now := time.Now()
	err := q.QueryRowContext(ctx, `
		INSERT INTO collections (name, root_path, embedding_provider, embedding_model, dimension, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
		RETURNING id
	`, c.Name, c.RootPath, c.EmbeddingProvider, c.EmbeddingModel, c.Dimension, now, now).Scan(&c.ID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("collection %q: %w", c.Name, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) CreateCollection(ctx context.Context, c *Collection) error {
	return s.createCollectionWithQuerier(ctx, s.querier(), c)
}

func (s *SQLiteStorage) getCollectionWithQuerier(ctx context.Context, q querier, name string) (*Collection, error) {
	c, err := scanCollection(q.QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE name = ?`, name))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

func (s *SQLiteStorage) GetCollection(ctx context.Context, name string) (*Collection, error) {
	return s.getCollectionWithQuerier(ctx, s.querier(), name)
}

func (s *SQLiteStorage) getCollectionByID(ctx context.Context, q querier, id int64) (*Collection, error) {
	c, err := scanCollection(q.QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

func (s *SQLiteStorage) updateCollectionWithQuerier(ctx context.Context, q querier, c *Collection) error {
	now := time.Now()
	var lastIndexed interface{}
	if !c.LastIndexedAt.IsZero() {
		lastIndexed = c.LastIndexedAt
	}
	_, err := q.ExecContext(ctx, `
		UPDATE collections
		SET root_path = ?, total_files = ?, total_chunks = ?, fingerprint = ?,
		    embedding_provider = ?, embedding_model = ?, dimension = ?,
		    last_indexed_at = ?, updated_at = ?
		WHERE id = ?
	`, c.RootPath, c.TotalFiles, c.TotalChunks, c.Fingerprint,
		c.EmbeddingProvider, c.EmbeddingModel, c.Dimension,
		lastIndexed, now, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update collection: %w", err)
	}
	c.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpdateCollection(ctx context.Context, c *Collection) error {
	return s.updateCollectionWithQuerier(ctx, s.querier(), c)
}

func (s *SQLiteStorage) listCollectionsWithQuerier(ctx context.Context, q querier) ([]*Collection, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+collectionColumns+` FROM collections ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	collections := make([]*Collection, 0)
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		collections = append(collections, c)
	}
	return collections, rows.Err()
}

func (s *SQLiteStorage) ListCollections(ctx context.Context) ([]*Collection, error) {
	return s.listCollectionsWithQuerier(ctx, s.querier())
}

func (s *SQLiteStorage) deleteCollectionWithQuerier(ctx context.Context, q querier, id int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id)
	return err
}

func (s *SQLiteStorage) DeleteCollection(ctx context.Context, id int64) error {
	return s.deleteCollectionWithQuerier(ctx, s.querier(), id)
}

// File operations

const fileColumns = `id, collection_id, file_path, language, content_hash, size_bytes,
	line_count, parse_error, last_indexed_at, created_at, updated_at`

func scanFile(r rowScanner) (*File, error) {
	var f File
	var hash []byte
	var parseError sql.NullString
	var lastIndexedAt sql.NullTime
	err := r.Scan(&f.ID, &f.CollectionID, &f.FilePath, &f.Language, &hash, &f.SizeBytes,
		&f.LineCount, &parseError, &lastIndexedAt, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	copy(f.ContentHash[:], hash)
	if parseError.Valid {
		f.ParseError = &parseError.String
	}
	if lastIndexedAt.Valid {
		f.LastIndexedAt = lastIndexedAt.Time
	}
	return &f, nil
}

func (s *SQLiteStorage) upsertFileWithQuerier(ctx context.Context, q querier, file *File) error {
	now := time.Now()
	err := q.QueryRowContext(ctx, `
		INSERT INTO files (collection_id, file_path, language, content_hash, size_bytes, line_count, parse_error, last_indexed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection_id, file_path) DO UPDATE SET
			language = excluded.language,
			content_hash = excluded.content_hash,
			size_bytes = excluded.size_bytes,
			line_count = excluded.line_count,
			parse_error = excluded.parse_error,
			last_indexed_at = excluded.last_indexed_at,
			updated_at = excluded.updated_at
		RETURNING id
	`, file.CollectionID, file.FilePath, file.Language, file.ContentHash[:], file.SizeBytes,
		file.LineCount, file.ParseError, now, now, now).Scan(&file.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert file: %w", err)
	}
	file.LastIndexedAt = now
	file.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertFile(ctx context.Context, file *File) error {
	return s.upsertFileWithQuerier(ctx, s.querier(), file)
}

func (s *SQLiteStorage) getFileWithQuerier(ctx context.Context, q querier, collectionID int64, filePath string) (*File, error) {
	f, err := scanFile(q.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE collection_id = ? AND file_path = ?`, collectionID, filePath))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return f, err
}

func (s *SQLiteStorage) GetFile(ctx context.Context, collectionID int64, filePath string) (*File, error) {
	return s.getFileWithQuerier(ctx, s.querier(), collectionID, filePath)
}

func (s *SQLiteStorage) getFileByIDWithQuerier(ctx context.Context, q querier, fileID int64) (*File, error) {
	f, err := scanFile(q.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, fileID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return f, err
}

func (s *SQLiteStorage) GetFileByID(ctx context.Context, fileID int64) (*File, error) {
	return s.getFileByIDWithQuerier(ctx, s.querier(), fileID)
}

func (s *SQLiteStorage) deleteFileWithQuerier(ctx context.Context, q querier, fileID int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID)
	return err
}

func (s *SQLiteStorage) DeleteFile(ctx context.Context, fileID int64) error {
	return s.deleteFileWithQuerier(ctx, s.querier(), fileID)
}

func (s *SQLiteStorage) listFilesWithQuerier(ctx context.Context, q querier, collectionID int64) ([]*File, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE collection_id = ? ORDER BY file_path`, collectionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	files := make([]*File, 0)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *SQLiteStorage) ListFiles(ctx context.Context, collectionID int64) ([]*File, error) {
	return s.listFilesWithQuerier(ctx, s.querier(), collectionID)
}

// Chunk operations

const chunkColumns = `id, file_id, name, parent, signature, doc_line, content, content_hash,
	token_count, start_line, end_line, context_before, chunk_type, language, terms,
	created_at, updated_at`

func scanChunk(r rowScanner) (*Chunk, error) {
	var c Chunk
	var hash []byte
	err := r.Scan(&c.ID, &c.FileID, &c.Name, &c.Parent, &c.Signature, &c.DocLine, &c.Content, &hash,
		&c.TokenCount, &c.StartLine, &c.EndLine, &c.ContextBefore, &c.ChunkType, &c.Language, &c.Terms,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	copy(c.ContentHash[:], hash)
	return &c, nil
}

func (s *SQLiteStorage) upsertChunkWithQuerier(ctx context.Context, q querier, chunk *Chunk) error {
	now := time.Now()
	err := q.QueryRowContext(ctx, `
		INSERT INTO chunks (file_id, name, parent, signature, doc_line, content, content_hash, token_count,
		                    start_line, end_line, context_before, chunk_type, language, terms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_id, start_line, end_line, name) DO UPDATE SET
			parent = excluded.parent,
			signature = excluded.signature,
			doc_line = excluded.doc_line,
			content = excluded.content,
			content_hash = excluded.content_hash,
			token_count = excluded.token_count,
			context_before = excluded.context_before,
			chunk_type = excluded.chunk_type,
			language = excluded.language,
			terms = excluded.terms,
			updated_at = excluded.updated_at
		RETURNING id
	`, chunk.FileID, chunk.Name, chunk.Parent, chunk.Signature, chunk.DocLine, chunk.Content,
		chunk.ContentHash[:], chunk.TokenCount, chunk.StartLine, chunk.EndLine, chunk.ContextBefore,
		chunk.ChunkType, chunk.Language, chunk.Terms, now, now).Scan(&chunk.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert chunk: %w", err)
	}
	chunk.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertChunk(ctx context.Context, chunk *Chunk) error {
	return s.upsertChunkWithQuerier(ctx, s.querier(), chunk)
}

func (s *SQLiteStorage) getChunkWithQuerier(ctx context.Context, q querier, chunkID int64) (*Chunk, error) {
	c, err := scanChunk(q.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, chunkID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

func (s *SQLiteStorage) GetChunk(ctx context.Context, chunkID int64) (*Chunk, error) {
	return s.getChunkWithQuerier(ctx, s.querier(), chunkID)
}

func (s *SQLiteStorage) listChunksByFileWithQuerier(ctx context.Context, q querier, fileID int64) ([]*Chunk, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE file_id = ? ORDER BY start_line, end_line DESC`, fileID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]*Chunk, 0)
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStorage) ListChunksByFile(ctx context.Context, fileID int64) ([]*Chunk, error) {
	return s.listChunksByFileWithQuerier(ctx, s.querier(), fileID)
}

func (s *SQLiteStorage) deleteChunksByFileWithQuerier(ctx context.Context, q querier, fileID int64) (int, error) {
	result, err := q.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLiteStorage) DeleteChunksByFile(ctx context.Context, fileID int64) (int, error) {
	return s.deleteChunksByFileWithQuerier(ctx, s.querier(), fileID)
}

func (s *SQLiteStorage) countChunksByTypeWithQuerier(ctx context.Context, q querier, collectionID int64) (map[string]int, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT c.chunk_type, COUNT(*)
		FROM chunks c
		JOIN files f ON c.file_id = f.id
		WHERE f.collection_id = ?
		GROUP BY c.chunk_type
	`, collectionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		counts[typ] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteStorage) CountChunksByType(ctx context.Context, collectionID int64) (map[string]int, error) {
	return s.countChunksByTypeWithQuerier(ctx, s.querier(), collectionID)
}

// Embedding operations

func (s *SQLiteStorage) upsertEmbeddingWithQuerier(ctx context.Context, q querier, embedding *Embedding) error {
	now := time.Now()
	err := q.QueryRowContext(ctx, `
		INSERT INTO embeddings (chunk_id, vector, dimension, provider, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			provider = excluded.provider,
			model = excluded.model
		RETURNING id
	`, embedding.ChunkID, embedding.Vector, embedding.Dimension,
		embedding.Provider, embedding.Model, now).Scan(&embedding.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	embedding.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return s.upsertEmbeddingWithQuerier(ctx, s.querier(), embedding)
}

func (s *SQLiteStorage) getEmbeddingWithQuerier(ctx context.Context, q querier, chunkID int64) (*Embedding, error) {
	var e Embedding
	err := q.QueryRowContext(ctx, `
		SELECT id, chunk_id, vector, dimension, provider, model, created_at
		FROM embeddings WHERE chunk_id = ?
	`, chunkID).Scan(&e.ID, &e.ChunkID, &e.Vector, &e.Dimension, &e.Provider, &e.Model, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *SQLiteStorage) GetEmbedding(ctx context.Context, chunkID int64) (*Embedding, error) {
	return s.getEmbeddingWithQuerier(ctx, s.querier(), chunkID)
}

// Search operations

func (s *SQLiteStorage) SearchVector(ctx context.Context, collectionID int64, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	return searchVector(ctx, s.querier(), collectionID, queryVector, limit, filters)
}

func (s *SQLiteStorage) SearchText(ctx context.Context, collectionID int64, terms []string, limit int, filters *SearchFilters) ([]TextResult, error) {
	return searchText(ctx, s.querier(), collectionID, terms, limit, filters)
}

// Report operations

func (s *SQLiteStorage) saveReportWithQuerier(ctx context.Context, q querier, r *Report) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	compressed := s.enc.EncodeAll(r.Payload, nil)
	_, err := q.ExecContext(ctx, `
		INSERT INTO reports (id, source, quality_score, total_issues, files_analyzed, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Source, r.QualityScore, r.TotalIssues, r.FilesAnalyzed, compressed, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) SaveReport(ctx context.Context, r *Report) error {
	return s.saveReportWithQuerier(ctx, s.querier(), r)
}

func (s *SQLiteStorage) getReportWithQuerier(ctx context.Context, q querier, id string) (*Report, error) {
	var r Report
	var blob []byte
	err := q.QueryRowContext(ctx, `
		SELECT id, source, quality_score, total_issues, files_analyzed, payload, created_at
		FROM reports WHERE id = ?
	`, id).Scan(&r.ID, &r.Source, &r.QualityScore, &r.TotalIssues, &r.FilesAnalyzed, &blob, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Payload, err = s.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress report %s: %w", id, err)
	}
	return &r, nil
}

func (s *SQLiteStorage) GetReport(ctx context.Context, id string) (*Report, error) {
	return s.getReportWithQuerier(ctx, s.querier(), id)
}

func (s *SQLiteStorage) listReportsWithQuerier(ctx context.Context, q querier, limit int) ([]*Report, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.QueryContext(ctx, `
		SELECT id, source, quality_score, total_issues, files_analyzed, created_at
		FROM reports ORDER BY created_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	reports := make([]*Report, 0)
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ID, &r.Source, &r.QualityScore, &r.TotalIssues, &r.FilesAnalyzed, &r.CreatedAt); err != nil {
			return nil, err
		}
		reports = append(reports, &r)
	}
	return reports, rows.Err()
}

// ListReports returns report headers, newest first, without payloads.
func (s *SQLiteStorage) ListReports(ctx context.Context, limit int) ([]*Report, error) {
	return s.listReportsWithQuerier(ctx, s.querier(), limit)
}

// Status operations

func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier, collectionID int64) (*CollectionStatus, error) {
	collection, err := s.getCollectionByID(ctx, q, collectionID)
	if err != nil {
		return nil, err
	}

	status := &CollectionStatus{
		Collection:    collection,
		LastIndexedAt: collection.LastIndexedAt,
	}

	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM files WHERE collection_id = ?`, collectionID).Scan(&status.FilesCount); err != nil {
		return nil, err
	}

	status.TypeCounts, err = s.countChunksByTypeWithQuerier(ctx, q, collectionID)
	if err != nil {
		return nil, err
	}
	for _, n := range status.TypeCounts {
		status.ChunksCount += n
	}

	if err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM embeddings e
		JOIN chunks c ON e.chunk_id = c.id
		JOIN files f ON c.file_id = f.id
		WHERE f.collection_id = ?
	`, collectionID).Scan(&status.EmbeddingsCount); err != nil {
		return nil, err
	}

	var pageCount, pageSize int
	if err := q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.EmbeddingsCount > 0,
		FTSIndexesBuilt:     true,
	}
	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context, collectionID int64) (*CollectionStatus, error) {
	return s.getStatusWithQuerier(ctx, s.querier(), collectionID)
}

// sqliteTx runs every operation on its transaction. Operations must not
// reach for the storage's *sql.DB: with a single connection that would
// block behind the transaction itself.
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTx) querier() querier {
	return t.tx
}

func (t *sqliteTx) CreateCollection(ctx context.Context, c *Collection) error {
	return t.storage.createCollectionWithQuerier(ctx, t.querier(), c)
}

func (t *sqliteTx) GetCollection(ctx context.Context, name string) (*Collection, error) {
	return t.storage.getCollectionWithQuerier(ctx, t.querier(), name)
}

func (t *sqliteTx) UpdateCollection(ctx context.Context, c *Collection) error {
	return t.storage.updateCollectionWithQuerier(ctx, t.querier(), c)
}

func (t *sqliteTx) ListCollections(ctx context.Context) ([]*Collection, error) {
	return t.storage.listCollectionsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) DeleteCollection(ctx context.Context, id int64) error {
	return t.storage.deleteCollectionWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) UpsertFile(ctx context.Context, file *File) error {
	return t.storage.upsertFileWithQuerier(ctx, t.querier(), file)
}

func (t *sqliteTx) GetFile(ctx context.Context, collectionID int64, filePath string) (*File, error) {
	return t.storage.getFileWithQuerier(ctx, t.querier(), collectionID, filePath)
}

func (t *sqliteTx) GetFileByID(ctx context.Context, fileID int64) (*File, error) {
	return t.storage.getFileByIDWithQuerier(ctx, t.querier(), fileID)
}

func (t *sqliteTx) DeleteFile(ctx context.Context, fileID int64) error {
	return t.storage.deleteFileWithQuerier(ctx, t.querier(), fileID)
}

func (t *sqliteTx) ListFiles(ctx context.Context, collectionID int64) ([]*File, error) {
	return t.storage.listFilesWithQuerier(ctx, t.querier(), collectionID)
}

func (t *sqliteTx) UpsertChunk(ctx context.Context, chunk *Chunk) error {
	return t.storage.upsertChunkWithQuerier(ctx, t.querier(), chunk)
}

func (t *sqliteTx) GetChunk(ctx context.Context, chunkID int64) (*Chunk, error) {
	return t.storage.getChunkWithQuerier(ctx, t.querier(), chunkID)
}

func (t *sqliteTx) ListChunksByFile(ctx context.Context, fileID int64) ([]*Chunk, error) {
	return t.storage.listChunksByFileWithQuerier(ctx, t.querier(), fileID)
}

func (t *sqliteTx) DeleteChunksByFile(ctx context.Context, fileID int64) (int, error) {
	return t.storage.deleteChunksByFileWithQuerier(ctx, t.querier(), fileID)
}

func (t *sqliteTx) CountChunksByType(ctx context.Context, collectionID int64) (map[string]int, error) {
	return t.storage.countChunksByTypeWithQuerier(ctx, t.querier(), collectionID)
}

func (t *sqliteTx) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return t.storage.upsertEmbeddingWithQuerier(ctx, t.querier(), embedding)
}

func (t *sqliteTx) GetEmbedding(ctx context.Context, chunkID int64) (*Embedding, error) {
	return t.storage.getEmbeddingWithQuerier(ctx, t.querier(), chunkID)
}

func (t *sqliteTx) SearchVector(ctx context.Context, collectionID int64, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	return searchVector(ctx, t.querier(), collectionID, queryVector, limit, filters)
}

func (t *sqliteTx) SearchText(ctx context.Context, collectionID int64, terms []string, limit int, filters *SearchFilters) ([]TextResult, error) {
	return searchText(ctx, t.querier(), collectionID, terms, limit, filters)
}

func (t *sqliteTx) SaveReport(ctx context.Context, r *Report) error {
	return t.storage.saveReportWithQuerier(ctx, t.querier(), r)
}

func (t *sqliteTx) GetReport(ctx context.Context, id string) (*Report, error) {
	return t.storage.getReportWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) ListReports(ctx context.Context, limit int) ([]*Report, error) {
	return t.storage.listReportsWithQuerier(ctx, t.querier(), limit)
}

func (t *sqliteTx) GetStatus(ctx context.Context, collectionID int64) (*CollectionStatus, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier(), collectionID)
}

// Close rolls back the transaction if it is still open.
func (t *sqliteTx) Close() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, ErrNestedTx
}
