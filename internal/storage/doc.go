// Package storage provides SQLite-based persistence for semantic
// collections and analysis reports.
//
// # Database Schema
//
// Tables:
//   - collections: one named index per source tree, with its fingerprint
//   - files: tracked files and SHA-256 content hashes
//   - chunks: code units (function, class, method, module)
//   - embeddings: vector embeddings for chunks
//   - chunks_fts: FTS5 index over chunk names, content and search terms
//   - reports: persisted analysis reports, zstd-compressed
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.codeaudit/codeaudit.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	c := &storage.Collection{Name: "backend", RootPath: "/src/backend"}
//	if err := db.CreateCollection(ctx, c); err != nil {
//	    return err
//	}
//
// # Transactions
//
// Writes for one file happen in one transaction:
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	_ = tx.UpsertFile(ctx, file)
//	_, _ = tx.DeleteChunksByFile(ctx, file.ID)
//	_ = tx.UpsertChunk(ctx, chunk)
//	_ = tx.UpsertEmbedding(ctx, embedding)
//
//	return tx.Commit()
//
// The database is opened with a single connection. Inside a transaction
// use only the Tx; calling the parent Storage blocks until the
// transaction ends.
//
// # Search
//
// SearchVector ranks chunks by cosine similarity. SearchText runs a BM25
// query over the FTS5 index; terms are quoted and prefix-matched so user
// input never reaches the FTS5 query grammar.
//
// # Build Tags
//
// The default build uses modernc.org/sqlite and computes similarity in
// Go. Building with the sqlite_vec tag switches to
// github.com/mattn/go-sqlite3 and vec_distance_cosine:
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec,fts5" ./...
package storage
