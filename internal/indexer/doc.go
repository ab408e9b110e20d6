// Package indexer builds and maintains semantic collections of source code.
//
// A collection is a named index over one source tree: every function, class
// and method becomes a chunk with an embedding vector and a set of search
// terms, stored through the storage package.
//
// # Basic Usage
//
//	idx := indexer.New(store, emb, logger)
//
//	stats, err := idx.Index(ctx, "/path/to/repo", "my-repo", &indexer.Config{
//	    BatchSize:    32,
//	    IncludeTests: true,
//	})
//
//	fmt.Printf("%d chunks, %d functions\n", stats.TotalChunks, stats.TypeCounts["function"])
//
// # Indexing Pipeline
//
//  1. Discovery: the catalog lists source files, honoring .gitignore
//  2. Incremental decision: files whose SHA-256 matches the stored hash are skipped
//  3. Parse, chunk and embed: done by a bounded set of workers, holding no locks
//  4. Store: one short transaction per file replaces its chunks and vectors
//  5. Cleanup: files that vanished from disk are removed
//  6. Stats: counts and the content fingerprint are recomputed
//
// The stored hash is read again inside the write transaction, so two runs
// racing on the same file converge on the last writer's content.
//
// # Embedder Changes
//
// A collection records the provider, model and dimension of its vectors.
// Indexing with a different embedder re-embeds every file rather than
// mixing vector spaces.
//
// # Concurrency
//
// Only one run per collection may be active; a second receives a Busy
// error. Runs on different collections proceed independently.
//
// # Fingerprints
//
// The collection fingerprint digests every file path and content hash.
// Question answering keys its response cache on it, so cached answers
// expire as soon as the collection changes.
package indexer
