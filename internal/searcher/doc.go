// Package searcher ranks the chunks of an indexed collection against a
// free-text query.
//
// Three modes are supported:
//
//   - keyword: BM25 over the chunk name, content and split identifier terms
//   - semantic: cosine similarity between the query embedding and chunk vectors
//   - hybrid: both, fused with Reciprocal Rank Fusion
//
// # Reciprocal Rank Fusion
//
// Hybrid search runs both searches concurrently, each over twice the
// requested limit, and scores every chunk as
//
//	RRF(d) = Σ 1/(k + rank(d))
//
// with k = 60 by default. Chunks found by both searches rise to the top.
// If one search fails the other's ranking is used alone; only when both
// fail is an error returned.
//
// # Errors
//
// A collection that was never indexed yields CollectionNotFound. Storage
// failures yield IndexStoreUnavailable, and an embedder timeout yields
// ModelTimeout.
package searcher
