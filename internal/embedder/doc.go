// Package embedder turns code chunks and questions into vectors.
//
// Three providers implement Embedder:
//
//   - local: offline signed feature hashing over identifier-aware terms.
//     Deterministic and dependency free; texts sharing vocabulary score high.
//   - jina and openai: hosted APIs with the same request shape, called with
//     exponential backoff on transport failures, 429 and 5xx responses.
//
// Provider selection for NewFromEnv:
//
//  1. CODEAUDIT_EMBEDDING_PROVIDER, when set
//  2. JINA_API_KEY present: jina
//  3. OPENAI_API_KEY present: openai
//  4. otherwise local
//
// Batching:
//
//	vectors, err := embedder.EmbedAll(ctx, emb, texts, 100)
//
// EmbedAll preserves input order and never sends more than MaxBatchSize
// texts per request.
//
// Results are cached in an LRU keyed by the SHA-256 of the text; cached
// vectors are copied on the way in and out. A hosted call that runs out of
// time returns an error of kind ModelTimeout.
package embedder
