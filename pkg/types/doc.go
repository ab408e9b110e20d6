// Package types provides shared type definitions for codeaudit.
//
// The types here are passed between the catalog, analyzers, aggregator,
// indexer, and retrieval layers:
//
//   - File is a cataloged source file with a language tag and role hint.
//   - Issue is a single analyzer finding; Report groups the issues of one
//     analysis session with its summary.
//   - Symbol and ParseResult come out of the language parsers; Chunk is the
//     unit stored in a semantic collection.
//   - SearchResult and ChatExchange are returned by the retrieval layer.
//
// Values of these types are treated as immutable once emitted. Components
// that need to change an Issue, such as the aggregator when merging
// duplicates, build a new value instead.
package types
