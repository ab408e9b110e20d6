//go:build purego || !sqlite_vec

package storage

// Default build: pure Go SQLite (FTS5 included), with cosine similarity
// computed in Go over candidate vectors.

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// VectorExtensionAvailable indicates if vector extension is available
	VectorExtensionAvailable = false

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
