package types

import "errors"

// Domain errors for type validation
var (
	// Search result errors
	ErrInvalidChunkID        = errors.New("invalid chunk ID")
	ErrInvalidRank           = errors.New("rank must be >= 1")
	ErrInvalidRelevanceScore = errors.New("relevance score must be between 0 and 1")
	ErrMissingFileInfo       = errors.New("file info is required")
	ErrEmptyContent          = errors.New("content cannot be empty")

	// Issue errors
	ErrMissingTitle    = errors.New("issue title is required")
	ErrInvalidSeverity = errors.New("invalid issue severity")
	ErrInvalidCategory = errors.New("invalid issue category")
	ErrMissingFilePath = errors.New("issue file path is required")
	ErrInvalidLine     = errors.New("line numbers must be positive")
)
