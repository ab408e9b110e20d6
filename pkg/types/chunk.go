package types

import (
	"crypto/sha256"
	"errors"
	"strings"
)

// ChunkType represents the type of code chunk
type ChunkType string

const (
	ChunkFunction ChunkType = "function"
	ChunkClass    ChunkType = "class"
	ChunkMethod   ChunkType = "method"
	ChunkModule   ChunkType = "module"
)

// ChunkTypes lists every valid chunk type in reporting order.
var ChunkTypes = []ChunkType{ChunkFunction, ChunkClass, ChunkMethod, ChunkModule}

// Chunk represents a named unit of source stored in a collection for semantic retrieval
type Chunk struct {
	// Identification
	ID     int64
	FileID int64

	// Symbol
	Name      string
	Parent    string // Enclosing class or receiver type, empty for top-level units
	Signature string
	DocLine   string // First line of the unit's documentation

	// Content
	Content       string
	ContentHash   [32]byte // SHA-256 hash for deduplication
	TokenCount    int
	ContextBefore string // Module header: package clause and imports

	// Location
	FilePath  string
	StartLine int
	EndLine   int

	// Metadata
	Language  Language
	ChunkType ChunkType
}

// ValidateContent checks if the chunk content is valid
func (c *Chunk) ValidateContent() error {
	if strings.TrimSpace(c.Content) == "" {
		return errors.New("chunk content cannot be empty")
	}

	if c.StartLine <= 0 || c.EndLine <= 0 {
		return errors.New("line numbers must be positive")
	}

	if c.StartLine > c.EndLine {
		return errors.New("start line must be before or equal to end line")
	}

	return nil
}

// ComputeTokenCount estimates the number of tokens in the chunk
// Uses a simple heuristic: characters / 4
func (c *Chunk) ComputeTokenCount() int {
	totalChars := len(c.Content) + len(c.ContextBefore)
	c.TokenCount = totalChars / 4
	return c.TokenCount
}

// ComputeContentHash computes the SHA-256 hash of the chunk content
func (c *Chunk) ComputeContentHash() {
	c.ContentHash = sha256.Sum256([]byte(c.Content))
}

// ValidateChunkType checks if the chunk type is valid
func (c *Chunk) ValidateChunkType() error {
	switch c.ChunkType {
	case ChunkFunction, ChunkClass, ChunkMethod, ChunkModule:
		return nil
	default:
		return errors.New("invalid chunk type")
	}
}

// Validate performs comprehensive validation of the chunk
func (c *Chunk) Validate() error {
	if err := c.ValidateContent(); err != nil {
		return err
	}

	if err := c.ValidateChunkType(); err != nil {
		return err
	}

	if c.FileID == 0 {
		return errors.New("file ID is required")
	}

	var zeroHash [32]byte
	if c.ContentHash == zeroHash {
		return errors.New("content hash must be computed")
	}

	return nil
}

// WithinBounds reports whether the chunk's line range fits a file of lineCount lines.
func (c *Chunk) WithinBounds(lineCount int) bool {
	return c.StartLine >= 1 && c.EndLine >= c.StartLine && c.EndLine <= lineCount
}

// Describe renders the chunk as a short natural-language sentence, used as
// additional embedding text so questions phrased in prose match code units.
func (c *Chunk) Describe() string {
	var b strings.Builder
	b.WriteString(string(c.ChunkType))
	if c.Name != "" {
		b.WriteString(" ")
		b.WriteString(c.Name)
	}
	b.WriteString(".")
	if c.DocLine != "" {
		b.WriteString(" ")
		b.WriteString(c.DocLine)
		if !strings.HasSuffix(c.DocLine, ".") {
			b.WriteString(".")
		}
	}
	if c.Parent != "" {
		b.WriteString(" in ")
		b.WriteString(c.Parent)
		b.WriteString(".")
	}
	if c.FilePath != "" {
		b.WriteString(" from ")
		b.WriteString(c.FilePath)
	}
	return b.String()
}

// FullContent returns the complete content including context
func (c *Chunk) FullContent() string {
	if c.ContextBefore == "" {
		return c.Content
	}
	return c.ContextBefore + "\n\n" + c.Content
}
