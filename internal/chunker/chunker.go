package chunker

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/codeaudit/pkg/types"
)

const (
	// MaxContextImports caps the import lines carried in a chunk's header
	MaxContextImports = 20

	// TokensPerChar is the heuristic for estimating tokens (chars/4)
	TokensPerChar = 4
)

// Chunker creates retrieval units from parsed source files
type Chunker struct{}

// New creates a new Chunker instance
func New() *Chunker {
	return &Chunker{}
}

// ChunkFile reads filePath and chunks it with its parse results
func (c *Chunker) ChunkFile(filePath string, parseResult *types.ParseResult, fileID int64) ([]*types.Chunk, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return c.Chunk(filePath, content, parseResult, fileID), nil
}

// Chunk creates one chunk per function, class and method in parseResult.
// A file with no symbols yields a single module chunk. Every chunk's line
// range is clamped to the file.
func (c *Chunker) Chunk(filePath string, src []byte, parseResult *types.ParseResult, fileID int64) []*types.Chunk {
	lines := strings.Split(string(src), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return nil
	}

	contextBefore := c.buildModuleContext(parseResult)
	firstMember := firstMemberLines(parseResult.Symbols)

	chunks := make([]*types.Chunk, 0, len(parseResult.Symbols))
	for i := range parseResult.Symbols {
		sym := &parseResult.Symbols[i]
		end := sym.End.Line
		// A class chunk carries its header and docs; members get their own chunks
		if sym.Kind == types.KindClass {
			if first, ok := firstMember[sym.Name]; ok && first > sym.Start.Line && first <= end {
				end = first - 1
			}
		}

		chunk := c.createChunk(lines, sym.Start.Line, end, fileID)
		if chunk == nil {
			continue
		}
		chunk.Name = sym.Name
		chunk.Parent = sym.Parent
		chunk.Signature = sym.Signature
		chunk.DocLine = firstLine(sym.DocComment)
		chunk.ContextBefore = contextBefore
		chunk.ChunkType = sym.ChunkType()
		chunk.FilePath = filePath
		chunk.Language = parseResult.Language
		chunk.ComputeTokenCount()
		chunks = append(chunks, chunk)
	}

	if len(chunks) == 0 {
		chunk := c.createChunk(lines, 1, len(lines), fileID)
		if chunk == nil {
			return nil
		}
		name := parseResult.Module
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
		}
		chunk.Name = name
		chunk.Signature = "module " + name
		chunk.ChunkType = types.ChunkModule
		chunk.FilePath = filePath
		chunk.Language = parseResult.Language
		chunk.ComputeTokenCount()
		chunks = append(chunks, chunk)
	}

	return chunks
}

// createChunk extracts lines [start, end] clamped to the file. Blank
// ranges produce no chunk.
func (c *Chunker) createChunk(lines []string, start, end int, fileID int64) *types.Chunk {
	if start <= 0 || start > len(lines) {
		return nil
	}
	if end > len(lines) {
		end = len(lines)
	}
	if end < start {
		end = start
	}

	content := strings.Join(lines[start-1:end], "\n")
	if strings.TrimSpace(content) == "" {
		return nil
	}

	chunk := &types.Chunk{
		FileID:    fileID,
		Content:   content,
		StartLine: start,
		EndLine:   end,
	}
	chunk.ComputeContentHash()
	return chunk
}

// buildModuleContext renders the module header in the file's own syntax
func (c *Chunker) buildModuleContext(parseResult *types.ParseResult) string {
	var b strings.Builder

	imports := parseResult.Imports
	if len(imports) > MaxContextImports {
		imports = imports[:MaxContextImports]
	}

	switch parseResult.Language {
	case types.LangGo:
		if parseResult.Module != "" {
			fmt.Fprintf(&b, "package %s\n", parseResult.Module)
		}
		if len(imports) > 0 {
			b.WriteString("\nimport (\n")
			for _, imp := range imports {
				if imp.Alias != "" {
					fmt.Fprintf(&b, "\t%s %q\n", imp.Alias, imp.Path)
				} else {
					fmt.Fprintf(&b, "\t%q\n", imp.Path)
				}
			}
			b.WriteString(")\n")
		}
	case types.LangPython:
		for _, imp := range imports {
			if imp.Alias != "" {
				fmt.Fprintf(&b, "import %s as %s\n", imp.Path, imp.Alias)
			} else {
				fmt.Fprintf(&b, "import %s\n", imp.Path)
			}
		}
	default:
		for _, imp := range imports {
			fmt.Fprintf(&b, "import '%s';\n", imp.Path)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// firstMemberLines maps each class to the start line of its first method
func firstMemberLines(symbols []types.Symbol) map[string]int {
	first := make(map[string]int)
	for _, s := range symbols {
		if s.Kind != types.KindMethod || s.Parent == "" {
			continue
		}
		if cur, ok := first[s.Parent]; !ok || s.Start.Line < cur {
			first[s.Parent] = s.Start.Line
		}
	}
	return first
}

func firstLine(s string) string {
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	return ""
}

// ComputeChunkHash computes the SHA-256 hash for a chunk's content
func ComputeChunkHash(content string) [32]byte {
	return sha256.Sum256([]byte(content))
}

// EstimateTokenCount estimates the number of tokens in a string
func EstimateTokenCount(text string) int {
	return len(text) / TokensPerChar
}
