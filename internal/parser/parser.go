package parser

import (
	"context"
	"errors"
	"fmt"
	"go/token"
	"os"
	"strings"

	"github.com/dshills/codeaudit/pkg/types"
)

// ErrUnsupportedLanguage is returned for files no parser backend understands
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Parser extracts symbols and imports from Go, Python, JavaScript and
// TypeScript sources. Go is parsed with go/ast; the other languages use
// tree-sitter when built with cgo and a line scanner otherwise.
type Parser struct {
	fset *token.FileSet
}

// New creates a new Parser instance
func New() *Parser {
	return &Parser{
		fset: token.NewFileSet(),
	}
}

// Supports reports whether the parser can extract symbols for the language
func Supports(lang types.Language) bool {
	switch lang {
	case types.LangGo, types.LangPython, types.LangJavaScript, types.LangTypeScript:
		return true
	default:
		return false
	}
}

// ParseFile reads and parses a source file
func (p *Parser) ParseFile(filePath string) (*types.ParseResult, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return p.Parse(context.Background(), filePath, content)
}

// Parse extracts symbols from src. The language is derived from filePath.
// Syntax errors are recorded on the result rather than returned, and
// whatever symbols could be recovered are kept.
func (p *Parser) Parse(ctx context.Context, filePath string, src []byte) (*types.ParseResult, error) {
	lang := types.DetectLanguage(filePath)
	if !Supports(lang) {
		return nil, fmt.Errorf("%s: %w", filePath, ErrUnsupportedLanguage)
	}

	var (
		result *types.ParseResult
		err    error
	)
	if lang == types.LangGo {
		result = p.parseGo(filePath, src)
	} else {
		result, err = parseSource(ctx, filePath, src, lang)
		if err != nil {
			return nil, err
		}
	}

	result.Language = lang
	for i := range result.Symbols {
		result.Symbols[i].Language = lang
	}
	return result, nil
}

// Functions returns per-function complexity metrics for src.
func (p *Parser) Functions(ctx context.Context, filePath string, src []byte) ([]Function, error) {
	lang := types.DetectLanguage(filePath)
	switch {
	case lang == types.LangGo:
		return p.goFunctions(filePath, src), nil
	case Supports(lang):
		return sourceFunctions(ctx, filePath, src, lang)
	default:
		return nil, fmt.Errorf("%s: %w", filePath, ErrUnsupportedLanguage)
	}
}

// Function holds complexity metrics for one function or method
type Function struct {
	Name       string
	Parent     string
	Kind       types.SymbolKind
	StartLine  int
	EndLine    int
	Cyclomatic int // decision points + 1
	Cognitive  int // decision points weighted by nesting depth
	MaxNesting int
}

// Lines returns the number of source lines the function spans
func (f Function) Lines() int {
	return f.EndLine - f.StartLine + 1
}

// QualifiedName joins the parent and function name
func (f Function) QualifiedName() string {
	if f.Parent == "" {
		return f.Name
	}
	return f.Parent + "." + f.Name
}

// splitLines splits source into lines without trailing carriage returns
func splitLines(src []byte) []string {
	lines := strings.Split(string(src), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}
