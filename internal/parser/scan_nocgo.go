//go:build !cgo

package parser

import (
	"context"

	"github.com/dshills/codeaudit/pkg/types"
)

// TreeSitterAvailable reports whether Python and JavaScript/TypeScript are
// parsed with tree-sitter grammars.
const TreeSitterAvailable = false

func parseSource(_ context.Context, filePath string, src []byte, lang types.Language) (*types.ParseResult, error) {
	return scanSymbols(filePath, src, lang), nil
}

func sourceFunctions(_ context.Context, _ string, src []byte, lang types.Language) ([]Function, error) {
	return scanFunctions(src, lang), nil
}
