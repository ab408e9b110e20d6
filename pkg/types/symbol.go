package types

import (
	"errors"
	"strings"
	"unicode"
)

// SymbolKind represents the type of named source unit
type SymbolKind string

const (
	KindFunction SymbolKind = "function"
	KindMethod   SymbolKind = "method"
	KindClass    SymbolKind = "class"
)

// Position represents a location in source code
type Position struct {
	Line   int
	Column int
}

// Symbol represents a named source unit extracted by a language parser
type Symbol struct {
	// Identification
	Name     string
	Kind     SymbolKind
	Language Language

	// Content
	Signature  string
	DocComment string

	// Parent is the enclosing class, or the receiver type for Go methods
	Parent string

	// Location
	Start Position
	End   Position
}

// ChunkType maps the symbol kind onto the chunk taxonomy.
func (s *Symbol) ChunkType() ChunkType {
	switch s.Kind {
	case KindMethod:
		return ChunkMethod
	case KindClass:
		return ChunkClass
	default:
		return ChunkFunction
	}
}

// ValidateKind checks if the symbol kind is valid
func (s *Symbol) ValidateKind() error {
	switch s.Kind {
	case KindFunction, KindMethod, KindClass:
		return nil
	default:
		return errors.New("invalid symbol kind")
	}
}

// IsPublic reports whether the symbol is part of its module's public surface.
// Go uses capitalization; Python and JavaScript use the leading underscore convention.
func (s *Symbol) IsPublic() bool {
	if s.Name == "" {
		return false
	}
	if s.Language == LangGo {
		return unicode.IsUpper([]rune(s.Name)[0])
	}
	return !strings.HasPrefix(s.Name, "_")
}

// Lines returns the number of source lines the symbol spans.
func (s *Symbol) Lines() int {
	return s.End.Line - s.Start.Line + 1
}

// Validate performs comprehensive validation of the symbol
func (s *Symbol) Validate() error {
	if s.Name == "" {
		return errors.New("symbol name is required")
	}

	if err := s.ValidateKind(); err != nil {
		return err
	}

	if s.Kind == KindMethod && s.Parent == "" {
		return errors.New("methods must have a parent type")
	}

	if s.Start.Line <= 0 || s.End.Line <= 0 {
		return errors.New("invalid position: line numbers must be positive")
	}

	if s.Start.Line > s.End.Line {
		return errors.New("invalid position: start line must be before or equal to end line")
	}

	return nil
}
