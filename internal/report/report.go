// Package report renders analysis reports for people and tools.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	apperrors "github.com/dshills/codeaudit/internal/errors"
	"github.com/dshills/codeaudit/pkg/types"
)

// Built-in formats
const (
	FormatJSON     = "json"
	FormatYAML     = "yaml"
	FormatMarkdown = "markdown"
)

// Renderer writes a report in one format
type Renderer interface {
	Render(w io.Writer, r *types.Report) error
	ContentType() string
}

// RendererFunc adapts a function to Renderer
type RendererFunc struct {
	Fn   func(w io.Writer, r *types.Report) error
	Type string
}

func (f RendererFunc) Render(w io.Writer, r *types.Report) error { return f.Fn(w, r) }
func (f RendererFunc) ContentType() string                       { return f.Type }

// Registry maps format names to renderers
type Registry struct {
	mu        sync.RWMutex
	renderers map[string]Renderer
}

// NewRegistry returns a registry holding the built-in formats
func NewRegistry() *Registry {
	r := &Registry{renderers: make(map[string]Renderer)}
	r.Register(FormatJSON, RendererFunc{Fn: RenderJSON, Type: "application/json"})
	r.Register(FormatYAML, RendererFunc{Fn: RenderYAML, Type: "application/yaml"})
	r.Register(FormatMarkdown, RendererFunc{Fn: RenderMarkdown, Type: "text/markdown"})
	return r
}

// Register adds or replaces the renderer for a format
func (r *Registry) Register(format string, renderer Renderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderers[strings.ToLower(format)] = renderer
}

// Formats lists the registered format names
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.renderers))
	for name := range r.renderers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the renderer for format. "md" and "yml" are accepted aliases.
func (r *Registry) Get(format string) (Renderer, error) {
	name := strings.ToLower(strings.TrimSpace(format))
	switch name {
	case "":
		name = FormatJSON
	case "md":
		name = FormatMarkdown
	case "yml":
		name = FormatYAML
	}
	r.mu.RLock()
	renderer, ok := r.renderers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.Newf(apperrors.InvalidInput, "unsupported report format %q", format).
			WithDetails(map[string]interface{}{"formats": r.Formats()})
	}
	return renderer, nil
}

// Render renders rep in format and returns the bytes
func (r *Registry) Render(rep *types.Report, format string) ([]byte, error) {
	renderer, err := r.Get(format)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := renderer.Render(&buf, rep); err != nil {
		return nil, fmt.Errorf("render %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// RenderJSON writes the report as indented JSON
func RenderJSON(w io.Writer, r *types.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// RenderYAML writes the report as YAML
func RenderYAML(w io.Writer, r *types.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}
