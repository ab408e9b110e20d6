package analyzer

import (
	"fmt"
	"sort"
)

// Factory builds a fresh analyzer. Analyzers that keep cross-file state
// must not be shared between sessions, so the registry builds new
// instances for every run.
type Factory func(opts Options) (Analyzer, error)

// Registry maps analyzer names to factories
type Registry struct {
	opts      Options
	factories map[string]Factory
	order     []string
}

// NewRegistry creates an empty registry with the given thresholds
func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:      opts.withDefaults(),
		factories: make(map[string]Factory),
	}
}

// DefaultRegistry returns a registry holding every built-in analyzer
func DefaultRegistry(opts Options) *Registry {
	r := NewRegistry(opts)
	r.Register(PythonName, func(o Options) (Analyzer, error) { return NewPythonAnalyzer(o), nil })
	r.Register(JavaScriptName, func(o Options) (Analyzer, error) { return NewJavaScriptAnalyzer(o), nil })
	r.Register(GoName, func(o Options) (Analyzer, error) { return NewGoAnalyzer(o), nil })
	r.Register(SecurityName, func(o Options) (Analyzer, error) { return NewSecurityAnalyzer(o) })
	r.Register(PerformanceName, func(o Options) (Analyzer, error) { return NewPerformanceAnalyzer(o), nil })
	r.Register(ComplexityName, func(o Options) (Analyzer, error) { return NewComplexityAnalyzer(o), nil })
	r.Register(DuplicationName, func(o Options) (Analyzer, error) { return NewDuplicationAnalyzer(o), nil })
	r.Register(TestingName, func(o Options) (Analyzer, error) { return NewTestingAnalyzer(o), nil })
	return r
}

// Register adds or replaces a factory
func (r *Registry) Register(name string, f Factory) {
	if _, exists := r.factories[name]; !exists {
		r.order = append(r.order, name)
	}
	r.factories[name] = f
}

// Names lists registered analyzers in registration order
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Build instantiates the named analyzers, or all of them when enabled is
// empty. The result is ordered by name.
func (r *Registry) Build(enabled []string) ([]Analyzer, error) {
	names := enabled
	if len(names) == 0 {
		names = r.order
	}

	seen := make(map[string]bool, len(names))
	analyzers := make([]Analyzer, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		f, ok := r.factories[name]
		if !ok {
			return nil, fmt.Errorf("unknown analyzer %q", name)
		}
		a, err := f(r.opts)
		if err != nil {
			return nil, fmt.Errorf("building analyzer %s: %w", name, err)
		}
		analyzers = append(analyzers, a)
	}

	sort.Slice(analyzers, func(i, j int) bool {
		return analyzers[i].Name() < analyzers[j].Name()
	})
	return analyzers, nil
}
