// Package llm generates answers to questions about code from retrieved
// context. Generators only ever see the context they are given.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dshills/codeaudit/internal/config"
)

// Provider names
const (
	ProviderExtractive = "extractive"
	ProviderOpenAI     = "openai"

	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// ErrNoAPIKey is returned when a hosted provider has no credentials
var ErrNoAPIKey = errors.New("no api key configured")

// ContextBlock is one piece of source handed to the model. Source is the
// provenance, e.g. "internal/db/query.go:12-40".
type ContextBlock struct {
	Source  string
	Path    string
	Content string
}

// Request is a question and the only context the answer may draw on
type Request struct {
	Question string
	Context  []ContextBlock
}

// Generator produces an answer for a request
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// New builds the generator selected by cfg, wrapped with its per-call
// timeout and retry policy
func New(cfg config.LLMConfig) (Generator, error) {
	var g Generator
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderExtractive:
		g = NewExtractive()
	case ProviderOpenAI:
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv(EnvOpenAIAPIKey)
		}
		openai, err := NewOpenAI(key, cfg.BaseURL, cfg.Model)
		if err != nil {
			return nil, err
		}
		g = openai
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	return NewGuarded(g, cfg.Timeout, cfg.MaxRetries, DefaultBackoff), nil
}

// DefaultBackoff is the delay before a failed call is retried
const DefaultBackoff = 500 * time.Millisecond

const systemPrompt = `You answer questions about a codebase.
Use only the code excerpts provided. Cite files as path:line.
If the excerpts do not contain the answer, say so plainly and do not guess.`

// BuildPrompt renders the system and user messages for a request
func BuildPrompt(req Request) (system, user string) {
	var b strings.Builder
	b.WriteString("Code excerpts:\n\n")
	for _, block := range req.Context {
		fmt.Fprintf(&b, "--- %s ---\n%s\n\n", block.Source, block.Content)
	}
	b.WriteString("Question: ")
	b.WriteString(req.Question)
	return systemPrompt, b.String()
}
