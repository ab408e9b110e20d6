package embedder

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	APIKey    string
	CacheSize int
	Timeout   time.Duration
}

// NewFromEnv creates an embedder based on environment variables.
// CODEAUDIT_EMBEDDING_PROVIDER wins; otherwise a Jina or OpenAI key selects
// that provider, and the local provider is the fallback.
func NewFromEnv() (Embedder, error) {
	provider := DetectProvider()
	key := ""
	switch provider {
	case ProviderJina:
		key = os.Getenv(EnvJinaAPIKey)
	case ProviderOpenAI:
		key = os.Getenv(EnvOpenAIAPIKey)
	}
	return New(Config{Provider: provider, APIKey: key, CacheSize: 10000})
}

// New creates an embedder with explicit configuration. An empty API key for a
// hosted provider is read from that provider's environment variable.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderJina:
		p, err := NewJinaProvider(keyOrEnv(cfg.APIKey, EnvJinaAPIKey), cache)
		if err != nil {
			return nil, err
		}
		return p.WithTimeout(cfg.Timeout), nil
	case ProviderOpenAI:
		p, err := NewOpenAIProvider(keyOrEnv(cfg.APIKey, EnvOpenAIAPIKey), cache)
		if err != nil {
			return nil, err
		}
		return p.WithTimeout(cfg.Timeout), nil
	case ProviderLocal, "":
		return NewLocalProvider(cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

func keyOrEnv(key, env string) string {
	if key != "" {
		return key
	}
	return os.Getenv(env)
}

// DetectProvider returns the provider that would be used based on current environment
func DetectProvider() string {
	if provider := os.Getenv(EnvProvider); provider != "" {
		return strings.ToLower(provider)
	}
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}
