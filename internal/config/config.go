// Package config loads codeaudit configuration from defaults, an optional
// config file, and CODEAUDIT_* environment variables.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. CODEAUDIT_CACHE_TTL.
const EnvPrefix = "CODEAUDIT"

// Config is the complete runtime configuration.
type Config struct {
	Orchestrator OrchestratorConfig `json:"orchestrator" mapstructure:"orchestrator"`
	Catalog      CatalogConfig      `json:"catalog" mapstructure:"catalog"`
	Analyzers    AnalyzersConfig    `json:"analyzers" mapstructure:"analyzers"`
	Scoring      ScoringConfig      `json:"scoring" mapstructure:"scoring"`
	Indexer      IndexerConfig      `json:"indexer" mapstructure:"indexer"`
	Retrieval    RetrievalConfig    `json:"retrieval" mapstructure:"retrieval"`
	LLM          LLMConfig          `json:"llm" mapstructure:"llm"`
	Embedding    EmbeddingConfig    `json:"embedding" mapstructure:"embedding"`
	Cache        CacheConfig        `json:"cache" mapstructure:"cache"`
	Storage      StorageConfig      `json:"storage" mapstructure:"storage"`
	Logging      LoggingConfig      `json:"logging" mapstructure:"logging"`
}

// OrchestratorConfig bounds an analysis session.
type OrchestratorConfig struct {
	MaxPasses int `json:"max_passes" mapstructure:"max_passes"`
	BatchSize int `json:"batch_size" mapstructure:"batch_size"`
	MaxFiles  int `json:"max_files" mapstructure:"max_files"`
	Workers   int `json:"workers" mapstructure:"workers"`
}

// CatalogConfig controls which files are discovered.
type CatalogConfig struct {
	Include       []string `json:"include" mapstructure:"include"`
	Exclude       []string `json:"exclude" mapstructure:"exclude"`
	MaxFileSize   int64    `json:"max_file_size" mapstructure:"max_file_size"`
	IncludeHidden bool     `json:"include_hidden" mapstructure:"include_hidden"`
}

// AnalyzersConfig selects analyzers and their thresholds.
type AnalyzersConfig struct {
	Enabled             []string `json:"enabled" mapstructure:"enabled"`
	ComplexityThreshold int      `json:"complexity_threshold" mapstructure:"complexity_threshold"`
	LongFunctionLines   int      `json:"long_function_lines" mapstructure:"long_function_lines"`
	MinDuplicateLines   int      `json:"min_duplicate_lines" mapstructure:"min_duplicate_lines"`
	RulesFile           string   `json:"rules_file" mapstructure:"rules_file"`
}

// ScoringConfig is the quality score policy.
type ScoringConfig struct {
	Weights          map[string]float64 `json:"weights" mapstructure:"weights"`
	NormalizePerFile bool               `json:"normalize_per_file" mapstructure:"normalize_per_file"`
	PerFileCap       float64            `json:"per_file_cap" mapstructure:"per_file_cap"`
}

// IndexerConfig controls semantic indexing.
type IndexerConfig struct {
	BatchSize    int  `json:"batch_size" mapstructure:"batch_size"`
	Workers      int  `json:"workers" mapstructure:"workers"`
	IncludeTests bool `json:"include_tests" mapstructure:"include_tests"`
}

// RetrievalConfig controls question answering.
type RetrievalConfig struct {
	TopK            int     `json:"top_k" mapstructure:"top_k"`
	MinSimilarity   float64 `json:"min_similarity" mapstructure:"min_similarity"`
	DirectMaxFiles  int     `json:"direct_max_files" mapstructure:"direct_max_files"`
	ContextMaxChars int     `json:"context_max_chars" mapstructure:"context_max_chars"`
	HistorySize     int     `json:"history_size" mapstructure:"history_size"`
}

// LLMConfig selects the answer generator.
type LLMConfig struct {
	Provider   string        `json:"provider" mapstructure:"provider"` // "extractive" or "openai"
	Model      string        `json:"model" mapstructure:"model"`
	APIKey     string        `json:"-" mapstructure:"api_key"`
	BaseURL    string        `json:"base_url" mapstructure:"base_url"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max_retries" mapstructure:"max_retries"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider  string        `json:"provider" mapstructure:"provider"` // "local", "jina" or "openai"
	APIKey    string        `json:"-" mapstructure:"api_key"`
	CacheSize int           `json:"cache_size" mapstructure:"cache_size"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Enabled    bool          `json:"enabled" mapstructure:"enabled"`
	TTL        time.Duration `json:"ttl" mapstructure:"ttl"`
	MaxEntries int           `json:"max_entries" mapstructure:"max_entries"`
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
	File   string `json:"file" mapstructure:"file"`
}

// DefaultWeights are the per-severity score penalties.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		"critical": 12,
		"high":     6,
		"medium":   2,
		"low":      0.5,
		"info":     0,
	}
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			MaxPasses: 5,
			BatchSize: 25,
			MaxFiles:  200,
			Workers:   4,
		},
		Catalog: CatalogConfig{
			MaxFileSize: 1 << 20,
		},
		Analyzers: AnalyzersConfig{
			Enabled:             []string{"python", "javascript", "go", "security", "performance", "complexity", "duplication", "testing"},
			ComplexityThreshold: 10,
			LongFunctionLines:   50,
			MinDuplicateLines:   5,
		},
		Scoring: ScoringConfig{
			Weights:          DefaultWeights(),
			NormalizePerFile: true,
			PerFileCap:       25,
		},
		Indexer: IndexerConfig{
			BatchSize:    100,
			Workers:      4,
			IncludeTests: true,
		},
		Retrieval: RetrievalConfig{
			TopK:            8,
			MinSimilarity:   0.15,
			DirectMaxFiles:  25,
			ContextMaxChars: 12000,
			HistorySize:     20,
		},
		LLM: LLMConfig{
			Provider:   "extractive",
			Model:      "gpt-4o-mini",
			BaseURL:    "https://api.openai.com/v1",
			Timeout:    60 * time.Second,
			MaxRetries: 1,
		},
		Embedding: EmbeddingConfig{
			Provider:  "local",
			CacheSize: 10000,
			Timeout:   30 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTL:        time.Hour,
			MaxEntries: 1000,
		},
		Storage: StorageConfig{
			Path: defaultStoragePath(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".codeaudit", "codeaudit.db")
	}
	return filepath.Join(home, ".codeaudit", "codeaudit.db")
}

// Load reads configuration. When path is empty, codeaudit.{yaml,toml,json}
// is searched in the working directory and ~/.codeaudit; a missing file
// yields the defaults. Environment variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("codeaudit")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".codeaudit"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if len(cfg.Scoring.Weights) == 0 {
		cfg.Scoring.Weights = DefaultWeights()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("orchestrator.max_passes", d.Orchestrator.MaxPasses)
	v.SetDefault("orchestrator.batch_size", d.Orchestrator.BatchSize)
	v.SetDefault("orchestrator.max_files", d.Orchestrator.MaxFiles)
	v.SetDefault("orchestrator.workers", d.Orchestrator.Workers)

	v.SetDefault("catalog.include", d.Catalog.Include)
	v.SetDefault("catalog.exclude", d.Catalog.Exclude)
	v.SetDefault("catalog.max_file_size", d.Catalog.MaxFileSize)
	v.SetDefault("catalog.include_hidden", d.Catalog.IncludeHidden)

	v.SetDefault("analyzers.enabled", d.Analyzers.Enabled)
	v.SetDefault("analyzers.complexity_threshold", d.Analyzers.ComplexityThreshold)
	v.SetDefault("analyzers.long_function_lines", d.Analyzers.LongFunctionLines)
	v.SetDefault("analyzers.min_duplicate_lines", d.Analyzers.MinDuplicateLines)
	v.SetDefault("analyzers.rules_file", d.Analyzers.RulesFile)

	v.SetDefault("scoring.weights", d.Scoring.Weights)
	v.SetDefault("scoring.normalize_per_file", d.Scoring.NormalizePerFile)
	v.SetDefault("scoring.per_file_cap", d.Scoring.PerFileCap)

	v.SetDefault("indexer.batch_size", d.Indexer.BatchSize)
	v.SetDefault("indexer.workers", d.Indexer.Workers)
	v.SetDefault("indexer.include_tests", d.Indexer.IncludeTests)

	v.SetDefault("retrieval.top_k", d.Retrieval.TopK)
	v.SetDefault("retrieval.min_similarity", d.Retrieval.MinSimilarity)
	v.SetDefault("retrieval.direct_max_files", d.Retrieval.DirectMaxFiles)
	v.SetDefault("retrieval.context_max_chars", d.Retrieval.ContextMaxChars)
	v.SetDefault("retrieval.history_size", d.Retrieval.HistorySize)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.max_retries", d.LLM.MaxRetries)

	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)
	v.SetDefault("embedding.cache_size", d.Embedding.CacheSize)
	v.SetDefault("embedding.timeout", d.Embedding.Timeout)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.max_entries", d.Cache.MaxEntries)

	v.SetDefault("storage.path", d.Storage.Path)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
}

// Save writes the configuration as indented JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Orchestrator.MaxPasses < 1:
		return &Error{Field: "orchestrator.max_passes", Message: "must be at least 1"}
	case c.Orchestrator.BatchSize < 1:
		return &Error{Field: "orchestrator.batch_size", Message: "must be at least 1"}
	case c.Orchestrator.MaxFiles < 1:
		return &Error{Field: "orchestrator.max_files", Message: "must be at least 1"}
	case c.Orchestrator.Workers < 1:
		return &Error{Field: "orchestrator.workers", Message: "must be at least 1"}
	case c.Indexer.BatchSize < 1:
		return &Error{Field: "indexer.batch_size", Message: "must be at least 1"}
	case c.Indexer.Workers < 1:
		return &Error{Field: "indexer.workers", Message: "must be at least 1"}
	case c.Retrieval.TopK < 1:
		return &Error{Field: "retrieval.top_k", Message: "must be at least 1"}
	case c.Retrieval.MinSimilarity < 0 || c.Retrieval.MinSimilarity > 1:
		return &Error{Field: "retrieval.min_similarity", Message: "must be between 0 and 1"}
	case c.Scoring.PerFileCap <= 0:
		return &Error{Field: "scoring.per_file_cap", Message: "must be positive"}
	case c.Cache.Enabled && c.Cache.TTL <= 0:
		return &Error{Field: "cache.ttl", Message: "must be positive when the cache is enabled"}
	case c.LLM.Timeout <= 0:
		return &Error{Field: "llm.timeout", Message: "must be positive"}
	}
	for sev, w := range c.Scoring.Weights {
		if w < 0 {
			return &Error{Field: "scoring.weights." + sev, Message: "must not be negative"}
		}
	}
	return nil
}

// Error is a configuration validation failure.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
