package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/dshills/codeaudit/internal/errors"
	"github.com/dshills/codeaudit/internal/retry"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	// Environment variables consulted by NewFromEnv
	EnvProvider     = "CODEAUDIT_EMBEDDING_PROVIDER"
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// endpoint describes one hosted embedding API. Jina and OpenAI share the
// same request and response shape.
type endpoint struct {
	provider  string
	url       string
	model     string
	dimension int
	envKey    string
}

var (
	jinaEndpoint = endpoint{
		provider:  ProviderJina,
		url:       "https://api.jina.ai/v1/embeddings",
		model:     DefaultJinaModel,
		dimension: JinaDimension,
		envKey:    EnvJinaAPIKey,
	}
	openAIEndpoint = endpoint{
		provider:  ProviderOpenAI,
		url:       "https://api.openai.com/v1/embeddings",
		model:     DefaultOpenAIModel,
		dimension: OpenAIDimension,
		envKey:    EnvOpenAIAPIKey,
	}
)

// statusError is a non-200 response from a hosted API.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.code, e.body)
}

// RemoteProvider implements Embedder over a hosted HTTP embedding API.
type RemoteProvider struct {
	ep         endpoint
	apiKey     string
	httpClient *http.Client
	cache      *Cache
	retry      retry.Config
}

// NewJinaProvider creates an embedder backed by the Jina AI API.
func NewJinaProvider(apiKey string, cache *Cache) (*RemoteProvider, error) {
	return newRemoteProvider(jinaEndpoint, apiKey, cache)
}

// NewOpenAIProvider creates an embedder backed by the OpenAI API.
func NewOpenAIProvider(apiKey string, cache *Cache) (*RemoteProvider, error) {
	return newRemoteProvider(openAIEndpoint, apiKey, cache)
}

func newRemoteProvider(ep endpoint, apiKey string, cache *Cache) (*RemoteProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, ep.envKey)
	}
	cfg := retry.Default()
	cfg.Retryable = retryableHTTP
	return &RemoteProvider{
		ep:         ep,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      cache,
		retry:      cfg,
	}, nil
}

// retryableHTTP retries transport failures, rate limiting, and server errors.
func retryableHTTP(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return true
}

// WithEndpoint points the provider at a different URL, e.g. a compatible proxy.
func (p *RemoteProvider) WithEndpoint(url string) *RemoteProvider {
	p.ep.url = url
	return p
}

// WithTimeout sets the per-request HTTP timeout.
func (p *RemoteProvider) WithTimeout(d time.Duration) *RemoteProvider {
	if d > 0 {
		p.httpClient.Timeout = d
	}
	return p
}

func (p *RemoteProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	hash := ComputeHash(req.Text)
	if p.cache != nil {
		if emb, ok := p.cache.Get(hash); ok {
			return emb, nil
		}
	}

	resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}, Model: req.Model})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}
	return resp.Embeddings[0], nil
}

func (p *RemoteProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}
	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	model := req.Model
	if model == "" {
		model = p.ep.model
	}

	embeddings, err := retry.Do(ctx, p.retry, func(ctx context.Context) ([]*Embedding, error) {
		return p.callAPI(ctx, req.Texts, model)
	})
	if err != nil {
		if retry.IsTimeout(err) {
			return nil, apperrors.Wrap(apperrors.ModelTimeout, "embedding request timed out", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}

	if p.cache != nil {
		for i, emb := range embeddings {
			emb.Hash = ComputeHash(req.Texts[i])
			p.cache.Set(emb.Hash, emb)
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   p.ep.provider,
		Model:      model,
	}, nil
}

func (p *RemoteProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	body, err := json.Marshal(map[string]interface{}{
		"input": texts,
		"model": model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.ep.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &statusError{code: resp.StatusCode, body: string(bodyBytes)}
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(apiResp.Data))
	}

	embeddings := make([]*Embedding, len(texts))
	for _, data := range apiResp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", data.Index)
		}
		embeddings[data.Index] = &Embedding{
			Vector:    data.Embedding,
			Dimension: len(data.Embedding),
			Provider:  p.ep.provider,
			Model:     apiResp.Model,
		}
	}
	for i, emb := range embeddings {
		if emb == nil {
			return nil, fmt.Errorf("missing embedding for text %d", i)
		}
	}
	return embeddings, nil
}

func (p *RemoteProvider) Dimension() int {
	return p.ep.dimension
}

func (p *RemoteProvider) Provider() string {
	return p.ep.provider
}

func (p *RemoteProvider) Model() string {
	return p.ep.model
}

func (p *RemoteProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
