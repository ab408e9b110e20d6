package embedder

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestComputeHash(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "empty string",
			text: "",
			want: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name: "simple text",
			text: "hello world",
			want: "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeHash(tt.text); got != tt.want {
				t.Errorf("ComputeHash() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateBatchRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     BatchEmbeddingRequest
		wantErr bool
	}{
		{"valid", BatchEmbeddingRequest{Texts: []string{"a", "b"}}, false},
		{"empty batch", BatchEmbeddingRequest{}, true},
		{"empty text", BatchEmbeddingRequest{Texts: []string{"a", ""}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatchRequest(tt.req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateBatchRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("error should wrap ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestCache_ReturnsCopies(t *testing.T) {
	cache := NewCache(2)
	cache.Set("h", &Embedding{Vector: []float32{1, 2, 3}, Dimension: 3})

	got, ok := cache.Get("h")
	if !ok {
		t.Fatal("expected cache hit")
	}
	got.Vector[0] = 99

	again, _ := cache.Get("h")
	if again.Vector[0] != 1 {
		t.Errorf("cache was mutated through returned value: %v", again.Vector)
	}
}

func TestCache_Eviction(t *testing.T) {
	cache := NewCache(2)
	cache.Set("a", &Embedding{Vector: []float32{1}})
	cache.Set("b", &Embedding{Vector: []float32{2}})
	cache.Set("c", &Embedding{Vector: []float32{3}})

	if cache.Size() != 2 {
		t.Errorf("Size() = %d, want 2", cache.Size())
	}
	if _, ok := cache.Get("a"); ok {
		t.Error("oldest entry should have been evicted")
	}

	cache.Clear()
	if cache.Size() != 0 {
		t.Errorf("Size() after Clear = %d", cache.Size())
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"parseHTTPRequest", []string{"parse", "http", "request"}},
		{"user_repository", []string{"user", "repository"}},
		{"What testing frameworks are used?", []string{"test", "framework"}},
		{"class AuthService", []string{"class", "auth", "service"}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := Tokenize(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("Tokenize(%q) = %v, want %v", tt.text, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Tokenize(%q)[%d] = %q, want %q", tt.text, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestLocalProvider_SimilarTextsScoreHigher(t *testing.T) {
	provider, _ := NewLocalProvider(nil)
	ctx := context.Background()

	query, _ := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "how are users authenticated with a password"})
	related, _ := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "def authenticate_user(username, password): check password hash"})
	unrelated, _ := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "def render_chart(data): draw bars on canvas"})

	simRelated := dot(query.Vector, related.Vector)
	simUnrelated := dot(query.Vector, unrelated.Vector)
	if simRelated <= simUnrelated {
		t.Errorf("related similarity %.3f should exceed unrelated %.3f", simRelated, simUnrelated)
	}
	if len(query.Vector) != LocalDimension {
		t.Errorf("dimension = %d, want %d", len(query.Vector), LocalDimension)
	}
}

func TestLocalProvider_Deterministic(t *testing.T) {
	provider, _ := NewLocalProvider(NewCache(10))
	ctx := context.Background()

	a, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "func Foo() {}"})
	if err != nil {
		t.Fatal(err)
	}
	other, _ := NewLocalProvider(nil)
	b, _ := other.GenerateEmbedding(ctx, EmbeddingRequest{Text: "func Foo() {}"})

	for i := range a.Vector {
		if a.Vector[i] != b.Vector[i] {
			t.Fatalf("vectors differ at %d", i)
		}
	}
}

func TestLocalProvider_Batch(t *testing.T) {
	provider, _ := NewLocalProvider(nil)
	resp, err := provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"alpha", "beta", "gamma"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Embeddings) != 3 {
		t.Errorf("got %d embeddings, want 3", len(resp.Embeddings))
	}
}

func TestEmbedAll_Batches(t *testing.T) {
	counter := &countingEmbedder{Embedder: mustLocal(t)}
	texts := make([]string, 250)
	for i := range texts {
		texts[i] = "chunk text"
	}

	vectors, err := EmbedAll(context.Background(), counter, texts, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(vectors) != 250 {
		t.Errorf("got %d vectors, want 250", len(vectors))
	}
	if counter.batches != 3 {
		t.Errorf("got %d batch calls, want 3", counter.batches)
	}
}

func TestNormalizeVector(t *testing.T) {
	v := NormalizeVector([]float32{3, 4})
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("NormalizeVector = %v", v)
	}

	zero := NormalizeVector([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector should stay zero, got %v", zero)
	}
}

type countingEmbedder struct {
	Embedder
	batches int
}

func (c *countingEmbedder) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	c.batches++
	return c.Embedder.GenerateBatch(ctx, req)
}

func mustLocal(t *testing.T) Embedder {
	t.Helper()
	p, err := NewLocalProvider(nil)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i] * b[i])
	}
	return s
}
