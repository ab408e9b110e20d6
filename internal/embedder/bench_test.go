package embedder

import (
	"context"
	"fmt"
	"testing"
)

func BenchmarkLocalProvider(b *testing.B) {
	provider, err := NewLocalProvider(NewCache(10000))
	if err != nil {
		b.Fatalf("NewLocalProvider() error = %v", err)
	}
	defer provider.Close()

	ctx := context.Background()

	b.Run("single", func(b *testing.B) {
		req := EmbeddingRequest{Text: "def process_data(input): return transform(input)"}
		for i := 0; i < b.N; i++ {
			if _, err := provider.GenerateEmbedding(ctx, req); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("batch-100", func(b *testing.B) {
		texts := make([]string, 100)
		for i := range texts {
			texts[i] = fmt.Sprintf("function handler%d(request) { return respond(request) }", i)
		}
		req := BatchEmbeddingRequest{Texts: texts}
		for i := 0; i < b.N; i++ {
			provider.cache.Clear()
			if _, err := provider.GenerateBatch(ctx, req); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkTokenize(b *testing.B) {
	text := "func (s *SQLiteStorage) SearchVector(ctx context.Context, collectionID int64, queryVector []float32, limit int) ([]VectorResult, error)"
	for i := 0; i < b.N; i++ {
		_ = Tokenize(text)
	}
}
