package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalDimension is the vector size produced by LocalProvider.
const LocalDimension = 384

// LocalProvider embeds text offline by hashing its terms into a fixed-size
// vector. Texts that share vocabulary get a high cosine similarity, which is
// enough for retrieval over identifiers and comments without a hosted model.
type LocalProvider struct {
	model string
	cache *Cache
}

// NewLocalProvider creates the offline embedder.
func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{model: "local-hashed-terms", cache: cache}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash := ComputeHash(req.Text)
	if l.cache != nil {
		if emb, ok := l.cache.Get(hash); ok {
			return emb, nil
		}
	}

	emb := &Embedding{
		Vector:    HashTerms(Tokenize(req.Text), LocalDimension),
		Dimension: LocalDimension,
		Provider:  ProviderLocal,
		Model:     l.model,
		Hash:      hash,
	}
	if l.cache != nil {
		l.cache.Set(hash, emb)
	}
	return emb, nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text, Model: req.Model})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      l.model,
	}, nil
}

func (l *LocalProvider) Dimension() int {
	return LocalDimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}

// HashTerms builds a unit vector from term frequencies using signed feature
// hashing with log-scaled weights.
func HashTerms(terms []string, dim int) []float32 {
	vec := make([]float32, dim)
	if len(terms) == 0 {
		return vec
	}

	counts := make(map[string]int, len(terms))
	for _, t := range terms {
		counts[t]++
	}
	for term, n := range counts {
		h := fnv.New64a()
		_, _ = h.Write([]byte(term))
		sum := h.Sum64()
		idx := int(sum % uint64(dim))
		sign := float32(1)
		if (sum>>63)&1 == 1 {
			sign = -1
		}
		vec[idx] += sign * float32(1+math.Log(float64(n)))
	}
	return NormalizeVector(vec)
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"can": {}, "do": {}, "does": {}, "for": {}, "from": {}, "how": {}, "if": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {}, "or": {},
	"that": {}, "the": {}, "this": {}, "to": {}, "used": {}, "use": {}, "uses": {},
	"using": {}, "was": {}, "what": {}, "when": {}, "where": {}, "which": {},
	"who": {}, "why": {}, "with": {}, "there": {}, "any": {}, "all": {},
	"code": {}, "codebase": {}, "file": {}, "files": {}, "project": {},
	"repository": {}, "repo": {}, "me": {}, "tell": {}, "show": {}, "explain": {},
	"about": {}, "have": {}, "has": {}, "we": {}, "you": {}, "i": {}, "my": {},
}

// Tokenize splits text into lowercase terms. Identifiers are split on
// camelCase and snake_case boundaries, common English stopwords are dropped,
// and simple plural and gerund suffixes are stripped.
func Tokenize(text string) []string {
	var terms []string
	var word []rune

	flush := func() {
		if len(word) == 0 {
			return
		}
		for _, part := range splitIdentifier(word) {
			if t := normalizeTerm(part); t != "" {
				terms = append(terms, t)
			}
		}
		word = word[:0]
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			word = append(word, r)
			continue
		}
		flush()
	}
	flush()
	return terms
}

func splitIdentifier(word []rune) []string {
	var parts []string
	start := 0
	for i := 1; i < len(word); i++ {
		prev, cur := word[i-1], word[i]
		boundary := unicode.IsLower(prev) && unicode.IsUpper(cur)
		if !boundary && i+1 < len(word) && unicode.IsUpper(prev) && unicode.IsUpper(cur) && unicode.IsLower(word[i+1]) {
			boundary = true
		}
		if boundary {
			parts = append(parts, string(word[start:i]))
			start = i
		}
	}
	parts = append(parts, string(word[start:]))
	return parts
}

func normalizeTerm(s string) string {
	s = strings.ToLower(s)
	if len(s) < 2 {
		return ""
	}
	if _, ok := stopwords[s]; ok {
		return ""
	}
	return stem(s)
}

func stem(s string) string {
	switch {
	case len(s) > 5 && strings.HasSuffix(s, "ing"):
		return s[:len(s)-3]
	case len(s) > 4 && strings.HasSuffix(s, "ies"):
		return s[:len(s)-3] + "y"
	case len(s) > 4 && strings.HasSuffix(s, "es") && strings.HasSuffix(s[:len(s)-2], "s"):
		return s[:len(s)-2]
	case len(s) > 3 && strings.HasSuffix(s, "s") && !strings.HasSuffix(s, "ss"):
		return s[:len(s)-1]
	}
	return s
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
