package qa

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codeaudit/internal/embedder"
	apperrors "github.com/dshills/codeaudit/internal/errors"
	"github.com/dshills/codeaudit/internal/indexer"
	"github.com/dshills/codeaudit/internal/llm"
	"github.com/dshills/codeaudit/internal/respcache"
	"github.com/dshills/codeaudit/internal/searcher"
	"github.com/dshills/codeaudit/internal/storage"
	"github.com/dshills/codeaudit/pkg/types"
)

// topicEmbedder maps text onto a small fixed vocabulary so similarity
// between a question and a chunk is exact: texts sharing no vocabulary term
// are orthogonal.
type topicEmbedder struct{}

var topics = []string{"test", "framework", "config", "load", "email", "send"}

func (topicEmbedder) vector(text string) []float32 {
	v := make([]float32, len(topics)+1)
	hit := false
	for _, term := range embedder.Tokenize(text) {
		for i, topic := range topics {
			if term == topic {
				v[i]++
				hit = true
			}
		}
	}
	if !hit {
		v[len(topics)] = 1
	}
	return v
}

func (e topicEmbedder) GenerateEmbedding(_ context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	return &embedder.Embedding{Vector: e.vector(req.Text), Dimension: e.Dimension(), Provider: "topic", Model: "v1"}, nil
}

func (e topicEmbedder) GenerateBatch(_ context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	out := make([]*embedder.Embedding, len(req.Texts))
	for i, text := range req.Texts {
		out[i] = &embedder.Embedding{Vector: e.vector(text), Dimension: e.Dimension(), Provider: "topic", Model: "v1"}
	}
	return &embedder.BatchEmbeddingResponse{Embeddings: out, Provider: "topic", Model: "v1"}, nil
}

func (topicEmbedder) Dimension() int   { return len(topics) + 1 }
func (topicEmbedder) Provider() string { return "topic" }
func (topicEmbedder) Model() string    { return "v1" }
func (topicEmbedder) Close() error     { return nil }

// recordingGenerator answers with a fixed text and remembers what it saw
type recordingGenerator struct {
	mu      sync.Mutex
	calls   atomic.Int32
	release chan struct{}
	last    llm.Request
}

func (g *recordingGenerator) Name() string { return "recording" }

func (g *recordingGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	g.calls.Add(1)
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	g.mu.Lock()
	g.last = req
	g.mu.Unlock()
	return "answer from " + req.Context[0].Source, nil
}

func (g *recordingGenerator) request() llm.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// brokenStore fails every collection lookup
type brokenStore struct {
	storage.Storage
}

func (brokenStore) GetCollection(context.Context, string) (*storage.Collection, error) {
	return nil, errors.New("disk I/O error")
}

// flakySearchStore fails vector searches while down is set
type flakySearchStore struct {
	storage.Storage
	down atomic.Bool
}

func (s *flakySearchStore) SearchVector(ctx context.Context, collectionID int64, vector []float32, limit int, filters *storage.SearchFilters) ([]storage.VectorResult, error) {
	if s.down.Load() {
		return nil, errors.New("database is locked")
	}
	return s.Storage.SearchVector(ctx, collectionID, vector, limit, filters)
}

const loaderSource = `package app

// LoadConfig reads the config from path.
func LoadConfig(path string) (*Config, error) {
	return parse(path)
}
`

const mailSource = `package app

// SendEmail delivers a message.
func SendEmail(to, body string) error {
	return deliver(to, body)
}
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

type fixture struct {
	dir   string
	store storage.Storage
	idx   *indexer.Indexer
	gen   *recordingGenerator
	cache *respcache.Cache
	svc   *Service
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "loader.go", loaderSource)
	writeFile(t, dir, "mail.go", mailSource)

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	emb := topicEmbedder{}
	cache := respcache.New(respcache.Options{Enabled: true, TTL: time.Hour, MaxEntries: 100})
	t.Cleanup(func() { _ = cache.Close() })
	gen := &recordingGenerator{}
	return &fixture{
		dir:   dir,
		store: store,
		idx:   indexer.New(store, emb, nil),
		gen:   gen,
		cache: cache,
		svc:   New(store, searcher.New(store, emb, nil), gen, cache, opts, nil),
	}
}

func (f *fixture) index(t *testing.T) {
	t.Helper()
	_, err := f.idx.Index(context.Background(), f.dir, "", nil)
	require.NoError(t, err)
}

func TestAsk_Indexed(t *testing.T) {
	f := newFixture(t, Options{})
	f.index(t)

	answer, err := f.svc.Ask(context.Background(), Request{Question: "Where is config loaded?", Scope: f.dir})
	require.NoError(t, err)

	assert.Equal(t, ModeIndexed, answer.Mode)
	assert.False(t, answer.Insufficient)
	assert.Equal(t, []string{"loader.go"}, answer.AnalyzedFiles)
	assert.Equal(t, 1, answer.FilesAnalyzedCount)
	require.Len(t, answer.Sources, 1)
	assert.True(t, strings.HasPrefix(answer.Sources[0], "loader.go:"))
	assert.Equal(t, "answer from "+answer.Sources[0], answer.Answer)
	assert.Empty(t, answer.Warnings)
	assert.False(t, answer.Timestamp.IsZero())

	req := f.gen.request()
	require.Len(t, req.Context, 1)
	assert.Contains(t, req.Context[0].Content, "LoadConfig")
	assert.Equal(t, "where is config loaded?", req.Question)
}

func TestAsk_TestingFrameworksWithoutTestContent(t *testing.T) {
	f := newFixture(t, Options{})
	f.index(t)

	answer, err := f.svc.Ask(context.Background(), Request{Question: "What testing frameworks are used?", Scope: f.dir})
	require.NoError(t, err)

	assert.True(t, answer.Insufficient)
	assert.Equal(t, apperrors.RetrievalEmpty, answer.ErrorKind)
	assert.Equal(t, InsufficientAnswer, answer.Answer)
	assert.Empty(t, answer.AnalyzedFiles)
	assert.Zero(t, answer.FilesAnalyzedCount)
	for _, name := range []string{"testify", "pytest", "jest", "mocha", "unittest"} {
		assert.NotContains(t, strings.ToLower(answer.Answer), name)
	}
	assert.Zero(t, f.gen.calls.Load())
}

func TestAsk_DirectWhenNotIndexed(t *testing.T) {
	f := newFixture(t, Options{})

	answer, err := f.svc.Ask(context.Background(), Request{Question: "Where is config loaded?", Scope: f.dir})
	require.NoError(t, err)

	assert.Equal(t, ModeDirect, answer.Mode)
	assert.Equal(t, []string{"loader.go"}, answer.AnalyzedFiles)
	require.Len(t, answer.Warnings, 1)
	assert.Contains(t, answer.Warnings[0], "direct scan")
	assert.Equal(t, int32(1), f.gen.calls.Load())
}

func TestAsk_DirectReadsAtMostMaxFiles(t *testing.T) {
	f := newFixture(t, Options{DirectMaxFiles: 1})
	writeFile(t, f.dir, "other.go", "package app\n\n// config helpers\nfunc helper() {}\n")

	answer, err := f.svc.Ask(context.Background(), Request{Question: "config", Scope: f.dir})
	require.NoError(t, err)
	assert.LessOrEqual(t, answer.FilesAnalyzedCount, 1)
}

func TestAsk_DirectNoMatchIsInsufficient(t *testing.T) {
	f := newFixture(t, Options{})

	answer, err := f.svc.Ask(context.Background(), Request{Question: "Which kafka brokers?", Scope: f.dir})
	require.NoError(t, err)
	assert.True(t, answer.Insufficient)
	assert.Equal(t, ModeDirect, answer.Mode)
	assert.Zero(t, f.gen.calls.Load())
}

func TestAsk_StoreUnavailableFallsBack(t *testing.T) {
	f := newFixture(t, Options{})
	svc := New(brokenStore{f.store}, nil, f.gen, nil, Options{}, nil)

	answer, err := svc.Ask(context.Background(), Request{Question: "Where is config loaded?", Scope: f.dir})
	require.NoError(t, err)
	assert.Equal(t, ModeDirect, answer.Mode)
	assert.Contains(t, answer.Warnings, WarnStoreDegraded)
	assert.Equal(t, []string{"loader.go"}, answer.AnalyzedFiles)

	_, err = svc.Ask(context.Background(), Request{Question: "q", Collection: "named"})
	assert.True(t, apperrors.IsKind(err, apperrors.IndexStoreUnavailable))
}

func TestAsk_SearchFailureAnswerIsNotCached(t *testing.T) {
	f := newFixture(t, Options{})
	f.index(t)
	flaky := &flakySearchStore{Storage: f.store}
	svc := New(flaky, searcher.New(flaky, topicEmbedder{}, nil), f.gen, f.cache, Options{}, nil)

	flaky.down.Store(true)
	answer, err := svc.Ask(context.Background(), Request{Question: "Where is config loaded?", Scope: f.dir})
	require.NoError(t, err)
	assert.Equal(t, ModeDirect, answer.Mode)
	assert.Contains(t, answer.Warnings, WarnStoreDegraded)

	flaky.down.Store(false)
	answer, err = svc.Ask(context.Background(), Request{Question: "Where is config loaded?", Scope: f.dir})
	require.NoError(t, err)
	assert.Equal(t, ModeIndexed, answer.Mode)
	assert.Empty(t, answer.Warnings)
	assert.Equal(t, int32(2), f.gen.calls.Load())

	_, err = svc.Ask(context.Background(), Request{Question: "Where is config loaded?", Scope: f.dir})
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.gen.calls.Load())
}

func TestAsk_DirectSameSizeEditIsRecomputed(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.Ask(context.Background(), Request{Question: "Where is config loaded?", Scope: f.dir})
	require.NoError(t, err)
	require.Equal(t, int32(1), f.gen.calls.Load())

	edited := strings.Replace(loaderSource, "reads the config from path", "loads the config from disk", 1)
	require.Len(t, edited, len(loaderSource))
	writeFile(t, f.dir, "loader.go", edited)

	_, err = f.svc.Ask(context.Background(), Request{Question: "Where is config loaded?", Scope: f.dir})
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.gen.calls.Load())
	req := f.gen.request()
	require.NotEmpty(t, req.Context)
	assert.Contains(t, req.Context[0].Content, "loads the config from disk")
}

func TestAsk_QuestionIsNormalized(t *testing.T) {
	f := newFixture(t, Options{})

	first, err := f.svc.Ask(context.Background(), Request{Question: "Where is config loaded?", Scope: f.dir})
	require.NoError(t, err)
	second, err := f.svc.Ask(context.Background(), Request{Question: "  WHERE is config\tLOADED? ", Scope: f.dir})
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.gen.calls.Load())
	assert.Equal(t, "where is config loaded?", f.gen.request().Question)
	assert.Equal(t, first.Answer, second.Answer)
}

func TestAsk_ConcurrentIdenticalAsksComputeOnce(t *testing.T) {
	f := newFixture(t, Options{})
	f.index(t)
	f.gen.release = make(chan struct{})

	var wg sync.WaitGroup
	answers := make([]*Answer, 2)
	errs := make([]error, 2)
	for i := range answers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			answers[i], errs[i] = f.svc.Ask(context.Background(), Request{Question: "Where is config loaded?", Scope: f.dir})
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(f.gen.release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(1), f.gen.calls.Load())
	assert.Equal(t, answers[0].Answer, answers[1].Answer)
	assert.Equal(t, answers[0].AnalyzedFiles, answers[1].AnalyzedFiles)
}

func TestAsk_ReindexedContentIsRecomputed(t *testing.T) {
	f := newFixture(t, Options{})
	f.index(t)

	_, err := f.svc.Ask(context.Background(), Request{Question: "Where is config loaded?", Scope: f.dir})
	require.NoError(t, err)
	_, err = f.svc.Ask(context.Background(), Request{Question: "where is CONFIG   loaded?", Scope: f.dir})
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.gen.calls.Load())

	writeFile(t, f.dir, "loader.go", loaderSource+"\n// LoadDefaults loads the default config.\nfunc LoadDefaults() {}\n")
	f.index(t)

	_, err = f.svc.Ask(context.Background(), Request{Question: "Where is config loaded?", Scope: f.dir})
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.gen.calls.Load())
}

func TestAsk_ModelTimeout(t *testing.T) {
	f := newFixture(t, Options{})
	f.index(t)
	slow := &recordingGenerator{release: make(chan struct{})}
	svc := New(f.store, searcher.New(f.store, topicEmbedder{}, nil), llm.NewGuarded(slow, 20*time.Millisecond, 1, time.Millisecond), nil, Options{}, nil)

	_, err := svc.Ask(context.Background(), Request{Question: "Where is config loaded?", Scope: f.dir})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.ModelTimeout))
	assert.Equal(t, int32(2), slow.calls.Load())
}

func TestAsk_InvalidInput(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.Ask(context.Background(), Request{Question: "  ", Scope: f.dir})
	assert.True(t, apperrors.IsKind(err, apperrors.InvalidInput))

	_, err = f.svc.Ask(context.Background(), Request{Question: "what?"})
	assert.True(t, apperrors.IsKind(err, apperrors.InvalidInput))
}

func TestAsk_UnknownCollectionWithoutScope(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.Ask(context.Background(), Request{Question: "what?", Collection: "missing"})
	assert.True(t, apperrors.IsKind(err, apperrors.CollectionNotFound))
}

func TestAsk_MissingScope(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.Ask(context.Background(), Request{Question: "what?", Scope: filepath.Join(f.dir, "nope")})
	assert.True(t, apperrors.IsKind(err, apperrors.SourceUnavailable))
}

func TestHistory(t *testing.T) {
	f := newFixture(t, Options{HistorySize: 2})

	for _, q := range []string{"config one", "config two", "config three"} {
		_, err := f.svc.Ask(context.Background(), Request{Question: q, Scope: f.dir})
		require.NoError(t, err)
	}

	history := f.svc.History(f.dir)
	require.Len(t, history, 2)
	assert.Equal(t, "config two", history[0].Question)
	assert.Equal(t, "config three", history[1].Question)
	assert.Equal(t, ModeDirect, history[1].Mode)
	assert.Equal(t, []string{"loader.go"}, history[1].AnalyzedFiles)
	assert.Nil(t, f.svc.History("elsewhere"))
}

func TestMatchFile(t *testing.T) {
	src := "line one\nline two\nthe config loader\nline four"
	m, ok := matchFile("a.go", src, map[string]bool{"config": true})
	require.True(t, ok)
	assert.Equal(t, "a.go:1-4", m.block.Source)
	assert.Equal(t, 1, m.score)

	_, ok = matchFile("a.go", src, map[string]bool{"absent": true})
	assert.False(t, ok)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"héllo", 10, "héllo"},
		{"héllo", 3, "hé"},
		{"héllo", 2, "h"},
		{"日本", 2, ""},
		{"日本", 4, "日"},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		assert.Equal(t, tt.want, got, "truncate(%q, %d)", tt.in, tt.n)
		assert.True(t, utf8.ValidString(got))
	}
}

func TestAsk_ContextBudgetKeepsValidUTF8(t *testing.T) {
	f := newFixture(t, Options{ContextMaxChars: 41})
	writeFile(t, f.dir, "loader.go", "package app\n\n// config: ÄÖÜ ÄÖÜ ÄÖÜ ÄÖÜ ÄÖÜ ÄÖÜ ÄÖÜ ÄÖÜ ÄÖÜ\nfunc LoadConfig() {}\n")

	_, err := f.svc.Ask(context.Background(), Request{Question: "Where is config loaded?", Scope: f.dir})
	require.NoError(t, err)
	blocks := f.gen.request().Context
	require.Len(t, blocks, 1)
	assert.True(t, utf8.ValidString(blocks[0].Content))
	assert.Len(t, blocks[0].Content, 40)
}

func TestRing(t *testing.T) {
	r := newRing(3)
	for _, q := range []string{"a", "b", "c", "d"} {
		r.add(exchange(q))
	}
	got := r.list()
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].Question)
	assert.Equal(t, "d", got[2].Question)
}

func exchange(q string) types.ChatExchange {
	return types.ChatExchange{Question: q}
}
