package respcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codeaudit/internal/config"
)

func counter(calls *atomic.Int32, value string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		calls.Add(1)
		return value, nil
	}
}

func TestGetOrCompute_CachesValue(t *testing.T) {
	c := New(Options{Enabled: true})
	var calls atomic.Int32
	ctx := context.Background()

	first, err := GetOrCompute(ctx, c, "k", 0, counter(&calls, "answer"))
	require.NoError(t, err)
	second, err := GetOrCompute(ctx, c, "k", 0, counter(&calls, "other"))
	require.NoError(t, err)

	assert.Equal(t, "answer", first)
	assert.Equal(t, "answer", second)
	assert.Equal(t, int32(1), calls.Load())

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Computations)
	assert.Equal(t, 1, stats.Entries)
}

func TestGetOrCompute_ConcurrentCallsShareOneComputation(t *testing.T) {
	c := New(Options{Enabled: true})
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "shared", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 2)
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = GetOrCompute(context.Background(), c, "q", 0, fn)
	}()
	<-started
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = GetOrCompute(context.Background(), c, "q", 0, fn)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, "shared", results[0])
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(1), c.Stats().Computations)
}

func TestGetOrCompute_ErrorsAreNotCached(t *testing.T) {
	c := New(Options{Enabled: true})
	var calls atomic.Int32
	boom := errors.New("model unavailable")
	ctx := context.Background()

	_, err := GetOrCompute(ctx, c, "k", 0, func(context.Context) (string, error) {
		calls.Add(1)
		return "", boom
	})
	require.ErrorIs(t, err, boom)

	v, err := GetOrCompute(ctx, c, "k", 0, counter(&calls, "recovered"))
	require.NoError(t, err)
	assert.Equal(t, "recovered", v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetOrCompute_ExpiredEntriesAreNotServed(t *testing.T) {
	c := New(Options{Enabled: true, TTL: time.Minute})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	var calls atomic.Int32
	ctx := context.Background()

	_, err := GetOrCompute(ctx, c, "k", 0, counter(&calls, "old"))
	require.NoError(t, err)

	now = now.Add(59 * time.Second)
	v, err := GetOrCompute(ctx, c, "k", 0, counter(&calls, "new"))
	require.NoError(t, err)
	assert.Equal(t, "old", v)

	now = now.Add(time.Second)
	v, err = GetOrCompute(ctx, c, "k", 0, counter(&calls, "new"))
	require.NoError(t, err)
	assert.Equal(t, "new", v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetOrCompute_PerCallTTL(t *testing.T) {
	c := New(Options{Enabled: true, TTL: time.Hour})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	var calls atomic.Int32

	_, err := GetOrCompute(context.Background(), c, "k", time.Second, counter(&calls, "v"))
	require.NoError(t, err)
	now = now.Add(2 * time.Second)
	_, err = GetOrCompute(context.Background(), c, "k", time.Second, counter(&calls, "v"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetOrCompute_Disabled(t *testing.T) {
	c := New(Options{Enabled: false})
	var calls atomic.Int32
	for range 3 {
		_, err := GetOrCompute(context.Background(), c, "k", 0, counter(&calls, "v"))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int64(3), c.Stats().Computations)
	assert.Zero(t, c.Stats().Entries)
}

func TestGetOrCompute_NilCache(t *testing.T) {
	var calls atomic.Int32
	v, err := GetOrCompute(context.Background(), nil, "k", 0, counter(&calls, "v"))
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	assert.Equal(t, Stats{}, (*Cache)(nil).Stats())
}

func TestGetOrCompute_CallerCancellation(t *testing.T) {
	c := New(Options{Enabled: true})
	release := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := GetOrCompute(ctx, c, "slow", 0, func(context.Context) (string, error) {
			<-release
			return "late", nil
		})
		done <- err
	}()
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// The computation still completes and is cached for later callers
	close(release)
	require.Eventually(t, func() bool { return c.Stats().Entries == 1 }, time.Second, 5*time.Millisecond)
	v, err := GetOrCompute(context.Background(), c, "slow", 0, func(context.Context) (string, error) {
		return "recomputed", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "late", v)
}

func TestGetOrCompute_TypeMismatchRecomputes(t *testing.T) {
	c := New(Options{Enabled: true})
	ctx := context.Background()

	_, err := GetOrCompute(ctx, c, "k", 0, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	v, err := GetOrCompute(ctx, c, "k", 0, func(context.Context) (string, error) { return "text", nil })
	require.NoError(t, err)
	assert.Equal(t, "text", v)
}

func TestClose(t *testing.T) {
	c := New(Options{Enabled: true})
	var calls atomic.Int32
	ctx := context.Background()

	_, err := GetOrCompute(ctx, c, "k", 0, counter(&calls, "v"))
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.Zero(t, c.Stats().Entries)

	_, err = GetOrCompute(ctx, c, "k", 0, counter(&calls, "v"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Zero(t, c.Stats().Entries)
}

func TestInvalidate(t *testing.T) {
	c := New(Options{Enabled: true})
	var calls atomic.Int32
	ctx := context.Background()

	_, _ = GetOrCompute(ctx, c, "k", 0, counter(&calls, "v"))
	c.Invalidate("k")
	_, _ = GetOrCompute(ctx, c, "k", 0, counter(&calls, "v"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestLRUEviction(t *testing.T) {
	c := New(Options{Enabled: true, MaxEntries: 2})
	var calls atomic.Int32
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		_, _ = GetOrCompute(ctx, c, k, 0, counter(&calls, k))
	}
	assert.Equal(t, 2, c.Stats().Entries)

	_, _ = GetOrCompute(ctx, c, "a", 0, counter(&calls, "a"))
	assert.Equal(t, int32(4), calls.Load(), "least recently used entry was evicted")
}

func TestFingerprint(t *testing.T) {
	base := Fingerprint("ask", "/repo", "what is this?", "abc123")
	assert.Len(t, base, 64)
	assert.Equal(t, base, Fingerprint("ask", "/repo", "what is this?", "abc123"))
	assert.NotEqual(t, base, Fingerprint("ask", "/repo", "what is this?", "def456"), "content fingerprint is part of the key")
	assert.NotEqual(t, Fingerprint("ask", "ab", "c"), Fingerprint("ask", "a", "bc"), "parts do not run together")
	assert.NotEqual(t, Fingerprint("report", "id"), Fingerprint("ask", "id"))
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.CacheConfig{Enabled: true, TTL: time.Minute, MaxEntries: 5})
	assert.Equal(t, Options{Enabled: true, TTL: time.Minute, MaxEntries: 5}, opts)
}
