// Package respcache memoizes expensive responses, such as answers and
// rendered reports, keyed by a fingerprint of everything they depend on.
package respcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/dshills/codeaudit/internal/config"
)

// Defaults applied when options leave them unset
const (
	DefaultTTL        = time.Hour
	DefaultMaxEntries = 1000
)

// Options configures a Cache
type Options struct {
	Enabled    bool
	TTL        time.Duration
	MaxEntries int
}

// OptionsFromConfig maps configuration onto cache options
func OptionsFromConfig(cfg config.CacheConfig) Options {
	return Options{Enabled: cfg.Enabled, TTL: cfg.TTL, MaxEntries: cfg.MaxEntries}
}

// Stats counts cache activity since creation
type Stats struct {
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
	Computations int64 `json:"computations"`
	Entries      int   `json:"entries"`
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is an LRU of values with per-entry expiry. Concurrent misses on
// the same key share a single computation.
type Cache struct {
	enabled bool
	ttl     time.Duration
	store   *lru.Cache[string, entry]
	group   singleflight.Group
	now     func() time.Time
	closed  atomic.Bool

	hits         atomic.Int64
	misses       atomic.Int64
	computations atomic.Int64
}

// New creates a cache. A disabled cache computes every request.
func New(opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	store, err := lru.New[string, entry](opts.MaxEntries)
	if err != nil {
		store, _ = lru.New[string, entry](DefaultMaxEntries)
	}
	return &Cache{
		enabled: opts.Enabled,
		ttl:     opts.TTL,
		store:   store,
		now:     time.Now,
	}
}

func (c *Cache) active() bool {
	return c != nil && c.enabled && !c.closed.Load()
}

// get returns the live value under key. Expired entries are dropped.
func (c *Cache) get(key string) (any, bool) {
	e, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		c.store.Remove(key)
		return nil, false
	}
	return e.value, true
}

func (c *Cache) set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.store.Add(key, entry{value: value, expiresAt: c.now().Add(ttl)})
}

// Invalidate drops the entry under key
func (c *Cache) Invalidate(key string) {
	if c != nil {
		c.store.Remove(key)
	}
}

// Stats reports hit, miss and computation counts
func (c *Cache) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Computations: c.computations.Load(),
		Entries:      c.store.Len(),
	}
}

// Close purges the cache. Later calls compute without caching.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	c.closed.Store(true)
	c.store.Purge()
	return nil
}

// GetOrCompute returns the cached value under key or computes, caches and
// returns it. Errors are never cached. Callers waiting on the same key
// share one computation; a caller whose ctx ends stops waiting but does
// not cancel the computation for the others.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if !c.active() {
		if c != nil {
			c.computations.Add(1)
		}
		return fn(ctx)
	}

	if v, ok := c.get(key); ok {
		if typed, ok := v.(T); ok {
			c.hits.Add(1)
			return typed, nil
		}
	}
	c.misses.Add(1)

	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.get(key); ok {
			if typed, ok := v.(T); ok {
				return typed, nil
			}
		}
		c.computations.Add(1)
		v, err := fn(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.set(key, v, ttl)
		return v, nil
	})

	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		typed, ok := res.Val.(T)
		if !ok {
			return fn(ctx)
		}
		return typed, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Fingerprint builds a cache key from a kind, a scope and any further
// parts. Parts are NUL separated so adjacent values cannot run together.
func Fingerprint(kind, scope string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(scope))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
