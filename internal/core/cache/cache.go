// Package cache is a generic in-process TTL cache with LRU/FIFO/TTL batch
// eviction, non-blocking background refresh and a periodic expiry sweep. All
// entry mutation goes through Cache methods, so the size bound and the
// expiresAt > createdAt invariant are enforced at a single choke point.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Eviction strategies.
const (
	StrategyLRU  = "lru"
	StrategyFIFO = "fifo"
	StrategyTTL  = "ttl"
)

// ValidStrategy reports whether s is a supported eviction strategy.
func ValidStrategy(s string) bool {
	return s == StrategyLRU || s == StrategyFIFO || s == StrategyTTL
}

// Config is the per-call cache policy.
type Config struct {
	TTL time.Duration

	// RefreshThreshold triggers a non-blocking background refresh on a hit
	// whose remaining TTL has dropped below it. Zero disables refresh.
	RefreshThreshold time.Duration

	// Strategy selects the eviction ordering when a Set under this config
	// runs into the capacity bound. Empty falls back to lru.
	Strategy string
}

// Options configure one Cache instance.
type Options struct {
	MaxSize          int           // capacity bound; entries never exceed it after a Set
	DefaultTTL       time.Duration // applied when a Config carries no TTL
	EvictionFraction float64       // share of capacity evicted per batch; default 0.1
	SweepInterval    time.Duration // expiry sweep period; default 5m
	PrefetchWorkers  int           // concurrent prefetch fetches; default 4
}

const (
	defaultMaxSize          = 1000
	defaultTTL              = 5 * time.Minute
	defaultEvictionFraction = 0.1
	defaultSweepInterval    = 5 * time.Minute
	defaultPrefetchWorkers  = 4
)

func (o Options) normalized() Options {
	n := o
	if n.MaxSize <= 0 {
		n.MaxSize = defaultMaxSize
	}
	if n.DefaultTTL <= 0 {
		n.DefaultTTL = defaultTTL
	}
	if n.EvictionFraction <= 0 || n.EvictionFraction > 1 {
		n.EvictionFraction = defaultEvictionFraction
	}
	if n.SweepInterval <= 0 {
		n.SweepInterval = defaultSweepInterval
	}
	if n.PrefetchWorkers <= 0 {
		n.PrefetchWorkers = defaultPrefetchWorkers
	}
	return n
}

type entry[V any] struct {
	key            string
	value          V
	createdAt      time.Time
	expiresAt      time.Time
	accessCount    int64
	lastAccessedAt time.Time
}

func (e *entry[V]) live(now time.Time) bool {
	return now.Before(e.expiresAt)
}

// Cache is a thread-safe key-value cache. The zero value is not usable; use New.
type Cache[V any] struct {
	opts Options

	mu      sync.Mutex
	entries map[string]*entry[V]

	// Concurrent misses for the same key share one synchronous fetch.
	// Background refreshes are deliberately not deduplicated: refresh is
	// idempotent and last-write-wins.
	group singleflight.Group

	hits          int64
	misses        int64
	evictions     int64
	totalRequests int64
}

// New creates a cache with the given options.
func New[V any](opts Options) *Cache[V] {
	return &Cache[V]{
		opts:    opts.normalized(),
		entries: make(map[string]*entry[V]),
	}
}

// Fetch produces a value for a missing key.
type Fetch[V any] func(ctx context.Context) (V, error)

// Get returns the live cached value for key, updating access bookkeeping.
// The second return reports whether the value was served from cache. On a hit
// whose remaining TTL is below cfg.RefreshThreshold it additionally spawns a
// background refresh so the next caller sees fresh data without this caller
// paying fetch latency. On a miss or expired entry it calls fetch
// synchronously, stores the result and returns it; a fetch error propagates
// unmodified and leaves the cache untouched.
func (c *Cache[V]) Get(ctx context.Context, key string, fetch Fetch[V], cfg Config) (V, bool, error) {
	now := time.Now()

	c.mu.Lock()
	c.totalRequests++
	if e, ok := c.entries[key]; ok && e.live(now) {
		c.hits++
		e.accessCount++
		e.lastAccessedAt = now
		value := e.value
		remaining := e.expiresAt.Sub(now)
		c.mu.Unlock()

		if fetch != nil && cfg.RefreshThreshold > 0 && remaining < cfg.RefreshThreshold {
			c.refreshInBackground(ctx, key, fetch, cfg)
		}
		return value, true, nil
	}
	c.misses++
	c.mu.Unlock()

	var zero V
	if fetch == nil {
		return zero, false, fmt.Errorf("cache: miss for %q and no fetch function", key)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, value, cfg)
		return value, nil
	})
	if err != nil {
		return zero, false, err
	}
	return v.(V), false, nil
}

// refreshInBackground re-fetches and re-stores key without blocking the
// caller. Errors are logged, never propagated: the triggering read already
// succeeded from cache.
func (c *Cache[V]) refreshInBackground(ctx context.Context, key string, fetch Fetch[V], cfg Config) {
	refreshCtx := context.WithoutCancel(ctx)
	go func() {
		value, err := fetch(refreshCtx)
		if err != nil {
			slog.Warn("[Cache] Background refresh failed", "key", key, "error", err)
			return
		}
		c.Set(key, value, cfg)
	}()
}

// Set stores value under key. At capacity it first evicts a batch of entries
// under cfg.Strategy; batching amortizes eviction cost under sustained load.
func (c *Cache[V]) Set(key string, value V, cfg Config) {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = c.opts.DefaultTTL
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.opts.MaxSize {
		c.evictLocked(cfg.Strategy, now)
	}

	c.entries[key] = &entry[V]{
		key:            key,
		value:          value,
		createdAt:      now,
		expiresAt:      now.Add(ttl),
		lastAccessedAt: now,
	}
}

// evictLocked removes a batch of entries ordered by the strategy's victim
// key: lru → least recently accessed, fifo → oldest inserted, ttl → nearest
// expiry. Expired entries are always preferred victims within the ordering.
func (c *Cache[V]) evictLocked(strategy string, now time.Time) {
	batch := int(float64(c.opts.MaxSize) * c.opts.EvictionFraction)
	if batch < 1 {
		batch = 1
	}

	victims := make([]*entry[V], 0, len(c.entries))
	for _, e := range c.entries {
		victims = append(victims, e)
	}
	sort.Slice(victims, func(i, j int) bool {
		a, b := victims[i], victims[j]
		if al, bl := a.live(now), b.live(now); al != bl {
			return !al
		}
		switch strategy {
		case StrategyFIFO:
			return a.createdAt.Before(b.createdAt)
		case StrategyTTL:
			return a.expiresAt.Before(b.expiresAt)
		default:
			return a.lastAccessedAt.Before(b.lastAccessedAt)
		}
	})

	if batch > len(victims) {
		batch = len(victims)
	}
	for _, e := range victims[:batch] {
		delete(c.entries, e.key)
		c.evictions++
	}
}

// GetMany partitions keys into cached hits and misses, resolves all misses
// with one bulk fetch and populates the cache for future calls. Keys absent
// from the bulk fetch result are absent from the output.
func (c *Cache[V]) GetMany(ctx context.Context, keys []string, fetch func(ctx context.Context, missing []string) (map[string]V, error), cfg Config) (map[string]V, error) {
	now := time.Now()
	out := make(map[string]V, len(keys))
	var missing []string

	c.mu.Lock()
	for _, key := range keys {
		c.totalRequests++
		if e, ok := c.entries[key]; ok && e.live(now) {
			c.hits++
			e.accessCount++
			e.lastAccessedAt = now
			out[key] = e.value
			continue
		}
		c.misses++
		missing = append(missing, key)
	}
	c.mu.Unlock()

	if len(missing) == 0 || fetch == nil {
		return out, nil
	}

	fetched, err := fetch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for key, value := range fetched {
		c.Set(key, value, cfg)
		out[key] = value
	}
	return out, nil
}

// SetMany stores every value under its key.
func (c *Cache[V]) SetMany(values map[string]V, cfg Config) {
	for key, value := range values {
		c.Set(key, value, cfg)
	}
}

// Prefetch populates keys that are not already cached. Best effort: per-key
// fetch failures are logged and never fail the batch — prefetching is an
// optimization, not a correctness dependency.
func (c *Cache[V]) Prefetch(ctx context.Context, keys []string, fetch func(ctx context.Context, key string) (V, error), cfg Config) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.PrefetchWorkers)

	for _, key := range keys {
		if c.Has(key) {
			continue
		}
		g.Go(func() error {
			value, err := fetch(gctx, key)
			if err != nil {
				slog.Warn("[Cache] Prefetch failed", "key", key, "error", err)
				return nil
			}
			c.Set(key, value, cfg)
			return nil
		})
	}
	_ = g.Wait() // closures never return errors; failures are logged per key
}

// Has reports whether key holds a live entry. Does not touch access stats.
func (c *Cache[V]) Has(key string) bool {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && e.live(now)
}

// Invalidate removes key and reports whether an entry was present.
func (c *Cache[V]) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// InvalidatePrefix removes every entry whose key starts with prefix and
// returns the number removed.
func (c *Cache[V]) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

// Clear removes all entries. Counters are kept.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[V])
}

// Len returns the current entry count, live or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes every expired entry and returns the number removed.
func (c *Cache[V]) Sweep() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, e := range c.entries {
		if !e.live(now) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

// RunSweeper periodically removes expired entries, independent of access
// patterns, bounding memory growth from keys written once and never read
// again. Blocks until ctx is cancelled.
func (c *Cache[V]) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(c.opts.SweepInterval)
	defer ticker.Stop()

	slog.Info("[Cache] Starting expiry sweeper", "interval", c.opts.SweepInterval)
	for {
		select {
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				slog.Debug("[Cache] Swept expired entries", "removed", n, "remaining", c.Len())
			}
		case <-ctx.Done():
			slog.Info("[Cache] Stopping expiry sweeper")
			return
		}
	}
}
