// Package mediacache caches aggregated media bundles so repeated lookups of
// popular characters never refetch from providers within the freshness
// window. Concurrent cache misses for the same key are coalesced into a
// single upstream fetch, expired entries are served stale while a background
// refresh runs, and total provider failures are remembered briefly so a
// broken upstream isn't hammered.
package mediacache

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/soratane/chardex-go/internal/conf"
	"github.com/soratane/chardex-go/internal/errors"
	"github.com/soratane/chardex-go/internal/logging"
	"github.com/soratane/chardex-go/internal/media"
	"github.com/soratane/chardex-go/internal/observability"
	"golang.org/x/sync/singleflight"
)

// ErrUnavailable reports that every provider failed and no stale bundle was
// available to fall back to. It is distinct from a successful empty bundle,
// which means the character genuinely has no media.
var ErrUnavailable = errors.NewStd("media temporarily unavailable")

// Fetcher produces a fresh bundle from the upstream providers.
type Fetcher interface {
	Aggregate(ctx context.Context, identity media.CharacterIdentity, categories []media.Category) (*media.Bundle, error)
}

// Config holds the cache tuning knobs.
type Config struct {
	TTL          time.Duration // freshness window
	NegativeTTL  time.Duration // how long total failures are remembered
	RefreshGrace time.Duration // how long past TTL a stale bundle may still be served
	Capacity     int           // max cached bundles before eviction
}

// FromSettings converts configuration file settings into a Config.
func FromSettings(s conf.CacheSettings) Config {
	return Config{
		TTL:          s.TTL,
		NegativeTTL:  s.NegativeTTL,
		RefreshGrace: s.RefreshGrace,
		Capacity:     s.Capacity,
	}
}

// entry is one cached bundle. generation increments on every successful
// store so log lines can tell refreshes of the same key apart.
type entry struct {
	bundle     *media.Bundle
	fetchedAt  time.Time
	lastAccess time.Time
	generation uint64
}

// Cache is a capacity-bounded bundle cache with request coalescing.
// Safe for concurrent use.
type Cache struct {
	fetcher Fetcher
	cfg     Config
	metrics *observability.MediaMetrics
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry

	group    singleflight.Group
	negative *gocache.Cache

	// injectable for tests
	now func() time.Time
	// refreshing tracks in-flight background refreshes; tests wait on it.
	refreshing sync.WaitGroup
}

// New creates a Cache around fetcher. metrics may be nil.
func New(cfg Config, fetcher Fetcher, metrics *observability.MediaMetrics) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = 6 * time.Hour
	}
	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = 30 * time.Second
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 2048
	}
	return &Cache{
		fetcher:  fetcher,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logging.ForService("mediacache"),
		entries:  make(map[string]*entry),
		negative: gocache.New(cfg.NegativeTTL, cfg.NegativeTTL),
		now:      time.Now,
	}
}

// cacheKey builds a stable key from the character identity and the requested
// categories. Category order in the request must not affect the key.
func cacheKey(identity media.CharacterIdentity, categories []media.Category) string {
	cats := make([]string, len(categories))
	for i, c := range categories {
		cats[i] = string(c)
	}
	sort.Strings(cats)
	return identity.Key() + "?" + strings.Join(cats, ",")
}

// Get returns the bundle for the identity and categories, fetching from the
// providers on a miss. A fresh entry is returned as-is; an entry past its TTL
// but within the refresh grace is returned immediately while a background
// refresh replaces it; a total provider failure returns ErrUnavailable and is
// negative-cached.
func (c *Cache) Get(ctx context.Context, identity media.CharacterIdentity, categories []media.Category) (*media.Bundle, error) {
	key := cacheKey(identity, categories)

	if _, found := c.negative.Get(key); found {
		if c.metrics != nil {
			c.metrics.CacheNegativeHits.Inc()
		}
		c.logger.Debug("Negative cache hit", "key", key)
		return nil, ErrUnavailable
	}

	now := c.now()

	c.mu.Lock()
	e := c.entries[key]
	if e != nil {
		age := now.Sub(e.fetchedAt)
		switch {
		case age < c.cfg.TTL:
			e.lastAccess = now
			bundle := e.bundle
			c.mu.Unlock()
			if c.metrics != nil {
				c.metrics.CacheHits.Inc()
			}
			return bundle, nil
		case age < c.cfg.TTL+c.cfg.RefreshGrace:
			e.lastAccess = now
			bundle := e.bundle
			generation := e.generation
			c.mu.Unlock()
			if c.metrics != nil {
				c.metrics.CacheStaleServes.Inc()
			}
			c.logger.Debug("Serving stale bundle while refreshing",
				"key", key, "age", age, "generation", generation)
			c.refreshInBackground(key, identity, categories)
			return bundle, nil
		}
		// Beyond the grace period the entry is useless; fall through to a
		// blocking fetch.
	}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.CacheMisses.Inc()
	}
	return c.fetch(ctx, key, identity, categories)
}

// fetch runs the upstream aggregation under singleflight so concurrent
// misses for the same key share one provider fan-out.
func (c *Cache) fetch(ctx context.Context, key string, identity media.CharacterIdentity, categories []media.Category) (*media.Bundle, error) {
	v, err, shared := c.group.Do(key, func() (any, error) {
		return c.refresh(ctx, key, identity, categories)
	})
	if shared && c.metrics != nil {
		c.metrics.CoalescedCallers.Inc()
	}
	if err != nil {
		return nil, err
	}
	return v.(*media.Bundle), nil
}

// refresh performs the actual upstream fetch and stores the result. On a
// total provider failure it falls back to any stale-but-graceable entry
// before negative-caching the key.
func (c *Cache) refresh(ctx context.Context, key string, identity media.CharacterIdentity, categories []media.Category) (*media.Bundle, error) {
	bundle, err := c.fetcher.Aggregate(ctx, identity, categories)
	if err != nil {
		c.mu.Lock()
		e := c.entries[key]
		if e != nil && c.now().Sub(e.fetchedAt) < c.cfg.TTL+c.cfg.RefreshGrace {
			stale := e.bundle
			c.mu.Unlock()
			if c.metrics != nil {
				c.metrics.CacheStaleServes.Inc()
			}
			c.logger.Warn("Providers unavailable, serving stale bundle", "key", key, "error", err)
			return stale, nil
		}
		c.mu.Unlock()

		// A fetch abandoned because the caller went away says nothing
		// about provider health; only genuine total failures are
		// negative-cached.
		if ctx.Err() != nil {
			return nil, err
		}

		c.negative.SetDefault(key, struct{}{})
		c.logger.Warn("Providers unavailable, negative caching", "key", key,
			"ttl", c.cfg.NegativeTTL, "error", err)
		enhanced := errors.New(err).
			Component("mediacache").
			Category(errors.CategoryMediaCache).
			Context("cache_key", key).
			Build()
		return nil, errors.Join(ErrUnavailable, enhanced)
	}

	c.store(key, bundle)
	return bundle, nil
}

// refreshInBackground kicks off an asynchronous refresh for a stale entry.
// Duplicate refreshes for the same key coalesce via singleflight.
func (c *Cache) refreshInBackground(key string, identity media.CharacterIdentity, categories []media.Category) {
	c.refreshing.Add(1)
	go func() {
		defer c.refreshing.Done()
		_, err, _ := c.group.Do(key, func() (any, error) {
			return c.refresh(context.Background(), key, identity, categories)
		})
		if err != nil {
			c.logger.Warn("Background refresh failed", "key", key, "error", err)
		}
	}()
}

// store inserts or replaces the entry for key, evicting the least recently
// accessed entry if the cache is over capacity.
func (c *Cache) store(key string, bundle *media.Bundle) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var generation uint64 = 1
	if prev := c.entries[key]; prev != nil {
		generation = prev.generation + 1
	}
	c.entries[key] = &entry{
		bundle:     bundle,
		fetchedAt:  now,
		lastAccess: now,
		generation: generation,
	}
	c.logger.Debug("Stored bundle", "key", key, "items", bundle.Count(), "generation", generation)

	for len(c.entries) > c.cfg.Capacity {
		c.evictOldestLocked()
	}
}

// evictOldestLocked removes the least recently accessed entry. Caller holds mu.
func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.lastAccess.Before(oldest) {
			oldestKey = k
			oldest = e.lastAccess
		}
	}
	if oldestKey == "" {
		return
	}
	delete(c.entries, oldestKey)
	if c.metrics != nil {
		c.metrics.CacheEvictions.Inc()
	}
	c.logger.Debug("Evicted bundle", "key", oldestKey, "last_access", oldest)
}

// Invalidate drops the cached entry and any negative marker for the identity
// and categories.
func (c *Cache) Invalidate(identity media.CharacterIdentity, categories []media.Category) {
	key := cacheKey(identity, categories)
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	c.negative.Delete(key)
}

// Len reports the number of cached bundles.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// WaitRefreshes blocks until all in-flight background refreshes finish.
// Intended for tests and shutdown.
func (c *Cache) WaitRefreshes() {
	c.refreshing.Wait()
}
