// internal/cache/cache.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	stderrors "insight-orchestrator/internal/common/errors"
	"insight-orchestrator/internal/common/logger"
	"insight-orchestrator/internal/common/metrics"
)

// Cache categories. Each category carries its own freshness window.
const (
	CategoryPricing     = "pricing"
	CategorySentiment   = "sentiment"
	CategoryForecast    = "forecast"
	CategoryQueryResult = "query_result"
)

// Envelope is the wire format stored in the backing store.
type Envelope struct {
	Data     json.RawMessage `json:"data"`
	CachedAt time.Time       `json:"cached_at"`
}

type memEntry struct {
	payload  []byte
	cachedAt time.Time
}

// Metrics is a point-in-time snapshot of cache counters.
type Metrics struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Stale         uint64 `json:"stale"`
	Invalidated   uint64 `json:"invalidated"`
	StoreEvicted  uint64 `json:"storeEvicted"`  // LRU evictions reported by the backing store
	FallbackReads uint64 `json:"fallbackReads"` // reads served by the in-memory fallback
}

// Cache is a tenant-isolated, freshness-windowed cache over Redis with an
// optional in-memory fallback. Keys are composed as
// "category:tenant:identifier", so cross-tenant collisions are structurally
// impossible. An entry whose age has reached its category threshold is
// treated as stale, not missing; stale reads return a miss without deleting
// the entry (lazy invalidation).
type Cache struct {
	rdb            *redis.Client
	ttls           map[string]time.Duration
	memoryFallback bool
	logger         logger.Logger
	now            func() time.Time

	mu    sync.RWMutex
	mem   map[string]memEntry
	stats Metrics
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock injects a clock, used by tests to pin freshness boundaries.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMemoryFallback enables the in-memory map used when Redis is
// unavailable. Freshness semantics are identical to the backing store.
func WithMemoryFallback() Option {
	return func(c *Cache) { c.memoryFallback = true }
}

// New creates a Cache. rdb may be nil, in which case the memory fallback is
// enabled unconditionally.
func New(rdb *redis.Client, ttls map[string]time.Duration, log logger.Logger, opts ...Option) *Cache {
	c := &Cache{
		rdb:  rdb,
		ttls: ttls,
		logger: log.With(map[string]interface{}{
			"component": "cache",
		}),
		now: time.Now,
		mem: make(map[string]memEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rdb == nil {
		c.memoryFallback = true
	}
	return c
}

// DefaultTTLs returns the per-category freshness windows.
func DefaultTTLs() map[string]time.Duration {
	return map[string]time.Duration{
		CategoryPricing:     time.Hour,
		CategorySentiment:   24 * time.Hour,
		CategoryForecast:    12 * time.Hour,
		CategoryQueryResult: time.Hour,
	}
}

// Key composes the canonical cache key for a category, tenant and identifier.
func Key(category, tenant, id string) string {
	return fmt.Sprintf("%s:%s:%s", category, tenant, id)
}

func validateKeyPart(tenant, id string) error {
	if strings.Contains(tenant, ":") || strings.Contains(id, ":") {
		return stderrors.NewTenantIsolationViolationError(tenant, id)
	}
	return nil
}

// TTLFor returns the freshness window for a category. Unknown categories get
// the query-result window.
func (c *Cache) TTLFor(category string) time.Duration {
	if ttl, ok := c.ttls[category]; ok {
		return ttl
	}
	return c.ttls[CategoryQueryResult]
}

// Get returns the payload for (category, tenant, id), or a miss when absent
// or stale. The staleness boundary is inclusive: age >= threshold is stale.
func (c *Cache) Get(ctx context.Context, category, tenant, id string) (json.RawMessage, bool, error) {
	if err := validateKeyPart(tenant, id); err != nil {
		return nil, false, err
	}
	return c.GetRaw(ctx, Key(category, tenant, id))
}

// GetRaw resolves a full "category:tenant:identifier" key with the same
// freshness semantics as Get.
func (c *Cache) GetRaw(ctx context.Context, key string) (json.RawMessage, bool, error) {
	category := categoryOf(key)
	threshold := c.TTLFor(category)

	raw, found, err := c.readBackingStore(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !found {
		c.count(func(m *Metrics) { m.Misses++ })
		metrics.CacheOperations.WithLabelValues(category, "miss").Inc()
		return nil, false, nil
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.count(func(m *Metrics) { m.Misses++ })
		metrics.CacheOperations.WithLabelValues(category, "miss").Inc()
		return nil, false, nil
	}

	age := c.now().Sub(env.CachedAt)
	if age >= threshold {
		// Stale, not missing. The entry stays until overwritten or invalidated.
		c.count(func(m *Metrics) { m.Stale++ })
		metrics.CacheOperations.WithLabelValues(category, "stale").Inc()
		c.logger.Debug("stale cache entry", map[string]interface{}{
			"key":       key,
			"age":       age.String(),
			"threshold": threshold.String(),
		})
		return nil, false, nil
	}

	c.count(func(m *Metrics) { m.Hits++ })
	metrics.CacheOperations.WithLabelValues(category, "hit").Inc()
	return env.Data, true, nil
}

// Set stores a payload under (category, tenant, id) with the category's
// default freshness window.
func (c *Cache) Set(ctx context.Context, category, tenant, id string, payload interface{}) error {
	return c.SetWithTTL(ctx, category, tenant, id, payload, 0)
}

// SetWithTTL stores a payload with an explicit freshness window; ttl <= 0
// falls back to the category default.
func (c *Cache) SetWithTTL(ctx context.Context, category, tenant, id string, payload interface{}, ttl time.Duration) error {
	if err := validateKeyPart(tenant, id); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = c.TTLFor(category)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal cache payload: %w", err)
	}
	env := Envelope{Data: data, CachedAt: c.now().UTC()}
	envBytes, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal cache envelope: %w", err)
	}

	key := Key(category, tenant, id)

	if c.rdb != nil {
		// The store enforces the TTL in seconds; the freshness check above
		// re-validates it logically on read.
		if err := c.rdb.Set(ctx, key, envBytes, ttl).Err(); err != nil {
			if !c.memoryFallback {
				return stderrors.NewCacheFailureError(err)
			}
			c.logger.Warn("redis set failed, writing to memory fallback", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		} else {
			return nil
		}
	}

	c.mu.Lock()
	c.mem[key] = memEntry{payload: envBytes, cachedAt: env.CachedAt}
	c.mu.Unlock()
	return nil
}

// Invalidate bulk-deletes every key matching a glob pattern such as
// "pricing:acme:*" and returns the number of removed entries. Patterns are
// tenant-scoped by construction; keys of other tenants never match.
func (c *Cache) Invalidate(ctx context.Context, pattern string) (int, error) {
	removed := 0

	if c.rdb != nil {
		iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			if !c.memoryFallback {
				return 0, stderrors.NewCacheFailureError(err)
			}
			c.logger.Warn("redis scan failed, invalidating memory fallback only", map[string]interface{}{
				"pattern": pattern,
				"error":   err.Error(),
			})
		} else if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return 0, stderrors.NewCacheFailureError(err)
			}
			removed += len(keys)
		}
	}

	if c.memoryFallback {
		re, err := globToRegexp(pattern)
		if err != nil {
			return removed, err
		}
		c.mu.Lock()
		for key := range c.mem {
			if re.MatchString(key) {
				delete(c.mem, key)
				removed++
			}
		}
		c.mu.Unlock()
	}

	c.count(func(m *Metrics) { m.Invalidated += uint64(removed) })
	return removed, nil
}

// Snapshot returns current cache counters. Eviction counts come from the
// backing store (LRU victims are chosen there, not here).
func (c *Cache) Snapshot(ctx context.Context) Metrics {
	c.mu.RLock()
	snap := c.stats
	c.mu.RUnlock()

	if c.rdb != nil {
		if info, err := c.rdb.Info(ctx, "stats").Result(); err == nil {
			snap.StoreEvicted = parseEvictedKeys(info)
		}
	}
	return snap
}

func (c *Cache) readBackingStore(ctx context.Context, key string) ([]byte, bool, error) {
	if c.rdb != nil {
		val, err := c.rdb.Get(ctx, key).Bytes()
		if err == nil {
			return val, true, nil
		}
		if err == redis.Nil {
			return nil, false, nil
		}
		if !c.memoryFallback {
			return nil, false, stderrors.NewCacheFailureError(err)
		}
		c.logger.Warn("redis get failed, reading memory fallback", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}

	c.mu.RLock()
	entry, ok := c.mem[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	c.count(func(m *Metrics) { m.FallbackReads++ })
	return entry.payload, true, nil
}

func (c *Cache) count(update func(*Metrics)) {
	c.mu.Lock()
	update(&c.stats)
	c.mu.Unlock()
}

func categoryOf(key string) string {
	if idx := strings.Index(key, ":"); idx > 0 {
		return key[:idx]
	}
	return key
}

// globToRegexp translates a redis glob pattern into an anchored regexp for
// the memory fallback.
func globToRegexp(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}

func parseEvictedKeys(info string) uint64 {
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "evicted_keys:") {
			n, err := strconv.ParseUint(strings.TrimPrefix(line, "evicted_keys:"), 10, 64)
			if err == nil {
				return n
			}
		}
	}
	return 0
}
