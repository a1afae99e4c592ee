// internal/search/cache/cache.go
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"search-orchestrator/internal/common/logger"
	"search-orchestrator/internal/common/metrics"
	"search-orchestrator/internal/models"
)

// TTLPolicy picks the shared-tier TTL per query shape.
type TTLPolicy struct {
	Browse       time.Duration // query-less browse requests
	Popular      time.Duration // very popular queries (> PopularFloor results)
	Geo          time.Duration // geo-anchored queries, relevance is location-sensitive
	PopularFloor int
}

// DefaultTTLPolicy mirrors production tuning.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Browse:       10 * time.Minute,
		Popular:      15 * time.Minute,
		Geo:          1 * time.Minute,
		PopularFloor: 100,
	}
}

// TTLFor resolves the shared-tier TTL for a request and its result size.
// Geo-anchored queries get the short TTL even when popular; stale nearby
// results degrade trust faster than stale browse pages.
func (p TTLPolicy) TTLFor(req *models.SearchRequest, resultCount int) time.Duration {
	if req.Filters.HasGeo() {
		return p.Geo
	}
	if strings.TrimSpace(req.Query) == "" {
		return p.Browse
	}
	if resultCount > p.PopularFloor {
		return p.Popular
	}
	return p.Browse
}

type localEntry struct {
	payload []byte
	expiry  time.Time
}

// Cache is the two-tier search cache: a short-lived process-local tier
// absorbing bursts of identical requests, backed by a shared Redis tier.
type Cache struct {
	rdb      redis.Cmdable
	logger   logger.Logger
	policy   TTLPolicy
	localTTL time.Duration

	mu    sync.RWMutex
	local map[string]localEntry
}

func New(rdb redis.Cmdable, policy TTLPolicy, localTTL time.Duration, log logger.Logger) *Cache {
	return &Cache{
		rdb:      rdb,
		logger:   log.WithFields(map[string]interface{}{"component": "search-cache"}),
		policy:   policy,
		localTTL: localTTL,
		local:    make(map[string]localEntry),
	}
}

// Get returns the cached payload for key, or (nil, false). Redis failures
// are logged and reported as a miss; callers degrade to a live query.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	entry, ok := c.local[key]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiry) {
		metrics.CacheLookups.WithLabelValues("local", "hit").Inc()
		return entry.payload, true
	}
	metrics.CacheLookups.WithLabelValues("local", "miss").Inc()

	payload, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Warn("shared cache read failed, degrading to live query", nil)
		}
		metrics.CacheLookups.WithLabelValues("shared", "miss").Inc()
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("shared", "hit").Inc()

	// Promote into the local tier for the current request wave.
	c.setLocal(key, payload)
	return payload, true
}

// Set writes the payload to both tiers. TTL is resolved by the policy.
func (c *Cache) Set(ctx context.Context, key string, payload []byte, req *models.SearchRequest, resultCount int) {
	c.setLocal(key, payload)

	ttl := c.policy.TTLFor(req, resultCount)
	if err := c.rdb.Set(ctx, key, payload, ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("shared cache write failed", map[string]interface{}{
			"ttl": ttl.String(),
		})
	}
}

func (c *Cache) setLocal(key string, payload []byte) {
	c.mu.Lock()
	c.local[key] = localEntry{payload: payload, expiry: time.Now().Add(c.localTTL)}
	c.mu.Unlock()
}

// InvalidatePattern deletes every shared-tier key whose serialized form
// contains the substring, and clears matching local entries. Used when an
// entity is known to have changed.
func (c *Cache) InvalidatePattern(ctx context.Context, substring string) int {
	c.mu.Lock()
	for key := range c.local {
		if strings.Contains(key, substring) {
			delete(c.local, key)
		}
	}
	c.mu.Unlock()

	deleted := 0
	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if !strings.Contains(key, substring) {
			continue
		}
		if err := c.rdb.Del(ctx, key).Err(); err != nil {
			c.logger.WithError(err).Warn("cache invalidation delete failed", map[string]interface{}{
				"key": key,
			})
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		c.logger.WithError(err).Warn("cache invalidation scan failed", nil)
	}
	return deleted
}

// Prune drops expired local-tier entries.
func (c *Cache) Prune() {
	now := time.Now()
	c.mu.Lock()
	for key, entry := range c.local {
		if now.After(entry.expiry) {
			delete(c.local, key)
		}
	}
	c.mu.Unlock()
}

// RunPruner prunes the local tier on a fixed interval until ctx is
// cancelled.
func (c *Cache) RunPruner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Prune()
		}
	}
}

// LocalSize returns the current local-tier entry count.
func (c *Cache) LocalSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.local)
}
