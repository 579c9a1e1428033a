// Package schemacache keeps rendered datasource schema context in Redis so
// repeated runs skip a round of introspection calls. The cache is fully
// optional: a nil *Cache or an unreachable Redis just means every lookup
// misses.
package schemacache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "askdb:schema:"

type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New wraps a Redis client. ttl <= 0 defaults to ten minutes.
func New(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

// Get returns the cached schema context for a source key, or "" on miss.
func (c *Cache) Get(ctx context.Context, source string) string {
	if c == nil || c.rdb == nil {
		return ""
	}
	val, err := c.rdb.Get(ctx, keyPrefix+source).Result()
	if err != nil {
		return ""
	}
	return val
}

// Set stores schema context with the cache TTL. Errors are swallowed: a
// dead cache must never fail a run.
func (c *Cache) Set(ctx context.Context, source, schema string) {
	if c == nil || c.rdb == nil {
		return
	}
	_ = c.rdb.Set(ctx, keyPrefix+source, schema, c.ttl).Err()
}

// Invalidate drops a source's cached schema, for use after refresh_schema.
func (c *Cache) Invalidate(ctx context.Context, source string) {
	if c == nil || c.rdb == nil {
		return
	}
	_ = c.rdb.Del(ctx, keyPrefix+source).Err()
}
