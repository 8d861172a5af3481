package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bycarket/api/internal/models"
)

const searchCachePrefix = "postsearch:"

// SearchCache stores public listing pages in Redis keyed by a hash of the
// filter criteria. Only the public (non-admin, non-owner) query path is
// cached; authenticated scopes always hit the database.
type SearchCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSearchCache creates a SearchCache with the given TTL.
func NewSearchCache(rdb *redis.Client, ttl time.Duration) *SearchCache {
	return &SearchCache{rdb: rdb, ttl: ttl}
}

// Key derives a deterministic cache key from the criteria. The criteria must
// already have defaults applied so equivalent requests hash identically.
func (c *SearchCache) Key(criteria *models.FilterCriteria) (string, error) {
	raw, err := json.Marshal(criteria)
	if err != nil {
		return "", fmt.Errorf("failed to marshal criteria for cache key: %w", err)
	}
	sum := sha256.Sum256(raw)
	return searchCachePrefix + hex.EncodeToString(sum[:]), nil
}

// Get returns the cached page for the key, or (nil, nil) on a miss.
func (c *SearchCache) Get(ctx context.Context, key string) (*models.PostPage, error) {
	data, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis error reading search cache: %w", err)
	}
	var page models.PostPage
	if err := json.Unmarshal([]byte(data), &page); err != nil {
		// Treat a corrupt entry as a miss; it will be overwritten.
		return nil, nil
	}
	return &page, nil
}

// Set stores a page under the key with the configured TTL.
func (c *SearchCache) Set(ctx context.Context, key string, page *models.PostPage) error {
	raw, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to marshal page for search cache: %w", err)
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis error writing search cache: %w", err)
	}
	return nil
}

// Invalidate drops every cached search page. Called after post mutations that
// change public visibility (approve, reject, activate, deactivate, sold,
// delete).
func (c *SearchCache) Invalidate(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, searchCachePrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis error scanning search cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis error invalidating search cache: %w", err)
	}
	return nil
}
