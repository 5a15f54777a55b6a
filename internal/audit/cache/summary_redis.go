package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"custody/internal/audit/models"
)

const (
	summaryKeyPrefix  = "audit:summary:"
	defaultSummaryTTL = 30 * time.Second
)

// RedisSummaryCache shares computed summaries between server instances.
// Entries expire quickly; a stale summary is at most one TTL old.
type RedisSummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSummaryCache constructs the cache. A non-positive ttl selects 30s.
func NewRedisSummaryCache(client *redis.Client, ttl time.Duration) *RedisSummaryCache {
	if ttl <= 0 {
		ttl = defaultSummaryTTL
	}
	return &RedisSummaryCache{client: client, ttl: ttl}
}

// Get returns the cached summary for window, or nil on a miss.
func (c *RedisSummaryCache) Get(ctx context.Context, window string) (*models.Summary, error) {
	raw, err := c.client.Get(ctx, summaryKeyPrefix+window).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached summary: %w", err)
	}

	var summary models.Summary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, fmt.Errorf("decode cached summary: %w", err)
	}
	return &summary, nil
}

// Set stores summary under window with the cache TTL.
func (c *RedisSummaryCache) Set(ctx context.Context, window string, summary *models.Summary) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := c.client.Set(ctx, summaryKeyPrefix+window, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached summary: %w", err)
	}
	return nil
}
