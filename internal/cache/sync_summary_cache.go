package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/GTDGit/gtd_catalog/internal/models"
)

// lastSyncTTL keeps the last summary around long enough for weekly checks.
const lastSyncTTL = 7 * 24 * time.Hour

// SyncSummaryCache stores the last sync summary of each provider.
type SyncSummaryCache struct {
	redis *RedisClient
}

// NewSyncSummaryCache creates a new SyncSummaryCache.
func NewSyncSummaryCache(redis *RedisClient) *SyncSummaryCache {
	return &SyncSummaryCache{redis: redis}
}

func (c *SyncSummaryCache) key(provider string) string {
	return fmt.Sprintf("catalog:sync:last:%s", provider)
}

// SaveLastSync overwrites the cached summary of summary.Provider.
func (c *SyncSummaryCache) SaveLastSync(ctx context.Context, summary *models.SyncSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal sync summary: %w", err)
	}
	return c.redis.Set(ctx, c.key(summary.Provider), string(data), lastSyncTTL)
}

// LastSync returns the cached summary of provider, or nil when none exists.
func (c *SyncSummaryCache) LastSync(ctx context.Context, provider string) (*models.SyncSummary, error) {
	raw, err := c.redis.Get(ctx, c.key(provider))
	if errors.Is(err, ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var summary models.SyncSummary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		return nil, fmt.Errorf("unmarshal sync summary: %w", err)
	}
	return &summary, nil
}
