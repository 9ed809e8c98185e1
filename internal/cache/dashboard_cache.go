// Package cache keeps computed dashboard summaries in Redis and drops them
// whenever an event says the underlying figures moved.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"go-inventory-ledger/internal/event"
	"go-inventory-ledger/internal/model"
)

const (
	summaryKeyPrefix = "dashboard:summary:"
	generationKey    = "dashboard:generation"
)

type DashboardCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewDashboardCache(client *redis.Client, ttl time.Duration, log *zap.Logger) *DashboardCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &DashboardCache{client: client, ttl: ttl, log: log.Named("cache")}
}

// NewClient opens a Redis client and checks it responds
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func summaryKey(generation int64, window time.Duration) string {
	return fmt.Sprintf("%s%d:%s", summaryKeyPrefix, generation, window)
}

func (c *DashboardCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// GetSummary returns the cached summary for window along with the generation
// it was looked up under. A negative generation means the cache is unusable.
func (c *DashboardCache) GetSummary(ctx context.Context, window time.Duration) (*model.DashboardSummary, int64, bool) {
	gen, err := c.generation(ctx)
	if err != nil {
		c.log.Warn("summary generation read failed", zap.Error(err))
		return nil, -1, false
	}

	raw, err := c.client.Get(ctx, summaryKey(gen, window)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("summary read failed", zap.Error(err))
		}
		return nil, gen, false
	}

	var summary model.DashboardSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		c.log.Warn("discarding unreadable summary", zap.Error(err))
		return nil, gen, false
	}
	return &summary, gen, true
}

// SetSummary stores summary under the generation it was computed in. If an
// invalidation happened meanwhile the entry is written to a retired
// generation and never read.
func (c *DashboardCache) SetSummary(ctx context.Context, window time.Duration, generation int64, summary *model.DashboardSummary) {
	if generation < 0 {
		return
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, summaryKey(generation, window), raw, c.ttl).Err(); err != nil {
		c.log.Warn("summary write failed", zap.Error(err))
	}
}

// Invalidate retires every cached summary by starting a new generation. Old
// entries expire with their TTL.
func (c *DashboardCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, generationKey).Err()
}

// Publish makes the cache an event sink
func (c *DashboardCache) Publish(ctx context.Context, e event.Event) error {
	if !e.Type.InvalidatesDashboard() {
		return nil
	}
	return c.Invalidate(ctx)
}
