package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	idleKeyPrefix = "slumber:idle:" // low-activity window start per workload (unix millis)
)

// ActivityRepository keeps the start of each workload's low-activity window in Redis
// so that every orchestrator replica sees the same window
type ActivityRepository struct {
	redis *redis.Client
}

// NewActivityRepository creates activity repository
func NewActivityRepository(client *redis.Client) *ActivityRepository {
	return &ActivityRepository{redis: client}
}

// MarkLow opens a low-activity window at `at` unless one is already open, and
// returns the window start. ttl bounds how long the window survives without
// another low observation.
func (r *ActivityRepository) MarkLow(ctx context.Context, workloadID string, at time.Time, ttl time.Duration) (time.Time, error) {
	key := idleKeyPrefix + workloadID

	created, err := r.redis.SetNX(ctx, key, at.UnixMilli(), ttl).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to mark low activity: %w", err)
	}
	if created {
		return at, nil
	}

	pipe := r.redis.TxPipeline()
	get := pipe.Get(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return time.Time{}, fmt.Errorf("failed to read low activity window: %w", err)
	}

	millis, err := get.Int64()
	if err == redis.Nil {
		// expired between SETNX and GET; start over
		if err := r.redis.Set(ctx, key, at.UnixMilli(), ttl).Err(); err != nil {
			return time.Time{}, fmt.Errorf("failed to mark low activity: %w", err)
		}
		return at, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse low activity window: %w", err)
	}
	return time.UnixMilli(millis), nil
}

// Reset closes the low-activity window of a workload
func (r *ActivityRepository) Reset(ctx context.Context, workloadID string) error {
	if err := r.redis.Del(ctx, idleKeyPrefix+workloadID).Err(); err != nil {
		return fmt.Errorf("failed to reset low activity window: %w", err)
	}
	return nil
}
