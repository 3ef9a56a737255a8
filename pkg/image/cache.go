// Package image remembers which images were pulled recently so wakes can skip
// the registry round trip.
package image

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// DefaultPullTTL is how long a successful pull is trusted
	DefaultPullTTL = 10 * time.Minute

	cacheKeyPrefix = "slumber:image:pulled:"
)

// PullCache records successful pulls per image reference.
// Redis is used when configured so replicas share the record; the in-memory
// map is always written and serves as the fallback.
type PullCache struct {
	mu    sync.RWMutex
	items map[string]time.Time // ref -> expiry

	redisClient *redis.Client
	ttl         time.Duration
	now         func() time.Time
}

// NewPullCache creates a memory-only cache. A non-positive ttl uses DefaultPullTTL.
func NewPullCache(ttl time.Duration) *PullCache {
	if ttl <= 0 {
		ttl = DefaultPullTTL
	}
	return &PullCache{
		items: make(map[string]time.Time),
		ttl:   ttl,
		now:   time.Now,
	}
}

// WithRedis adds Redis as the shared store
func (c *PullCache) WithRedis(client *redis.Client) *PullCache {
	c.redisClient = client
	return c
}

func generateCacheKey(ref string) string {
	hash := sha256.Sum256([]byte(ref))
	return cacheKeyPrefix + hex.EncodeToString(hash[:])
}

// Fresh reports whether ref was pulled within the TTL.
// Refs pinned by digest never change and are always fresh once seen.
func (c *PullCache) Fresh(ctx context.Context, ref string) bool {
	if c.freshInMemory(ref) {
		return true
	}
	if c.redisClient == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	n, err := c.redisClient.Exists(ctx, generateCacheKey(ref)).Result()
	if err != nil || n == 0 {
		return false
	}
	c.setInMemory(ref)
	return true
}

func (c *PullCache) freshInMemory(ref string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	expiresAt, ok := c.items[ref]
	if !ok {
		return false
	}
	if isDigestRef(ref) {
		return true
	}
	return c.now().Before(expiresAt)
}

// MarkPulled records a successful pull of ref
func (c *PullCache) MarkPulled(ctx context.Context, ref string) {
	if c.redisClient != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		// memory is the fallback, so a redis failure is ignored
		_ = c.redisClient.Set(ctx, generateCacheKey(ref), c.now().Unix(), c.ttl).Err()
		cancel()
	}
	c.setInMemory(ref)
}

func (c *PullCache) setInMemory(ref string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[ref] = c.now().Add(c.ttl)
}

// Forget drops ref, e.g. after the runtime reported the image missing
func (c *PullCache) Forget(ctx context.Context, ref string) {
	if c.redisClient != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_ = c.redisClient.Del(ctx, generateCacheKey(ref)).Err()
		cancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, ref)
}

// RemoveExpired drops expired in-memory entries. Redis expires keys itself.
func (c *PullCache) RemoveExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for ref, expiresAt := range c.items {
		if !isDigestRef(ref) && now.After(expiresAt) {
			delete(c.items, ref)
		}
	}
}

// Size returns the number of in-memory entries
func (c *PullCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// HasRedis returns true if Redis is configured for this cache.
func (c *PullCache) HasRedis() bool {
	return c.redisClient != nil
}

func isDigestRef(ref string) bool {
	return strings.Contains(ref, "@sha256:")
}
