// Package lock provides the Redis lock that keeps periodic sweeps single-writer
// across orchestrator replicas.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"slumber/pkg/logger"
)

const (
	defaultTTL      = 30 * time.Second
	acquireTimeout  = 5 * time.Second
	renewInterval   = 10 * time.Second
	maxHoldDuration = 10 * time.Minute
	keyPrefix       = "slumber:lock:"
)

var (
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	renewScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// DistributedLock is a non-blocking mutual exclusion primitive
type DistributedLock interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
	IsHeld() bool
	Key() string
}

// RedisLock is a SET NX lock with owner-checked release and background renewal.
// A nil client degrades to single-instance mode where TryLock always succeeds.
type RedisLock struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration

	mu         sync.Mutex
	held       bool
	acquiredAt time.Time
	stopRenew  chan struct{}
}

var _ DistributedLock = (*RedisLock)(nil)

// NewRedisLock creates a lock named name
func NewRedisLock(client *redis.Client, name string) *RedisLock {
	return &RedisLock{
		client: client,
		key:    keyPrefix + name,
		owner:  uuid.NewString(),
		ttl:    defaultTTL,
	}
}

// Key returns the Redis key guarding this lock
func (l *RedisLock) Key() string {
	return l.key
}

// TryLock attempts to take the lock without waiting
func (l *RedisLock) TryLock(ctx context.Context) (bool, error) {
	if l.client == nil {
		l.mu.Lock()
		l.held = true
		l.mu.Unlock()
		return true, nil
	}

	acquireCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()

	ok, err := l.client.SetNX(acquireCtx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	if !ok {
		logger.DebugCtx(ctx, "lock %s held by another instance", l.key)
		return false, nil
	}

	stop := make(chan struct{})
	l.mu.Lock()
	l.held = true
	l.acquiredAt = time.Now()
	l.stopRenew = stop
	l.mu.Unlock()

	go l.renew(ctx, stop)
	return true, nil
}

// Unlock releases the lock if this instance still owns it
func (l *RedisLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	if !l.held && l.stopRenew == nil {
		l.mu.Unlock()
		return nil
	}
	l.held = false
	if l.stopRenew != nil {
		close(l.stopRenew)
		l.stopRenew = nil
	}
	l.mu.Unlock()

	if l.client == nil {
		return nil
	}

	released, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if released == 0 {
		logger.WarnCtx(ctx, "lock %s expired or was taken over before release", l.key)
	}
	return nil
}

// IsHeld reports whether this instance believes it owns the lock
func (l *RedisLock) IsHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

func (l *RedisLock) renew(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		l.mu.Lock()
		held := time.Since(l.acquiredAt)
		l.mu.Unlock()
		if held > maxHoldDuration {
			logger.WarnCtx(ctx, "lock %s held for %.0fs, no longer renewing", l.key, held.Seconds())
			l.markLost()
			return
		}

		ok, err := renewScript.Run(ctx, l.client, []string{l.key}, l.owner, l.ttl.Milliseconds()).Int64()
		if err != nil || ok == 0 {
			logger.WarnCtx(ctx, "lock %s lost during renewal: %v", l.key, err)
			l.markLost()
			return
		}
	}
}

// markLost flips the held flag; the stop channel is left for Unlock to close
func (l *RedisLock) markLost() {
	l.mu.Lock()
	l.held = false
	l.mu.Unlock()
}
