package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestRedisLock_AcquireRelease(t *testing.T) {
	client, mr := newTestClient(t)
	l := NewRedisLock(client, "sweep:idle")
	ctx := context.Background()

	acquired, err := l.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.True(t, l.IsHeld())
	assert.True(t, mr.Exists("slumber:lock:sweep:idle"))

	require.NoError(t, l.Unlock(ctx))
	assert.False(t, l.IsHeld())
	assert.False(t, mr.Exists("slumber:lock:sweep:idle"))
}

func TestRedisLock_ExcludesOtherReplicas(t *testing.T) {
	client, _ := newTestClient(t)
	first := NewRedisLock(client, "sweep:billing")
	second := NewRedisLock(client, "sweep:billing")
	ctx := context.Background()

	acquired, err := first.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, acquired, "second replica must not take a held lock")

	require.NoError(t, first.Unlock(ctx))

	acquired, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, second.Unlock(ctx))
}

func TestRedisLock_ExpiresAfterTTL(t *testing.T) {
	client, mr := newTestClient(t)
	first := NewRedisLock(client, "sweep:expire")
	second := NewRedisLock(client, "sweep:expire")
	ctx := context.Background()

	acquired, err := first.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	mr.FastForward(defaultTTL + time.Second)

	acquired, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)

	// the stale owner must not delete the new owner's key
	require.NoError(t, first.Unlock(ctx))
	assert.True(t, mr.Exists(second.Key()))
	require.NoError(t, second.Unlock(ctx))
}

func TestRedisLock_NilClientRunsSingleInstance(t *testing.T) {
	l := NewRedisLock(nil, "sweep:nil")
	ctx := context.Background()

	acquired, err := l.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.True(t, l.IsHeld())

	require.NoError(t, l.Unlock(ctx))
	assert.False(t, l.IsHeld())
}

func TestRedisLock_ReacquireAfterUnlock(t *testing.T) {
	client, _ := newTestClient(t)
	l := NewRedisLock(client, "sweep:cycle")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		acquired, err := l.TryLock(ctx)
		require.NoError(t, err)
		require.True(t, acquired, "cycle %d", i)
		require.NoError(t, l.Unlock(ctx))
	}
}

func TestRedisLock_DoubleUnlockIsSafe(t *testing.T) {
	client, _ := newTestClient(t)
	l := NewRedisLock(client, "sweep:double")
	ctx := context.Background()

	_, err := l.TryLock(ctx)
	require.NoError(t, err)
	require.NoError(t, l.Unlock(ctx))
	assert.NoError(t, l.Unlock(ctx))
}
