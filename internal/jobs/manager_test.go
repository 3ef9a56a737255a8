package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slumber/pkg/lock"
)

type countingJob struct {
	name     string
	interval time.Duration
	delayed  bool
	runs     atomic.Int32
	err      error
}

func (j *countingJob) Name() string            { return j.name }
func (j *countingJob) Interval() time.Duration { return j.interval }
func (j *countingJob) SkipFirstRun() bool      { return j.delayed }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func TestManager_RunsImmediatelyAndOnTicks(t *testing.T) {
	m := NewManager(context.Background())
	job := &countingJob{name: "tick", interval: 20 * time.Millisecond}
	m.Register(job)
	m.Register(nil)
	assert.Equal(t, []string{"tick"}, m.Jobs())

	m.Start()
	m.Start()

	assert.Eventually(t, func() bool { return job.runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	m.Stop()
	m.Wait()

	stopped := job.runs.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, job.runs.Load())
}

func TestManager_DelayedJobSkipsFirstRun(t *testing.T) {
	m := NewManager(context.Background())
	job := &countingJob{name: "billing", interval: time.Hour, delayed: true}
	m.Register(job)
	m.Start()

	time.Sleep(30 * time.Millisecond)
	m.Stop()
	m.Wait()
	assert.Equal(t, int32(0), job.runs.Load())
}

func TestManager_FailingJobKeepsRunning(t *testing.T) {
	m := NewManager(context.Background())
	job := &countingJob{name: "flaky", interval: 10 * time.Millisecond, err: errors.New("boom")}
	m.Register(job)
	m.Start()
	defer func() {
		m.Stop()
		m.Wait()
	}()

	assert.Eventually(t, func() bool { return job.runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestWithLock_OnlyHolderRuns(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	ctx := context.Background()

	other := lock.NewRedisLock(client, "sweep:idle")
	acquired, err := other.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	job := &countingJob{name: "idle-sweep", interval: time.Minute}
	locked := WithLock(job, lock.NewRedisLock(client, "sweep:idle"))

	require.NoError(t, locked.Run(ctx))
	assert.Equal(t, int32(0), job.runs.Load())

	require.NoError(t, other.Unlock(ctx))
	require.NoError(t, locked.Run(ctx))
	assert.Equal(t, int32(1), job.runs.Load())
	assert.False(t, mr.Exists("slumber:lock:sweep:idle"), "lock must be released after the run")
}

func TestWithLock_SingleInstanceAndDelayForwarding(t *testing.T) {
	job := &countingJob{name: "billing", interval: time.Minute, delayed: true}
	locked := WithLock(job, lock.NewRedisLock(nil, "sweep:billing"))

	require.NoError(t, locked.Run(context.Background()))
	assert.Equal(t, int32(1), job.runs.Load())

	delayed, ok := locked.(DelayedJob)
	require.True(t, ok)
	assert.True(t, delayed.SkipFirstRun())
	assert.Equal(t, "billing", locked.Name())
}
