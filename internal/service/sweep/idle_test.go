package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slumber/internal/model"
	"slumber/internal/service/lifecycle"
	"slumber/pkg/config"
	redisstore "slumber/pkg/store/redis"
)

var idleCfg = config.IdleSweepConfig{
	Enabled:      true,
	Interval:     5 * time.Minute,
	CPUThreshold: 5,
	IdleWindow:   15 * time.Minute,
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newIdleFixture(tracker ActivityTracker, readings []float64) (*IdleSweeper, *fakeLifecycle, *clock) {
	workloads := &memWorkloads{items: []*model.Workload{{
		ID:               "w1",
		AccountID:        "acct",
		State:            model.StateRunning,
		WorkloadHandle:   "c-w1",
		AutoSleepEnabled: true,
	}}}
	lc := &fakeLifecycle{workloads: workloads}
	sampler := &scriptedSampler{readings: map[string][]float64{"c-w1": readings}}

	s := NewIdleSweeper(workloads, sampler, lc, tracker, nil, idleCfg)
	c := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	s.now = c.now
	return s, lc, c
}

// runTicks runs one sweep per reading, five minutes apart, and returns the
// tick index at which the workload was hibernated, or -1
func runTicks(t *testing.T, s *IdleSweeper, lc *fakeLifecycle, c *clock, n int) int {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, s.Run(context.Background()))
		if len(lc.hibernated) > 0 {
			return i
		}
		c.t = c.t.Add(idleCfg.Interval)
	}
	return -1
}

func TestIdleSweeper_HighReadingRestartsWindow(t *testing.T) {
	// t=0,5 low; t=10 high; t=15..30 low. The window restarts at 15 and
	// completes at 30.
	readings := []float64{1, 1, 50, 1, 1, 1, 1}
	s, lc, c := newIdleFixture(NewMemoryTracker(), readings)

	tick := runTicks(t, s, lc, c, len(readings))
	assert.Equal(t, 6, tick)
	assert.Equal(t, []string{lifecycle.ReasonIdle}, lc.reasons)
	assert.Contains(t, lc.activity, "w1", "the high reading counts as activity")
}

func TestIdleSweeper_ContinuousLowHibernatesAfterWindow(t *testing.T) {
	s, lc, c := newIdleFixture(NewMemoryTracker(), []float64{0, 0, 0, 0, 0})

	tick := runTicks(t, s, lc, c, 5)
	assert.Equal(t, 3, tick, "hibernate once 15 minutes of low readings are observed")
}

func TestIdleSweeper_RewakeStartsNewWindow(t *testing.T) {
	workloads := &memWorkloads{items: []*model.Workload{{
		ID: "w1", State: model.StateRunning, WorkloadHandle: "c-w1", AutoSleepEnabled: true,
	}}}
	lc := &fakeLifecycle{workloads: workloads}
	sampler := &scriptedSampler{readings: map[string][]float64{}}
	cfg := idleCfg
	cfg.Interval = time.Minute
	s := NewIdleSweeper(workloads, sampler, lc, NewMemoryTracker(), nil, cfg)
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := &clock{t: t0}
	s.now = c.now
	ctx := context.Background()

	// eleven low minutes while running
	for i := 0; i < 11; i++ {
		require.NoError(t, s.Run(ctx))
		c.t = c.t.Add(time.Minute)
	}
	require.Empty(t, lc.hibernated)

	// hibernated by someone else, asleep for one tick, then woken again
	// while the old window is still within its ttl
	workloads.setState("w1", model.StateSleeping)
	require.NoError(t, s.Run(ctx))
	c.t = c.t.Add(time.Minute)
	rewoke := c.t
	workloads.restart("w1", rewoke)

	for len(lc.hibernated) == 0 && c.t.Sub(rewoke) <= time.Hour {
		require.NoError(t, s.Run(ctx))
		if len(lc.hibernated) > 0 {
			break
		}
		c.t = c.t.Add(time.Minute)
	}
	require.Equal(t, []string{"w1"}, lc.hibernated)
	assert.GreaterOrEqual(t, c.t.Sub(rewoke), cfg.IdleWindow, "hibernated %s after the wake", c.t.Sub(rewoke))
	assert.Equal(t, cfg.IdleWindow, c.t.Sub(rewoke))
}

func TestIdleSweeper_RewakeStartsNewWindowRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s, lc, c := newIdleFixture(redisstore.NewActivityRepository(client), nil)
	c.t = time.UnixMilli(c.t.UnixMilli())
	workloads := lc.workloads
	ctx := context.Background()

	// three low ticks leave a window ten minutes old
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Run(ctx))
		c.t = c.t.Add(idleCfg.Interval)
	}
	require.Empty(t, lc.hibernated)

	rewoke := c.t.Add(-idleCfg.Interval / 2)
	workloads.restart("w1", rewoke)
	require.NoError(t, s.Run(ctx))
	assert.Empty(t, lc.hibernated, "the window restarted at the wake")
	assert.True(t, mr.Exists("slumber:idle:w1"))
}

func TestIdleSweeper_AutoSleepDisabled(t *testing.T) {
	workloads := &memWorkloads{items: []*model.Workload{{
		ID: "w1", State: model.StateRunning, WorkloadHandle: "c-w1",
	}}}
	lc := &fakeLifecycle{workloads: workloads}
	sampler := &scriptedSampler{readings: map[string][]float64{}}
	s := NewIdleSweeper(workloads, sampler, lc, nil, nil, idleCfg)
	c := &clock{t: time.Now()}
	s.now = c.now

	assert.Equal(t, -1, runTicks(t, s, lc, c, 10))
}

func TestIdleSweeper_SamplingErrorSkipsWorkload(t *testing.T) {
	workloads := &memWorkloads{items: []*model.Workload{
		{ID: "bad", State: model.StateRunning, WorkloadHandle: "c-bad", AutoSleepEnabled: true},
		{ID: "good", State: model.StateRunning, WorkloadHandle: "c-good", AutoSleepEnabled: true},
	}}
	lc := &fakeLifecycle{workloads: workloads}
	sampler := &scriptedSampler{
		readings: map[string][]float64{},
		fail:     map[string]bool{"c-bad": true},
	}
	cfg := idleCfg
	cfg.IdleWindow = 0
	s := NewIdleSweeper(workloads, sampler, lc, nil, nil, cfg)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{"good"}, lc.hibernated)
}

func TestIdleSweeper_HibernateFailureKeepsWindow(t *testing.T) {
	workloads := &memWorkloads{items: []*model.Workload{
		{ID: "w1", State: model.StateRunning, WorkloadHandle: "c-w1", AutoSleepEnabled: true},
	}}
	lc := &fakeLifecycle{workloads: workloads, failFor: map[string]bool{"w1": true}}
	sampler := &scriptedSampler{readings: map[string][]float64{}}
	tracker := NewMemoryTracker()
	cfg := idleCfg
	cfg.IdleWindow = 0
	s := NewIdleSweeper(workloads, sampler, lc, tracker, nil, cfg)

	require.NoError(t, s.Run(context.Background()))
	assert.Empty(t, lc.hibernated)

	// the next sweep retries
	lc.failFor = nil
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{"w1"}, lc.hibernated)
}

func TestIdleSweeper_SharedRedisWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s, lc, c := newIdleFixture(redisstore.NewActivityRepository(client), []float64{1, 1, 1, 1})
	c.t = time.UnixMilli(c.t.UnixMilli())

	tick := runTicks(t, s, lc, c, 4)
	assert.Equal(t, 3, tick)
	assert.False(t, mr.Exists("slumber:idle:w1"), "window is cleared after hibernating")
}

func TestMemoryTracker_WindowExpires(t *testing.T) {
	tr := NewMemoryTracker()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	start, err := tr.MarkLow(ctx, "w1", t0, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, t0, start)

	start, err = tr.MarkLow(ctx, "w1", t0.Add(30*time.Second), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, t0, start)

	later := t0.Add(5 * time.Minute)
	start, err = tr.MarkLow(ctx, "w1", later, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, later, start)

	require.NoError(t, tr.Reset(ctx, "w1"))
	start, err = tr.MarkLow(ctx, "w1", later.Add(time.Second), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, later.Add(time.Second), start)
}
