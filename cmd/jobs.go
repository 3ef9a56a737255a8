package main

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"slumber/internal/jobs"
	"slumber/internal/service/lifecycle"
	"slumber/internal/service/sweep"
	"slumber/pkg/image"
	"slumber/pkg/lock"
	"slumber/pkg/logger"
	redisstore "slumber/pkg/store/redis"
)

func (app *Application) initJobs() error {
	manager := jobs.NewManager(app.ctx)

	// Locks keep each sweep single-writer across replicas.
	// Without Redis they degrade to single-instance mode.
	var redisClient *redis.Client
	if app.redisClient != nil {
		redisClient = app.redisClient.GetClient()
	}

	if app.config.IdleSweep.Enabled {
		var tracker sweep.ActivityTracker
		if redisClient != nil {
			tracker = redisstore.NewActivityRepository(redisClient)
		} else {
			tracker = sweep.NewMemoryTracker()
		}
		sweeper := sweep.NewIdleSweeper(app.mysqlRepo.Workload, app.runtime, app.lifecycleService, tracker,
			app.metrics, app.config.IdleSweep)
		manager.Register(jobs.WithLock(
			newIdleSweepJob(app.config.IdleSweep.Interval, sweeper),
			lock.NewRedisLock(redisClient, "sweep:idle"),
		))
	} else {
		logger.InfoCtx(app.ctx, "Idle sweep disabled")
	}

	if app.config.Billing.Enabled {
		sweeper := sweep.NewBillingSweeper(app.mysqlRepo.Workload, app.mysqlRepo.Account, app.lifecycleService,
			app.metrics, app.config.Billing)
		manager.Register(jobs.WithLock(
			newBillingJob(app.config.Billing.Interval, sweeper),
			lock.NewRedisLock(redisClient, "sweep:billing"),
		))
	} else {
		logger.InfoCtx(app.ctx, "Billing sweep disabled")
	}

	manager.Register(newMetricsRefreshJob(30*time.Second, app.lifecycleService))
	manager.Register(newPullCacheCleanupJob(10*time.Minute, app.pullCache))

	app.jobsManager = manager
	return nil
}

// idleSweepJob hibernates workloads that stayed below the CPU threshold for the idle window.
type idleSweepJob struct {
	interval time.Duration
	sweeper  *sweep.IdleSweeper
}

func newIdleSweepJob(interval time.Duration, sweeper *sweep.IdleSweeper) jobs.Job {
	return &idleSweepJob{
		interval: interval,
		sweeper:  sweeper,
	}
}

func (j *idleSweepJob) Name() string {
	return "idle-sweep"
}

func (j *idleSweepJob) Interval() time.Duration {
	return j.interval
}

func (j *idleSweepJob) Run(ctx context.Context) error {
	return j.sweeper.Run(ctx)
}

// billingJob charges running workloads once per interval.
type billingJob struct {
	interval time.Duration
	sweeper  *sweep.BillingSweeper
}

func newBillingJob(interval time.Duration, sweeper *sweep.BillingSweeper) jobs.Job {
	return &billingJob{
		interval: interval,
		sweeper:  sweeper,
	}
}

func (j *billingJob) Name() string {
	return "billing"
}

func (j *billingJob) Interval() time.Duration {
	return j.interval
}

// SkipFirstRun keeps a restart from charging an extra interval.
func (j *billingJob) SkipFirstRun() bool {
	return true
}

func (j *billingJob) Run(ctx context.Context) error {
	return j.sweeper.Run(ctx)
}

// metricsRefreshJob publishes per-state workload gauges. Every replica runs it.
type metricsRefreshJob struct {
	interval time.Duration
	service  *lifecycle.Service
}

func newMetricsRefreshJob(interval time.Duration, svc *lifecycle.Service) jobs.Job {
	return &metricsRefreshJob{
		interval: interval,
		service:  svc,
	}
}

func (j *metricsRefreshJob) Name() string {
	return "metrics-refresh"
}

func (j *metricsRefreshJob) Interval() time.Duration {
	return j.interval
}

func (j *metricsRefreshJob) Run(ctx context.Context) error {
	return j.service.RefreshMetrics(ctx)
}

// pullCacheCleanupJob drops expired in-memory pull records.
type pullCacheCleanupJob struct {
	interval time.Duration
	cache    *image.PullCache
}

func newPullCacheCleanupJob(interval time.Duration, cache *image.PullCache) jobs.Job {
	return &pullCacheCleanupJob{
		interval: interval,
		cache:    cache,
	}
}

func (j *pullCacheCleanupJob) Name() string {
	return "pull-cache-cleanup"
}

func (j *pullCacheCleanupJob) Interval() time.Duration {
	return j.interval
}

func (j *pullCacheCleanupJob) SkipFirstRun() bool {
	return true
}

func (j *pullCacheCleanupJob) Run(ctx context.Context) error {
	before := j.cache.Size()
	j.cache.RemoveExpired()
	if removed := before - j.cache.Size(); removed > 0 {
		logger.DebugCtx(ctx, "pull cache: removed %d expired entries", removed)
	}
	return nil
}
