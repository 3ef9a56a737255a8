package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"slumber/pkg/lock"
	"slumber/pkg/logger"
)

// Job represents a periodic background task.
type Job interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context) error
}

// DelayedJob skips the immediate first run and waits one interval instead.
type DelayedJob interface {
	Job
	SkipFirstRun() bool
}

// Manager orchestrates the lifecycle of background jobs. Each job runs on its
// own goroutine, so a slow sweep never overlaps with itself.
type Manager struct {
	ctx     context.Context
	cancel  context.CancelFunc
	jobs    []Job
	started bool

	mu sync.Mutex
	wg sync.WaitGroup
}

// NewManager creates a job manager bound to the provided context.
func NewManager(parent context.Context) *Manager {
	ctx, cancel := context.WithCancel(parent)
	return &Manager{
		ctx:    ctx,
		cancel: cancel,
		jobs:   make([]Job, 0),
	}
}

// Register adds a job to the manager.
func (m *Manager) Register(job Job) {
	if job == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
}

// Jobs returns the names of the registered jobs.
func (m *Manager) Jobs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.jobs))
	for _, job := range m.jobs {
		names = append(names, job.Name())
	}
	return names
}

// Start launches all registered jobs.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	jobs := append([]Job(nil), m.jobs...)
	m.mu.Unlock()

	for _, job := range jobs {
		m.wg.Add(1)
		go m.runJob(job)
	}
}

// Stop signals all jobs to stop.
func (m *Manager) Stop() {
	m.cancel()
}

// Wait blocks until all jobs exit.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) runJob(job Job) {
	defer m.wg.Done()

	interval := job.Interval()
	if interval <= 0 {
		interval = time.Minute
	}

	if delayed, ok := job.(DelayedJob); !ok || !delayed.SkipFirstRun() {
		m.executeJob(job)
	} else {
		logger.InfoCtx(m.ctx, "job %s first run in %v", job.Name(), interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.executeJob(job)
		}
	}
}

func (m *Manager) executeJob(job Job) {
	if m.ctx.Err() != nil {
		return
	}
	if err := job.Run(m.ctx); err != nil {
		logger.WarnCtx(m.ctx, "background job %s failed: %v", job.Name(), err)
	}
}

// lockedJob runs the wrapped job only on the replica holding the lock.
type lockedJob struct {
	Job
	lock lock.DistributedLock
}

// WithLock wraps job so that at most one replica runs it per tick. A lock
// built on a nil redis client always succeeds.
func WithLock(job Job, l lock.DistributedLock) Job {
	return &lockedJob{Job: job, lock: l}
}

func (j *lockedJob) Run(ctx context.Context) error {
	acquired, err := j.lock.TryLock(ctx)
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", j.lock.Key(), err)
	}
	if !acquired {
		logger.DebugCtx(ctx, "job %s skipped, lock %s held by another replica", j.Name(), j.lock.Key())
		return nil
	}
	defer func() {
		if err := j.lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			logger.WarnCtx(ctx, "release lock %s: %v", j.lock.Key(), err)
		}
	}()

	return j.Job.Run(ctx)
}

// SkipFirstRun forwards to the wrapped job.
func (j *lockedJob) SkipFirstRun() bool {
	if delayed, ok := j.Job.(DelayedJob); ok {
		return delayed.SkipFirstRun()
	}
	return false
}
