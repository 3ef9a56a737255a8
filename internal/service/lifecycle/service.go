// Package lifecycle is the single authority over workload state. Every
// transition of one workload runs under that workload's lock; different
// workloads transition in parallel.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"slumber/internal/model"
	"slumber/pkg/config"
	"slumber/pkg/interfaces"
	"slumber/pkg/logger"
	"slumber/pkg/metrics"
)

// Hibernate reasons, used for metrics and logs
const (
	ReasonManual  = "manual"
	ReasonIdle    = "idle"
	ReasonBilling = "billing"
	ReasonExport  = "export"
)

const cleanupTimeout = 2 * time.Minute

// Config holds the timing and gateway settings of the orchestrator
type Config struct {
	WakeTimeout       time.Duration
	ReadinessInterval time.Duration
	StopGracePeriod   time.Duration
	TeardownRetries   int
	TeardownBackoff   time.Duration
	DataMountPath     string

	GatewayImage     string
	GatewayMemory    string
	GatewayCPU       float64
	GatewayWakeURL   string
	GatewayProbePort int
	WakeToken        string
}

// ConfigFrom extracts the orchestrator settings from the global configuration
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		WakeTimeout:       cfg.Lifecycle.WakeTimeout,
		ReadinessInterval: cfg.Lifecycle.ReadinessInterval,
		StopGracePeriod:   cfg.Lifecycle.StopGracePeriod,
		TeardownRetries:   cfg.Lifecycle.TeardownRetries,
		TeardownBackoff:   cfg.Lifecycle.TeardownBackoff,
		DataMountPath:     cfg.Lifecycle.DataMountPath,
		GatewayImage:      cfg.Gateway.Image,
		GatewayMemory:     cfg.Gateway.Memory,
		GatewayCPU:        cfg.Gateway.CPU,
		GatewayWakeURL:    cfg.Gateway.WakeURL,
		GatewayProbePort:  cfg.Gateway.ProbePort,
		WakeToken:         cfg.Server.WakeToken,
	}
}

// Dependencies are the collaborators of the orchestrator.
// Backups, Alerts, Metrics and Prober are optional.
type Dependencies struct {
	Workloads WorkloadStore
	Templates TemplateStore
	Accounts  AccountStore
	Runtime   interfaces.RuntimeAdapter
	Backups   interfaces.BackupStore
	Alerts    interfaces.AlertNotifier
	Metrics   *metrics.LifecycleMetrics
	Prober    ReadinessProber
}

// Service implements deploy, wake, hibernate, delete and export
type Service struct {
	workloads WorkloadStore
	templates TemplateStore
	accounts  AccountStore
	runtime   interfaces.RuntimeAdapter
	backups   interfaces.BackupStore
	alerts    interfaces.AlertNotifier
	metrics   *metrics.LifecycleMetrics
	prober    ReadinessProber
	cfg       Config

	locks *keyedMutex

	mu       sync.Mutex
	inflight map[string]*wakeCall

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	now   func() time.Time
	newID func() string
}

// wakeCall is the in-flight marker of one workload's wake
type wakeCall struct {
	done chan struct{}
	err  error
}

// NewService creates the orchestrator
func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.WakeTimeout <= 0 {
		cfg.WakeTimeout = 60 * time.Second
	}
	if cfg.ReadinessInterval <= 0 {
		cfg.ReadinessInterval = 2 * time.Second
	}
	if cfg.TeardownRetries <= 0 {
		cfg.TeardownRetries = 3
	}
	if cfg.DataMountPath == "" {
		cfg.DataMountPath = "/data"
	}

	prober := deps.Prober
	if prober == nil {
		prober = NewRuntimeProber(deps.Runtime)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		workloads: deps.Workloads,
		templates: deps.Templates,
		accounts:  deps.Accounts,
		runtime:   deps.Runtime,
		backups:   deps.Backups,
		alerts:    deps.Alerts,
		metrics:   deps.Metrics,
		prober:    prober,
		cfg:       cfg,
		locks:     newKeyedMutex(),
		inflight:  make(map[string]*wakeCall),
		baseCtx:   ctx,
		cancel:    cancel,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// Stop cancels in-flight wakes and waits for their rollback
func (s *Service) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Get returns one workload
func (s *Service) Get(ctx context.Context, id string) (*model.Workload, error) {
	w, err := s.workloads.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get workload: %w", err)
	}
	if w == nil {
		return nil, ErrNotFound
	}
	return w, nil
}

// List returns all workloads, or those of one account
func (s *Service) List(ctx context.Context, accountID string) ([]*model.Workload, error) {
	if accountID != "" {
		return s.workloads.ListByAccount(ctx, accountID)
	}
	return s.workloads.List(ctx)
}

// ListTemplates returns the template catalog
func (s *Service) ListTemplates(ctx context.Context) ([]*model.Template, error) {
	return s.templates.List(ctx)
}

// RecordActivity stamps the last activity time of a workload
func (s *Service) RecordActivity(ctx context.Context, id string, at time.Time) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.workloads.UpdateActivity(ctx, id, at.UTC())
}

// Logs returns the tail of the workload container output. A sleeping
// workload has no container, so its logs are empty.
func (s *Service) Logs(ctx context.Context, id string, tail int) (string, error) {
	w, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if w.WorkloadHandle == "" {
		return "", nil
	}
	logs, err := s.runtime.ContainerLogs(ctx, w.WorkloadHandle, tail)
	if errors.Is(err, interfaces.ErrContainerNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read logs: %w", err)
	}
	return logs, nil
}

// RefreshMetrics publishes the per-state workload counts
func (s *Service) RefreshMetrics(ctx context.Context) error {
	counter, ok := s.workloads.(stateCounter)
	if !ok || s.metrics == nil {
		return nil
	}
	counts, err := counter.CountByState(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]int64, len(counts))
	for state, n := range counts {
		byName[string(state)] = n
	}
	s.metrics.SetWorkloadCounts(byName)
	return nil
}

func (s *Service) template(ctx context.Context, id string) (*model.Template, error) {
	tpl, err := s.templates.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	if tpl == nil {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return tpl, nil
}

// checkCredit fails unless the account exists with a positive balance
func (s *Service) checkCredit(ctx context.Context, accountID string) error {
	acct, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to get account: %w", err)
	}
	if acct == nil || acct.Credits <= 0 {
		return fmt.Errorf("%w: account %s", ErrInsufficientCredit, accountID)
	}
	return nil
}

// setState persists a transition. Callers hold the workload lock.
func (s *Service) setState(ctx context.Context, w *model.Workload, to model.State) error {
	from := w.State
	w.State = to
	w.LastStateChangeAt = s.now()
	if err := s.workloads.Update(ctx, w); err != nil {
		w.State = from
		return fmt.Errorf("failed to persist %s -> %s: %w", from, to, err)
	}
	s.metrics.RecordTransition(string(from), string(to))
	logger.InfoCtx(ctx, "state %s -> %s", from, to)
	return nil
}

// teardownContainer stops then force-removes a container, retrying on a
// bounded schedule. A missing container counts as removed.
func (s *Service) teardownContainer(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	return s.withRetries(ctx, func(ctx context.Context) error {
		stopErr := s.runtime.StopContainer(ctx, handle, s.cfg.StopGracePeriod)
		if err := s.runtime.RemoveContainer(ctx, handle); err != nil {
			return multierror.Append(stopErr, err)
		}
		return nil
	})
}

func (s *Service) withRetries(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= s.cfg.TeardownRetries; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == s.cfg.TeardownRetries {
			break
		}
		logger.WarnCtx(ctx, "teardown attempt %d/%d failed: %v", attempt, s.cfg.TeardownRetries, err)
		select {
		case <-ctx.Done():
			return multierror.Append(err, ctx.Err())
		case <-time.After(s.cfg.TeardownBackoff * time.Duration(attempt)):
		}
	}
	return err
}

// reportOrphan raises the operator alert for runtime objects nobody tracks anymore
func (s *Service) reportOrphan(ctx context.Context, w *model.Workload, operation string, handles []string, cause error) {
	s.metrics.RecordOrphan(operation)
	logger.ErrorCtx(ctx, "orphaned resources after %s: %v (%v)", operation, handles, cause)
	if s.alerts == nil {
		return
	}

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	err := s.alerts.NotifyOrphan(actx, &interfaces.OrphanAlert{
		WorkloadID: w.ID,
		Operation:  operation,
		Handles:    handles,
		Reason:     cause.Error(),
	})
	if err != nil {
		logger.ErrorCtx(ctx, "failed to send orphan alert: %v", err)
	}
}

// detached returns a context for cleanup that survives cancellation of ctx
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
}

func isActive(state model.State) bool {
	return state == model.StateRunning || state == model.StateStarting
}
