package sweep

import (
	"context"
	"fmt"
	"sort"
	"time"

	"slumber/internal/model"
	"slumber/internal/service/lifecycle"
	"slumber/pkg/config"
	"slumber/pkg/logger"
	"slumber/pkg/metrics"
)

// BillingSweeper charges every RUNNING workload a fixed amount per interval.
// Once all charges are applied, every RUNNING or STARTING workload of an
// account whose balance is no longer positive is hibernated.
type BillingSweeper struct {
	workloads WorkloadLister
	accounts  AccountDebiter
	lifecycle Lifecycle
	metrics   *metrics.LifecycleMetrics
	cfg       config.BillingConfig
}

// NewBillingSweeper creates the billing sweep
func NewBillingSweeper(workloads WorkloadLister, accounts AccountDebiter, lc Lifecycle,
	m *metrics.LifecycleMetrics, cfg config.BillingConfig) *BillingSweeper {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 2 * time.Minute
	}
	return &BillingSweeper{
		workloads: workloads,
		accounts:  accounts,
		lifecycle: lc,
		metrics:   m,
		cfg:       cfg,
	}
}

// Run performs one pass
func (s *BillingSweeper) Run(ctx context.Context) error {
	started := time.Now()
	running, err := s.workloads.ListByState(ctx, model.StateRunning)
	if err != nil {
		s.metrics.RecordSweep("billing", "error", time.Since(started).Seconds())
		return fmt.Errorf("failed to list running workloads: %w", err)
	}

	depleted := make(map[string]bool)
	for _, w := range running {
		balance, err := s.debit(ctx, w)
		if err != nil {
			logger.WarnCtx(logger.WithWorkload(ctx, w.ID), "debit failed: %v", err)
			continue
		}
		if balance <= 0 {
			depleted[w.AccountID] = true
		}
	}

	accounts := make([]string, 0, len(depleted))
	for id := range depleted {
		accounts = append(accounts, id)
	}
	sort.Strings(accounts)

	for _, accountID := range accounts {
		s.hibernateAccount(ctx, accountID)
	}

	s.metrics.RecordSweep("billing", "ok", time.Since(started).Seconds())
	return nil
}

func (s *BillingSweeper) debit(ctx context.Context, w *model.Workload) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ActionTimeout)
	defer cancel()

	balance, err := s.accounts.Debit(ctx, w.AccountID, s.cfg.CreditsPerInterval, w.ID, "runtime")
	if err != nil {
		return 0, err
	}
	s.metrics.RecordDebit(s.cfg.CreditsPerInterval)
	return balance, nil
}

func (s *BillingSweeper) hibernateAccount(ctx context.Context, accountID string) {
	workloads, err := s.workloads.ListByAccount(ctx, accountID, model.StateRunning, model.StateStarting)
	if err != nil {
		logger.ErrorCtx(ctx, "account %s is depleted but its workloads could not be listed: %v", accountID, err)
		return
	}

	logger.InfoCtx(ctx, "account %s is out of credit, hibernating %d workloads", accountID, len(workloads))
	for _, w := range workloads {
		wctx, cancel := context.WithTimeout(logger.WithWorkload(ctx, w.ID), s.cfg.ActionTimeout)
		if err := s.lifecycle.Hibernate(wctx, w.ID, lifecycle.ReasonBilling); err != nil {
			logger.ErrorCtx(wctx, "forced hibernate failed: %v", err)
		}
		cancel()
	}
}
