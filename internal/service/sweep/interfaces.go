package sweep

import (
	"context"
	"time"

	"slumber/internal/model"
	"slumber/internal/service/lifecycle"
	"slumber/pkg/interfaces"
	"slumber/pkg/store/mysql"
)

// WorkloadLister is the read side of the registry the sweeps need
type WorkloadLister interface {
	ListByState(ctx context.Context, states ...model.State) ([]*model.Workload, error)
	ListByAccount(ctx context.Context, accountID string, states ...model.State) ([]*model.Workload, error)
}

// CPUSampler reads container CPU usage
type CPUSampler interface {
	ContainerCPUPercent(ctx context.Context, handle string) (float64, error)
}

// Lifecycle is the orchestrator; sweeps never write workload state themselves
type Lifecycle interface {
	Hibernate(ctx context.Context, id, reason string) error
	RecordActivity(ctx context.Context, id string, at time.Time) error
}

// AccountDebiter charges accounts
type AccountDebiter interface {
	Debit(ctx context.Context, accountID string, amount float64, workloadID, description string) (float64, error)
}

// compile-time assertions

var (
	_ WorkloadLister = (*mysql.WorkloadRepository)(nil)
	_ AccountDebiter = (*mysql.AccountRepository)(nil)
	_ Lifecycle      = (*lifecycle.Service)(nil)
	_ CPUSampler     = (interfaces.RuntimeAdapter)(nil)
)
