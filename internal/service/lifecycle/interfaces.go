package lifecycle

import (
	"context"
	"time"

	"slumber/internal/model"
	"slumber/pkg/store/mysql"
)

// WorkloadStore is the registry of workloads
type WorkloadStore interface {
	Create(ctx context.Context, w *model.Workload) error
	Get(ctx context.Context, id string) (*model.Workload, error)
	List(ctx context.Context) ([]*model.Workload, error)
	ListByAccount(ctx context.Context, accountID string, states ...model.State) ([]*model.Workload, error)
	Update(ctx context.Context, w *model.Workload) error
	UpdateActivity(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// TemplateStore is the read side of the template catalog
type TemplateStore interface {
	Get(ctx context.Context, id string) (*model.Template, error)
	List(ctx context.Context) ([]*model.Template, error)
}

// AccountStore reads balances
type AccountStore interface {
	Get(ctx context.Context, id string) (*model.Account, error)
}

type stateCounter interface {
	CountByState(ctx context.Context) (map[model.State]int64, error)
}

// compile-time assertions

var (
	_ WorkloadStore = (*mysql.WorkloadRepository)(nil)
	_ TemplateStore = (*mysql.TemplateRepository)(nil)
	_ AccountStore  = (*mysql.AccountRepository)(nil)
	_ stateCounter  = (*mysql.WorkloadRepository)(nil)
)
