package handler

import (
	"context"

	"slumber/internal/model"
	"slumber/internal/service/lifecycle"
	"slumber/pkg/store/mysql"
)

// WorkloadService is the orchestrator surface the API exposes
type WorkloadService interface {
	Deploy(ctx context.Context, req *model.DeployRequest) (*model.Workload, error)
	Get(ctx context.Context, id string) (*model.Workload, error)
	List(ctx context.Context, accountID string) ([]*model.Workload, error)
	ListTemplates(ctx context.Context) ([]*model.Template, error)
	Wake(ctx context.Context, id string) (*model.WakeAck, error)
	WakeAndWait(ctx context.Context, id string) (*model.WakeAck, error)
	Hibernate(ctx context.Context, id, reason string) error
	Delete(ctx context.Context, id string) error
	Export(ctx context.Context, id string) (*model.BackupRef, error)
	Logs(ctx context.Context, id string, tail int) (string, error)
}

// AccountService manages credit balances
type AccountService interface {
	Get(ctx context.Context, id string) (*model.Account, error)
	Ensure(ctx context.Context, id string, initialCredits float64) error
	Deposit(ctx context.Context, id string, amount float64, description string) (float64, error)
	Transactions(ctx context.Context, id string, limit int) ([]*mysql.CreditTransaction, error)
}

var (
	_ WorkloadService = (*lifecycle.Service)(nil)
	_ AccountService  = (*mysql.AccountRepository)(nil)
)
