package mysql

import (
	"context"
	"fmt"

	"slumber/pkg/config"
)

// Repository aggregates all SQL repositories
type Repository struct {
	ds *Datastore

	Workload *WorkloadRepository
	Template *TemplateRepository
	Account  *AccountRepository
}

// NewRepository opens the configured database and creates all sub-repositories
func NewRepository(cfg config.DatabaseConfig) (*Repository, error) {
	ds, err := NewDatastore(cfg)
	if err != nil {
		return nil, err
	}
	return NewRepositoryWithDatastore(ds), nil
}

// NewRepositoryWithDatastore wraps an already opened datastore
func NewRepositoryWithDatastore(ds *Datastore) *Repository {
	return &Repository{
		ds:       ds,
		Workload: NewWorkloadRepository(ds),
		Template: NewTemplateRepository(ds),
		Account:  NewAccountRepository(ds),
	}
}

// Migrate creates or updates the schema
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.ds.DB(ctx).AutoMigrate(
		&Workload{},
		&WorkloadTemplate{},
		&Account{},
		&CreditTransaction{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// GetDatastore returns the underlying datastore for transaction support
func (r *Repository) GetDatastore() *Datastore {
	return r.ds
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.ds.Close()
}
