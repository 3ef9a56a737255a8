package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"slumber/internal/model"
)

// WorkloadRepository handles workload persistence
type WorkloadRepository struct {
	ds *Datastore
}

// NewWorkloadRepository creates a new workload repository
func NewWorkloadRepository(ds *Datastore) *WorkloadRepository {
	return &WorkloadRepository{ds: ds}
}

// Create inserts a new workload
func (r *WorkloadRepository) Create(ctx context.Context, w *model.Workload) error {
	row := FromWorkloadDomain(w)
	if err := r.ds.DB(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to create workload: %w", err)
	}
	w.CreatedAt = row.CreatedAt
	return nil
}

// Get retrieves a workload by id, returning nil when it does not exist
func (r *WorkloadRepository) Get(ctx context.Context, id string) (*model.Workload, error) {
	var row Workload
	err := r.ds.DB(ctx).Where("workload_id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get workload: %w", err)
	}
	return ToWorkloadDomain(&row), nil
}

// List retrieves all workloads ordered by creation time
func (r *WorkloadRepository) List(ctx context.Context) ([]*model.Workload, error) {
	var rows []*Workload
	if err := r.ds.DB(ctx).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list workloads: %w", err)
	}
	return toWorkloads(rows), nil
}

// ListByState retrieves workloads currently in any of the given states
func (r *WorkloadRepository) ListByState(ctx context.Context, states ...model.State) ([]*model.Workload, error) {
	var rows []*Workload
	err := r.ds.DB(ctx).
		Where("state IN ?", stateStrings(states)).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list workloads by state: %w", err)
	}
	return toWorkloads(rows), nil
}

// ListByAccount retrieves the workloads owned by an account, optionally filtered by state
func (r *WorkloadRepository) ListByAccount(ctx context.Context, accountID string, states ...model.State) ([]*model.Workload, error) {
	query := r.ds.DB(ctx).Where("account_id = ?", accountID)
	if len(states) > 0 {
		query = query.Where("state IN ?", stateStrings(states))
	}

	var rows []*Workload
	if err := query.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list workloads by account: %w", err)
	}
	return toWorkloads(rows), nil
}

// Update persists the mutable fields of a workload
func (r *WorkloadRepository) Update(ctx context.Context, w *model.Workload) error {
	return r.ds.DB(ctx).Model(&Workload{}).
		Where("workload_id = ?", w.ID).
		Updates(map[string]interface{}{
			"state":                string(w.State),
			"gateway_handle":       w.GatewayHandle,
			"workload_handle":      w.WorkloadHandle,
			"network_handle":       w.NetworkHandle,
			"volume_handle":        w.VolumeHandle,
			"env":                  StringMap(w.Env),
			"auto_sleep_enabled":   w.AutoSleepEnabled,
			"last_activity_at":     w.LastActivityAt,
			"last_state_change_at": w.LastStateChangeAt,
			"updated_at":           time.Now().UTC(),
		}).Error
}

// UpdateActivity records the last time the workload showed activity
func (r *WorkloadRepository) UpdateActivity(ctx context.Context, id string, at time.Time) error {
	return r.ds.DB(ctx).Model(&Workload{}).
		Where("workload_id = ?", id).
		Updates(map[string]interface{}{
			"last_activity_at": at,
			"updated_at":       time.Now().UTC(),
		}).Error
}

// Delete physically removes a workload record
func (r *WorkloadRepository) Delete(ctx context.Context, id string) error {
	return r.ds.DB(ctx).Where("workload_id = ?", id).Delete(&Workload{}).Error
}

// CountByState returns the number of workloads in each state
func (r *WorkloadRepository) CountByState(ctx context.Context) (map[model.State]int64, error) {
	var rows []struct {
		State string
		Count int64
	}
	err := r.ds.DB(ctx).Model(&Workload{}).
		Select("state, COUNT(*) AS count").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count workloads: %w", err)
	}

	counts := make(map[model.State]int64, len(rows))
	for _, row := range rows {
		counts[model.State(row.State)] = row.Count
	}
	return counts, nil
}

func toWorkloads(rows []*Workload) []*model.Workload {
	result := make([]*model.Workload, 0, len(rows))
	for _, row := range rows {
		result = append(result, ToWorkloadDomain(row))
	}
	return result
}

func stateStrings(states []model.State) []string {
	result := make([]string, 0, len(states))
	for _, s := range states {
		result = append(result, string(s))
	}
	return result
}
