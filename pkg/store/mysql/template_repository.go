package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"slumber/internal/model"
)

// TemplateRepository handles the workload template catalog
type TemplateRepository struct {
	ds *Datastore
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(ds *Datastore) *TemplateRepository {
	return &TemplateRepository{ds: ds}
}

// Get retrieves a template by id, returning nil when it does not exist
func (r *TemplateRepository) Get(ctx context.Context, id string) (*model.Template, error) {
	var row WorkloadTemplate
	err := r.ds.DB(ctx).Where("template_id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return ToTemplateDomain(&row), nil
}

// List retrieves the whole catalog
func (r *TemplateRepository) List(ctx context.Context) ([]*model.Template, error) {
	var rows []*WorkloadTemplate
	if err := r.ds.DB(ctx).Order("template_id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	result := make([]*model.Template, 0, len(rows))
	for _, row := range rows {
		result = append(result, ToTemplateDomain(row))
	}
	return result, nil
}

// Upsert inserts a template or refreshes an existing one with the same id
func (r *TemplateRepository) Upsert(ctx context.Context, t *model.Template) error {
	row := FromTemplateDomain(t)
	err := r.ds.DB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "template_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "image", "internal_port", "protocol", "min_cpu", "min_ram", "default_env", "updated_at",
		}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert template %s: %w", t.ID, err)
	}
	return nil
}
