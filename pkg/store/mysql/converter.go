package mysql

import (
	"slumber/internal/model"
)

// ToWorkloadDomain converts a Workload row to the domain model
func ToWorkloadDomain(row *Workload) *model.Workload {
	if row == nil {
		return nil
	}

	return &model.Workload{
		ID:                row.WorkloadID,
		Name:              row.Name,
		TemplateID:        row.TemplateID,
		AccountID:         row.AccountID,
		State:             model.State(row.State),
		GatewayHandle:     row.GatewayHandle,
		WorkloadHandle:    row.WorkloadHandle,
		NetworkHandle:     row.NetworkHandle,
		VolumeHandle:      row.VolumeHandle,
		PublicPort:        row.PublicPort,
		Env:               map[string]string(row.Env),
		AutoSleepEnabled:  row.AutoSleepEnabled,
		LastActivityAt:    row.LastActivityAt,
		LastStateChangeAt: row.LastStateChangeAt,
		CreatedAt:         row.CreatedAt,
	}
}

// FromWorkloadDomain converts a domain workload to a row
func FromWorkloadDomain(w *model.Workload) *Workload {
	if w == nil {
		return nil
	}

	return &Workload{
		WorkloadID:        w.ID,
		Name:              w.Name,
		TemplateID:        w.TemplateID,
		AccountID:         w.AccountID,
		State:             string(w.State),
		GatewayHandle:     w.GatewayHandle,
		WorkloadHandle:    w.WorkloadHandle,
		NetworkHandle:     w.NetworkHandle,
		VolumeHandle:      w.VolumeHandle,
		PublicPort:        w.PublicPort,
		Env:               StringMap(w.Env),
		AutoSleepEnabled:  w.AutoSleepEnabled,
		LastActivityAt:    w.LastActivityAt,
		LastStateChangeAt: w.LastStateChangeAt,
		CreatedAt:         w.CreatedAt,
	}
}

// ToTemplateDomain converts a WorkloadTemplate row to the domain model
func ToTemplateDomain(row *WorkloadTemplate) *model.Template {
	if row == nil {
		return nil
	}

	return &model.Template{
		ID:           row.TemplateID,
		Name:         row.Name,
		Image:        row.Image,
		InternalPort: row.InternalPort,
		Protocol:     model.Protocol(row.Protocol),
		MinCPU:       row.MinCPU,
		MinRAM:       row.MinRAM,
		DefaultEnv:   map[string]string(row.DefaultEnv),
	}
}

// FromTemplateDomain converts a domain template to a row
func FromTemplateDomain(t *model.Template) *WorkloadTemplate {
	if t == nil {
		return nil
	}

	return &WorkloadTemplate{
		TemplateID:   t.ID,
		Name:         t.Name,
		Image:        t.Image,
		InternalPort: t.InternalPort,
		Protocol:     string(t.Protocol),
		MinCPU:       t.MinCPU,
		MinRAM:       t.MinRAM,
		DefaultEnv:   StringMap(t.DefaultEnv),
	}
}

// ToAccountDomain converts an Account row to the domain model
func ToAccountDomain(row *Account) *model.Account {
	if row == nil {
		return nil
	}
	return &model.Account{ID: row.AccountID, Credits: row.Credits}
}
