package model

import "time"

// Workload MySQL model for workloads table
type Workload struct {
	ID                int64      `gorm:"primaryKey;autoIncrement" json:"-"`
	WorkloadID        string     `gorm:"column:workload_id;type:varchar(64);not null;uniqueIndex:idx_workload_id" json:"workload_id"`
	Name              string     `gorm:"column:name;type:varchar(255);not null" json:"name"`
	TemplateID        string     `gorm:"column:template_id;type:varchar(64);not null" json:"template_id"`
	AccountID         string     `gorm:"column:account_id;type:varchar(64);not null;index:idx_workload_account" json:"account_id"`
	State             string     `gorm:"column:state;type:varchar(16);not null;index:idx_workload_state" json:"state"`
	GatewayHandle     string     `gorm:"column:gateway_handle;type:varchar(128);not null;default:''" json:"gateway_handle"`
	WorkloadHandle    string     `gorm:"column:workload_handle;type:varchar(128);not null;default:''" json:"workload_handle"`
	NetworkHandle     string     `gorm:"column:network_handle;type:varchar(128);not null;default:''" json:"network_handle"`
	VolumeHandle      string     `gorm:"column:volume_handle;type:varchar(128);not null;default:''" json:"volume_handle"`
	PublicPort        int        `gorm:"column:public_port;type:int;not null;uniqueIndex:idx_public_port" json:"public_port"`
	Env               StringMap  `gorm:"column:env;type:text" json:"env"`
	AutoSleepEnabled  bool       `gorm:"column:auto_sleep_enabled;not null;default:true" json:"auto_sleep_enabled"`
	LastActivityAt    *time.Time `gorm:"column:last_activity_at" json:"last_activity_at"`
	LastStateChangeAt time.Time  `gorm:"column:last_state_change_at;not null" json:"last_state_change_at"`
	CreatedAt         time.Time  `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;not null;autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for Workload
func (Workload) TableName() string {
	return "workloads"
}

// WorkloadTemplate MySQL model for workload_templates table
type WorkloadTemplate struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	TemplateID   string    `gorm:"column:template_id;type:varchar(64);not null;uniqueIndex:idx_template_id" json:"template_id"`
	Name         string    `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Image        string    `gorm:"column:image;type:varchar(500);not null" json:"image"`
	InternalPort int       `gorm:"column:internal_port;type:int;not null" json:"internal_port"`
	Protocol     string    `gorm:"column:protocol;type:varchar(8);not null" json:"protocol"`
	MinCPU       float64   `gorm:"column:min_cpu;not null" json:"min_cpu"`
	MinRAM       string    `gorm:"column:min_ram;type:varchar(16);not null" json:"min_ram"`
	DefaultEnv   StringMap `gorm:"column:default_env;type:text" json:"default_env"`
	CreatedAt    time.Time `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null;autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for WorkloadTemplate
func (WorkloadTemplate) TableName() string {
	return "workload_templates"
}
