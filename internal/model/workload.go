package model

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a workload
type State string

const (
	StateSleeping State = "SLEEPING" // only the gateway container exists
	StateStarting State = "STARTING" // workload container created, waiting for readiness
	StateRunning  State = "RUNNING"  // workload container accepting traffic
	StateStopping State = "STOPPING" // workload container being torn down
)

func (s State) String() string {
	return string(s)
}

// Valid reports whether s is one of the known states
func (s State) Valid() bool {
	switch s {
	case StateSleeping, StateStarting, StateRunning, StateStopping:
		return true
	}
	return false
}

// Protocol is the transport a template exposes
type Protocol string

const (
	ProtocolTCP Protocol = "tcp"
	ProtocolUDP Protocol = "udp"
)

// Template is a catalog entry describing how to run a game server
type Template struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Image        string            `json:"image"`
	InternalPort int               `json:"internal_port"`
	Protocol     Protocol          `json:"protocol"`
	MinCPU       float64           `json:"min_cpu"`
	MinRAM       string            `json:"min_ram"`
	DefaultEnv   map[string]string `json:"default_env,omitempty"`
}

// Workload is one user-owned game server
type Workload struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	TemplateID        string            `json:"template_id"`
	AccountID         string            `json:"account_id"`
	State             State             `json:"state"`
	GatewayHandle     string            `json:"gateway_handle"`
	WorkloadHandle    string            `json:"workload_handle,omitempty"`
	NetworkHandle     string            `json:"network_handle"`
	VolumeHandle      string            `json:"volume_handle"`
	PublicPort        int               `json:"public_port"`
	Env               map[string]string `json:"env,omitempty"`
	AutoSleepEnabled  bool              `json:"auto_sleep_enabled"`
	LastActivityAt    *time.Time        `json:"last_activity_at,omitempty"`
	LastStateChangeAt time.Time         `json:"last_state_change_at"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Account holds the credit balance that pays for running time
type Account struct {
	ID      string  `json:"id"`
	Credits float64 `json:"credits"`
}

// DeployRequest creates a new workload
type DeployRequest struct {
	Name       string            `json:"name" binding:"required"`
	TemplateID string            `json:"template_id" binding:"required"`
	AccountID  string            `json:"account_id" binding:"required"`
	Env        map[string]string `json:"env"`
	AutoSleep  *bool             `json:"auto_sleep"`
	StartNow   bool              `json:"start_now"`
}

// WakeAck acknowledges a wake request; it does not mean the workload is ready
type WakeAck struct {
	ID     string `json:"id"`
	State  State  `json:"state"`
	Target string `json:"target"`
}

// BackupRef points at an exported volume archive
type BackupRef struct {
	WorkloadID string    `json:"workload_id"`
	Key        string    `json:"key"`
	Location   string    `json:"location"`
	CreatedAt  time.Time `json:"created_at"`
}

// Runtime object names derived from the workload id.
func GatewayName(id string) string  { return "gateway-" + id }
func WorkloadName(id string) string { return "workload-" + id }
func NetworkName(id string) string  { return "net-" + id }
func VolumeName(id string) string   { return "data-" + id }

// TargetAddress is the address the gateway relays to inside the private network
func TargetAddress(id string, port int) string {
	return fmt.Sprintf("%s:%d", WorkloadName(id), port)
}
