package constants

// Container label keys
const (
	LabelManagedBy = "slumber.managed-by"
	LabelWorkload  = "slumber.workload"
	LabelRole      = "slumber.role"

	ManagedBySlumber = "slumber"
)

// Container roles
const (
	RoleGateway  = "gateway"
	RoleWorkload = "workload"
	RoleHelper   = "export-helper"
)

// Environment injected into game containers
const (
	EnvServerID = "SERVER_ID"
	EnvDataDir  = "DATA_DIR"
)

// Environment injected into gateway containers
const (
	EnvGatewayTargetHost = "GATEWAY_TARGET_HOST"
	EnvGatewayTargetPort = "GATEWAY_TARGET_PORT"
	EnvGatewayProtocol   = "GATEWAY_PROTOCOL"
	EnvGatewayListenAddr = "GATEWAY_LISTEN_ADDR"
	EnvGatewayWakeURL    = "GATEWAY_WAKE_URL"
	EnvGatewayWorkloadID = "GATEWAY_WORKLOAD_ID"
	EnvGatewayWakeToken  = "GATEWAY_WAKE_TOKEN"
	EnvGatewayProbePort  = "GATEWAY_PROBE_PORT"
)

// Labels returns the labels stamped on every container owned by a workload
func Labels(workloadID, role string) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedBySlumber,
		LabelWorkload:  workloadID,
		LabelRole:      role,
	}
}
