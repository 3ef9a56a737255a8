package lifecycle

import "errors"

var (
	// ErrNotFound is returned for operations on an unknown or deleted workload
	ErrNotFound = errors.New("workload not found")

	// ErrTemplateNotFound is returned when a deploy names an unknown template
	ErrTemplateNotFound = errors.New("template not found")

	// ErrNoCapacity is returned when no public port is free
	ErrNoCapacity = errors.New("no capacity")

	// ErrInsufficientCredit is returned when the owning account has a non-positive balance
	ErrInsufficientCredit = errors.New("insufficient credit")

	// ErrDeploymentFailed wraps runtime failures during deploy; nothing is left allocated
	ErrDeploymentFailed = errors.New("deployment failed")

	// ErrWakeFailed wraps wake failures; the workload has been rolled back to SLEEPING
	ErrWakeFailed = errors.New("wake failed")

	// ErrOrphanedResource means a teardown left runtime objects behind and an alert was raised
	ErrOrphanedResource = errors.New("orphaned runtime resource")

	// ErrBackupDisabled is returned by Export when no backup store is configured
	ErrBackupDisabled = errors.New("backup store not configured")
)
