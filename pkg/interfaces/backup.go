package interfaces

import (
	"context"
	"io"
)

// BackupStore persists exported workload data outside the host
type BackupStore interface {
	// Upload stores the stream under key and returns a location string for operators
	Upload(ctx context.Context, key string, body io.Reader) (string, error)
}

// AlertNotifier forwards operator-facing alerts, such as resources that
// could not be torn down and now need manual cleanup
type AlertNotifier interface {
	NotifyOrphan(ctx context.Context, alert *OrphanAlert) error
}

// OrphanAlert describes runtime objects left behind by a failed teardown
type OrphanAlert struct {
	WorkloadID string
	Operation  string
	Handles    []string
	Reason     string
}
