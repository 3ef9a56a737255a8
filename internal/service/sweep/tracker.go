package sweep

import (
	"context"
	"sync"
	"time"

	redisstore "slumber/pkg/store/redis"
)

// ActivityTracker remembers since when a workload has been continuously idle
type ActivityTracker interface {
	// MarkLow records a low reading at `at` and returns the start of the
	// current low-activity window. A window without readings for ttl ends.
	MarkLow(ctx context.Context, workloadID string, at time.Time, ttl time.Duration) (time.Time, error)

	// Reset ends the current window
	Reset(ctx context.Context, workloadID string) error
}

var _ ActivityTracker = (*redisstore.ActivityRepository)(nil)

// MemoryTracker is the single-instance ActivityTracker
type MemoryTracker struct {
	mu      sync.Mutex
	windows map[string]lowWindow
}

type lowWindow struct {
	start   time.Time
	expires time.Time
}

// NewMemoryTracker creates an empty tracker
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{windows: make(map[string]lowWindow)}
}

func (m *MemoryTracker) MarkLow(ctx context.Context, workloadID string, at time.Time, ttl time.Duration) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[workloadID]
	if !ok || at.After(w.expires) {
		w.start = at
	}
	w.expires = at.Add(ttl)
	m.windows[workloadID] = w
	return w.start, nil
}

func (m *MemoryTracker) Reset(ctx context.Context, workloadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.windows, workloadID)
	return nil
}
