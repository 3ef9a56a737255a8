package sweep

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"slumber/internal/model"
)

type memWorkloads struct {
	mu    sync.Mutex
	items []*model.Workload
}

func (m *memWorkloads) ListByState(ctx context.Context, states ...model.State) ([]*model.Workload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Workload
	for _, w := range m.items {
		if slices.Contains(states, w.State) {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memWorkloads) ListByAccount(ctx context.Context, accountID string, states ...model.State) ([]*model.Workload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Workload
	for _, w := range m.items {
		if w.AccountID != accountID {
			continue
		}
		if len(states) > 0 && !slices.Contains(states, w.State) {
			continue
		}
		cp := *w
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memWorkloads) setState(id string, s model.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.items {
		if w.ID == id {
			w.State = s
		}
	}
}

// scriptedSampler returns the next reading for a handle on every call
type scriptedSampler struct {
	readings map[string][]float64
	fail     map[string]bool
}

func (s *scriptedSampler) ContainerCPUPercent(ctx context.Context, handle string) (float64, error) {
	if s.fail[handle] {
		return 0, errors.New("stats unavailable")
	}
	r := s.readings[handle]
	if len(r) == 0 {
		return 0, nil
	}
	s.readings[handle] = r[1:]
	return r[0], nil
}

type fakeLifecycle struct {
	workloads  *memWorkloads
	hibernated []string
	reasons    []string
	activity   map[string]time.Time
	failFor    map[string]bool
}

func (f *fakeLifecycle) Hibernate(ctx context.Context, id, reason string) error {
	if f.failFor[id] {
		return errors.New("teardown failed")
	}
	f.hibernated = append(f.hibernated, id)
	f.reasons = append(f.reasons, reason)
	if f.workloads != nil {
		f.workloads.setState(id, model.StateSleeping)
	}
	return nil
}

func (f *fakeLifecycle) RecordActivity(ctx context.Context, id string, at time.Time) error {
	if f.activity == nil {
		f.activity = make(map[string]time.Time)
	}
	f.activity[id] = at
	return nil
}

type memAccounts struct {
	mu       sync.Mutex
	balances map[string]float64
	debits   int
}

func (m *memAccounts) Debit(ctx context.Context, accountID string, amount float64, workloadID, description string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[accountID]
	if !ok {
		return 0, errors.New("account not found")
	}
	b -= amount
	m.balances[accountID] = b
	m.debits++
	return b, nil
}

// restart marks id RUNNING again as of at, the way a wake does
func (m *memWorkloads) restart(id string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.items {
		if w.ID == id {
			w.State = model.StateRunning
			w.LastStateChangeAt = at
		}
	}
}
