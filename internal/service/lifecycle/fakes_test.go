package lifecycle

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"slumber/internal/model"
	"slumber/pkg/deploy/ports"
	"slumber/pkg/interfaces"
)

type memWorkloads struct {
	mu   sync.Mutex
	rows map[string]model.Workload
}

func newMemWorkloads() *memWorkloads {
	return &memWorkloads{rows: make(map[string]model.Workload)}
}

func (m *memWorkloads) Create(ctx context.Context, w *model.Workload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[w.ID]; ok {
		return fmt.Errorf("duplicate workload %s", w.ID)
	}
	m.rows[w.ID] = *w
	return nil
}

func (m *memWorkloads) Get(ctx context.Context, id string) (*model.Workload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (m *memWorkloads) List(ctx context.Context) ([]*model.Workload, error) {
	return m.ListByAccount(ctx, "")
}

func (m *memWorkloads) ListByAccount(ctx context.Context, accountID string, states ...model.State) ([]*model.Workload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Workload
	for _, w := range m.rows {
		if accountID != "" && w.AccountID != accountID {
			continue
		}
		if len(states) > 0 && !containsState(states, w.State) {
			continue
		}
		w := w
		out = append(out, &w)
	}
	return out, nil
}

func (m *memWorkloads) Update(ctx context.Context, w *model.Workload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[w.ID]; !ok {
		return nil
	}
	m.rows[w.ID] = *w
	return nil
}

func (m *memWorkloads) UpdateActivity(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.rows[id]
	if !ok {
		return nil
	}
	w.LastActivityAt = &at
	m.rows[id] = w
	return nil
}

func (m *memWorkloads) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memWorkloads) put(w *model.Workload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[w.ID] = *w
}

func containsState(states []model.State, s model.State) bool {
	for _, x := range states {
		if x == s {
			return true
		}
	}
	return false
}

type memTemplates map[string]*model.Template

func (m memTemplates) Get(ctx context.Context, id string) (*model.Template, error) {
	return m[id], nil
}

func (m memTemplates) List(ctx context.Context) ([]*model.Template, error) {
	var out []*model.Template
	for _, t := range m {
		out = append(out, t)
	}
	return out, nil
}

type memAccounts struct {
	mu       sync.Mutex
	balances map[string]float64
}

func (m *memAccounts) Get(ctx context.Context, id string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[id]
	if !ok {
		return nil, nil
	}
	return &model.Account{ID: id, Credits: b}, nil
}

func (m *memAccounts) set(id string, credits float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[id] = credits
}

type fakeContainer struct {
	handle    string
	spec      *interfaces.ContainerSpec
	running   bool
	startedAt time.Time
}

// fakeRuntime keeps containers, networks and volumes in memory
type fakeRuntime struct {
	mu sync.Mutex

	ports      *ports.Allocator
	containers map[string]*fakeContainer
	networks   map[string]bool
	volumes    map[string]bool
	creates    map[string]int // by container name
	nextID     int

	failCreate  func(spec *interfaces.ContainerSpec) error
	failRemove  error
	failNetwork error
	exportBody  string
	exported    []string
}

func newFakeRuntime(minPort, maxPort int) *fakeRuntime {
	return &fakeRuntime{
		ports:      ports.NewAllocatorWithProbe(minPort, maxPort, nil),
		containers: make(map[string]*fakeContainer),
		networks:   make(map[string]bool),
		volumes:    make(map[string]bool),
		creates:    make(map[string]int),
	}
}

func (f *fakeRuntime) lookup(handle string) *fakeContainer {
	if c, ok := f.containers[handle]; ok {
		return c
	}
	for _, c := range f.containers {
		if c.spec.Name == handle {
			return c
		}
	}
	return nil
}

func (f *fakeRuntime) PullImage(ctx context.Context, ref string) error { return nil }

func (f *fakeRuntime) CreateNetwork(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNetwork != nil {
		return "", f.failNetwork
	}
	f.networks[name] = true
	return name, nil
}

func (f *fakeRuntime) RemoveNetwork(ctx context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.networks, handle)
	return nil
}

func (f *fakeRuntime) CreateVolume(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes[name] = true
	return name, nil
}

func (f *fakeRuntime) RemoveVolume(ctx context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.volumes, handle)
	return nil
}

func (f *fakeRuntime) CreateContainer(ctx context.Context, spec *interfaces.ContainerSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		if err := f.failCreate(spec); err != nil {
			return "", err
		}
	}
	if f.lookup(spec.Name) != nil {
		return "", fmt.Errorf("conflict: name %s in use", spec.Name)
	}
	f.nextID++
	handle := fmt.Sprintf("c-%d", f.nextID)
	f.containers[handle] = &fakeContainer{handle: handle, spec: spec}
	f.creates[spec.Name]++
	return handle, nil
}

func (f *fakeRuntime) StartContainer(ctx context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.lookup(handle)
	if c == nil {
		return interfaces.ErrContainerNotFound
	}
	c.running = true
	c.startedAt = time.Now()
	return nil
}

func (f *fakeRuntime) StopContainer(ctx context.Context, handle string, grace time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c := f.lookup(handle); c != nil {
		c.running = false
	}
	return nil
}

func (f *fakeRuntime) RemoveContainer(ctx context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.lookup(handle)
	if c == nil {
		return nil
	}
	if f.failRemove != nil {
		return f.failRemove
	}
	delete(f.containers, c.handle)
	return nil
}

func (f *fakeRuntime) InspectContainer(ctx context.Context, handle string) (*interfaces.ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.lookup(handle)
	if c == nil {
		return nil, interfaces.ErrContainerNotFound
	}
	return &interfaces.ContainerInfo{Handle: c.handle, Running: c.running, IPAddress: "10.0.0.2", StartedAt: c.startedAt}, nil
}

func (f *fakeRuntime) ContainerCPUPercent(ctx context.Context, handle string) (float64, error) {
	return 0, nil
}

func (f *fakeRuntime) ContainerLogs(ctx context.Context, handle string, tail int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.lookup(handle)
	if c == nil {
		return "", interfaces.ErrContainerNotFound
	}
	return fmt.Sprintf("%s: last %d lines\n", c.spec.Name, tail), nil
}

func (f *fakeRuntime) ExportVolume(ctx context.Context, handle string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exported = append(f.exported, handle)
	return io.NopCloser(strings.NewReader(f.exportBody)), nil
}

func (f *fakeRuntime) AllocatePort(ctx context.Context) (int, error) { return f.ports.Allocate(ctx) }
func (f *fakeRuntime) ReservePort(port int) error { return f.ports.Reserve(port) }
func (f *fakeRuntime) ReleasePort(port int) { f.ports.Free(port) }

func (f *fakeRuntime) setFailRemove(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failRemove = err
}

func (f *fakeRuntime) createCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates[name]
}

func (f *fakeRuntime) containerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.containers)
}

func (f *fakeRuntime) container(name string) *fakeContainer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookup(name)
}

type proberFunc func(ctx context.Context, w *model.Workload, tpl *model.Template) (bool, error)

func (p proberFunc) Ready(ctx context.Context, w *model.Workload, tpl *model.Template) (bool, error) {
	return p(ctx, w, tpl)
}

type fakeBackups struct {
	mu   sync.Mutex
	keys []string
	body string
}

func (f *fakeBackups) Upload(ctx context.Context, key string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	f.body = string(data)
	return "mem://" + key, nil
}

type fakeAlerts struct {
	mu     sync.Mutex
	alerts []*interfaces.OrphanAlert
}

func (f *fakeAlerts) NotifyOrphan(ctx context.Context, alert *interfaces.OrphanAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeAlerts) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}
