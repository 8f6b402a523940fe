package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/guildhost/guildhost/internal/domain"
	"github.com/guildhost/guildhost/internal/domain/deployment"
	"github.com/guildhost/guildhost/internal/domain/resource"
	"github.com/guildhost/guildhost/internal/port/controlplane"
	"github.com/guildhost/guildhost/internal/port/database"
	"github.com/guildhost/guildhost/internal/port/messagequeue"
	"github.com/guildhost/guildhost/internal/port/notifier"
)

// Ensure the mocks implement their ports at compile time.
var (
	_ database.Store      = (*mockStore)(nil)
	_ controlplane.Client = (*mockClient)(nil)
	_ notifier.Notifier   = (*mockNotifier)(nil)
	_ messagequeue.Queue  = (*mockQueue)(nil)
)

// mockStore is a minimal in-memory implementation of database.Store.
type mockStore struct {
	mu          sync.Mutex
	deployments map[string]*deployment.Deployment
	logs        []deployment.ActionLogEntry
	samples     []deployment.UsageSample
	nextID      int

	// Error hooks, set to inject failures.
	createErr       error
	getErr          error
	updateErr       error
	appendLogErr    error
	appendSampleErr error
	recentErr       error
}

func newMockStore() *mockStore {
	return &mockStore{deployments: map[string]*deployment.Deployment{}}
}

func (m *mockStore) CreateDeployment(_ context.Context, d *deployment.Deployment) (*deployment.Deployment, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	cp := *d
	cp.ID = fmt.Sprintf("dep-%d", m.nextID)
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	m.deployments[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *mockStore) GetDeployment(_ context.Context, id string) (*deployment.Deployment, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deployments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockStore) ListDeployments(_ context.Context) ([]deployment.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]deployment.Deployment, 0, len(m.deployments))
	for _, d := range m.deployments {
		out = append(out, *d)
	}
	return out, nil
}

func (m *mockStore) ListDeploymentsByStatus(_ context.Context, status deployment.Status) ([]deployment.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []deployment.Deployment
	for _, d := range m.deployments {
		if d.Status == status {
			out = append(out, *d)
		}
	}
	return out, nil
}

// UpdateDeployment mirrors the SQL store's terminated guard: a terminated row
// only accepts updates that themselves set terminated.
func (m *mockStore) UpdateDeployment(_ context.Context, id string, upd deployment.Update) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deployments[id]
	if !ok {
		return domain.ErrNotFound
	}
	settingTerminated := upd.Status != nil && *upd.Status == deployment.StatusTerminated
	if d.Status == deployment.StatusTerminated && !settingTerminated {
		return domain.ErrNotFound
	}

	if upd.Status != nil {
		d.Status = *upd.Status
	}
	if upd.Health != nil {
		d.Health = *upd.Health
	}
	if upd.LastError != nil {
		d.LastError = *upd.LastError
	}
	if upd.Tier != nil {
		d.Tier = *upd.Tier
	}
	if upd.Features != nil {
		d.Features = upd.Features
	}
	if upd.Addons != nil {
		d.Addons = upd.Addons
	}
	if upd.Resources != nil {
		d.Resources = *upd.Resources
	}
	if upd.PanelID != nil {
		d.PanelID = upd.PanelID
	}
	if upd.PanelIdentifier != nil {
		d.PanelIdentifier = upd.PanelIdentifier
	}
	if upd.PanelUUID != nil {
		d.PanelUUID = upd.PanelUUID
	}
	if upd.ProvisionedAt != nil {
		d.ProvisionedAt = upd.ProvisionedAt
	}
	if upd.SuspendedAt != nil {
		d.SuspendedAt = upd.SuspendedAt
	}
	if upd.ClearSuspended {
		d.SuspendedAt = nil
	}
	if upd.TerminatedAt != nil {
		d.TerminatedAt = upd.TerminatedAt
	}
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *mockStore) AppendActionLog(_ context.Context, entry deployment.ActionLogEntry) error {
	if m.appendLogErr != nil {
		return m.appendLogErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = fmt.Sprintf("log-%d", len(m.logs)+1)
	entry.CreatedAt = time.Now().UTC()
	m.logs = append(m.logs, entry)
	return nil
}

func (m *mockStore) AppendUsageSample(_ context.Context, sample deployment.UsageSample) error {
	if m.appendSampleErr != nil {
		return m.appendSampleErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sample.ObservedAt = time.Now().UTC()
	m.samples = append(m.samples, sample)
	return nil
}

func (m *mockStore) RecentActionLogs(_ context.Context, deploymentID string, action deployment.Action, limit int) ([]deployment.ActionLogEntry, error) {
	if m.recentErr != nil {
		return nil, m.recentErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []deployment.ActionLogEntry
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.logs[i]
		if e.DeploymentID == deploymentID && e.Action == action {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockStore) ListActionLogs(_ context.Context, deploymentID string, limit int) ([]deployment.ActionLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []deployment.ActionLogEntry
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.logs[i].DeploymentID == deploymentID {
			out = append(out, m.logs[i])
		}
	}
	return out, nil
}

// actionEntries returns all recorded entries for an action, oldest first.
func (m *mockStore) actionEntries(action deployment.Action) []deployment.ActionLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []deployment.ActionLogEntry
	for _, e := range m.logs {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// mockClient is a scripted implementation of controlplane.Client.
type mockClient struct {
	mu sync.Mutex

	instance controlplane.Instance
	usage    controlplane.Usage
	fellBack []string

	created      []controlplane.CreateSpec
	deleted      []int
	suspended    []int
	resumed      []int
	resized      []resource.Envelope
	powerSignals []controlplane.PowerSignal
	envCalls     int
	waitCalls    int

	createErr  error
	deleteErr  error
	suspendErr error
	resumeErr  error
	resizeErr  error
	powerErr   error
	envErr     error
	usageErr   error
	waitErr    error
}

func newMockClient() *mockClient {
	return &mockClient{
		instance: controlplane.Instance{ID: 42, Identifier: "inst42", UUID: "uuid-42", Status: "installing"},
	}
}

func (c *mockClient) Name() string { return "mock" }

func (c *mockClient) CreateInstance(_ context.Context, spec controlplane.CreateSpec) (*controlplane.Instance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return nil, c.createErr
	}
	c.created = append(c.created, spec)
	inst := c.instance
	inst.Limits = spec.Resources
	return &inst, nil
}

func (c *mockClient) GetInstance(_ context.Context, _ string) (*controlplane.Instance, error) {
	inst := c.instance
	return &inst, nil
}

func (c *mockClient) GetUsage(_ context.Context, _ string) (*controlplane.Usage, error) {
	if c.usageErr != nil {
		return nil, c.usageErr
	}
	u := c.usage
	return &u, nil
}

func (c *mockClient) DeleteInstance(_ context.Context, id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return c.deleteErr
	}
	c.deleted = append(c.deleted, id)
	return nil
}

func (c *mockClient) Suspend(_ context.Context, id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.suspendErr != nil {
		return c.suspendErr
	}
	c.suspended = append(c.suspended, id)
	return nil
}

func (c *mockClient) Resume(_ context.Context, id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resumeErr != nil {
		return c.resumeErr
	}
	c.resumed = append(c.resumed, id)
	return nil
}

func (c *mockClient) Resize(_ context.Context, _ int, res resource.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resizeErr != nil {
		return c.resizeErr
	}
	c.resized = append(c.resized, res)
	return nil
}

func (c *mockClient) SendPowerSignal(_ context.Context, _ string, signal controlplane.PowerSignal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.powerErr != nil {
		return c.powerErr
	}
	c.powerSignals = append(c.powerSignals, signal)
	return nil
}

func (c *mockClient) RunCommand(_ context.Context, _, _ string) error { return nil }

func (c *mockClient) PushFile(_ context.Context, _, _ string, _ []byte) error { return nil }

func (c *mockClient) SetEnvironmentVariables(_ context.Context, _ controlplane.Instance, _ map[string]string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envCalls++
	if c.envErr != nil {
		return nil, c.envErr
	}
	return c.fellBack, nil
}

func (c *mockClient) WaitForReady(_ context.Context, _ string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waitCalls++
	return c.waitErr
}

// mockNotifier records sent notifications.
type mockNotifier struct {
	mu      sync.Mutex
	sent    []notifier.Notification
	sendErr error
}

func (n *mockNotifier) Name() string { return "mock" }

func (n *mockNotifier) Capabilities() notifier.Capabilities {
	return notifier.Capabilities{}
}

func (n *mockNotifier) Send(_ context.Context, notification notifier.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendErr != nil {
		return n.sendErr
	}
	n.sent = append(n.sent, notification)
	return nil
}

// mockQueue records published events.
type mockQueue struct {
	mu         sync.Mutex
	published  map[string][][]byte
	publishErr error
}

func newMockQueue() *mockQueue {
	return &mockQueue{published: map[string][][]byte{}}
}

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.publishErr != nil {
		return q.publishErr
	}
	q.published[subject] = append(q.published[subject], data)
	return nil
}

func (q *mockQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *mockQueue) Close() error { return nil }

func (q *mockQueue) IsConnected() bool { return true }

func (q *mockQueue) count(subject string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.published[subject])
}
