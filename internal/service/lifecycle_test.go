package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/guildhost/guildhost/internal/domain"
	"github.com/guildhost/guildhost/internal/domain/deployment"
	"github.com/guildhost/guildhost/internal/domain/resource"
	"github.com/guildhost/guildhost/internal/port/controlplane"
)

// seedDeployment inserts a bound deployment in the given status.
func seedDeployment(t *testing.T, store *mockStore, status deployment.Status) *deployment.Deployment {
	t.Helper()
	d, err := store.CreateDeployment(context.Background(), &deployment.Deployment{
		GuildID:   "guild1",
		OrderID:   "o1",
		Tier:      "starter",
		Resources: resource.Envelope{MemoryMB: 512, CPUPercent: 25, DiskMB: 2048, Backups: 1, Databases: 1},
		Status:    status,
		Health:    deployment.HealthHealthy,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	panelID := 42
	ident := "inst42"
	if err := store.UpdateDeployment(context.Background(), d.ID, deployment.Update{
		Status:          &status,
		PanelID:         &panelID,
		PanelIdentifier: &ident,
	}); err != nil {
		t.Fatalf("seed binding: %v", err)
	}
	d.PanelID = &panelID
	d.PanelIdentifier = &ident
	return d
}

func TestSuspendActive(t *testing.T) {
	store := newMockStore()
	client := newMockClient()
	svc := NewLifecycleService(store, client, nil, nil, nil)
	d := seedDeployment(t, store, deployment.StatusActive)

	if err := svc.Suspend(context.Background(), d.ID, "billing overdue", "operator"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := store.GetDeployment(context.Background(), d.ID)
	if got.Status != deployment.StatusSuspended {
		t.Fatalf("expected suspended, got %s", got.Status)
	}
	if got.SuspendedAt == nil {
		t.Fatal("suspended_at not set")
	}
	if len(client.powerSignals) != 1 || client.powerSignals[0] != controlplane.PowerStop {
		t.Fatalf("expected stop signal, got %v", client.powerSignals)
	}
	if len(client.suspended) != 1 || client.suspended[0] != 42 {
		t.Fatalf("expected panel suspend for 42, got %v", client.suspended)
	}

	entries := store.actionEntries(deployment.ActionSuspend)
	if len(entries) != 1 || entries[0].Detail["reason"] != "billing overdue" {
		t.Fatalf("unexpected suspend log: %+v", entries)
	}
}

func TestSuspendAlreadySuspendedIsNoOp(t *testing.T) {
	store := newMockStore()
	client := newMockClient()
	svc := NewLifecycleService(store, client, nil, nil, nil)
	d := seedDeployment(t, store, deployment.StatusSuspended)

	if err := svc.Suspend(context.Background(), d.ID, "again", "operator"); err != nil {
		t.Fatalf("double suspend must be a no-op success: %v", err)
	}
	if len(client.powerSignals) != 0 || len(client.suspended) != 0 {
		t.Fatal("no-op suspend must not issue control-plane calls")
	}
}

func TestSuspendWrongStatusRejectedLocally(t *testing.T) {
	store := newMockStore()
	client := newMockClient()
	svc := NewLifecycleService(store, client, nil, nil, nil)
	d := seedDeployment(t, store, deployment.StatusProvisioning)

	err := svc.Suspend(context.Background(), d.ID, "x", "operator")
	if !errors.Is(err, domain.ErrPrecondition) {
		t.Fatalf("expected precondition violation, got %v", err)
	}
	if len(client.powerSignals) != 0 {
		t.Fatal("rejected transition must not reach the control plane")
	}
}

func TestResumeSuspended(t *testing.T) {
	store := newMockStore()
	client := newMockClient()
	svc := NewLifecycleService(store, client, nil, nil, nil)
	d := seedDeployment(t, store, deployment.StatusSuspended)
	now := time.Now().UTC()
	_ = store.UpdateDeployment(context.Background(), d.ID, deployment.Update{SuspendedAt: &now})

	if err := svc.Resume(context.Background(), d.ID, "operator"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := store.GetDeployment(context.Background(), d.ID)
	if got.Status != deployment.StatusActive {
		t.Fatalf("expected active, got %s", got.Status)
	}
	if got.SuspendedAt != nil {
		t.Fatal("suspended_at must be cleared on resume")
	}
	if len(client.resumed) != 1 {
		t.Fatalf("expected panel resume, got %v", client.resumed)
	}
	if len(client.powerSignals) != 1 || client.powerSignals[0] != controlplane.PowerStart {
		t.Fatalf("expected start signal, got %v", client.powerSignals)
	}
}

func TestResumeActiveIsNoOp(t *testing.T) {
	store := newMockStore()
	client := newMockClient()
	svc := NewLifecycleService(store, client, nil, nil, nil)
	d := seedDeployment(t, store, deployment.StatusActive)

	if err := svc.Resume(context.Background(), d.ID, "operator"); err != nil {
		t.Fatalf("resume of active must be a no-op success: %v", err)
	}
	if len(client.resumed) != 0 {
		t.Fatal("no-op resume must not issue control-plane calls")
	}
}

func TestResizeChangesPlanNotStatus(t *testing.T) {
	store := newMockStore()
	client := newMockClient()
	svc := NewLifecycleService(store, client, nil, nil, nil)
	d := seedDeployment(t, store, deployment.StatusSuspended)

	got, err := svc.Resize(context.Background(), d.ID, "pro", []string{"extra_database"}, "operator")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != deployment.StatusSuspended {
		t.Fatalf("resize must not change status, got %s", got.Status)
	}
	if got.Tier != "pro" {
		t.Fatalf("expected tier pro, got %s", got.Tier)
	}
	if got.Resources.MemoryMB != 1024 || got.Resources.Databases != 3 {
		t.Fatalf("unexpected envelope: %+v", got.Resources)
	}
	if len(client.resized) != 1 || client.resized[0].MemoryMB != 1024 {
		t.Fatalf("expected control-plane resize, got %v", client.resized)
	}

	entries := store.actionEntries(deployment.ActionResize)
	if len(entries) != 1 || entries[0].Actor != "operator" {
		t.Fatalf("unexpected resize log: %+v", entries)
	}
}

func TestResizeUnboundRejected(t *testing.T) {
	store := newMockStore()
	client := newMockClient()
	svc := NewLifecycleService(store, client, nil, nil, nil)
	d, _ := store.CreateDeployment(context.Background(), &deployment.Deployment{
		Status: deployment.StatusActive,
	})

	_, err := svc.Resize(context.Background(), d.ID, "pro", nil, "operator")
	if !errors.Is(err, domain.ErrPrecondition) {
		t.Fatalf("expected precondition violation, got %v", err)
	}
}

func TestResizeToReturnsOldEnvelope(t *testing.T) {
	store := newMockStore()
	client := newMockClient()
	svc := NewLifecycleService(store, client, nil, nil, nil)
	d := seedDeployment(t, store, deployment.StatusActive)

	target := resource.Envelope{MemoryMB: 768, CPUPercent: 50, DiskMB: 3072, Backups: 1, Databases: 1}
	old, err := svc.ResizeTo(context.Background(), d.ID, target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if old.MemoryMB != 512 {
		t.Fatalf("expected old envelope 512MB, got %+v", old)
	}

	got, _ := store.GetDeployment(context.Background(), d.ID)
	if got.Resources != target {
		t.Fatalf("envelope not persisted: %+v", got.Resources)
	}
}

func TestTerminate(t *testing.T) {
	store := newMockStore()
	client := newMockClient()
	queue := newMockQueue()
	svc := NewLifecycleService(store, client, nil, queue, nil)
	d := seedDeployment(t, store, deployment.StatusActive)

	if err := svc.Terminate(context.Background(), d.ID, "operator"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := store.GetDeployment(context.Background(), d.ID)
	if got.Status != deployment.StatusTerminated || got.TerminatedAt == nil {
		t.Fatalf("expected terminated with timestamp, got %+v", got)
	}
	if len(client.deleted) != 1 || client.deleted[0] != 42 {
		t.Fatalf("expected instance delete, got %v", client.deleted)
	}
}

func TestTerminateFromFailed(t *testing.T) {
	store := newMockStore()
	client := newMockClient()
	svc := NewLifecycleService(store, client, nil, nil, nil)
	d := seedDeployment(t, store, deployment.StatusFailed)

	if err := svc.Terminate(context.Background(), d.ID, "operator"); err != nil {
		t.Fatalf("failed deployments must be terminable: %v", err)
	}
}

func TestTerminateUnboundSkipsDelete(t *testing.T) {
	store := newMockStore()
	client := newMockClient()
	svc := NewLifecycleService(store, client, nil, nil, nil)
	d, _ := store.CreateDeployment(context.Background(), &deployment.Deployment{
		Status: deployment.StatusProvisioning,
	})

	if err := svc.Terminate(context.Background(), d.ID, "operator"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.deleted) != 0 {
		t.Fatal("unbound deployment has nothing to delete")
	}
}

func TestTerminatedIsTerminal(t *testing.T) {
	store := newMockStore()
	client := newMockClient()
	svc := NewLifecycleService(store, client, nil, nil, nil)
	d := seedDeployment(t, store, deployment.StatusTerminated)

	if err := svc.Terminate(context.Background(), d.ID, "operator"); !errors.Is(err, domain.ErrTerminated) {
		t.Fatalf("expected ErrTerminated, got %v", err)
	}
	if err := svc.Suspend(context.Background(), d.ID, "x", "operator"); !errors.Is(err, domain.ErrTerminated) {
		t.Fatalf("expected ErrTerminated, got %v", err)
	}
	if err := svc.Resume(context.Background(), d.ID, "operator"); !errors.Is(err, domain.ErrTerminated) {
		t.Fatalf("expected ErrTerminated, got %v", err)
	}
	if _, err := svc.Resize(context.Background(), d.ID, "pro", nil, "operator"); !errors.Is(err, domain.ErrTerminated) {
		t.Fatalf("expected ErrTerminated, got %v", err)
	}
	// Rejections happen locally, before any control-plane call.
	if len(client.deleted)+len(client.suspended)+len(client.resumed)+len(client.resized)+len(client.powerSignals) != 0 {
		t.Fatal("terminated deployment must never reach the control plane")
	}
}

func TestSuspendFailureRecordsActionLog(t *testing.T) {
	store := newMockStore()
	client := newMockClient()
	client.powerErr = errors.New("panel 502")
	svc := NewLifecycleService(store, client, nil, nil, nil)
	d := seedDeployment(t, store, deployment.StatusActive)

	err := svc.Suspend(context.Background(), d.ID, "x", "operator")
	if err == nil {
		t.Fatal("expected error")
	}

	got, _ := store.GetDeployment(context.Background(), d.ID)
	if got.Status != deployment.StatusActive {
		t.Fatalf("failed suspend must not change status, got %s", got.Status)
	}
	if got.LastError == "" {
		t.Fatal("last_error must capture the failure")
	}
	entries := store.actionEntries(deployment.ActionSuspend)
	if len(entries) != 1 || entries[0].Status != deployment.ActionFailed {
		t.Fatalf("expected failed suspend entry, got %+v", entries)
	}
}
