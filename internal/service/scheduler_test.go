package service

import (
	"context"
	"testing"
	"time"

	"github.com/guildhost/guildhost/internal/domain/deployment"
)

func TestTickChecksOnlyBoundActiveDeployments(t *testing.T) {
	store := newMockStore()
	client := newMockClient()
	scaler := newScaler(store, client, nil)

	for i := 0; i < 5; i++ {
		seedDeployment(t, store, deployment.StatusActive)
	}
	seedDeployment(t, store, deployment.StatusSuspended)
	// Active but never bound to an instance.
	if _, err := store.CreateDeployment(context.Background(), &deployment.Deployment{
		Status: deployment.StatusActive,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	sched := NewScheduler(store, scaler, time.Minute, 2)
	sched.Tick(context.Background())

	if len(store.samples) != 5 {
		t.Fatalf("expected 5 usage samples, got %d", len(store.samples))
	}
	if len(client.resized) != 0 {
		t.Fatalf("quiet usage must not resize: %v", client.resized)
	}
}

func TestTickEmptyFleet(t *testing.T) {
	store := newMockStore()
	scaler := newScaler(store, newMockClient(), nil)
	sched := NewScheduler(store, scaler, time.Minute, 4)

	sched.Tick(context.Background())

	if len(store.samples) != 0 {
		t.Fatal("nothing to check")
	}
}
