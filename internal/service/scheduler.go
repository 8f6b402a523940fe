package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/guildhost/guildhost/internal/domain/deployment"
	"github.com/guildhost/guildhost/internal/port/database"
)

// Scheduler drives the periodic scaling loop: every tick it lists active
// deployments and runs one scaling cycle per deployment, bounded by a
// weighted semaphore so a large fleet cannot stampede the control plane.
type Scheduler struct {
	store    database.Store
	scaler   *AutoScaler
	interval time.Duration
	sem      *semaphore.Weighted
}

// NewScheduler creates a Scheduler checking deployments every interval with
// at most maxConcurrent cycles in flight.
func NewScheduler(store database.Store, scaler *AutoScaler, interval time.Duration, maxConcurrent int64) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Scheduler{
		store:    store,
		scaler:   scaler,
		interval: interval,
		sem:      semaphore.NewWeighted(maxConcurrent),
	}
}

// Run blocks until ctx is cancelled, executing one tick per interval. The
// first tick fires after a full interval so startup is quiet.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("scaling scheduler started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("scaling scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scaling pass over all active deployments and waits for every
// in-flight cycle to finish before returning.
func (s *Scheduler) Tick(ctx context.Context) {
	deployments, err := s.store.ListDeploymentsByStatus(ctx, deployment.StatusActive)
	if err != nil {
		slog.Error("scheduler tick: list active deployments", "error", err)
		return
	}
	if len(deployments) == 0 {
		return
	}

	var wg sync.WaitGroup
	for i := range deployments {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(d *deployment.Deployment) {
			defer wg.Done()
			defer s.sem.Release(1)
			s.scaler.CheckDeployment(ctx, d)
		}(&deployments[i])
	}
	wg.Wait()
}
