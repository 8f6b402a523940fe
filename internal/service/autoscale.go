package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/guildhost/guildhost/internal/adapter/otel"
	"github.com/guildhost/guildhost/internal/config"
	"github.com/guildhost/guildhost/internal/domain/deployment"
	"github.com/guildhost/guildhost/internal/domain/plan"
	"github.com/guildhost/guildhost/internal/domain/resource"
	"github.com/guildhost/guildhost/internal/port/controlplane"
	"github.com/guildhost/guildhost/internal/port/database"
	"github.com/guildhost/guildhost/internal/port/messagequeue"
)

// Direction is the sense of a scaling decision.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Decision is the outcome of one scaling evaluation.
type Decision struct {
	ShouldScale bool              `json:"should_scale"`
	Direction   Direction         `json:"direction,omitempty"`
	Current     resource.Envelope `json:"current"`
	Target      resource.Envelope `json:"target"`
	Reason      string            `json:"reason"`
}

// AutoScaler evaluates resource pressure per deployment and resizes the
// envelope through the lifecycle service. It keeps no state between cycles:
// the decision window is re-derived from the persisted action log on every
// run, so a restart (or a second scheduler instance) cannot skew a decision.
type AutoScaler struct {
	store   database.Store
	client  controlplane.Client
	resizer *LifecycleService
	cfg     config.Scaling
	events  messagequeue.Queue
	metrics *otel.Metrics
}

// NewAutoScaler creates an AutoScaler. events and metrics may be nil.
func NewAutoScaler(store database.Store, client controlplane.Client, resizer *LifecycleService, cfg config.Scaling, events messagequeue.Queue, metrics *otel.Metrics) *AutoScaler {
	return &AutoScaler{
		store:   store,
		client:  client,
		resizer: resizer,
		cfg:     cfg,
		events:  events,
		metrics: metrics,
	}
}

// RecordUsage persists one usage sample and the resource_check action log
// entry the evaluation window is built from.
func (a *AutoScaler) RecordUsage(ctx context.Context, id string, usage controlplane.Usage) error {
	if err := a.store.AppendUsageSample(ctx, deployment.UsageSample{
		DeploymentID:  id,
		MemoryPercent: usage.MemoryPercent,
		CPUPercent:    usage.CPUPercent,
		DiskPercent:   usage.DiskPercent,
	}); err != nil {
		return fmt.Errorf("record usage for %s: %w", id, err)
	}

	if err := a.store.AppendActionLog(ctx, deployment.ActionLogEntry{
		DeploymentID: id,
		Action:       deployment.ActionResourceCheck,
		Status:       deployment.ActionSuccess,
		Detail: map[string]any{
			"memory_percent": usage.MemoryPercent,
			"cpu_percent":    usage.CPUPercent,
			"disk_percent":   usage.DiskPercent,
		},
		Actor: deployment.ActorSystem,
	}); err != nil {
		return fmt.Errorf("record resource check for %s: %w", id, err)
	}
	return nil
}

// Evaluate builds the decision window from the most recent resource_check
// entries and applies the threshold rules. Scaling up needs only a few high
// readings (disjunction across resources); scaling down needs the entire
// window simultaneously low on every resource, and is refused outright when
// the current envelope sits exactly on a tier's base allocation.
func (a *AutoScaler) Evaluate(ctx context.Context, id string, usage controlplane.Usage, current resource.Envelope) (Decision, error) {
	d := Decision{Current: current, Target: current}

	window, err := a.store.RecentActionLogs(ctx, id, deployment.ActionResourceCheck, a.cfg.ScaleDownWindow)
	if err != nil {
		return d, fmt.Errorf("evaluate %s: read window: %w", id, err)
	}

	high := 0
	allLow := len(window) == a.cfg.ScaleDownWindow
	for _, e := range window {
		mem := toFloat(e.Detail["memory_percent"])
		cpu := toFloat(e.Detail["cpu_percent"])
		disk := toFloat(e.Detail["disk_percent"])
		if mem > a.cfg.HighMemory || cpu > a.cfg.HighCPU || disk > a.cfg.HighDisk {
			high++
		}
		if mem >= a.cfg.LowThreshold || cpu >= a.cfg.LowThreshold || disk >= a.cfg.LowThreshold {
			allLow = false
		}
	}

	step := resource.Envelope{
		MemoryMB:   a.cfg.MemoryStepMB,
		CPUPercent: a.cfg.CPUStepPercent,
		DiskMB:     a.cfg.DiskStepMB,
	}

	switch {
	case high >= a.cfg.ScaleUpWindow:
		ceiling := resource.Envelope{
			MemoryMB:   a.cfg.MaxMemoryMB,
			CPUPercent: a.cfg.MaxCPUPercent,
			DiskMB:     a.cfg.MaxDiskMB,
		}
		target := resource.Cap(resource.Add(current, step), ceiling)
		if resource.SameAllocation(target, current) {
			d.Reason = "resource pressure but envelope already at ceiling"
			return d, nil
		}
		d.ShouldScale = true
		d.Direction = DirectionUp
		d.Target = target
		d.Reason = fmt.Sprintf("%d of last %d checks high, %s", high, len(window), dominantResource(usage))
		return d, nil

	case allLow:
		if name, ok := plan.TierFloor(current); ok {
			d.Reason = fmt.Sprintf("sustained low usage but envelope is at the %s tier floor", name)
			if a.metrics != nil {
				a.metrics.ScaleRefusals.Add(ctx, 1)
			}
			return d, nil
		}
		floor := resource.Envelope{
			MemoryMB:   a.cfg.MinMemoryMB,
			CPUPercent: a.cfg.MinCPUPercent,
			DiskMB:     a.cfg.MinDiskMB,
		}
		target := resource.Floor(resource.Envelope{
			MemoryMB:   current.MemoryMB - step.MemoryMB,
			CPUPercent: current.CPUPercent - step.CPUPercent,
			DiskMB:     current.DiskMB - step.DiskMB,
			Backups:    current.Backups,
			Databases:  current.Databases,
		}, floor)
		if resource.SameAllocation(target, current) {
			d.Reason = "sustained low usage but envelope already at minimum"
			return d, nil
		}
		d.ShouldScale = true
		d.Direction = DirectionDown
		d.Target = target
		d.Reason = fmt.Sprintf("all %d recent checks below %.0f%%", len(window), a.cfg.LowThreshold)
		return d, nil
	}

	d.Reason = "usage within thresholds"
	return d, nil
}

// Apply executes a positive decision through the shared resize path and
// records the outcome. It reports success as a bool and never propagates an
// error as fatal: a failed attempt is logged and the next tick retries.
func (a *AutoScaler) Apply(ctx context.Context, id string, decision Decision) bool {
	if !decision.ShouldScale {
		return false
	}

	old, err := a.resizer.ResizeTo(ctx, id, decision.Target)
	if err != nil {
		slog.Error("auto-scale resize failed", "deployment_id", id, "direction", decision.Direction, "error", err)
		if logErr := a.store.AppendActionLog(ctx, deployment.ActionLogEntry{
			DeploymentID: id,
			Action:       deployment.ActionAutoScale,
			Status:       deployment.ActionFailed,
			Detail: map[string]any{
				"direction": string(decision.Direction),
				"error":     err.Error(),
			},
			Actor: deployment.ActorSystem,
		}); logErr != nil {
			slog.Error("failed to append action log", "deployment_id", id, "error", logErr)
		}
		return false
	}

	if err := a.store.AppendActionLog(ctx, deployment.ActionLogEntry{
		DeploymentID: id,
		Action:       deployment.ActionAutoScale,
		Status:       deployment.ActionSuccess,
		Detail: map[string]any{
			"direction": string(decision.Direction),
			"reason":    decision.Reason,
			"old":       old,
			"new":       decision.Target,
		},
		Actor: deployment.ActorSystem,
	}); err != nil {
		slog.Error("failed to append action log", "deployment_id", id, "error", err)
	}

	if a.metrics != nil {
		switch decision.Direction {
		case DirectionUp:
			a.metrics.ScaleUps.Add(ctx, 1)
		case DirectionDown:
			a.metrics.ScaleDowns.Add(ctx, 1)
		}
	}

	publishEvent(ctx, a.events, messagequeue.SubjectDeploymentScaled, DeploymentEvent{
		DeploymentID: id,
		Detail: map[string]any{
			"direction": string(decision.Direction),
			"memory_mb": decision.Target.MemoryMB,
			"reason":    decision.Reason,
		},
	})
	return true
}

// Check runs one full scaling cycle for a bound deployment: fetch usage,
// record it, evaluate, apply. It returns the decision and whether a resize
// was actually applied.
func (a *AutoScaler) Check(ctx context.Context, d *deployment.Deployment) (Decision, bool, error) {
	usage, err := a.client.GetUsage(ctx, *d.PanelIdentifier)
	if err != nil {
		return Decision{}, false, fmt.Errorf("fetch usage for %s: %w", d.ID, err)
	}
	if err := a.RecordUsage(ctx, d.ID, *usage); err != nil {
		return Decision{}, false, err
	}
	decision, err := a.Evaluate(ctx, d.ID, *usage, d.Resources)
	if err != nil {
		return decision, false, err
	}
	if !decision.ShouldScale {
		return decision, false, nil
	}
	return decision, a.Apply(ctx, d.ID, decision), nil
}

// CheckDeployment is the scheduler entry point. Errors are logged and
// swallowed so a bad cycle for one deployment never disturbs its siblings;
// the next tick retries.
func (a *AutoScaler) CheckDeployment(ctx context.Context, d *deployment.Deployment) {
	if !d.Bound() {
		return
	}

	decision, applied, err := a.Check(ctx, d)
	if err != nil {
		slog.Warn("scaling cycle skipped", "deployment_id", d.ID, "error", err)
		return
	}
	if !applied {
		slog.Debug("no scaling action", "deployment_id", d.ID, "reason", decision.Reason)
		return
	}

	slog.Info("deployment scaled",
		"deployment_id", d.ID,
		"direction", decision.Direction,
		"memory_mb", decision.Target.MemoryMB,
		"cpu_percent", decision.Target.CPUPercent,
		"disk_mb", decision.Target.DiskMB,
		"reason", decision.Reason)
}

// dominantResource names the resource with the highest reading in the current
// sample, so the decision reason points at what is actually under pressure.
func dominantResource(u controlplane.Usage) string {
	name, val := "memory", u.MemoryPercent
	if u.CPUPercent > val {
		name, val = "cpu", u.CPUPercent
	}
	if u.DiskPercent > val {
		name, val = "disk", u.DiskPercent
	}
	return fmt.Sprintf("%s at %.1f%%", name, val)
}

// toFloat reads a numeric detail value. Entries round-trip through JSON, so
// numbers written as float64 may come back as float64 regardless of the
// original Go type.
func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
