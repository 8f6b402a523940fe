package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/guildhost/guildhost/internal/adapter/otel"
	"github.com/guildhost/guildhost/internal/domain"
	"github.com/guildhost/guildhost/internal/domain/deployment"
	"github.com/guildhost/guildhost/internal/domain/plan"
	"github.com/guildhost/guildhost/internal/domain/resource"
	"github.com/guildhost/guildhost/internal/port/controlplane"
	"github.com/guildhost/guildhost/internal/port/database"
	"github.com/guildhost/guildhost/internal/port/messagequeue"
	"github.com/guildhost/guildhost/internal/port/notifier"
	"github.com/guildhost/guildhost/internal/resilience"
)

// LifecycleService drives guarded status transitions on existing deployments:
// suspend, resume, resize and terminate. Operations on the same deployment id
// are serialized through a keyed mutex, and every transition re-reads the
// current status before acting so a losing concurrent caller fails its guard
// instead of corrupting state.
type LifecycleService struct {
	store   database.Store
	client  controlplane.Client
	locks   *resilience.KeyedMutex
	notify  *NotificationService
	events  messagequeue.Queue
	metrics *otel.Metrics
}

// NewLifecycleService creates a LifecycleService. notify, events and metrics
// may be nil.
func NewLifecycleService(store database.Store, client controlplane.Client, notify *NotificationService, events messagequeue.Queue, metrics *otel.Metrics) *LifecycleService {
	return &LifecycleService{
		store:   store,
		client:  client,
		locks:   resilience.NewKeyedMutex(),
		notify:  notify,
		events:  events,
		metrics: metrics,
	}
}

// Suspend stops the instance and parks the deployment. Suspending an already
// suspended deployment is a no-op success: no duplicate control-plane call is
// made.
func (s *LifecycleService) Suspend(ctx context.Context, id, reason, actor string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.store.GetDeployment(ctx, id)
	if err != nil {
		return err
	}

	switch {
	case d.Status == deployment.StatusSuspended:
		return nil
	case d.Status == deployment.StatusTerminated:
		return fmt.Errorf("suspend %s: %w", id, domain.ErrTerminated)
	case !d.Status.CanTransition(deployment.StatusSuspended):
		return fmt.Errorf("suspend %s: status is %s: %w", id, d.Status, domain.ErrPrecondition)
	}

	if d.PanelIdentifier != nil {
		if err := s.client.SendPowerSignal(ctx, *d.PanelIdentifier, controlplane.PowerStop); err != nil {
			return s.failAction(ctx, id, deployment.ActionSuspend, actor, err)
		}
	}
	if d.PanelID != nil {
		if err := s.client.Suspend(ctx, *d.PanelID); err != nil {
			return s.failAction(ctx, id, deployment.ActionSuspend, actor, err)
		}
	}

	now := time.Now().UTC()
	suspended := deployment.StatusSuspended
	if err := s.store.UpdateDeployment(ctx, id, deployment.Update{
		Status:      &suspended,
		SuspendedAt: &now,
	}); err != nil {
		return fmt.Errorf("suspend %s: %w", id, err)
	}

	s.logAction(ctx, id, deployment.ActionSuspend, actor, map[string]any{"reason": reason})
	s.notify.Notify(ctx, notifier.Notification{
		Title:   "Bot suspended",
		Message: "Your bot instance has been suspended. Reason: " + reason,
		Level:   "warning",
		Source:  "bot.suspended",
		GuildID: d.GuildID,
	})
	publishEvent(ctx, s.events, messagequeue.SubjectDeploymentSuspended, DeploymentEvent{
		DeploymentID: id,
		GuildID:      d.GuildID,
		Tier:         d.Tier,
		Detail:       map[string]any{"reason": reason},
	})
	return nil
}

// Resume unparks a suspended deployment and starts its instance.
func (s *LifecycleService) Resume(ctx context.Context, id, actor string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.store.GetDeployment(ctx, id)
	if err != nil {
		return err
	}

	switch d.Status {
	case deployment.StatusActive:
		return nil
	case deployment.StatusTerminated:
		return fmt.Errorf("resume %s: %w", id, domain.ErrTerminated)
	case deployment.StatusSuspended:
		// proceed
	default:
		return fmt.Errorf("resume %s: status is %s: %w", id, d.Status, domain.ErrPrecondition)
	}

	if d.PanelID != nil {
		if err := s.client.Resume(ctx, *d.PanelID); err != nil {
			return s.failAction(ctx, id, deployment.ActionUnsuspend, actor, err)
		}
	}
	if d.PanelIdentifier != nil {
		if err := s.client.SendPowerSignal(ctx, *d.PanelIdentifier, controlplane.PowerStart); err != nil {
			return s.failAction(ctx, id, deployment.ActionUnsuspend, actor, err)
		}
	}

	active := deployment.StatusActive
	if err := s.store.UpdateDeployment(ctx, id, deployment.Update{
		Status:         &active,
		ClearSuspended: true,
	}); err != nil {
		return fmt.Errorf("resume %s: %w", id, err)
	}

	s.logAction(ctx, id, deployment.ActionUnsuspend, actor, nil)
	publishEvent(ctx, s.events, messagequeue.SubjectDeploymentResumed, DeploymentEvent{
		DeploymentID: id,
		GuildID:      d.GuildID,
		Tier:         d.Tier,
	})
	return nil
}

// Resize re-resolves the plan and applies the new envelope. The deployment's
// status is unchanged: resizing is allowed while active or suspended.
func (s *LifecycleService) Resize(ctx context.Context, id, tier string, addons []string, actor string) (*deployment.Deployment, error) {
	resolved := plan.Resolve(tier, addons)
	if resolved.UnknownTier {
		slog.Warn("unknown tier on resize, falling back to default",
			"requested", tier, "tier", resolved.Tier, "deployment_id", id)
	}

	old, err := s.ResizeTo(ctx, id, resolved.Resources)
	if err != nil {
		return nil, err
	}

	newTier := resolved.Tier
	if err := s.store.UpdateDeployment(ctx, id, deployment.Update{
		Tier:     &newTier,
		Features: resolved.Features,
		Addons:   addons,
	}); err != nil {
		return nil, fmt.Errorf("resize %s: persist plan: %w", id, err)
	}

	s.logAction(ctx, id, deployment.ActionResize, actor, map[string]any{
		"tier": resolved.Tier,
		"old":  old,
		"new":  resolved.Resources,
	})
	publishEvent(ctx, s.events, messagequeue.SubjectDeploymentResized, DeploymentEvent{
		DeploymentID: id,
		Tier:         resolved.Tier,
		Detail:       map[string]any{"memory_mb": resolved.Resources.MemoryMB},
	})

	return s.store.GetDeployment(ctx, id)
}

// ResizeTo applies a concrete envelope through the control plane and persists
// it, returning the previous envelope. It is the shared resize path for plan
// changes and auto-scaling; callers record their own action log entries.
func (s *LifecycleService) ResizeTo(ctx context.Context, id string, res resource.Envelope) (resource.Envelope, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.store.GetDeployment(ctx, id)
	if err != nil {
		return resource.Envelope{}, err
	}

	if d.Status == deployment.StatusTerminated {
		return resource.Envelope{}, fmt.Errorf("resize %s: %w", id, domain.ErrTerminated)
	}
	if !d.Status.Resizable() {
		return resource.Envelope{}, fmt.Errorf("resize %s: status is %s: %w", id, d.Status, domain.ErrPrecondition)
	}
	if !d.Bound() {
		return resource.Envelope{}, fmt.Errorf("resize %s: no runtime binding: %w", id, domain.ErrPrecondition)
	}

	if err := s.client.Resize(ctx, *d.PanelID, res); err != nil {
		return resource.Envelope{}, fmt.Errorf("resize %s: %w", id, err)
	}

	if err := s.store.UpdateDeployment(ctx, id, deployment.Update{Resources: &res}); err != nil {
		return resource.Envelope{}, fmt.Errorf("resize %s: persist envelope: %w", id, err)
	}

	return d.Resources, nil
}

// Terminate deletes the instance and soft-closes the deployment. The delete
// is idempotent (404 is success) and the transition is irreversible: any
// further call on a terminated deployment is rejected before reaching the
// control plane.
func (s *LifecycleService) Terminate(ctx context.Context, id, actor string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.store.GetDeployment(ctx, id)
	if err != nil {
		return err
	}

	if !d.Status.CanTransition(deployment.StatusTerminated) {
		return fmt.Errorf("terminate %s: %w", id, domain.ErrTerminated)
	}

	if d.PanelID != nil {
		if err := s.client.DeleteInstance(ctx, *d.PanelID); err != nil {
			return s.failAction(ctx, id, deployment.ActionTerminate, actor, err)
		}
	}

	now := time.Now().UTC()
	terminated := deployment.StatusTerminated
	if err := s.store.UpdateDeployment(ctx, id, deployment.Update{
		Status:       &terminated,
		TerminatedAt: &now,
	}); err != nil {
		return fmt.Errorf("terminate %s: %w", id, err)
	}

	if s.metrics != nil {
		s.metrics.Terminations.Add(ctx, 1)
	}

	s.logAction(ctx, id, deployment.ActionTerminate, actor, nil)
	s.notify.Notify(ctx, notifier.Notification{
		Title:   "Bot terminated",
		Message: "Your bot instance has been shut down and removed.",
		Level:   "info",
		Source:  "bot.terminated",
		GuildID: d.GuildID,
	})
	publishEvent(ctx, s.events, messagequeue.SubjectDeploymentTerminated, DeploymentEvent{
		DeploymentID: id,
		GuildID:      d.GuildID,
		Tier:         d.Tier,
	})
	return nil
}

// failAction records a failed action entry and the error message on the row,
// then returns the error. The lifecycle never lets an error escape without
// first attempting to record it.
func (s *LifecycleService) failAction(ctx context.Context, id string, action deployment.Action, actor string, cause error) error {
	msg := cause.Error()
	if err := s.store.UpdateDeployment(ctx, id, deployment.Update{LastError: &msg}); err != nil {
		slog.Error("failed to record action error", "deployment_id", id, "action", action, "error", err)
	}
	if err := s.store.AppendActionLog(ctx, deployment.ActionLogEntry{
		DeploymentID: id,
		Action:       action,
		Status:       deployment.ActionFailed,
		Detail:       map[string]any{"error": msg},
		Actor:        actor,
	}); err != nil {
		slog.Error("failed to append action log", "deployment_id", id, "action", action, "error", err)
	}
	return fmt.Errorf("%s %s: %w", action, id, cause)
}

func (s *LifecycleService) logAction(ctx context.Context, id string, action deployment.Action, actor string, detail map[string]any) {
	if err := s.store.AppendActionLog(ctx, deployment.ActionLogEntry{
		DeploymentID: id,
		Action:       action,
		Status:       deployment.ActionSuccess,
		Detail:       detail,
		Actor:        actor,
	}); err != nil {
		slog.Error("failed to append action log", "deployment_id", id, "action", action, "error", err)
	}
}
