package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/guildhost/guildhost/internal/adapter/otel"
	"github.com/guildhost/guildhost/internal/domain/deployment"
	"github.com/guildhost/guildhost/internal/domain/plan"
	"github.com/guildhost/guildhost/internal/port/controlplane"
	"github.com/guildhost/guildhost/internal/port/database"
	"github.com/guildhost/guildhost/internal/port/messagequeue"
	"github.com/guildhost/guildhost/internal/port/notifier"
)

// ProvisionRequest is the input to Provision: a resolved order for one guild.
type ProvisionRequest struct {
	OrderID    string   `json:"order_id"`
	GuildID    string   `json:"guild_id"`
	CustomerID string   `json:"customer_id"`
	Tier       string   `json:"tier"`
	Addons     []string `json:"addons"`
}

// ProvisioningService turns an order into a running instance. The deployment
// row is inserted before any control-plane call, so a crash mid-provision
// always leaves a discoverable record; failures mark the row failed and keep
// it for operator inspection.
type ProvisioningService struct {
	store     database.Store
	client    controlplane.Client
	notify    *NotificationService
	events    messagequeue.Queue
	metrics   *otel.Metrics
	readyWait time.Duration
}

// NewProvisioningService creates a ProvisioningService. events and metrics may
// be nil.
func NewProvisioningService(store database.Store, client controlplane.Client, notify *NotificationService, events messagequeue.Queue, metrics *otel.Metrics, readyWait time.Duration) *ProvisioningService {
	if readyWait <= 0 {
		readyWait = 120 * time.Second
	}
	return &ProvisioningService{
		store:     store,
		client:    client,
		notify:    notify,
		events:    events,
		metrics:   metrics,
		readyWait: readyWait,
	}
}

// instanceName derives a deterministic instance name from the order and guild
// so a retried provision is recognizable on the panel.
func instanceName(orderID, guildID string) string {
	if len(orderID) > 8 {
		orderID = orderID[:8]
	}
	return fmt.Sprintf("bot-%s-%s", orderID, guildID)
}

// Provision resolves the tier, records the deployment, creates the instance
// and activates the row. The returned deployment carries the runtime binding.
func (s *ProvisioningService) Provision(ctx context.Context, req ProvisionRequest) (*deployment.Deployment, error) {
	start := time.Now()
	if s.metrics != nil {
		s.metrics.ProvisionsStarted.Add(ctx, 1)
	}

	resolved := plan.Resolve(req.Tier, req.Addons)
	if resolved.UnknownTier {
		slog.Warn("unknown tier, falling back to default",
			"requested", req.Tier, "tier", resolved.Tier, "guild_id", req.GuildID)
	}

	// The row goes in before any external call. A crash past this point
	// leaves an inspectable provisioning record instead of a silent orphan.
	d, err := s.store.CreateDeployment(ctx, &deployment.Deployment{
		GuildID:    req.GuildID,
		OrderID:    req.OrderID,
		CustomerID: req.CustomerID,
		Tier:       resolved.Tier,
		Features:   resolved.Features,
		Addons:     req.Addons,
		Resources:  resolved.Resources,
		Status:     deployment.StatusProvisioning,
		Health:     deployment.HealthUnknown,
	})
	if err != nil {
		return nil, fmt.Errorf("insert deployment: %w", err)
	}

	s.log(ctx, d.ID, deployment.ActionPending, map[string]any{
		"tier":   resolved.Tier,
		"addons": req.Addons,
	})

	inst, err := s.client.CreateInstance(ctx, controlplane.CreateSpec{
		Name:        instanceName(req.OrderID, req.GuildID),
		Description: "guildhost instance for guild " + req.GuildID,
		Resources:   resolved.Resources,
		Environment: resolved.Environment,
	})
	if err != nil {
		return nil, s.fail(ctx, d.ID, fmt.Errorf("create instance: %w", err))
	}

	// The subserver dialect cannot apply environment at creation time, so
	// variables are pushed after the fact. Incomplete pushes degrade the
	// instance's feature set but never fail the provision.
	fellBack, err := s.client.SetEnvironmentVariables(ctx, *inst, resolved.Environment)
	if err != nil {
		slog.Warn("environment push incomplete", "deployment_id", d.ID, "error", err)
	} else if len(fellBack) > 0 {
		slog.Info("environment variables fell back to .env file",
			"deployment_id", d.ID, "variables", fellBack)
	}

	if err := s.client.WaitForReady(ctx, inst.Identifier, s.readyWait); err != nil {
		// The bounded poll timing out is not a provisioning failure; the
		// instance keeps installing and health stays at starting.
		slog.Warn("readiness poll gave up", "deployment_id", d.ID, "error", err)
	}

	now := time.Now().UTC()
	active := deployment.StatusActive
	starting := deployment.HealthStarting
	err = s.store.UpdateDeployment(ctx, d.ID, deployment.Update{
		Status:          &active,
		Health:          &starting,
		PanelID:         &inst.ID,
		PanelIdentifier: &inst.Identifier,
		PanelUUID:       &inst.UUID,
		ProvisionedAt:   &now,
	})
	if err != nil {
		return nil, s.fail(ctx, d.ID, fmt.Errorf("activate deployment: %w", err))
	}

	s.log(ctx, d.ID, deployment.ActionSuccess, map[string]any{
		"panel_id":   inst.ID,
		"identifier": inst.Identifier,
		"uuid":       inst.UUID,
	})

	if s.metrics != nil {
		s.metrics.ProvisionsSucceeded.Add(ctx, 1)
		s.metrics.ProvisionDuration.Record(ctx, time.Since(start).Seconds())
	}

	s.notify.Notify(ctx, notifier.Notification{
		Title:   "Bot deployed",
		Message: fmt.Sprintf("Your %s bot instance is being installed and will come online shortly.", d.Tier),
		Level:   "success",
		Source:  "bot.deployed",
		GuildID: d.GuildID,
	})
	publishEvent(ctx, s.events, messagequeue.SubjectDeploymentProvisioned, DeploymentEvent{
		DeploymentID: d.ID,
		GuildID:      d.GuildID,
		Tier:         d.Tier,
		Detail:       map[string]any{"identifier": inst.Identifier},
	})

	d.Status = deployment.StatusActive
	d.Health = deployment.HealthStarting
	d.PanelID = &inst.ID
	d.PanelIdentifier = &inst.Identifier
	d.PanelUUID = &inst.UUID
	d.ProvisionedAt = &now
	return d, nil
}

// fail marks the deployment failed with the captured error and records a
// failed action entry. The row is never deleted: a failed provision stays
// visible to operators.
func (s *ProvisioningService) fail(ctx context.Context, id string, cause error) error {
	failed := deployment.StatusFailed
	msg := cause.Error()
	if err := s.store.UpdateDeployment(ctx, id, deployment.Update{
		Status:    &failed,
		LastError: &msg,
	}); err != nil {
		slog.Error("failed to record provisioning failure", "deployment_id", id, "error", err)
	}

	if err := s.store.AppendActionLog(ctx, deployment.ActionLogEntry{
		DeploymentID: id,
		Action:       deployment.ActionProvision,
		Status:       deployment.ActionFailed,
		Detail:       map[string]any{"error": msg},
		Actor:        deployment.ActorSystem,
	}); err != nil {
		slog.Error("failed to append action log", "deployment_id", id, "error", err)
	}

	if s.metrics != nil {
		s.metrics.ProvisionsFailed.Add(ctx, 1)
	}

	publishEvent(ctx, s.events, messagequeue.SubjectDeploymentFailed, DeploymentEvent{
		DeploymentID: id,
		Detail:       map[string]any{"error": msg},
	})
	return cause
}

func (s *ProvisioningService) log(ctx context.Context, id string, status deployment.ActionStatus, detail map[string]any) {
	if err := s.store.AppendActionLog(ctx, deployment.ActionLogEntry{
		DeploymentID: id,
		Action:       deployment.ActionProvision,
		Status:       status,
		Detail:       detail,
		Actor:        deployment.ActorSystem,
	}); err != nil {
		slog.Error("failed to append action log", "deployment_id", id, "error", err)
	}
}
