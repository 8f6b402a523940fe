// Package database defines the deployment store port (interface).
package database

import (
	"context"

	"github.com/guildhost/guildhost/internal/domain/deployment"
)

// Store is the port interface for deployment rows and the append-only
// action/usage log.
type Store interface {
	// Deployments
	CreateDeployment(ctx context.Context, d *deployment.Deployment) (*deployment.Deployment, error)
	GetDeployment(ctx context.Context, id string) (*deployment.Deployment, error)
	ListDeployments(ctx context.Context) ([]deployment.Deployment, error)
	ListDeploymentsByStatus(ctx context.Context, status deployment.Status) ([]deployment.Deployment, error)
	UpdateDeployment(ctx context.Context, id string, upd deployment.Update) error

	// Audit trail (append-only, never mutated)
	AppendActionLog(ctx context.Context, entry deployment.ActionLogEntry) error
	AppendUsageSample(ctx context.Context, sample deployment.UsageSample) error

	// RecentActionLogs returns the newest entries first, filtered by action,
	// at most limit rows.
	RecentActionLogs(ctx context.Context, deploymentID string, action deployment.Action, limit int) ([]deployment.ActionLogEntry, error)

	// ListActionLogs returns the newest entries first regardless of action.
	ListActionLogs(ctx context.Context, deploymentID string, limit int) ([]deployment.ActionLogEntry, error)
}
