package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/guildhost/guildhost/internal/domain"
	"github.com/guildhost/guildhost/internal/domain/deployment"
)

const deploymentColumns = `id, guild_id, order_id, customer_id, tier, features, addons,
	memory_mb, cpu_percent, disk_mb, backups, databases,
	panel_id, panel_identifier, panel_uuid,
	status, health, last_error,
	provisioned_at, suspended_at, terminated_at, created_at, updated_at`

func scanDeployment(row pgx.Row) (*deployment.Deployment, error) {
	var d deployment.Deployment
	var featuresJSON, addonsJSON []byte
	err := row.Scan(
		&d.ID, &d.GuildID, &d.OrderID, &d.CustomerID, &d.Tier, &featuresJSON, &addonsJSON,
		&d.Resources.MemoryMB, &d.Resources.CPUPercent, &d.Resources.DiskMB,
		&d.Resources.Backups, &d.Resources.Databases,
		&d.PanelID, &d.PanelIdentifier, &d.PanelUUID,
		&d.Status, &d.Health, &d.LastError,
		&d.ProvisionedAt, &d.SuspendedAt, &d.TerminatedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if featuresJSON != nil {
		_ = json.Unmarshal(featuresJSON, &d.Features)
	}
	if addonsJSON != nil {
		_ = json.Unmarshal(addonsJSON, &d.Addons)
	}
	return &d, nil
}

func (s *Store) CreateDeployment(ctx context.Context, d *deployment.Deployment) (*deployment.Deployment, error) {
	featuresJSON, err := json.Marshal(d.Features)
	if err != nil {
		return nil, fmt.Errorf("marshal features: %w", err)
	}
	addonsJSON, err := json.Marshal(d.Addons)
	if err != nil {
		return nil, fmt.Errorf("marshal addons: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO deployments
			(guild_id, order_id, customer_id, tier, features, addons,
			 memory_mb, cpu_percent, disk_mb, backups, databases, status, health)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING `+deploymentColumns,
		d.GuildID, d.OrderID, d.CustomerID, d.Tier, featuresJSON, addonsJSON,
		d.Resources.MemoryMB, d.Resources.CPUPercent, d.Resources.DiskMB,
		d.Resources.Backups, d.Resources.Databases, d.Status, d.Health,
	)

	created, err := scanDeployment(row)
	if err != nil {
		return nil, fmt.Errorf("create deployment: %w", err)
	}
	return created, nil
}

func (s *Store) GetDeployment(ctx context.Context, id string) (*deployment.Deployment, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+deploymentColumns+` FROM deployments WHERE id = $1`, id)

	d, err := scanDeployment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get deployment %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get deployment %s: %w", id, err)
	}
	return d, nil
}

func (s *Store) ListDeployments(ctx context.Context) ([]deployment.Deployment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+deploymentColumns+` FROM deployments ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	return collectDeployments(rows)
}

func (s *Store) ListDeploymentsByStatus(ctx context.Context, status deployment.Status) ([]deployment.Deployment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+deploymentColumns+` FROM deployments WHERE status = $1 ORDER BY created_at ASC`,
		status)
	if err != nil {
		return nil, fmt.Errorf("list deployments by status: %w", err)
	}
	defer rows.Close()

	return collectDeployments(rows)
}

func collectDeployments(rows pgx.Rows) ([]deployment.Deployment, error) {
	var out []deployment.Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deployment: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// UpdateDeployment applies a partial update. The WHERE clause rejects writes
// to terminated rows so the terminal state is enforced at the store boundary
// as well as in the services.
func (s *Store) UpdateDeployment(ctx context.Context, id string, upd deployment.Update) error {
	set := []string{"updated_at = now()"}
	args := []any{id}

	add := func(expr string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf(expr, len(args)))
	}

	if upd.Status != nil {
		add("status = $%d", *upd.Status)
	}
	if upd.Health != nil {
		add("health = $%d", *upd.Health)
	}
	if upd.LastError != nil {
		add("last_error = $%d", *upd.LastError)
	}
	if upd.Tier != nil {
		add("tier = $%d", *upd.Tier)
	}
	if upd.Features != nil {
		featuresJSON, err := json.Marshal(upd.Features)
		if err != nil {
			return fmt.Errorf("marshal features: %w", err)
		}
		add("features = $%d", featuresJSON)
	}
	if upd.Addons != nil {
		addonsJSON, err := json.Marshal(upd.Addons)
		if err != nil {
			return fmt.Errorf("marshal addons: %w", err)
		}
		add("addons = $%d", addonsJSON)
	}
	if upd.Resources != nil {
		add("memory_mb = $%d", upd.Resources.MemoryMB)
		add("cpu_percent = $%d", upd.Resources.CPUPercent)
		add("disk_mb = $%d", upd.Resources.DiskMB)
		add("backups = $%d", upd.Resources.Backups)
		add("databases = $%d", upd.Resources.Databases)
	}
	if upd.PanelID != nil {
		add("panel_id = $%d", *upd.PanelID)
	}
	if upd.PanelIdentifier != nil {
		add("panel_identifier = $%d", *upd.PanelIdentifier)
	}
	if upd.PanelUUID != nil {
		add("panel_uuid = $%d", *upd.PanelUUID)
	}
	if upd.ProvisionedAt != nil {
		add("provisioned_at = $%d", *upd.ProvisionedAt)
	}
	if upd.SuspendedAt != nil {
		add("suspended_at = $%d", *upd.SuspendedAt)
	}
	if upd.ClearSuspended {
		set = append(set, "suspended_at = NULL")
	}
	if upd.TerminatedAt != nil {
		add("terminated_at = $%d", *upd.TerminatedAt)
	}

	query := "UPDATE deployments SET " + joinSet(set) + " WHERE id = $1"
	if upd.Status == nil || *upd.Status != deployment.StatusTerminated {
		query += " AND status <> 'terminated'"
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update deployment %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update deployment %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func joinSet(set []string) string {
	out := set[0]
	for _, s := range set[1:] {
		out += ", " + s
	}
	return out
}
