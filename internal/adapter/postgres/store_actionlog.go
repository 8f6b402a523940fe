package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/guildhost/guildhost/internal/domain/deployment"
)

func (s *Store) AppendActionLog(ctx context.Context, entry deployment.ActionLogEntry) error {
	detailJSON, err := json.Marshal(entry.Detail)
	if err != nil {
		return fmt.Errorf("marshal action detail: %w", err)
	}
	if entry.Detail == nil {
		detailJSON = []byte("{}")
	}

	actor := entry.Actor
	if actor == "" {
		actor = deployment.ActorSystem
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO action_logs (deployment_id, action, status, detail, actor)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.DeploymentID, entry.Action, entry.Status, detailJSON, actor)
	if err != nil {
		return fmt.Errorf("append action log: %w", err)
	}
	return nil
}

func (s *Store) AppendUsageSample(ctx context.Context, sample deployment.UsageSample) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO usage_samples (deployment_id, memory_percent, cpu_percent, disk_percent)
		 VALUES ($1, $2, $3, $4)`,
		sample.DeploymentID, sample.MemoryPercent, sample.CPUPercent, sample.DiskPercent)
	if err != nil {
		return fmt.Errorf("append usage sample: %w", err)
	}
	return nil
}

func (s *Store) RecentActionLogs(ctx context.Context, deploymentID string, action deployment.Action, limit int) ([]deployment.ActionLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, deployment_id, action, status, detail, actor, created_at
		 FROM action_logs
		 WHERE deployment_id = $1 AND action = $2
		 ORDER BY created_at DESC
		 LIMIT $3`,
		deploymentID, action, limit)
	if err != nil {
		return nil, fmt.Errorf("recent action logs: %w", err)
	}
	defer rows.Close()

	return collectActionLogs(rows)
}

func (s *Store) ListActionLogs(ctx context.Context, deploymentID string, limit int) ([]deployment.ActionLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, deployment_id, action, status, detail, actor, created_at
		 FROM action_logs
		 WHERE deployment_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		deploymentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list action logs: %w", err)
	}
	defer rows.Close()

	return collectActionLogs(rows)
}

func collectActionLogs(rows pgx.Rows) ([]deployment.ActionLogEntry, error) {
	var out []deployment.ActionLogEntry
	for rows.Next() {
		var e deployment.ActionLogEntry
		var detailJSON []byte
		if err := rows.Scan(&e.ID, &e.DeploymentID, &e.Action, &e.Status, &detailJSON, &e.Actor, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan action log: %w", err)
		}
		if detailJSON != nil {
			_ = json.Unmarshal(detailJSON, &e.Detail)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
