package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/guildhost/guildhost/internal/port/messagequeue"
)

// DeploymentEvent is the payload published on the event bus for every
// successful lifecycle transition.
type DeploymentEvent struct {
	EventID      string         `json:"event_id"`
	DeploymentID string         `json:"deployment_id"`
	GuildID      string         `json:"guild_id"`
	Tier         string         `json:"tier"`
	Detail       map[string]any `json:"detail,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// publishEvent sends a deployment event, best-effort. A nil queue or a publish
// failure is logged and otherwise ignored: the event bus is informational, the
// action log is the system of record.
func publishEvent(ctx context.Context, q messagequeue.Queue, subject string, ev DeploymentEvent) {
	if q == nil {
		return
	}

	ev.EventID = uuid.NewString()
	ev.OccurredAt = time.Now().UTC()

	data, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("event marshal failed", "subject", subject, "error", err)
		return
	}

	if err := q.Publish(ctx, subject, data); err != nil {
		slog.Warn("event publish failed", "subject", subject, "deployment_id", ev.DeploymentID, "error", err)
	}
}
