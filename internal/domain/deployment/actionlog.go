package deployment

import "time"

// Action identifies a lifecycle or scaling operation in the audit trail.
type Action string

const (
	ActionProvision     Action = "provision"
	ActionSuspend       Action = "suspend"
	ActionUnsuspend     Action = "unsuspend"
	ActionResize        Action = "resize"
	ActionAutoScale     Action = "auto_scale"
	ActionTerminate     Action = "terminate"
	ActionResourceCheck Action = "resource_check"
)

// ActionStatus is the outcome recorded for an action log entry.
type ActionStatus string

const (
	ActionPending ActionStatus = "pending"
	ActionSuccess ActionStatus = "success"
	ActionFailed  ActionStatus = "failed"
)

// ActorSystem is the actor recorded for operations the platform performs on
// its own (provisioning, scheduled scaling checks).
const ActorSystem = "system"

// ActionLogEntry is one append-only audit record. The action log is the system
// of record for scaling decisions: the auto-scaler re-derives its windows from
// these rows instead of keeping in-memory counters, so decisions survive
// restarts and are reproducible from history.
type ActionLogEntry struct {
	ID           string         `json:"id"`
	DeploymentID string         `json:"deployment_id"`
	Action       Action         `json:"action"`
	Status       ActionStatus   `json:"status"`
	Detail       map[string]any `json:"detail,omitempty"`
	Actor        string         `json:"actor"`
	CreatedAt    time.Time      `json:"created_at"`
}

// UsageSample is one periodic measurement of an instance's utilization,
// expressed as percentages of its current envelope. Samples are never mutated
// or deleted.
type UsageSample struct {
	DeploymentID  string    `json:"deployment_id"`
	MemoryPercent float64   `json:"memory_percent"`
	CPUPercent    float64   `json:"cpu_percent"`
	DiskPercent   float64   `json:"disk_percent"`
	ObservedAt    time.Time `json:"observed_at"`
}
