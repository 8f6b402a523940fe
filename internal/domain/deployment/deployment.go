// Package deployment defines the deployment aggregate: one tenant guild's
// provisioned bot instance, its lifecycle status and its audit records.
package deployment

import (
	"time"

	"github.com/guildhost/guildhost/internal/domain/resource"
)

// Status is the lifecycle state of a deployment.
type Status string

const (
	StatusProvisioning Status = "provisioning"
	StatusActive       Status = "active"
	StatusSuspended    Status = "suspended"
	StatusFailed       Status = "failed"
	StatusTerminated   Status = "terminated"
)

// Health is the observed runtime health of a deployment's instance.
type Health string

const (
	HealthUnknown   Health = "unknown"
	HealthStarting  Health = "starting"
	HealthHealthy   Health = "healthy"
	HealthUnhealthy Health = "unhealthy"
)

// Deployment is one tenant instance. Runtime binding fields (PanelID,
// PanelIdentifier, PanelUUID) are populated iff the deployment has reached
// active at least once. Terminated rows are retained for audit, never deleted.
type Deployment struct {
	ID         string `json:"id"`
	GuildID    string `json:"guild_id"`
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`

	Tier      string            `json:"tier"`
	Features  []string          `json:"features"`
	Addons    []string          `json:"addons"`
	Resources resource.Envelope `json:"resources"`

	PanelID         *int    `json:"panel_id,omitempty"`
	PanelIdentifier *string `json:"panel_identifier,omitempty"`
	PanelUUID       *string `json:"panel_uuid,omitempty"`

	Status    Status `json:"status"`
	Health    Health `json:"health"`
	LastError string `json:"last_error,omitempty"`

	ProvisionedAt *time.Time `json:"provisioned_at,omitempty"`
	SuspendedAt   *time.Time `json:"suspended_at,omitempty"`
	TerminatedAt  *time.Time `json:"terminated_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// transitions is the allowed status transition table.
var transitions = map[Status][]Status{
	StatusProvisioning: {StatusActive, StatusFailed, StatusTerminated},
	StatusActive:       {StatusSuspended, StatusTerminated},
	StatusSuspended:    {StatusActive, StatusTerminated},
	StatusFailed:       {StatusTerminated},
	StatusTerminated:   {},
}

// CanTransition reports whether moving from s to next is a legal transition.
// Terminated is terminal.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Resizable reports whether the deployment's envelope may be changed in the
// current status. Resizing does not change status.
func (s Status) Resizable() bool {
	return s == StatusActive || s == StatusSuspended
}

// Bound reports whether the runtime binding fields are populated.
func (d *Deployment) Bound() bool {
	return d.PanelID != nil && d.PanelIdentifier != nil
}

// Update is a partial update applied to a deployment row. Nil fields are left
// unchanged.
type Update struct {
	Status          *Status
	Health          *Health
	LastError       *string
	Tier            *string
	Features        []string // nil = unchanged
	Addons          []string // nil = unchanged
	Resources       *resource.Envelope
	PanelID         *int
	PanelIdentifier *string
	PanelUUID       *string
	ProvisionedAt   *time.Time
	SuspendedAt     *time.Time
	ClearSuspended  bool
	TerminatedAt    *time.Time
}
