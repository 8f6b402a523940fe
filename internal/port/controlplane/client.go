// Package controlplane defines the control-plane client port (interface) and
// its typed errors. Two dialect adapters implement it: subserver and
// standalone. The dialect is selected once at startup via the registry.
package controlplane

import (
	"context"
	"time"

	"github.com/guildhost/guildhost/internal/domain/resource"
	"github.com/guildhost/guildhost/internal/resilience"
)

// Instance is the normalized record for one control-plane instance,
// independent of dialect.
type Instance struct {
	ID         int               `json:"id"`
	Identifier string            `json:"identifier"`
	UUID       string            `json:"uuid"`
	Status     string            `json:"status"`
	Limits     resource.Envelope `json:"limits"`
}

// Usage is one utilization reading, expressed as percentages of the
// instance's current limits.
type Usage struct {
	MemoryPercent float64 `json:"memory_percent"`
	CPUPercent    float64 `json:"cpu_percent"`
	DiskPercent   float64 `json:"disk_percent"`
}

// CreateSpec describes an instance to create. In the subserver dialect,
// Environment cannot be applied at creation time; callers push variables
// afterwards via SetEnvironmentVariables.
type CreateSpec struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Resources   resource.Envelope `json:"resources"`
	Environment map[string]string `json:"environment,omitempty"`
}

// PowerSignal is a power action sent to a running instance.
type PowerSignal string

const (
	PowerStart   PowerSignal = "start"
	PowerStop    PowerSignal = "stop"
	PowerRestart PowerSignal = "restart"
	PowerKill    PowerSignal = "kill"
)

// Client is the port interface for the control-plane HTTP API. All methods
// honor the tolerant-error contract: DeleteInstance, SendPowerSignal and
// RunCommand treat 404 (instance already gone) and empty response bodies as
// success; GetInstance and GetUsage surface 404 as a typed not-found so
// callers can distinguish "already gone" from real failures.
type Client interface {
	// Name returns the dialect identifier ("subserver" or "standalone").
	Name() string

	CreateInstance(ctx context.Context, spec CreateSpec) (*Instance, error)
	GetInstance(ctx context.Context, identifier string) (*Instance, error)
	GetUsage(ctx context.Context, identifier string) (*Usage, error)
	DeleteInstance(ctx context.Context, id int) error
	Suspend(ctx context.Context, id int) error
	Resume(ctx context.Context, id int) error
	Resize(ctx context.Context, id int, res resource.Envelope) error

	SendPowerSignal(ctx context.Context, identifier string, signal PowerSignal) error
	RunCommand(ctx context.Context, identifier, command string) error

	// PushFile uploads content to path on the instance, creating missing
	// parent directories first. Uploads go through the control plane's
	// two-step signed-URL protocol, never inline JSON.
	PushFile(ctx context.Context, identifier, path string, content []byte) error

	// SetEnvironmentVariables writes vars on the instance. Variables absent
	// from the runtime template's declared set are redirected to a generated
	// .env file pushed via PushFile; their names are returned so the caller
	// knows which values fell back to that path.
	SetEnvironmentVariables(ctx context.Context, inst Instance, vars map[string]string) (fellBack []string, err error)

	// WaitForReady polls the instance status until it leaves the installing
	// state or maxWait elapses. A 403 (no permission to poll) returns
	// immediately without error: lack of polling access does not imply
	// installation failure.
	WaitForReady(ctx context.Context, identifier string, maxWait time.Duration) error
}

// Settings is the dialect-neutral configuration handed to a client factory.
// Dialect-specific fields are ignored by the other dialect.
type Settings struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// Subserver dialect: identifier of the shared parent instance.
	ParentIdentifier string

	// Standalone dialect: placement target and template.
	NodeID      int
	BlueprintID int
	AccountID   int
	DockerImage string

	// Optional circuit breaker shared by all outgoing calls.
	Breaker *resilience.Breaker
}
