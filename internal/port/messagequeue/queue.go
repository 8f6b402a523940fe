// Package messagequeue defines the deployment event bus port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to deployment
// events.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Close shuts down the queue connection.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject constants for deployment lifecycle events.
const (
	SubjectDeploymentProvisioned = "deployments.provisioned"
	SubjectDeploymentFailed      = "deployments.failed"
	SubjectDeploymentSuspended   = "deployments.suspended"
	SubjectDeploymentResumed     = "deployments.resumed"
	SubjectDeploymentResized     = "deployments.resized"
	SubjectDeploymentScaled      = "deployments.scaled"
	SubjectDeploymentTerminated  = "deployments.terminated"
)
