package messagequeue

import "context"

// Noop is a Queue that drops every message. It is the fallback when no NATS
// URL is configured: lifecycle operations proceed normally, the action log
// stays the system of record, and nothing is published.
type Noop struct{}

var _ Queue = Noop{}

func (Noop) Publish(context.Context, string, []byte) error { return nil }

func (Noop) Subscribe(context.Context, string, Handler) (func(), error) {
	return func() {}, nil
}

func (Noop) Close() error { return nil }

func (Noop) IsConnected() bool { return false }
