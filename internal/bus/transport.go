package bus

import (
	"context"
)

type MessageHandler func(ctx context.Context, evt Event)

// Transport bridges the local hub across process instances through a shared
// broker topic. Implementations hold one connection dedicated to publishing
// and one dedicated to subscribing.
type Transport interface {
	// Start subscribes to the shared topic and hands validated inbound
	// events to handler until ctx is cancelled or Close is called.
	Start(ctx context.Context, handler MessageHandler) error
	// Publish sends the event to the shared topic. Cross-instance relay is
	// best-effort; failures are logged by the caller, not surfaced further.
	Publish(ctx context.Context, evt Event) error
	Close() error
}
