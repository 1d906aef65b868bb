package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"keyhive/internal/logger"
	"keyhive/pkg/metrics"
)

// Bus composes the local hub with the remote transport. Events published
// here reach local subscribers first, then peers; events arriving from
// peers are re-injected into the hub unless this instance produced them.
type Bus struct {
	hub       *Hub
	transport Transport
	originID  string
	log       logger.Logger
}

// NewBus generates the instance origin id at construction. One bus exists
// per process, so the id is stable for the process lifetime.
func NewBus(transport Transport, log logger.Logger) *Bus {
	return &Bus{
		hub:       NewHub(log),
		transport: transport,
		originID:  uuid.New().String(),
		log:       log,
	}
}

func (b *Bus) OriginID() string {
	return b.originID
}

// Start installs the remote receive path: drop own echoes, inject the rest.
func (b *Bus) Start(ctx context.Context) error {
	return b.transport.Start(ctx, func(ctx context.Context, evt Event) {
		if evt.OriginID == b.originID {
			// Already delivered locally at publish time.
			return
		}
		b.hub.Emit(ctx, evt)
	})
}

// Publish stamps the envelope and delivers locally before broadcasting, so
// local subscribers see the event even when the transport is degraded.
func (b *Bus) Publish(ctx context.Context, category string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	evt := Event{
		Category:  category,
		Timestamp: time.Now().UTC(),
		OriginID:  b.originID,
		Payload:   json.RawMessage(body),
	}

	b.hub.Emit(ctx, evt)
	metrics.EventsPublishedTotal.WithLabelValues(category).Inc()

	if err := b.transport.Publish(ctx, evt); err != nil {
		// Cross-instance relay is best-effort.
		b.log.ErrorwCtx(ctx, "Failed to broadcast event",
			"error", err,
			"category", category,
		)
	}

	return nil
}

func (b *Bus) Subscribe(category string, handler Handler) func() {
	return b.hub.Subscribe(category, handler)
}

func (b *Bus) Close() error {
	if err := b.transport.Close(); err != nil {
		b.log.Warnw("Error closing transport", "error", err)
	}
	b.hub.Clear()
	return nil
}
