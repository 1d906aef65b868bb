package secretevents

import (
	"context"
	"encoding/json"
	"fmt"

	"keyhive/internal/bus"
	"keyhive/internal/constants"
	"keyhive/internal/logger"
)

// Channel is the typed facade over the event bus for secret mutation
// events. All events travel on one fixed category.
type Channel struct {
	bus *bus.Bus
	log logger.Logger
}

func NewChannel(b *bus.Bus, log logger.Logger) *Channel {
	return &Channel{bus: b, log: log}
}

func (c *Channel) Publish(ctx context.Context, evt SecretEvent) error {
	if err := evt.Validate(); err != nil {
		return fmt.Errorf("invalid secret event: %w", err)
	}
	return c.bus.Publish(ctx, constants.ProjectEventsTopic, evt)
}

// Subscribe registers a callback for secret events. Callback errors are
// logged without unsubscribing, so one bad event cannot silence a listener.
func (c *Channel) Subscribe(fn func(ctx context.Context, evt SecretEvent) error) func() {
	return c.bus.Subscribe(constants.ProjectEventsTopic, func(ctx context.Context, raw bus.Event) error {
		var evt SecretEvent
		if err := json.Unmarshal(raw.Payload, &evt); err != nil {
			c.log.WarnwCtx(ctx, "Dropping undecodable secret event",
				"error", err,
			)
			return nil
		}

		if err := fn(ctx, evt); err != nil {
			c.log.ErrorwCtx(ctx, "Secret event callback failed",
				"error", err,
				"event_type", evt.EventType,
				"project_id", evt.ProjectID,
			)
		}
		return nil
	})
}
