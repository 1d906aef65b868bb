package bus

import (
	"context"
	"sync"

	"keyhive/internal/logger"
	"keyhive/pkg/errors"
)

// WildcardTopic subscribers observe every event regardless of category.
const WildcardTopic = "*"

type Handler func(ctx context.Context, evt Event) error

type subscription struct {
	topic   string
	handler Handler
}

// Hub is the process-local publish/subscribe primitive. Delivery is
// synchronous and in registration order; handler errors and panics are
// logged and never reach the emitter.
type Hub struct {
	emitMu sync.Mutex
	subsMu sync.RWMutex
	subs   map[string][]*subscription
	log    logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		subs: make(map[string][]*subscription),
		log:  log,
	}
}

// Subscribe registers a handler for a topic (or WildcardTopic) and returns
// an idempotent unsubscribe function.
func (h *Hub) Subscribe(topic string, handler Handler) func() {
	sub := &subscription{topic: topic, handler: handler}

	h.subsMu.Lock()
	h.subs[topic] = append(h.subs[topic], sub)
	h.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.subsMu.Lock()
			defer h.subsMu.Unlock()
			list := h.subs[topic]
			for i, s := range list {
				if s == sub {
					h.subs[topic] = append(list[:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// Emit delivers the event to every subscriber of its category, then to
// wildcard subscribers. Emits are serialized: one emit's handlers run to
// completion before the next emit begins.
func (h *Hub) Emit(ctx context.Context, evt Event) {
	h.emitMu.Lock()
	defer h.emitMu.Unlock()

	for _, sub := range h.snapshot(evt.Category) {
		h.deliver(ctx, sub, evt)
	}
}

func (h *Hub) snapshot(topic string) []*subscription {
	h.subsMu.RLock()
	defer h.subsMu.RUnlock()

	out := make([]*subscription, 0, len(h.subs[topic])+len(h.subs[WildcardTopic]))
	out = append(out, h.subs[topic]...)
	if topic != WildcardTopic {
		out = append(out, h.subs[WildcardTopic]...)
	}
	return out
}

func (h *Hub) deliver(ctx context.Context, sub *subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			h.log.ErrorwCtx(ctx, "Event handler panicked",
				"error", errors.RecoverPanic(r),
				"category", evt.Category,
			)
		}
	}()

	if err := sub.handler(ctx, evt); err != nil {
		h.log.ErrorwCtx(ctx, "Event handler failed",
			"error", err,
			"category", evt.Category,
		)
	}
}

// Clear drops all subscriptions. Used at bus shutdown.
func (h *Hub) Clear() {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	h.subs = make(map[string][]*subscription)
}
