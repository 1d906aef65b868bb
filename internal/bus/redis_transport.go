package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"keyhive/internal/logger"
	"keyhive/pkg/metrics"
)

// RedisTransport relays events over a redis pub/sub channel. A subscribed
// redis connection cannot issue regular commands, so publishing and
// subscribing use separate clients.
type RedisTransport struct {
	pub   *redis.Client
	sub   *redis.Client
	topic string
	log   logger.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

func NewRedisTransport(opts *redis.Options, topic string, log logger.Logger) *RedisTransport {
	pubOpts := *opts
	subOpts := *opts
	return &RedisTransport{
		pub:   redis.NewClient(&pubOpts),
		sub:   redis.NewClient(&subOpts),
		topic: topic,
		log:   log,
	}
}

func (t *RedisTransport) Start(ctx context.Context, handler MessageHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pubsub != nil {
		return fmt.Errorf("redis transport already started")
	}

	pubsub := t.sub.Subscribe(ctx, t.topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", t.topic, err)
	}

	t.pubsub = pubsub
	t.done = make(chan struct{})

	go t.receive(ctx, pubsub.Channel(), handler, t.done)

	return nil
}

func (t *RedisTransport) receive(ctx context.Context, ch <-chan *redis.Message, handler MessageHandler, done chan struct{}) {
	defer close(done)

	for msg := range ch {
		evt, err := DecodeEvent([]byte(msg.Payload))
		if err != nil {
			metrics.EventsReceivedTotal.WithLabelValues(t.topic, "invalid").Inc()
			t.log.WarnwCtx(ctx, "Dropping malformed transport message",
				"error", err,
				"topic", t.topic,
			)
			continue
		}

		metrics.EventsReceivedTotal.WithLabelValues(t.topic, "ok").Inc()
		handler(ctx, evt)
	}
}

func (t *RedisTransport) Publish(ctx context.Context, evt Event) error {
	body, err := evt.Encode()
	if err != nil {
		return err
	}

	if err := t.pub.Publish(ctx, t.topic, body).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", t.topic, err)
	}
	return nil
}

// Close tears down both connections. Errors are logged and swallowed so
// shutdown always completes.
func (t *RedisTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pubsub != nil {
		if err := t.pubsub.Close(); err != nil {
			t.log.Warnw("Error closing transport subscription", "error", err)
		}
		<-t.done
		t.pubsub = nil
	}

	if err := t.sub.Close(); err != nil {
		t.log.Warnw("Error closing subscriber connection", "error", err)
	}
	if err := t.pub.Close(); err != nil {
		t.log.Warnw("Error closing publisher connection", "error", err)
	}

	return nil
}
