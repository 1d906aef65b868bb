package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"keyhive/internal/config"
	"keyhive/internal/constants"
	"keyhive/internal/logger"
	"keyhive/pkg/metrics"
	"keyhive/pkg/tracing"
)

// KafkaTransport relays events over a shared kafka topic. Every instance
// consumes with its own group id, derived from the configured prefix, so
// each sees the full stream instead of a load-balanced share.
type KafkaTransport struct {
	cfg     config.KafkaConfig
	topic   string
	groupID string
	writer  *kafka.Writer
	log     logger.Logger

	mu     sync.Mutex
	reader *kafka.Reader
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewKafkaTransport(cfg config.KafkaConfig, topic string, log logger.Logger) *KafkaTransport {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		Async:        false,
	}
	return &KafkaTransport{
		cfg:     cfg,
		topic:   topic,
		groupID: cfg.GroupID + "-" + uuid.New().String(),
		writer:  w,
		log:     log,
	}
}

func (t *KafkaTransport) Start(ctx context.Context, handler MessageHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.reader != nil {
		return fmt.Errorf("kafka transport already started")
	}

	t.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:  t.cfg.Brokers,
		GroupID:  t.groupID,
		Topic:    t.topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	readCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.receive(readCtx, handler)

	return nil
}

func (t *KafkaTransport) receive(ctx context.Context, handler MessageHandler) {
	defer t.wg.Done()

	for {
		m, err := t.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.log.ErrorwCtx(ctx, "Error fetching kafka message",
				"error", err,
				"topic", t.topic,
			)
			time.Sleep(time.Second)
			continue
		}

		evt, err := DecodeEvent(m.Value)
		if err != nil {
			metrics.EventsReceivedTotal.WithLabelValues(t.topic, "invalid").Inc()
			t.log.WarnwCtx(ctx, "Dropping malformed transport message",
				"error", err,
				"topic", t.topic,
			)
			_ = t.reader.CommitMessages(ctx, m)
			continue
		}

		metrics.EventsReceivedTotal.WithLabelValues(t.topic, "ok").Inc()

		msgCtx, span := tracing.StartSpanFromKafkaMessage(ctx, "kafka.consume", m.Headers)
		handler(msgCtx, evt)
		span.End()

		if err := t.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			t.log.ErrorwCtx(ctx, "Failed to commit kafka message",
				"error", err,
				"topic", t.topic,
			)
		}
	}
}

func (t *KafkaTransport) Publish(ctx context.Context, evt Event) error {
	body, err := evt.Encode()
	if err != nil {
		return err
	}

	headers := tracing.InjectTraceContext(ctx, nil)

	err = t.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(evt.OriginID),
		Value:   body,
		Headers: headers,
		Time:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}
	return nil
}

func (t *KafkaTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}
	if t.reader != nil {
		if err := t.reader.Close(); err != nil {
			t.log.Warnw("Error closing kafka reader", "error", err)
		}
		t.reader = nil
	}
	t.wg.Wait()

	if err := t.writer.Close(); err != nil {
		t.log.Warnw("Error closing kafka writer", "error", err)
	}

	return nil
}
