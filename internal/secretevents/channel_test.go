package secretevents

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyhive/internal/bus"
	"keyhive/internal/logger"
)

type noopTransport struct {
	mu      sync.Mutex
	handler bus.MessageHandler
}

func (t *noopTransport) Start(ctx context.Context, handler bus.MessageHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
	return nil
}

func (t *noopTransport) Publish(ctx context.Context, evt bus.Event) error { return nil }

func (t *noopTransport) Close() error { return nil }

func (t *noopTransport) inject(ctx context.Context, evt bus.Event) {
	t.mu.Lock()
	handler := t.handler
	t.mu.Unlock()
	handler(ctx, evt)
}

func newTestChannel(t *testing.T) (*Channel, *noopTransport) {
	t.Helper()
	tr := &noopTransport{}
	b := bus.NewBus(tr, logger.NopLogger())
	require.NoError(t, b.Start(context.Background()))
	return NewChannel(b, logger.NopLogger()), tr
}

func validEvent() SecretEvent {
	return SecretEvent{
		EventType:   EventTypeSecretUpdate,
		ProjectID:   "proj-1",
		Environment: "prod",
		SecretPath:  "/api/keys",
		SecretKey:   "API_KEY",
	}
}

func TestChannelPublishDeliversToSubscribers(t *testing.T) {
	ch, _ := newTestChannel(t)

	var received []SecretEvent
	ch.Subscribe(func(ctx context.Context, evt SecretEvent) error {
		received = append(received, evt)
		return nil
	})

	require.NoError(t, ch.Publish(context.Background(), validEvent()))

	require.Len(t, received, 1)
	assert.Equal(t, validEvent(), received[0])
}

func TestChannelPublishRejectsInvalidEvents(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(e *SecretEvent)
	}{
		{name: "unknown event type", mutate: func(e *SecretEvent) { e.EventType = "secret:rename" }},
		{name: "missing project", mutate: func(e *SecretEvent) { e.ProjectID = "" }},
		{name: "missing environment", mutate: func(e *SecretEvent) { e.Environment = "" }},
		{name: "missing path", mutate: func(e *SecretEvent) { e.SecretPath = "" }},
		{name: "missing key on update", mutate: func(e *SecretEvent) { e.SecretKey = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, _ := newTestChannel(t)
			evt := validEvent()
			tt.mutate(&evt)

			err := ch.Publish(context.Background(), evt)

			assert.Error(t, err)
		})
	}
}

func TestChannelImportMutationNeedsNoKey(t *testing.T) {
	ch, _ := newTestChannel(t)

	evt := SecretEvent{
		EventType:   EventTypeImportChange,
		ProjectID:   "proj-1",
		Environment: "prod",
		SecretPath:  "/shared",
	}

	assert.NoError(t, ch.Publish(context.Background(), evt))
}

func TestChannelCallbackErrorDoesNotUnsubscribe(t *testing.T) {
	ch, _ := newTestChannel(t)

	calls := 0
	ch.Subscribe(func(ctx context.Context, evt SecretEvent) error {
		calls++
		return fmt.Errorf("callback failed")
	})

	require.NoError(t, ch.Publish(context.Background(), validEvent()))
	require.NoError(t, ch.Publish(context.Background(), validEvent()))

	assert.Equal(t, 2, calls)
}

func TestChannelDropsUndecodablePayloads(t *testing.T) {
	ch, tr := newTestChannel(t)

	calls := 0
	ch.Subscribe(func(ctx context.Context, evt SecretEvent) error {
		calls++
		return nil
	})

	tr.inject(context.Background(), bus.Event{
		Category: "project.events",
		OriginID: "peer-instance",
		Payload:  []byte(`"not-an-object"`),
	})

	assert.Equal(t, 0, calls)
}

func TestDeliveryPayloadShaping(t *testing.T) {
	update := validEvent()
	assert.Equal(t,
		[]SecretItem{{Environment: "prod", SecretPath: "/api/keys", SecretKey: "API_KEY"}},
		update.DeliveryPayload(),
	)

	importEvt := SecretEvent{
		EventType:   EventTypeImportChange,
		ProjectID:   "proj-1",
		Environment: "prod",
		SecretPath:  "/shared",
	}
	assert.Equal(t,
		[]ImportItem{{Environment: "prod", SecretPath: "/shared"}},
		importEvt.DeliveryPayload(),
	)
}

func TestChannelUnsubscribeStopsDelivery(t *testing.T) {
	ch, _ := newTestChannel(t)

	calls := 0
	unsub := ch.Subscribe(func(ctx context.Context, evt SecretEvent) error {
		calls++
		return nil
	})
	unsub()

	require.NoError(t, ch.Publish(context.Background(), validEvent()))

	assert.Equal(t, 0, calls)
}
