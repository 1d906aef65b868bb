package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyhive/internal/logger"
)

func testEvent(category string) Event {
	return Event{
		Category:  category,
		Timestamp: time.Now().UTC(),
		OriginID:  "origin-1",
		Payload:   json.RawMessage(`{"x":1}`),
	}
}

func TestHubDeliversInRegistrationOrder(t *testing.T) {
	hub := NewHub(logger.NopLogger())

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		hub.Subscribe("topic", func(ctx context.Context, evt Event) error {
			order = append(order, i)
			return nil
		})
	}

	hub.Emit(context.Background(), testEvent("topic"))

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestHubWildcardReceivesAllCategories(t *testing.T) {
	hub := NewHub(logger.NopLogger())

	var seen []string
	hub.Subscribe(WildcardTopic, func(ctx context.Context, evt Event) error {
		seen = append(seen, evt.Category)
		return nil
	})

	hub.Emit(context.Background(), testEvent("a"))
	hub.Emit(context.Background(), testEvent("b"))

	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestHubTopicSubscribersRunBeforeWildcard(t *testing.T) {
	hub := NewHub(logger.NopLogger())

	var order []string
	hub.Subscribe(WildcardTopic, func(ctx context.Context, evt Event) error {
		order = append(order, "wildcard")
		return nil
	})
	hub.Subscribe("topic", func(ctx context.Context, evt Event) error {
		order = append(order, "topic")
		return nil
	})

	hub.Emit(context.Background(), testEvent("topic"))

	assert.Equal(t, []string{"topic", "wildcard"}, order)
}

func TestHubHandlerFailuresDoNotBlockOthers(t *testing.T) {
	hub := NewHub(logger.NopLogger())

	delivered := 0
	hub.Subscribe("topic", func(ctx context.Context, evt Event) error {
		panic("boom")
	})
	hub.Subscribe("topic", func(ctx context.Context, evt Event) error {
		return fmt.Errorf("handler error")
	})
	hub.Subscribe("topic", func(ctx context.Context, evt Event) error {
		delivered++
		return nil
	})

	require.NotPanics(t, func() {
		hub.Emit(context.Background(), testEvent("topic"))
	})
	assert.Equal(t, 1, delivered)
}

func TestHubUnsubscribeIsIdempotent(t *testing.T) {
	hub := NewHub(logger.NopLogger())

	first := 0
	second := 0
	unsub := hub.Subscribe("topic", func(ctx context.Context, evt Event) error {
		first++
		return nil
	})
	hub.Subscribe("topic", func(ctx context.Context, evt Event) error {
		second++
		return nil
	})

	unsub()
	unsub()

	hub.Emit(context.Background(), testEvent("topic"))

	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second, "remaining subscriber must survive double unsubscribe")
}

func TestHubClearDropsSubscribers(t *testing.T) {
	hub := NewHub(logger.NopLogger())

	calls := 0
	hub.Subscribe("topic", func(ctx context.Context, evt Event) error {
		calls++
		return nil
	})

	hub.Clear()
	hub.Emit(context.Background(), testEvent("topic"))

	assert.Equal(t, 0, calls)
}
