package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/stepflow/pkg/channels/gochannel"
	"github.com/dukex/stepflow/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{}, gochannel.DefaultConfig())
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)
	received := make(chan *events.StepSucceeded, 1)

	require.NoError(t, bus.Handle(events.StepSucceededEvent, func(_ context.Context, event any) error {
		received <- event.(*events.StepSucceeded)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	err := bus.Publish(ctx, "exec-1", events.StepSucceeded{
		BaseEvent: events.NewBaseEvent(events.StepSucceededEvent, "weather-workflow", "exec-1"),
		StepID:    "fetch-weather",
		Path:      []string{"fetch-weather"},
		Duration:  time.Millisecond,
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, "fetch-weather", event.StepID)
		assert.Equal(t, "exec-1", event.ExecutionID)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_UnhandledTypesAreAcked(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)
	received := make(chan events.EventType, 2)

	require.NoError(t, bus.Handle(events.RunSucceededEvent, func(_ context.Context, event any) error {
		received <- event.(*events.RunSucceeded).Type

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "exec-1", events.RunStarted{
		BaseEvent: events.NewBaseEvent(events.RunStartedEvent, "wf", "exec-1"),
	}))
	require.NoError(t, bus.Publish(ctx, "exec-1", events.RunSucceeded{
		BaseEvent: events.NewBaseEvent(events.RunSucceededEvent, "wf", "exec-1"),
	}))

	select {
	case eventType := <-received:
		assert.Equal(t, events.RunSucceededEvent, eventType)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	bus := newTestBus(t)

	assert.NotEqual(t, bus.GenerateID(), bus.GenerateID())
}
