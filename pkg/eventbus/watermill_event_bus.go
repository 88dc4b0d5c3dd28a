package eventbus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/stepflow/pkg/events"
)

type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	topic      string

	mu            sync.RWMutex
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) EventBus {
	return NewWatermillEventBusWithTopic(pub, sub, events.Topic)
}

// NewWatermillEventBusWithTopic is NewWatermillEventBus publishing to and consuming from topic.
func NewWatermillEventBusWithTopic(pub message.Publisher, sub message.Subscriber, topic string) EventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		topic:         topic,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(eb.topic, msg)
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, eb.topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

			eb.mu.RLock()
			handler, exists := eb.subscriptions[eventType]
			eb.mu.RUnlock()

			if !exists {
				msg.Ack()

				continue
			}

			event, ok := newEvent(eventType)
			if !ok {
				msg.Nack()

				continue
			}

			err := json.Unmarshal(msg.Payload, event)
			if err != nil {
				msg.Nack()

				continue
			}

			err = handler(ctx, event)
			if err != nil {
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}

func newEvent(eventType events.EventType) (any, bool) {
	switch eventType {
	case events.RunStartedEvent:
		return &events.RunStarted{}, true
	case events.RunSucceededEvent:
		return &events.RunSucceeded{}, true
	case events.RunFailedEvent:
		return &events.RunFailed{}, true
	case events.StepStartedEvent:
		return &events.StepStarted{}, true
	case events.StepSucceededEvent:
		return &events.StepSucceeded{}, true
	case events.StepFailedEvent:
		return &events.StepFailed{}, true
	case events.NodeSkippedEvent:
		return &events.NodeSkipped{}, true
	default:
		return nil, false
	}
}
