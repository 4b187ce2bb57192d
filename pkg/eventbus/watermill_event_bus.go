package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/openimaging/conductor/pkg/events"
)

type WatermillEventBus struct {
	logger        *slog.Logger
	publisher     message.Publisher
	subscriber    message.Subscriber
	subscriptions map[events.EventType]EventHandler
}

var _ EventBus = (*WatermillEventBus)(nil)

func NewWatermillEventBus(logger *slog.Logger, pub message.Publisher, sub message.Subscriber) EventBus {
	return &WatermillEventBus{
		logger:        logger,
		publisher:     pub,
		subscriber:    sub,
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
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.TopicFor(event.GetType()), msg)
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.subscriptions[eventType] = handler

	return nil
}

// Subscribe opens one consumer per topic that has a registered handler and
// pumps messages until the context is canceled. Handler outcomes map onto
// the transport: nil acknowledges, a permanent error acknowledges-and-drops
// with a log entry, anything else negatively acknowledges so the message is
// redelivered.
func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	topics := make(map[string]bool)

	for eventType := range eb.subscriptions {
		topic := events.TopicFor(eventType)
		if topic != "" {
			topics[topic] = true
		}
	}

	for topic := range topics {
		messages, err := eb.subscriber.Subscribe(ctx, topic)
		if err != nil {
			return err
		}

		go eb.consume(ctx, topic, messages)
	}

	return nil
}

func (eb *WatermillEventBus) consume(ctx context.Context, topic string, messages <-chan *message.Message) {
	for msg := range messages {
		eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

		handler, exists := eb.subscriptions[eventType]
		if !exists {
			eb.logger.WarnContext(ctx, "No handler for event type, dropping", "topic", topic, "event_type", eventType)
			msg.Ack()

			continue
		}

		event := newEvent(eventType)
		if event == nil {
			eb.logger.WarnContext(ctx, "Unknown event type, dropping", "topic", topic, "event_type", eventType)
			msg.Ack()

			continue
		}

		if err := json.Unmarshal(msg.Payload, event); err != nil {
			// A payload that does not decode will never decode.
			eb.logger.ErrorContext(ctx, "Failed to decode event, dropping", "topic", topic, "event_type", eventType, "error", err)
			msg.Ack()

			continue
		}

		err := handler(ctx, event)

		switch {
		case err == nil:
			msg.Ack()
		case IsPermanent(err):
			eb.logger.ErrorContext(ctx, "Rejecting event without requeue", "topic", topic, "event_type", eventType, "error", err)
			msg.Ack()
		default:
			eb.logger.ErrorContext(ctx, "Rejecting event with requeue", "topic", topic, "event_type", eventType, "error", err)
			msg.Nack()
		}
	}
}

// Close shuts the transport down, publisher first so in-flight publishes
// flush before the consumer side goes away.
func (eb *WatermillEventBus) Close() error {
	if err := eb.publisher.Close(); err != nil {
		return err
	}

	return eb.subscriber.Close()
}

func newEvent(eventType events.EventType) any {
	switch eventType {
	case events.WorkflowRequestEventType:
		return &events.WorkflowRequest{}
	case events.TaskDispatchEventType:
		return &events.TaskDispatch{}
	case events.TaskUpdateEventType:
		return &events.TaskUpdate{}
	case events.TaskCallbackEventType:
		return &events.TaskCallback{}
	case events.TaskCancellationEventType:
		return &events.TaskCancellation{}
	case events.ExportRequestEventType:
		return &events.ExportRequest{}
	default:
		return nil
	}
}
