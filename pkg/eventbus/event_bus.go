// Package eventbus provides the message-transport abstraction the
// orchestrator publishes and consumes events through.
package eventbus

import (
	"context"
	"errors"

	"github.com/openimaging/conductor/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler processes one decoded event. A nil return acknowledges the
// message; a permanent error (see Permanent) rejects it without requeue; any
// other error rejects it with requeue so the transport retries.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}

// permanentError marks a handler failure that redelivery cannot fix, such
// as a malformed event or a reference to a record that does not exist.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent wraps err so the bus drops the message instead of requeuing it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError

	return errors.As(err, &p)
}
