package workflow

import "errors"

var (
	// ErrInvalidRequest marks a workflow request that failed validation.
	// Redelivery cannot fix it.
	ErrInvalidRequest = errors.New("invalid workflow request")

	// ErrInvalidTransition marks a task update whose status is not reachable
	// from the execution's current status.
	ErrInvalidTransition = errors.New("invalid task status transition")

	// ErrInvalidEvent marks an inbound event of an unexpected shape.
	ErrInvalidEvent = errors.New("invalid event")
)
