// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates no workflow definition matches the identifier.
	ErrWorkflowNotFound = errors.New("workflow definition not found")

	// ErrWorkflowAlreadyExists indicates a definition with the same identifier already exists.
	ErrWorkflowAlreadyExists = errors.New("workflow definition already exists")

	// ErrInstanceNotFound indicates a workflow instance was not found.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrTaskNotFound indicates no task execution matches the addressed key.
	ErrTaskNotFound = errors.New("task execution not found")

	// ErrPayloadNotFound indicates a payload record was not found.
	ErrPayloadNotFound = errors.New("payload not found")
)

// WorkflowError wraps definition-related errors with operation context.
type WorkflowError struct {
	Op         string
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{Op: op, WorkflowID: workflowID, Err: err}
}

// InstanceError wraps instance- and task-level errors with operation context.
type InstanceError struct {
	Op          string
	InstanceID  string
	ExecutionID string
	Err         error
}

func (e *InstanceError) Error() string {
	if e.ExecutionID != "" {
		return fmt.Sprintf("%s operation failed for execution %s of instance %s: %v", e.Op, e.ExecutionID, e.InstanceID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for instance %s: %v", e.Op, e.InstanceID, e.Err)
}

func (e *InstanceError) Unwrap() error {
	return e.Err
}

func (e *InstanceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewInstanceError(op, instanceID string, err error) *InstanceError {
	return &InstanceError{Op: op, InstanceID: instanceID, Err: err}
}

// IsNotFound reports whether err is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrInstanceNotFound) ||
		errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrPayloadNotFound)
}
