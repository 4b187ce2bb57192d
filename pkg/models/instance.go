package models

import "time"

// WorkflowInstanceStatus is the derived lifecycle state of one workflow run.
type WorkflowInstanceStatus string

const (
	InstanceStatusCreated   WorkflowInstanceStatus = "created"
	InstanceStatusInProcess WorkflowInstanceStatus = "in_process"
	InstanceStatusSucceeded WorkflowInstanceStatus = "succeeded"
	InstanceStatusFailed    WorkflowInstanceStatus = "failed"
)

// TaskExecutionStatus tracks one task execution through its lifecycle.
type TaskExecutionStatus string

const (
	TaskStatusCreated    TaskExecutionStatus = "created"
	TaskStatusDispatched TaskExecutionStatus = "dispatched"
	TaskStatusAccepted   TaskExecutionStatus = "accepted"
	TaskStatusSucceeded  TaskExecutionStatus = "succeeded"
	TaskStatusFailed     TaskExecutionStatus = "failed"
	TaskStatusCanceled   TaskExecutionStatus = "canceled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s TaskExecutionStatus) IsTerminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed || s == TaskStatusCanceled
}

// FailureReason explains why a task execution failed or was canceled.
type FailureReason string

const (
	FailureReasonNone          FailureReason = ""
	FailureReasonPluginError   FailureReason = "plugin_error"
	FailureReasonInvalidEvent  FailureReason = "invalid_message"
	FailureReasonTimedOut      FailureReason = "timed_out"
	FailureReasonUnknown       FailureReason = "unknown"
	FailureReasonUserRequested FailureReason = "user_requested"
)

// WorkflowInstance is one execution run of a definition for a specific
// payload. Instances are audit records and are never deleted.
type WorkflowInstance struct {
	ID                     string                 `json:"id"`
	WorkflowDefinitionID   string                 `json:"workflow_definition_id"`
	PayloadID              string                 `json:"payload_id"`
	Bucket                 string                 `json:"bucket"`
	Status                 WorkflowInstanceStatus `json:"status"`
	Tasks                  []TaskExecution        `json:"tasks"`
	AcknowledgedTaskErrors []string               `json:"acknowledged_task_errors,omitempty"`
	StartTime              time.Time              `json:"start_time"`
}

// TaskByID finds the execution record for a task node id.
func (w *WorkflowInstance) TaskByID(taskID string) (*TaskExecution, bool) {
	for i := range w.Tasks {
		if w.Tasks[i].TaskID == taskID {
			return &w.Tasks[i], true
		}
	}

	return nil, false
}

// TaskByExecutionID finds the execution record for a dispatch attempt id.
func (w *WorkflowInstance) TaskByExecutionID(executionID string) (*TaskExecution, bool) {
	for i := range w.Tasks {
		if w.Tasks[i].ExecutionID == executionID {
			return &w.Tasks[i], true
		}
	}

	return nil, false
}

// IsAcknowledged reports whether the given execution's failure has been
// acknowledged by an operator.
func (w *WorkflowInstance) IsAcknowledged(executionID string) bool {
	for _, id := range w.AcknowledgedTaskErrors {
		if id == executionID {
			return true
		}
	}

	return false
}

// DeriveStatus recomputes the instance status from its task executions.
// Unacknowledged failure or cancellation wins; anything in flight keeps the
// instance in process. Executions still Created were never activated (their
// branch condition did not pass), so once nothing is in flight they do not
// hold the instance open: all activated tasks terminal-ok means succeeded.
func (w *WorkflowInstance) DeriveStatus() WorkflowInstanceStatus {
	inFlight := false
	activated := false

	for i := range w.Tasks {
		task := &w.Tasks[i]

		switch task.Status {
		case TaskStatusFailed, TaskStatusCanceled:
			if !w.IsAcknowledged(task.ExecutionID) {
				return InstanceStatusFailed
			}

			activated = true
		case TaskStatusSucceeded:
			activated = true
		case TaskStatusCreated:
		default:
			inFlight = true
		}
	}

	if inFlight {
		return InstanceStatusInProcess
	}

	if !activated {
		return InstanceStatusCreated
	}

	return InstanceStatusSucceeded
}

// TaskExecution records one task's attempted run within an instance.
// ExecutionID is unique per dispatch attempt; Timeout is the absolute
// deadline set at dispatch time.
type TaskExecution struct {
	TaskID              string              `json:"task_id"`
	ExecutionID         string              `json:"execution_id"`
	WorkflowInstanceID  string              `json:"workflow_instance_id"`
	TaskType            string              `json:"task_type"`
	Status              TaskExecutionStatus `json:"status"`
	Reason              FailureReason       `json:"reason,omitempty"`
	InputArtifacts      map[string]string   `json:"input_artifacts,omitempty"`
	OutputArtifacts     map[string]string   `json:"output_artifacts,omitempty"`
	OutputDirectory     string              `json:"output_directory"`
	TaskPluginArguments map[string]string   `json:"task_plugin_arguments,omitempty"`
	Timeout             time.Time           `json:"timeout"`
	TaskStartTime       time.Time           `json:"task_start_time"`
	ResultMetadata      map[string]any      `json:"result_metadata,omitempty"`
	ExecutionStats      map[string]string   `json:"execution_stats,omitempty"`
}

// TimedOut reports whether the execution is past its absolute deadline and
// still non-terminal.
func (t *TaskExecution) TimedOut(now time.Time) bool {
	return !t.Status.IsTerminal() && !t.Timeout.IsZero() && t.Timeout.Before(now)
}

// CanTransitionTo enforces forward-only status transitions. Terminal states
// are immutable; cancellation is reachable from any non-terminal state.
func (t *TaskExecution) CanTransitionTo(next TaskExecutionStatus) bool {
	if t.Status.IsTerminal() {
		return false
	}

	switch next {
	case TaskStatusCreated:
		return false
	case TaskStatusDispatched:
		return t.Status == TaskStatusCreated
	case TaskStatusAccepted:
		return t.Status == TaskStatusDispatched
	case TaskStatusSucceeded:
		return t.Status == TaskStatusAccepted || t.Status == TaskStatusDispatched
	case TaskStatusFailed, TaskStatusCanceled:
		return true
	default:
		return false
	}
}
