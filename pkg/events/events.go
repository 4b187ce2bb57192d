// Package events defines the wire-level event schema exchanged with the
// informatics gateway and the task execution backends.
package events

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/openimaging/conductor/pkg/models"
)

type EventType string

// Topics.
const (
	WorkflowRequestTopic  = "md.workflow.request"
	TaskDispatchTopic     = "md.tasks.dispatch"
	TaskUpdateTopic       = "md.tasks.update"
	TaskCallbackTopic     = "md.tasks.callback"
	TaskCancellationTopic = "md.tasks.cancellation"
	ExportRequestTopic    = "md.export.request"
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	WorkflowRequestEventType  EventType = "workflow.request"
	TaskDispatchEventType     EventType = "task.dispatch"
	TaskUpdateEventType       EventType = "task.update"
	TaskCallbackEventType     EventType = "task.callback"
	TaskCancellationEventType EventType = "task.cancellation"
	ExportRequestEventType    EventType = "export.request"
)

// TopicFor maps an event type to the topic it travels on.
func TopicFor(eventType EventType) string {
	switch eventType {
	case WorkflowRequestEventType:
		return WorkflowRequestTopic
	case TaskDispatchEventType:
		return TaskDispatchTopic
	case TaskUpdateEventType:
		return TaskUpdateTopic
	case TaskCallbackEventType:
		return TaskCallbackTopic
	case TaskCancellationEventType:
		return TaskCancellationTopic
	case ExportRequestEventType:
		return ExportRequestTopic
	default:
		return ""
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// WorkflowRequest is raised by the informatics gateway when DICOM data for a
// payload has arrived and workflows should be resolved and started.
type WorkflowRequest struct {
	PayloadID      string    `json:"payload_id"       validate:"required,uuid"`
	Workflows      []string  `json:"workflows"        validate:"required,min=1,dive,required"`
	FileCount      int       `json:"file_count"`
	Files          []string  `json:"files,omitempty"`
	CorrelationID  string    `json:"correlation_id"   validate:"required,uuid"`
	Bucket         string    `json:"bucket"           validate:"required"`
	CalledAeTitle  string    `json:"called_ae_title"  validate:"required,max=15"`
	CallingAeTitle string    `json:"calling_ae_title" validate:"required,max=15"`
	Timestamp      time.Time `json:"timestamp"`
}

func (e WorkflowRequest) GetType() EventType { return WorkflowRequestEventType }

func (e WorkflowRequest) Validate() error { return validate.Struct(e) }

// StorageLocation describes one artifact's location in the object store,
// including the connection settings the execution backend needs to reach it.
type StorageLocation struct {
	Name              string       `json:"name"               validate:"required"`
	Endpoint          string       `json:"endpoint"           validate:"required"`
	Bucket            string       `json:"bucket"             validate:"required"`
	RelativeRootPath  string       `json:"relative_root_path" validate:"required"`
	SecuredConnection bool         `json:"secured_connection"`
	Credentials       *Credentials `json:"credentials,omitempty"`
}

// Credentials carry short-lived object-store access for one dispatch.
type Credentials struct {
	AccessKey    string `json:"access_key"`
	AccessToken  string `json:"access_token"`
	SessionToken string `json:"session_token,omitempty"`
}

// TaskDispatch instructs an execution backend to run one task.
type TaskDispatch struct {
	WorkflowInstanceID  string            `json:"workflow_instance_id"  validate:"required"`
	TaskID              string            `json:"task_id"               validate:"required"`
	ExecutionID         string            `json:"execution_id"          validate:"required"`
	PayloadID           string            `json:"payload_id"            validate:"required"`
	CorrelationID       string            `json:"correlation_id"        validate:"required"`
	Type                string            `json:"type"                  validate:"required"`
	Status              string            `json:"status"                validate:"required"`
	Inputs              []StorageLocation `json:"inputs"`
	Outputs             []StorageLocation `json:"outputs"`
	TaskPluginArguments map[string]string `json:"task_plugin_arguments,omitempty"`
	Metadata            map[string]any    `json:"metadata,omitempty"`
}

func (e TaskDispatch) GetType() EventType { return TaskDispatchEventType }

func (e TaskDispatch) Validate() error { return validate.Struct(e) }

// TaskUpdate reports a task execution's status change back to the
// orchestrator.
type TaskUpdate struct {
	WorkflowInstanceID string                     `json:"workflow_instance_id" validate:"required"`
	TaskID             string                     `json:"task_id"              validate:"required"`
	ExecutionID        string                     `json:"execution_id"         validate:"required"`
	CorrelationID      string                     `json:"correlation_id"       validate:"required"`
	Status             models.TaskExecutionStatus `json:"status"               validate:"required"`
	Reason             models.FailureReason       `json:"reason,omitempty"`
	Message            string                     `json:"message,omitempty"`
	Metadata           map[string]any             `json:"metadata,omitempty"`
	ExecutionStats     map[string]string          `json:"execution_stats,omitempty"`
}

func (e TaskUpdate) GetType() EventType { return TaskUpdateEventType }

func (e TaskUpdate) Validate() error { return validate.Struct(e) }

// TaskCallback is the execution backend's completion report, carrying the
// locations of the task's output artifacts.
type TaskCallback struct {
	WorkflowInstanceID string            `json:"workflow_instance_id" validate:"required"`
	TaskID             string            `json:"task_id"              validate:"required"`
	ExecutionID        string            `json:"execution_id"         validate:"required"`
	CorrelationID      string            `json:"correlation_id"       validate:"required"`
	Identity           string            `json:"identity"             validate:"required"`
	Outputs            []StorageLocation `json:"outputs"`
	Metadata           map[string]any    `json:"metadata,omitempty"`
	ExecutionStats     map[string]string `json:"execution_stats,omitempty"`
}

func (e TaskCallback) GetType() EventType { return TaskCallbackEventType }

func (e TaskCallback) Validate() error { return validate.Struct(e) }

// TaskCancellation asks the execution backend to stop a dispatched task.
// Delivery is best effort; the backend may already have finished.
type TaskCancellation struct {
	Identity           string               `json:"identity"             validate:"required"`
	WorkflowInstanceID string               `json:"workflow_instance_id" validate:"required"`
	TaskID             string               `json:"task_id"              validate:"required"`
	ExecutionID        string               `json:"execution_id"         validate:"required"`
	Reason             models.FailureReason `json:"reason"               validate:"required"`
	Message            string               `json:"message,omitempty"`
}

func (e TaskCancellation) GetType() EventType { return TaskCancellationEventType }

func (e TaskCancellation) Validate() error { return validate.Struct(e) }

// ExportRequest asks the informatics gateway to export a task's output to
// the named destinations.
type ExportRequest struct {
	WorkflowInstanceID string   `json:"workflow_instance_id" validate:"required"`
	ExportTaskID       string   `json:"export_task_id"       validate:"required"`
	CorrelationID      string   `json:"correlation_id"       validate:"required"`
	Destinations       []string `json:"destinations"         validate:"required,min=1,dive,required"`
	Files              []string `json:"files"                validate:"required,min=1,dive,required"`
}

func (e ExportRequest) GetType() EventType { return ExportRequestEventType }

func (e ExportRequest) Validate() error { return validate.Struct(e) }
