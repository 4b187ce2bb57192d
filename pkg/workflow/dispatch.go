package workflow

import (
	"fmt"
	"sort"

	"github.com/openimaging/conductor/pkg/events"
	"github.com/openimaging/conductor/pkg/models"
)

// StorageInfo carries the object-store connection settings stamped onto
// every artifact location in outbound dispatch events.
type StorageInfo struct {
	Endpoint          string
	SecuredConnection bool
}

// ToTaskDispatchEvent maps a task execution onto the wire event an execution
// backend consumes. Input artifacts become named storage locations under the
// instance's bucket; the single output location points at the execution's
// output directory.
func ToTaskDispatchEvent(task *models.TaskExecution, instance *models.WorkflowInstance, correlationID string, storage StorageInfo) (*events.TaskDispatch, error) {
	inputs := make([]events.StorageLocation, 0, len(task.InputArtifacts))

	for _, name := range sortedKeys(task.InputArtifacts) {
		inputs = append(inputs, events.StorageLocation{
			Name:              name,
			Endpoint:          storage.Endpoint,
			Bucket:            instance.Bucket,
			RelativeRootPath:  task.InputArtifacts[name],
			SecuredConnection: storage.SecuredConnection,
		})
	}

	event := &events.TaskDispatch{
		WorkflowInstanceID:  instance.ID,
		TaskID:              task.TaskID,
		ExecutionID:         task.ExecutionID,
		PayloadID:           instance.PayloadID,
		CorrelationID:       correlationID,
		Type:                task.TaskType,
		Status:              string(models.TaskStatusDispatched),
		Inputs:              inputs,
		TaskPluginArguments: task.TaskPluginArguments,
		Outputs: []events.StorageLocation{{
			Name:              "output",
			Endpoint:          storage.Endpoint,
			Bucket:            instance.Bucket,
			RelativeRootPath:  task.OutputDirectory,
			SecuredConnection: storage.SecuredConnection,
		}},
	}

	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("task dispatch event for %s/%s is invalid: %w", instance.ID, task.TaskID, err)
	}

	return event, nil
}

// ToExportRequestEvent maps an export task onto the gateway export event.
// The files exported are the task's input artifacts.
func ToExportRequestEvent(task *models.TaskExecution, node *models.TaskNode, instanceID, correlationID string) (*events.ExportRequest, error) {
	destinations := make([]string, 0, len(node.ExportDestinations))
	for _, dest := range node.ExportDestinations {
		destinations = append(destinations, dest.Name)
	}

	files := make([]string, 0, len(task.InputArtifacts))
	for _, name := range sortedKeys(task.InputArtifacts) {
		files = append(files, task.InputArtifacts[name])
	}

	event := &events.ExportRequest{
		WorkflowInstanceID: instanceID,
		ExportTaskID:       task.TaskID,
		CorrelationID:      correlationID,
		Destinations:       destinations,
		Files:              files,
	}

	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("export request event for %s/%s is invalid: %w", instanceID, task.TaskID, err)
	}

	return event, nil
}

// GenerateTaskUpdateEvent builds a status update for a task execution, as
// published by the sweeper when a task times out.
func GenerateTaskUpdateEvent(task *models.TaskExecution, correlationID string, status models.TaskExecutionStatus, reason models.FailureReason, message string) (*events.TaskUpdate, error) {
	event := &events.TaskUpdate{
		WorkflowInstanceID: task.WorkflowInstanceID,
		TaskID:             task.TaskID,
		ExecutionID:        task.ExecutionID,
		CorrelationID:      correlationID,
		Status:             status,
		Reason:             reason,
		Message:            message,
	}

	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("task update event for %s/%s is invalid: %w", task.WorkflowInstanceID, task.TaskID, err)
	}

	return event, nil
}

// GenerateTaskCancellationEvent builds a best-effort stop request for a
// dispatched task execution.
func GenerateTaskCancellationEvent(task *models.TaskExecution, reason models.FailureReason, message string) (*events.TaskCancellation, error) {
	event := &events.TaskCancellation{
		Identity:           task.ExecutionID,
		WorkflowInstanceID: task.WorkflowInstanceID,
		TaskID:             task.TaskID,
		ExecutionID:        task.ExecutionID,
		Reason:             reason,
		Message:            message,
	}

	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("task cancellation event for %s/%s is invalid: %w", task.WorkflowInstanceID, task.TaskID, err)
	}

	return event, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
