package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/openimaging/conductor/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowRequest_Validate(t *testing.T) {
	valid := WorkflowRequest{
		PayloadID:      uuid.NewString(),
		Workflows:      []string{"wf-1"},
		FileCount:      3,
		CorrelationID:  uuid.NewString(),
		Bucket:         "conductor-payloads",
		CalledAeTitle:  "CONDUCTOR",
		CallingAeTitle: "PACS",
		Timestamp:      time.Now().UTC(),
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(e *WorkflowRequest)
	}{
		{"payload id not a uuid", func(e *WorkflowRequest) { e.PayloadID = "not-a-guid" }},
		{"correlation id not a uuid", func(e *WorkflowRequest) { e.CorrelationID = "also-not" }},
		{"empty workflows", func(e *WorkflowRequest) { e.Workflows = nil }},
		{"blank workflow entry", func(e *WorkflowRequest) { e.Workflows = []string{"wf-1", ""} }},
		{"missing bucket", func(e *WorkflowRequest) { e.Bucket = "" }},
		{"called ae title too long", func(e *WorkflowRequest) { e.CalledAeTitle = "A-TITLE-PAST-FIFTEEN" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := valid
			tt.mutate(&event)
			assert.Error(t, event.Validate())
		})
	}
}

func TestTaskDispatch_ValidateRequiredFields(t *testing.T) {
	event := TaskDispatch{
		WorkflowInstanceID: uuid.NewString(),
		TaskID:             "segment",
		ExecutionID:        uuid.NewString(),
		PayloadID:          uuid.NewString(),
		CorrelationID:      uuid.NewString(),
		Type:               "argo",
		Status:             string(models.TaskStatusDispatched),
	}
	require.NoError(t, event.Validate())

	event.TaskID = ""
	assert.Error(t, event.Validate())
}

func TestTaskCancellation_Validate(t *testing.T) {
	event := TaskCancellation{
		Identity:           "task-segment-1",
		WorkflowInstanceID: uuid.NewString(),
		TaskID:             "segment",
		ExecutionID:        uuid.NewString(),
		Reason:             models.FailureReasonTimedOut,
	}
	require.NoError(t, event.Validate())

	event.Reason = models.FailureReasonNone
	assert.Error(t, event.Validate(), "cancellation without a reason is a programmer error")
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, WorkflowRequestTopic, TopicFor(WorkflowRequestEventType))
	assert.Equal(t, TaskDispatchTopic, TopicFor(TaskDispatchEventType))
	assert.Equal(t, TaskCancellationTopic, TopicFor(TaskCancellationEventType))
	assert.Equal(t, "", TopicFor(EventType("unknown")))
}
