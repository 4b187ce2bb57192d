package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openimaging/conductor/pkg/models"
	"github.com/openimaging/conductor/pkg/persistence"
)

func testInstance(id, payloadID string) *models.WorkflowInstance {
	return &models.WorkflowInstance{
		ID:                   id,
		WorkflowDefinitionID: "wf-1",
		PayloadID:            payloadID,
		Bucket:               "imaging",
		Status:               models.InstanceStatusInProcess,
		StartTime:            time.Now().UTC(),
		Tasks: []models.TaskExecution{
			{
				TaskID:             "segment",
				ExecutionID:        "exec-" + id,
				WorkflowInstanceID: id,
				TaskType:           "argo",
				Status:             models.TaskStatusDispatched,
				Timeout:            time.Now().UTC().Add(time.Hour),
			},
		},
	}
}

func TestInstanceRepository_CreateAndGet(t *testing.T) {
	repo := NewWorkflowInstanceRepository(t.TempDir())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testInstance("inst-1", "payload-1")))

	instance, err := repo.GetByID(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, "payload-1", instance.PayloadID)
	require.Len(t, instance.Tasks, 1)
	assert.Equal(t, models.TaskStatusDispatched, instance.Tasks[0].Status)
}

func TestInstanceRepository_GetByIDUnknownID(t *testing.T) {
	repo := NewWorkflowInstanceRepository(t.TempDir())

	_, err := repo.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrInstanceNotFound)
}

func TestInstanceRepository_ListFilters(t *testing.T) {
	repo := NewWorkflowInstanceRepository(t.TempDir())
	ctx := context.Background()

	first := testInstance("inst-1", "payload-1")
	second := testInstance("inst-2", "payload-2")
	second.Status = models.InstanceStatusSucceeded

	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	all, err := repo.List(ctx, persistence.ListInstancesOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byPayload, err := repo.List(ctx, persistence.ListInstancesOptions{PayloadID: "payload-2"})
	require.NoError(t, err)
	require.Len(t, byPayload, 1)
	assert.Equal(t, "inst-2", byPayload[0].ID)

	succeeded := models.InstanceStatusSucceeded
	byStatus, err := repo.List(ctx, persistence.ListInstancesOptions{Status: &succeeded})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "inst-2", byStatus[0].ID)
}

func TestInstanceRepository_UpdateTask(t *testing.T) {
	repo := NewWorkflowInstanceRepository(t.TempDir())
	ctx := context.Background()

	instance := testInstance("inst-1", "payload-1")
	require.NoError(t, repo.Create(ctx, instance))

	task := instance.Tasks[0]
	task.Status = models.TaskStatusSucceeded

	require.NoError(t, repo.UpdateTask(ctx, "inst-1", &task))

	stored, err := repo.GetByID(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSucceeded, stored.Tasks[0].Status)
}

func TestInstanceRepository_UpdateTaskUnknownExecution(t *testing.T) {
	repo := NewWorkflowInstanceRepository(t.TempDir())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testInstance("inst-1", "payload-1")))

	err := repo.UpdateTask(ctx, "inst-1", &models.TaskExecution{
		TaskID:      "segment",
		ExecutionID: "someone-else",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrTaskNotFound)
}

func TestInstanceRepository_AcknowledgeTaskError(t *testing.T) {
	repo := NewWorkflowInstanceRepository(t.TempDir())
	ctx := context.Background()

	instance := testInstance("inst-1", "payload-1")
	instance.Tasks[0].Status = models.TaskStatusFailed
	instance.Status = models.InstanceStatusFailed
	require.NoError(t, repo.Create(ctx, instance))

	updated, err := repo.AcknowledgeTaskError(ctx, "inst-1", instance.Tasks[0].ExecutionID)
	require.NoError(t, err)
	assert.True(t, updated.IsAcknowledged(instance.Tasks[0].ExecutionID))
	assert.Equal(t, models.InstanceStatusSucceeded, updated.Status)

	// Acknowledging twice is a no-op.
	again, err := repo.AcknowledgeTaskError(ctx, "inst-1", instance.Tasks[0].ExecutionID)
	require.NoError(t, err)
	assert.Len(t, again.AcknowledgedTaskErrors, 1)
}

func TestInstanceRepository_FindTimedOutTasks(t *testing.T) {
	repo := NewWorkflowInstanceRepository(t.TempDir())
	ctx := context.Background()

	now := time.Now().UTC()

	stale := testInstance("inst-stale", "payload-1")
	stale.Tasks[0].Timeout = now.Add(-time.Minute)

	fresh := testInstance("inst-fresh", "payload-2")
	fresh.Tasks[0].Timeout = now.Add(time.Hour)

	done := testInstance("inst-done", "payload-3")
	done.Tasks[0].Timeout = now.Add(-time.Minute)
	done.Tasks[0].Status = models.TaskStatusSucceeded

	require.NoError(t, repo.Create(ctx, stale))
	require.NoError(t, repo.Create(ctx, fresh))
	require.NoError(t, repo.Create(ctx, done))

	timedOut, err := repo.FindTimedOutTasks(ctx, now)
	require.NoError(t, err)
	require.Len(t, timedOut, 1)
	assert.Equal(t, "inst-stale", timedOut[0].WorkflowInstanceID)
}
