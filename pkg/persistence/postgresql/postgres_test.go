package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/openimaging/conductor/pkg/models"
	"github.com/openimaging/conductor/pkg/persistence"
	"github.com/openimaging/conductor/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{"task_executions", "workflow_instances", "payloads", "workflows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container-backed persistence tests in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("conductor_test"),
			postgres.WithUsername("conductor"),
			postgres.WithPassword("conductor"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	persistence, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = persistence.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return persistence, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	var exists bool

	for _, table := range []string{"workflows", "workflow_instances", "task_executions", "payloads", "schema_migrations"} {
		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table+" table should exist")
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT version FROM schema_migrations WHERE version = 1").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.HealthCheck(ctx)
	assert.NoError(t, err)
}

func testDefinition(name string) *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		Name:        name,
		Version:     "1.0.0",
		Description: "integration test workflow",
		InformaticsGateway: &models.InformaticsGateway{
			AeTitle:            "CONDUCTOR",
			ExportDestinations: []string{"PACS"},
		},
		Tasks: []models.TaskNode{
			{
				ID:          "segment",
				Description: "segment the study",
				Type:        "argo",
				Args:        map[string]string{"workflow_template_name": "liver-seg"},
				TaskDestinations: []models.TaskDestination{
					{Name: "report", Conditions: "status == 'complete'"},
				},
			},
			{
				ID:          "report",
				Description: "build the report",
				Type:        "docker",
				Args:        map[string]string{"container_image": "reporter:latest"},
			},
		},
	}
}

func TestWorkflowRepository_Lifecycle(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	repo := p.WorkflowRepository()

	def := testDefinition("liver-seg")
	require.NoError(t, repo.Create(ctx, def))
	require.NotEmpty(t, def.ID)
	assert.Equal(t, 1, def.Revision)

	stored, err := repo.GetByID(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, "liver-seg", stored.Name)
	require.Len(t, stored.Tasks, 2)
	assert.Equal(t, "status == 'complete'", stored.Tasks[0].TaskDestinations[0].Conditions)

	update := testDefinition("liver-seg")
	update.ID = def.ID
	update.Description = "updated"

	revised, err := repo.CreateRevision(ctx, update)
	require.NoError(t, err)
	assert.Equal(t, 2, revised.Revision)

	latest, err := repo.GetByName(ctx, "liver-seg")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Revision)
	assert.Equal(t, "updated", latest.Description)

	defs, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, 2, defs[0].Revision)

	require.NoError(t, repo.SoftDelete(ctx, def.ID, time.Now().UTC()))

	_, err = repo.GetByID(ctx, def.ID)
	require.Error(t, err)
}

func TestInstanceRepository_TaskUpdatesAndTimeouts(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	repo := p.WorkflowInstanceRepository()
	now := time.Now().UTC()

	instance := &models.WorkflowInstance{
		ID:                   uuid.NewString(),
		WorkflowDefinitionID: uuid.NewString(),
		PayloadID:            uuid.NewString(),
		Bucket:               "imaging",
		Status:               models.InstanceStatusInProcess,
		StartTime:            now,
		Tasks: []models.TaskExecution{
			{
				TaskID:             "segment",
				ExecutionID:        uuid.NewString(),
				WorkflowInstanceID: "",
				TaskType:           "argo",
				Status:             models.TaskStatusDispatched,
				InputArtifacts:     map[string]string{"input": "payload/dicom"},
				OutputDirectory:    "payload/workflows/output",
				Timeout:            now.Add(-time.Minute),
				TaskStartTime:      now.Add(-time.Hour),
			},
		},
	}
	instance.Tasks[0].WorkflowInstanceID = instance.ID

	require.NoError(t, repo.Create(ctx, instance))

	stored, err := repo.GetByID(ctx, instance.ID)
	require.NoError(t, err)
	require.Len(t, stored.Tasks, 1)
	assert.Equal(t, map[string]string{"input": "payload/dicom"}, stored.Tasks[0].InputArtifacts)
	assert.WithinDuration(t, now.Add(-time.Minute), stored.Tasks[0].Timeout, time.Second)

	timedOut, err := repo.FindTimedOutTasks(ctx, now)
	require.NoError(t, err)
	require.Len(t, timedOut, 1)
	assert.Equal(t, instance.ID, timedOut[0].WorkflowInstanceID)

	task := stored.Tasks[0]
	task.Status = models.TaskStatusFailed
	task.Reason = models.FailureReasonTimedOut
	require.NoError(t, repo.UpdateTask(ctx, instance.ID, &task))

	// Terminal rows reject further writes.
	task.Status = models.TaskStatusSucceeded
	err = repo.UpdateTask(ctx, instance.ID, &task)
	require.Error(t, err)

	acked, err := repo.AcknowledgeTaskError(ctx, instance.ID, task.ExecutionID)
	require.NoError(t, err)
	assert.True(t, acked.IsAcknowledged(task.ExecutionID))
	assert.Equal(t, models.InstanceStatusSucceeded, acked.Status)

	byPayload, err := repo.List(ctx, persistence.ListInstancesOptions{PayloadID: instance.PayloadID})
	require.NoError(t, err)
	require.Len(t, byPayload, 1)
	assert.Equal(t, instance.ID, byPayload[0].ID)
}

func TestPayloadRepository_RetentionQueries(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	repo := p.PayloadRepository()
	now := time.Now().UTC()
	past := now.Add(-time.Hour)

	expired := &models.Payload{
		PayloadID:        uuid.NewString(),
		Bucket:           "imaging",
		RelativeRootPath: "expired-root",
		Files:            []string{"expired-root/study/1.dcm"},
		FileCount:        1,
		CalledAeTitle:    "CONDUCTOR",
		CallingAeTitle:   "MODALITY",
		DeletedState:     models.PayloadDeletedNone,
		Timestamp:        past,
		Expires:          &past,
	}
	require.NoError(t, repo.Create(ctx, expired))

	fresh := *expired
	fresh.PayloadID = uuid.NewString()
	future := now.Add(time.Hour)
	fresh.Expires = &future
	require.NoError(t, repo.Create(ctx, &fresh))

	stored, err := repo.GetByID(ctx, expired.PayloadID)
	require.NoError(t, err)
	assert.Equal(t, []string{"expired-root/study/1.dcm"}, stored.Files)

	stored.WorkflowInstanceIDs = append(stored.WorkflowInstanceIDs, uuid.NewString())
	require.NoError(t, repo.Update(ctx, stored))

	due, err := repo.FindExpired(ctx, now, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, expired.PayloadID, due[0].PayloadID)

	require.NoError(t, repo.MarkDeleted(ctx, expired.PayloadID, models.PayloadDeletedInProgress, now))

	// A freshly in-progress delete is not retried.
	due, err = repo.FindExpired(ctx, now, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)

	require.NoError(t, repo.MarkDeleted(ctx, expired.PayloadID, models.PayloadDeletedYes, now))

	done, err := repo.GetByID(ctx, expired.PayloadID)
	require.NoError(t, err)
	assert.Equal(t, models.PayloadDeletedYes, done.DeletedState)
}
