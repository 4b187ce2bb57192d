package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openimaging/conductor/pkg/models"
	"github.com/openimaging/conductor/pkg/persistence"
)

// WorkflowInstanceRepository stores instances with task executions in their
// own table keyed by (instance, task, execution). Task updates touch only
// their own row, so two concurrent task completions in one instance cannot
// overwrite each other.
type WorkflowInstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewWorkflowInstanceRepository(db *sql.DB, logger *slog.Logger) *WorkflowInstanceRepository {
	return &WorkflowInstanceRepository{db: db, logger: logger}
}

func (r *WorkflowInstanceRepository) Create(ctx context.Context, instance *models.WorkflowInstance) error {
	acked, err := json.Marshal(ackListOrEmpty(instance.AcknowledgedTaskErrors))
	if err != nil {
		return fmt.Errorf("failed to marshal acknowledged task errors: %w", err)
	}

	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	_, err = transaction.ExecContext(ctx, `
		INSERT INTO workflow_instances (id, workflow_definition_id, payload_id, bucket, status, acknowledged_task_errors, start_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, instance.ID, instance.WorkflowDefinitionID, instance.PayloadID, instance.Bucket,
		instance.Status, acked, instance.StartTime)
	if err != nil {
		_ = transaction.Rollback()

		return persistence.NewInstanceError("Create", instance.ID, err)
	}

	for i := range instance.Tasks {
		if err := insertTask(ctx, transaction, instance.ID, &instance.Tasks[i]); err != nil {
			_ = transaction.Rollback()

			return persistence.NewInstanceError("Create", instance.ID, err)
		}
	}

	return transaction.Commit()
}

func insertTask(ctx context.Context, tx *sql.Tx, instanceID string, task *models.TaskExecution) error {
	inputs, err := json.Marshal(mapOrEmpty(task.InputArtifacts))
	if err != nil {
		return err
	}

	outputs, err := json.Marshal(mapOrEmpty(task.OutputArtifacts))
	if err != nil {
		return err
	}

	args, err := json.Marshal(mapOrEmpty(task.TaskPluginArguments))
	if err != nil {
		return err
	}

	metadata, err := json.Marshal(anyMapOrEmpty(task.ResultMetadata))
	if err != nil {
		return err
	}

	stats, err := json.Marshal(mapOrEmpty(task.ExecutionStats))
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO task_executions (
			workflow_instance_id, task_id, execution_id, task_type, status, reason,
			input_artifacts, output_artifacts, output_directory, task_plugin_arguments,
			timeout, task_start_time, result_metadata, execution_stats)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, instanceID, task.TaskID, task.ExecutionID, task.TaskType, task.Status, task.Reason,
		inputs, outputs, task.OutputDirectory, args,
		nullTime(task.Timeout), nullTime(task.TaskStartTime), metadata, stats)

	return err
}

func (r *WorkflowInstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, workflow_definition_id, payload_id, bucket, status, acknowledged_task_errors, start_time
		FROM workflow_instances
		WHERE id = $1
	`, id)

	instance, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewInstanceError("GetByID", id, persistence.ErrInstanceNotFound)
		}

		return nil, fmt.Errorf("failed to scan instance: %w", err)
	}

	instance.Tasks, err = r.loadTasks(ctx, id)
	if err != nil {
		return nil, err
	}

	return instance, nil
}

func (r *WorkflowInstanceRepository) List(ctx context.Context, opts persistence.ListInstancesOptions) ([]*models.WorkflowInstance, error) {
	query := `
		SELECT id, workflow_definition_id, payload_id, bucket, status, acknowledged_task_errors, start_time
		FROM workflow_instances
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2 = '' OR payload_id::text = $2)
		ORDER BY start_time DESC
	`

	var status *string

	if opts.Status != nil {
		s := string(*opts.Status)
		status = &s
	}

	rows, err := r.db.QueryContext(ctx, query, status, opts.PayloadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	instances := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}

		instances = append(instances, instance)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	for _, instance := range instances {
		instance.Tasks, err = r.loadTasks(ctx, instance.ID)
		if err != nil {
			return nil, err
		}
	}

	return instances, nil
}

// UpdateTask rewrites one task execution row in place, guarded against
// resurrecting a row another writer already finished: terminal rows only
// accept writes that keep them terminal.
func (r *WorkflowInstanceRepository) UpdateTask(ctx context.Context, instanceID string, task *models.TaskExecution) error {
	outputs, err := json.Marshal(mapOrEmpty(task.OutputArtifacts))
	if err != nil {
		return fmt.Errorf("failed to marshal output artifacts: %w", err)
	}

	metadata, err := json.Marshal(anyMapOrEmpty(task.ResultMetadata))
	if err != nil {
		return fmt.Errorf("failed to marshal result metadata: %w", err)
	}

	stats, err := json.Marshal(mapOrEmpty(task.ExecutionStats))
	if err != nil {
		return fmt.Errorf("failed to marshal execution stats: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE task_executions
		SET status = $4,
		    reason = $5,
		    output_artifacts = $6,
		    timeout = $7,
		    task_start_time = $8,
		    result_metadata = $9,
		    execution_stats = $10
		WHERE workflow_instance_id = $1 AND task_id = $2 AND execution_id = $3
		  AND status NOT IN ('succeeded', 'failed', 'canceled')
	`, instanceID, task.TaskID, task.ExecutionID, task.Status, task.Reason,
		outputs, nullTime(task.Timeout), nullTime(task.TaskStartTime), metadata, stats)
	if err != nil {
		return persistence.NewInstanceError("UpdateTask", instanceID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return &persistence.InstanceError{
			Op:          "UpdateTask",
			InstanceID:  instanceID,
			ExecutionID: task.ExecutionID,
			Err:         persistence.ErrTaskNotFound,
		}
	}

	return nil
}

func (r *WorkflowInstanceRepository) UpdateStatus(ctx context.Context, instanceID string, status models.WorkflowInstanceStatus) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE workflow_instances SET status = $2 WHERE id = $1", instanceID, status)
	if err != nil {
		return persistence.NewInstanceError("UpdateStatus", instanceID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewInstanceError("UpdateStatus", instanceID, persistence.ErrInstanceNotFound)
	}

	return nil
}

func (r *WorkflowInstanceRepository) AcknowledgeTaskError(ctx context.Context, instanceID, executionID string) (*models.WorkflowInstance, error) {
	var exists bool

	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM task_executions
			WHERE workflow_instance_id = $1 AND execution_id = $2
		)
	`, instanceID, executionID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check task execution: %w", err)
	}

	if !exists {
		return nil, &persistence.InstanceError{
			Op:          "AcknowledgeTaskError",
			InstanceID:  instanceID,
			ExecutionID: executionID,
			Err:         persistence.ErrTaskNotFound,
		}
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE workflow_instances
		SET acknowledged_task_errors = acknowledged_task_errors || to_jsonb($2::text)
		WHERE id = $1 AND NOT acknowledged_task_errors @> to_jsonb($2::text)
	`, instanceID, executionID)
	if err != nil {
		return nil, persistence.NewInstanceError("AcknowledgeTaskError", instanceID, err)
	}

	instance, err := r.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	instance.Status = instance.DeriveStatus()

	if err := r.UpdateStatus(ctx, instanceID, instance.Status); err != nil {
		return nil, err
	}

	return instance, nil
}

func (r *WorkflowInstanceRepository) FindTimedOutTasks(ctx context.Context, now time.Time) ([]models.TaskExecution, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM task_executions
		WHERE status NOT IN ('succeeded', 'failed', 'canceled')
		  AND timeout IS NOT NULL AND timeout < $1
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query timed out tasks: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	var tasks []models.TaskExecution

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task execution: %w", err)
		}

		tasks = append(tasks, *task)
	}

	return tasks, rows.Err()
}

const taskColumns = `
	workflow_instance_id, task_id, execution_id, task_type, status, reason,
	input_artifacts, output_artifacts, output_directory, task_plugin_arguments,
	timeout, task_start_time, result_metadata, execution_stats
`

func (r *WorkflowInstanceRepository) loadTasks(ctx context.Context, instanceID string) ([]models.TaskExecution, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM task_executions
		WHERE workflow_instance_id = $1
		ORDER BY task_start_time NULLS LAST, task_id
	`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task executions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	tasks := make([]models.TaskExecution, 0)

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task execution: %w", err)
		}

		tasks = append(tasks, *task)
	}

	return tasks, rows.Err()
}

func scanInstance(row rowScanner) (*models.WorkflowInstance, error) {
	var (
		instance models.WorkflowInstance
		acked    []byte
	)

	err := row.Scan(&instance.ID, &instance.WorkflowDefinitionID, &instance.PayloadID,
		&instance.Bucket, &instance.Status, &acked, &instance.StartTime)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(acked, &instance.AcknowledgedTaskErrors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal acknowledged task errors: %w", err)
	}

	return &instance, nil
}

func scanTask(row rowScanner) (*models.TaskExecution, error) {
	var (
		task      models.TaskExecution
		inputs    []byte
		outputs   []byte
		args      []byte
		metadata  []byte
		stats     []byte
		timeout   sql.NullTime
		startTime sql.NullTime
	)

	err := row.Scan(&task.WorkflowInstanceID, &task.TaskID, &task.ExecutionID, &task.TaskType,
		&task.Status, &task.Reason, &inputs, &outputs, &task.OutputDirectory, &args,
		&timeout, &startTime, &metadata, &stats)
	if err != nil {
		return nil, err
	}

	for blob, target := range map[*[]byte]any{
		&inputs:   &task.InputArtifacts,
		&outputs:  &task.OutputArtifacts,
		&args:     &task.TaskPluginArguments,
		&metadata: &task.ResultMetadata,
		&stats:    &task.ExecutionStats,
	} {
		if err := json.Unmarshal(*blob, target); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task execution field: %w", err)
		}
	}

	if timeout.Valid {
		task.Timeout = timeout.Time
	}

	if startTime.Valid {
		task.TaskStartTime = startTime.Time
	}

	return &task, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: t, Valid: true}
}

func mapOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}

	return m
}

func anyMapOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}

	return m
}

func ackListOrEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}

	return list
}
