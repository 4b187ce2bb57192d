// Package postgresql provides PostgreSQL persistence for workflow
// definitions, workflow instances, and payloads.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// Registers the postgres driver.
	_ "github.com/lib/pq"

	"github.com/openimaging/conductor/pkg/persistence"
	"github.com/openimaging/conductor/pkg/persistence/sqlbase"
)

type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	workflowRepo *WorkflowRepository
	instanceRepo *WorkflowInstanceRepository
	payloadRepo  *PayloadRepository
}

func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:           database,
		logger:       logger,
		workflowRepo: NewWorkflowRepository(database, logger),
		instanceRepo: NewWorkflowInstanceRepository(database, logger),
		payloadRepo:  NewPayloadRepository(database, logger),
	}, nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) WorkflowInstanceRepository() persistence.WorkflowInstanceRepository {
	return p.instanceRepo
}

func (p *Persistence) PayloadRepository() persistence.PayloadRepository {
	return p.payloadRepo
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflows (
				id UUID NOT NULL,
				revision INTEGER NOT NULL,
				name VARCHAR(15) NOT NULL,
				version TEXT NOT NULL,
				description VARCHAR(200) NOT NULL,
				informatics_gateway JSONB NOT NULL,
				tasks JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				deleted_at TIMESTAMP WITH TIME ZONE,
				PRIMARY KEY (id, revision)
			);

			CREATE INDEX IF NOT EXISTS idx_workflows_name ON workflows (name);

			CREATE TABLE IF NOT EXISTS workflow_instances (
				id UUID PRIMARY KEY,
				workflow_definition_id UUID NOT NULL,
				payload_id UUID NOT NULL,
				bucket TEXT NOT NULL,
				status VARCHAR(20) NOT NULL,
				acknowledged_task_errors JSONB NOT NULL DEFAULT '[]',
				start_time TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_instances_payload ON workflow_instances (payload_id);
			CREATE INDEX IF NOT EXISTS idx_instances_status ON workflow_instances (status);

			CREATE TABLE IF NOT EXISTS task_executions (
				workflow_instance_id UUID NOT NULL REFERENCES workflow_instances (id),
				task_id VARCHAR(50) NOT NULL,
				execution_id UUID NOT NULL,
				task_type TEXT NOT NULL,
				status VARCHAR(20) NOT NULL,
				reason VARCHAR(30) NOT NULL DEFAULT '',
				input_artifacts JSONB NOT NULL DEFAULT '{}',
				output_artifacts JSONB NOT NULL DEFAULT '{}',
				output_directory TEXT NOT NULL DEFAULT '',
				task_plugin_arguments JSONB NOT NULL DEFAULT '{}',
				timeout TIMESTAMP WITH TIME ZONE,
				task_start_time TIMESTAMP WITH TIME ZONE,
				result_metadata JSONB NOT NULL DEFAULT '{}',
				execution_stats JSONB NOT NULL DEFAULT '{}',
				PRIMARY KEY (workflow_instance_id, task_id, execution_id)
			);

			CREATE INDEX IF NOT EXISTS idx_task_executions_timeout
				ON task_executions (timeout)
				WHERE status NOT IN ('succeeded', 'failed', 'canceled');

			CREATE TABLE IF NOT EXISTS payloads (
				payload_id UUID PRIMARY KEY,
				bucket TEXT NOT NULL,
				relative_root_path TEXT NOT NULL,
				files JSONB NOT NULL DEFAULT '[]',
				file_count INTEGER NOT NULL DEFAULT 0,
				called_ae_title VARCHAR(15) NOT NULL DEFAULT '',
				calling_ae_title VARCHAR(15) NOT NULL DEFAULT '',
				workflow_instance_ids JSONB NOT NULL DEFAULT '[]',
				deleted_state VARCHAR(20) NOT NULL DEFAULT 'none',
				delete_marked_at TIMESTAMP WITH TIME ZONE,
				timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
				expires TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_payloads_expires ON payloads (expires) WHERE deleted_state != 'yes';
		`,
	}
}
