package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/openimaging/conductor/pkg/models"
	"github.com/openimaging/conductor/pkg/persistence"
)

// WorkflowRepository handles workflow-definition database operations.
// Revisions are append-only rows; reads always select the latest revision.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
	id
  , revision
  , name
  , version
  , description
  , informatics_gateway
  , tasks
  , created_at
  , deleted_at
`

func (r *WorkflowRepository) Create(ctx context.Context, def *models.WorkflowDefinition) error {
	if def.ID == "" {
		def.ID = uuid.NewString()
	}

	def.Revision = 1
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now().UTC()
	}

	return r.insert(ctx, def)
}

func (r *WorkflowRepository) CreateRevision(ctx context.Context, def *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	row := r.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(revision), 0) FROM workflows WHERE id = $1", def.ID)

	var latest int
	if err := row.Scan(&latest); err != nil {
		return nil, fmt.Errorf("failed to query latest revision: %w", err)
	}

	if latest == 0 {
		return nil, persistence.NewWorkflowError("CreateRevision", def.ID, persistence.ErrWorkflowNotFound)
	}

	def.Revision = latest + 1
	def.CreatedAt = time.Now().UTC()
	def.DeletedAt = nil

	if err := r.insert(ctx, def); err != nil {
		return nil, err
	}

	return def, nil
}

func (r *WorkflowRepository) insert(ctx context.Context, def *models.WorkflowDefinition) error {
	gateway, err := json.Marshal(def.InformaticsGateway)
	if err != nil {
		return fmt.Errorf("failed to marshal informatics gateway: %w", err)
	}

	tasks, err := json.Marshal(def.Tasks)
	if err != nil {
		return fmt.Errorf("failed to marshal tasks: %w", err)
	}

	query := `
		INSERT INTO workflows (id, revision, name, version, description, informatics_gateway, tasks, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.ExecContext(ctx, query,
		def.ID, def.Revision, def.Name, def.Version, def.Description, gateway, tasks, def.CreatedAt)
	if err != nil {
		return persistence.NewWorkflowError("Create", def.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE id = $1 AND deleted_at IS NULL
		ORDER BY revision DESC
		LIMIT 1
	`

	def, err := r.scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	return def, nil
}

func (r *WorkflowRepository) GetByName(ctx context.Context, name string) (*models.WorkflowDefinition, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE name = $1 AND deleted_at IS NULL
		ORDER BY revision DESC
		LIMIT 1
	`

	def, err := r.scanWorkflow(r.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByName", name, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	return def, nil
}

func (r *WorkflowRepository) List(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	query := `
		SELECT DISTINCT ON (id) ` + workflowColumns + `
		FROM workflows
		WHERE deleted_at IS NULL
		ORDER BY id, revision DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	defs := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		def, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		defs = append(defs, def)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return defs, nil
}

func (r *WorkflowRepository) SoftDelete(ctx context.Context, id string, when time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE workflows SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL", id, when)
	if err != nil {
		return persistence.NewWorkflowError("SoftDelete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError("SoftDelete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowRepository) scanWorkflow(row rowScanner) (*models.WorkflowDefinition, error) {
	var (
		def       models.WorkflowDefinition
		gateway   []byte
		tasks     []byte
		deletedAt sql.NullTime
	)

	err := row.Scan(&def.ID, &def.Revision, &def.Name, &def.Version, &def.Description,
		&gateway, &tasks, &def.CreatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(gateway, &def.InformaticsGateway); err != nil {
		return nil, fmt.Errorf("failed to unmarshal informatics gateway: %w", err)
	}

	if err := json.Unmarshal(tasks, &def.Tasks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tasks: %w", err)
	}

	if deletedAt.Valid {
		def.DeletedAt = &deletedAt.Time
	}

	return &def, nil
}
