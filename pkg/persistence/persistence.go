// Package persistence provides the document-store abstraction for workflow
// definitions, workflow instances, and payloads.
package persistence

import (
	"context"
	"time"

	"github.com/openimaging/conductor/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	WorkflowInstanceRepository() WorkflowInstanceRepository
	PayloadRepository() PayloadRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions. Definition rows are
// immutable: revisions insert new rows and deletion writes a tombstone.
type WorkflowRepository interface {
	// Create stores revision 1 of a new definition.
	Create(ctx context.Context, def *models.WorkflowDefinition) error

	// CreateRevision stores def as the next revision of an existing
	// definition id and returns the stored row.
	CreateRevision(ctx context.Context, def *models.WorkflowDefinition) (*models.WorkflowDefinition, error)

	// GetByID returns the latest non-deleted revision.
	GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)

	// GetByName returns the latest non-deleted revision by workflow name.
	GetByName(ctx context.Context, name string) (*models.WorkflowDefinition, error)

	// List returns the latest non-deleted revision of every definition.
	List(ctx context.Context) ([]*models.WorkflowDefinition, error)

	// SoftDelete tombstones every revision of the definition id.
	SoftDelete(ctx context.Context, id string, when time.Time) error
}

// ListInstancesOptions filters instance listings.
type ListInstancesOptions struct {
	Status    *models.WorkflowInstanceStatus
	PayloadID string
}

// WorkflowInstanceRepository stores workflow instances and their task
// executions. Task updates are addressed by their own
// (instance, task, execution) key so concurrent completions of different
// tasks within one instance never overwrite each other.
type WorkflowInstanceRepository interface {
	Create(ctx context.Context, instance *models.WorkflowInstance) error
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	List(ctx context.Context, opts ListInstancesOptions) ([]*models.WorkflowInstance, error)

	// UpdateTask persists one task execution record in place.
	UpdateTask(ctx context.Context, instanceID string, task *models.TaskExecution) error

	// UpdateStatus persists the derived instance-level status.
	UpdateStatus(ctx context.Context, instanceID string, status models.WorkflowInstanceStatus) error

	// AcknowledgeTaskError records an operator acknowledgment for the
	// execution id and returns the updated instance.
	AcknowledgeTaskError(ctx context.Context, instanceID, executionID string) (*models.WorkflowInstance, error)

	// FindTimedOutTasks returns non-terminal task executions whose
	// absolute deadline is before now.
	FindTimedOutTasks(ctx context.Context, now time.Time) ([]models.TaskExecution, error)
}

// PayloadRepository stores ingested payload records.
type PayloadRepository interface {
	Create(ctx context.Context, payload *models.Payload) error
	GetByID(ctx context.Context, payloadID string) (*models.Payload, error)
	Update(ctx context.Context, payload *models.Payload) error

	// MarkDeleted transitions the payload's deletion state.
	MarkDeleted(ctx context.Context, payloadID string, state models.PayloadDeletedState, when time.Time) error

	// FindExpired returns payloads past their retention expiry that are
	// either untouched or stuck InProgress since before staleBefore.
	FindExpired(ctx context.Context, now, staleBefore time.Time) ([]*models.Payload, error)
}
