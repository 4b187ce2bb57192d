package services

import (
	"context"
	"log/slog"

	"github.com/openimaging/conductor/pkg/models"
	"github.com/openimaging/conductor/pkg/persistence"
)

// Instance exposes workflow instance reads and operator actions. Instances
// are audit records; the only mutation offered is acknowledging a failed
// task execution.
type Instance struct {
	logger      *slog.Logger
	persistence persistence.Persistence
}

func NewInstance(logger *slog.Logger, store persistence.Persistence) *Instance {
	return &Instance{
		logger:      logger.With("module", "services.instance"),
		persistence: store,
	}
}

// List returns instances, optionally filtered by status or payload id.
func (s *Instance) List(ctx context.Context, opts persistence.ListInstancesOptions) ([]*models.WorkflowInstance, error) {
	return s.persistence.WorkflowInstanceRepository().List(ctx, opts)
}

// Get returns one instance by id.
func (s *Instance) Get(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	return s.persistence.WorkflowInstanceRepository().GetByID(ctx, id)
}

// AcknowledgeTaskError records an operator acknowledgment for a failed
// execution and returns the instance with its recomputed status.
func (s *Instance) AcknowledgeTaskError(ctx context.Context, instanceID, executionID string) (*models.WorkflowInstance, error) {
	instance, err := s.persistence.WorkflowInstanceRepository().AcknowledgeTaskError(ctx, instanceID, executionID)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Task error acknowledged",
		"workflow_instance_id", instanceID, "execution_id", executionID, "status", instance.Status)

	return instance, nil
}
