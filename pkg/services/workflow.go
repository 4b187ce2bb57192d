package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/openimaging/conductor/pkg/graph"
	"github.com/openimaging/conductor/pkg/models"
	"github.com/openimaging/conductor/pkg/persistence"
	"github.com/openimaging/conductor/pkg/registry"
)

// Workflow manages the workflow definition lifecycle. Definitions are
// validated before every write and never stored invalid.
type Workflow struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	validator   *graph.Validator
	registry    *registry.Registry
}

func NewWorkflow(logger *slog.Logger, store persistence.Persistence, reg *registry.Registry) *Workflow {
	return &Workflow{
		logger:      logger.With("module", "services.workflow"),
		persistence: store,
		validator:   graph.NewValidator(reg),
		registry:    reg,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := w.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Validate runs the static checks and plugin-argument validation over a
// definition without storing anything.
func (w *Workflow) Validate(def *models.WorkflowDefinition) ([]string, []string) {
	errs, paths := w.validator.Validate(def)

	if def != nil {
		for i := range def.Tasks {
			task := &def.Tasks[i]
			if task.IsExportTask() {
				continue
			}

			if w.registry.IsRunnerRegistered(task.Type) {
				if err := w.registry.ValidateTaskArguments(task.Type, task.Args); err != nil {
					errs = append(errs, "task "+task.ID+": "+err.Error())
				}
			}
		}
	}

	return errs, paths
}

// Create validates and stores revision 1 of a new definition.
func (w *Workflow) Create(ctx context.Context, def *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	if errs, _ := w.Validate(def); len(errs) > 0 {
		return nil, &DefinitionValidationError{Errors: errs}
	}

	if err := w.persistence.WorkflowRepository().Create(ctx, def); err != nil {
		return nil, err
	}

	w.logger.InfoContext(ctx, "Workflow definition created", "workflow_id", def.ID, "name", def.Name)

	return def, nil
}

// Revise validates def and stores it as the next revision of an existing
// definition.
func (w *Workflow) Revise(ctx context.Context, def *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	if errs, _ := w.Validate(def); len(errs) > 0 {
		return nil, &DefinitionValidationError{Errors: errs}
	}

	revised, err := w.persistence.WorkflowRepository().CreateRevision(ctx, def)
	if err != nil {
		return nil, err
	}

	w.logger.InfoContext(ctx, "Workflow definition revised",
		"workflow_id", revised.ID, "name", revised.Name, "revision", revised.Revision)

	return revised, nil
}

// Get returns the latest non-deleted revision of a definition.
func (w *Workflow) Get(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	return w.persistence.WorkflowRepository().GetByID(ctx, id)
}

// List returns the latest non-deleted revision of every definition.
func (w *Workflow) List(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	return w.persistence.WorkflowRepository().List(ctx)
}

// Delete tombstones every revision of a definition. Running instances are
// not affected.
func (w *Workflow) Delete(ctx context.Context, id string) error {
	if err := w.persistence.WorkflowRepository().SoftDelete(ctx, id, time.Now().UTC()); err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Workflow definition deleted", "workflow_id", id)

	return nil
}
