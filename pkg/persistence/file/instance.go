package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/openimaging/conductor/pkg/models"
	"github.com/openimaging/conductor/pkg/persistence"
)

// WorkflowInstanceRepository stores one JSON document per instance. A
// process-wide mutex stands in for the per-record atomicity a document
// store provides.
type WorkflowInstanceRepository struct {
	root string
	mu   sync.RWMutex
}

func NewWorkflowInstanceRepository(root string) *WorkflowInstanceRepository {
	return &WorkflowInstanceRepository{root: root}
}

func (r *WorkflowInstanceRepository) path(id string) string {
	return filepath.Join(r.root, "instances", id+".json")
}

func (r *WorkflowInstanceRepository) Create(_ context.Context, instance *models.WorkflowInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return writeJSON(r.path(instance.ID), instance)
}

func (r *WorkflowInstanceRepository) GetByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.read(id)
}

func (r *WorkflowInstanceRepository) List(_ context.Context, opts persistence.ListInstancesOptions) ([]*models.WorkflowInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dir := filepath.Join(r.root, "instances")

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.WorkflowInstance{}, nil
		}

		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	instances := make([]*models.WorkflowInstance, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		var instance models.WorkflowInstance
		if err := readJSON(filepath.Join(dir, entry.Name()), &instance); err != nil {
			return nil, fmt.Errorf("failed to read instance file %s: %w", entry.Name(), err)
		}

		if opts.Status != nil && instance.Status != *opts.Status {
			continue
		}

		if opts.PayloadID != "" && instance.PayloadID != opts.PayloadID {
			continue
		}

		instances = append(instances, &instance)
	}

	return instances, nil
}

func (r *WorkflowInstanceRepository) UpdateTask(_ context.Context, instanceID string, task *models.TaskExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	instance, err := r.read(instanceID)
	if err != nil {
		return err
	}

	for i := range instance.Tasks {
		if instance.Tasks[i].TaskID == task.TaskID && instance.Tasks[i].ExecutionID == task.ExecutionID {
			instance.Tasks[i] = *task

			return writeJSON(r.path(instanceID), instance)
		}
	}

	return persistence.NewInstanceError("UpdateTask", instanceID, persistence.ErrTaskNotFound)
}

func (r *WorkflowInstanceRepository) UpdateStatus(_ context.Context, instanceID string, status models.WorkflowInstanceStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	instance, err := r.read(instanceID)
	if err != nil {
		return err
	}

	instance.Status = status

	return writeJSON(r.path(instanceID), instance)
}

func (r *WorkflowInstanceRepository) AcknowledgeTaskError(_ context.Context, instanceID, executionID string) (*models.WorkflowInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	instance, err := r.read(instanceID)
	if err != nil {
		return nil, err
	}

	if _, ok := instance.TaskByExecutionID(executionID); !ok {
		return nil, &persistence.InstanceError{
			Op:          "AcknowledgeTaskError",
			InstanceID:  instanceID,
			ExecutionID: executionID,
			Err:         persistence.ErrTaskNotFound,
		}
	}

	if !instance.IsAcknowledged(executionID) {
		instance.AcknowledgedTaskErrors = append(instance.AcknowledgedTaskErrors, executionID)
	}

	instance.Status = instance.DeriveStatus()

	if err := writeJSON(r.path(instanceID), instance); err != nil {
		return nil, err
	}

	return instance, nil
}

func (r *WorkflowInstanceRepository) FindTimedOutTasks(ctx context.Context, now time.Time) ([]models.TaskExecution, error) {
	instances, err := r.List(ctx, persistence.ListInstancesOptions{})
	if err != nil {
		return nil, err
	}

	var timedOut []models.TaskExecution

	for _, instance := range instances {
		for i := range instance.Tasks {
			if instance.Tasks[i].TimedOut(now) {
				timedOut = append(timedOut, instance.Tasks[i])
			}
		}
	}

	return timedOut, nil
}

func (r *WorkflowInstanceRepository) read(id string) (*models.WorkflowInstance, error) {
	var instance models.WorkflowInstance

	if err := readJSON(r.path(id), &instance); err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewInstanceError("Get", id, persistence.ErrInstanceNotFound)
		}

		return nil, fmt.Errorf("failed to read instance %s: %w", id, err)
	}

	return &instance, nil
}
