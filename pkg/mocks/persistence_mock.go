// Package mocks provides testify mocks for the event bus and persistence
// interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/openimaging/conductor/pkg/models"
	"github.com/openimaging/conductor/pkg/persistence"
)

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) Create(ctx context.Context, def *models.WorkflowDefinition) error {
	args := m.Called(ctx, def)

	return args.Error(0)
}

func (m *MockWorkflowRepository) CreateRevision(ctx context.Context, def *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	args := m.Called(ctx, def)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowDefinition), args.Error(1)
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowDefinition), args.Error(1)
}

func (m *MockWorkflowRepository) GetByName(ctx context.Context, name string) (*models.WorkflowDefinition, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowDefinition), args.Error(1)
}

func (m *MockWorkflowRepository) List(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowDefinition), args.Error(1)
}

func (m *MockWorkflowRepository) SoftDelete(ctx context.Context, id string, when time.Time) error {
	args := m.Called(ctx, id, when)

	return args.Error(0)
}

// MockWorkflowInstanceRepository is a mock implementation of
// persistence.WorkflowInstanceRepository.
type MockWorkflowInstanceRepository struct {
	mock.Mock
}

func (m *MockWorkflowInstanceRepository) Create(ctx context.Context, instance *models.WorkflowInstance) error {
	args := m.Called(ctx, instance)

	return args.Error(0)
}

func (m *MockWorkflowInstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowInstance), args.Error(1)
}

func (m *MockWorkflowInstanceRepository) List(ctx context.Context, opts persistence.ListInstancesOptions) ([]*models.WorkflowInstance, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowInstance), args.Error(1)
}

func (m *MockWorkflowInstanceRepository) UpdateTask(ctx context.Context, instanceID string, task *models.TaskExecution) error {
	args := m.Called(ctx, instanceID, task)

	return args.Error(0)
}

func (m *MockWorkflowInstanceRepository) UpdateStatus(ctx context.Context, instanceID string, status models.WorkflowInstanceStatus) error {
	args := m.Called(ctx, instanceID, status)

	return args.Error(0)
}

func (m *MockWorkflowInstanceRepository) AcknowledgeTaskError(ctx context.Context, instanceID, executionID string) (*models.WorkflowInstance, error) {
	args := m.Called(ctx, instanceID, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowInstance), args.Error(1)
}

func (m *MockWorkflowInstanceRepository) FindTimedOutTasks(ctx context.Context, now time.Time) ([]models.TaskExecution, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.TaskExecution), args.Error(1)
}

// MockPayloadRepository is a mock implementation of persistence.PayloadRepository.
type MockPayloadRepository struct {
	mock.Mock
}

func (m *MockPayloadRepository) Create(ctx context.Context, payload *models.Payload) error {
	args := m.Called(ctx, payload)

	return args.Error(0)
}

func (m *MockPayloadRepository) GetByID(ctx context.Context, payloadID string) (*models.Payload, error) {
	args := m.Called(ctx, payloadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Payload), args.Error(1)
}

func (m *MockPayloadRepository) Update(ctx context.Context, payload *models.Payload) error {
	args := m.Called(ctx, payload)

	return args.Error(0)
}

func (m *MockPayloadRepository) MarkDeleted(ctx context.Context, payloadID string, state models.PayloadDeletedState, when time.Time) error {
	args := m.Called(ctx, payloadID, state, when)

	return args.Error(0)
}

func (m *MockPayloadRepository) FindExpired(ctx context.Context, now, staleBefore time.Time) ([]*models.Payload, error) {
	args := m.Called(ctx, now, staleBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Payload), args.Error(1)
}

// MockPersistence bundles the repository mocks behind the persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	workflowRepo *MockWorkflowRepository
	instanceRepo *MockWorkflowInstanceRepository
	payloadRepo  *MockPayloadRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		workflowRepo: &MockWorkflowRepository{},
		instanceRepo: &MockWorkflowInstanceRepository{},
		payloadRepo:  &MockPayloadRepository{},
	}
}

// GetMockWorkflowRepository returns the underlying mock for setting up expectations.
func (m *MockPersistence) GetMockWorkflowRepository() *MockWorkflowRepository {
	return m.workflowRepo
}

// GetMockWorkflowInstanceRepository returns the underlying mock for setting up expectations.
func (m *MockPersistence) GetMockWorkflowInstanceRepository() *MockWorkflowInstanceRepository {
	return m.instanceRepo
}

// GetMockPayloadRepository returns the underlying mock for setting up expectations.
func (m *MockPersistence) GetMockPayloadRepository() *MockPayloadRepository {
	return m.payloadRepo
}

func (m *MockPersistence) WorkflowRepository() persistence.WorkflowRepository {
	return m.workflowRepo
}

func (m *MockPersistence) WorkflowInstanceRepository() persistence.WorkflowInstanceRepository {
	return m.instanceRepo
}

func (m *MockPersistence) PayloadRepository() persistence.PayloadRepository {
	return m.payloadRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
