// Package workflow implements the workflow instance state machine: it turns
// gateway workflow requests into instances, advances task executions on
// inbound updates and callbacks, and publishes dispatch, export, and
// cancellation events.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openimaging/conductor/pkg/conditions"
	"github.com/openimaging/conductor/pkg/eventbus"
	"github.com/openimaging/conductor/pkg/events"
	"github.com/openimaging/conductor/pkg/models"
	"github.com/openimaging/conductor/pkg/persistence"
)

const (
	DefaultTaskTimeout      = 60 * time.Minute
	DefaultPayloadRetention = 7 * 24 * time.Hour
)

var bucketNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.\-]{1,61}[a-z0-9]$`)

type Config struct {
	Storage StorageInfo

	// TaskTimeout applies to tasks whose definition sets no TimeoutMinutes.
	TaskTimeout time.Duration

	// PayloadRetention sets how long after ingestion a payload's objects
	// are kept. Zero disables expiry.
	PayloadRetention time.Duration
}

// Manager drives workflow instances from creation to completion.
type Manager struct {
	logger *slog.Logger
	store  persistence.Persistence
	bus    eventbus.EventBus
	config Config

	now func() time.Time
}

func NewManager(logger *slog.Logger, store persistence.Persistence, bus eventbus.EventBus, config Config) *Manager {
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = DefaultTaskTimeout
	}

	return &Manager{
		logger: logger.With("module", "workflow"),
		store:  store,
		bus:    bus,
		config: config,
		now:    time.Now,
	}
}

// RegisterHandlers wires the manager's inbound event handlers onto the bus.
func (m *Manager) RegisterHandlers(bus eventbus.EventSubscriber) error {
	if err := bus.Handle(events.WorkflowRequestEventType, m.handleWorkflowRequest); err != nil {
		return err
	}

	if err := bus.Handle(events.TaskUpdateEventType, m.handleTaskUpdate); err != nil {
		return err
	}

	return bus.Handle(events.TaskCallbackEventType, m.handleTaskCallback)
}

func (m *Manager) handleWorkflowRequest(ctx context.Context, event any) error {
	request, ok := event.(*events.WorkflowRequest)
	if !ok {
		return eventbus.Permanent(fmt.Errorf("%w: expected workflow request, got %T", ErrInvalidEvent, event))
	}

	return m.classify(m.OnWorkflowRequest(ctx, request))
}

func (m *Manager) handleTaskUpdate(ctx context.Context, event any) error {
	update, ok := event.(*events.TaskUpdate)
	if !ok {
		return eventbus.Permanent(fmt.Errorf("%w: expected task update, got %T", ErrInvalidEvent, event))
	}

	return m.classify(m.OnTaskUpdate(ctx, update))
}

func (m *Manager) handleTaskCallback(ctx context.Context, event any) error {
	callback, ok := event.(*events.TaskCallback)
	if !ok {
		return eventbus.Permanent(fmt.Errorf("%w: expected task callback, got %T", ErrInvalidEvent, event))
	}

	return m.classify(m.OnTaskCallback(ctx, callback))
}

// classify maps domain errors onto transport outcomes. Validation failures
// and missing records cannot be fixed by redelivery.
func (m *Manager) classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrInvalidTransition) || persistence.IsNotFound(err) {
		return eventbus.Permanent(err)
	}

	return err
}

// OnWorkflowRequest resolves the requested workflow definitions, records the
// payload, and creates one instance per resolved definition. Entries that
// resolve to nothing are logged and skipped.
func (m *Manager) OnWorkflowRequest(ctx context.Context, request *events.WorkflowRequest) error {
	if err := m.validateRequest(request); err != nil {
		return err
	}

	payload, err := m.recordPayload(ctx, request)
	if err != nil {
		return err
	}

	workflows := m.store.WorkflowRepository()

	for _, name := range request.Workflows {
		definition, err := workflows.GetByID(ctx, name)
		if persistence.IsNotFound(err) {
			definition, err = workflows.GetByName(ctx, name)
		}

		if persistence.IsNotFound(err) {
			m.logger.WarnContext(ctx, "Requested workflow not found, skipping",
				"workflow", name, "payload_id", request.PayloadID, "correlation_id", request.CorrelationID)

			continue
		}

		if err != nil {
			return err
		}

		instance, err := m.CreateInstance(ctx, request, definition)
		if err != nil {
			return err
		}

		payload.WorkflowInstanceIDs = append(payload.WorkflowInstanceIDs, instance.ID)
	}

	return m.store.PayloadRepository().Update(ctx, payload)
}

// CreateInstance creates and persists an instance of definition for the
// request's payload, with one execution record per root-reachable task, and
// dispatches the root task. Validation failures leave no partial instance.
func (m *Manager) CreateInstance(ctx context.Context, request *events.WorkflowRequest, definition *models.WorkflowDefinition) (*models.WorkflowInstance, error) {
	if err := m.validateRequest(request); err != nil {
		return nil, err
	}

	root := definition.RootTask()
	if root == nil {
		return nil, fmt.Errorf("%w: workflow %s has no tasks", ErrInvalidRequest, definition.ID)
	}

	now := m.now()
	instance := &models.WorkflowInstance{
		ID:                   uuid.NewString(),
		WorkflowDefinitionID: definition.ID,
		PayloadID:            request.PayloadID,
		Bucket:               request.Bucket,
		Status:               models.InstanceStatusCreated,
		StartTime:            now,
	}

	for _, taskID := range reachableTasks(definition) {
		node, _ := definition.TaskByID(taskID)
		executionID := uuid.NewString()

		instance.Tasks = append(instance.Tasks, models.TaskExecution{
			TaskID:              node.ID,
			ExecutionID:         executionID,
			WorkflowInstanceID:  instance.ID,
			TaskType:            node.Type,
			Status:              models.TaskStatusCreated,
			InputArtifacts:      copyMap(node.Artifacts.Input),
			OutputDirectory:     fmt.Sprintf("%s/workflows/%s/%s", request.PayloadID, instance.ID, executionID),
			TaskPluginArguments: copyMap(node.Args),
			TaskStartTime:       now,
		})
	}

	if err := m.store.WorkflowInstanceRepository().Create(ctx, instance); err != nil {
		return nil, err
	}

	rootExecution, _ := instance.TaskByID(root.ID)
	if err := m.dispatchTask(ctx, instance, root, rootExecution, request.CorrelationID); err != nil {
		return nil, err
	}

	if err := m.store.WorkflowInstanceRepository().UpdateTask(ctx, instance.ID, rootExecution); err != nil {
		return nil, err
	}

	instance.Status = instance.DeriveStatus()
	if err := m.store.WorkflowInstanceRepository().UpdateStatus(ctx, instance.ID, instance.Status); err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "Workflow instance created",
		"workflow_instance_id", instance.ID, "workflow_id", definition.ID,
		"payload_id", request.PayloadID, "correlation_id", request.CorrelationID)

	return instance, nil
}

// OnTaskUpdate advances one task execution. Updates addressed at a terminal
// execution are acknowledged as no-ops; a successful task activates its
// condition-passing destinations.
func (m *Manager) OnTaskUpdate(ctx context.Context, update *events.TaskUpdate) error {
	if err := update.Validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}

	instances := m.store.WorkflowInstanceRepository()

	instance, err := instances.GetByID(ctx, update.WorkflowInstanceID)
	if err != nil {
		return err
	}

	task, found := instance.TaskByID(update.TaskID)
	if !found || task.ExecutionID != update.ExecutionID {
		return fmt.Errorf("task %s execution %s in instance %s: %w",
			update.TaskID, update.ExecutionID, update.WorkflowInstanceID, persistence.ErrTaskNotFound)
	}

	if task.Status.IsTerminal() {
		m.logger.InfoContext(ctx, "Update for terminal task execution ignored",
			"workflow_instance_id", instance.ID, "task_id", task.TaskID,
			"execution_id", task.ExecutionID, "status", task.Status, "update_status", update.Status)

		return nil
	}

	if !task.CanTransitionTo(update.Status) {
		return fmt.Errorf("%w: %s -> %s for task %s", ErrInvalidTransition, task.Status, update.Status, task.TaskID)
	}

	task.Status = update.Status
	task.Reason = update.Reason

	if len(update.Metadata) > 0 {
		task.ResultMetadata = mergeAny(task.ResultMetadata, update.Metadata)
	}

	if len(update.ExecutionStats) > 0 {
		task.ExecutionStats = mergeString(task.ExecutionStats, update.ExecutionStats)
	}

	if err := instances.UpdateTask(ctx, instance.ID, task); err != nil {
		return err
	}

	if update.Status == models.TaskStatusSucceeded {
		if err := m.activateDestinations(ctx, instance, task, update.CorrelationID); err != nil {
			return err
		}
	}

	if update.Status == models.TaskStatusFailed || update.Status == models.TaskStatusCanceled {
		m.logger.WarnContext(ctx, "Task execution ended unsuccessfully",
			"workflow_instance_id", instance.ID, "task_id", task.TaskID,
			"execution_id", task.ExecutionID, "status", update.Status, "reason", update.Reason)
	}

	status := instance.DeriveStatus()
	if status != instance.Status {
		instance.Status = status

		if err := instances.UpdateStatus(ctx, instance.ID, status); err != nil {
			return err
		}
	}

	return nil
}

// OnTaskCallback handles an execution backend's completion report. Output
// artifact locations are merged onto the execution, then the report is
// treated as a successful task update.
func (m *Manager) OnTaskCallback(ctx context.Context, callback *events.TaskCallback) error {
	if err := callback.Validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}

	instances := m.store.WorkflowInstanceRepository()

	instance, err := instances.GetByID(ctx, callback.WorkflowInstanceID)
	if err != nil {
		return err
	}

	task, found := instance.TaskByID(callback.TaskID)
	if !found || task.ExecutionID != callback.ExecutionID {
		return fmt.Errorf("task %s execution %s in instance %s: %w",
			callback.TaskID, callback.ExecutionID, callback.WorkflowInstanceID, persistence.ErrTaskNotFound)
	}

	if len(callback.Outputs) > 0 {
		if task.OutputArtifacts == nil {
			task.OutputArtifacts = make(map[string]string, len(callback.Outputs))
		}

		for _, output := range callback.Outputs {
			task.OutputArtifacts[output.Name] = output.RelativeRootPath
		}

		if err := instances.UpdateTask(ctx, instance.ID, task); err != nil {
			return err
		}
	}

	return m.OnTaskUpdate(ctx, &events.TaskUpdate{
		WorkflowInstanceID: callback.WorkflowInstanceID,
		TaskID:             callback.TaskID,
		ExecutionID:        callback.ExecutionID,
		CorrelationID:      callback.CorrelationID,
		Status:             models.TaskStatusSucceeded,
		Metadata:           callback.Metadata,
		ExecutionStats:     callback.ExecutionStats,
	})
}

// AcknowledgeTaskError records an operator acknowledgment of a failed
// execution so it stops masking the instance status.
func (m *Manager) AcknowledgeTaskError(ctx context.Context, instanceID, executionID string) (*models.WorkflowInstance, error) {
	return m.store.WorkflowInstanceRepository().AcknowledgeTaskError(ctx, instanceID, executionID)
}

// activateDestinations evaluates the succeeded task's outgoing destination
// conditions and dispatches every passing destination. A condition that
// fails to evaluate is logged and its branch not taken.
func (m *Manager) activateDestinations(ctx context.Context, instance *models.WorkflowInstance, task *models.TaskExecution, correlationID string) error {
	definition, err := m.store.WorkflowRepository().GetByID(ctx, instance.WorkflowDefinitionID)
	if err != nil {
		return err
	}

	node, found := definition.TaskByID(task.TaskID)
	if !found {
		return fmt.Errorf("task %s in workflow %s: %w", task.TaskID, definition.ID, persistence.ErrTaskNotFound)
	}

	evalContext := conditionContext(task)

	for _, destination := range node.TaskDestinations {
		if destination.Conditions != "" {
			passed, err := conditions.Evaluate(destination.Conditions, evalContext)
			if err != nil {
				m.logger.ErrorContext(ctx, "Destination condition failed to evaluate, branch not taken",
					"workflow_instance_id", instance.ID, "task_id", task.TaskID,
					"destination", destination.Name, "conditions", destination.Conditions, "error", err)

				continue
			}

			if !passed {
				m.logger.InfoContext(ctx, "Destination condition not met",
					"workflow_instance_id", instance.ID, "task_id", task.TaskID, "destination", destination.Name)

				continue
			}
		}

		if err := m.activateTask(ctx, instance, definition, destination.Name, task, correlationID); err != nil {
			return err
		}
	}

	return nil
}

func (m *Manager) activateTask(ctx context.Context, instance *models.WorkflowInstance, definition *models.WorkflowDefinition, taskID string, predecessor *models.TaskExecution, correlationID string) error {
	node, found := definition.TaskByID(taskID)
	if !found {
		return fmt.Errorf("destination %s in workflow %s: %w", taskID, definition.ID, persistence.ErrTaskNotFound)
	}

	execution, found := instance.TaskByID(taskID)
	if !found {
		return fmt.Errorf("destination %s in instance %s: %w", taskID, instance.ID, persistence.ErrTaskNotFound)
	}

	if execution.Status != models.TaskStatusCreated {
		m.logger.InfoContext(ctx, "Destination already activated, skipping",
			"workflow_instance_id", instance.ID, "task_id", taskID, "status", execution.Status)

		return nil
	}

	// A destination with no declared inputs consumes its predecessor's
	// outputs.
	if len(execution.InputArtifacts) == 0 {
		if len(predecessor.OutputArtifacts) > 0 {
			execution.InputArtifacts = copyMap(predecessor.OutputArtifacts)
		} else {
			execution.InputArtifacts = map[string]string{"input": predecessor.OutputDirectory}
		}
	}

	if err := m.dispatchTask(ctx, instance, node, execution, correlationID); err != nil {
		return err
	}

	return m.store.WorkflowInstanceRepository().UpdateTask(ctx, instance.ID, execution)
}

// dispatchTask publishes the outbound event for one execution and marks it
// dispatched. Export tasks go to the gateway, everything else to a plugin
// execution backend.
func (m *Manager) dispatchTask(ctx context.Context, instance *models.WorkflowInstance, node *models.TaskNode, execution *models.TaskExecution, correlationID string) error {
	now := m.now()

	timeout := m.config.TaskTimeout
	if node.TimeoutMinutes > 0 {
		timeout = time.Duration(node.TimeoutMinutes * float64(time.Minute))
	}

	execution.Timeout = now.Add(timeout)
	execution.TaskStartTime = now

	if node.IsExportTask() {
		event, err := ToExportRequestEvent(execution, node, instance.ID, correlationID)
		if err != nil {
			return err
		}

		if err := m.bus.Publish(ctx, instance.ID, event); err != nil {
			return err
		}
	} else {
		event, err := ToTaskDispatchEvent(execution, instance, correlationID, m.config.Storage)
		if err != nil {
			return err
		}

		if err := m.bus.Publish(ctx, instance.ID, event); err != nil {
			return err
		}
	}

	execution.Status = models.TaskStatusDispatched

	m.logger.InfoContext(ctx, "Task dispatched",
		"workflow_instance_id", instance.ID, "task_id", execution.TaskID,
		"execution_id", execution.ExecutionID, "task_type", execution.TaskType,
		"export", node.IsExportTask(), "correlation_id", correlationID)

	return nil
}

// recordPayload creates the payload record on first sight of its id and
// returns it for instance linking.
func (m *Manager) recordPayload(ctx context.Context, request *events.WorkflowRequest) (*models.Payload, error) {
	payloads := m.store.PayloadRepository()

	payload, err := payloads.GetByID(ctx, request.PayloadID)
	if err == nil {
		return payload, nil
	}

	if !errors.Is(err, persistence.ErrPayloadNotFound) {
		return nil, err
	}

	timestamp := request.Timestamp
	if timestamp.IsZero() {
		timestamp = m.now()
	}

	fileCount := request.FileCount
	if fileCount == 0 {
		fileCount = len(request.Files)
	}

	payload = &models.Payload{
		PayloadID:        request.PayloadID,
		Bucket:           request.Bucket,
		RelativeRootPath: request.PayloadID,
		FileCount:        fileCount,
		Files:            request.Files,
		CalledAeTitle:    request.CalledAeTitle,
		CallingAeTitle:   request.CallingAeTitle,
		DeletedState:     models.PayloadDeletedNone,
		Timestamp:        timestamp,
	}

	if m.config.PayloadRetention > 0 {
		expires := timestamp.Add(m.config.PayloadRetention)
		payload.Expires = &expires
	}

	if err := payloads.Create(ctx, payload); err != nil {
		return nil, err
	}

	return payload, nil
}

func (m *Manager) validateRequest(request *events.WorkflowRequest) error {
	if err := request.Validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}

	if strings.TrimSpace(request.CalledAeTitle) == "" || strings.TrimSpace(request.CallingAeTitle) == "" {
		return fmt.Errorf("%w: AE titles must not be blank", ErrInvalidRequest)
	}

	for _, name := range request.Workflows {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: workflows must not contain blank entries", ErrInvalidRequest)
		}
	}

	if !bucketNamePattern.MatchString(request.Bucket) {
		return fmt.Errorf("%w: bucket name %q is not a valid bucket name", ErrInvalidRequest, request.Bucket)
	}

	if _, err := uuid.Parse(request.PayloadID); err != nil {
		return fmt.Errorf("%w: payload id %q is not a UUID", ErrInvalidRequest, request.PayloadID)
	}

	if _, err := uuid.Parse(request.CorrelationID); err != nil {
		return fmt.Errorf("%w: correlation id %q is not a UUID", ErrInvalidRequest, request.CorrelationID)
	}

	return nil
}

// conditionContext builds the evaluation context for a task's outgoing
// destination conditions from its result metadata. Metadata keys resolve
// both bare and under the "result" prefix.
func conditionContext(task *models.TaskExecution) conditions.Context {
	ctx := make(conditions.Context, len(task.ResultMetadata)+1)

	for key, value := range task.ResultMetadata {
		ctx[key] = value
	}

	if task.ResultMetadata != nil {
		ctx["result"] = map[string]any(task.ResultMetadata)
	}

	return ctx
}

// reachableTasks returns the ids of every task reachable from the root, in
// breadth-first order starting at the root itself.
func reachableTasks(definition *models.WorkflowDefinition) []string {
	root := definition.RootTask()
	if root == nil {
		return nil
	}

	seen := map[string]bool{root.ID: true}
	order := []string{root.ID}

	for i := 0; i < len(order); i++ {
		node, found := definition.TaskByID(order[i])
		if !found {
			continue
		}

		for _, destination := range node.TaskDestinations {
			if seen[destination.Name] {
				continue
			}

			if _, exists := definition.TaskByID(destination.Name); !exists {
				continue
			}

			seen[destination.Name] = true
			order = append(order, destination.Name)
		}
	}

	return order
}

func copyMap(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}

	out := make(map[string]string, len(m))
	for key, value := range m {
		out[key] = value
	}

	return out
}

func mergeString(dst, src map[string]string) map[string]string {
	if dst == nil {
		dst = make(map[string]string, len(src))
	}

	for key, value := range src {
		dst[key] = value
	}

	return dst
}

func mergeAny(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}

	for key, value := range src {
		dst[key] = value
	}

	return dst
}
