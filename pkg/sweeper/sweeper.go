// Package sweeper runs the periodic maintenance passes: failing task
// executions that ran past their deadline, and deleting the objects of
// payloads past their retention window.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/openimaging/conductor/pkg/eventbus"
	"github.com/openimaging/conductor/pkg/models"
	"github.com/openimaging/conductor/pkg/persistence"
	"github.com/openimaging/conductor/pkg/storage"
	"github.com/openimaging/conductor/pkg/workflow"
)

const (
	DefaultInterval = 10 * time.Second

	// DefaultStaleness is how long a payload may sit InProgress before a
	// later pass re-attempts it, covering sweeper crashes mid-delete.
	DefaultStaleness = time.Hour
)

type Config struct {
	Interval  time.Duration
	Staleness time.Duration
}

// Sweeper owns the cron schedule and both passes.
type Sweeper struct {
	logger  *slog.Logger
	store   persistence.Persistence
	bus     eventbus.EventPublisher
	objects storage.ObjectStore
	config  Config

	cron *cron.Cron
	now  func() time.Time
}

func NewSweeper(logger *slog.Logger, store persistence.Persistence, bus eventbus.EventPublisher, objects storage.ObjectStore, config Config) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}

	if config.Staleness <= 0 {
		config.Staleness = DefaultStaleness
	}

	return &Sweeper{
		logger:  logger.With("module", "sweeper"),
		store:   store,
		bus:     bus,
		objects: objects,
		config:  config,
		now:     time.Now,
	}
}

// Start schedules the sweep at the configured interval and returns. Stop
// halts the schedule.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New()

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.config.Interval), func() {
		s.Sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Sweeper started", "interval", s.config.Interval)

	return nil
}

func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep runs one tick of both passes. Each item is handled independently; a
// failing item is logged and the rest of the pass continues.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.now()

	s.sweepTimeouts(ctx, now)
	s.sweepRetention(ctx, now)
}

func (s *Sweeper) sweepTimeouts(ctx context.Context, now time.Time) {
	tasks, err := s.store.WorkflowInstanceRepository().FindTimedOutTasks(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to find timed out tasks", "error", err)

		return
	}

	for i := range tasks {
		task := &tasks[i]
		// Each timeout notification gets its own correlation id.
		correlationID := uuid.NewString()
		message := fmt.Sprintf("task exceeded its deadline of %s", task.Timeout.Format(time.RFC3339))

		update, err := workflow.GenerateTaskUpdateEvent(task, correlationID, models.TaskStatusFailed, models.FailureReasonTimedOut, message)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to build timeout update", "workflow_instance_id", task.WorkflowInstanceID,
				"task_id", task.TaskID, "execution_id", task.ExecutionID, "error", err)

			continue
		}

		if err := s.bus.Publish(ctx, task.WorkflowInstanceID, update); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish timeout update", "workflow_instance_id", task.WorkflowInstanceID,
				"task_id", task.TaskID, "execution_id", task.ExecutionID, "error", err)

			continue
		}

		cancellation, err := workflow.GenerateTaskCancellationEvent(task, models.FailureReasonTimedOut, message)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to build cancellation", "workflow_instance_id", task.WorkflowInstanceID,
				"task_id", task.TaskID, "execution_id", task.ExecutionID, "error", err)

			continue
		}

		if err := s.bus.Publish(ctx, task.WorkflowInstanceID, cancellation); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish cancellation", "workflow_instance_id", task.WorkflowInstanceID,
				"task_id", task.TaskID, "execution_id", task.ExecutionID, "error", err)

			continue
		}

		s.logger.WarnContext(ctx, "Timed out task swept", "workflow_instance_id", task.WorkflowInstanceID,
			"task_id", task.TaskID, "execution_id", task.ExecutionID, "deadline", task.Timeout, "correlation_id", correlationID)
	}
}

func (s *Sweeper) sweepRetention(ctx context.Context, now time.Time) {
	payloads := s.store.PayloadRepository()

	expired, err := payloads.FindExpired(ctx, now, now.Add(-s.config.Staleness))
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to find expired payloads", "error", err)

		return
	}

	for _, payload := range expired {
		if err := s.deletePayload(ctx, payload, now); err != nil {
			s.logger.ErrorContext(ctx, "Failed to delete expired payload", "payload_id", payload.PayloadID, "error", err)
		}
	}
}

// deletePayload removes every object under the payload's root prefix, not
// just the tracked files, then records the payload as deleted.
func (s *Sweeper) deletePayload(ctx context.Context, payload *models.Payload, now time.Time) error {
	if err := s.store.PayloadRepository().MarkDeleted(ctx, payload.PayloadID, models.PayloadDeletedInProgress, now); err != nil {
		return err
	}

	objects, err := s.objects.ListObjects(ctx, payload.Bucket, payload.RelativeRootPath)
	if err != nil {
		return fmt.Errorf("failed to list payload objects: %w", err)
	}

	for _, object := range objects {
		if err := s.objects.RemoveObject(ctx, payload.Bucket, object.Key); err != nil {
			return fmt.Errorf("failed to remove object %s: %w", object.Key, err)
		}
	}

	if err := s.store.PayloadRepository().MarkDeleted(ctx, payload.PayloadID, models.PayloadDeletedYes, now); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Expired payload deleted", "payload_id", payload.PayloadID,
		"bucket", payload.Bucket, "objects", len(objects))

	return nil
}
