package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openimaging/conductor/pkg/events"
	"github.com/openimaging/conductor/pkg/mocks"
	"github.com/openimaging/conductor/pkg/models"
	"github.com/openimaging/conductor/pkg/persistence"
	"github.com/openimaging/conductor/pkg/persistence/file"
	"github.com/openimaging/conductor/pkg/storage"
)

func newTestSweeper(t *testing.T) (*Sweeper, persistence.Persistence, *mocks.MockEventBus, *mocks.MockObjectStore) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	store := file.NewPersistence(t.TempDir())
	bus := &mocks.MockEventBus{}
	objects := &mocks.MockObjectStore{}

	sweeper := NewSweeper(logger, store, bus, objects, Config{})
	sweeper.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	return sweeper, store, bus, objects
}

func TestSweepFailsTimedOutTasks(t *testing.T) {
	ctx := context.Background()
	sweeper, store, bus, _ := newTestSweeper(t)
	now := sweeper.now()

	instance := &models.WorkflowInstance{
		ID:        "inst-1",
		PayloadID: "payload-1",
		Bucket:    "bucket",
		Status:    models.InstanceStatusInProcess,
		Tasks: []models.TaskExecution{
			{
				TaskID:             "late",
				ExecutionID:        "exec-late",
				WorkflowInstanceID: "inst-1",
				Status:             models.TaskStatusDispatched,
				Timeout:            now.Add(-time.Minute),
			},
			{
				TaskID:             "on-time",
				ExecutionID:        "exec-ok",
				WorkflowInstanceID: "inst-1",
				Status:             models.TaskStatusDispatched,
				Timeout:            now.Add(time.Hour),
			},
		},
	}
	require.NoError(t, store.WorkflowInstanceRepository().Create(ctx, instance))

	bus.On("Publish", mock.Anything, "inst-1", mock.Anything).Return(nil)

	sweeper.Sweep(ctx)

	var updates []*events.TaskUpdate

	var cancellations []*events.TaskCancellation

	for _, call := range bus.Calls {
		switch event := call.Arguments.Get(2).(type) {
		case *events.TaskUpdate:
			updates = append(updates, event)
		case *events.TaskCancellation:
			cancellations = append(cancellations, event)
		}
	}

	require.Len(t, updates, 1)
	assert.Equal(t, "late", updates[0].TaskID)
	assert.Equal(t, models.TaskStatusFailed, updates[0].Status)
	assert.Equal(t, models.FailureReasonTimedOut, updates[0].Reason)
	assert.NotEmpty(t, updates[0].CorrelationID)

	require.Len(t, cancellations, 1)
	assert.Equal(t, "exec-late", cancellations[0].ExecutionID)
	assert.Equal(t, models.FailureReasonTimedOut, cancellations[0].Reason)
}

func TestSweepDeletesExpiredPayloads(t *testing.T) {
	ctx := context.Background()
	sweeper, store, _, objects := newTestSweeper(t)
	now := sweeper.now()

	expired := now.Add(-time.Hour)
	payload := &models.Payload{
		PayloadID:        "payload-1",
		Bucket:           "bucket",
		RelativeRootPath: "payload-1",
		DeletedState:     models.PayloadDeletedNone,
		Timestamp:        now.Add(-48 * time.Hour),
		Expires:          &expired,
	}
	require.NoError(t, store.PayloadRepository().Create(ctx, payload))

	objects.On("ListObjects", mock.Anything, "bucket", "payload-1").Return([]storage.ObjectInfo{
		{Key: "payload-1/dcm/1.dcm", Size: 10},
		{Key: "payload-1/stray.tmp", Size: 1},
	}, nil)
	objects.On("RemoveObject", mock.Anything, "bucket", "payload-1/dcm/1.dcm").Return(nil)
	objects.On("RemoveObject", mock.Anything, "bucket", "payload-1/stray.tmp").Return(nil)

	sweeper.Sweep(ctx)

	stored, err := store.PayloadRepository().GetByID(ctx, "payload-1")
	require.NoError(t, err)
	assert.Equal(t, models.PayloadDeletedYes, stored.DeletedState)
	objects.AssertExpectations(t)
}

func TestSweepLeavesRecentInProgressPayloads(t *testing.T) {
	ctx := context.Background()
	sweeper, store, _, objects := newTestSweeper(t)
	now := sweeper.now()

	expired := now.Add(-2 * time.Hour)
	marked := now.Add(-time.Minute)
	payload := &models.Payload{
		PayloadID:        "payload-busy",
		Bucket:           "bucket",
		RelativeRootPath: "payload-busy",
		DeletedState:     models.PayloadDeletedInProgress,
		DeleteMarkedAt:   &marked,
		Timestamp:        now.Add(-48 * time.Hour),
		Expires:          &expired,
	}
	require.NoError(t, store.PayloadRepository().Create(ctx, payload))

	sweeper.Sweep(ctx)

	// Another sweeper marked it recently; no object-store calls were made.
	objects.AssertNotCalled(t, "ListObjects", mock.Anything, mock.Anything, mock.Anything)

	stored, err := store.PayloadRepository().GetByID(ctx, "payload-busy")
	require.NoError(t, err)
	assert.Equal(t, models.PayloadDeletedInProgress, stored.DeletedState)
}

func TestSweepRetriesStaleInProgressPayloads(t *testing.T) {
	ctx := context.Background()
	sweeper, store, _, objects := newTestSweeper(t)
	now := sweeper.now()

	expired := now.Add(-24 * time.Hour)
	marked := now.Add(-2 * time.Hour)
	payload := &models.Payload{
		PayloadID:        "payload-stale",
		Bucket:           "bucket",
		RelativeRootPath: "payload-stale",
		DeletedState:     models.PayloadDeletedInProgress,
		DeleteMarkedAt:   &marked,
		Timestamp:        now.Add(-72 * time.Hour),
		Expires:          &expired,
	}
	require.NoError(t, store.PayloadRepository().Create(ctx, payload))

	objects.On("ListObjects", mock.Anything, "bucket", "payload-stale").Return([]storage.ObjectInfo{}, nil)

	sweeper.Sweep(ctx)

	stored, err := store.PayloadRepository().GetByID(ctx, "payload-stale")
	require.NoError(t, err)
	assert.Equal(t, models.PayloadDeletedYes, stored.DeletedState)
}

func TestSweepContinuesAfterItemFailure(t *testing.T) {
	ctx := context.Background()
	sweeper, store, _, objects := newTestSweeper(t)
	now := sweeper.now()

	expired := now.Add(-time.Hour)

	for _, id := range []string{"payload-a", "payload-b"} {
		stamp := expired
		require.NoError(t, store.PayloadRepository().Create(ctx, &models.Payload{
			PayloadID:        id,
			Bucket:           "bucket",
			RelativeRootPath: id,
			DeletedState:     models.PayloadDeletedNone,
			Timestamp:        now.Add(-48 * time.Hour),
			Expires:          &stamp,
		}))
	}

	objects.On("ListObjects", mock.Anything, "bucket", "payload-a").Return(nil, errors.New("listing failed"))
	objects.On("ListObjects", mock.Anything, "bucket", "payload-b").Return([]storage.ObjectInfo{}, nil)

	sweeper.Sweep(ctx)

	// The failing payload stays InProgress for a later stale retry; the
	// other one completed.
	storedA, err := store.PayloadRepository().GetByID(ctx, "payload-a")
	require.NoError(t, err)
	assert.Equal(t, models.PayloadDeletedInProgress, storedA.DeletedState)

	storedB, err := store.PayloadRepository().GetByID(ctx, "payload-b")
	require.NoError(t, err)
	assert.Equal(t, models.PayloadDeletedYes, storedB.DeletedState)
}
