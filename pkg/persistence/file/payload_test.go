package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openimaging/conductor/pkg/models"
	"github.com/openimaging/conductor/pkg/persistence"
)

func testPayload(id string, expires *time.Time) *models.Payload {
	return &models.Payload{
		PayloadID:        id,
		Bucket:           "imaging",
		RelativeRootPath: id,
		Files:            []string{id + "/study/1.dcm"},
		FileCount:        1,
		CalledAeTitle:    "CONDUCTOR",
		CallingAeTitle:   "MODALITY",
		Timestamp:        time.Now().UTC(),
		Expires:          expires,
	}
}

func TestPayloadRepository_CreateAndGet(t *testing.T) {
	repo := NewPayloadRepository(t.TempDir())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testPayload("payload-1", nil)))

	payload, err := repo.GetByID(ctx, "payload-1")
	require.NoError(t, err)
	assert.Equal(t, "imaging", payload.Bucket)
	assert.Equal(t, models.PayloadDeletedNone, payload.DeletedState)
}

func TestPayloadRepository_GetByIDUnknownID(t *testing.T) {
	repo := NewPayloadRepository(t.TempDir())

	_, err := repo.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrPayloadNotFound)
}

func TestPayloadRepository_UpdateAppendsInstanceIDs(t *testing.T) {
	repo := NewPayloadRepository(t.TempDir())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testPayload("payload-1", nil)))

	payload, err := repo.GetByID(ctx, "payload-1")
	require.NoError(t, err)

	payload.WorkflowInstanceIDs = append(payload.WorkflowInstanceIDs, "inst-1")
	require.NoError(t, repo.Update(ctx, payload))

	stored, err := repo.GetByID(ctx, "payload-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"inst-1"}, stored.WorkflowInstanceIDs)
}

func TestPayloadRepository_MarkDeleted(t *testing.T) {
	repo := NewPayloadRepository(t.TempDir())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testPayload("payload-1", nil)))

	now := time.Now().UTC()
	require.NoError(t, repo.MarkDeleted(ctx, "payload-1", models.PayloadDeletedInProgress, now))

	payload, err := repo.GetByID(ctx, "payload-1")
	require.NoError(t, err)
	assert.Equal(t, models.PayloadDeletedInProgress, payload.DeletedState)
	require.NotNil(t, payload.DeleteMarkedAt)
}

func TestPayloadRepository_FindExpired(t *testing.T) {
	repo := NewPayloadRepository(t.TempDir())
	ctx := context.Background()

	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	require.NoError(t, repo.Create(ctx, testPayload("expired", &past)))
	require.NoError(t, repo.Create(ctx, testPayload("fresh", &future)))
	require.NoError(t, repo.Create(ctx, testPayload("unbounded", nil)))

	deleted := testPayload("deleted", &past)
	deleted.DeletedState = models.PayloadDeletedYes
	require.NoError(t, repo.Create(ctx, deleted))

	expired, err := repo.FindExpired(ctx, now, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "expired", expired[0].PayloadID)
}

func TestPayloadRepository_FindExpiredSkipsRecentInProgress(t *testing.T) {
	repo := NewPayloadRepository(t.TempDir())
	ctx := context.Background()

	now := time.Now().UTC()
	past := now.Add(-2 * time.Hour)

	require.NoError(t, repo.Create(ctx, testPayload("recent", &past)))
	require.NoError(t, repo.MarkDeleted(ctx, "recent", models.PayloadDeletedInProgress, now.Add(-time.Minute)))

	require.NoError(t, repo.Create(ctx, testPayload("stale", &past)))
	require.NoError(t, repo.MarkDeleted(ctx, "stale", models.PayloadDeletedInProgress, now.Add(-2*time.Hour)))

	expired, err := repo.FindExpired(ctx, now, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "stale", expired[0].PayloadID)
}
