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

type PayloadRepository struct {
	root string
	mu   sync.RWMutex
}

func NewPayloadRepository(root string) *PayloadRepository {
	return &PayloadRepository{root: root}
}

func (r *PayloadRepository) path(id string) string {
	return filepath.Join(r.root, "payloads", id+".json")
}

func (r *PayloadRepository) Create(_ context.Context, payload *models.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if payload.DeletedState == "" {
		payload.DeletedState = models.PayloadDeletedNone
	}

	return writeJSON(r.path(payload.PayloadID), payload)
}

func (r *PayloadRepository) GetByID(_ context.Context, payloadID string) (*models.Payload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.read(payloadID)
}

func (r *PayloadRepository) Update(_ context.Context, payload *models.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return writeJSON(r.path(payload.PayloadID), payload)
}

func (r *PayloadRepository) MarkDeleted(_ context.Context, payloadID string, state models.PayloadDeletedState, when time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	payload, err := r.read(payloadID)
	if err != nil {
		return err
	}

	payload.DeletedState = state
	stamp := when
	payload.DeleteMarkedAt = &stamp

	return writeJSON(r.path(payloadID), payload)
}

func (r *PayloadRepository) FindExpired(_ context.Context, now, staleBefore time.Time) ([]*models.Payload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dir := filepath.Join(r.root, "payloads")

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.Payload{}, nil
		}

		return nil, fmt.Errorf("failed to list payloads: %w", err)
	}

	var expired []*models.Payload

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		var payload models.Payload
		if err := readJSON(filepath.Join(dir, entry.Name()), &payload); err != nil {
			return nil, fmt.Errorf("failed to read payload file %s: %w", entry.Name(), err)
		}

		if !payload.Expired(now) {
			continue
		}

		// InProgress payloads are only retried once their deletion mark
		// has gone stale, so a concurrent sweep is not raced.
		if payload.DeletedState == models.PayloadDeletedInProgress {
			if payload.DeleteMarkedAt == nil || payload.DeleteMarkedAt.After(staleBefore) {
				continue
			}
		}

		copied := payload
		expired = append(expired, &copied)
	}

	return expired, nil
}

func (r *PayloadRepository) read(payloadID string) (*models.Payload, error) {
	var payload models.Payload

	if err := readJSON(r.path(payloadID), &payload); err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrPayloadNotFound
		}

		return nil, fmt.Errorf("failed to read payload %s: %w", payloadID, err)
	}

	return &payload, nil
}
