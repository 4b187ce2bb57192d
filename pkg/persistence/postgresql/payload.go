package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openimaging/conductor/pkg/models"
	"github.com/openimaging/conductor/pkg/persistence"
)

type PayloadRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPayloadRepository(db *sql.DB, logger *slog.Logger) *PayloadRepository {
	return &PayloadRepository{db: db, logger: logger}
}

const payloadColumns = `
	payload_id, bucket, relative_root_path, files, file_count,
	called_ae_title, calling_ae_title, workflow_instance_ids,
	deleted_state, delete_marked_at, timestamp, expires
`

func (r *PayloadRepository) Create(ctx context.Context, payload *models.Payload) error {
	if payload.DeletedState == "" {
		payload.DeletedState = models.PayloadDeletedNone
	}

	files, err := json.Marshal(ackListOrEmpty(payload.Files))
	if err != nil {
		return fmt.Errorf("failed to marshal files: %w", err)
	}

	instanceIDs, err := json.Marshal(ackListOrEmpty(payload.WorkflowInstanceIDs))
	if err != nil {
		return fmt.Errorf("failed to marshal workflow instance ids: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO payloads (`+payloadColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, payload.PayloadID, payload.Bucket, payload.RelativeRootPath, files, payload.FileCount,
		payload.CalledAeTitle, payload.CallingAeTitle, instanceIDs,
		payload.DeletedState, nullTimePtr(payload.DeleteMarkedAt), payload.Timestamp, nullTimePtr(payload.Expires))
	if err != nil {
		return fmt.Errorf("failed to insert payload %s: %w", payload.PayloadID, err)
	}

	return nil
}

func (r *PayloadRepository) GetByID(ctx context.Context, payloadID string) (*models.Payload, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+payloadColumns+`
		FROM payloads
		WHERE payload_id = $1
	`, payloadID)

	payload, err := scanPayload(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrPayloadNotFound
		}

		return nil, fmt.Errorf("failed to scan payload: %w", err)
	}

	return payload, nil
}

func (r *PayloadRepository) Update(ctx context.Context, payload *models.Payload) error {
	instanceIDs, err := json.Marshal(ackListOrEmpty(payload.WorkflowInstanceIDs))
	if err != nil {
		return fmt.Errorf("failed to marshal workflow instance ids: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE payloads
		SET workflow_instance_ids = $2,
		    deleted_state = $3,
		    delete_marked_at = $4,
		    expires = $5
		WHERE payload_id = $1
	`, payload.PayloadID, instanceIDs, payload.DeletedState,
		nullTimePtr(payload.DeleteMarkedAt), nullTimePtr(payload.Expires))
	if err != nil {
		return fmt.Errorf("failed to update payload %s: %w", payload.PayloadID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.ErrPayloadNotFound
	}

	return nil
}

func (r *PayloadRepository) MarkDeleted(ctx context.Context, payloadID string, state models.PayloadDeletedState, when time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payloads SET deleted_state = $2, delete_marked_at = $3 WHERE payload_id = $1
	`, payloadID, state, when)
	if err != nil {
		return fmt.Errorf("failed to mark payload %s deleted: %w", payloadID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.ErrPayloadNotFound
	}

	return nil
}

func (r *PayloadRepository) FindExpired(ctx context.Context, now, staleBefore time.Time) ([]*models.Payload, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+payloadColumns+`
		FROM payloads
		WHERE expires IS NOT NULL AND expires < $1
		  AND deleted_state != 'yes'
		  AND (deleted_state != 'in_progress' OR delete_marked_at < $2)
	`, now, staleBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired payloads: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	var payloads []*models.Payload

	for rows.Next() {
		payload, err := scanPayload(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payload: %w", err)
		}

		payloads = append(payloads, payload)
	}

	return payloads, rows.Err()
}

func scanPayload(row rowScanner) (*models.Payload, error) {
	var (
		payload     models.Payload
		files       []byte
		instanceIDs []byte
		markedAt    sql.NullTime
		expires     sql.NullTime
	)

	err := row.Scan(&payload.PayloadID, &payload.Bucket, &payload.RelativeRootPath, &files, &payload.FileCount,
		&payload.CalledAeTitle, &payload.CallingAeTitle, &instanceIDs,
		&payload.DeletedState, &markedAt, &payload.Timestamp, &expires)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(files, &payload.Files); err != nil {
		return nil, fmt.Errorf("failed to unmarshal files: %w", err)
	}

	if err := json.Unmarshal(instanceIDs, &payload.WorkflowInstanceIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow instance ids: %w", err)
	}

	if markedAt.Valid {
		payload.DeleteMarkedAt = &markedAt.Time
	}

	if expires.Valid {
		payload.Expires = &expires.Time
	}

	return &payload, nil
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: *t, Valid: true}
}
