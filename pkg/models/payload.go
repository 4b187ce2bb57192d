package models

import "time"

// PayloadDeletedState tracks retention-sweep progress for a payload's
// backing objects.
type PayloadDeletedState string

const (
	PayloadDeletedNone       PayloadDeletedState = "none"
	PayloadDeletedInProgress PayloadDeletedState = "in_progress"
	PayloadDeletedYes        PayloadDeletedState = "yes"
)

// Payload is an ingested data package (for example a DICOM study) that
// triggered one or more workflow requests.
type Payload struct {
	PayloadID           string              `json:"payload_id"`
	Bucket              string              `json:"bucket"`
	RelativeRootPath    string              `json:"relative_root_path"`
	Files               []string            `json:"files,omitempty"`
	FileCount           int                 `json:"file_count"`
	CalledAeTitle       string              `json:"called_ae_title"`
	CallingAeTitle      string              `json:"calling_ae_title"`
	WorkflowInstanceIDs []string            `json:"workflow_instance_ids,omitempty"`
	DeletedState        PayloadDeletedState `json:"deleted_state"`
	DeleteMarkedAt      *time.Time          `json:"delete_marked_at,omitempty"`
	Timestamp           time.Time           `json:"timestamp"`
	Expires             *time.Time          `json:"expires,omitempty"`
}

// Expired reports whether the payload is past its retention window and not
// yet fully deleted.
func (p *Payload) Expired(now time.Time) bool {
	if p.DeletedState == PayloadDeletedYes {
		return false
	}

	return p.Expires != nil && p.Expires.Before(now)
}
