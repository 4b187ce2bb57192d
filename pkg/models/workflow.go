// Package models defines the core domain records for DICOM-triggered workflow orchestration.
package models

import "time"

// Limits applied by the graph validator to workflow definition fields.
const (
	MaxWorkflowNameLength        = 15
	MaxWorkflowDescriptionLength = 200
	MaxAeTitleLength             = 15
	MaxTaskIDLength              = 50
	MaxTaskDescriptionLength     = 2000
	MaxTaskTypeLength            = 2000
)

// WorkflowDefinition is a versioned, named task graph. A definition row is
// immutable once created: updates insert a new row with a bumped Revision,
// deletes set the tombstone timestamp.
type WorkflowDefinition struct {
	ID                 string              `json:"id"`
	Revision           int                 `json:"revision"`
	Name               string              `json:"name"                validate:"required,max=15"`
	Version            string              `json:"version"             validate:"required"`
	Description        string              `json:"description"         validate:"required,max=200"`
	InformaticsGateway *InformaticsGateway `json:"informatics_gateway" validate:"required"`
	Tasks              []TaskNode          `json:"tasks"               validate:"required,min=1"`
	CreatedAt          time.Time           `json:"created_at"`
	DeletedAt          *time.Time          `json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the definition carries a tombstone.
func (w *WorkflowDefinition) IsDeleted() bool {
	return w.DeletedAt != nil
}

// RootTask returns the conventional entry task of the graph, Tasks[0].
func (w *WorkflowDefinition) RootTask() *TaskNode {
	if len(w.Tasks) == 0 {
		return nil
	}

	return &w.Tasks[0]
}

// TaskByID looks a task node up by its id.
func (w *WorkflowDefinition) TaskByID(id string) (*TaskNode, bool) {
	for i := range w.Tasks {
		if w.Tasks[i].ID == id {
			return &w.Tasks[i], true
		}
	}

	return nil, false
}

// InformaticsGateway describes the DICOM gateway this workflow listens on and
// the export destinations it may route results to.
type InformaticsGateway struct {
	AeTitle            string   `json:"ae_title"            validate:"required,max=15"`
	DataOrigins        []string `json:"data_origins,omitempty"`
	ExportDestinations []string `json:"export_destinations,omitempty"`
}

// TaskNode is one named task inside a workflow definition.
type TaskNode struct {
	ID                 string              `json:"id"          validate:"required,max=50"`
	Description        string              `json:"description" validate:"required,max=2000"`
	Type               string              `json:"type"        validate:"required,max=2000"`
	Args               map[string]string   `json:"args,omitempty"`
	TaskDestinations   []TaskDestination   `json:"task_destinations,omitempty"`
	ExportDestinations []ExportDestination `json:"export_destinations,omitempty"`
	Artifacts          ArtifactMap         `json:"artifacts,omitempty"`
	TimeoutMinutes     float64             `json:"timeout_minutes,omitempty"`
}

// IsExportTask reports whether the task routes its output to the informatics
// gateway instead of a plugin execution backend.
func (t *TaskNode) IsExportTask() bool {
	return len(t.ExportDestinations) > 0
}

// TaskDestination names a downstream task, optionally gated by a branch
// condition expression.
type TaskDestination struct {
	Name       string `json:"name"       validate:"required"`
	Conditions string `json:"conditions,omitempty"`
}

// ExportDestination names a gateway export target for a task's output.
type ExportDestination struct {
	Name string `json:"name" validate:"required"`
}

// ArtifactMap declares a task's named input and output artifacts. Values are
// storage-relative paths or references to upstream task outputs.
type ArtifactMap struct {
	Input  map[string]string `json:"input,omitempty"`
	Output map[string]string `json:"output,omitempty"`
}
