// Package web provides the HTTP handlers and request/response types for the
// workflow management API.
package web

import "github.com/openimaging/conductor/pkg/models"

// CreateWorkflowRequest is the request body for creating a new workflow
// definition.
type CreateWorkflowRequest struct {
	Name               string                     `json:"name"                validate:"required,max=15"`
	Version            string                     `json:"version"             validate:"required"`
	Description        string                     `json:"description"         validate:"required,max=200"`
	InformaticsGateway *models.InformaticsGateway `json:"informatics_gateway" validate:"required"`
	Tasks              []models.TaskNode          `json:"tasks"               validate:"required,min=1"`
}

func (r CreateWorkflowRequest) ToModel() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		Name:               r.Name,
		Version:            r.Version,
		Description:        r.Description,
		InformaticsGateway: r.InformaticsGateway,
		Tasks:              r.Tasks,
	}
}

// UpdateWorkflowRequest is the request body for revising a definition.
// Definition rows are immutable, so an update is a full replacement stored
// as the next revision.
type UpdateWorkflowRequest struct {
	Name               string                     `json:"name"                validate:"required,max=15"`
	Version            string                     `json:"version"             validate:"required"`
	Description        string                     `json:"description"         validate:"required,max=200"`
	InformaticsGateway *models.InformaticsGateway `json:"informatics_gateway" validate:"required"`
	Tasks              []models.TaskNode          `json:"tasks"               validate:"required,min=1"`
}

func (r UpdateWorkflowRequest) ToModel(id string) *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:                 id,
		Name:               r.Name,
		Version:            r.Version,
		Description:        r.Description,
		InformaticsGateway: r.InformaticsGateway,
		Tasks:              r.Tasks,
	}
}

// ValidationResponse is returned by the dry-run validation endpoint.
type ValidationResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
	Paths  []string `json:"paths,omitempty"`
}
