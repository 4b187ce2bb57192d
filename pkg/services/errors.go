// Package services provides the business-logic layer between the REST API
// and the persistence and orchestration packages.
package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/openimaging/conductor/pkg/persistence"
)

var (
	// ErrDefinitionInvalid indicates a workflow definition failed static
	// validation. The wrapping DefinitionValidationError carries the
	// individual findings.
	ErrDefinitionInvalid = errors.New("workflow definition is invalid")

	// ErrWorkflowNotFound is re-exported for API error mapping.
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

	// ErrInstanceNotFound is re-exported for API error mapping.
	ErrInstanceNotFound = persistence.ErrInstanceNotFound
)

// DefinitionValidationError aggregates every finding from a definition
// validation run.
type DefinitionValidationError struct {
	Errors []string
}

func (e *DefinitionValidationError) Error() string {
	return fmt.Sprintf("workflow definition is invalid: %s", strings.Join(e.Errors, "; "))
}

func (e *DefinitionValidationError) Unwrap() error {
	return ErrDefinitionInvalid
}

// IsValidationError checks whether an error should map to HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrDefinitionInvalid)
}

// IsNotFoundError checks whether an error should map to HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsNotFound(err)
}

// IsConflictError checks whether an error should map to HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, persistence.ErrWorkflowAlreadyExists)
}
