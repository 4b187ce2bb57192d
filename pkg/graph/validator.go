// Package graph statically validates workflow definition task graphs:
// field-level constraints, reference integrity, and cycle/convergence
// detection with successful-path enumeration.
package graph

import (
	"fmt"
	"strings"

	"github.com/openimaging/conductor/pkg/models"
	"github.com/openimaging/conductor/pkg/registry"
)

// maxWalkDepth bounds the destination walk. A branch deeper than this is
// reported as convergence even without an exact repeated id, so malformed
// but non-repeating chains cannot run the validator unbounded.
const maxWalkDepth = 100

// Validator runs the static checks over a workflow definition. The registry
// is optional; when set, task types must be registered runner types.
type Validator struct {
	registry *registry.Registry
}

func NewValidator(reg *registry.Registry) *Validator {
	return &Validator{registry: reg}
}

// Validate runs every check and accumulates errors; checks never
// short-circuit each other. It returns the collected errors and, when the
// destination walk completes, the successful root-to-leaf paths as
// `id1 => id2 => ... => idN`.
func (v *Validator) Validate(def *models.WorkflowDefinition) (errs []string, successfulPaths []string) {
	if def == nil {
		return []string{"missing workflow definition"}, nil
	}

	errs = append(errs, v.checkSpecFields(def)...)
	errs = append(errs, v.checkUnreferencedTasks(def)...)
	errs = append(errs, v.checkDestinationsExist(def)...)
	errs = append(errs, v.checkExportDestinations(def)...)

	convergenceErrs, paths := v.walkDestinations(def)
	errs = append(errs, convergenceErrs...)

	return errs, paths
}

func (v *Validator) checkSpecFields(def *models.WorkflowDefinition) []string {
	var errs []string

	if strings.TrimSpace(def.Name) == "" {
		errs = append(errs, "missing workflow name")
	} else if len(def.Name) > models.MaxWorkflowNameLength {
		errs = append(errs, fmt.Sprintf("workflow name %q exceeds %d characters", def.Name, models.MaxWorkflowNameLength))
	}

	if strings.TrimSpace(def.Description) == "" {
		errs = append(errs, "missing workflow description")
	} else if len(def.Description) > models.MaxWorkflowDescriptionLength {
		errs = append(errs, fmt.Sprintf("workflow description exceeds %d characters", models.MaxWorkflowDescriptionLength))
	}

	if strings.TrimSpace(def.Version) == "" {
		errs = append(errs, "missing workflow version")
	}

	if len(def.Tasks) == 0 {
		errs = append(errs, "missing workflow tasks")
	}

	errs = append(errs, v.checkInformaticsGateway(def)...)

	seen := make(map[string]bool, len(def.Tasks))

	for i := range def.Tasks {
		task := &def.Tasks[i]

		if strings.TrimSpace(task.ID) == "" {
			errs = append(errs, fmt.Sprintf("task at position %d has a blank id", i))
		} else {
			if len(task.ID) > models.MaxTaskIDLength {
				errs = append(errs, fmt.Sprintf("task id %q exceeds %d characters", task.ID, models.MaxTaskIDLength))
			}

			if seen[task.ID] {
				errs = append(errs, fmt.Sprintf("task id %q is not unique", task.ID))
			}

			seen[task.ID] = true
		}

		if strings.TrimSpace(task.Description) == "" {
			errs = append(errs, fmt.Sprintf("task %q has a blank description", task.ID))
		} else if len(task.Description) > models.MaxTaskDescriptionLength {
			errs = append(errs, fmt.Sprintf("task %q description exceeds %d characters", task.ID, models.MaxTaskDescriptionLength))
		}

		if strings.TrimSpace(task.Type) == "" {
			errs = append(errs, fmt.Sprintf("task %q has a blank type", task.ID))
		} else {
			if len(task.Type) > models.MaxTaskTypeLength {
				errs = append(errs, fmt.Sprintf("task %q type exceeds %d characters", task.ID, models.MaxTaskTypeLength))
			}

			if v.registry != nil && !task.IsExportTask() && !v.registry.IsRunnerRegistered(task.Type) {
				errs = append(errs, fmt.Sprintf("task %q has unknown type %q", task.ID, task.Type))
			}
		}
	}

	return errs
}

func (v *Validator) checkInformaticsGateway(def *models.WorkflowDefinition) []string {
	var errs []string

	gateway := def.InformaticsGateway
	if gateway == nil {
		return []string{"missing informatics gateway"}
	}

	if strings.TrimSpace(gateway.AeTitle) == "" {
		errs = append(errs, "missing informatics gateway ae_title")
	} else if len(gateway.AeTitle) > models.MaxAeTitleLength {
		errs = append(errs, fmt.Sprintf("ae_title %q exceeds %d characters", gateway.AeTitle, models.MaxAeTitleLength))
	}

	exportsNeeded := false

	for i := range def.Tasks {
		if def.Tasks[i].IsExportTask() {
			exportsNeeded = true

			break
		}
	}

	if exportsNeeded && len(gateway.ExportDestinations) == 0 {
		errs = append(errs, "informatics gateway export_destinations is empty but export tasks exist")
	}

	for _, origin := range gateway.DataOrigins {
		if strings.TrimSpace(origin) == "" {
			errs = append(errs, "informatics gateway data_origins contains a blank entry")
		}
	}

	return errs
}

// checkUnreferencedTasks reports tasks that no destination points at. The
// root task Tasks[0] is exempt: nothing references the entry point.
func (v *Validator) checkUnreferencedTasks(def *models.WorkflowDefinition) []string {
	if len(def.Tasks) == 0 {
		return nil
	}

	referenced := make(map[string]bool)

	for i := range def.Tasks {
		for _, dest := range def.Tasks[i].TaskDestinations {
			referenced[dest.Name] = true
		}
	}

	var errs []string

	for i := 1; i < len(def.Tasks); i++ {
		if id := def.Tasks[i].ID; id != "" && !referenced[id] {
			errs = append(errs, fmt.Sprintf("task %q is not referenced by any task destination", id))
		}
	}

	return errs
}

func (v *Validator) checkDestinationsExist(def *models.WorkflowDefinition) []string {
	var errs []string

	for i := range def.Tasks {
		task := &def.Tasks[i]

		for _, dest := range task.TaskDestinations {
			if _, ok := def.TaskByID(dest.Name); !ok {
				errs = append(errs, fmt.Sprintf("task %q has task destination %q: destination not found", task.ID, dest.Name))
			}
		}
	}

	return errs
}

func (v *Validator) checkExportDestinations(def *models.WorkflowDefinition) []string {
	if def.InformaticsGateway == nil {
		return nil
	}

	known := make(map[string]bool, len(def.InformaticsGateway.ExportDestinations))
	for _, name := range def.InformaticsGateway.ExportDestinations {
		known[name] = true
	}

	var errs []string

	for i := range def.Tasks {
		task := &def.Tasks[i]

		for _, export := range task.ExportDestinations {
			if !known[export.Name] {
				errs = append(errs, fmt.Sprintf("task %q export destination %q is not in the informatics gateway export destinations", task.ID, export.Name))
			}
		}
	}

	return errs
}

// walkDestinations depth-first walks the graph from the root, copying the
// visited path per branch so sibling branches cannot alias each other's
// state. A repeated id on the current path, or exceeding maxWalkDepth,
// reports convergence and abandons that branch.
func (v *Validator) walkDestinations(def *models.WorkflowDefinition) (errs []string, successfulPaths []string) {
	root := def.RootTask()
	if root == nil || root.ID == "" {
		return nil, nil
	}

	return v.walk(def, root, nil)
}

func (v *Validator) walk(def *models.WorkflowDefinition, task *models.TaskNode, path []string) (errs []string, successfulPaths []string) {
	for _, visited := range path {
		if visited == task.ID {
			return []string{convergenceError(append(path, task.ID))}, nil
		}
	}

	if len(path) >= maxWalkDepth {
		return []string{convergenceError(append(path, task.ID))}, nil
	}

	branch := make([]string, len(path), len(path)+1)
	copy(branch, path)
	branch = append(branch, task.ID)

	if len(task.TaskDestinations) == 0 {
		return nil, []string{strings.Join(branch, " => ")}
	}

	for _, dest := range task.TaskDestinations {
		next, ok := def.TaskByID(dest.Name)
		if !ok {
			// Reported separately by the destination-existence check.
			continue
		}

		branchErrs, branchPaths := v.walk(def, next, branch)
		errs = append(errs, branchErrs...)
		successfulPaths = append(successfulPaths, branchPaths...)
	}

	return errs, successfulPaths
}

func convergenceError(path []string) string {
	return fmt.Sprintf("detected convergence in workflow path: %s => ∞", strings.Join(path, " => "))
}
