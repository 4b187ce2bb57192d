package graph

import (
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/openimaging/conductor/pkg/models"
	"github.com/openimaging/conductor/pkg/registry"
	"github.com/openimaging/conductor/pkg/runners/argo"
	"github.com/openimaging/conductor/pkg/runners/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *registry.Registry {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	reg := registry.NewRegistry(logger)
	reg.RegisterRunner(argo.NewFactory())
	reg.RegisterRunner(docker.NewFactory())

	return reg
}

func validDefinition(tasks ...models.TaskNode) *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		Name:        "ct-lung",
		Version:     "1.0.0",
		Description: "CT lung segmentation pipeline",
		InformaticsGateway: &models.InformaticsGateway{
			AeTitle:            "CONDUCTOR",
			DataOrigins:        []string{"PACS"},
			ExportDestinations: []string{"ORTHANC"},
		},
		Tasks: tasks,
	}
}

func task(id string, destinations ...string) models.TaskNode {
	node := models.TaskNode{
		ID:          id,
		Description: "task " + id,
		Type:        argo.TaskType,
		Args:        map[string]string{"workflow_template_name": "tpl-" + id},
	}
	for _, dest := range destinations {
		node.TaskDestinations = append(node.TaskDestinations, models.TaskDestination{Name: dest})
	}

	return node
}

func TestValidate_ValidLinearWorkflow(t *testing.T) {
	def := validDefinition(task("a", "b"), task("b", "c"), task("c"))

	errs, paths := NewValidator(testRegistry()).Validate(def)

	assert.Empty(t, errs)
	require.Len(t, paths, 1)
	assert.Equal(t, "a => b => c", paths[0])
}

func TestValidate_BranchingPathEnumeration(t *testing.T) {
	def := validDefinition(
		task("a", "b", "c"),
		task("b", "d"),
		task("c", "d"),
		task("d"),
	)

	errs, paths := NewValidator(testRegistry()).Validate(def)

	assert.Empty(t, errs)
	assert.ElementsMatch(t, []string{"a => b => d", "a => c => d"}, paths)
}

func TestValidate_MissingDestinationReported(t *testing.T) {
	def := validDefinition(task("a", "ghost"))

	errs, _ := NewValidator(testRegistry()).Validate(def)

	require.NotEmpty(t, errs)
	assert.Contains(t, errs, `task "a" has task destination "ghost": destination not found`)
}

func TestValidate_UnreferencedTaskReported(t *testing.T) {
	def := validDefinition(task("a", "b"), task("b"), task("orphan"))

	errs, _ := NewValidator(testRegistry()).Validate(def)

	found := false

	for _, e := range errs {
		if e == `task "orphan" is not referenced by any task destination` {
			found = true
		}
	}

	assert.True(t, found, "expected unreferenced-task error, got %v", errs)
}

func TestValidate_CycleReportedAndWalkTerminates(t *testing.T) {
	def := validDefinition(task("a", "b"), task("b", "a"))

	errs, paths := NewValidator(testRegistry()).Validate(def)

	assert.Empty(t, paths)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs, "detected convergence in workflow path: a => b => a => ∞")
}

func TestValidate_ConvergenceViaSharedAncestor(t *testing.T) {
	// b and c both feed d, and d loops back to b: the b-branch revisits b.
	def := validDefinition(
		task("a", "b"),
		task("b", "d"),
		task("d", "b"),
	)

	errs, _ := NewValidator(testRegistry()).Validate(def)

	assert.Contains(t, errs, "detected convergence in workflow path: a => b => d => b => ∞")
}

func TestValidate_DepthCeiling(t *testing.T) {
	// 150 chained tasks with no repeats: the walk must still terminate and
	// report convergence defensively once the ceiling is hit.
	tasks := make([]models.TaskNode, 0, 150)
	for i := range 150 {
		id := fmt.Sprintf("t%03d", i)
		if i < 149 {
			tasks = append(tasks, task(id, fmt.Sprintf("t%03d", i+1)))
		} else {
			tasks = append(tasks, task(id))
		}
	}

	errs, paths := NewValidator(testRegistry()).Validate(tasks2def(tasks))

	assert.Empty(t, paths)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[len(errs)-1], "=> ∞")
}

func tasks2def(tasks []models.TaskNode) *models.WorkflowDefinition {
	return validDefinition(tasks...)
}

func TestValidate_MissingNameAndTasks(t *testing.T) {
	def := &models.WorkflowDefinition{
		Version:            "1.0.0",
		Description:        "broken",
		InformaticsGateway: &models.InformaticsGateway{AeTitle: "CONDUCTOR"},
	}

	errs, paths := NewValidator(testRegistry()).Validate(def)

	assert.Empty(t, paths)
	assert.Contains(t, errs, "missing workflow name")
	assert.Contains(t, errs, "missing workflow tasks")
	assert.GreaterOrEqual(t, len(errs), 2)
}

func TestValidate_FieldLimits(t *testing.T) {
	def := validDefinition(task("a"))
	def.Name = "a-very-long-workflow-name"
	def.InformaticsGateway.AeTitle = "AN-AE-TITLE-THAT-IS-TOO-LONG"
	def.Tasks[0].Description = ""

	errs, _ := NewValidator(testRegistry()).Validate(def)

	assert.Contains(t, errs, `workflow name "a-very-long-workflow-name" exceeds 15 characters`)
	assert.Contains(t, errs, `ae_title "AN-AE-TITLE-THAT-IS-TOO-LONG" exceeds 15 characters`)
	assert.Contains(t, errs, `task "a" has a blank description`)
}

func TestValidate_DuplicateTaskIDs(t *testing.T) {
	def := validDefinition(task("a", "b"), task("b"), task("b"))

	errs, _ := NewValidator(testRegistry()).Validate(def)

	assert.Contains(t, errs, `task id "b" is not unique`)
}

func TestValidate_UnknownTaskType(t *testing.T) {
	def := validDefinition(task("a"))
	def.Tasks[0].Type = "teleport"

	errs, _ := NewValidator(testRegistry()).Validate(def)

	assert.Contains(t, errs, `task "a" has unknown type "teleport"`)
}

func TestValidate_ExportDestinationMembership(t *testing.T) {
	def := validDefinition(task("a"))
	def.Tasks[0].ExportDestinations = []models.ExportDestination{{Name: "NOWHERE"}}

	errs, _ := NewValidator(testRegistry()).Validate(def)

	assert.Contains(t, errs, `task "a" export destination "NOWHERE" is not in the informatics gateway export destinations`)
}

func TestValidate_ErrorsAccumulateAcrossChecks(t *testing.T) {
	// Broken fields and a broken graph in one definition: both families of
	// errors must be present.
	def := validDefinition(task("a", "ghost"), task("orphan"))
	def.Name = ""

	errs, _ := NewValidator(testRegistry()).Validate(def)

	assert.Contains(t, errs, "missing workflow name")
	assert.Contains(t, errs, `task "a" has task destination "ghost": destination not found`)
	assert.Contains(t, errs, `task "orphan" is not referenced by any task destination`)
}
