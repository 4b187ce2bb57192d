package services

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openimaging/conductor/pkg/models"
	"github.com/openimaging/conductor/pkg/persistence"
	"github.com/openimaging/conductor/pkg/persistence/file"
	"github.com/openimaging/conductor/pkg/registry"
	"github.com/openimaging/conductor/pkg/runners/argo"
	"github.com/openimaging/conductor/pkg/runners/docker"
)

func newWorkflowService(t *testing.T) (*Workflow, persistence.Persistence) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	store := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(logger)
	reg.RegisterRunner(argo.NewFactory())
	reg.RegisterRunner(docker.NewFactory())

	return NewWorkflow(logger, store, reg), store
}

func validDefinition() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		Name:        "liver-seg",
		Version:     "1.0.0",
		Description: "Liver segmentation",
		InformaticsGateway: &models.InformaticsGateway{
			AeTitle: "CONDUCTOR",
		},
		Tasks: []models.TaskNode{{
			ID:          "segment",
			Description: "Run the segmentation model",
			Type:        "argo",
			Args:        map[string]string{"workflow_template_name": "liver-seg"},
		}},
	}
}

func TestCreateStoresValidDefinition(t *testing.T) {
	ctx := context.Background()
	service, store := newWorkflowService(t)

	created, err := service.Create(ctx, validDefinition())
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 1, created.Revision)

	stored, err := store.WorkflowRepository().GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "liver-seg", stored.Name)
}

func TestCreateRejectsInvalidDefinition(t *testing.T) {
	ctx := context.Background()
	service, store := newWorkflowService(t)

	def := validDefinition()
	def.Name = ""
	def.Tasks[0].TaskDestinations = []models.TaskDestination{{Name: "ghost"}}

	_, err := service.Create(ctx, def)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	var validationErr *DefinitionValidationError

	require.ErrorAs(t, err, &validationErr)
	assert.GreaterOrEqual(t, len(validationErr.Errors), 2)

	defs, err := store.WorkflowRepository().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestCreateRejectsBadPluginArguments(t *testing.T) {
	ctx := context.Background()
	service, _ := newWorkflowService(t)

	def := validDefinition()
	def.Tasks[0].Args = map[string]string{}

	_, err := service.Create(ctx, def)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestReviseBumpsRevision(t *testing.T) {
	ctx := context.Background()
	service, _ := newWorkflowService(t)

	created, err := service.Create(ctx, validDefinition())
	require.NoError(t, err)

	update := validDefinition()
	update.ID = created.ID
	update.Description = "Liver segmentation v2"

	revised, err := service.Revise(ctx, update)
	require.NoError(t, err)
	assert.Equal(t, 2, revised.Revision)

	latest, err := service.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Liver segmentation v2", latest.Description)
}

func TestDeleteHidesDefinition(t *testing.T) {
	ctx := context.Background()
	service, _ := newWorkflowService(t)

	created, err := service.Create(ctx, validDefinition())
	require.NoError(t, err)

	require.NoError(t, service.Delete(ctx, created.ID))

	_, err = service.Get(ctx, created.ID)
	assert.True(t, IsNotFoundError(err))

	defs, err := service.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestValidateReportsPathsWithoutStoring(t *testing.T) {
	service, store := newWorkflowService(t)

	errs, paths := service.Validate(validDefinition())
	assert.Empty(t, errs)
	assert.Equal(t, []string{"segment"}, paths)

	defs, err := store.WorkflowRepository().List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, defs)
}
