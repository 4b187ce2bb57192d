package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openimaging/conductor/pkg/models"
	"github.com/openimaging/conductor/pkg/persistence"
)

// WorkflowRepository stores each definition revision as its own JSON file,
// `workflows/<id>.r<revision>.json`, keeping revision rows immutable.
type WorkflowRepository struct {
	root string
	mu   sync.RWMutex
}

func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{root: root}
}

func (r *WorkflowRepository) dir() string {
	return filepath.Join(r.root, "workflows")
}

func (r *WorkflowRepository) path(id string, revision int) string {
	return filepath.Join(r.dir(), fmt.Sprintf("%s.r%04d.json", id, revision))
}

func (r *WorkflowRepository) Create(_ context.Context, def *models.WorkflowDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if def.ID == "" {
		def.ID = uuid.NewString()
	}

	def.Revision = 1
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now().UTC()
	}

	if _, err := os.Stat(r.path(def.ID, 1)); err == nil {
		return persistence.NewWorkflowError("Create", def.ID, persistence.ErrWorkflowAlreadyExists)
	}

	return writeJSON(r.path(def.ID, def.Revision), def)
}

func (r *WorkflowRepository) CreateRevision(ctx context.Context, def *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	latest, err := r.latestRevision(def.ID)
	if err != nil {
		return nil, persistence.NewWorkflowError("CreateRevision", def.ID, err)
	}

	def.Revision = latest.Revision + 1
	def.CreatedAt = time.Now().UTC()
	def.DeletedAt = nil

	if err := writeJSON(r.path(def.ID, def.Revision), def); err != nil {
		return nil, persistence.NewWorkflowError("CreateRevision", def.ID, err)
	}

	return def, nil
}

func (r *WorkflowRepository) GetByID(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, err := r.latestRevision(id)
	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	if def.IsDeleted() {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return def, nil
}

func (r *WorkflowRepository) GetByName(ctx context.Context, name string) (*models.WorkflowDefinition, error) {
	defs, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	for _, def := range defs {
		if def.Name == name {
			return def, nil
		}
	}

	return nil, persistence.NewWorkflowError("GetByName", name, persistence.ErrWorkflowNotFound)
}

func (r *WorkflowRepository) List(_ context.Context) ([]*models.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := os.ReadDir(r.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.WorkflowDefinition{}, nil
		}

		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	latest := make(map[string]*models.WorkflowDefinition)

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		var def models.WorkflowDefinition
		if err := readJSON(filepath.Join(r.dir(), entry.Name()), &def); err != nil {
			return nil, fmt.Errorf("failed to read workflow file %s: %w", entry.Name(), err)
		}

		if current, ok := latest[def.ID]; !ok || def.Revision > current.Revision {
			copied := def
			latest[def.ID] = &copied
		}
	}

	defs := make([]*models.WorkflowDefinition, 0, len(latest))

	for _, def := range latest {
		if !def.IsDeleted() {
			defs = append(defs, def)
		}
	}

	return defs, nil
}

func (r *WorkflowRepository) SoftDelete(_ context.Context, id string, when time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	revisions, err := r.revisions(id)
	if err != nil {
		return persistence.NewWorkflowError("SoftDelete", id, err)
	}

	for _, def := range revisions {
		stamp := when
		def.DeletedAt = &stamp

		if err := writeJSON(r.path(def.ID, def.Revision), def); err != nil {
			return persistence.NewWorkflowError("SoftDelete", id, err)
		}
	}

	return nil
}

func (r *WorkflowRepository) latestRevision(id string) (*models.WorkflowDefinition, error) {
	revisions, err := r.revisions(id)
	if err != nil {
		return nil, err
	}

	latest := revisions[len(revisions)-1]

	return latest, nil
}

func (r *WorkflowRepository) revisions(id string) ([]*models.WorkflowDefinition, error) {
	matches, err := filepath.Glob(filepath.Join(r.dir(), id+".r*.json"))
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		return nil, persistence.ErrWorkflowNotFound
	}

	revisions := make([]*models.WorkflowDefinition, 0, len(matches))

	// Glob results are lexically sorted and revisions are zero-padded, so
	// the slice is already in revision order.
	for _, path := range matches {
		var def models.WorkflowDefinition
		if err := readJSON(path, &def); err != nil {
			return nil, err
		}

		revisions = append(revisions, &def)
	}

	return revisions, nil
}
