package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"govengine/internal/process/models"
	id "govengine/pkg/domain"
	"govengine/pkg/platform/sentinel"
	txcontext "govengine/pkg/platform/tx"
)

// InMemoryStore implements the template and instance stores for tests and
// database-less runs. Writes register undo steps so a failed ShardedRunner
// transaction leaves no trace.
type InMemoryStore struct {
	mu        sync.RWMutex
	templates map[string]models.StoredTemplate
	instances map[id.InstanceID]models.Instance
	steps     map[id.InstanceID][]models.StepProgress
	artifacts map[id.InstanceID][]models.Artifact
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		templates: make(map[string]models.StoredTemplate),
		instances: make(map[id.InstanceID]models.Instance),
		steps:     make(map[id.InstanceID][]models.StepProgress),
		artifacts: make(map[id.InstanceID][]models.Artifact),
	}
}

// UpsertTemplate inserts or replaces by key, keeping the original CreatedAt.
func (s *InMemoryStore) UpsertTemplate(ctx context.Context, tpl models.StoredTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.templates[tpl.Key]
	if existed {
		tpl.CreatedAt = prev.CreatedAt
	}
	tpl.Template = tpl.Template.Clone()
	s.templates[tpl.Key] = tpl

	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existed {
			s.templates[tpl.Key] = prev
		} else {
			delete(s.templates, tpl.Key)
		}
	})
	return nil
}

func (s *InMemoryStore) FindTemplate(_ context.Context, key string) (*models.StoredTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tpl, ok := s.templates[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	tpl.Template = tpl.Template.Clone()
	return &tpl, nil
}

func (s *InMemoryStore) FindTemplates(_ context.Context, keys []string) (map[string]models.StoredTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.StoredTemplate, len(keys))
	for _, key := range keys {
		if tpl, ok := s.templates[key]; ok {
			tpl.Template = tpl.Template.Clone()
			out[key] = tpl
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListTemplates(_ context.Context) ([]models.StoredTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.StoredTemplate, 0, len(s.templates))
	for _, tpl := range s.templates {
		tpl.Template = tpl.Template.Clone()
		out = append(out, tpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *InMemoryStore) CreateInstance(ctx context.Context, inst *models.Instance, steps []models.StepProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.instances[inst.ID]; exists {
		return sentinel.ErrConflict
	}
	s.instances[inst.ID] = copyInstance(*inst)
	s.steps[inst.ID] = append([]models.StepProgress(nil), steps...)

	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.instances, inst.ID)
		delete(s.steps, inst.ID)
		delete(s.artifacts, inst.ID)
	})
	return nil
}

func (s *InMemoryStore) FindInstance(_ context.Context, instanceID id.InstanceID) (*models.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[instanceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := copyInstance(inst)
	return &out, nil
}

// FindInstanceForUpdate is FindInstance; the ShardedRunner lock on the
// instance id provides the row lock.
func (s *InMemoryStore) FindInstanceForUpdate(ctx context.Context, instanceID id.InstanceID) (*models.Instance, error) {
	return s.FindInstance(ctx, instanceID)
}

// UpdateInstance refuses to modify a closed instance, mirroring the database
// trigger.
func (s *InMemoryStore) UpdateInstance(ctx context.Context, inst *models.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.instances[inst.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if prev.Status == models.StatusClosed {
		return sentinel.ErrInvalidState
	}
	s.instances[inst.ID] = copyInstance(*inst)

	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.instances[inst.ID] = prev
	})
	return nil
}

// ListInstances matches q case-insensitively against title or template key,
// newest update first.
func (s *InMemoryStore) ListInstances(_ context.Context, q string, limit int) ([]models.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(q)
	out := make([]models.Instance, 0)
	for _, inst := range s.instances {
		if needle != "" &&
			!strings.Contains(strings.ToLower(inst.Title), needle) &&
			!strings.Contains(strings.ToLower(inst.TemplateKey), needle) {
			continue
		}
		out = append(out, copyInstance(inst))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) ListStepProgress(_ context.Context, instanceID id.InstanceID) ([]models.StepProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	steps := s.steps[instanceID]
	out := make([]models.StepProgress, len(steps))
	for i, step := range steps {
		if step.DoneAt != nil {
			at := *step.DoneAt
			step.DoneAt = &at
		}
		out[i] = step
	}
	return out, nil
}

func (s *InMemoryStore) MarkStepDone(ctx context.Context, instanceID id.InstanceID, stepID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	steps := s.steps[instanceID]
	for i := range steps {
		if steps[i].StepID != stepID {
			continue
		}
		prev := steps[i]
		doneAt := at
		steps[i].Status = models.StepStatusDone
		steps[i].DoneAt = &doneAt

		txcontext.OnRollback(ctx, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if rows := s.steps[instanceID]; i < len(rows) {
				rows[i] = prev
			}
		})
		return nil
	}
	return sentinel.ErrNotFound
}

func (s *InMemoryStore) AddArtifact(ctx context.Context, artifact *models.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instances[artifact.InstanceID]; !ok {
		return sentinel.ErrNotFound
	}
	s.artifacts[artifact.InstanceID] = append(s.artifacts[artifact.InstanceID], *artifact)

	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		rows := s.artifacts[artifact.InstanceID]
		for i := len(rows) - 1; i >= 0; i-- {
			if rows[i].ID == artifact.ID {
				s.artifacts[artifact.InstanceID] = append(rows[:i], rows[i+1:]...)
				break
			}
		}
	})
	return nil
}

// ListArtifacts returns artifacts newest first. An empty stepID lists every
// step.
func (s *InMemoryStore) ListArtifacts(_ context.Context, instanceID id.InstanceID, stepID string) ([]models.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.artifacts[instanceID]
	out := make([]models.Artifact, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		if stepID == "" || rows[i].StepID == stepID {
			out = append(out, rows[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out, nil
}

func copyInstance(inst models.Instance) models.Instance {
	inst.Snapshot = inst.Snapshot.Clone()
	if inst.ClosedAt != nil {
		at := *inst.ClosedAt
		inst.ClosedAt = &at
	}
	return inst
}
