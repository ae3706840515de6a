package projects

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/codecraft/internal/progress"
)

// MemoryStore keeps projects and progress in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]StoredProject
	progress map[string]progress.LessonProgress
	now      func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]StoredProject),
		progress: make(map[string]progress.LessonProgress),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock used for timestamps.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

// List returns the owner's projects, most recently updated first.
func (m *MemoryStore) List(ctx context.Context, ownerID string) ([]StoredProject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]StoredProject, 0)
	for _, p := range m.projects {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	SortRecent(out)
	return out, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

// Get returns one project.
func (m *MemoryStore) Get(ctx context.Context, projectID string) (StoredProject, error) {
	if err := ctx.Err(); err != nil {
		return StoredProject{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[projectID]
	if !ok {
		return StoredProject{}, notFound(projectID)
	}
	return p, nil
}

// Create stores a new project with a fresh id.
func (m *MemoryStore) Create(ctx context.Context, ownerID string, np NewProject) (StoredProject, error) {
	if err := ValidateNew(ownerID, np); err != nil {
		return StoredProject{}, err
	}
	if err := ctx.Err(); err != nil {
		return StoredProject{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	p := StoredProject{
		ID:          newID(),
		OwnerID:     ownerID,
		Title:       strings.TrimSpace(np.Title),
		Description: normalizeDescription(np.Description),
		HTMLCode:    np.HTMLCode,
		CSSCode:     np.CSSCode,
		JSCode:      np.JSCode,
		IsPublic:    np.IsPublic,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.projects[p.ID] = p
	return p, nil
}

// Update applies a patch and bumps UpdatedAt.
func (m *MemoryStore) Update(ctx context.Context, projectID string, patch ProjectPatch) (StoredProject, error) {
	if err := ValidatePatch(patch); err != nil {
		return StoredProject{}, err
	}
	if err := ctx.Err(); err != nil {
		return StoredProject{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return StoredProject{}, notFound(projectID)
	}
	p = patch.Apply(p)
	p.UpdatedAt = m.now()
	m.projects[projectID] = p
	return p, nil
}

// Delete removes a project.
func (m *MemoryStore) Delete(ctx context.Context, projectID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[projectID]; !ok {
		return notFound(projectID)
	}
	delete(m.projects, projectID)
	return nil
}

// ListProgress returns the owner's lesson progress.
func (m *MemoryStore) ListProgress(ctx context.Context, ownerID string) ([]progress.LessonProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]progress.LessonProgress, 0)
	for _, p := range m.progress {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	return out, nil
}

// UpsertProgress inserts or replaces the row for owner, course and lesson.
func (m *MemoryStore) UpsertProgress(ctx context.Context, p progress.LessonProgress) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := progressKey(p.OwnerID, p.CourseID, p.LessonID)
	if existing, ok := m.progress[key]; ok {
		p.ID = existing.ID
	} else if p.ID == "" {
		p.ID = newID()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = m.now()
	}
	m.progress[key] = p
	return nil
}

func progressKey(owner, course, lesson string) string {
	return owner + "\x00" + course + "\x00" + lesson
}

var (
	_ Adapter        = (*MemoryStore)(nil)
	_ progress.Store = (*MemoryStore)(nil)
)
