package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"candidate-pipeline/internal/models"
)

// MemoryStore is an in-process Repository for tests and local runs.
type MemoryStore struct {
	mu     sync.Mutex
	apps   map[int64]models.Application
	stages []models.Stage
	events []models.ApplicationEvent
	nextID int64
	now    func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		apps:   make(map[int64]models.Application),
		events: make([]models.ApplicationEvent, 0, 128),
		nextID: 1,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) ListApplications(_ context.Context, q models.Query) ([]models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	search := strings.ToLower(q.Search)
	out := make([]models.Application, 0, len(m.apps))
	for _, a := range m.apps {
		if q.JobID != 0 && a.JobID != q.JobID {
			continue
		}
		if q.Stage != "" && a.Stage != q.Stage {
			continue
		}
		if search != "" && !containsFold(search, a.Applicant.FullName, a.Applicant.Email, a.Applicant.Location) {
			continue
		}
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemoryStore) GetApplications(_ context.Context, ids []int64) ([]models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Application, 0, len(ids))
	for _, id := range ids {
		if a, ok := m.apps[id]; ok {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) CreateApplication(_ context.Context, app models.Application) (models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if app.Stage == "" {
		app.Stage = models.StageNew
	}
	if !app.Priority.Valid() {
		app.Priority = models.PriorityNormal
	}
	app.ID = m.nextID
	m.nextID++
	app.Version = 1
	if app.CreatedAt == nil {
		now := m.now()
		app.CreatedAt = &now
	}
	m.apps[app.ID] = app.Clone()
	return app.Clone(), nil
}

func (m *MemoryStore) UpdateStage(_ context.Context, id int64, stage string, expectedVersion int64) (models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.apps[id]
	if !ok {
		return models.Application{}, fmt.Errorf("application %d: %w", id, ErrNotFound)
	}
	if expectedVersion != 0 && app.Version != expectedVersion {
		return models.Application{}, fmt.Errorf("application %d at version %d, expected %d: %w", id, app.Version, expectedVersion, ErrVersionConflict)
	}
	from := app.Stage
	models.EnterStage(&app, stage)
	app.Version++
	m.apps[id] = app
	m.appendLocked(id, "stage_changed", fmt.Sprintf("from=%s to=%s", from, stage))
	return app.Clone(), nil
}

func (m *MemoryStore) RevealContact(_ context.Context, id int64) (models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.apps[id]
	if !ok {
		return models.Application{}, fmt.Errorf("application %d: %w", id, ErrNotFound)
	}
	app.ContactRevealed = true
	app.ContactVisible = true
	app.Version++
	m.apps[id] = app
	m.appendLocked(id, "contact_revealed", "")
	return app.Clone(), nil
}

func (m *MemoryStore) CountByStage(_ context.Context) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int)
	for _, a := range m.apps {
		out[a.Stage]++
	}
	return out, nil
}

func (m *MemoryStore) ApplyBulk(_ context.Context, ids []int64, verb string, payload models.BulkPayload) (int, error) {
	if err := ValidateBulk(verb, payload); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	detail := BulkDetail(verb, payload)
	for _, id := range ids {
		app, ok := m.apps[id]
		if !ok {
			continue
		}
		applyBulk(&app, verb, payload)
		app.Version++
		m.apps[id] = app
		m.appendLocked(id, verb, detail)
		n++
	}
	return n, nil
}

func (m *MemoryStore) ListStages(_ context.Context) ([]models.Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Stage, len(m.stages))
	for i, s := range m.stages {
		out[i] = s.Clone()
	}
	return out, nil
}

func (m *MemoryStore) ReplaceStages(_ context.Context, stages []models.Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = make([]models.Stage, len(stages))
	for i, s := range stages {
		m.stages[i] = s.Clone()
	}
	return nil
}

func (m *MemoryStore) AppendEvent(_ context.Context, applicationID int64, event, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLocked(applicationID, event, detail)
	return nil
}

func (m *MemoryStore) ListEvents(_ context.Context, applicationID int64, limit int) ([]models.ApplicationEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	out := make([]models.ApplicationEvent, 0)
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if m.events[i].ApplicationID == applicationID {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) appendLocked(id int64, event, detail string) {
	m.events = append(m.events, models.ApplicationEvent{
		ApplicationID: id,
		Event:         event,
		Detail:        detail,
		Recorded:      m.now(),
	})
}

func containsFold(needle string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}
