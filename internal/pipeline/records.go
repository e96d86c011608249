package pipeline

import (
	"context"
	"fmt"
	"sync"

	"candidate-pipeline/internal/models"
)

// RecordStore is the local cache of applications for one workspace view.
// Writers go through Apply, Update, Reconcile or Rollback; readers get copies.
type RecordStore struct {
	backend Backend

	mu    sync.RWMutex
	byID  map[int64]models.Application
	order []int64
}

// NewRecordStore creates an empty cache bound to backend.
func NewRecordStore(backend Backend) *RecordStore {
	return &RecordStore{
		backend: backend,
		byID:    make(map[int64]models.Application),
	}
}

// Load queries the backend and replaces the cache with the normalized result.
func (s *RecordStore) Load(ctx context.Context, q models.Query) ([]models.Application, error) {
	dtos, err := s.backend.QueryApplications(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query applications: %w", err)
	}
	s.Replace(dtos)
	return s.All(), nil
}

// Replace swaps the cache contents, keeping the payload order.
func (s *RecordStore) Replace(dtos []models.ApplicationDTO) {
	byID := make(map[int64]models.Application, len(dtos))
	order := make([]int64, 0, len(dtos))
	for _, d := range dtos {
		if _, dup := byID[d.ID]; !dup {
			order = append(order, d.ID)
		}
		byID[d.ID] = d.Normalize()
	}
	s.mu.Lock()
	s.byID = byID
	s.order = order
	s.mu.Unlock()
}

// All returns every cached application in load order.
func (s *RecordStore) All() []models.Application {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Application, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

// Len is the number of cached applications.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Get returns a copy of one application.
func (s *RecordStore) Get(id int64) (models.Application, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return models.Application{}, false
	}
	return a.Clone(), true
}

// Update runs fn on the cached copy of id under the write lock. It reports false when
// id is not cached.
func (s *RecordStore) Update(id int64, fn func(*models.Application)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[id]
	if !ok {
		return false
	}
	next := cur.Clone()
	fn(&next)
	s.byID[id] = next
	return true
}

// Apply mutates one application in place without waiting for the server and returns
// the snapshot taken before the change.
func (s *RecordStore) Apply(id int64, mutate func(*models.Application)) (models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[id]
	if !ok {
		return models.Application{}, fmt.Errorf("apply %d: %w", id, ErrUnknownApplication)
	}
	snapshot := cur.Clone()
	next := cur.Clone()
	mutate(&next)
	s.byID[id] = next
	return snapshot, nil
}

// ApplyAll mutates every listed application under one lock. Ids not in the cache are
// skipped; the number touched is returned.
func (s *RecordStore) ApplyAll(ids []int64, mutate func(*models.Application)) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		cur, ok := s.byID[id]
		if !ok {
			continue
		}
		next := cur.Clone()
		mutate(&next)
		s.byID[id] = next
		n++
	}
	return n
}

// Reconcile merges the authoritative server fields into the cached record. Fields the
// payload does not carry keep their local value. A payload older than the local
// version is rejected.
func (s *RecordStore) Reconcile(id int64, dto models.ApplicationDTO) (models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[id]
	if !ok {
		return models.Application{}, fmt.Errorf("reconcile %d: %w", id, ErrUnknownApplication)
	}
	if dto.Version != nil && *dto.Version < cur.Version {
		return cur.Clone(), fmt.Errorf("reconcile %d at version %d, local %d: %w", id, *dto.Version, cur.Version, ErrStaleVersion)
	}
	next := cur.Clone()
	dto.ID = id
	dto.MergeInto(&next)
	s.byID[id] = next
	return next.Clone(), nil
}

// Rollback restores a record to a snapshot taken before a mutation.
func (s *RecordStore) Rollback(id int64, snapshot models.Application) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return
	}
	s.byID[id] = snapshot.Clone()
}

// CountInStage counts cached applications sitting in stage.
func (s *RecordStore) CountInStage(stage string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.byID {
		if a.Stage == stage {
			n++
		}
	}
	return n
}
