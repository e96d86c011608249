package pipeline

import (
	"sort"
	"sync"

	"candidate-pipeline/internal/models"
)

// Selection is the multi-select state of a workspace view.
type Selection struct {
	mu  sync.Mutex
	ids map[int64]struct{}
}

// NewSelection returns an empty selection.
func NewSelection() *Selection {
	return &Selection{ids: make(map[int64]struct{})}
}

// Toggle adds or removes one id.
func (s *Selection) Toggle(id int64, checked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if checked {
		s.ids[id] = struct{}{}
		return
	}
	delete(s.ids, id)
}

// ToggleAll deselects every id in group when all of them are selected, and selects
// all of them otherwise. It reports whether the group ended up selected.
func (s *Selection) ToggleAll(group []int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(group) == 0 {
		return false
	}
	all := true
	for _, id := range group {
		if _, ok := s.ids[id]; !ok {
			all = false
			break
		}
	}
	for _, id := range group {
		if all {
			delete(s.ids, id)
		} else {
			s.ids[id] = struct{}{}
		}
	}
	return !all
}

// Prune drops every selected id that is not in visible.
func (s *Selection) Prune(visible []models.Application) int {
	keep := make(map[int64]struct{}, len(visible))
	for _, a := range visible {
		keep[a.ID] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for id := range s.ids {
		if _, ok := keep[id]; !ok {
			delete(s.ids, id)
			dropped++
		}
	}
	return dropped
}

// Clear empties the selection.
func (s *Selection) Clear() {
	s.mu.Lock()
	s.ids = make(map[int64]struct{})
	s.mu.Unlock()
}

// Has reports whether id is selected.
func (s *Selection) Has(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Len is the number of selected ids.
func (s *Selection) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// IDs returns the selected ids in ascending order.
func (s *Selection) IDs() []int64 {
	s.mu.Lock()
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
