package pipeline

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"candidate-pipeline/internal/models"
)

// StageRegistry keeps the ordered kanban columns.
type StageRegistry struct {
	mu     sync.RWMutex
	stages []models.Stage
}

// NewStageRegistry seeds the registry. Duplicate or empty ids are dropped, first one wins.
func NewStageRegistry(initial []models.Stage) *StageRegistry {
	r := &StageRegistry{}
	r.replace(initial)
	return r
}

func (r *StageRegistry) replace(stages []models.Stage) {
	seen := make(map[string]struct{}, len(stages))
	out := make([]models.Stage, 0, len(stages))
	for _, s := range stages {
		s.ID = strings.TrimSpace(s.ID)
		if s.ID == "" {
			continue
		}
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s.Clone())
	}
	r.mu.Lock()
	r.stages = out
	r.mu.Unlock()
}

// Stages returns a copy of the columns in display order.
func (r *StageRegistry) Stages() []models.Stage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Stage, len(r.stages))
	for i, s := range r.stages {
		out[i] = s.Clone()
	}
	return out
}

// Get looks a stage up by id.
func (r *StageRegistry) Get(id string) (models.Stage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexLocked(id); i >= 0 {
		return r.stages[i].Clone(), true
	}
	return models.Stage{}, false
}

// Has reports whether id names a registered stage.
func (r *StageRegistry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// Add appends an unlocked stage with a generated id and default metadata.
func (r *StageRegistry) Add() models.Stage {
	s := models.Stage{
		ID:       "stage_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		Name:     "New Stage",
		ColorTag: "gray",
	}
	r.mu.Lock()
	r.stages = append(r.stages, s)
	r.mu.Unlock()
	return s.Clone()
}

// Update merges patch into the stage. Renaming, re-describing or unlocking a locked
// stage needs a privileged actor.
func (r *StageRegistry) Update(id string, patch models.StagePatch, privileged bool) (models.Stage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(id)
	if i < 0 {
		return models.Stage{}, fmt.Errorf("update %q: %w", id, ErrStageNotFound)
	}
	s := r.stages[i]
	if s.IsLocked && !privileged && (patch.Name != nil || patch.IsLocked != nil || patch.Description != nil) {
		return models.Stage{}, fmt.Errorf("update %q: %w", id, ErrStageLocked)
	}
	if patch.Name != nil {
		if name := strings.TrimSpace(*patch.Name); name != "" {
			s.Name = name
		}
	}
	if patch.ColorTag != nil {
		s.ColorTag = *patch.ColorTag
	}
	if patch.Description != nil {
		s.Description = *patch.Description
	}
	if patch.IsLocked != nil {
		s.IsLocked = *patch.IsLocked
	}
	if patch.AutomationHints != nil {
		s.AutomationHints = append([]string(nil), patch.AutomationHints...)
	}
	r.stages[i] = s
	return s.Clone(), nil
}

// Delete removes an unlocked, empty stage. occupants is the number of
// applications currently in it.
func (r *StageRegistry) Delete(id string, occupants int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("delete %q: %w", id, ErrStageNotFound)
	}
	if r.stages[i].IsLocked {
		return fmt.Errorf("delete %q: %w", id, ErrStageLocked)
	}
	if occupants > 0 {
		return fmt.Errorf("delete %q holding %d applications: %w", id, occupants, ErrStageNotEmpty)
	}
	r.stages = append(r.stages[:i], r.stages[i+1:]...)
	return nil
}

// Reorder replaces the display order. order must name every stage exactly once.
func (r *StageRegistry) Reorder(order []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(order) != len(r.stages) {
		return fmt.Errorf("reorder with %d ids for %d stages: %w", len(order), len(r.stages), ErrStageOrderMismatch)
	}
	byID := make(map[string]models.Stage, len(r.stages))
	for _, s := range r.stages {
		byID[s.ID] = s
	}
	next := make([]models.Stage, 0, len(order))
	for _, id := range order {
		s, ok := byID[id]
		if !ok {
			return fmt.Errorf("reorder unknown or repeated id %q: %w", id, ErrStageOrderMismatch)
		}
		delete(byID, id)
		next = append(next, s)
	}
	r.stages = next
	return nil
}

func (r *StageRegistry) indexLocked(id string) int {
	for i, s := range r.stages {
		if s.ID == id {
			return i
		}
	}
	return -1
}
