package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"candidate-pipeline/internal/models"
)

// Options configures a Session.
type Options struct {
	Role   models.Role
	Stages []models.Stage
	Saver  FileSaver
}

// Session is one open workspace view. It owns the filter, the visible set, the
// selection and the single pending action, and hands the registry and record store
// to the controller and exporter it builds.
type Session struct {
	backend    Backend
	stages     *StageRegistry
	records    *RecordStore
	selection  *Selection
	controller *Controller
	exporter   *Exporter

	mu      sync.Mutex
	role    models.Role
	filter  models.FilterState
	query   models.Query
	visible []models.Application
	pending *models.PendingAction
}

// NewSession builds a workspace view over backend. With no stages given the default
// template is used.
func NewSession(backend Backend, opts Options) *Session {
	stages := opts.Stages
	if len(stages) == 0 {
		stages = models.DefaultStages()
	}
	role := opts.Role
	if role == "" {
		role = models.RoleRecruiter
	}
	s := &Session{
		backend:   backend,
		stages:    NewStageRegistry(stages),
		records:   NewRecordStore(backend),
		selection: NewSelection(),
		role:      role,
	}
	notify := NotifierFunc(s.notice)
	s.controller = NewController(backend, s.records, s.stages, notify)
	s.exporter = NewExporter(backend, opts.Saver, notify)
	return s
}

// Stages returns the registry.
func (s *Session) Stages() *StageRegistry { return s.stages }

// Records returns the record store.
func (s *Session) Records() *RecordStore { return s.records }

// Exporting reports whether an export is in flight.
func (s *Session) Exporting() bool { return s.exporter.Exporting() }

// Role is the acting role of this view.
func (s *Session) Role() models.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// LoadStages replaces the registry with the layout stored by the backend, if it keeps one.
func (s *Session) LoadStages(ctx context.Context) error {
	sp, ok := s.backend.(StagePersister)
	if !ok {
		return nil
	}
	stages, err := sp.LoadStages(ctx)
	if err != nil {
		return fmt.Errorf("load stages: %w", err)
	}
	if len(stages) > 0 {
		s.stages.replace(stages)
		s.refresh()
	}
	return nil
}

// Reload refetches applications for q and recomputes the visible set. On failure the
// previous cache stays in place.
func (s *Session) Reload(ctx context.Context, q models.Query) error {
	if _, err := s.records.Load(ctx, q); err != nil {
		log.Printf("pipeline: reload failed: %v", err)
		return err
	}
	s.mu.Lock()
	s.query = q
	s.mu.Unlock()
	s.refresh()
	return nil
}

// Refetch reloads with the last query.
func (s *Session) Refetch(ctx context.Context) error {
	s.mu.Lock()
	q := s.query
	s.mu.Unlock()
	return s.Reload(ctx, q)
}

// SetFilter replaces the filter and returns the new visible set.
func (s *Session) SetFilter(f models.FilterState) []models.Application {
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
	return s.refresh()
}

// Filter returns the current filter.
func (s *Session) Filter() models.FilterState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// Visible returns the filtered records.
func (s *Session) Visible() []models.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Application, len(s.visible))
	for i, a := range s.visible {
		out[i] = a.Clone()
	}
	return out
}

// Board groups the visible records into stage columns.
func (s *Session) Board() []Column {
	return Board(s.Visible(), s.stages.Stages())
}

// refresh recomputes the visible set and prunes the selection against it.
func (s *Session) refresh() []models.Application {
	all := s.records.All()
	s.mu.Lock()
	visible := ComputeVisibleSet(all, s.filter)
	s.visible = visible
	s.mu.Unlock()
	s.selection.Prune(visible)
	return visible
}

func (s *Session) isVisible(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.visible {
		if a.ID == id {
			return true
		}
	}
	return false
}

// ToggleSelect selects or deselects one visible record.
func (s *Session) ToggleSelect(id int64, checked bool) {
	if checked && !s.isVisible(id) {
		return
	}
	s.selection.Toggle(id, checked)
}

// ToggleSelectAllInGroup flips the selection of every visible record in a stage
// column and reports whether the column is now selected.
func (s *Session) ToggleSelectAllInGroup(stageID string) bool {
	groups := GroupByStage(s.Visible(), s.stages.Stages())
	group := groups[stageID]
	ids := make([]int64, 0, len(group))
	for _, a := range group {
		ids = append(ids, a.ID)
	}
	return s.selection.ToggleAll(ids)
}

// Selected returns the selected ids.
func (s *Session) Selected() []int64 { return s.selection.IDs() }

// ClearSelection empties the selection.
func (s *Session) ClearSelection() { s.selection.Clear() }

// Pending returns the active pending action, if any.
func (s *Session) Pending() (models.PendingAction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return models.PendingAction{}, false
	}
	return *s.pending, true
}

// Begin opens a modal-pending action over the current selection. A notice may be
// replaced; any other pending action blocks.
func (s *Session) Begin(kind models.PendingKind) (models.PendingAction, error) {
	return s.begin(kind, s.selection.IDs(), nil)
}

// Cancel drops the pending action.
func (s *Session) Cancel() {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}

func (s *Session) begin(kind models.PendingKind, ids []int64, payload any) (models.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.pending; p != nil && p.Kind != models.PendingNotice && p.Kind != kind {
		return models.PendingAction{}, fmt.Errorf("begin %s while %s is open: %w", kind, p.Kind, ErrActionPending)
	}
	pa := models.PendingAction{Kind: kind, TargetIDs: append([]int64(nil), ids...), Payload: payload}
	s.pending = &pa
	return pa, nil
}

// finish clears the pending action if it is still the one begun; a notice raised
// meanwhile stays.
func (s *Session) finish(kind models.PendingKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil && s.pending.Kind == kind {
		s.pending = nil
	}
}

func (s *Session) notice(n models.PendingAction) {
	n.Kind = models.PendingNotice
	s.mu.Lock()
	s.pending = &n
	s.mu.Unlock()
}

func (s *Session) requireMutate(op string) error {
	if !s.Role().CanMutate() {
		return fmt.Errorf("%s as %s: %w", op, s.Role(), ErrForbidden)
	}
	return nil
}

// Move drags one card to another stage.
func (s *Session) Move(ctx context.Context, id int64, stage string) (models.Application, error) {
	if err := s.requireMutate("move"); err != nil {
		return models.Application{}, err
	}
	app, err := s.controller.Move(ctx, id, stage)
	s.refresh()
	return app, err
}

// Bulk applies action to the current selection.
func (s *Session) Bulk(ctx context.Context, action BulkAction) (int, error) {
	return s.BulkTargets(ctx, s.selection.IDs(), action)
}

// BulkTargets applies action to an explicit id list. The selection is cleared when
// the batch succeeds.
func (s *Session) BulkTargets(ctx context.Context, ids []int64, action BulkAction) (int, error) {
	if action == nil {
		return 0, ErrUnsupportedAction
	}
	if err := s.requireMutate("bulk " + string(action.Kind())); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, ErrNoTargets
	}
	if _, err := s.begin(action.Kind(), ids, action); err != nil {
		return 0, err
	}
	n, err := s.controller.Bulk(ctx, ids, action)
	s.finish(action.Kind())
	if err == nil {
		s.selection.Clear()
	}
	s.refresh()
	return n, err
}

// Export exports the current selection.
func (s *Session) Export(ctx context.Context, format models.ExportFormat) (ExportOutcome, error) {
	ids := s.selection.IDs()
	if len(ids) == 0 {
		return ExportOutcome{}, ErrNoTargets
	}
	if _, err := s.begin(models.PendingExport, ids, format); err != nil {
		return ExportOutcome{}, err
	}
	out, err := s.exporter.Export(ctx, ids, format)
	s.finish(models.PendingExport)
	return out, err
}

// RevealContact unlocks an applicant's contact details. The cache shows them at once;
// if the backend refuses, only the contact fields are put back and a notice is raised.
func (s *Session) RevealContact(ctx context.Context, id int64) (models.Application, error) {
	if err := s.requireMutate("reveal contact"); err != nil {
		return models.Application{}, err
	}
	var revealed models.Application
	_, err := WithOptimisticUpdate[int64, models.Application](ctx, s.records, id,
		func(a *models.Application) {
			a.ContactRevealed = true
			a.ContactVisible = true
		},
		func(cur *models.Application, snapshot models.Application) {
			cur.ContactRevealed = snapshot.ContactRevealed
			cur.ContactVisible = snapshot.ContactVisible
		},
		func(ctx context.Context, next models.Application) error {
			dto, err := s.backend.RevealContact(ctx, id)
			if err != nil {
				return err
			}
			revealed, err = s.records.Reconcile(id, dto)
			if errors.Is(err, ErrStaleVersion) {
				revealed = next
				return nil
			}
			return err
		},
	)
	s.refresh()
	if errors.Is(err, ErrUnknownApplication) {
		return models.Application{}, fmt.Errorf("reveal contact %d: %w", id, err)
	}
	if err != nil {
		log.Printf("pipeline: reveal rolled back id=%d: %v", id, err)
		s.notice(models.PendingAction{
			TargetIDs: []int64{id},
			Title:     "Contact not revealed",
			Message:   userMessage(err, "The contact details could not be revealed. Please try again."),
		})
		return models.Application{}, fmt.Errorf("reveal contact %d: %w", id, err)
	}
	return revealed, nil
}

// AddStage appends a new column.
func (s *Session) AddStage(ctx context.Context) (models.Stage, error) {
	if err := s.requireMutate("add stage"); err != nil {
		return models.Stage{}, err
	}
	prev := s.stages.Stages()
	st := s.stages.Add()
	if err := s.persistStages(ctx, prev); err != nil {
		return models.Stage{}, err
	}
	return st, nil
}

// UpdateStage edits a column. Locked columns need an admin for renames.
func (s *Session) UpdateStage(ctx context.Context, id string, patch models.StagePatch) (models.Stage, error) {
	if err := s.requireMutate("update stage"); err != nil {
		return models.Stage{}, err
	}
	prev := s.stages.Stages()
	st, err := s.stages.Update(id, patch, s.Role().Privileged())
	if err != nil {
		return models.Stage{}, err
	}
	if err := s.persistStages(ctx, prev); err != nil {
		return models.Stage{}, err
	}
	return st, nil
}

// DeleteStage removes an unlocked, empty column. Emptiness is checked against the
// loaded records here and against every stored application by the backend.
func (s *Session) DeleteStage(ctx context.Context, id string) error {
	if err := s.requireMutate("delete stage"); err != nil {
		return err
	}
	prev := s.stages.Stages()
	if err := s.stages.Delete(id, s.records.CountInStage(id)); err != nil {
		return err
	}
	err := s.persistStages(ctx, prev)
	s.refresh()
	return err
}

// ReorderStages changes the column order.
func (s *Session) ReorderStages(ctx context.Context, order []string) error {
	if err := s.requireMutate("reorder stages"); err != nil {
		return err
	}
	prev := s.stages.Stages()
	if err := s.stages.Reorder(order); err != nil {
		return err
	}
	return s.persistStages(ctx, prev)
}

// persistStages saves the layout. When the backend refuses it the registry goes back
// to prev and a notice is raised.
func (s *Session) persistStages(ctx context.Context, prev []models.Stage) error {
	sp, ok := s.backend.(StagePersister)
	if !ok {
		return nil
	}
	if err := sp.SaveStages(ctx, s.stages.Stages()); err != nil {
		log.Printf("pipeline: save stages failed: %v", err)
		s.stages.replace(prev)
		s.notice(models.PendingAction{
			Title:   "Stage layout not saved",
			Message: userMessage(err, "Your column changes could not be saved."),
		})
		return fmt.Errorf("save stages: %w", err)
	}
	return nil
}
