package pipeline

import (
	"fmt"
	"log"
	"strings"

	"candidate-pipeline/internal/models"
)

// BulkAction is one of MoveAction, NoteAction, PriorityAction or TagAction. The
// unexported methods keep the set closed: a new kind must spell out its verb,
// payload and local mutation before it compiles.
type BulkAction interface {
	Kind() models.PendingKind
	verb() string
	payload() models.BulkPayload
	apply(a *models.Application)
}

// MoveAction moves every target into Stage.
type MoveAction struct{ Stage string }

// NoteAction overwrites the notes of every target.
type NoteAction struct{ Note string }

// PriorityAction overwrites the priority of every target.
type PriorityAction struct{ Priority models.Priority }

// TagAction replaces the tag set of every target.
type TagAction struct{ Tags []string }

func (MoveAction) Kind() models.PendingKind     { return models.PendingMove }
func (NoteAction) Kind() models.PendingKind     { return models.PendingNote }
func (PriorityAction) Kind() models.PendingKind { return models.PendingPriority }
func (TagAction) Kind() models.PendingKind      { return models.PendingTag }

func (MoveAction) verb() string     { return models.VerbMoveStage }
func (NoteAction) verb() string     { return models.VerbAddNote }
func (PriorityAction) verb() string { return models.VerbSetPriority }
func (TagAction) verb() string      { return models.VerbTag }

func (m MoveAction) payload() models.BulkPayload     { return models.BulkPayload{Stage: m.Stage} }
func (n NoteAction) payload() models.BulkPayload     { return models.BulkPayload{Note: n.Note} }
func (p PriorityAction) payload() models.BulkPayload { return models.BulkPayload{Priority: p.Priority} }
func (t TagAction) payload() models.BulkPayload {
	return models.BulkPayload{Tags: models.NormalizeTags(t.Tags)}
}

func (m MoveAction) apply(a *models.Application) { models.EnterStage(a, m.Stage) }

func (n NoteAction) apply(a *models.Application) {
	note := n.Note
	a.Notes = &note
}

func (p PriorityAction) apply(a *models.Application) { a.Priority = p.Priority }

func (t TagAction) apply(a *models.Application) { a.Tags = models.NormalizeTags(t.Tags) }

// ParseBulkAction maps a UI-level action name and its argument onto a BulkAction.
// This is the only place an unsupported name can show up.
func ParseBulkAction(name, arg string) (BulkAction, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "move":
		return MoveAction{Stage: strings.TrimSpace(arg)}, nil
	case "note":
		return NoteAction{Note: arg}, nil
	case "priority":
		p := models.Priority(strings.ToLower(strings.TrimSpace(arg)))
		if !p.Valid() {
			return nil, fmt.Errorf("priority %q: %w", arg, ErrUnsupportedAction)
		}
		return PriorityAction{Priority: p}, nil
	case "tag":
		return TagAction{Tags: strings.Split(arg, ",")}, nil
	}
	log.Printf("pipeline: unsupported bulk action name=%q", name)
	return nil, fmt.Errorf("action %q: %w", name, ErrUnsupportedAction)
}
