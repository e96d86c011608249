package store

import (
	"context"
	"errors"
	"fmt"

	"candidate-pipeline/internal/models"
)

var (
	ErrNotFound        = errors.New("application not found")
	ErrVersionConflict = errors.New("application version conflict")
	ErrInvalidAction   = errors.New("invalid bulk action")
)

// Repository is the persistence contract the API serves from.
type Repository interface {
	ListApplications(ctx context.Context, q models.Query) ([]models.Application, error)
	GetApplications(ctx context.Context, ids []int64) ([]models.Application, error)
	CreateApplication(ctx context.Context, app models.Application) (models.Application, error)
	UpdateStage(ctx context.Context, id int64, stage string, expectedVersion int64) (models.Application, error)
	RevealContact(ctx context.Context, id int64) (models.Application, error)
	CountByStage(ctx context.Context) (map[string]int, error)
	ApplyBulk(ctx context.Context, ids []int64, verb string, payload models.BulkPayload) (int, error)
	ListStages(ctx context.Context) ([]models.Stage, error)
	ReplaceStages(ctx context.Context, stages []models.Stage) error
	AppendEvent(ctx context.Context, applicationID int64, event, detail string) error
	ListEvents(ctx context.Context, applicationID int64, limit int) ([]models.ApplicationEvent, error)
}

// ValidateBulk checks that verb is known and its payload carries what it needs.
func ValidateBulk(verb string, payload models.BulkPayload) error {
	switch verb {
	case models.VerbMoveStage:
		if payload.Stage == "" {
			return fmt.Errorf("%s without stage: %w", verb, ErrInvalidAction)
		}
	case models.VerbSetPriority:
		if !payload.Priority.Valid() {
			return fmt.Errorf("%s with priority %q: %w", verb, payload.Priority, ErrInvalidAction)
		}
	case models.VerbAddNote, models.VerbTag:
	default:
		return fmt.Errorf("verb %q: %w", verb, ErrInvalidAction)
	}
	return nil
}

// applyBulk mutates one application the way a bulk verb does.
func applyBulk(a *models.Application, verb string, payload models.BulkPayload) {
	switch verb {
	case models.VerbMoveStage:
		models.EnterStage(a, payload.Stage)
	case models.VerbAddNote:
		note := payload.Note
		a.Notes = &note
	case models.VerbSetPriority:
		a.Priority = payload.Priority
	case models.VerbTag:
		a.Tags = models.NormalizeTags(payload.Tags)
	}
}

// BulkDetail renders the audit detail for a bulk verb.
func BulkDetail(verb string, payload models.BulkPayload) string {
	switch verb {
	case models.VerbMoveStage:
		return "stage=" + payload.Stage
	case models.VerbSetPriority:
		return "priority=" + string(payload.Priority)
	case models.VerbTag:
		return fmt.Sprintf("tags=%v", models.NormalizeTags(payload.Tags))
	case models.VerbAddNote:
		return fmt.Sprintf("note_len=%d", len(payload.Note))
	}
	return ""
}
