package pipeline

import (
	"context"

	"candidate-pipeline/internal/models"
)

// Backend is the application-data service the engine talks to.
type Backend interface {
	QueryApplications(ctx context.Context, q models.Query) ([]models.ApplicationDTO, error)
	UpdateStage(ctx context.Context, req models.UpdateStageRequest) (models.ApplicationDTO, error)
	BulkAction(ctx context.Context, req models.BulkRequest) error
	RevealContact(ctx context.Context, id int64) (models.ApplicationDTO, error)
	Export(ctx context.Context, req models.ExportRequest) (ExportPayload, error)
}

// StagePersister is implemented by backends that store the column layout.
type StagePersister interface {
	LoadStages(ctx context.Context) ([]models.Stage, error)
	SaveStages(ctx context.Context, stages []models.Stage) error
}

// ExportPayload is what an export call returns: file bytes, or a sheet link.
type ExportPayload struct {
	Filename    string
	ContentType string
	Data        []byte
	SheetURL    string
	Message     string
}
