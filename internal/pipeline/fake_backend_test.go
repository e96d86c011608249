package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"candidate-pipeline/internal/models"
)

var errBackendDown = errors.New("backend unavailable")

// fakeBackend records every call and answers from a scripted state.
type fakeBackend struct {
	mu sync.Mutex

	apps        []models.ApplicationDTO
	queryErr    error
	updateErr   error
	bulkErr     error
	exportErr   error
	export      ExportPayload
	stages      []models.Stage
	saveErr     error
	revealErr   error
	versionSkew int64
	// onUpdate runs before UpdateStage answers, outside the lock.
	onUpdate func()

	updates []models.UpdateStageRequest
	bulks   []models.BulkRequest
	exports []models.ExportRequest
	saved   [][]models.Stage
	reveals []int64
}

func (f *fakeBackend) QueryApplications(_ context.Context, _ models.Query) ([]models.ApplicationDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return append([]models.ApplicationDTO(nil), f.apps...), nil
}

func (f *fakeBackend) UpdateStage(_ context.Context, req models.UpdateStageRequest) (models.ApplicationDTO, error) {
	if f.onUpdate != nil {
		f.onUpdate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, req)
	if f.updateErr != nil {
		return models.ApplicationDTO{}, f.updateErr
	}
	stage := req.Stage
	version := req.ExpectedVersion + 1 + f.versionSkew
	return models.ApplicationDTO{ID: req.ApplicationID, Stage: &stage, Version: &version}, nil
}

func (f *fakeBackend) BulkAction(_ context.Context, req models.BulkRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulks = append(f.bulks, req)
	return f.bulkErr
}

func (f *fakeBackend) RevealContact(_ context.Context, id int64) (models.ApplicationDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reveals = append(f.reveals, id)
	if f.revealErr != nil {
		return models.ApplicationDTO{}, f.revealErr
	}
	return models.ApplicationDTO{ID: id, ContactVisible: boolPtr(true), ContactRevealed: boolPtr(true)}, nil
}

func (f *fakeBackend) Export(_ context.Context, req models.ExportRequest) (ExportPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exports = append(f.exports, req)
	if f.exportErr != nil {
		return ExportPayload{}, f.exportErr
	}
	return f.export, nil
}

func (f *fakeBackend) LoadStages(context.Context) ([]models.Stage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stages, nil
}

func (f *fakeBackend) SaveStages(_ context.Context, stages []models.Stage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, stages)
	return nil
}

func (f *fakeBackend) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

func (f *fakeBackend) bulkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bulks)
}

type userErr struct{ msg string }

func (e userErr) Error() string       { return "server said: " + e.msg }
func (e userErr) UserMessage() string { return e.msg }

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func boolPtr(b bool) *bool    { return &b }
func i64Ptr(i int64) *int64   { return &i }

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
	return &t
}

func dto(id int64, stage string) models.ApplicationDTO {
	return models.ApplicationDTO{
		ID:      id,
		Stage:   strPtr(stage),
		Version: i64Ptr(1),
		Applicant: &models.Applicant{
			FullName: "Candidate " + string(rune('A'+id-1)),
			Email:    "c" + string(rune('a'+id-1)) + "@example.com",
		},
	}
}

func newStore(t *testing.T, fb *fakeBackend) *RecordStore {
	t.Helper()
	rs := NewRecordStore(fb)
	rs.Replace(fb.apps)
	return rs
}
