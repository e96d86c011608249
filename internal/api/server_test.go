package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"candidate-pipeline/internal/config"
	"candidate-pipeline/internal/events"
	"candidate-pipeline/internal/export"
	"candidate-pipeline/internal/models"
	"candidate-pipeline/internal/ratelimit"
	"candidate-pipeline/internal/store"
)

type fixture struct {
	repo    *store.MemoryStore
	feed    *events.RedisFeed
	handler http.Handler
}

func newFixture(t *testing.T, capacity int) fixture {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := store.NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := repo.CreateApplication(ctx, models.Application{
			JobID:     1,
			Applicant: models.Applicant{FullName: "Candidate", Email: "c@example.com"},
		}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	limiter := ratelimit.NewTokenBucket(client, capacity, 0.001, 2, time.Minute)
	feed := events.NewRedisFeed(client, 50)
	srv := New(config.Config{}, repo, limiter, feed, &export.LocalPublisher{BaseDir: t.TempDir()})
	srv.now = func() time.Time { return time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC) }
	return fixture{repo: repo, feed: feed, handler: srv.Router()}
}

func (f fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Workspace-ID", "acme")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body models.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, 10)
	rec := f.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("unexpected healthz %d %s", rec.Code, rec.Body.String())
	}
}

func TestListApplications(t *testing.T) {
	f := newFixture(t, 10)

	rec := f.do(t, http.MethodGet, "/applications?job_id=1&limit=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body models.ApplicationsResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Applications) != 2 || *body.Applications[0].Stage != models.StageNew {
		t.Fatalf("unexpected applications %+v", body.Applications)
	}

	if rec := f.do(t, http.MethodGet, "/applications?job_id=abc", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad job_id, got %d", rec.Code)
	}
}

func TestUpdateStage(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	rec := f.do(t, http.MethodPatch, "/applications/stage", models.UpdateStageRequest{ApplicationID: 1, Stage: "interview", ExpectedVersion: 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var body models.UpdateStageResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *body.Application.Stage != "interview" || *body.Application.Version != 2 {
		t.Fatalf("unexpected application %+v", body.Application)
	}

	recent, err := f.feed.Recent(ctx, 10)
	if err != nil || len(recent) != 1 || recent[0].Workspace != "acme" || recent[0].Stage != "interview" {
		t.Fatalf("expected activity entry, got %+v %v", recent, err)
	}

	rec = f.do(t, http.MethodPatch, "/applications/stage", models.UpdateStageRequest{ApplicationID: 1, Stage: "offer", ExpectedVersion: 1})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for stale version, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodPatch, "/applications/stage", models.UpdateStageRequest{ApplicationID: 99, Stage: "offer"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodPatch, "/applications/stage", models.UpdateStageRequest{ApplicationID: 1, Stage: "limbo"})
	if rec.Code != http.StatusBadRequest || !strings.Contains(decodeError(t, rec), "unknown stage") {
		t.Fatalf("expected 400 for unknown stage, got %d", rec.Code)
	}
}

func TestBulk(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	rec := f.do(t, http.MethodPost, "/applications/bulk", models.BulkRequest{
		ApplicationIDs: []int64{1, 2, 404},
		Action:         models.VerbTag,
		Payload:        models.BulkPayload{Tags: []string{"go", "Go", "remote"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var body models.BulkResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Updated != 2 {
		t.Fatalf("unexpected response %+v", body)
	}
	apps, _ := f.repo.GetApplications(ctx, []int64{1, 2})
	for _, a := range apps {
		if len(a.Tags) != 2 {
			t.Fatalf("expected normalized tags, got %v", a.Tags)
		}
	}

	bad := []models.BulkRequest{
		{Action: models.VerbTag},
		{ApplicationIDs: []int64{1}, Action: "archive"},
		{ApplicationIDs: []int64{1}, Action: models.VerbSetPriority, Payload: models.BulkPayload{Priority: "asap"}},
		{ApplicationIDs: []int64{1}, Action: models.VerbMoveStage, Payload: models.BulkPayload{Stage: "limbo"}},
	}
	for _, req := range bad {
		if rec := f.do(t, http.MethodPost, "/applications/bulk", req); rec.Code != http.StatusBadRequest {
			t.Fatalf("%+v: expected 400, got %d", req, rec.Code)
		}
	}
}

func TestBulkRateLimitedByTargetCount(t *testing.T) {
	f := newFixture(t, 3)
	req := models.BulkRequest{
		ApplicationIDs: []int64{1, 2, 3, 4},
		Action:         models.VerbAddNote,
		Payload:        models.BulkPayload{Note: "ping"},
	}

	if rec := f.do(t, http.MethodPost, "/applications/bulk", req); rec.Code != http.StatusOK {
		t.Fatalf("first bulk: %d", rec.Code)
	}
	rec := f.do(t, http.MethodPost, "/applications/bulk", req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestExportBinary(t *testing.T) {
	f := newFixture(t, 10)

	rec := f.do(t, http.MethodPost, "/applications/export", models.ExportRequest{ApplicationIDs: []int64{1, 2}, Format: models.FormatCSV})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != export.ContentTypeCSV {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="applications-20240701-100000.csv"` {
		t.Fatalf("unexpected disposition %q", cd)
	}
	if lines := strings.Count(rec.Body.String(), "\n"); lines != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines", lines)
	}

	pdf := f.do(t, http.MethodPost, "/applications/export", models.ExportRequest{ApplicationIDs: []int64{1}, Format: models.FormatPDF})
	if pdf.Code != http.StatusOK || !strings.HasPrefix(pdf.Body.String(), "%PDF") {
		t.Fatalf("unexpected pdf export %d", pdf.Code)
	}
}

func TestExportSheet(t *testing.T) {
	f := newFixture(t, 10)

	rec := f.do(t, http.MethodPost, "/applications/export", models.ExportRequest{ApplicationIDs: []int64{1}, Format: models.FormatSheet})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var body models.SheetResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(body.SheetURL, "file://") || !strings.Contains(body.SheetURL, "/exports/acme/") {
		t.Fatalf("unexpected sheet url %q", body.SheetURL)
	}
}

func TestExportValidation(t *testing.T) {
	f := newFixture(t, 10)
	cases := []struct {
		req  models.ExportRequest
		code int
	}{
		{models.ExportRequest{ApplicationIDs: []int64{1}, Format: "docx"}, http.StatusBadRequest},
		{models.ExportRequest{Format: models.FormatCSV}, http.StatusBadRequest},
		{models.ExportRequest{ApplicationIDs: []int64{404}, Format: models.FormatCSV}, http.StatusNotFound},
	}
	for _, tc := range cases {
		if rec := f.do(t, http.MethodPost, "/applications/export", tc.req); rec.Code != tc.code {
			t.Fatalf("%+v: expected %d, got %d", tc.req, tc.code, rec.Code)
		}
	}
}

func TestStages(t *testing.T) {
	f := newFixture(t, 10)

	rec := f.do(t, http.MethodGet, "/stages", nil)
	var body models.StagesPayload
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Stages) != len(models.DefaultStages()) {
		t.Fatalf("expected default template, got %d stages", len(body.Stages))
	}

	defaults := models.DefaultStages()
	custom := models.StagesPayload{Stages: []models.Stage{defaults[0], {ID: "done", Name: "Done"}, defaults[5], defaults[6]}}
	if rec := f.do(t, http.MethodPut, "/stages", custom); rec.Code != http.StatusOK {
		t.Fatalf("put stages: %d %s", rec.Code, rec.Body.String())
	}
	stored, _ := f.repo.ListStages(context.Background())
	if len(stored) != 4 || stored[1].ID != "done" {
		t.Fatalf("stages not saved: %+v", stored)
	}
	rec = f.do(t, http.MethodPatch, "/applications/stage", models.UpdateStageRequest{ApplicationID: 1, Stage: "interview"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("stage removed from template must be rejected, got %d", rec.Code)
	}

	dup := models.StagesPayload{Stages: []models.Stage{{ID: "a"}, {ID: "a"}}}
	if rec := f.do(t, http.MethodPut, "/stages", dup); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate ids, got %d", rec.Code)
	}
}

func TestPutStagesGuardsServerState(t *testing.T) {
	f := newFixture(t, 10)
	defaults := models.DefaultStages()
	without := func(id string) models.StagesPayload {
		var out []models.Stage
		for _, st := range defaults {
			if st.ID != id {
				out = append(out, st)
			}
		}
		return models.StagesPayload{Stages: out}
	}

	// Application 1 belongs to job 1; a client that loaded only job 2 still cannot drop its stage.
	if rec := f.do(t, http.MethodPatch, "/applications/stage", models.UpdateStageRequest{ApplicationID: 1, Stage: "interview"}); rec.Code != http.StatusOK {
		t.Fatalf("move: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPut, "/stages", without("interview")); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 dropping a non-empty stage, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPut, "/stages", without("hired")); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 dropping a locked stage, got %d", rec.Code)
	}

	renamed := models.StagesPayload{Stages: models.DefaultStages()}
	renamed.Stages[0].Name = "Inbox"
	if rec := f.do(t, http.MethodPut, "/stages", renamed); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 renaming a locked stage, got %d", rec.Code)
	}
	unlocked := models.StagesPayload{Stages: models.DefaultStages()}
	unlocked.Stages[6].IsLocked = false
	if rec := f.do(t, http.MethodPut, "/stages", unlocked); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 unlocking a stage, got %d", rec.Code)
	}
	if stored, _ := f.repo.ListStages(context.Background()); len(stored) != 0 {
		t.Fatalf("rejected layouts must not be stored, got %+v", stored)
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(renamed); err != nil {
		t.Fatalf("encode: %v", err)
	}
	req := httptest.NewRequest(http.MethodPut, "/stages", &buf)
	req.Header.Set("X-Role", string(models.RoleAdmin))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin rename of a locked stage: %d %s", rec.Code, rec.Body.String())
	}

	trimmed := models.StagesPayload{}
	for _, st := range renamed.Stages {
		if st.ID != "reviewing" {
			trimmed.Stages = append(trimmed.Stages, st)
		}
	}
	if rec := f.do(t, http.MethodPut, "/stages", trimmed); rec.Code != http.StatusOK {
		t.Fatalf("dropping an empty unlocked stage: %d %s", rec.Code, rec.Body.String())
	}
}

func TestRevealContact(t *testing.T) {
	f := newFixture(t, 10)

	rec := f.do(t, http.MethodPost, "/applications/2/reveal", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reveal: %d %s", rec.Code, rec.Body.String())
	}
	var body models.ApplicationResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Application.ContactRevealed == nil || !*body.Application.ContactRevealed {
		t.Fatalf("expected revealed contact in answer, got %+v", body.Application)
	}
	stored, _ := f.repo.GetApplications(context.Background(), []int64{2})
	if len(stored) != 1 || !stored[0].ContactRevealed || stored[0].Version != 2 {
		t.Fatalf("reveal not persisted: %+v", stored)
	}
	if rec := f.do(t, http.MethodPost, "/applications/99/reveal", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/applications/x/reveal", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestEventsAndActivity(t *testing.T) {
	f := newFixture(t, 10)
	f.do(t, http.MethodPatch, "/applications/stage", models.UpdateStageRequest{ApplicationID: 2, Stage: "offer"})
	f.do(t, http.MethodPost, "/applications/bulk", models.BulkRequest{
		ApplicationIDs: []int64{2}, Action: models.VerbSetPriority, Payload: models.BulkPayload{Priority: models.PriorityUrgent},
	})

	rec := f.do(t, http.MethodGet, "/applications/2/events", nil)
	var evs struct {
		Events []models.ApplicationEvent `json:"events"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&evs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(evs.Events) != 2 || evs.Events[0].Event != models.VerbSetPriority {
		t.Fatalf("unexpected audit trail %+v", evs.Events)
	}

	rec = f.do(t, http.MethodGet, "/activity?limit=1", nil)
	var act struct {
		Events []events.ActivityEvent `json:"events"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&act); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(act.Events) != 1 || act.Events[0].Kind != models.VerbSetPriority {
		t.Fatalf("unexpected activity %+v", act.Events)
	}

	if rec := f.do(t, http.MethodGet, "/applications/abc/events", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
