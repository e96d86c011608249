package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"

	"candidate-pipeline/internal/config"
	"candidate-pipeline/internal/events"
	"candidate-pipeline/internal/export"
	"candidate-pipeline/internal/models"
	"candidate-pipeline/internal/store"
	"candidate-pipeline/internal/telemetry"
)

// Limiter admits a request whose cost grows with the targeted ids.
type Limiter interface {
	Cost(n int) int
	AllowN(ctx context.Context, key string, cost int) (bool, float64, error)
}

// ActivityFeed receives stage changes and bulk actions.
type ActivityFeed interface {
	Publish(ctx context.Context, ev events.ActivityEvent) error
	Recent(ctx context.Context, limit int64) ([]events.ActivityEvent, error)
}

// Server wires HTTP handlers for the pipeline API.
type Server struct {
	cfg       config.Config
	repo      store.Repository
	limiter   Limiter
	feed      ActivityFeed
	publisher export.Publisher
	now       func() time.Time
}

// New constructs the API server. limiter and feed may be nil.
func New(cfg config.Config, repo store.Repository, limiter Limiter, feed ActivityFeed, publisher export.Publisher) *Server {
	return &Server{
		cfg:       cfg,
		repo:      repo,
		limiter:   limiter,
		feed:      feed,
		publisher: publisher,
		now:       time.Now,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Get("/applications", s.handleList)
	r.Patch("/applications/stage", s.handleUpdateStage)
	r.Post("/applications/bulk", s.handleBulk)
	r.Post("/applications/export", s.handleExport)
	r.Post("/applications/{id}/reveal", s.handleReveal)
	r.Get("/applications/{id}/events", s.handleEvents)
	r.Get("/activity", s.handleActivity)
	r.Get("/stages", s.handleGetStages)
	r.Put("/stages", s.handlePutStages)
	return r
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := models.Query{
		Stage:  r.URL.Query().Get("stage"),
		Search: r.URL.Query().Get("search"),
	}
	var err error
	if q.JobID, err = queryInt64(r, "job_id"); err != nil {
		writeError(w, http.StatusBadRequest, "job_id must be an integer")
		return
	}
	limit, err := queryInt64(r, "limit")
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	q.Limit = int(limit)

	apps, err := s.repo.ListApplications(r.Context(), q)
	if err != nil {
		log.Printf("api: list applications: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list applications")
		return
	}
	out := make([]models.ApplicationDTO, 0, len(apps))
	for _, a := range apps {
		out = append(out, models.ToDTO(a))
	}
	writeJSON(w, http.StatusOK, models.ApplicationsResponse{Applications: out})
}

func (s *Server) handleUpdateStage(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.StartSpan(r.Context(), "api.update_stage")
	defer span.End()

	var req models.UpdateStageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ApplicationID <= 0 || req.Stage == "" {
		writeError(w, http.StatusBadRequest, "application_id and stage are required")
		return
	}
	span.SetAttributes(attribute.Int64("application.id", req.ApplicationID), attribute.String("stage", req.Stage))

	known, err := s.knownStage(ctx, req.Stage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load stages")
		return
	}
	if !known {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown stage %q", req.Stage))
		return
	}

	app, err := s.repo.UpdateStage(ctx, req.ApplicationID, req.Stage, req.ExpectedVersion)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "application not found")
		return
	case errors.Is(err, store.ErrVersionConflict):
		telemetry.VersionConflicts.Inc()
		writeError(w, http.StatusConflict, "application was changed by someone else, reload and try again")
		return
	case err != nil:
		log.Printf("api: update stage id=%d: %v", req.ApplicationID, err)
		writeError(w, http.StatusInternalServerError, "failed to update stage")
		return
	}

	s.publish(ctx, events.ActivityEvent{
		Kind:           "stage_changed",
		Workspace:      workspaceFromRequest(r),
		ApplicationIDs: []int64{app.ID},
		Stage:          app.Stage,
	})
	writeJSON(w, http.StatusOK, models.UpdateStageResponse{Application: models.ToDTO(app)})
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.StartSpan(r.Context(), "api.bulk")
	defer span.End()

	var req models.BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.ApplicationIDs) == 0 {
		writeError(w, http.StatusBadRequest, "application_ids is required")
		return
	}
	if err := store.ValidateBulk(req.Action, req.Payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	span.SetAttributes(attribute.String("action", req.Action), attribute.Int("targets", len(req.ApplicationIDs)))

	if req.Action == models.VerbMoveStage {
		known, err := s.knownStage(ctx, req.Payload.Stage)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load stages")
			return
		}
		if !known {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown stage %q", req.Payload.Stage))
			return
		}
	}
	if !s.admit(ctx, w, r, len(req.ApplicationIDs)) {
		return
	}

	n, err := s.repo.ApplyBulk(ctx, req.ApplicationIDs, req.Action, req.Payload)
	if err != nil {
		log.Printf("api: bulk action=%s targets=%d: %v", req.Action, len(req.ApplicationIDs), err)
		writeError(w, http.StatusInternalServerError, "bulk action failed")
		return
	}

	s.publish(ctx, events.ActivityEvent{
		Kind:           req.Action,
		Workspace:      workspaceFromRequest(r),
		ApplicationIDs: req.ApplicationIDs,
		Stage:          req.Payload.Stage,
		Detail:         store.BulkDetail(req.Action, req.Payload),
	})
	writeJSON(w, http.StatusOK, models.BulkResponse{Success: true, Updated: n})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.StartSpan(r.Context(), "api.export")
	defer span.End()

	var req models.ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !req.Format.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", req.Format))
		return
	}
	if len(req.ApplicationIDs) == 0 {
		writeError(w, http.StatusBadRequest, "application_ids is required")
		return
	}
	span.SetAttributes(attribute.String("format", string(req.Format)), attribute.Int("targets", len(req.ApplicationIDs)))
	if !s.admit(ctx, w, r, len(req.ApplicationIDs)) {
		return
	}

	apps, err := s.repo.GetApplications(ctx, req.ApplicationIDs)
	if err != nil {
		log.Printf("api: export load: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load applications")
		return
	}
	if len(apps) == 0 {
		writeError(w, http.StatusNotFound, "no matching applications")
		return
	}

	doc, err := export.Render(req.Format, apps)
	if err != nil {
		log.Printf("api: export render format=%s: %v", req.Format, err)
		writeError(w, http.StatusInternalServerError, "failed to render export")
		return
	}

	if !req.Format.Binary() {
		if s.publisher == nil {
			writeError(w, http.StatusInternalServerError, "sheet export is not configured")
			return
		}
		key := export.ObjectKey(workspaceFromRequest(r), doc.Extension)
		url, err := s.publisher.Upload(ctx, key, doc.Data, doc.ContentType)
		if err != nil {
			log.Printf("api: export publish key=%s: %v", key, err)
			writeError(w, http.StatusInternalServerError, "failed to publish sheet")
			return
		}
		writeJSON(w, http.StatusOK, models.SheetResponse{
			SheetURL: url,
			Message:  fmt.Sprintf("Exported %d applications", len(apps)),
		})
		return
	}

	filename := fmt.Sprintf("applications-%s.%s", s.now().UTC().Format("20060102-150405"), doc.Extension)
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Data)
}

func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.StartSpan(r.Context(), "api.reveal_contact")
	defer span.End()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid application id")
		return
	}
	span.SetAttributes(attribute.Int64("application.id", id))

	app, err := s.repo.RevealContact(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "application not found")
		return
	case err != nil:
		log.Printf("api: reveal contact id=%d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to reveal contact")
		return
	}

	s.publish(ctx, events.ActivityEvent{
		Kind:           "contact_revealed",
		Workspace:      workspaceFromRequest(r),
		ApplicationIDs: []int64{app.ID},
		Stage:          app.Stage,
	})
	writeJSON(w, http.StatusOK, models.ApplicationResponse{Application: models.ToDTO(app)})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid application id")
		return
	}
	limit, err := queryInt64(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	evs, err := s.repo.ListEvents(r.Context(), id, int(limit))
	if err != nil {
		log.Printf("api: list events id=%d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evs})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		writeJSON(w, http.StatusOK, map[string]any{"events": []events.ActivityEvent{}})
		return
	}
	limit, err := queryInt64(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	evs, err := s.feed.Recent(r.Context(), limit)
	if err != nil {
		log.Printf("api: read activity: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read activity")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evs})
}

func (s *Server) handleGetStages(w http.ResponseWriter, r *http.Request) {
	stages, err := s.stages(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load stages")
		return
	}
	writeJSON(w, http.StatusOK, models.StagesPayload{Stages: stages})
}

func (s *Server) handlePutStages(w http.ResponseWriter, r *http.Request) {
	var req models.StagesPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := models.ValidateStages(req.Stages); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	current, err := s.stages(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load stages")
		return
	}
	counts, err := s.repo.CountByStage(r.Context())
	if err != nil {
		log.Printf("api: count by stage: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to count applications")
		return
	}
	if err := checkStageLayout(current, req.Stages, counts, roleFromRequest(r).Privileged()); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err := s.repo.ReplaceStages(r.Context(), req.Stages); err != nil {
		log.Printf("api: replace stages: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to save stages")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// stages returns the persisted template, or the built-in one when nothing was saved yet.
func (s *Server) stages(ctx context.Context) ([]models.Stage, error) {
	stages, err := s.repo.ListStages(ctx)
	if err != nil {
		log.Printf("api: list stages: %v", err)
		return nil, err
	}
	if len(stages) == 0 {
		return models.DefaultStages(), nil
	}
	return stages, nil
}

// checkStageLayout rejects a layout that drops a locked stage or one still holding
// applications, and one that edits a locked stage without a privileged role.
func checkStageLayout(current, next []models.Stage, counts map[string]int, privileged bool) error {
	byID := make(map[string]models.Stage, len(next))
	for _, st := range next {
		byID[st.ID] = st
	}
	for _, cur := range current {
		st, kept := byID[cur.ID]
		switch {
		case !kept && cur.IsLocked:
			return fmt.Errorf("stage %q is locked and cannot be deleted", cur.ID)
		case !kept && counts[cur.ID] > 0:
			return fmt.Errorf("stage %q still holds %d applications", cur.ID, counts[cur.ID])
		case kept && cur.IsLocked && !privileged &&
			(st.Name != cur.Name || !st.IsLocked || st.Description != cur.Description):
			return fmt.Errorf("stage %q is locked and can only be edited by an admin", cur.ID)
		}
	}
	return nil
}

func (s *Server) knownStage(ctx context.Context, id string) (bool, error) {
	stages, err := s.stages(ctx)
	if err != nil {
		return false, err
	}
	for _, st := range stages {
		if st.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// admit charges the workspace bucket and writes the rejection when it is empty.
func (s *Server) admit(ctx context.Context, w http.ResponseWriter, r *http.Request, targets int) bool {
	if s.limiter == nil {
		return true
	}
	key := fmt.Sprintf("rl:%s", workspaceFromRequest(r))
	allowed, _, err := s.limiter.AllowN(ctx, key, s.limiter.Cost(targets))
	if err != nil {
		log.Printf("api: rate limit key=%s: %v", key, err)
		writeError(w, http.StatusInternalServerError, "rate limit error")
		return false
	}
	if !allowed {
		telemetry.RateLimitRejects.Inc()
		writeError(w, http.StatusTooManyRequests, "rate limited, try again shortly")
		return false
	}
	return true
}

func (s *Server) publish(ctx context.Context, ev events.ActivityEvent) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, ev); err != nil {
		log.Printf("api: publish activity kind=%s: %v", ev.Kind, err)
	}
}

func workspaceFromRequest(r *http.Request) string {
	if v := r.Header.Get("X-Workspace-ID"); v != "" {
		return v
	}
	return "default"
}

// roleFromRequest reads the acting role passed by the caller. It is not verified.
func roleFromRequest(r *http.Request) models.Role {
	return models.ParseRole(r.Header.Get("X-Role"))
}

func queryInt64(r *http.Request, key string) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, models.ErrorResponse{Error: msg})
}
