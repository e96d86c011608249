package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"candidate-pipeline/internal/models"
)

// Store wraps pgxpool for Postgres persistence.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewFromPool wraps an existing pool.
func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const applicationColumns = `id, job_id, stage, priority, rating, tags, flagged, is_new_lead, contact_visible,
	contact_revealed, job_match_score, resume_url, applied_at, created_at, full_name, email, phone,
	location, skills, notes, version`

// ListApplications returns applications matching q, oldest first.
func (s *Store) ListApplications(ctx context.Context, q models.Query) ([]models.Application, error) {
	var where []string
	var args []any
	i := 1
	if q.JobID != 0 {
		where = append(where, fmt.Sprintf("job_id = $%d", i))
		args = append(args, q.JobID)
		i++
	}
	if q.Stage != "" {
		where = append(where, fmt.Sprintf("stage = $%d", i))
		args = append(args, q.Stage)
		i++
	}
	if q.Search != "" {
		where = append(where, fmt.Sprintf("(full_name ILIKE $%d OR email ILIKE $%d OR location ILIKE $%d)", i, i, i))
		args = append(args, "%"+q.Search+"%")
		i++
	}
	sql := "SELECT " + applicationColumns + " FROM applications"
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY created_at, id"
	if q.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT $%d", i)
		args = append(args, q.Limit)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query applications: %w", err)
	}
	return collectApplications(rows)
}

// GetApplications fetches the listed applications in id order.
func (s *Store) GetApplications(ctx context.Context, ids []int64) ([]models.Application, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+applicationColumns+" FROM applications WHERE id = ANY($1) ORDER BY id", ids)
	if err != nil {
		return nil, fmt.Errorf("query applications by id: %w", err)
	}
	return collectApplications(rows)
}

// CreateApplication inserts an application as delivered by intake.
func (s *Store) CreateApplication(ctx context.Context, app models.Application) (models.Application, error) {
	if app.Stage == "" {
		app.Stage = models.StageNew
	}
	if !app.Priority.Valid() {
		app.Priority = models.PriorityNormal
	}
	if app.Tags == nil {
		app.Tags = []string{}
	}
	skills := app.Applicant.Skills
	if skills == nil {
		skills = []string{}
	}
	var created time.Time
	err := s.pool.QueryRow(ctx, `
		INSERT INTO applications (job_id, stage, priority, rating, tags, flagged, is_new_lead, contact_visible,
			contact_revealed, job_match_score, resume_url, applied_at, full_name, email, phone, location, skills, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id, version, created_at
	`, app.JobID, app.Stage, string(app.Priority), models.ClampRating(app.Rating), app.Tags, app.Flagged, app.IsNewLead,
		app.ContactVisible, app.ContactRevealed, app.JobMatchScore, app.ResumeURL, app.AppliedAt,
		app.Applicant.FullName, app.Applicant.Email, app.Applicant.Phone, app.Applicant.Location, skills, app.Notes,
	).Scan(&app.ID, &app.Version, &created)
	if err != nil {
		return models.Application{}, fmt.Errorf("insert application: %w", err)
	}
	app.CreatedAt = &created
	return app, nil
}

// UpdateStage moves one application under a row lock. A non-zero expectedVersion must
// match the stored version; the version is bumped on success.
func (s *Store) UpdateStage(ctx context.Context, id int64, stage string, expectedVersion int64) (models.Application, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Application{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	app, err := scanApplication(tx.QueryRow(ctx, "SELECT "+applicationColumns+" FROM applications WHERE id = $1 FOR UPDATE", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Application{}, fmt.Errorf("application %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Application{}, err
	}
	if expectedVersion != 0 && app.Version != expectedVersion {
		return models.Application{}, fmt.Errorf("application %d at version %d, expected %d: %w", id, app.Version, expectedVersion, ErrVersionConflict)
	}

	from := app.Stage
	models.EnterStage(&app, stage)
	app.Version++
	if _, err := tx.Exec(ctx, `
		UPDATE applications
		SET stage = $2, flagged = $3, is_new_lead = $4, version = $5, updated_at = NOW()
		WHERE id = $1
	`, id, app.Stage, app.Flagged, app.IsNewLead, app.Version); err != nil {
		return models.Application{}, fmt.Errorf("update stage: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO application_events (application_id, event, detail, ts) VALUES ($1, 'stage_changed', $2, NOW())
	`, id, fmt.Sprintf("from=%s to=%s", from, stage)); err != nil {
		return models.Application{}, fmt.Errorf("insert event: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Application{}, fmt.Errorf("commit: %w", err)
	}
	return app, nil
}

// RevealContact marks the applicant's contact details as revealed and bumps the version.
func (s *Store) RevealContact(ctx context.Context, id int64) (models.Application, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Application{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	app, err := scanApplication(tx.QueryRow(ctx, `
		UPDATE applications
		SET contact_revealed = TRUE, contact_visible = TRUE, version = version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING `+applicationColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Application{}, fmt.Errorf("application %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Application{}, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO application_events (application_id, event, detail, ts) VALUES ($1, 'contact_revealed', '', NOW())
	`, id); err != nil {
		return models.Application{}, fmt.Errorf("insert event: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Application{}, fmt.Errorf("commit: %w", err)
	}
	return app, nil
}

// CountByStage returns how many applications sit in each stage.
func (s *Store) CountByStage(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT stage, COUNT(*) FROM applications GROUP BY stage`)
	if err != nil {
		return nil, fmt.Errorf("count by stage: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, fmt.Errorf("scan stage count: %w", err)
		}
		out[stage] = n
	}
	return out, rows.Err()
}

// ApplyBulk applies one verb to every id in a single transaction.
func (s *Store) ApplyBulk(ctx context.Context, ids []int64, verb string, payload models.BulkPayload) (int, error) {
	if err := ValidateBulk(verb, payload); err != nil {
		return 0, err
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var sql string
	var arg any
	switch verb {
	case models.VerbMoveStage:
		sql = `UPDATE applications SET stage = $2,
			flagged = CASE WHEN $2 = 'phone_screening' THEN FALSE ELSE flagged END,
			is_new_lead = CASE WHEN $2 = 'phone_screening' THEN FALSE ELSE is_new_lead END,
			version = version + 1, updated_at = NOW() WHERE id = ANY($1)`
		arg = payload.Stage
	case models.VerbAddNote:
		sql = `UPDATE applications SET notes = $2, version = version + 1, updated_at = NOW() WHERE id = ANY($1)`
		arg = payload.Note
	case models.VerbSetPriority:
		sql = `UPDATE applications SET priority = $2, version = version + 1, updated_at = NOW() WHERE id = ANY($1)`
		arg = string(payload.Priority)
	case models.VerbTag:
		sql = `UPDATE applications SET tags = $2, version = version + 1, updated_at = NOW() WHERE id = ANY($1)`
		arg = models.NormalizeTags(payload.Tags)
	}
	tag, err := tx.Exec(ctx, sql, ids, arg)
	if err != nil {
		return 0, fmt.Errorf("bulk %s: %w", verb, err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO application_events (application_id, event, detail, ts)
		SELECT a.id, $2::text, $3::text, NOW() FROM applications a WHERE a.id = ANY($1)
	`, ids, verb, BulkDetail(verb, payload)); err != nil {
		return 0, fmt.Errorf("insert bulk events: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListStages returns the stored column layout in display order.
func (s *Store) ListStages(ctx context.Context) ([]models.Stage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, color_tag, is_locked, description, automation_hints FROM stages ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("query stages: %w", err)
	}
	defer rows.Close()
	var out []models.Stage
	for rows.Next() {
		var st models.Stage
		if err := rows.Scan(&st.ID, &st.Name, &st.ColorTag, &st.IsLocked, &st.Description, &st.AutomationHints); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ReplaceStages stores a new column layout.
func (s *Store) ReplaceStages(ctx context.Context, stages []models.Stage) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM stages`); err != nil {
		return fmt.Errorf("clear stages: %w", err)
	}
	batch := &pgx.Batch{}
	for i, st := range stages {
		hints := st.AutomationHints
		if hints == nil {
			hints = []string{}
		}
		batch.Queue(`
			INSERT INTO stages (id, position, name, color_tag, is_locked, description, automation_hints)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, st.ID, i, st.Name, st.ColorTag, st.IsLocked, st.Description, hints)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert stages: %w", err)
	}
	return tx.Commit(ctx)
}

// AppendEvent adds an audit row.
func (s *Store) AppendEvent(ctx context.Context, applicationID int64, event, detail string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO application_events (application_id, event, detail, ts)
		VALUES ($1, $2, $3, NOW())
	`, applicationID, event, detail)
	return err
}

// ListEvents returns the newest audit rows of one application.
func (s *Store) ListEvents(ctx context.Context, applicationID int64, limit int) ([]models.ApplicationEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT application_id, event, detail, ts FROM application_events
		WHERE application_id = $1 ORDER BY ts DESC, id DESC LIMIT $2
	`, applicationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	var out []models.ApplicationEvent
	for rows.Next() {
		var ev models.ApplicationEvent
		if err := rows.Scan(&ev.ApplicationID, &ev.Event, &ev.Detail, &ev.Recorded); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func collectApplications(rows pgx.Rows) ([]models.Application, error) {
	defer rows.Close()
	var out []models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	return out, rows.Err()
}

func scanApplication(row pgx.Row) (models.Application, error) {
	var app models.Application
	var priority string
	var score pgtype.Int4
	var applied, created pgtype.Timestamptz
	var notes pgtype.Text

	err := row.Scan(&app.ID, &app.JobID, &app.Stage, &priority, &app.Rating, &app.Tags, &app.Flagged, &app.IsNewLead,
		&app.ContactVisible, &app.ContactRevealed, &score, &app.ResumeURL, &applied, &created,
		&app.Applicant.FullName, &app.Applicant.Email, &app.Applicant.Phone, &app.Applicant.Location,
		&app.Applicant.Skills, &notes, &app.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Application{}, err
		}
		return models.Application{}, fmt.Errorf("scan application: %w", err)
	}
	app.Priority = models.ParsePriority(priority)
	if score.Valid {
		v := int(score.Int32)
		app.JobMatchScore = &v
	}
	app.AppliedAt = timePtr(applied)
	app.CreatedAt = timePtr(created)
	app.Notes = textPtr(notes)
	return app, nil
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if t.Valid {
		v := t.Time
		return &v
	}
	return nil
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}
