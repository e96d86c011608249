package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"candidate-pipeline/internal/models"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("postgres container test skipped in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("pipeline"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	st := NewFromPool(pool)
	require.NoError(t, st.RunMigrations(ctx))
	require.NoError(t, st.RunMigrations(ctx), "migrations must be re-runnable")

	t.Run("stages round trip", func(t *testing.T) {
		require.NoError(t, st.ReplaceStages(ctx, models.DefaultStages()))
		stages, err := st.ListStages(ctx)
		require.NoError(t, err)
		require.Len(t, stages, len(models.DefaultStages()))
		assert.Equal(t, models.StageNew, stages[0].ID)
		assert.True(t, stages[0].IsLocked)
	})

	score := 80
	created, err := st.CreateApplication(ctx, models.Application{
		JobID:          7,
		Stage:          models.StageNew,
		Flagged:        true,
		IsNewLead:      true,
		ContactVisible: true,
		JobMatchScore:  &score,
		Tags:           []string{"go"},
		Applicant:      models.Applicant{FullName: "Ada Lovelace", Email: "ada@example.com", Skills: []string{"math"}},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, created.Version)

	t.Run("update stage clears lead flags and bumps version", func(t *testing.T) {
		app, err := st.UpdateStage(ctx, created.ID, models.StagePhoneScreening, created.Version)
		require.NoError(t, err)
		assert.Equal(t, models.StagePhoneScreening, app.Stage)
		assert.False(t, app.Flagged)
		assert.False(t, app.IsNewLead)
		assert.EqualValues(t, 2, app.Version)

		_, err = st.UpdateStage(ctx, created.ID, "interview", created.Version)
		assert.ErrorIs(t, err, ErrVersionConflict)
	})

	t.Run("bulk tag replaces", func(t *testing.T) {
		n, err := st.ApplyBulk(ctx, []int64{created.ID}, models.VerbTag, models.BulkPayload{Tags: []string{"X"}})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		apps, err := st.GetApplications(ctx, []int64{created.ID})
		require.NoError(t, err)
		require.Len(t, apps, 1)
		assert.Equal(t, []string{"X"}, apps[0].Tags)
		require.NotNil(t, apps[0].JobMatchScore)
		assert.Equal(t, 80, *apps[0].JobMatchScore)
	})

	t.Run("list filters by job and search", func(t *testing.T) {
		apps, err := st.ListApplications(ctx, models.Query{JobID: 7, Search: "ada"})
		require.NoError(t, err)
		assert.Len(t, apps, 1)

		apps, err = st.ListApplications(ctx, models.Query{JobID: 8})
		require.NoError(t, err)
		assert.Empty(t, apps)
	})

	t.Run("events recorded", func(t *testing.T) {
		events, err := st.ListEvents(ctx, created.ID, 10)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, models.VerbTag, events[0].Event)
		assert.Equal(t, "stage_changed", events[1].Event)
	})

	t.Run("reveal contact and stage counts", func(t *testing.T) {
		before, err := st.GetApplications(ctx, []int64{created.ID})
		require.NoError(t, err)
		require.Len(t, before, 1)

		app, err := st.RevealContact(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, app.ContactRevealed)
		assert.True(t, app.ContactVisible)
		assert.Equal(t, before[0].Version+1, app.Version)

		_, err = st.RevealContact(ctx, 999999)
		assert.ErrorIs(t, err, ErrNotFound)

		counts, err := st.CountByStage(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, counts[models.StagePhoneScreening])
		assert.Zero(t, counts[models.StageNew])
	})
}
