package store

import (
	"context"
	"fmt"

	"candidate-pipeline/internal/config"
	"candidate-pipeline/internal/models"
)

// Open returns the repository selected by STORE_DRIVER. Postgres is migrated before
// it is handed out. The close func is always safe to call.
func Open(ctx context.Context, cfg config.Config) (Repository, func(), error) {
	switch cfg.StoreDriver {
	case "memory":
		return NewMemoryStore(), func() {}, nil
	case "postgres", "":
		st, err := New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, func() {}, fmt.Errorf("connect postgres: %w", err)
		}
		if err := st.RunMigrations(ctx); err != nil {
			st.Close()
			return nil, func() {}, fmt.Errorf("migrations: %w", err)
		}
		return st, st.Close, nil
	}
	return nil, func() {}, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// EnsureStages writes stages when the repository has no layout yet and reports
// whether it did.
func EnsureStages(ctx context.Context, repo Repository, stages []models.Stage) (bool, error) {
	existing, err := repo.ListStages(ctx)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}
	if err := repo.ReplaceStages(ctx, stages); err != nil {
		return false, err
	}
	return true, nil
}
