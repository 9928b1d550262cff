package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"time"

	"github.com/couchcryptid/reservoir-risk-service/internal/adapter/memory"
	"github.com/couchcryptid/reservoir-risk-service/internal/adapter/postgres"
	"github.com/couchcryptid/reservoir-risk-service/internal/config"
	"github.com/couchcryptid/reservoir-risk-service/internal/evaluation"
	"github.com/couchcryptid/reservoir-risk-service/internal/forecast"
	"github.com/couchcryptid/reservoir-risk-service/internal/recommend"
	"github.com/couchcryptid/reservoir-risk-service/internal/thresholds"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

const connectTimeout = 10 * time.Second

// store is everything the service reads and writes.
type store interface {
	forecast.SeriesStore
	evaluation.StationDirectory
	evaluation.Recorder
	thresholds.Store
	thresholds.Writer
	recommend.TemplateStore
}

type storage struct {
	store store
	ready sharedobs.ReadinessChecker
	close func()
}

// openStorage connects to Postgres when DATABASE_URL is set. When it is unset or
// unreachable the service runs on the in-memory store seeded from the fixture.
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage, error) {
	if cfg.DatabaseURL != "" {
		s, err := openPostgres(ctx, cfg.DatabaseURL)
		if err == nil {
			logger.Info("using postgres storage")
			return s, nil
		}
		logger.Warn("postgres unavailable, falling back to in-memory storage", "error", err)
	}

	mem, err := memory.LoadFixture(cfg.FixturePath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("fixture not found, starting with an empty store", "path", cfg.FixturePath)
		mem = memory.NewStore()
	case err != nil:
		return nil, err
	default:
		logger.Info("using in-memory storage", "fixture", cfg.FixturePath, "stations", len(mem.Stations()))
	}
	return &storage{store: mem, close: func() {}}, nil
}

func openPostgres(ctx context.Context, url string) (*storage, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := postgres.Connect(ctx, url)
	if err != nil {
		return nil, err
	}
	repo := postgres.NewRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &storage{store: repo, ready: repo, close: pool.Close}, nil
}
