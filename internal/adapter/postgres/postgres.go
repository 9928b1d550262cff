// Package postgres implements the service stores on PostgreSQL through pgxpool.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads series, stations, thresholds and templates and records assessments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps an open pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Connect opens a pool and verifies connectivity.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// CheckReadiness pings the database.
func (r *Repository) CheckReadiness(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS station (
		code          TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		capacity      DOUBLE PRECISION NOT NULL,
		basin_id      TEXT,
		province_id   TEXT,
		community_id  TEXT,
		mae           DOUBLE PRECISION,
		rmse          DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS reservoir_level (
		station  TEXT NOT NULL REFERENCES station(code),
		day      DATE NOT NULL,
		level    DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (station, day)
	)`,
	`CREATE TABLE IF NOT EXISTS weather_daily (
		station        TEXT NOT NULL REFERENCES station(code),
		day            DATE NOT NULL,
		precipitation  DOUBLE PRECISION,
		temperature    DOUBLE PRECISION,
		PRIMARY KEY (station, day)
	)`,
	`CREATE TABLE IF NOT EXISTS flow_daily (
		station    TEXT NOT NULL REFERENCES station(code),
		day        DATE NOT NULL,
		mean_flow  DOUBLE PRECISION,
		PRIMARY KEY (station, day)
	)`,
	`CREATE TABLE IF NOT EXISTS threshold_config (
		id              BIGSERIAL PRIMARY KEY,
		station         TEXT REFERENCES station(code),
		high_ratio      DOUBLE PRECISION NOT NULL,
		moderate_ratio  DOUBLE PRECISION NOT NULL,
		drought_ratio   DOUBLE PRECISION NOT NULL,
		horizon_days    INTEGER NOT NULL,
		k_sigma         DOUBLE PRECISION NOT NULL,
		prob_moderate   DOUBLE PRECISION NOT NULL,
		prob_high       DOUBLE PRECISION NOT NULL,
		active          BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS recommendation_template (
		id           BIGSERIAL PRIMARY KEY,
		risk_level   TEXT NOT NULL,
		kind         TEXT NOT NULL,
		body         TEXT NOT NULL,
		min_pct      DOUBLE PRECISION,
		max_pct      DOUBLE PRECISION,
		trend        TEXT,
		priority     INTEGER NOT NULL DEFAULT 0,
		active       BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS assessment (
		id            UUID PRIMARY KEY,
		station       TEXT NOT NULL,
		anchor_date   DATE NOT NULL,
		horizon_days  INTEGER NOT NULL,
		risk_level    TEXT NOT NULL,
		generated_at  TIMESTAMPTZ NOT NULL,
		payload       JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_assessment_lookup
		ON assessment (station, anchor_date, horizon_days, generated_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_assessment_history
		ON assessment (station, generated_at DESC)`,
}

// Migrate creates the tables when they do not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}

func isNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }
