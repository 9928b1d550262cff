package postgres

import (
	"context"
	"fmt"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
	"github.com/jackc/pgx/v5"
)

const thresholdColumns = `id, high_ratio, moderate_ratio, drought_ratio, horizon_days, k_sigma,
	prob_moderate, prob_high`

func scanThresholds(row scanner) (domain.ThresholdConfig, error) {
	var (
		cfg domain.ThresholdConfig
		id  int64
	)
	err := row.Scan(&id, &cfg.HighRatio, &cfg.ModerateRatio, &cfg.DroughtRatio, &cfg.HorizonDays,
		&cfg.KSigma, &cfg.ProbModerate, &cfg.ProbHigh)
	cfg.ID = &id
	return cfg, err
}

// StationConfig returns the newest active configuration row of a station.
func (r *Repository) StationConfig(ctx context.Context, station string) (domain.ThresholdConfig, bool, error) {
	return r.thresholdRow(ctx, `
		SELECT `+thresholdColumns+` FROM threshold_config
		WHERE station = $1 AND active
		ORDER BY updated_at DESC
		LIMIT 1
	`, station)
}

// GlobalConfig returns the newest active configuration row without a station.
func (r *Repository) GlobalConfig(ctx context.Context) (domain.ThresholdConfig, bool, error) {
	return r.thresholdRow(ctx, `
		SELECT `+thresholdColumns+` FROM threshold_config
		WHERE station IS NULL AND active
		ORDER BY updated_at DESC
		LIMIT 1
	`)
}

func (r *Repository) thresholdRow(ctx context.Context, query string, args ...any) (domain.ThresholdConfig, bool, error) {
	cfg, err := scanThresholds(r.pool.QueryRow(ctx, query, args...))
	if isNoRows(err) {
		return domain.ThresholdConfig{}, false, nil
	}
	if err != nil {
		return domain.ThresholdConfig{}, false, fmt.Errorf("postgres: query thresholds: %w", err)
	}
	return cfg, true, nil
}

// SaveConfig retires the active rows of the scope and inserts cfg as the new active row.
// An empty station targets the global scope.
func (r *Repository) SaveConfig(ctx context.Context, station string, cfg domain.ThresholdConfig) (domain.ThresholdConfig, error) {
	var scope any
	if station != "" {
		scope = station
	}

	var id int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE threshold_config SET active = FALSE, updated_at = now()
			WHERE station IS NOT DISTINCT FROM $1::text AND active
		`, scope); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO threshold_config (station, high_ratio, moderate_ratio, drought_ratio, horizon_days,
				k_sigma, prob_moderate, prob_high)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`, scope, cfg.HighRatio, cfg.ModerateRatio, cfg.DroughtRatio, cfg.HorizonDays,
			cfg.KSigma, cfg.ProbModerate, cfg.ProbHigh).Scan(&id)
	})
	if err != nil {
		return domain.ThresholdConfig{}, fmt.Errorf("postgres: save thresholds: %w", err)
	}
	cfg.ID = &id
	return cfg, nil
}

// DeactivateConfig marks a configuration row inactive. Rows are never deleted.
func (r *Repository) DeactivateConfig(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE threshold_config SET active = FALSE, updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("postgres: deactivate thresholds: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("threshold config %d: %w", id, domain.ErrConfigNotFound)
	}
	return nil
}
