package postgres

import (
	"context"
	"fmt"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
)

// Series returns the station history: every level day joined with the weather and flow
// measured that day. Missing weather or flow stays NULL. A station without level rows must
// still exist in the station table.
func (r *Repository) Series(ctx context.Context, station string) ([]domain.DailyRecord, error) {
	query := `
		SELECT l.day, l.level, w.precipitation, w.temperature, f.mean_flow
		FROM reservoir_level l
		LEFT JOIN weather_daily w ON w.station = l.station AND w.day = l.day
		LEFT JOIN flow_daily f ON f.station = l.station AND f.day = l.day
		WHERE l.station = $1
		ORDER BY l.day
	`
	rows, err := r.pool.Query(ctx, query, station)
	if err != nil {
		return nil, fmt.Errorf("postgres: query series: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyRecord
	for rows.Next() {
		var rec domain.DailyRecord
		if err := rows.Scan(&rec.Date, &rec.Level, &rec.Precipitation, &rec.Temperature, &rec.MeanFlow); err != nil {
			return nil, fmt.Errorf("postgres: scan series row: %w", err)
		}
		rec.Date = domain.TruncateDay(rec.Date)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: query series: %w", err)
	}
	if len(out) == 0 {
		if err := r.stationExists(ctx, station); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repository) stationExists(ctx context.Context, code string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM station WHERE code = $1)`, code).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check station: %w", err)
	}
	if !exists {
		return fmt.Errorf("station %q: %w", code, domain.ErrUnknownStation)
	}
	return nil
}
