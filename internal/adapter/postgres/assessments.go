package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Record inserts an assessment. The full document is kept as JSONB next to the lookup
// columns.
func (r *Repository) Record(ctx context.Context, a domain.Assessment) error {
	if err := uuid.Validate(a.ID); err != nil {
		return fmt.Errorf("postgres: assessment id: %w", err)
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("postgres: encode assessment: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO assessment (id, station, anchor_date, horizon_days, risk_level, generated_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.Station, a.Anchor, a.Horizon, string(a.Verdict.Level), a.GeneratedAt, payload)
	if err != nil {
		return fmt.Errorf("postgres: insert assessment: %w", err)
	}
	return nil
}

// Latest returns the newest assessment for station, anchor and horizon generated at or
// after since.
func (r *Repository) Latest(ctx context.Context, station string, anchor time.Time, horizon int, since time.Time) (domain.Assessment, bool, error) {
	var payload []byte
	err := r.pool.QueryRow(ctx, `
		SELECT payload FROM assessment
		WHERE station = $1 AND anchor_date = $2 AND horizon_days = $3 AND generated_at >= $4
		ORDER BY generated_at DESC
		LIMIT 1
	`, station, anchor, horizon, since).Scan(&payload)
	if isNoRows(err) {
		return domain.Assessment{}, false, nil
	}
	if err != nil {
		return domain.Assessment{}, false, fmt.Errorf("postgres: query latest assessment: %w", err)
	}
	a, err := decodeAssessment(payload)
	if err != nil {
		return domain.Assessment{}, false, err
	}
	return a, true, nil
}

// LatestByStation returns the newest assessment of each listed station that has one.
func (r *Repository) LatestByStation(ctx context.Context, stations []string) ([]domain.Assessment, error) {
	if len(stations) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (station) payload
		FROM assessment
		WHERE station = ANY($1)
		ORDER BY station, generated_at DESC
	`, stations)
	if err != nil {
		return nil, fmt.Errorf("postgres: query latest assessments: %w", err)
	}
	return scanAssessments(rows)
}

// History returns up to limit assessments of station, newest first, restricted to level
// unless it is empty.
func (r *Repository) History(ctx context.Context, station string, limit int, level domain.RiskLevel) ([]domain.Assessment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT payload FROM assessment
		WHERE station = $1 AND ($2::text = '' OR risk_level = $2::text)
		ORDER BY generated_at DESC
		LIMIT $3
	`, station, string(level), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: query assessment history: %w", err)
	}
	return scanAssessments(rows)
}

func scanAssessments(rows pgx.Rows) ([]domain.Assessment, error) {
	defer rows.Close()

	var out []domain.Assessment
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("postgres: scan assessment row: %w", err)
		}
		a, err := decodeAssessment(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: query assessments: %w", err)
	}
	return out, nil
}

func decodeAssessment(payload []byte) (domain.Assessment, error) {
	var a domain.Assessment
	if err := json.Unmarshal(payload, &a); err != nil {
		return domain.Assessment{}, fmt.Errorf("postgres: decode assessment: %w", err)
	}
	return a, nil
}
