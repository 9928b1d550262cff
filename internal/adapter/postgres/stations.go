package postgres

import (
	"context"
	"fmt"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
)

const stationColumns = `code, name, capacity, COALESCE(basin_id, ''), COALESCE(province_id, ''),
	COALESCE(community_id, ''), mae, rmse`

type scanner interface {
	Scan(dest ...any) error
}

func scanStation(row scanner) (domain.Station, error) {
	var st domain.Station
	err := row.Scan(&st.Code, &st.Name, &st.Capacity, &st.BasinID, &st.ProvinceID,
		&st.CommunityID, &st.MAE, &st.RMSE)
	return st, err
}

// Station returns station metadata or domain.ErrUnknownStation.
func (r *Repository) Station(ctx context.Context, code string) (domain.Station, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+stationColumns+` FROM station WHERE code = $1`, code)
	st, err := scanStation(row)
	if isNoRows(err) {
		return domain.Station{}, fmt.Errorf("station %q: %w", code, domain.ErrUnknownStation)
	}
	if err != nil {
		return domain.Station{}, fmt.Errorf("postgres: query station: %w", err)
	}
	return st, nil
}

// regionColumn maps a region type to its station column. Callers pass a parsed type.
func regionColumn(rt domain.RegionType) (string, error) {
	switch rt {
	case domain.RegionCommunity:
		return "community_id", nil
	case domain.RegionProvince:
		return "province_id", nil
	case domain.RegionBasin:
		return "basin_id", nil
	default:
		return "", fmt.Errorf("region type %q: %w", rt, domain.ErrInvalidRegion)
	}
}

// StationsInRegion lists the stations of a region ordered by code.
func (r *Repository) StationsInRegion(ctx context.Context, rt domain.RegionType, id string) ([]domain.Station, error) {
	col, err := regionColumn(rt)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+stationColumns+` FROM station WHERE `+col+` = $1 ORDER BY code`, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: query region stations: %w", err)
	}
	defer rows.Close()

	var out []domain.Station
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan station row: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: query region stations: %w", err)
	}
	return out, nil
}
