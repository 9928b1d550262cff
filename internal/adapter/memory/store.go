// Package memory provides in-process stores for running without a database. Contents
// are seeded from a YAML fixture and assessments are kept only for the process lifetime.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
	"github.com/couchcryptid/reservoir-risk-service/internal/recommend"
)

// Store implements the series, station, threshold, template and assessment stores.
type Store struct {
	mu          sync.RWMutex
	stations    map[string]domain.Station
	series      map[string][]domain.DailyRecord
	global      *domain.ThresholdConfig
	perStation  map[string]domain.ThresholdConfig
	templates   recommend.RuleSet
	assessments map[string][]domain.Assessment
	lastID      int64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		stations:    make(map[string]domain.Station),
		series:      make(map[string][]domain.DailyRecord),
		perStation:  make(map[string]domain.ThresholdConfig),
		assessments: make(map[string][]domain.Assessment),
	}
}

// PutStation adds or replaces a station.
func (s *Store) PutStation(st domain.Station) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stations[st.Code] = st
}

// PutSeries replaces the history of a station.
func (s *Store) PutSeries(station string, records []domain.DailyRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[station] = domain.NormalizeSeries(records)
}

// PutThresholds stores a station configuration, or the global one when station is empty.
// The configuration gets a fresh ID.
func (s *Store) PutThresholds(station string, cfg domain.ThresholdConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putThresholds(station, cfg)
}

func (s *Store) putThresholds(station string, cfg domain.ThresholdConfig) domain.ThresholdConfig {
	s.lastID++
	id := s.lastID
	cfg.ID = &id
	if station == "" {
		s.global = &cfg
	} else {
		s.perStation[station] = cfg
	}
	return cfg
}

// PutTemplates replaces the template rules.
func (s *Store) PutTemplates(rules recommend.RuleSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates = slices.Clone(rules)
}

// Series returns a copy of the station history. A known station may have none.
func (s *Store) Series(_ context.Context, station string) ([]domain.DailyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records, ok := s.series[station]
	if _, known := s.stations[station]; !ok && !known {
		return nil, fmt.Errorf("series %q: %w", station, domain.ErrUnknownStation)
	}
	return slices.Clone(records), nil
}

// Station returns station metadata or domain.ErrUnknownStation.
func (s *Store) Station(_ context.Context, code string) (domain.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stations[code]
	if !ok {
		return domain.Station{}, fmt.Errorf("station %q: %w", code, domain.ErrUnknownStation)
	}
	return st, nil
}

// StationsInRegion lists the stations of a region ordered by code.
func (s *Store) StationsInRegion(_ context.Context, rt domain.RegionType, id string) ([]domain.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Station
	for _, st := range s.stations {
		if regionID(st, rt) == id {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func regionID(st domain.Station, rt domain.RegionType) string {
	switch rt {
	case domain.RegionCommunity:
		return st.CommunityID
	case domain.RegionProvince:
		return st.ProvinceID
	case domain.RegionBasin:
		return st.BasinID
	default:
		return ""
	}
}

func (s *Store) StationConfig(_ context.Context, station string) (domain.ThresholdConfig, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.perStation[station]
	return cfg, ok, nil
}

func (s *Store) GlobalConfig(_ context.Context) (domain.ThresholdConfig, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.global == nil {
		return domain.ThresholdConfig{}, false, nil
	}
	return *s.global, true, nil
}

// SaveConfig replaces the active configuration of a station, or the global one when station
// is empty.
func (s *Store) SaveConfig(_ context.Context, station string, cfg domain.ThresholdConfig) (domain.ThresholdConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putThresholds(station, cfg), nil
}

// DeactivateConfig drops the configuration with the given ID.
func (s *Store) DeactivateConfig(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.global != nil && *s.global.ID == id {
		s.global = nil
		return nil
	}
	for station, cfg := range s.perStation {
		if *cfg.ID == id {
			delete(s.perStation, station)
			return nil
		}
	}
	return fmt.Errorf("threshold config %d: %w", id, domain.ErrConfigNotFound)
}

func (s *Store) Template(ctx context.Context, level domain.RiskLevel, pct float64, trend domain.Trend) (domain.Template, bool, error) {
	s.mu.RLock()
	rules := s.templates
	s.mu.RUnlock()
	return rules.Template(ctx, level, pct, trend)
}

// Record appends an assessment to the station's history.
func (s *Store) Record(_ context.Context, a domain.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessments[a.Station] = append(s.assessments[a.Station], a)
	return nil
}

// Latest returns the newest assessment for station, anchor and horizon generated at or
// after since.
func (s *Store) Latest(_ context.Context, station string, anchor time.Time, horizon int, since time.Time) (domain.Assessment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		best  domain.Assessment
		found bool
	)
	for _, a := range s.assessments[station] {
		if !a.Anchor.Equal(anchor) || a.Horizon != horizon || a.GeneratedAt.Before(since) {
			continue
		}
		if !found || a.GeneratedAt.After(best.GeneratedAt) {
			best, found = a, true
		}
	}
	return best, found, nil
}

// LatestByStation returns the newest assessment of each listed station that has one.
func (s *Store) LatestByStation(_ context.Context, stations []string) ([]domain.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Assessment, 0, len(stations))
	for _, code := range stations {
		history := s.assessments[code]
		if len(history) == 0 {
			continue
		}
		newest := history[0]
		for _, a := range history[1:] {
			if a.GeneratedAt.After(newest.GeneratedAt) {
				newest = a
			}
		}
		out = append(out, newest)
	}
	return out, nil
}

// History returns up to limit assessments of station, newest first, restricted to level
// unless it is empty. A non-positive limit returns all of them.
func (s *Store) History(_ context.Context, station string, limit int, level domain.RiskLevel) ([]domain.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Assessment
	for _, a := range s.assessments[station] {
		if level == "" || a.Verdict.Level == level {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].GeneratedAt.After(out[j].GeneratedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Stations lists every station code in sorted order.
func (s *Store) Stations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	codes := make([]string, 0, len(s.stations))
	for code := range s.stations {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
