package memory

import (
	"fmt"
	"os"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
	"github.com/couchcryptid/reservoir-risk-service/internal/recommend"
	"gopkg.in/yaml.v3"
)

type fixtureFile struct {
	Stations   []fixtureStation           `yaml:"stations"`
	Series     map[string][]fixtureRecord `yaml:"series"`
	Thresholds fixtureThresholds          `yaml:"thresholds"`
	Templates  recommend.RuleSet          `yaml:"templates"`
}

type fixtureStation struct {
	Code        string   `yaml:"code"`
	Name        string   `yaml:"name"`
	Capacity    float64  `yaml:"capacity"`
	BasinID     string   `yaml:"basin_id"`
	ProvinceID  string   `yaml:"province_id"`
	CommunityID string   `yaml:"community_id"`
	MAE         *float64 `yaml:"mae"`
	RMSE        *float64 `yaml:"rmse"`
}

type fixtureRecord struct {
	Date          string   `yaml:"date"`
	Level         float64  `yaml:"level"`
	Precipitation *float64 `yaml:"precipitation"`
	Temperature   *float64 `yaml:"temperature"`
	MeanFlow      *float64 `yaml:"mean_flow"`
}

type fixtureThresholds struct {
	Global   *domain.ThresholdConfig           `yaml:"global"`
	Stations map[string]domain.ThresholdConfig `yaml:"stations"`
}

// LoadFixture builds a Store from a YAML fixture file.
func LoadFixture(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture builds a Store from fixture YAML. Stations need a code; series and
// thresholds may reference only declared stations.
func ParseFixture(data []byte) (*Store, error) {
	var f fixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}

	s := NewStore()
	for i, fs := range f.Stations {
		if fs.Code == "" {
			return nil, fmt.Errorf("parse fixture: station %d has no code", i)
		}
		s.PutStation(domain.Station{
			Code:        fs.Code,
			Name:        fs.Name,
			Capacity:    fs.Capacity,
			BasinID:     fs.BasinID,
			ProvinceID:  fs.ProvinceID,
			CommunityID: fs.CommunityID,
			MAE:         fs.MAE,
			RMSE:        fs.RMSE,
		})
	}

	for code, recs := range f.Series {
		if _, ok := s.stations[code]; !ok {
			return nil, fmt.Errorf("parse fixture: series for undeclared station %q", code)
		}
		records := make([]domain.DailyRecord, len(recs))
		for i, r := range recs {
			date, err := domain.ParseDate(r.Date)
			if err != nil {
				return nil, fmt.Errorf("parse fixture: series %s[%d]: %w", code, i, err)
			}
			records[i] = domain.DailyRecord{
				Date:          date,
				Level:         r.Level,
				Precipitation: r.Precipitation,
				Temperature:   r.Temperature,
				MeanFlow:      r.MeanFlow,
			}
		}
		s.PutSeries(code, records)
	}

	if f.Thresholds.Global != nil {
		s.PutThresholds("", *f.Thresholds.Global)
	}
	for code, cfg := range f.Thresholds.Stations {
		if _, ok := s.stations[code]; !ok {
			return nil, fmt.Errorf("parse fixture: thresholds for undeclared station %q", code)
		}
		s.PutThresholds(code, cfg)
	}

	if err := f.Templates.Validate(); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	s.PutTemplates(f.Templates)
	return s, nil
}
