package forecast

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
	"gopkg.in/yaml.v3"
)

// ScalerParams holds the per-feature min-max range a station's model inputs were fitted on.
type ScalerParams struct {
	Min [domain.NumFeatures]float64
	Max [domain.NumFeatures]float64
}

// span returns the feature range, or 1 when the range is zero.
func (p ScalerParams) span(feature int) float64 {
	r := p.Max[feature] - p.Min[feature]
	if r == 0 {
		return 1
	}
	return r
}

// Normalize maps a raw feature value onto the fitted [0,1] range. Values outside the
// fitted range are not clipped.
func (p ScalerParams) Normalize(feature int, v float64) float64 {
	return (v - p.Min[feature]) / p.span(feature)
}

// Denormalize is the inverse of Normalize.
func (p ScalerParams) Denormalize(feature int, v float64) float64 {
	return v*p.span(feature) + p.Min[feature]
}

// NormalizeRecord normalizes every feature of a record.
func (p ScalerParams) NormalizeRecord(r domain.DailyRecord) [domain.NumFeatures]float64 {
	feats := r.Features()
	for i := range feats {
		feats[i] = p.Normalize(i, feats[i])
	}
	return feats
}

// ScalerRegistry maps station codes to their scaler parameters. It is immutable once built.
type ScalerRegistry struct {
	scalers map[string]ScalerParams
}

// NewScalerRegistry copies params into a new registry.
func NewScalerRegistry(params map[string]ScalerParams) *ScalerRegistry {
	m := make(map[string]ScalerParams, len(params))
	for code, p := range params {
		m[code] = p
	}
	return &ScalerRegistry{scalers: m}
}

// Scaler returns the parameters for a station.
func (r *ScalerRegistry) Scaler(station string) (ScalerParams, bool) {
	p, ok := r.scalers[station]
	return p, ok
}

// Stations returns the sorted codes of every station with a scaler.
func (r *ScalerRegistry) Stations() []string {
	codes := make([]string, 0, len(r.scalers))
	for code := range r.scalers {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Len returns the number of registered stations.
func (r *ScalerRegistry) Len() int { return len(r.scalers) }

type scalerFile struct {
	Stations map[string]struct {
		Features []struct {
			Name string  `yaml:"name"`
			Min  float64 `yaml:"min"`
			Max  float64 `yaml:"max"`
		} `yaml:"features"`
	} `yaml:"stations"`
}

// LoadScalers reads a YAML scaler artifact.
func LoadScalers(path string) (*ScalerRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scalers: %w", err)
	}
	return ParseScalers(data)
}

// ParseScalers decodes a YAML scaler artifact. Each station must list the four model
// features in order with max >= min.
func ParseScalers(data []byte) (*ScalerRegistry, error) {
	var file scalerFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode scalers: %w", err)
	}
	if len(file.Stations) == 0 {
		return nil, errors.New("decode scalers: no stations")
	}

	params := make(map[string]ScalerParams, len(file.Stations))
	for code, st := range file.Stations {
		if len(st.Features) != domain.NumFeatures {
			return nil, fmt.Errorf("scaler %s: want %d features, got %d", code, domain.NumFeatures, len(st.Features))
		}
		var p ScalerParams
		for i, f := range st.Features {
			if f.Name != domain.FeatureNames[i] {
				return nil, fmt.Errorf("scaler %s: feature %d is %q, want %q", code, i, f.Name, domain.FeatureNames[i])
			}
			if f.Max < f.Min {
				return nil, fmt.Errorf("scaler %s: feature %s has max %g < min %g", code, f.Name, f.Max, f.Min)
			}
			p.Min[i], p.Max[i] = f.Min, f.Max
		}
		params[code] = p
	}
	return NewScalerRegistry(params), nil
}
