package domain

import (
	"fmt"
	"time"
)

// Station describes a monitored reservoir.
type Station struct {
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	Capacity    float64  `json:"capacity"`
	BasinID     string   `json:"basin_id,omitempty"`
	ProvinceID  string   `json:"province_id,omitempty"`
	CommunityID string   `json:"community_id,omitempty"`
	MAE         *float64 `json:"mae,omitempty"`  // historical mean absolute error of the model
	RMSE        *float64 `json:"rmse,omitempty"` // historical root mean squared error
}

// RecommendationSource tells whether text came from a stored template or the built-in
// fallback.
type RecommendationSource string

const (
	SourceTemplate RecommendationSource = "template"
	SourceFallback RecommendationSource = "fallback"
)

// Template is a stored recommendation text pair with named placeholders.
type Template struct {
	Reason string `json:"reason" yaml:"reason"`
	Action string `json:"action" yaml:"action"`
}

// Recommendation is the explanatory text attached to a verdict.
type Recommendation struct {
	Reason string               `json:"reason"`
	Action string               `json:"action"`
	Source RecommendationSource `json:"source"`
}

// Assessment is a complete evaluation of one station at one anchor date.
type Assessment struct {
	ID             string         `json:"id"`
	Station        string         `json:"station"`
	StationName    string         `json:"station_name,omitempty"`
	GeneratedAt    time.Time      `json:"generated_at"`
	Anchor         time.Time      `json:"anchor_date"`
	Horizon        int            `json:"horizon_days"`
	Verdict        RiskVerdict    `json:"verdict"`
	Recommendation Recommendation `json:"recommendation"`
	MAE            *float64       `json:"mae,omitempty"`
	RMSE           *float64       `json:"rmse,omitempty"`
	ConfigID       *int64         `json:"config_id,omitempty"`
	ModelVersion   string         `json:"model_version,omitempty"`
}

// FreshAt reports whether the assessment was generated within window of now.
func (a Assessment) FreshAt(now time.Time, window time.Duration) bool {
	return !a.GeneratedAt.IsZero() && now.Sub(a.GeneratedAt) <= window
}

// RegionType selects the administrative grouping for a region roll-up.
type RegionType string

const (
	RegionCommunity RegionType = "community"
	RegionProvince  RegionType = "province"
	RegionBasin     RegionType = "basin"
)

// ParseRegionType validates a region type name.
func ParseRegionType(s string) (RegionType, error) {
	switch t := RegionType(s); t {
	case RegionCommunity, RegionProvince, RegionBasin:
		return t, nil
	default:
		return "", fmt.Errorf("region type %q: %w", s, ErrInvalidRegion)
	}
}

// RegionSummary aggregates the latest assessments of every station in a region.
type RegionSummary struct {
	Type            RegionType        `json:"type"`
	ID              string            `json:"id"`
	TotalStations   int               `json:"total_stations"`
	Assessed        int               `json:"assessed"`
	Counts          map[RiskLevel]int `json:"counts"`
	CriticalPercent float64           `json:"critical_percent"`
	Critical        []Assessment      `json:"critical"`
	LastGeneratedAt time.Time         `json:"last_generated_at,omitempty"`
}
