package domain

import (
	"errors"
	"fmt"
)

// RiskLevel is the operational verdict for a station.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskModerate RiskLevel = "MODERATE"
	RiskHigh     RiskLevel = "HIGH"
	RiskDrought  RiskLevel = "DROUGHT"
)

// RiskLevels lists every level in severity order.
var RiskLevels = []RiskLevel{RiskLow, RiskModerate, RiskHigh, RiskDrought}

// Severity returns the 1–4 severity rank, 0 for unknown levels.
func (l RiskLevel) Severity() int {
	switch l {
	case RiskLow:
		return 1
	case RiskModerate:
		return 2
	case RiskHigh:
		return 3
	case RiskDrought:
		return 4
	default:
		return 0
	}
}

// ParseRiskLevel validates a level name.
func ParseRiskLevel(s string) (RiskLevel, error) {
	l := RiskLevel(s)
	if l.Severity() == 0 {
		return "", fmt.Errorf("risk level %q: %w", s, ErrInvalidRiskLevel)
	}
	return l, nil
}

// Color returns the display color for the level.
func (l RiskLevel) Color() string {
	switch l {
	case RiskLow:
		return "#4CAF50"
	case RiskModerate:
		return "#FFC107"
	case RiskHigh:
		return "#FF5722"
	case RiskDrought:
		return "#795548"
	default:
		return ""
	}
}

// Critical reports whether the level needs immediate operator attention.
func (l RiskLevel) Critical() bool {
	return l == RiskHigh || l == RiskDrought
}

// Trend describes the direction of the forecast relative to the current level.
type Trend string

const (
	TrendStable  Trend = "STABLE"
	TrendRising  Trend = "RISING"
	TrendFalling Trend = "FALLING"
)

// Default threshold configuration, applied when no stored configuration exists.
const (
	DefaultHighRatio     = 0.95
	DefaultModerateRatio = 0.80
	DefaultDroughtRatio  = 0.30
	DefaultHorizonDays   = 7
	DefaultKSigma        = 2.0
	DefaultProbModerate  = 0.30
	DefaultProbHigh      = 0.50
)

// ThresholdConfig holds the classification thresholds for a station. Ratios are fractions
// of station capacity.
type ThresholdConfig struct {
	ID            *int64  `json:"id,omitempty"`
	HighRatio     float64 `json:"high_ratio" yaml:"high_ratio"`
	ModerateRatio float64 `json:"moderate_ratio" yaml:"moderate_ratio"`
	DroughtRatio  float64 `json:"drought_ratio" yaml:"drought_ratio"`
	HorizonDays   int     `json:"horizon_days" yaml:"horizon_days"`
	KSigma        float64 `json:"k_sigma" yaml:"k_sigma"`
	ProbModerate  float64 `json:"prob_moderate" yaml:"prob_moderate"`
	ProbHigh      float64 `json:"prob_high" yaml:"prob_high"`
}

// DefaultThresholdConfig returns the hard-coded fallback configuration.
func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		HighRatio:     DefaultHighRatio,
		ModerateRatio: DefaultModerateRatio,
		DroughtRatio:  DefaultDroughtRatio,
		HorizonDays:   DefaultHorizonDays,
		KSigma:        DefaultKSigma,
		ProbModerate:  DefaultProbModerate,
		ProbHigh:      DefaultProbHigh,
	}
}

// Validate checks 0 ≤ drought < moderate < high ≤ 1 and the remaining ranges.
func (c ThresholdConfig) Validate() error {
	var errs []error
	if !(c.DroughtRatio >= 0 && c.DroughtRatio < c.ModerateRatio && c.ModerateRatio < c.HighRatio && c.HighRatio <= 1.0) {
		errs = append(errs, fmt.Errorf("ratios must satisfy 0 <= drought (%g) < moderate (%g) < high (%g) <= 1",
			c.DroughtRatio, c.ModerateRatio, c.HighRatio))
	}
	if c.HorizonDays < 1 {
		errs = append(errs, fmt.Errorf("horizon_days must be positive, got %d", c.HorizonDays))
	}
	if c.KSigma < 0 {
		errs = append(errs, fmt.Errorf("k_sigma must be non-negative, got %g", c.KSigma))
	}
	if c.ProbModerate < 0 || c.ProbModerate > 1 || c.ProbHigh < 0 || c.ProbHigh > 1 {
		errs = append(errs, errors.New("probability thresholds must be within [0, 1]"))
	}
	return errors.Join(errs...)
}

// Thresholds are the absolute levels derived from a ThresholdConfig and a capacity.
type Thresholds struct {
	High     float64 `json:"high"`
	Moderate float64 `json:"moderate"`
	Drought  float64 `json:"drought"`
}

// Absolute converts the ratios into levels for the given capacity.
func (c ThresholdConfig) Absolute(capacity float64) Thresholds {
	return Thresholds{
		High:     c.HighRatio * capacity,
		Moderate: c.ModerateRatio * capacity,
		Drought:  c.DroughtRatio * capacity,
	}
}

// BreachDays holds the 1-based forecast day on which each threshold is first crossed.
// Nil means the track never crosses it.
type BreachDays struct {
	High     *int `json:"high,omitempty"`
	Moderate *int `json:"moderate,omitempty"`
	Drought  *int `json:"drought,omitempty"`
}

// RiskVerdict is the classification of one operational forecast track.
type RiskVerdict struct {
	Level        RiskLevel  `json:"level"`
	Severity     int        `json:"severity"`
	Color        string     `json:"color"`
	Probability  float64    `json:"breach_probability"`
	DaysToBreach *int       `json:"days_to_breach,omitempty"`
	Breaches     BreachDays `json:"breaches"`
	Alert        bool       `json:"alert"`

	MinLevel     float64 `json:"min_level"`
	MeanLevel    float64 `json:"mean_level"`
	MaxLevel     float64 `json:"max_level"`
	ExpectedMin  float64 `json:"expected_min"`
	ExpectedMax  float64 `json:"expected_max"`
	CurrentLevel float64 `json:"current_level"`
	FinalLevel   float64 `json:"final_level"`
	Trend        Trend   `json:"trend"`

	Capacity   float64    `json:"capacity"`
	Thresholds Thresholds `json:"thresholds"`
}

// PercentOfCapacity returns the mean predicted level as a percentage of capacity.
func (v RiskVerdict) PercentOfCapacity() float64 {
	if v.Capacity <= 0 {
		return 0
	}
	return v.MeanLevel / v.Capacity * 100
}
