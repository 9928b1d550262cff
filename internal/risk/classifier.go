// Package risk turns an operational forecast track into a RiskVerdict.
package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TrendDeadband is the fraction of the current level within which the final forecast
// value counts as unchanged.
const TrendDeadband = 0.02

// Input is everything the classifier needs for one evaluation.
type Input struct {
	Track    []float64
	Capacity float64
	MAE      *float64
	Current  float64
	Config   domain.ThresholdConfig
}

// Stats summarizes a track and its uncertainty band.
type Stats struct {
	Min         float64
	Mean        float64
	Max         float64
	ExpectedMin float64
	ExpectedMax float64
}

// Rule assigns Level when Applies holds. Rules are evaluated in order and the first match
// wins.
type Rule struct {
	Level   domain.RiskLevel
	Applies func(s Stats, th domain.Thresholds) bool
	// Probability returns the unclamped breach probability.
	Probability func(s Stats, th domain.Thresholds, capacity float64) float64
}

// DefaultRules returns the canonical priority: overflow pre-empts drought, which
// pre-empts the moderate band.
func DefaultRules() []Rule {
	return []Rule{
		{
			Level:   domain.RiskHigh,
			Applies: func(s Stats, th domain.Thresholds) bool { return s.ExpectedMax >= th.High },
			Probability: func(s Stats, th domain.Thresholds, capacity float64) float64 {
				return ratio(s.ExpectedMax-th.High, capacity-th.High)
			},
		},
		{
			Level:   domain.RiskDrought,
			Applies: func(s Stats, th domain.Thresholds) bool { return s.ExpectedMin <= th.Drought },
			Probability: func(s Stats, th domain.Thresholds, _ float64) float64 {
				return ratio(th.Drought-s.ExpectedMin, th.Drought)
			},
		},
		{
			Level:   domain.RiskModerate,
			Applies: func(s Stats, th domain.Thresholds) bool { return s.ExpectedMax >= th.Moderate },
			Probability: func(s Stats, th domain.Thresholds, _ float64) float64 {
				return ratio(s.ExpectedMax-th.Moderate, th.High-th.Moderate)
			},
		},
		{
			Level:       domain.RiskLow,
			Applies:     func(Stats, domain.Thresholds) bool { return true },
			Probability: func(Stats, domain.Thresholds, float64) float64 { return 0 },
		},
	}
}

// ratio divides and treats a zero-width band as certain.
func ratio(num, den float64) float64 {
	if den == 0 {
		return 1
	}
	return num / den
}

// Classifier applies an ordered rule list.
type Classifier struct {
	rules []Rule
}

// NewClassifier returns a classifier with the default rules.
func NewClassifier() *Classifier {
	return &Classifier{rules: DefaultRules()}
}

// NewClassifierWithRules returns a classifier over a custom rule list. A track matching
// no rule is LOW.
func NewClassifierWithRules(rules []Rule) *Classifier {
	return &Classifier{rules: append([]Rule(nil), rules...)}
}

// Classify computes the verdict for in. It fails only on an empty track or a
// non-positive capacity.
func (c *Classifier) Classify(in Input) (domain.RiskVerdict, error) {
	if len(in.Track) == 0 {
		return domain.RiskVerdict{}, errors.New("classify: empty forecast track")
	}
	if in.Capacity <= 0 {
		return domain.RiskVerdict{}, fmt.Errorf("classify: capacity %g: %w", in.Capacity, domain.ErrMissingCapacity)
	}

	s := Summarize(in.Track, in.MAE, in.Config.KSigma)
	th := in.Config.Absolute(in.Capacity)

	level, prob := domain.RiskLow, 0.0
	for _, r := range c.rules {
		if r.Applies(s, th) {
			level = r.Level
			if r.Probability != nil {
				prob = clamp01(r.Probability(s, th, in.Capacity))
			}
			break
		}
	}

	breaches := domain.BreachDays{
		High:     firstAtOrAbove(in.Track, th.High),
		Moderate: firstAtOrAbove(in.Track, th.Moderate),
		Drought:  firstAtOrBelow(in.Track, th.Drought),
	}

	v := domain.RiskVerdict{
		Level:        level,
		Severity:     level.Severity(),
		Color:        level.Color(),
		Probability:  prob,
		Breaches:     breaches,
		Alert:        alert(level, prob, in.Config),
		MinLevel:     s.Min,
		MeanLevel:    s.Mean,
		MaxLevel:     s.Max,
		ExpectedMin:  s.ExpectedMin,
		ExpectedMax:  s.ExpectedMax,
		CurrentLevel: in.Current,
		FinalLevel:   in.Track[len(in.Track)-1],
		Trend:        TrendOf(in.Current, in.Track[len(in.Track)-1]),
		Capacity:     in.Capacity,
		Thresholds:   th,
	}
	switch level {
	case domain.RiskHigh:
		v.DaysToBreach = breaches.High
	case domain.RiskModerate:
		v.DaysToBreach = breaches.Moderate
	case domain.RiskDrought:
		v.DaysToBreach = breaches.Drought
	}
	return v, nil
}

// Summarize computes the track statistics. With a known MAE the band widens by
// kSigma·MAE on both sides; otherwise it is the raw min and max.
func Summarize(track []float64, mae *float64, kSigma float64) Stats {
	s := Stats{
		Min:  floats.Min(track),
		Mean: stat.Mean(track, nil),
		Max:  floats.Max(track),
	}
	s.ExpectedMin, s.ExpectedMax = s.Min, s.Max
	if mae != nil {
		margin := kSigma * *mae
		s.ExpectedMin -= margin
		s.ExpectedMax += margin
	}
	return s
}

// TrendOf compares the final forecast value with the current level.
func TrendOf(current, final float64) domain.Trend {
	band := TrendDeadband * math.Abs(current)
	switch diff := final - current; {
	case diff > band:
		return domain.TrendRising
	case diff < -band:
		return domain.TrendFalling
	default:
		return domain.TrendStable
	}
}

func alert(level domain.RiskLevel, prob float64, cfg domain.ThresholdConfig) bool {
	switch level {
	case domain.RiskHigh, domain.RiskDrought:
		return prob >= cfg.ProbHigh
	case domain.RiskModerate:
		return prob >= cfg.ProbModerate
	default:
		return false
	}
}

// firstAtOrAbove returns the 1-based day of the first value >= threshold.
func firstAtOrAbove(track []float64, threshold float64) *int {
	for i, v := range track {
		if v >= threshold {
			day := i + 1
			return &day
		}
	}
	return nil
}

// firstAtOrBelow returns the 1-based day of the first value <= threshold.
func firstAtOrBelow(track []float64, threshold float64) *int {
	for i, v := range track {
		if v <= threshold {
			day := i + 1
			return &day
		}
	}
	return nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
