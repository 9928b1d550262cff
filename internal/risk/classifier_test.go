package risk_test

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
	"github.com/couchcryptid/reservoir-risk-service/internal/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestClassify_HighExample(t *testing.T) {
	v, err := risk.NewClassifier().Classify(risk.Input{
		Track:    []float64{630, 640, 650, 645},
		Capacity: 654,
		Current:  600,
		Config:   domain.DefaultThresholdConfig(),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.RiskHigh, v.Level)
	assert.Equal(t, 3, v.Severity)
	assert.Equal(t, "#FF5722", v.Color)
	assert.InDelta(t, 621.3, v.Thresholds.High, 1e-9)
	assert.InDelta(t, (650-621.3)/(654-621.3), v.Probability, 1e-9)
	assert.InDelta(t, 0.876, v.Probability, 0.002)
	require.NotNil(t, v.DaysToBreach)
	assert.Equal(t, 1, *v.DaysToBreach)
	assert.True(t, v.Alert)
	assert.Equal(t, domain.TrendRising, v.Trend)
	assert.Equal(t, 650.0, v.MaxLevel)
	assert.Equal(t, 630.0, v.MinLevel)
	assert.InDelta(t, 641.25, v.MeanLevel, 1e-9)
}

func TestClassify_FlatTrackIsStableWithNoBreaches(t *testing.T) {
	v, err := risk.NewClassifier().Classify(risk.Input{
		Track:    repeat(10, 7),
		Capacity: 20,
		Current:  10,
		Config:   domain.DefaultThresholdConfig(),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.RiskLow, v.Level)
	assert.Equal(t, domain.TrendStable, v.Trend)
	assert.Nil(t, v.DaysToBreach)
	assert.Nil(t, v.Breaches.High)
	assert.Nil(t, v.Breaches.Moderate)
	assert.Nil(t, v.Breaches.Drought)
	assert.Zero(t, v.Probability)
	assert.False(t, v.Alert)
}

func TestClassify_HighPreemptsDrought(t *testing.T) {
	tests := []struct {
		name  string
		track []float64
		mae   *float64
	}{
		{"raw band", []float64{650, 300, 100}, nil},
		{"expanded band", []float64{400, 420}, ptr(150)},
		{"crossing both thresholds", []float64{621.4, 196.1}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := risk.Input{Track: tt.track, Capacity: 654, MAE: tt.mae, Current: 400, Config: domain.DefaultThresholdConfig()}
			s := risk.Summarize(in.Track, in.MAE, in.Config.KSigma)
			th := in.Config.Absolute(in.Capacity)
			require.GreaterOrEqual(t, s.ExpectedMax, th.High)
			require.LessOrEqual(t, s.ExpectedMin, th.Drought)

			v, err := risk.NewClassifier().Classify(in)
			require.NoError(t, err)
			assert.Equal(t, domain.RiskHigh, v.Level)
		})
	}
}

func TestDefaultRules_Order(t *testing.T) {
	var levels []domain.RiskLevel
	for _, r := range risk.DefaultRules() {
		levels = append(levels, r.Level)
	}
	assert.Equal(t, []domain.RiskLevel{domain.RiskHigh, domain.RiskDrought, domain.RiskModerate, domain.RiskLow}, levels)
}

func TestClassifier_RuleOrderDecides(t *testing.T) {
	rules := risk.DefaultRules()
	rules[0], rules[1] = rules[1], rules[0]

	in := risk.Input{Track: []float64{650, 100}, Capacity: 654, Current: 400, Config: domain.DefaultThresholdConfig()}
	v, err := risk.NewClassifierWithRules(rules).Classify(in)
	require.NoError(t, err)
	assert.Equal(t, domain.RiskDrought, v.Level)
}

func TestClassifier_NoMatchingRuleIsLow(t *testing.T) {
	v, err := risk.NewClassifierWithRules(nil).Classify(risk.Input{
		Track: []float64{650}, Capacity: 654, Config: domain.DefaultThresholdConfig(),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskLow, v.Level)
}

func TestClassify_Drought(t *testing.T) {
	v, err := risk.NewClassifier().Classify(risk.Input{
		Track:    []float64{250, 210, 180, 100},
		Capacity: 654,
		Current:  260,
		Config:   domain.DefaultThresholdConfig(),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.RiskDrought, v.Level)
	assert.InDelta(t, (196.2-100)/196.2, v.Probability, 1e-9)
	require.NotNil(t, v.DaysToBreach)
	assert.Equal(t, 3, *v.DaysToBreach)
	assert.Equal(t, domain.TrendFalling, v.Trend)
	assert.False(t, v.Alert, "probability below prob_high")
}

func TestClassify_Moderate(t *testing.T) {
	v, err := risk.NewClassifier().Classify(risk.Input{
		Track:    []float64{780, 820, 850},
		Capacity: 1000,
		Current:  760,
		Config:   domain.DefaultThresholdConfig(),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.RiskModerate, v.Level)
	assert.InDelta(t, 50.0/150.0, v.Probability, 1e-9)
	require.NotNil(t, v.DaysToBreach)
	assert.Equal(t, 2, *v.DaysToBreach)
	assert.True(t, v.Alert)
	assert.Nil(t, v.Breaches.High)
}

func TestClassify_MAEWidensBand(t *testing.T) {
	in := risk.Input{Track: []float64{700, 720}, Capacity: 1000, Current: 700, Config: domain.DefaultThresholdConfig()}

	v, err := risk.NewClassifier().Classify(in)
	require.NoError(t, err)
	assert.Equal(t, domain.RiskLow, v.Level)

	in.MAE = ptr(50)
	v, err = risk.NewClassifier().Classify(in)
	require.NoError(t, err)
	assert.Equal(t, domain.RiskModerate, v.Level)
	assert.InDelta(t, 820.0, v.ExpectedMax, 1e-9)
	assert.InDelta(t, 600.0, v.ExpectedMin, 1e-9)
	assert.Nil(t, v.DaysToBreach, "raw track never reaches the moderate threshold")
}

func TestClassify_ZeroWidthBandIsCertain(t *testing.T) {
	cfg := domain.DefaultThresholdConfig()
	cfg.HighRatio = 1.0

	v, err := risk.NewClassifier().Classify(risk.Input{Track: []float64{100}, Capacity: 100, Current: 100, Config: cfg})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskHigh, v.Level)
	assert.Equal(t, 1.0, v.Probability)
}

func TestClassify_ProbabilityIsClamped(t *testing.T) {
	v, err := risk.NewClassifier().Classify(risk.Input{
		Track: []float64{900}, Capacity: 654, Current: 600, Config: domain.DefaultThresholdConfig(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.Probability)
}

func TestClassify_Errors(t *testing.T) {
	c := risk.NewClassifier()

	_, err := c.Classify(risk.Input{Capacity: 100, Config: domain.DefaultThresholdConfig()})
	assert.Error(t, err)

	_, err = c.Classify(risk.Input{Track: []float64{1}, Capacity: 0, Config: domain.DefaultThresholdConfig()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMissingCapacity))
}

func TestClassify_Totality(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	c := risk.NewClassifier()
	valid := map[domain.RiskLevel]bool{}
	for _, l := range domain.RiskLevels {
		valid[l] = true
	}

	for i := 0; i < 2000; i++ {
		capacity := 1 + rng.Float64()*1000
		track := make([]float64, 1+rng.IntN(30))
		for j := range track {
			track[j] = rng.Float64() * capacity * 1.2
		}
		var mae *float64
		if rng.IntN(2) == 0 {
			mae = ptr(rng.Float64() * capacity * 0.1)
		}

		v, err := c.Classify(risk.Input{Track: track, Capacity: capacity, MAE: mae, Current: track[0], Config: domain.DefaultThresholdConfig()})
		require.NoError(t, err)
		require.True(t, valid[v.Level], "level %q", v.Level)
		require.GreaterOrEqual(t, v.Probability, 0.0)
		require.LessOrEqual(t, v.Probability, 1.0)
		require.Equal(t, v.Level.Severity(), v.Severity)
	}
}

func TestTrendOf(t *testing.T) {
	tests := []struct {
		current, final float64
		want           domain.Trend
	}{
		{100, 101.5, domain.TrendStable},
		{100, 98.5, domain.TrendStable},
		{100, 102.5, domain.TrendRising},
		{100, 97.5, domain.TrendFalling},
		{0, 0, domain.TrendStable},
		{0, 0.1, domain.TrendRising},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, risk.TrendOf(tt.current, tt.final), "current=%g final=%g", tt.current, tt.final)
	}
}
