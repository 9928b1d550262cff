package forecast_test

import (
	"testing"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
	"github.com/couchcryptid/reservoir-risk-service/internal/forecast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testScaler() forecast.ScalerParams {
	return forecast.ScalerParams{
		Min: [domain.NumFeatures]float64{0, 0, -10, 0},
		Max: [domain.NumFeatures]float64{1000, 50, 40, 200},
	}
}

func TestScalerParams_RoundTrip(t *testing.T) {
	p := testScaler()
	p.Min[domain.FeatureMeanFlow], p.Max[domain.FeatureMeanFlow] = 7, 7 // zero range

	values := []float64{-5, 0, 0.25, 7, 12.5, 333.3, 999.99, 1000, 1500}
	for feature := 0; feature < domain.NumFeatures; feature++ {
		for _, v := range values {
			got := p.Denormalize(feature, p.Normalize(feature, v))
			assert.InDelta(t, v, got, 1e-9, "feature %d value %g", feature, v)
		}
	}
}

func TestScalerParams_Normalize(t *testing.T) {
	p := testScaler()
	assert.InDelta(t, 0.5, p.Normalize(domain.FeatureLevel, 500), 1e-12)
	assert.InDelta(t, 0.2, p.Normalize(domain.FeatureTemperature, 0), 1e-12)
	assert.InDelta(t, 1.2, p.Normalize(domain.FeatureLevel, 1200), 1e-12, "out-of-range values are not clipped")

	p.Min[domain.FeatureMeanFlow], p.Max[domain.FeatureMeanFlow] = 7, 7
	assert.InDelta(t, 3.0, p.Normalize(domain.FeatureMeanFlow, 10), 1e-12, "zero range scales by 1")
}

func TestScalerParams_NormalizeRecordTreatsMissingAsZero(t *testing.T) {
	p := testScaler()
	feats := p.NormalizeRecord(domain.DailyRecord{Level: 250})
	assert.InDelta(t, 0.25, feats[domain.FeatureLevel], 1e-12)
	assert.InDelta(t, 0.0, feats[domain.FeaturePrecipitation], 1e-12)
	assert.InDelta(t, 0.2, feats[domain.FeatureTemperature], 1e-12)
	assert.InDelta(t, 0.0, feats[domain.FeatureMeanFlow], 1e-12)
}

const scalerYAML = `
stations:
  E001:
    features:
      - {name: level, min: 10, max: 654}
      - {name: precipitation, min: 0, max: 80}
      - {name: temperature, min: -5, max: 38}
      - {name: mean_flow, min: 0, max: 120}
  E002:
    features:
      - {name: level, min: 0, max: 100}
      - {name: precipitation, min: 0, max: 0}
      - {name: temperature, min: 0, max: 30}
      - {name: mean_flow, min: 1, max: 2}
`

func TestParseScalers(t *testing.T) {
	reg, err := forecast.ParseScalers([]byte(scalerYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"E001", "E002"}, reg.Stations())
	assert.Equal(t, 2, reg.Len())

	p, ok := reg.Scaler("E001")
	require.True(t, ok)
	assert.Equal(t, 10.0, p.Min[domain.FeatureLevel])
	assert.Equal(t, 654.0, p.Max[domain.FeatureLevel])
	assert.Equal(t, -5.0, p.Min[domain.FeatureTemperature])

	_, ok = reg.Scaler("E999")
	assert.False(t, ok)
}

func TestParseScalers_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "stations: {}"},
		{"malformed", "stations: ["},
		{"too few features", `
stations:
  E001:
    features:
      - {name: level, min: 0, max: 1}
`},
		{"wrong order", `
stations:
  E001:
    features:
      - {name: precipitation, min: 0, max: 1}
      - {name: level, min: 0, max: 1}
      - {name: temperature, min: 0, max: 1}
      - {name: mean_flow, min: 0, max: 1}
`},
		{"inverted range", `
stations:
  E001:
    features:
      - {name: level, min: 5, max: 1}
      - {name: precipitation, min: 0, max: 1}
      - {name: temperature, min: 0, max: 1}
      - {name: mean_flow, min: 0, max: 1}
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := forecast.ParseScalers([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestScalerRegistry_IsolatedFromInput(t *testing.T) {
	params := map[string]forecast.ScalerParams{"E001": testScaler()}
	reg := forecast.NewScalerRegistry(params)
	delete(params, "E001")

	_, ok := reg.Scaler("E001")
	assert.True(t, ok)
}
