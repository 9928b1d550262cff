package main

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSeriesCSV(t *testing.T) {
	in := `date,level,precipitation,temperature,mean_flow
2024-01-01,500.5,1.2,8.5,30
2024-01-02,501,,9.1,
`
	records, err := readSeriesCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), records[0].Date)
	assert.InDelta(t, 500.5, records[0].Level, 1e-9)
	require.NotNil(t, records[0].MeanFlow)
	assert.InDelta(t, 30, *records[0].MeanFlow, 1e-9)

	assert.Nil(t, records[1].Precipitation)
	assert.Nil(t, records[1].MeanFlow)
	require.NotNil(t, records[1].Temperature)
	assert.InDelta(t, 9.1, *records[1].Temperature, 1e-9)
}

func TestReadSeriesCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"header only", "date,level,precipitation,temperature,mean_flow\n", "no data rows"},
		{"missing column", "date,level\n2024-01-01,1\n", `"precipitation"`},
		{"bad date", "date,level,precipitation,temperature,mean_flow\n01/01/2024,1,,,\n", "line 2"},
		{"bad level", "date,level,precipitation,temperature,mean_flow\n2024-01-01,high,,,\n", "level"},
		{"bad weather", "date,level,precipitation,temperature,mean_flow\n2024-01-01,1,x,,\n", "precipitation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readSeriesCSV(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// offsetForecaster predicts observed+offset for every observed day and refuses anchors
// before earliest.
type offsetForecaster struct {
	earliest time.Time
	offset   float64
	calls    int
}

func (f *offsetForecaster) Forecast(_ context.Context, station string, anchor time.Time, horizon int) (domain.Forecast, error) {
	f.calls++
	if anchor.Before(f.earliest) {
		return domain.Forecast{}, domain.ErrDateTooEarly
	}
	fc := domain.Forecast{Station: station, Anchor: anchor, Horizon: horizon}
	hist := make([]float64, horizon)
	oper := make([]float64, horizon)
	fc.Observed = make([]*float64, horizon)
	for i := range horizon {
		obs := 100.0
		if i == horizon-1 {
			continue
		}
		fc.Observed[i] = &obs
		hist[i] = obs + f.offset
		oper[i] = obs - f.offset/2
	}
	fc.Historical = domain.ForecastTrack{Scenario: domain.ScenarioHistorical, Levels: hist}
	fc.Operational = domain.ForecastTrack{Scenario: domain.ScenarioOperational, Levels: oper}
	return fc, nil
}

func TestBacktest(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := &offsetForecaster{earliest: from.AddDate(0, 0, 7), offset: 4}

	rep, err := backtest(context.Background(), f, "E001", window{
		from:    from,
		to:      from.AddDate(0, 0, 21),
		step:    7,
		horizon: 5,
	})
	require.NoError(t, err)

	assert.Equal(t, 4, f.calls)
	assert.Equal(t, 3, rep.anchors)
	assert.Equal(t, 1, rep.skipped)

	hist := rep.errs[domain.ScenarioHistorical]
	assert.Equal(t, 12, hist.count(), "unobserved days are not scored")
	assert.InDelta(t, 4, hist.mae(), 1e-9)
	assert.InDelta(t, 4, hist.rmse(), 1e-9)
	assert.InDelta(t, 2, rep.errs[domain.ScenarioOperational].mae(), 1e-9)
}

func TestBacktest_Errors(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := backtest(context.Background(), &offsetForecaster{}, "E001", window{from: from, to: from, step: 0, horizon: 1})
	require.Error(t, err)

	_, err = backtest(context.Background(), &offsetForecaster{}, "E001", window{from: from, to: from.AddDate(0, 0, -1), step: 1, horizon: 1})
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = backtest(ctx, &offsetForecaster{}, "E001", window{from: from, to: from, step: 1, horizon: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBacktest_ForecastFailureStops(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := failingForecaster{err: domain.ErrUnknownStation}

	_, err := backtest(context.Background(), f, "E404", window{from: from, to: from, step: 1, horizon: 3})
	require.ErrorIs(t, err, domain.ErrUnknownStation)
	assert.Contains(t, err.Error(), "2024-01-01")
}

type failingForecaster struct{ err error }

func (f failingForecaster) Forecast(context.Context, string, time.Time, int) (domain.Forecast, error) {
	return domain.Forecast{}, f.err
}

func TestScenarioError_Empty(t *testing.T) {
	var e scenarioError
	assert.True(t, math.IsNaN(e.mae()))
	assert.True(t, math.IsNaN(e.rmse()))
}

func TestScenarioError_MixedSigns(t *testing.T) {
	var e scenarioError
	e.add(103, 100)
	e.add(96, 100)

	assert.Equal(t, 2, e.count())
	assert.InDelta(t, 3.5, e.mae(), 1e-12)
	assert.InDelta(t, math.Sqrt(12.5), e.rmse(), 1e-12)
}
