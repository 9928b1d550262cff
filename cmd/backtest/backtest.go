package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// seriesColumns is the expected CSV header.
var seriesColumns = []string{"date", "level", "precipitation", "temperature", "mean_flow"}

// readSeriesCSV parses a station series. Empty weather and flow cells are missing values.
func readSeriesCSV(r io.Reader) ([]domain.DailyRecord, error) {
	all, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(all) < 2 {
		return nil, errors.New("no data rows")
	}

	header := all[0]
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(strings.ToLower(h))] = i
	}
	for _, c := range seriesColumns {
		if _, ok := index[c]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}

	records := make([]domain.DailyRecord, 0, len(all)-1)
	for i, row := range all[1:] {
		line := i + 2
		cell := func(name string) string {
			if j := index[name]; j < len(row) {
				return strings.TrimSpace(row[j])
			}
			return ""
		}

		date, err := domain.ParseDate(cell("date"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		level, err := strconv.ParseFloat(cell("level"), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: level: %w", line, err)
		}
		rec := domain.DailyRecord{Date: date, Level: level}
		for _, f := range []struct {
			name string
			dst  **float64
		}{
			{"precipitation", &rec.Precipitation},
			{"temperature", &rec.Temperature},
			{"mean_flow", &rec.MeanFlow},
		} {
			s := cell(f.name)
			if s == "" {
				continue
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, f.name, err)
			}
			*f.dst = &v
		}
		records = append(records, rec)
	}
	return records, nil
}

// forecaster is the part of the engine a backtest drives.
type forecaster interface {
	Forecast(ctx context.Context, station string, anchor time.Time, horizon int) (domain.Forecast, error)
}

// window is the set of anchors to replay.
type window struct {
	from    time.Time
	to      time.Time
	step    int
	horizon int
}

// scenarioError collects the residuals of one scenario against observations.
type scenarioError struct {
	residuals []float64
}

func (e *scenarioError) add(predicted, observed float64) {
	e.residuals = append(e.residuals, predicted-observed)
}

func (e scenarioError) count() int { return len(e.residuals) }

func (e scenarioError) mae() float64 {
	if len(e.residuals) == 0 {
		return math.NaN()
	}
	abs := make([]float64, len(e.residuals))
	for i, d := range e.residuals {
		abs[i] = math.Abs(d)
	}
	return stat.Mean(abs, nil)
}

func (e scenarioError) rmse() float64 {
	if len(e.residuals) == 0 {
		return math.NaN()
	}
	sq := make([]float64, len(e.residuals))
	for i, d := range e.residuals {
		sq[i] = d * d
	}
	return math.Sqrt(stat.Mean(sq, nil))
}

type report struct {
	anchors int
	skipped int
	errs    map[domain.Scenario]*scenarioError
}

func (r report) scenarios() []domain.Scenario {
	return []domain.Scenario{domain.ScenarioHistorical, domain.ScenarioOperational}
}

// backtest forecasts at every step-th anchor in the window and scores each scenario
// against the observed levels. Anchors before the model has a full lookback are skipped.
func backtest(ctx context.Context, f forecaster, station string, w window) (report, error) {
	if w.step < 1 {
		return report{}, fmt.Errorf("step must be positive, got %d", w.step)
	}
	if w.to.Before(w.from) {
		return report{}, errors.New("window ends before it starts")
	}

	rep := report{errs: map[domain.Scenario]*scenarioError{
		domain.ScenarioHistorical:  {},
		domain.ScenarioOperational: {},
	}}
	for anchor := w.from; !anchor.After(w.to); anchor = anchor.AddDate(0, 0, w.step) {
		if err := ctx.Err(); err != nil {
			return report{}, err
		}
		fc, err := f.Forecast(ctx, station, anchor, w.horizon)
		if errors.Is(err, domain.ErrDateTooEarly) {
			rep.skipped++
			continue
		}
		if err != nil {
			return report{}, fmt.Errorf("anchor %s: %w", anchor.Format(domain.DateLayout), err)
		}
		rep.anchors++

		for _, track := range []domain.ForecastTrack{fc.Historical, fc.Operational} {
			acc := rep.errs[track.Scenario]
			for i, obs := range fc.Observed {
				if obs != nil && i < len(track.Levels) {
					acc.add(track.Levels[i], *obs)
				}
			}
		}
	}
	return rep, nil
}
