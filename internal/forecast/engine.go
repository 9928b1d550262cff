package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
	"github.com/couchcryptid/reservoir-risk-service/internal/observability"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultNoiseSigma is the standard deviation of the forecast noise added in the
// operational scenario.
const DefaultNoiseSigma = 0.05

// seedStream is the PCG stream used with a configured seed.
const seedStream = 0x5eed

// SeriesStore returns the daily records of a station. Unknown stations yield an error
// wrapping domain.ErrUnknownStation.
type SeriesStore interface {
	Series(ctx context.Context, station string) ([]domain.DailyRecord, error)
}

// EngineConfig tunes noise generation. A nil Seed draws a fresh seed for every call.
type EngineConfig struct {
	NoiseSigma float64
	Seed       *uint64
}

// Engine produces dual-scenario forecasts for stations that have a scaler.
type Engine struct {
	model   SequenceModel
	scalers *ScalerRegistry
	series  SeriesStore
	builder *WindowBuilder
	cfg     EngineConfig
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewEngine wires a model, its scalers, and a series source.
func NewEngine(model SequenceModel, scalers *ScalerRegistry, series SeriesStore, cfg EngineConfig,
	logger *slog.Logger, metrics *observability.Metrics,
) *Engine {
	return &Engine{
		model:   model,
		scalers: scalers,
		series:  series,
		builder: NewWindowBuilder(model.Lookback()),
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// MaxHorizon returns the longest horizon the model can produce.
func (e *Engine) MaxHorizon() int { return e.model.Horizon() }

// Stations lists the stations that can be forecast.
func (e *Engine) Stations() []string { return e.scalers.Stations() }

// Available reports whether the station has a scaler.
func (e *Engine) Available(station string) bool {
	_, ok := e.scalers.Scaler(station)
	return ok
}

// Forecast runs both scenarios for station at anchor and returns the first horizon
// predictions of each, denormalized, together with the observed levels.
func (e *Engine) Forecast(ctx context.Context, station string, anchor time.Time, horizon int) (domain.Forecast, error) {
	start := time.Now()
	fc, err := e.forecast(ctx, station, anchor, horizon)
	e.metrics.Forecasts.WithLabelValues(outcomeLabel(err)).Inc()
	if err != nil {
		return domain.Forecast{}, err
	}
	e.metrics.InferenceDuration.Observe(time.Since(start).Seconds())
	e.logger.Debug("forecast complete",
		"station", station,
		"anchor", fc.Anchor.Format(domain.DateLayout),
		"horizon", horizon,
		"observed", fc.ObservedCount(),
	)
	return fc, nil
}

func (e *Engine) forecast(ctx context.Context, station string, anchor time.Time, horizon int) (domain.Forecast, error) {
	scaler, ok := e.scalers.Scaler(station)
	if !ok {
		return domain.Forecast{}, fmt.Errorf("forecast %s: %w", station, domain.ErrUnknownStation)
	}
	if horizon < 1 || horizon > e.model.Horizon() {
		return domain.Forecast{}, fmt.Errorf("forecast %s: horizon %d outside 1..%d: %w",
			station, horizon, e.model.Horizon(), domain.ErrInvalidHorizon)
	}

	records, err := e.loadSeries(ctx, station)
	if err != nil {
		return domain.Forecast{}, err
	}

	anchor = domain.TruncateDay(anchor)
	earliest := records[0].Date.AddDate(0, 0, e.model.Lookback())
	if anchor.Before(earliest) {
		return domain.Forecast{}, fmt.Errorf("forecast %s at %s: first valid anchor is %s: %w",
			station, anchor.Format(domain.DateLayout), earliest.Format(domain.DateLayout), domain.ErrDateTooEarly)
	}

	noise := e.newNoise()
	dates := make([]time.Time, horizon)
	for i := range dates {
		dates[i] = anchor.AddDate(0, 0, i+1)
	}

	fc := domain.Forecast{Station: station, Anchor: anchor, Horizon: horizon}
	for _, scenario := range []domain.Scenario{domain.ScenarioHistorical, domain.ScenarioOperational} {
		window, err := e.builder.Build(records, anchor, scaler, scenario, horizon, noise)
		if err != nil {
			return domain.Forecast{}, fmt.Errorf("forecast %s: %w", station, err)
		}
		preds, err := e.model.Predict(window)
		if err != nil {
			return domain.Forecast{}, fmt.Errorf("forecast %s %s: %w", station, scenario, err)
		}
		if len(preds) < horizon {
			return domain.Forecast{}, fmt.Errorf("forecast %s %s: model returned %d values for horizon %d",
				station, scenario, len(preds), horizon)
		}
		levels := make([]float64, horizon)
		for i := range levels {
			levels[i] = scaler.Denormalize(domain.FeatureLevel, preds[i])
		}
		track := domain.ForecastTrack{Scenario: scenario, Dates: dates, Levels: levels}
		if scenario == domain.ScenarioHistorical {
			fc.Historical = track
		} else {
			fc.Operational = track
		}
	}

	fc.Observed, fc.AnchorLevel = observed(records, anchor, dates)
	return fc, nil
}

// LatestAnchor returns the most recent anchor for which all horizon days have been observed.
func (e *Engine) LatestAnchor(ctx context.Context, station string, horizon int) (time.Time, error) {
	if !e.Available(station) {
		return time.Time{}, fmt.Errorf("latest anchor %s: %w", station, domain.ErrUnknownStation)
	}
	records, err := e.loadSeries(ctx, station)
	if err != nil {
		return time.Time{}, err
	}
	return records[len(records)-1].Date.AddDate(0, 0, -horizon), nil
}

func (e *Engine) loadSeries(ctx context.Context, station string) ([]domain.DailyRecord, error) {
	records, err := e.series.Series(ctx, station)
	if err != nil {
		return nil, fmt.Errorf("load series %s: %w", station, err)
	}
	records = domain.NormalizeSeries(records)
	if len(records) == 0 {
		return nil, fmt.Errorf("load series %s: no records: %w", station, domain.ErrInsufficientHistory)
	}
	return records, nil
}

// newNoise returns a generator owned by a single call.
func (e *Engine) newNoise() distuv.Normal {
	var src rand.Source
	if e.cfg.Seed != nil {
		src = rand.NewPCG(*e.cfg.Seed, seedStream)
	} else {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return distuv.Normal{Mu: 0, Sigma: e.cfg.NoiseSigma, Src: src}
}

// observed left-joins the records onto dates and returns the last level on or before anchor.
func observed(records []domain.DailyRecord, anchor time.Time, dates []time.Time) ([]*float64, *float64) {
	split := sort.Search(len(records), func(i int) bool { return records[i].Date.After(anchor) })

	var anchorLevel *float64
	if split > 0 {
		v := records[split-1].Level
		anchorLevel = &v
	}

	byDate := make(map[time.Time]float64, len(dates))
	last := dates[len(dates)-1]
	for _, r := range records[split:] {
		if r.Date.After(last) {
			break
		}
		byDate[r.Date] = r.Level
	}

	out := make([]*float64, len(dates))
	for i, d := range dates {
		if v, ok := byDate[d]; ok {
			out[i] = &v
		}
	}
	return out, anchorLevel
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrUnknownStation):
		return "unknown_station"
	case errors.Is(err, domain.ErrInvalidHorizon),
		errors.Is(err, domain.ErrDateTooEarly),
		errors.Is(err, domain.ErrInsufficientHistory):
		return "invalid_input"
	default:
		return "error"
	}
}
