// Package evaluation produces and aggregates station risk assessments.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
	"github.com/couchcryptid/reservoir-risk-service/internal/observability"
	"github.com/couchcryptid/reservoir-risk-service/internal/recommend"
	"github.com/couchcryptid/reservoir-risk-service/internal/risk"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Forecaster produces dual-scenario forecasts.
type Forecaster interface {
	Forecast(ctx context.Context, station string, anchor time.Time, horizon int) (domain.Forecast, error)
	Stations() []string
}

// StationDirectory looks up station metadata.
type StationDirectory interface {
	Station(ctx context.Context, code string) (domain.Station, error)
	StationsInRegion(ctx context.Context, regionType domain.RegionType, id string) ([]domain.Station, error)
}

// ConfigResolver returns the effective thresholds for a station.
type ConfigResolver interface {
	Resolve(ctx context.Context, station string) domain.ThresholdConfig
}

// Composer writes the recommendation text for a verdict.
type Composer interface {
	Compose(ctx context.Context, v domain.RiskVerdict, st recommend.Station) domain.Recommendation
}

// Recorder persists assessments and serves recent ones.
type Recorder interface {
	Record(ctx context.Context, a domain.Assessment) error
	// Latest returns the newest assessment for the key generated at or after since.
	Latest(ctx context.Context, station string, anchor time.Time, horizon int, since time.Time) (domain.Assessment, bool, error)
	// LatestByStation returns the newest assessment of each listed station that has one.
	LatestByStation(ctx context.Context, stations []string) ([]domain.Assessment, error)
	// History returns up to limit assessments of a station, newest first. An empty level
	// matches every level.
	History(ctx context.Context, station string, limit int, level domain.RiskLevel) ([]domain.Assessment, error)
}

// Deps are the collaborators of an Evaluator.
type Deps struct {
	Forecaster Forecaster
	Stations   StationDirectory
	Configs    ConfigResolver
	Classifier *risk.Classifier
	Composer   Composer
	Recorder   Recorder
}

// Config tunes an Evaluator.
type Config struct {
	FreshnessWindow time.Duration
	CacheSize       int
	ModelVersion    string
}

// Request asks for one assessment. Zero Anchor means today and zero Horizon means the
// configured horizon.
type Request struct {
	Station string
	Anchor  time.Time
	Horizon int
	Force   bool
}

// RequestFrom converts a wire request.
func RequestFrom(r domain.EvaluationRequest) Request {
	return Request{Station: r.Station, Anchor: r.Anchor, Horizon: r.Horizon, Force: r.Force}
}

// Evaluator runs forecast, classification, and composition for stations.
type Evaluator struct {
	deps    Deps
	cfg     Config
	cache   *freshCache
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates an Evaluator. A nil Recorder keeps assessments in memory only.
func New(deps Deps, cfg Config, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Evaluator {
	if deps.Recorder == nil {
		deps.Recorder = NoopRecorder{}
	}
	if deps.Classifier == nil {
		deps.Classifier = risk.NewClassifier()
	}
	return &Evaluator{
		deps:    deps,
		cfg:     cfg,
		cache:   newFreshCache(cfg.CacheSize, cfg.FreshnessWindow),
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// Evaluate returns an assessment for the request. Unless Force is set, an assessment for
// the same station, anchor, and horizon generated within the freshness window is reused
// and cached is true.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (a domain.Assessment, cached bool, err error) {
	a, cached, err = e.evaluate(ctx, req)
	if err != nil {
		e.metrics.EvaluationErrors.Inc()
		return domain.Assessment{}, false, err
	}
	return a, cached, nil
}

func (e *Evaluator) evaluate(ctx context.Context, req Request) (domain.Assessment, bool, error) {
	cfg := e.deps.Configs.Resolve(ctx, req.Station)

	horizon := req.Horizon
	if horizon == 0 {
		horizon = cfg.HorizonDays
	}
	if horizon < 1 {
		return domain.Assessment{}, false, fmt.Errorf("evaluate %s: horizon %d: %w", req.Station, horizon, domain.ErrInvalidHorizon)
	}
	now := e.clock.Now().UTC()
	anchor := req.Anchor
	if anchor.IsZero() {
		anchor = now
	}
	anchor = domain.TruncateDay(anchor)

	key := cacheKey(req.Station, anchor, horizon)
	if !req.Force {
		if a, ok := e.fresh(ctx, key, req.Station, anchor, horizon, now); ok {
			return a, true, nil
		}
	}

	st, err := e.deps.Stations.Station(ctx, req.Station)
	if err != nil {
		return domain.Assessment{}, false, fmt.Errorf("evaluate %s: %w", req.Station, err)
	}
	if st.Capacity <= 0 {
		return domain.Assessment{}, false, fmt.Errorf("evaluate %s: %w", req.Station, domain.ErrMissingCapacity)
	}

	fc, err := e.deps.Forecaster.Forecast(ctx, req.Station, anchor, horizon)
	if err != nil {
		return domain.Assessment{}, false, fmt.Errorf("evaluate %s: %w", req.Station, err)
	}

	// The trend compares against the level known at the anchor, never one observed inside
	// the horizon; the first prediction stands in when nothing was observed.
	current := fc.Operational.Levels[0]
	if fc.AnchorLevel != nil {
		current = *fc.AnchorLevel
	}

	verdict, err := e.deps.Classifier.Classify(risk.Input{
		Track:    fc.Operational.Levels,
		Capacity: st.Capacity,
		MAE:      st.MAE,
		Current:  current,
		Config:   cfg,
	})
	if err != nil {
		return domain.Assessment{}, false, fmt.Errorf("evaluate %s: %w", req.Station, err)
	}

	rec := e.deps.Composer.Compose(ctx, verdict, recommend.Station{
		Name:     st.Name,
		Capacity: st.Capacity,
		MAE:      st.MAE,
		Horizon:  horizon,
	})

	a := domain.Assessment{
		ID:             uuid.NewString(),
		Station:        req.Station,
		StationName:    st.Name,
		GeneratedAt:    now,
		Anchor:         anchor,
		Horizon:        horizon,
		Verdict:        verdict,
		Recommendation: rec,
		MAE:            st.MAE,
		RMSE:           st.RMSE,
		ConfigID:       cfg.ID,
		ModelVersion:   e.cfg.ModelVersion,
	}

	if err := e.deps.Recorder.Record(ctx, a); err != nil {
		e.logger.Warn("failed to record assessment", "station", a.Station, "id", a.ID, "error", err)
	}
	e.cache.put(key, a)
	e.metrics.Assessments.WithLabelValues(string(verdict.Level)).Inc()
	e.logger.Info("station evaluated",
		"station", a.Station,
		"anchor", anchor.Format(domain.DateLayout),
		"horizon", horizon,
		"level", verdict.Level,
		"probability", verdict.Probability,
		"recommendation_source", rec.Source,
	)
	return a, false, nil
}

// fresh checks the in-memory cache, then the recorder.
func (e *Evaluator) fresh(ctx context.Context, key, station string, anchor time.Time, horizon int, now time.Time) (domain.Assessment, bool) {
	if a, ok := e.cache.get(key, now); ok {
		e.metrics.AssessmentCache.WithLabelValues("hit").Inc()
		return a, true
	}
	a, ok, err := e.deps.Recorder.Latest(ctx, station, anchor, horizon, now.Add(-e.cfg.FreshnessWindow))
	if err != nil {
		e.logger.Warn("fresh assessment lookup failed", "station", station, "error", err)
	}
	if err != nil || !ok || !a.FreshAt(now, e.cfg.FreshnessWindow) {
		e.metrics.AssessmentCache.WithLabelValues("miss").Inc()
		return domain.Assessment{}, false
	}
	e.cache.put(key, a)
	e.metrics.AssessmentCache.WithLabelValues("hit").Inc()
	return a, true
}

// History lists the stored assessments of a known station, newest first.
func (e *Evaluator) History(ctx context.Context, station string, limit int, level domain.RiskLevel) ([]domain.Assessment, error) {
	if limit < 1 {
		return nil, fmt.Errorf("history %s: limit %d must be positive", station, limit)
	}
	if _, err := e.deps.Stations.Station(ctx, station); err != nil {
		return nil, fmt.Errorf("history %s: %w", station, err)
	}
	out, err := e.deps.Recorder.History(ctx, station, limit, level)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", station, err)
	}
	return out, nil
}

// EvaluateAll evaluates every forecastable station with default anchor and horizon.
// Failures are logged and joined; successful assessments are still returned.
func (e *Evaluator) EvaluateAll(ctx context.Context) ([]domain.Assessment, error) {
	var (
		out  []domain.Assessment
		errs []error
	)
	for _, code := range e.deps.Forecaster.Stations() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		a, _, err := e.Evaluate(ctx, Request{Station: code})
		if err != nil {
			e.logger.Warn("station evaluation failed", "station", code, "error", err)
			errs = append(errs, err)
			continue
		}
		out = append(out, a)
	}
	return out, errors.Join(errs...)
}

// RegionSummary aggregates the latest assessment of every station in a region.
func (e *Evaluator) RegionSummary(ctx context.Context, regionType, id string) (domain.RegionSummary, error) {
	rt, err := domain.ParseRegionType(regionType)
	if err != nil {
		return domain.RegionSummary{}, err
	}
	stations, err := e.deps.Stations.StationsInRegion(ctx, rt, id)
	if err != nil {
		return domain.RegionSummary{}, fmt.Errorf("region %s/%s: %w", rt, id, err)
	}
	codes := make([]string, len(stations))
	for i, st := range stations {
		codes[i] = st.Code
	}

	latest, err := e.deps.Recorder.LatestByStation(ctx, codes)
	if err != nil {
		return domain.RegionSummary{}, fmt.Errorf("region %s/%s: %w", rt, id, err)
	}
	return Summarize(rt, id, len(stations), latest), nil
}

// Summarize counts assessments per level. Critical assessments are ordered by severity,
// then probability, both descending.
func Summarize(rt domain.RegionType, id string, total int, latest []domain.Assessment) domain.RegionSummary {
	s := domain.RegionSummary{
		Type:          rt,
		ID:            id,
		TotalStations: total,
		Assessed:      len(latest),
		Counts:        make(map[domain.RiskLevel]int, len(domain.RiskLevels)),
		Critical:      []domain.Assessment{},
	}
	for _, l := range domain.RiskLevels {
		s.Counts[l] = 0
	}
	for _, a := range latest {
		s.Counts[a.Verdict.Level]++
		if a.Verdict.Level.Critical() {
			s.Critical = append(s.Critical, a)
		}
		if a.GeneratedAt.After(s.LastGeneratedAt) {
			s.LastGeneratedAt = a.GeneratedAt
		}
	}
	if s.Assessed > 0 {
		s.CriticalPercent = float64(len(s.Critical)) / float64(s.Assessed) * 100
	}
	sort.SliceStable(s.Critical, func(i, j int) bool {
		a, b := s.Critical[i].Verdict, s.Critical[j].Verdict
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		return a.Probability > b.Probability
	})
	return s
}
