// Package recommend attaches explanatory text to a risk verdict.
package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
	"github.com/couchcryptid/reservoir-risk-service/internal/observability"
)

// reduceVolumeMargin widens the suggested release volume into a range.
const reduceVolumeMargin = 1.2

// TemplateStore finds the best template for a verdict. pct is the mean level as a fraction
// of capacity.
type TemplateStore interface {
	Template(ctx context.Context, level domain.RiskLevel, pct float64, trend domain.Trend) (domain.Template, bool, error)
}

// Station is the context a recommendation is written for.
type Station struct {
	Name     string
	Capacity float64
	MAE      *float64
	Horizon  int
}

// Composer renders recommendations from stored templates, falling back to built-in text.
type Composer struct {
	store   TemplateStore
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewComposer creates a Composer. A nil store always uses the fallback text.
func NewComposer(store TemplateStore, logger *slog.Logger, metrics *observability.Metrics) *Composer {
	return &Composer{store: store, logger: logger, metrics: metrics}
}

// Compose never fails: store misses and store errors yield the fallback text.
func (c *Composer) Compose(ctx context.Context, v domain.RiskVerdict, st Station) domain.Recommendation {
	values := Placeholders(v, st)
	rec := c.fromTemplate(ctx, v, values)
	if rec == nil {
		fb := Fallback(v, st)
		rec = &fb
	}
	c.metrics.Recommendations.WithLabelValues(string(rec.Source)).Inc()
	return *rec
}

func (c *Composer) fromTemplate(ctx context.Context, v domain.RiskVerdict, values Values) *domain.Recommendation {
	if c.store == nil {
		return nil
	}
	tpl, ok, err := c.store.Template(ctx, v.Level, v.PercentOfCapacity()/100, v.Trend)
	if err != nil {
		c.logger.Warn("template lookup failed, using fallback text", "level", v.Level, "error", err)
		return nil
	}
	if !ok || tpl.Reason == "" || tpl.Action == "" {
		return nil
	}
	return &domain.Recommendation{
		Reason: Interpolate(tpl.Reason, values),
		Action: Interpolate(tpl.Action, values),
		Source: domain.SourceTemplate,
	}
}

// Placeholders returns the values available to templates.
func Placeholders(v domain.RiskVerdict, st Station) Values {
	reduce := math.Max(0, v.ExpectedMax-v.Thresholds.Moderate)
	values := Values{
		"station":            st.Name,
		"percentage":         v.PercentOfCapacity(),
		"predicted_level":    v.MeanLevel,
		"min_level":          v.MinLevel,
		"max_level":          v.MaxLevel,
		"capacity":           st.Capacity,
		"current_level":      v.CurrentLevel,
		"horizon_days":       st.Horizon,
		"trend":              string(v.Trend),
		"probability":        v.Probability * 100,
		"drought_threshold":  v.Thresholds.Drought,
		"moderate_threshold": v.Thresholds.Moderate,
		"high_threshold":     v.Thresholds.High,
		"reduce_volume":      reduce,
		"reduce_volume_max":  reduce * reduceVolumeMargin,
		"mae":                "n/a",
	}
	if st.MAE != nil {
		values["mae"] = *st.MAE
	}
	if v.DaysToBreach != nil {
		values["days_to_breach"] = *v.DaysToBreach
	}
	return values
}

// Fallback returns the built-in text for the verdict's level. Every level yields a
// non-empty reason and action that quote the relevant threshold.
func Fallback(v domain.RiskVerdict, st Station) domain.Recommendation {
	pct := v.PercentOfCapacity()
	th := v.Thresholds
	rec := domain.Recommendation{Source: domain.SourceFallback}

	switch v.Level {
	case domain.RiskHigh:
		reduce := math.Max(0, v.ExpectedMax-th.Moderate)
		rec.Reason = fmt.Sprintf(
			"Forecast level reaches %.2f hm³ within %d days, above the high threshold of %.2f hm³ (mean %.1f%% of capacity).",
			v.ExpectedMax, st.Horizon, th.High, pct)
		rec.Action = fmt.Sprintf(
			"Plan controlled releases of %.2f to %.2f hm³ to bring the level back under %.2f hm³ and alert downstream operators.",
			reduce, reduce*reduceVolumeMargin, th.Moderate)
	case domain.RiskDrought:
		rec.Reason = fmt.Sprintf(
			"Forecast level falls to %.2f hm³ within %d days, below the drought threshold of %.2f hm³ (mean %.1f%% of capacity).",
			v.ExpectedMin, st.Horizon, th.Drought, pct)
		rec.Action = fmt.Sprintf(
			"Restrict non-essential releases and activate drought measures to keep the level above %.2f hm³.",
			th.Drought)
	case domain.RiskModerate:
		rec.Reason = fmt.Sprintf(
			"Forecast level reaches %.2f hm³ within %d days, above the moderate threshold of %.2f hm³ (mean %.1f%% of capacity).",
			v.ExpectedMax, st.Horizon, th.Moderate, pct)
		rec.Action = fmt.Sprintf(
			"Increase monitoring and prepare releases in case the level approaches the high threshold of %.2f hm³.",
			th.High)
	default:
		rec.Reason = fmt.Sprintf(
			"Forecast level stays between %.2f and %.2f hm³ over %d days, inside the normal band of %.2f to %.2f hm³ (mean %.1f%% of capacity).",
			v.MinLevel, v.MaxLevel, st.Horizon, th.Drought, th.Moderate, pct)
		rec.Action = fmt.Sprintf(
			"Continue routine operation and monitoring; review again if the level approaches %.2f hm³.",
			th.Moderate)
	}
	if st.Name != "" {
		rec.Reason = st.Name + ": " + rec.Reason
	}
	return rec
}
