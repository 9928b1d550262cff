package forecast

import (
	"fmt"
	"sort"
	"time"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
	"gonum.org/v1/gonum/mat"
)

// NoiseSource draws one noise sample. distuv.Normal satisfies it.
type NoiseSource interface {
	Rand() float64
}

// WindowBuilder builds the Lookback×2F model input for one scenario.
type WindowBuilder struct {
	lookback int
}

// NewWindowBuilder creates a builder for the given lookback.
func NewWindowBuilder(lookback int) *WindowBuilder {
	return &WindowBuilder{lookback: lookback}
}

// Lookback returns the number of history rows in every window.
func (b *WindowBuilder) Lookback() int { return b.lookback }

// Build returns the prediction window at anchor. series must be date-ordered and
// date-unique. The history block holds the last Lookback records on or before anchor;
// the summary block repeats a per-feature summary of the forecast period on every row.
//
// The operational summary is the mean of the normalized next horizon records with noise
// added and clipped to [0,1]. With fewer than horizon future records, or in historical
// mode, the summary is zero. noise may be nil only in historical mode.
func (b *WindowBuilder) Build(series []domain.DailyRecord, anchor time.Time, scaler ScalerParams,
	scenario domain.Scenario, horizon int, noise NoiseSource,
) (*mat.Dense, error) {
	anchor = domain.TruncateDay(anchor)
	split := sort.Search(len(series), func(i int) bool { return series[i].Date.After(anchor) })
	if split < b.lookback {
		return nil, fmt.Errorf("window at %s: %d records, need %d: %w",
			anchor.Format(domain.DateLayout), split, b.lookback, domain.ErrInsufficientHistory)
	}
	history := series[split-b.lookback : split]

	var summary [domain.NumFeatures]float64
	switch scenario {
	case domain.ScenarioHistorical:
	case domain.ScenarioOperational:
		if future := series[split:]; len(future) >= horizon && horizon > 0 {
			if noise == nil {
				return nil, fmt.Errorf("window at %s: operational scenario needs a noise source",
					anchor.Format(domain.DateLayout))
			}
			summary = noisySummary(future[:horizon], scaler, noise)
		}
	default:
		return nil, fmt.Errorf("window: unknown scenario %q", scenario)
	}

	const f = domain.NumFeatures
	window := mat.NewDense(b.lookback, 2*f, nil)
	for i, rec := range history {
		row := window.RawRowView(i)
		feats := scaler.NormalizeRecord(rec)
		copy(row[:f], feats[:])
		copy(row[f:], summary[:])
	}
	return window, nil
}

func noisySummary(future []domain.DailyRecord, scaler ScalerParams, noise NoiseSource) [domain.NumFeatures]float64 {
	var sum [domain.NumFeatures]float64
	for _, rec := range future {
		feats := scaler.NormalizeRecord(rec)
		for j, v := range feats {
			sum[j] += clamp01(v + noise.Rand())
		}
	}
	for j := range sum {
		sum[j] /= float64(len(future))
	}
	return sum
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
