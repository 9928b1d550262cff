package domain

import "time"

// Scenario selects how the future summary of a prediction window is built.
type Scenario string

const (
	// ScenarioHistorical feeds the model no information about the forecast period.
	ScenarioHistorical Scenario = "historical"
	// ScenarioOperational feeds the model a noisy summary of the observed forecast period,
	// emulating a weather forecast of limited accuracy.
	ScenarioOperational Scenario = "operational"
)

// ForecastTrack is a denormalized level forecast for one scenario.
// Dates[i] is the forecast date of Levels[i].
type ForecastTrack struct {
	Scenario Scenario    `json:"scenario"`
	Dates    []time.Time `json:"dates"`
	Levels   []float64   `json:"levels"`
}

// Forecast pairs the two scenario tracks with the levels that were actually observed.
// Observed is aligned with Operational.Dates; a nil entry means no observation exists
// for that date. AnchorLevel is the last observed level on or before the anchor.
type Forecast struct {
	Station     string        `json:"station"`
	Anchor      time.Time     `json:"anchor_date"`
	Horizon     int           `json:"horizon_days"`
	AnchorLevel *float64      `json:"anchor_level,omitempty"`
	Historical  ForecastTrack `json:"historical"`
	Operational ForecastTrack `json:"operational"`
	Observed    []*float64    `json:"observed"`
}

// ObservedCount returns how many forecast dates have a ground-truth observation.
func (f Forecast) ObservedCount() int {
	n := 0
	for _, v := range f.Observed {
		if v != nil {
			n++
		}
	}
	return n
}
