package domain

import (
	"fmt"
	"sort"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Feature indexes into a record vector and a ScalerParams.
const (
	FeatureLevel = iota
	FeaturePrecipitation
	FeatureTemperature
	FeatureMeanFlow

	NumFeatures
)

// FeatureNames lists the model feature columns in vector order.
var FeatureNames = [NumFeatures]string{"level", "precipitation", "temperature", "mean_flow"}

// DailyRecord is one day of measurements for a station. Weather fields are nil when the
// network reported nothing for that day.
type DailyRecord struct {
	Date          time.Time `json:"date"`
	Level         float64   `json:"level"`
	Precipitation *float64  `json:"precipitation,omitempty"`
	Temperature   *float64  `json:"temperature,omitempty"`
	MeanFlow      *float64  `json:"mean_flow,omitempty"`
}

// Features returns the record as a model feature vector, substituting 0 for missing values.
func (r DailyRecord) Features() [NumFeatures]float64 {
	return [NumFeatures]float64{
		r.Level,
		valueOrZero(r.Precipitation),
		valueOrZero(r.Temperature),
		valueOrZero(r.MeanFlow),
	}
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// TruncateDay returns t as a UTC midnight.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// NormalizeSeries sorts records by date, truncates dates to UTC days, and keeps the last
// record seen for any duplicated day.
func NormalizeSeries(records []DailyRecord) []DailyRecord {
	out := make([]DailyRecord, len(records))
	for i, r := range records {
		r.Date = TruncateDay(r.Date)
		out[i] = r
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })

	deduped := out[:0]
	for _, r := range out {
		if n := len(deduped); n > 0 && deduped[n-1].Date.Equal(r.Date) {
			deduped[n-1] = r
			continue
		}
		deduped = append(deduped, r)
	}
	return deduped
}
