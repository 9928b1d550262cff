package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// EvaluationRequest asks for an assessment of one station. Zero Anchor means "today"
// and zero Horizon means "the station's configured horizon".
type EvaluationRequest struct {
	Station string
	Anchor  time.Time
	Horizon int
	Force   bool
}

// evaluationRequestJSON is the wire shape of an EvaluationRequest.
type evaluationRequestJSON struct {
	Station     string `json:"station"`
	AnchorDate  string `json:"anchor_date,omitempty"`
	HorizonDays int    `json:"horizon_days,omitempty"`
	Force       bool   `json:"force,omitempty"`
}

// ParseEvaluationRequest deserializes a RawEvent's value into an EvaluationRequest.
// The station falls back to the message key when the body omits it.
func ParseEvaluationRequest(raw RawEvent) (EvaluationRequest, error) {
	var body evaluationRequestJSON
	if err := json.Unmarshal(raw.Value, &body); err != nil {
		return EvaluationRequest{}, fmt.Errorf("parse evaluation request: %w", err)
	}

	station := strings.TrimSpace(body.Station)
	if station == "" {
		station = strings.TrimSpace(string(raw.Key))
	}
	if station == "" {
		return EvaluationRequest{}, errors.New("parse evaluation request: missing station")
	}

	req := EvaluationRequest{Station: station, Horizon: body.HorizonDays, Force: body.Force}
	if body.AnchorDate != "" {
		anchor, err := ParseDate(body.AnchorDate)
		if err != nil {
			return EvaluationRequest{}, fmt.Errorf("parse evaluation request: %w", err)
		}
		req.Anchor = anchor
	}
	if req.Horizon < 0 {
		return EvaluationRequest{}, fmt.Errorf("parse evaluation request: horizon %d: %w", req.Horizon, ErrInvalidHorizon)
	}
	return req, nil
}

// MarshalEvaluationRequest is the inverse of ParseEvaluationRequest.
func MarshalEvaluationRequest(req EvaluationRequest) ([]byte, error) {
	body := evaluationRequestJSON{Station: req.Station, HorizonDays: req.Horizon, Force: req.Force}
	if !req.Anchor.IsZero() {
		body.AnchorDate = req.Anchor.Format(DateLayout)
	}
	return json.Marshal(body)
}

// SerializeAssessment marshals an Assessment into an OutputEvent keyed by station.
func SerializeAssessment(a Assessment) (OutputEvent, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize assessment: %w", err)
	}
	return OutputEvent{
		Key:   []byte(a.Station),
		Value: data,
		Headers: map[string]string{
			"risk_level":   string(a.Verdict.Level),
			"generated_at": a.GeneratedAt.Format(time.RFC3339),
		},
	}, nil
}
