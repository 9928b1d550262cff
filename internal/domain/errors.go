package domain

import "errors"

// Caller-visible failure conditions. Wrap them with fmt.Errorf("...: %w", err) and test
// with errors.Is.
var (
	ErrUnknownStation      = errors.New("unknown station")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrDateTooEarly        = errors.New("anchor date too early")
	ErrInvalidHorizon      = errors.New("invalid horizon")
	ErrInvalidRegion       = errors.New("invalid region")
	ErrMissingCapacity     = errors.New("station has no capacity")
	ErrInvalidThresholds   = errors.New("invalid threshold config")
	ErrConfigNotFound      = errors.New("threshold config not found")
	ErrInvalidRiskLevel    = errors.New("invalid risk level")
)
