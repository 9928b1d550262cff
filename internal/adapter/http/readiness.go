package http

import (
	"context"
	"fmt"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// CheckFunc adapts a plain function to sharedobs.ReadinessChecker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) CheckReadiness(ctx context.Context) error { return f(ctx) }

type namedCheck struct {
	name  string
	check sharedobs.ReadinessChecker
}

// Readiness is ready only when every registered check passes. Checks run in
// registration order and the first failure is reported with its name.
type Readiness struct {
	checks []namedCheck
}

// Add registers a check. A nil checker is ignored.
func (r *Readiness) Add(name string, c sharedobs.ReadinessChecker) *Readiness {
	if c != nil {
		r.checks = append(r.checks, namedCheck{name: name, check: c})
	}
	return r
}

func (r *Readiness) CheckReadiness(ctx context.Context) error {
	for _, nc := range r.checks {
		if err := nc.check.CheckReadiness(ctx); err != nil {
			return fmt.Errorf("%s: %w", nc.name, err)
		}
	}
	return nil
}
