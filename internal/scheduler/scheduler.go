// Package scheduler re-evaluates every station on a cron schedule and publishes the
// results.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
	"github.com/couchcryptid/reservoir-risk-service/internal/observability"
	"github.com/robfig/cron/v3"
)

// Evaluator evaluates all stations. Partial results come back with a joined error.
type Evaluator interface {
	EvaluateAll(ctx context.Context) ([]domain.Assessment, error)
}

// Publisher sends assessments downstream.
type Publisher interface {
	Publish(ctx context.Context, assessments []domain.Assessment) error
}

// Scheduler runs the evaluation sweep on a six-field cron expression (seconds first).
type Scheduler struct {
	cron      *cron.Cron
	evaluator Evaluator
	publisher Publisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	timeout   time.Duration

	mu      sync.Mutex
	running bool
}

// New parses spec and registers the sweep. timeout bounds a single run.
func New(spec string, evaluator Evaluator, publisher Publisher, logger *slog.Logger, metrics *observability.Metrics, timeout time.Duration) (*Scheduler, error) {
	s := &Scheduler{
		cron:      cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		evaluator: evaluator,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		timeout:   timeout,
	}
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("parse evaluation schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.logger.Info("evaluation scheduler started", "entries", len(s.cron.Entries()))
	s.cron.Start()
}

// Stop halts the loop and waits for a running sweep to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out", "error", ctx.Err())
	}
}

// RunOnce performs one sweep. Overlapping sweeps are skipped.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("previous evaluation sweep still running, skipping")
		s.metrics.ScheduledRuns.WithLabelValues("skipped").Inc()
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	assessments, evalErr := s.evaluator.EvaluateAll(ctx)
	if evalErr != nil {
		s.logger.Warn("evaluation sweep had failures", "error", evalErr, "assessed", len(assessments))
	}

	if err := s.publisher.Publish(ctx, assessments); err != nil {
		s.logger.Error("publish sweep results failed", "error", err, "count", len(assessments))
		s.metrics.ScheduledRuns.WithLabelValues("error").Inc()
		return
	}

	outcome := "success"
	if evalErr != nil {
		outcome = "partial"
	}
	s.metrics.ScheduledRuns.WithLabelValues(outcome).Inc()
	s.logger.Info("evaluation sweep finished",
		"assessed", len(assessments),
		"outcome", outcome,
		"duration", time.Since(start),
	)
}
