package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
	"github.com/couchcryptid/reservoir-risk-service/internal/observability"
)

// Publisher writes assessments produced outside the request loop to the sink.
type Publisher struct {
	loader  BatchLoader
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewPublisher creates a Publisher. A nil loader makes Publish a no-op.
func NewPublisher(loader BatchLoader, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	return &Publisher{loader: loader, logger: logger, metrics: metrics}
}

// Publish serializes and loads the assessments as one batch.
func (p *Publisher) Publish(ctx context.Context, assessments []domain.Assessment) error {
	if p.loader == nil || len(assessments) == 0 {
		return nil
	}
	batch := make([]domain.OutputEvent, 0, len(assessments))
	for _, a := range assessments {
		out, err := domain.SerializeAssessment(a)
		if err != nil {
			return err
		}
		batch = append(batch, out)
	}
	if err := p.loader.LoadBatch(ctx, batch); err != nil {
		return fmt.Errorf("publish assessments: %w", err)
	}
	p.metrics.MessagesProduced.Add(float64(len(batch)))
	p.logger.Info("assessments published", "count", len(batch))
	return nil
}
