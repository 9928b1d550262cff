package pipeline

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
	"github.com/couchcryptid/reservoir-risk-service/internal/evaluation"
)

// Evaluator produces an assessment for a request.
type Evaluator interface {
	Evaluate(ctx context.Context, req evaluation.Request) (domain.Assessment, bool, error)
}

// RequestAssessor implements Assessor by parsing a request and running the evaluator.
type RequestAssessor struct {
	evaluator Evaluator
	logger    *slog.Logger
}

// NewAssessor creates a RequestAssessor.
func NewAssessor(evaluator Evaluator, logger *slog.Logger) *RequestAssessor {
	return &RequestAssessor{evaluator: evaluator, logger: logger}
}

func (a *RequestAssessor) Assess(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	req, err := domain.ParseEvaluationRequest(raw)
	if err != nil {
		return domain.OutputEvent{}, err
	}

	assessment, cached, err := a.evaluator.Evaluate(ctx, evaluation.RequestFrom(req))
	if err != nil {
		return domain.OutputEvent{}, err
	}

	out, err := domain.SerializeAssessment(assessment)
	if err != nil {
		return domain.OutputEvent{}, err
	}
	out.Headers["cached"] = strconv.FormatBool(cached)
	a.logger.Debug("request assessed", "station", req.Station, "level", assessment.Verdict.Level, "cached", cached)
	return out, nil
}
