package evaluation

import (
	"context"
	"time"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
)

// NoopRecorder discards assessments and never has a recent one.
type NoopRecorder struct{}

func (NoopRecorder) Record(context.Context, domain.Assessment) error { return nil }

func (NoopRecorder) Latest(context.Context, string, time.Time, int, time.Time) (domain.Assessment, bool, error) {
	return domain.Assessment{}, false, nil
}

func (NoopRecorder) LatestByStation(context.Context, []string) ([]domain.Assessment, error) {
	return nil, nil
}

func (NoopRecorder) History(context.Context, string, int, domain.RiskLevel) ([]domain.Assessment, error) {
	return nil, nil
}
