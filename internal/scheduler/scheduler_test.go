package scheduler_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
	"github.com/couchcryptid/reservoir-risk-service/internal/observability"
	"github.com/couchcryptid/reservoir-risk-service/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockEvaluator struct {
	assessments []domain.Assessment
	err         error
	block       chan struct{}
	calls       int
	mu          sync.Mutex
}

func (m *mockEvaluator) EvaluateAll(_ context.Context) ([]domain.Assessment, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.block != nil {
		<-m.block
	}
	return m.assessments, m.err
}

type mockPublisher struct {
	published [][]domain.Assessment
	err       error
	mu        sync.Mutex
}

func (m *mockPublisher) Publish(_ context.Context, as []domain.Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, as)
	return m.err
}

func newScheduler(t *testing.T, ev scheduler.Evaluator, pub scheduler.Publisher) (*scheduler.Scheduler, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetricsForTesting()
	s, err := scheduler.New("0 0 */6 * * *", ev, pub, slog.Default(), metrics, time.Minute)
	require.NoError(t, err)
	return s, metrics
}

func TestNew_InvalidSpec(t *testing.T) {
	_, err := scheduler.New("every six hours", &mockEvaluator{}, &mockPublisher{}, slog.Default(),
		observability.NewMetricsForTesting(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "every six hours")
}

func TestRunOnce_PublishesAssessments(t *testing.T) {
	ev := &mockEvaluator{assessments: []domain.Assessment{{Station: "E001"}, {Station: "E002"}}}
	pub := &mockPublisher{}
	s, metrics := newScheduler(t, ev, pub)

	s.RunOnce(context.Background())

	require.Len(t, pub.published, 1)
	assert.Len(t, pub.published[0], 2)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ScheduledRuns.WithLabelValues("success")), 0)
}

func TestRunOnce_PartialFailureStillPublishes(t *testing.T) {
	ev := &mockEvaluator{
		assessments: []domain.Assessment{{Station: "E001"}},
		err:         errors.New("E002: insufficient history"),
	}
	pub := &mockPublisher{}
	s, metrics := newScheduler(t, ev, pub)

	s.RunOnce(context.Background())

	require.Len(t, pub.published, 1)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ScheduledRuns.WithLabelValues("partial")), 0)
}

func TestRunOnce_PublishError(t *testing.T) {
	pub := &mockPublisher{err: errors.New("broker down")}
	s, metrics := newScheduler(t, &mockEvaluator{}, pub)

	s.RunOnce(context.Background())

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ScheduledRuns.WithLabelValues("error")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.ScheduledRuns.WithLabelValues("success")), 0)
}

func TestRunOnce_SkipsOverlappingSweep(t *testing.T) {
	ev := &mockEvaluator{block: make(chan struct{})}
	s, metrics := newScheduler(t, ev, &mockPublisher{})

	done := make(chan struct{})
	go func() {
		s.RunOnce(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		ev.mu.Lock()
		defer ev.mu.Unlock()
		return ev.calls == 1
	}, time.Second, 5*time.Millisecond)

	s.RunOnce(context.Background())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ScheduledRuns.WithLabelValues("skipped")), 0)

	close(ev.block)
	<-done
	assert.Equal(t, 1, ev.calls)
}

func TestStartStop(t *testing.T) {
	s, _ := newScheduler(t, &mockEvaluator{}, &mockPublisher{})
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
