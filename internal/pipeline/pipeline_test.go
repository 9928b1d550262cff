package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
	"github.com/couchcryptid/reservoir-risk-service/internal/evaluation"
	"github.com/couchcryptid/reservoir-risk-service/internal/observability"
	"github.com/couchcryptid/reservoir-risk-service/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockExtractor struct {
	batches [][]domain.RawEvent
	errs    []error
	index   atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawEvent, error) {
	i := int(m.index.Add(1) - 1)
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i >= len(m.batches) {
		// block until context cancelled to simulate waiting for messages
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.batches[i], nil
}

type mockAssessor struct {
	failKeys map[string]bool
}

func (m *mockAssessor) Assess(_ context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	if m.failKeys[string(raw.Key)] {
		return domain.OutputEvent{}, errors.New("unknown station")
	}
	return domain.OutputEvent{Key: raw.Key, Value: raw.Value}, nil
}

type mockLoader struct {
	mu       sync.Mutex
	loaded   []domain.OutputEvent
	failures int
}

func (m *mockLoader) LoadBatch(_ context.Context, events []domain.OutputEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return errors.New("broker unavailable")
	}
	m.loaded = append(m.loaded, events...)
	return nil
}

func (m *mockLoader) events() []domain.OutputEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OutputEvent(nil), m.loaded...)
}

func rawRequest(t *testing.T, station string) domain.RawEvent {
	t.Helper()
	data, err := domain.MarshalEvaluationRequest(domain.EvaluationRequest{Station: station, Horizon: 7})
	require.NoError(t, err)
	return domain.RawEvent{Key: []byte(station), Value: data}
}

func runFor(t *testing.T, p *pipeline.Pipeline, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, p.Run(ctx))
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	raw := rawRequest(t, "E001")
	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}}}
	ldr := &mockLoader{}

	p := pipeline.New(ext, &mockAssessor{}, ldr, slog.Default(), observability.NewMetricsForTesting(), 10)
	runFor(t, p, 300*time.Millisecond)

	loaded := ldr.events()
	require.Len(t, loaded, 1)
	assert.Equal(t, raw.Value, loaded[0].Value)
	assert.True(t, p.Ready())
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ldr := &mockLoader{}
	p := pipeline.New(&mockExtractor{}, &mockAssessor{}, ldr, slog.Default(), observability.NewMetricsForTesting(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.events())
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_SkipsFailedRequestsAndCommitsThem(t *testing.T) {
	var commits atomic.Int32
	commit := func(context.Context) error { commits.Add(1); return nil }

	good := rawRequest(t, "E001")
	good.Commit = commit
	bad := rawRequest(t, "E404")
	bad.Commit = commit

	ext := &mockExtractor{batches: [][]domain.RawEvent{{bad, good}}}
	ldr := &mockLoader{}
	p := pipeline.New(ext, &mockAssessor{failKeys: map[string]bool{"E404": true}}, ldr, slog.Default(),
		observability.NewMetricsForTesting(), 10)
	runFor(t, p, 300*time.Millisecond)

	loaded := ldr.events()
	require.Len(t, loaded, 1)
	assert.Equal(t, []byte("E001"), loaded[0].Key)
	assert.Equal(t, int32(2), commits.Load(), "both the skipped and the loaded request are committed")
}

func TestPipeline_Run_AllFailedIsNotReady(t *testing.T) {
	ext := &mockExtractor{batches: [][]domain.RawEvent{{rawRequest(t, "E404")}}}
	p := pipeline.New(ext, &mockAssessor{failKeys: map[string]bool{"E404": true}}, &mockLoader{}, slog.Default(),
		observability.NewMetricsForTesting(), 10)
	runFor(t, p, 300*time.Millisecond)

	assert.False(t, p.Ready())
}

func TestPipeline_Run_RetriesAfterExtractError(t *testing.T) {
	ext := &mockExtractor{
		batches: [][]domain.RawEvent{nil, {rawRequest(t, "E001")}},
		errs:    []error{errors.New("broker down")},
	}
	ldr := &mockLoader{}
	p := pipeline.New(ext, &mockAssessor{}, ldr, slog.Default(), observability.NewMetricsForTesting(), 10)
	runFor(t, p, time.Second)

	assert.Len(t, ldr.events(), 1)
}

func TestPipeline_Run_LoadFailureDoesNotCommit(t *testing.T) {
	var committed atomic.Bool
	raw := rawRequest(t, "E001")
	raw.Commit = func(context.Context) error { committed.Store(true); return nil }

	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}}}
	ldr := &mockLoader{failures: 1}
	p := pipeline.New(ext, &mockAssessor{}, ldr, slog.Default(), observability.NewMetricsForTesting(), 10)
	runFor(t, p, 500*time.Millisecond)

	assert.Empty(t, ldr.events())
	assert.False(t, committed.Load(), "uncommitted requests are redelivered")
	assert.False(t, p.Ready())
}

// --- assessor ---

type stubEvaluator struct {
	got        evaluation.Request
	assessment domain.Assessment
	cached     bool
	err        error
}

func (s *stubEvaluator) Evaluate(_ context.Context, req evaluation.Request) (domain.Assessment, bool, error) {
	s.got = req
	return s.assessment, s.cached, s.err
}

func TestRequestAssessor_Assess(t *testing.T) {
	generated := time.Date(2025, time.March, 1, 6, 0, 0, 0, time.UTC)
	ev := &stubEvaluator{
		cached: true,
		assessment: domain.Assessment{
			ID:          "a-1",
			Station:     "E001",
			GeneratedAt: generated,
			Verdict:     domain.RiskVerdict{Level: domain.RiskHigh},
		},
	}
	raw := domain.RawEvent{
		Key:   []byte("E001"),
		Value: []byte(`{"anchor_date":"2025-02-20","horizon_days":30,"force":true}`),
	}

	out, err := pipeline.NewAssessor(ev, slog.Default()).Assess(context.Background(), raw)
	require.NoError(t, err)

	want := evaluation.Request{
		Station: "E001",
		Anchor:  time.Date(2025, time.February, 20, 0, 0, 0, 0, time.UTC),
		Horizon: 30,
		Force:   true,
	}
	if diff := cmp.Diff(want, ev.got); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []byte("E001"), out.Key)
	assert.Equal(t, "HIGH", out.Headers["risk_level"])
	assert.Equal(t, "2025-03-01T06:00:00Z", out.Headers["generated_at"])
	assert.Equal(t, "true", out.Headers["cached"])

	var decoded domain.Assessment
	require.NoError(t, json.Unmarshal(out.Value, &decoded))
	assert.Equal(t, "a-1", decoded.ID)
}

func TestRequestAssessor_Errors(t *testing.T) {
	a := pipeline.NewAssessor(&stubEvaluator{}, slog.Default())
	_, err := a.Assess(context.Background(), domain.RawEvent{Value: []byte("not json")})
	assert.Error(t, err)

	failing := pipeline.NewAssessor(&stubEvaluator{err: domain.ErrUnknownStation}, slog.Default())
	_, err = failing.Assess(context.Background(), domain.RawEvent{Value: []byte(`{"station":"E404"}`)})
	assert.ErrorIs(t, err, domain.ErrUnknownStation)
}

// --- publisher ---

func TestPublisher_Publish(t *testing.T) {
	ldr := &mockLoader{}
	p := pipeline.NewPublisher(ldr, slog.Default(), observability.NewMetricsForTesting())

	err := p.Publish(context.Background(), []domain.Assessment{
		{Station: "E001", Verdict: domain.RiskVerdict{Level: domain.RiskLow}},
		{Station: "E002", Verdict: domain.RiskVerdict{Level: domain.RiskDrought}},
	})
	require.NoError(t, err)

	loaded := ldr.events()
	require.Len(t, loaded, 2)
	assert.Equal(t, "DROUGHT", loaded[1].Headers["risk_level"])
}

func TestPublisher_NilLoaderAndFailures(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	assert.NoError(t, pipeline.NewPublisher(nil, slog.Default(), metrics).Publish(context.Background(),
		[]domain.Assessment{{Station: "E001"}}))

	failing := pipeline.NewPublisher(&mockLoader{failures: 1}, slog.Default(), metrics)
	assert.Error(t, failing.Publish(context.Background(), []domain.Assessment{{Station: "E001"}}))
}
