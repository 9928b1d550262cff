//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/reservoir-risk-service/internal/adapter/memory"
	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
	"github.com/couchcryptid/reservoir-risk-service/internal/evaluation"
	"github.com/couchcryptid/reservoir-risk-service/internal/forecast"
	"github.com/couchcryptid/reservoir-risk-service/internal/observability"
	"github.com/couchcryptid/reservoir-risk-service/internal/recommend"
	"github.com/couchcryptid/reservoir-risk-service/internal/thresholds"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	"gonum.org/v1/gonum/mat"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	c, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("reservoir-test"))
	testcontainers.CleanupContainer(t, c)
	require.NoError(t, err, "start kafka container")

	brokers, err := c.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// persistenceModel predicts the last normalized level for every horizon step.
type persistenceModel struct {
	lookback int
	horizon  int
}

func (m persistenceModel) Predict(w *mat.Dense) ([]float64, error) {
	rows, _ := w.Dims()
	out := make([]float64, m.horizon)
	for i := range out {
		out[i] = w.At(rows-1, domain.FeatureLevel)
	}
	return out, nil
}

func (m persistenceModel) Lookback() int  { return m.lookback }
func (m persistenceModel) Horizon() int   { return m.horizon }
func (m persistenceModel) InputSize() int { return 2 * domain.NumFeatures }

var seriesStart = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// newEvaluator wires the real evaluation chain over an in-memory store holding E001,
// a nearly full reservoir, and E002, a nearly empty one.
func newEvaluator(t *testing.T) *evaluation.Evaluator {
	t.Helper()
	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()

	store := memory.NewStore()
	levels := map[string]float64{"E001": 980, "E002": 150}
	params := make(map[string]forecast.ScalerParams, len(levels))
	for code, level := range levels {
		store.PutStation(domain.Station{Code: code, Name: "Embalse " + code, Capacity: 1000, BasinID: "B1"})
		records := make([]domain.DailyRecord, 60)
		for i := range records {
			records[i] = domain.DailyRecord{Date: seriesStart.AddDate(0, 0, i), Level: level}
		}
		store.PutSeries(code, records)
		params[code] = forecast.ScalerParams{
			Min: [domain.NumFeatures]float64{0, 0, -20, 0},
			Max: [domain.NumFeatures]float64{1000, 100, 40, 500},
		}
	}

	seed := uint64(7)
	engine := forecast.NewEngine(persistenceModel{lookback: 10, horizon: 14},
		forecast.NewScalerRegistry(params), store,
		forecast.EngineConfig{NoiseSigma: forecast.DefaultNoiseSigma, Seed: &seed},
		logger, metrics)

	return evaluation.New(evaluation.Deps{
		Forecaster: engine,
		Stations:   store,
		Configs:    thresholds.NewResolver(store, logger),
		Composer:   recommend.NewComposer(store, logger, metrics),
		Recorder:   store,
	}, evaluation.Config{
		FreshnessWindow: time.Hour,
		CacheSize:       10,
		ModelVersion:    "integration",
	}, clockwork.NewRealClock(), logger, metrics)
}
