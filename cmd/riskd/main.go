package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/reservoir-risk-service/internal/adapter/api"
	httpadapter "github.com/couchcryptid/reservoir-risk-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/reservoir-risk-service/internal/adapter/kafka"
	"github.com/couchcryptid/reservoir-risk-service/internal/config"
	"github.com/couchcryptid/reservoir-risk-service/internal/evaluation"
	"github.com/couchcryptid/reservoir-risk-service/internal/forecast"
	"github.com/couchcryptid/reservoir-risk-service/internal/observability"
	"github.com/couchcryptid/reservoir-risk-service/internal/pipeline"
	"github.com/couchcryptid/reservoir-risk-service/internal/recommend"
	"github.com/couchcryptid/reservoir-risk-service/internal/risk"
	"github.com/couchcryptid/reservoir-risk-service/internal/scheduler"
	"github.com/couchcryptid/reservoir-risk-service/internal/thresholds"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
)

// sweepTimeout bounds one scheduled evaluation of every station.
const sweepTimeout = 15 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	model, err := forecast.LoadModel(cfg.ModelPath)
	if err != nil {
		logger.Error("failed to load model", "error", err)
		os.Exit(1)
	}
	scalers, err := forecast.LoadScalers(cfg.ScalersPath)
	if err != nil {
		logger.Error("failed to load scalers", "error", err)
		os.Exit(1)
	}
	logger.Info("model loaded",
		"version", model.Version(),
		"lookback", model.Lookback(),
		"horizon", model.Horizon(),
		"trained_sigma", model.NoiseSigma(),
		"stations", scalers.Len(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer st.close()

	var templates recommend.TemplateStore = st.store
	if cfg.TemplatesPath != "" {
		rules, err := recommend.LoadRules(cfg.TemplatesPath)
		if err != nil {
			logger.Error("failed to load templates", "error", err)
			os.Exit(1)
		}
		templates = rules
		logger.Info("templates loaded", "path", cfg.TemplatesPath, "rules", len(rules))
	}

	engine := forecast.NewEngine(model, scalers, st.store, forecast.EngineConfig{
		NoiseSigma: cfg.NoiseSigma,
		Seed:       cfg.NoiseSeed,
	}, logger, metrics)

	modelVersion := cfg.ModelVersion
	if modelVersion == "" {
		modelVersion = model.Version()
	}
	resolver := thresholds.NewResolver(st.store, logger)
	evaluator := evaluation.New(evaluation.Deps{
		Forecaster: engine,
		Stations:   st.store,
		Configs:    resolver,
		Classifier: risk.NewClassifier(),
		Composer:   recommend.NewComposer(templates, logger, metrics),
		Recorder:   st.store,
	}, evaluation.Config{
		FreshnessWindow: cfg.FreshnessWindow,
		CacheSize:       cfg.CacheSize,
		ModelVersion:    modelVersion,
	}, clockwork.NewRealClock(), logger, metrics)

	readiness := (&httpadapter.Readiness{}).
		Add("model", httpadapter.CheckFunc(func(context.Context) error {
			if scalers.Len() == 0 {
				return errors.New("no station scalers loaded")
			}
			return nil
		})).
		Add("database", st.ready)

	var (
		reader *kafkaadapter.Reader
		writer *kafkaadapter.Writer
		p      *pipeline.Pipeline
		loader pipeline.BatchLoader
	)
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		loader = writer
		p = pipeline.New(reader, pipeline.NewAssessor(evaluator, logger), writer, logger, metrics, cfg.BatchSize)
		readiness.Add("pipeline", p)
	} else {
		logger.Info("kafka disabled")
	}

	var sched *scheduler.Scheduler
	if cfg.EvaluationCron != "" {
		sched, err = scheduler.New(cfg.EvaluationCron, evaluator, pipeline.NewPublisher(loader, logger, metrics),
			logger, metrics, sweepTimeout)
		if err != nil {
			logger.Error("failed to create scheduler", "error", err)
			os.Exit(1)
		}
	}

	opsSrv := httpadapter.NewServer(cfg.HTTPAddr, readiness, logger)
	configs := thresholds.NewManager(resolver, st.store, st.store, logger)
	apiSrv := api.NewServer(cfg.APIAddr, engine, evaluator, configs, logger)

	// Start HTTP servers.
	go func() {
		if err := opsSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server error", "error", err)
		}
	}()
	go func() {
		if err := apiSrv.Start(); err != nil {
			logger.Error("api server error", "error", err)
		}
	}()

	// Start evaluation-request pipeline.
	if p != nil {
		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	}
	if sched != nil {
		sched.Start()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server shutdown error", "error", err)
	}
	if err := opsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server shutdown error", "error", err)
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

