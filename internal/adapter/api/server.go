// Package api serves the forecasting and risk endpoints over HTTP with fiber.
package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
	"github.com/couchcryptid/reservoir-risk-service/internal/evaluation"
	"github.com/couchcryptid/reservoir-risk-service/internal/thresholds"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Forecaster runs and locates forecasts.
type Forecaster interface {
	Forecast(ctx context.Context, station string, anchor time.Time, horizon int) (domain.Forecast, error)
	LatestAnchor(ctx context.Context, station string, horizon int) (time.Time, error)
	Stations() []string
	MaxHorizon() int
}

// Evaluator produces assessments and region roll-ups and lists past assessments.
type Evaluator interface {
	Evaluate(ctx context.Context, req evaluation.Request) (domain.Assessment, bool, error)
	RegionSummary(ctx context.Context, regionType, id string) (domain.RegionSummary, error)
	History(ctx context.Context, station string, limit int, level domain.RiskLevel) ([]domain.Assessment, error)
}

// Thresholds reads and edits threshold configurations.
type Thresholds interface {
	Effective(ctx context.Context, station string) (domain.ThresholdConfig, thresholds.Source)
	Save(ctx context.Context, station string, cfg domain.ThresholdConfig) (domain.ThresholdConfig, error)
	Deactivate(ctx context.Context, id int64) error
}

// Server wraps the fiber application.
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger
}

// NewServer builds the application and registers every route.
func NewServer(addr string, forecaster Forecaster, evaluator Evaluator, configs Thresholds, logger *slog.Logger) *Server {
	// Route params outlive the handler in assessments, caches and store keys, so they
	// must not alias fiber's pooled request buffers.
	app := fiber.New(fiber.Config{
		AppName:               "reservoir-risk-service",
		Immutable:             true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(requestLogger(logger))

	h := &handler{forecaster: forecaster, evaluator: evaluator, configs: configs}
	app.Get("/stations", h.listStations)
	app.Post("/forecasts", h.batchForecast)
	app.Post("/forecasts/:station", h.forecast)
	app.Get("/forecasts/:station/latest", h.latestForecast)
	app.Post("/evaluations/:station", h.evaluate)
	app.Get("/evaluations/:station/history", h.history)
	app.Get("/regions/:type/:id/risk", h.regionRisk)
	app.Get("/thresholds/:station", h.effectiveThresholds)
	app.Post("/thresholds", h.saveThresholds)
	app.Delete("/thresholds/:id", h.deactivateThresholds)

	return &Server{app: app, addr: addr, logger: logger}
}

// App exposes the fiber application, useful for testing with app.Test.
func (s *Server) App() *fiber.App { return s.app }

// Start begins listening. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("api server starting", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Shutdown stops accepting connections and waits for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// requestLogger logs one line per request with slog.
func requestLogger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status, _ = statusFor(err)
		}
		logger.Info("http request",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"latency", time.Since(start),
		)
		return err
	}
}
