package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
	"github.com/couchcryptid/reservoir-risk-service/internal/evaluation"
	"github.com/couchcryptid/reservoir-risk-service/internal/thresholds"
	"github.com/gofiber/fiber/v2"
)

// Forecast horizons accepted by the API, in days.
const (
	MinHorizon     = 1
	MaxHorizon     = 180
	DefaultHorizon = 90
)

// Bounds of the history limit query parameter.
const (
	DefaultHistoryLimit = 30
	MaxHistoryLimit     = 365
)

type handler struct {
	forecaster Forecaster
	evaluator  Evaluator
	configs    Thresholds
}

type forecastRequest struct {
	AnchorDate  string `json:"anchor_date"`
	HorizonDays int    `json:"horizon_days"`
}

type batchForecastRequest struct {
	Stations    []string `json:"stations"`
	AnchorDate  string   `json:"anchor_date"`
	HorizonDays int      `json:"horizon_days"`
}

type batchForecastResponse struct {
	Forecasts []domain.Forecast `json:"forecasts"`
	Errors    []string          `json:"errors"`
}

type evaluationRequest struct {
	AnchorDate  string `json:"anchor_date"`
	HorizonDays int    `json:"horizon_days"`
	Force       bool   `json:"force"`
}

type evaluationResponse struct {
	domain.Assessment
	Cached bool `json:"cached"`
}

type historyResponse struct {
	Station     string              `json:"station"`
	Level       domain.RiskLevel    `json:"level,omitempty"`
	Total       int                 `json:"total"`
	Assessments []domain.Assessment `json:"assessments"`
}

type thresholdsResponse struct {
	Station string                 `json:"station"`
	Source  thresholds.Source      `json:"source"`
	Config  domain.ThresholdConfig `json:"config"`
}

// saveThresholdsRequest carries a configuration; an empty station targets the global one.
type saveThresholdsRequest struct {
	Station string `json:"station"`
	domain.ThresholdConfig
}

type stationsResponse struct {
	Stations   []string `json:"stations"`
	Count      int      `json:"count"`
	MaxHorizon int      `json:"max_horizon"`
}

func (h *handler) listStations(c *fiber.Ctx) error {
	codes := h.forecaster.Stations()
	if codes == nil {
		codes = []string{}
	}
	return c.JSON(stationsResponse{Stations: codes, Count: len(codes), MaxHorizon: h.forecaster.MaxHorizon()})
}

func (h *handler) forecast(c *fiber.Ctx) error {
	var req forecastRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	anchor, horizon, err := forecastParams(req.AnchorDate, req.HorizonDays)
	if err != nil {
		return err
	}

	fc, err := h.forecaster.Forecast(c.UserContext(), c.Params("station"), anchor, horizon)
	if err != nil {
		return err
	}
	return c.JSON(fc)
}

// latestForecast anchors the default horizon so that every forecast day has an
// observation to compare against.
func (h *handler) latestForecast(c *fiber.Ctx) error {
	station := c.Params("station")
	horizon := min(DefaultHorizon, h.forecaster.MaxHorizon())

	anchor, err := h.forecaster.LatestAnchor(c.UserContext(), station, horizon)
	if err != nil {
		return err
	}
	fc, err := h.forecaster.Forecast(c.UserContext(), station, anchor, horizon)
	if err != nil {
		return err
	}
	return c.JSON(fc)
}

// batchForecast forecasts several stations with shared parameters. It fails only when
// no station could be forecast.
func (h *handler) batchForecast(c *fiber.Ctx) error {
	var req batchForecastRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if len(req.Stations) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "stations must not be empty")
	}
	anchor, horizon, err := forecastParams(req.AnchorDate, req.HorizonDays)
	if err != nil {
		return err
	}

	resp := batchForecastResponse{Forecasts: []domain.Forecast{}, Errors: []string{}}
	for _, station := range req.Stations {
		fc, err := h.forecaster.Forecast(c.UserContext(), station, anchor, horizon)
		if err != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %v", station, err))
			continue
		}
		resp.Forecasts = append(resp.Forecasts, fc)
	}
	if len(resp.Forecasts) == 0 {
		return fiber.NewError(fiber.StatusBadRequest,
			"no forecast could be generated: "+strings.Join(resp.Errors, "; "))
	}
	return c.JSON(resp)
}

func (h *handler) evaluate(c *fiber.Ctx) error {
	var req evaluationRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.HorizonDays < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "horizon_days must be positive")
	}
	var anchor time.Time
	if req.AnchorDate != "" {
		d, err := domain.ParseDate(req.AnchorDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "anchor_date must be YYYY-MM-DD")
		}
		anchor = d
	}

	a, cached, err := h.evaluator.Evaluate(c.UserContext(), evaluation.Request{
		Station: c.Params("station"),
		Anchor:  anchor,
		Horizon: req.HorizonDays,
		Force:   req.Force,
	})
	if err != nil {
		return err
	}
	return c.JSON(evaluationResponse{Assessment: a, Cached: cached})
}

func (h *handler) history(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", DefaultHistoryLimit)
	if limit < 1 || limit > MaxHistoryLimit {
		return fiber.NewError(fiber.StatusBadRequest,
			fmt.Sprintf("limit must be between 1 and %d", MaxHistoryLimit))
	}
	var level domain.RiskLevel
	if raw := c.Query("level"); raw != "" {
		l, err := domain.ParseRiskLevel(strings.ToUpper(raw))
		if err != nil {
			return err
		}
		level = l
	}

	station := c.Params("station")
	out, err := h.evaluator.History(c.UserContext(), station, limit, level)
	if err != nil {
		return err
	}
	if out == nil {
		out = []domain.Assessment{}
	}
	return c.JSON(historyResponse{Station: station, Level: level, Total: len(out), Assessments: out})
}

func (h *handler) effectiveThresholds(c *fiber.Ctx) error {
	station := c.Params("station")
	cfg, source := h.configs.Effective(c.UserContext(), station)
	return c.JSON(thresholdsResponse{Station: station, Source: source, Config: cfg})
}

func (h *handler) saveThresholds(c *fiber.Ctx) error {
	var req saveThresholdsRequest
	if len(c.Body()) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "request body is required")
	}
	if err := parseBody(c, &req); err != nil {
		return err
	}

	station := strings.TrimSpace(req.Station)
	saved, err := h.configs.Save(c.UserContext(), station, req.ThresholdConfig)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(thresholdsResponse{Station: station, Source: sourceOf(station), Config: saved})
}

func (h *handler) deactivateThresholds(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id < 1 {
		return fiber.NewError(fiber.StatusBadRequest, "id must be a positive integer")
	}
	if err := h.configs.Deactivate(c.UserContext(), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"id": id, "active": false})
}

func sourceOf(station string) thresholds.Source {
	if station == "" {
		return thresholds.SourceGlobal
	}
	return thresholds.SourceStation
}

func (h *handler) regionRisk(c *fiber.Ctx) error {
	summary, err := h.evaluator.RegionSummary(c.UserContext(), c.Params("type"), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(summary)
}

// parseBody decodes a JSON body into v. An empty body leaves v untouched.
func parseBody(c *fiber.Ctx, v any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(v); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return nil
}

// forecastParams applies the API defaults: today and DefaultHorizon.
func forecastParams(anchorDate string, horizon int) (time.Time, int, error) {
	if horizon == 0 {
		horizon = DefaultHorizon
	}
	if horizon < MinHorizon || horizon > MaxHorizon {
		return time.Time{}, 0, fiber.NewError(fiber.StatusBadRequest,
			fmt.Sprintf("horizon_days must be between %d and %d", MinHorizon, MaxHorizon))
	}
	if anchorDate == "" {
		return domain.Today(), horizon, nil
	}
	anchor, err := domain.ParseDate(anchorDate)
	if err != nil {
		return time.Time{}, 0, fiber.NewError(fiber.StatusBadRequest, "anchor_date must be YYYY-MM-DD")
	}
	return anchor, horizon, nil
}
