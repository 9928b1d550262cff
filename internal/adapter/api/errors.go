package api

import (
	"errors"
	"log/slog"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
	"github.com/gofiber/fiber/v2"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// statusFor maps an error to a status code and a client-facing message. Internal errors
// are not echoed.
func statusFor(err error) (int, string) {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code, fe.Message
	case errors.Is(err, domain.ErrUnknownStation),
		errors.Is(err, domain.ErrConfigNotFound):
		return fiber.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrInsufficientHistory),
		errors.Is(err, domain.ErrDateTooEarly),
		errors.Is(err, domain.ErrInvalidHorizon),
		errors.Is(err, domain.ErrInvalidRegion),
		errors.Is(err, domain.ErrMissingCapacity),
		errors.Is(err, domain.ErrInvalidThresholds),
		errors.Is(err, domain.ErrInvalidRiskLevel):
		return fiber.StatusBadRequest, err.Error()
	default:
		return fiber.StatusInternalServerError, "internal server error"
	}
}

func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code, message := statusFor(err)
		if code >= fiber.StatusInternalServerError {
			logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
		}
		return c.Status(code).JSON(errorResponse{Error: true, Message: message})
	}
}
