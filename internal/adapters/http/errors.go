package http

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/geodetect/internal/core/domain"
	"github.com/samirrijal/geodetect/internal/pkg/geospatial"
	"github.com/samirrijal/geodetect/internal/pkg/logging"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // bad_request, area_too_large, not_found, conflict, upstream_error, internal_error
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusNotFound, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

// writeServiceError maps a use-case error onto the HTTP error body.
func writeServiceError(c *fiber.Ctx, err error) error {
	var (
		inputErr *geospatial.InvalidInputError
		geomErr  *geospatial.InvalidGeometryError
		areaErr  *domain.AreaTooLargeError
		predErr  *domain.PredictionError
	)
	switch {
	case errors.As(err, &inputErr), errors.As(err, &geomErr):
		return errBadRequest(c, err.Error())
	case errors.As(err, &areaErr):
		return newError(c, fiber.StatusBadRequest, "area_too_large", areaErr.Error())
	case errors.Is(err, domain.ErrNotFound):
		return errNotFound(c, err.Error())
	case errors.Is(err, domain.ErrDuplicateRequest):
		return newError(c, fiber.StatusConflict, "conflict", "an identical detection was submitted moments ago")
	case errors.As(err, &predErr):
		return newError(c, fiber.StatusBadGateway, "upstream_error", fmt.Sprintf("prediction service: %s", predErr.Message))
	}
	logging.FromContext(c.UserContext()).Error("request failed", "path", c.Path(), "error", err)
	return errInternal(c, "internal error")
}
