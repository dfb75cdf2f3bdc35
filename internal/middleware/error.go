package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/soltixdb/unistor/internal/logging"
	"github.com/soltixdb/unistor/internal/models"
	"github.com/soltixdb/unistor/internal/services"
)

// StatusForCode maps service error codes to HTTP statuses. Capacity and
// diversity shortfalls are conflicts with current cluster state; a request
// no drive can ever satisfy is unprocessable.
func StatusForCode(code string) int {
	switch code {
	case services.CodeInvalidRequest:
		return fiber.StatusBadRequest
	case services.CodeNotFound:
		return fiber.StatusNotFound
	case services.CodeInsufficientCapacity, services.CodeInsufficientDiversity, services.CodeCommitConflict:
		return fiber.StatusConflict
	case services.CodeNoCandidates:
		return fiber.StatusUnprocessableEntity
	case services.CodeUnsupported:
		return fiber.StatusNotImplemented
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler returns a custom error handler middleware
func ErrorHandler(logger *logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		detail := models.ErrorDetail{
			Code:    "ERROR",
			Message: "Internal Server Error",
			Path:    c.Path(),
		}

		var fe *fiber.Error
		var se *services.ServiceError
		switch {
		case errors.As(err, &se):
			status = StatusForCode(se.Code)
			detail.Code = se.Code
			detail.Message = se.Message
			detail.Details = se.Details
		case errors.As(err, &fe):
			status = fe.Code
			detail.Message = fe.Message
		}

		if status >= fiber.StatusInternalServerError {
			logger.Error("Request error",
				"path", c.Path(),
				"method", c.Method(),
				"status", status,
				"error", err,
			)
		}

		return c.Status(status).JSON(models.ErrorResponse{Error: detail})
	}
}
