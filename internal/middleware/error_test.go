package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soltixdb/unistor/internal/logging"
	"github.com/soltixdb/unistor/internal/models"
	"github.com/soltixdb/unistor/internal/services"
)

func newErrorApp(err error) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.NewNop())})
	app.Get("/test", func(c *fiber.Ctx) error {
		return err
	})
	return app
}

func decodeError(t *testing.T, body io.Reader) models.ErrorResponse {
	t.Helper()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp
}

func TestErrorHandler_FiberError(t *testing.T) {
	tests := []struct {
		name           string
		fiberError     *fiber.Error
		expectedStatus int
		expectedMsg    string
	}{
		{"BadRequest", fiber.ErrBadRequest, fiber.StatusBadRequest, "Bad Request"},
		{"Unauthorized", fiber.ErrUnauthorized, fiber.StatusUnauthorized, "Unauthorized"},
		{"NotFound", fiber.ErrNotFound, fiber.StatusNotFound, "Not Found"},
		{"ServiceUnavailable", fiber.ErrServiceUnavailable, fiber.StatusServiceUnavailable, "Service Unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := newErrorApp(tt.fiberError).Test(httptest.NewRequest("GET", "/test", nil))
			if err != nil {
				t.Fatalf("Failed to perform request: %v", err)
			}
			if resp.StatusCode != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, resp.StatusCode)
			}

			body := decodeError(t, resp.Body)
			if body.Error.Message != tt.expectedMsg {
				t.Errorf("Expected message %q, got %q", tt.expectedMsg, body.Error.Message)
			}
			if body.Error.Path != "/test" {
				t.Errorf("Expected path /test, got %q", body.Error.Path)
			}
		})
	}
}

func TestErrorHandler_ServiceError(t *testing.T) {
	svcErr := services.NewServiceErrorWithDetails(services.CodeInsufficientCapacity,
		"allocation: insufficient capacity", map[string]interface{}{"constraint": "capacity"})

	resp, err := newErrorApp(fmt.Errorf("provision: %w", svcErr)).Test(httptest.NewRequest("GET", "/test", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	body := decodeError(t, resp.Body)
	assert.Equal(t, services.CodeInsufficientCapacity, body.Error.Code)
	assert.Equal(t, "capacity", body.Error.Details["constraint"])
}

func TestErrorHandler_GenericError(t *testing.T) {
	resp, err := newErrorApp(errors.New("boom")).Test(httptest.NewRequest("GET", "/test", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	body := decodeError(t, resp.Body)
	assert.Equal(t, "ERROR", body.Error.Code)
	assert.Equal(t, "Internal Server Error", body.Error.Message)
}

func TestStatusForCode(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{services.CodeInvalidRequest, fiber.StatusBadRequest},
		{services.CodeNotFound, fiber.StatusNotFound},
		{services.CodeInsufficientCapacity, fiber.StatusConflict},
		{services.CodeInsufficientDiversity, fiber.StatusConflict},
		{services.CodeCommitConflict, fiber.StatusConflict},
		{services.CodeNoCandidates, fiber.StatusUnprocessableEntity},
		{services.CodeUnsupported, fiber.StatusNotImplemented},
		{services.CodeInternal, fiber.StatusInternalServerError},
		{"SOMETHING_ELSE", fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := StatusForCode(tt.code); got != tt.want {
			t.Errorf("StatusForCode(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}
