// Package v1 provides the HTTP handlers for the AVS node API.
package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wwan-labs/wwan-avs/domain"
	"github.com/wwan-labs/wwan-avs/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers the node's routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Task pipeline API
	e.POST("/v1/tasks", h.RegisterTask)
	e.GET("/v1/tasks", h.ListTasks)
	e.GET("/v1/tasks/:task_id", h.GetTask)
	e.POST("/v1/tasks/:task_id/result", h.SubmitTaskResult)
	e.POST("/v1/tasks/:task_id/validate", h.ValidateTask)
	e.POST("/v1/tasks/:task_id/verify", h.VerifyTaskProof)
	e.POST("/v1/tasks/:task_id/finalize", h.FinalizeTask)

	// Agent directory API
	e.POST("/v1/agents/register", h.RegisterAgent)
	e.GET("/v1/agents", h.ListAgents)
	e.GET("/v1/agents/:address", h.GetAgent)
	e.DELETE("/v1/agents/:address", h.RemoveAgent)

	// Allowance API
	e.POST("/v1/users/:user_id/allowances", h.SetAllowance)
	e.GET("/v1/users/:user_id/allowances", h.GetAllowances)
	e.POST("/v1/users/:user_id/tasks", h.SubmitAgentTask)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// writeError maps pipeline errors onto HTTP status codes. Unknown errors
// stay opaque 500s.
func writeError(c echo.Context, err error) error {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{
			"error":  "validation failed",
			"reason": verr.Reason,
		})
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrSignatureInvalid):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrAgentNotRegistered):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrStorageUnavailable),
		errors.Is(err, domain.ErrOracleUnavailable),
		errors.Is(err, domain.ErrLedgerTxFailed):
		status = http.StatusBadGateway
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}
