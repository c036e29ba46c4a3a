package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// AllowanceRequest is the request to grant an agent a spending allowance.
type AllowanceRequest struct {
	AgentID   string `json:"agent_id"`
	Allowance string `json:"allowance"`
	OnChain   bool   `json:"on_chain,omitempty"`
}

// SetAllowance grants an agent a spending allowance on behalf of a user.
// POST /v1/users/:user_id/allowances
func (h *Handler) SetAllowance(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Param("user_id")

	var req AllowanceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if req.AgentID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "agent_id is required"})
	}
	if req.Allowance == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "allowance is required"})
	}

	if err := h.service.SetAllowance(ctx, userID, req.AgentID, req.Allowance, req.OnChain); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// GetAllowances lists a user's allowances.
// GET /v1/users/:user_id/allowances
func (h *Handler) GetAllowances(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Param("user_id")

	allowances, err := h.service.GetAllowances(ctx, userID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"allowances": allowances,
	})
}

// AgentTaskRequest is a user's task submission routed to a specific agent.
type AgentTaskRequest struct {
	AgentID  string `json:"agent_id"`
	TaskType string `json:"task_type"`
	TaskData string `json:"task_data"`
	Payment  string `json:"payment"`
}

// SubmitAgentTask submits a task to an agent on behalf of a user.
// POST /v1/users/:user_id/tasks
func (h *Handler) SubmitAgentTask(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Param("user_id")

	var req AgentTaskRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if req.AgentID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "agent_id is required"})
	}
	if req.TaskType == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "task_type is required"})
	}

	task, err := h.service.SubmitAgentTask(ctx, userID, req.AgentID, req.TaskType, req.TaskData, req.Payment)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, task)
}
