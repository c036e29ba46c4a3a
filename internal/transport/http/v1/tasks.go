package v1

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wwan-labs/wwan-avs/domain"
)

// TaskRegisterRequest is the request to register a task.
type TaskRegisterRequest struct {
	Creator  string `json:"creator"`
	TaskType string `json:"task_type"`
	TaskData string `json:"task_data"`
	Payment  string `json:"payment"`
}

// RegisterTask creates a new task and matches it with an agent.
// POST /v1/tasks
func (h *Handler) RegisterTask(c echo.Context) error {
	ctx := c.Request().Context()

	var req TaskRegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if req.Creator == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "creator is required"})
	}
	if req.TaskType == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "task_type is required"})
	}

	task, err := h.service.RegisterTask(ctx, req.Creator, req.TaskType, req.TaskData, req.Payment)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, task)
}

// ListTasks lists all tasks.
// GET /v1/tasks
func (h *Handler) ListTasks(c echo.Context) error {
	ctx := c.Request().Context()

	tasks, err := h.service.ListTasks(ctx)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"tasks": tasks,
	})
}

// GetTask gets a specific task by ID.
// GET /v1/tasks/:task_id
func (h *Handler) GetTask(c echo.Context) error {
	ctx := c.Request().Context()
	taskID := c.Param("task_id")

	task, err := h.service.GetTask(ctx, taskID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, task)
}

// TaskResultRequest is a signed result submission from the assigned agent.
type TaskResultRequest struct {
	Result    json.RawMessage `json:"result"`
	Signature string          `json:"signature"`
}

// SubmitTaskResult ingests a signed result and runs validation and
// attestation. A policy rejection is reported with 422 alongside the
// task's terminal state.
// POST /v1/tasks/:task_id/result
func (h *Handler) SubmitTaskResult(c echo.Context) error {
	ctx := c.Request().Context()
	taskID := c.Param("task_id")

	var req TaskResultRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if len(req.Result) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "result is required"})
	}
	if req.Signature == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "signature is required"})
	}

	task, err := h.service.HandleTaskResult(ctx, taskID, req.Result, req.Signature)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) && task != nil {
			return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
				"error":  "validation failed",
				"reason": verr.Reason,
				"task":   task,
			})
		}
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, task)
}

// ValidateTask re-runs validation for a task whose result was recorded.
// POST /v1/tasks/:task_id/validate
func (h *Handler) ValidateTask(c echo.Context) error {
	ctx := c.Request().Context()
	taskID := c.Param("task_id")

	task, err := h.service.ValidateTask(ctx, taskID)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) && task != nil {
			return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
				"error":  "validation failed",
				"reason": verr.Reason,
				"task":   task,
			})
		}
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, task)
}

// VerifyTaskProof re-checks the stored proof for a task.
// POST /v1/tasks/:task_id/verify
func (h *Handler) VerifyTaskProof(c echo.Context) error {
	ctx := c.Request().Context()
	taskID := c.Param("task_id")

	ok, err := h.service.VerifyTaskProof(ctx, taskID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]bool{"verified": ok})
}

// FinalizeTask settles a verified task on the ledger.
// POST /v1/tasks/:task_id/finalize
func (h *Handler) FinalizeTask(c echo.Context) error {
	ctx := c.Request().Context()
	taskID := c.Param("task_id")

	task, err := h.service.FinalizeTask(ctx, taskID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, task)
}
