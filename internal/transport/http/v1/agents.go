package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wwan-labs/wwan-avs/domain"
)

// AgentRegisterRequest is the request to register an agent. Metadata may
// be supplied inline or as a content storage reference.
type AgentRegisterRequest struct {
	Address     string                `json:"address"`
	MetadataRef string                `json:"metadata_ref,omitempty"`
	Metadata    *domain.AgentMetadata `json:"metadata,omitempty"`
}

// RegisterAgent registers a new agent.
// POST /v1/agents/register
func (h *Handler) RegisterAgent(c echo.Context) error {
	ctx := c.Request().Context()

	var req AgentRegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if req.Address == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "address is required"})
	}
	if req.MetadataRef == "" && req.Metadata == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "metadata or metadata_ref is required"})
	}

	var metadata domain.AgentMetadata
	if req.Metadata != nil {
		metadata = *req.Metadata
	}

	agent, err := h.service.RegisterAgent(ctx, req.Address, req.MetadataRef, metadata)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, agent)
}

// ListAgents lists all registered agents.
// GET /v1/agents
func (h *Handler) ListAgents(c echo.Context) error {
	ctx := c.Request().Context()

	agents, err := h.service.ListAgents(ctx)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"agents": agents,
	})
}

// GetAgent gets a specific agent by address.
// GET /v1/agents/:address
func (h *Handler) GetAgent(c echo.Context) error {
	ctx := c.Request().Context()
	address := c.Param("address")

	agent, err := h.service.GetAgent(ctx, address)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, agent)
}

// RemoveAgent removes an agent from the directory.
// DELETE /v1/agents/:address
func (h *Handler) RemoveAgent(c echo.Context) error {
	ctx := c.Request().Context()
	address := c.Param("address")

	if err := h.service.RemoveAgent(ctx, address); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]bool{"removed": true})
}
