// Package http provides the HTTP server for the AVS node.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/wwan-labs/wwan-avs/internal/service"
	v1 "github.com/wwan-labs/wwan-avs/internal/transport/http/v1"
)

// NewServer creates and configures the node's HTTP server. It exposes the
// task pipeline, the agent directory and allowance management.
func NewServer(svc *service.Service) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	handler := v1.NewHandler(svc)
	handler.RegisterRoutes(e)

	return e
}
