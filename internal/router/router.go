// Package router registers the HTTP routes of the parking gate service.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-gate/internal/handler"
)

// RegisterRoutes registers the unauthenticated probes and the Prometheus
// scrape endpoint.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler, metrics http.Handler) {
	e.GET("/healthz", h.Health)
	e.GET("/readyz", h.Ready)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
}

// RegisterGate registers the HTTP ingestion endpoint for card readers.
// limiter guards it against a flooding client.
func RegisterGate(e *echo.Echo, g *handler.GateHandler, limiter echo.MiddlewareFunc) {
	e.POST("/v1/gate/events", g.PostEvent, limiter)
}

// RegisterAuth registers login.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler) {
	e.POST("/v1/auth/login", a.Login)
}
