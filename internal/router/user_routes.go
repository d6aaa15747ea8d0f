package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-gate/internal/handler"
	"github.com/iliyamo/parking-gate/internal/middleware"
	"github.com/iliyamo/parking-gate/internal/model"
)

// RegisterUser registers the card holder endpoints under /v1. All routes
// require a valid JWT with the user role.
func RegisterUser(e *echo.Echo, h *handler.AccountHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleUser),
	)
	g.GET("/me", h.Me)
	g.GET("/me/sessions", h.Sessions)
	g.POST("/sessions/:id/pay", h.Pay)
}
