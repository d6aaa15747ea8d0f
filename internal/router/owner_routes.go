package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-gate/internal/handler"
	"github.com/iliyamo/parking-gate/internal/middleware"
	"github.com/iliyamo/parking-gate/internal/model"
)

// RegisterOwner registers the operator endpoints under /v1/admin. All
// routes require a valid JWT with the owner role. Report reads go through
// cache, which may serve them up to its TTL stale.
func RegisterOwner(e *echo.Echo, o *handler.AdminHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleOwner),
	)

	// ---- Slots ----
	g.GET("/slots", o.ListSlots, cache)
	g.PUT("/slots/:id", o.SetSlotStatus)

	// ---- Sessions ----
	g.GET("/sessions", o.ListSessions, cache)

	// ---- Credentials ----
	g.GET("/credentials", o.ListCredentials, cache)
	g.POST("/credentials", o.CreateCredential)
	g.PUT("/credentials/:id", o.UpdateCredential)
	g.DELETE("/credentials/:id", o.DeleteCredential)
}
