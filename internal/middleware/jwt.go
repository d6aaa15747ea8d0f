// Package middleware holds the echo middleware of the operator and user
// API: token authentication, role checks, rate limiting and report caching.
package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-gate/internal/utils"
)

// Context keys set by JWTAuth.
const (
	CredentialKey = "credential_id"
	RoleKey       = "role"
)

// JWTAuth validates a Bearer access token and stores its subject and role
// under CredentialKey and RoleKey.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			claims, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set(CredentialKey, claims.Subject)
			c.Set(RoleKey, claims.Role)
			return next(c)
		}
	}
}
