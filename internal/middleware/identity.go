package middleware

import "github.com/labstack/echo/v4"

// CredentialID returns the authenticated credential, or "" on routes that
// JWTAuth does not guard.
func CredentialID(c echo.Context) string {
	if v, ok := c.Get(CredentialKey).(string); ok {
		return v
	}
	return ""
}

// clientID names the caller for rate limit and cache keys.
func clientID(c echo.Context) string {
	if id := CredentialID(c); id != "" {
		return id
	}
	return "anon"
}
