package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-gate/internal/parking"
)

var statuses = []struct {
	err    error
	status int
}{
	{parking.ErrInvalidEvent, http.StatusBadRequest},
	{parking.ErrInvalidSlotStatus, http.StatusBadRequest},
	{parking.ErrInvalidRole, http.StatusBadRequest},
	{parking.ErrOwnerNotPermitted, http.StatusForbidden},
	{parking.ErrUnknownCredential, http.StatusNotFound},
	{parking.ErrUnknownSlot, http.StatusNotFound},
	{parking.ErrNotFound, http.StatusNotFound},
	{parking.ErrFacilityFull, http.StatusConflict},
	{parking.ErrDuplicateEntry, http.StatusConflict},
	{parking.ErrNoActiveSession, http.StatusConflict},
	{parking.ErrSessionAlreadyOpen, http.StatusConflict},
	{parking.ErrNoOpenSession, http.StatusConflict},
	{parking.ErrSessionNotClosed, http.StatusConflict},
	{parking.ErrAlreadyPaid, http.StatusConflict},
	{parking.ErrCredentialExists, http.StatusConflict},
	{parking.ErrClockSkew, http.StatusUnprocessableEntity},
	{parking.ErrStoreUnavailable, http.StatusServiceUnavailable},
}

// statusOf maps a parking error kind to its HTTP status.
func statusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	for _, s := range statuses {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// fail writes {"error": code, "message": ...}. Internal errors are logged
// and their text is not echoed to the client.
func fail(c echo.Context, err error) error {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
		msg = "internal error"
	}
	return c.JSON(status, echo.Map{"error": parking.Code(err), "message": msg})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_request", "message": msg})
}
