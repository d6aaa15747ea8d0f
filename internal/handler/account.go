package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-gate/internal/ledger"
	"github.com/iliyamo/parking-gate/internal/middleware"
)

// AccountHandler serves a card holder's own sessions and payments.
type AccountHandler struct {
	ledger *ledger.Ledger
}

func NewAccountHandler(l *ledger.Ledger) *AccountHandler {
	return &AccountHandler{ledger: l}
}

// Me handles GET /v1/me: the caller's statement.
func (h *AccountHandler) Me(c echo.Context) error {
	st, err := h.ledger.Statement(c.Request().Context(), middleware.CredentialID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// Sessions handles GET /v1/me/sessions.
func (h *AccountHandler) Sessions(c echo.Context) error {
	list, err := h.ledger.ListFor(c.Request().Context(), middleware.CredentialID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": list})
}

// Pay handles POST /v1/sessions/:id/pay. Only the credential that parked
// may pay; any other caller gets 404.
func (h *AccountHandler) Pay(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return badRequest(c, "invalid session id")
	}
	sess, err := h.ledger.MarkPaid(c.Request().Context(), id, middleware.CredentialID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}
