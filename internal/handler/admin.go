package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-gate/internal/ledger"
	"github.com/iliyamo/parking-gate/internal/model"
	"github.com/iliyamo/parking-gate/internal/parking"
	"github.com/iliyamo/parking-gate/internal/repository"
	"github.com/iliyamo/parking-gate/internal/slot"
)

// AdminHandler is the operator interface: slot overview and override,
// session report and credential management.
type AdminHandler struct {
	slots       *slot.Registry
	ledger      *ledger.Ledger
	credentials repository.CredentialRepository
}

// NewAdminHandler panics on a nil dependency.
func NewAdminHandler(slots *slot.Registry, l *ledger.Ledger, credentials repository.CredentialRepository) *AdminHandler {
	if slots == nil || l == nil || credentials == nil {
		panic("nil dependency passed to NewAdminHandler")
	}
	return &AdminHandler{slots: slots, ledger: l, credentials: credentials}
}

// ListSlots handles GET /v1/admin/slots.
func (h *AdminHandler) ListSlots(c echo.Context) error {
	ctx := c.Request().Context()
	slots, err := h.slots.List(ctx)
	if err != nil {
		return fail(c, err)
	}
	occupied := 0
	for _, s := range slots {
		if s.Status == model.SlotOccupied {
			occupied++
		}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"capacity": h.slots.Capacity(),
		"occupied": occupied,
		"slots":    slots,
	})
}

type slotStatusReq struct {
	Status string `json:"status" form:"status"`
}

// SetSlotStatus handles PUT /v1/admin/slots/:id.
func (h *AdminHandler) SetSlotStatus(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid slot id")
	}
	var req slotStatusReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	status := model.SlotStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if err := h.slots.SetStatus(c.Request().Context(), id, status); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"slot_id": id, "status": status})
}

// ListSessions handles GET /v1/admin/sessions.
func (h *AdminHandler) ListSessions(c echo.Context) error {
	views, err := h.ledger.ListAll(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": views})
}

// ListCredentials handles GET /v1/admin/credentials.
func (h *AdminHandler) ListCredentials(c echo.Context) error {
	list, err := h.credentials.List(c.Request().Context())
	if err != nil {
		return fail(c, parking.Unavailable(err))
	}
	return c.JSON(http.StatusOK, echo.Map{"credentials": list})
}

type credentialReq struct {
	ID   string `json:"id" form:"rfid"`
	Name string `json:"name" form:"name"`
	Role string `json:"role" form:"role"`
}

func (r credentialReq) toModel() (model.Credential, error) {
	c := model.Credential{
		ID:   strings.TrimSpace(r.ID),
		Name: strings.TrimSpace(r.Name),
		Role: model.Role(strings.ToLower(strings.TrimSpace(r.Role))),
	}
	if !c.Role.Valid() {
		return c, parking.ErrInvalidRole
	}
	return c, nil
}

// CreateCredential handles POST /v1/admin/credentials.
func (h *AdminHandler) CreateCredential(c echo.Context) error {
	var req credentialReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	cred, err := req.toModel()
	if err != nil {
		return fail(c, err)
	}
	if cred.ID == "" || cred.Name == "" {
		return badRequest(c, "id and name required")
	}
	err = h.credentials.Create(c.Request().Context(), cred)
	if errors.Is(err, repository.ErrDuplicateKey) {
		return fail(c, parking.ErrCredentialExists)
	}
	if err != nil {
		return fail(c, parking.Unavailable(err))
	}
	created, err := h.credentials.GetByID(c.Request().Context(), cred.ID)
	if err != nil {
		created = cred
	}
	return c.JSON(http.StatusCreated, created)
}

// UpdateCredential handles PUT /v1/admin/credentials/:id. Name and role
// change; the balance is left alone.
func (h *AdminHandler) UpdateCredential(c echo.Context) error {
	var req credentialReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.ID = c.Param("id")
	cred, err := req.toModel()
	if err != nil {
		return fail(c, err)
	}
	if cred.Name == "" {
		return badRequest(c, "name required")
	}
	ctx := c.Request().Context()
	if err := h.credentials.Update(ctx, cred); err != nil {
		return fail(c, credentialError(err))
	}
	updated, err := h.credentials.GetByID(ctx, cred.ID)
	if err != nil {
		return fail(c, credentialError(err))
	}
	return c.JSON(http.StatusOK, updated)
}

// DeleteCredential handles DELETE /v1/admin/credentials/:id. The
// credential's sessions go with it.
func (h *AdminHandler) DeleteCredential(c echo.Context) error {
	if err := h.credentials.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return fail(c, credentialError(err))
	}
	return c.NoContent(http.StatusNoContent)
}

func credentialError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return parking.ErrUnknownCredential
	}
	return parking.Unavailable(err)
}
