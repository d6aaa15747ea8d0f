package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-gate/internal/model"
	"github.com/iliyamo/parking-gate/internal/parking"
	"github.com/iliyamo/parking-gate/internal/repository"
	"github.com/iliyamo/parking-gate/internal/utils"
)

// AuthHandler issues access tokens. A card holder logs in with the id
// printed on the card and the role it is registered with.
type AuthHandler struct {
	credentials repository.CredentialRepository
	secret      string
	ttlMin      int
}

func NewAuthHandler(credentials repository.CredentialRepository, secret string, ttlMin int) *AuthHandler {
	return &AuthHandler{credentials: credentials, secret: secret, ttlMin: ttlMin}
}

type loginReq struct {
	CredentialID string `json:"credential_id" form:"rfid"`
	Role         string `json:"role" form:"role"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type loginResp struct {
	Credential model.Credential `json:"credential"`
	Access     tokenPart        `json:"access"`
}

// Login handles POST /v1/auth/login.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	id := strings.TrimSpace(req.CredentialID)
	role := model.Role(strings.ToLower(strings.TrimSpace(req.Role)))
	if id == "" || !role.Valid() {
		return badRequest(c, "credential_id and role (owner or user) required")
	}

	cred, err := h.credentials.GetByID(c.Request().Context(), id)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && cred.Role != role) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_credentials", "message": "invalid RFID or role"})
	}
	if err != nil {
		return fail(c, parking.Unavailable(err))
	}

	access, err := utils.NewAccessToken(h.secret, cred.ID, string(cred.Role), h.ttlMin)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, loginResp{
		Credential: cred,
		Access:     tokenPart{Token: access.Token, Expires: access.Exp},
	})
}
