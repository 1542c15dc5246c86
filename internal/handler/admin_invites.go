package handler

import (
	"context"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vpn-access-portal/internal/config"
	"github.com/iliyamo/vpn-access-portal/internal/model"
	"github.com/iliyamo/vpn-access-portal/internal/repository"
	"github.com/iliyamo/vpn-access-portal/internal/utils"
)

// InviteHandler serves the admin invite endpoints.
type InviteHandler struct {
	Cfg     config.Config
	Invites InviteStore
}

func NewInviteHandler(cfg config.Config, inv InviteStore) *InviteHandler {
	return &InviteHandler{Cfg: cfg, Invites: inv}
}

type createInviteReq struct {
	Email    string `json:"email"`     // optional: bind the invite to one address
	TTLHours int    `json:"ttl_hours"` // optional: override the configured default
}

type invitePart struct {
	Token        string  `json:"token"`
	Email        *string `json:"email,omitempty"`
	ExpiresAt    string  `json:"expires_at"`
	Used         bool    `json:"used"`
	Redeemable   bool    `json:"redeemable"`
	UsedByUserID *uint64 `json:"used_by_user_id,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

func toInvitePart(i model.Invite) invitePart {
	return invitePart{
		Token:        i.Token,
		Email:        i.Email,
		ExpiresAt:    i.ExpiresAt.UTC().Format(time.RFC3339),
		Used:         i.Used,
		Redeemable:   i.Redeemable(time.Now().UTC()),
		UsedByUserID: i.UsedByUserID,
		CreatedAt:    i.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Create mints a new single-use invite token.  The expiry defaults to
// the configured invite TTL when the request omits one.
func (h *InviteHandler) Create(c echo.Context) error {
	var req createInviteReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	var email *string
	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid email"})
		}
		email = &req.Email
	}

	ttl := req.TTLHours
	if ttl <= 0 {
		ttl = h.Cfg.InviteTTLHours
	}

	token, err := utils.NewInviteToken()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token generation failed"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	inv, err := h.Invites.Create(ctx, token, email, time.Now().UTC().Add(time.Duration(ttl)*time.Hour))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "invite creation failed"})
	}
	return c.JSON(http.StatusCreated, toInvitePart(inv))
}

// List returns invites, optionally filtered by lifecycle state.
func (h *InviteHandler) List(c echo.Context) error {
	filter := c.QueryParam("filter")
	if filter == "" {
		filter = "all"
	}
	switch filter {
	case "all", "active", "expired", "used":
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "filter must be all, active, expired or used"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	invites, err := h.Invites.List(ctx, filter)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]invitePart, 0, len(invites))
	for _, i := range invites {
		out = append(out, toInvitePart(i))
	}
	return c.JSON(http.StatusOK, out)
}

// Revoke deletes an unused invite.  Revoking an already-used invite
// is a no-op: the redemption stands, only the token row's future is
// gone either way.
func (h *InviteHandler) Revoke(c echo.Context) error {
	token := c.Param("token")

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Invites.Revoke(ctx, token); err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "invite not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "revoke failed"})
	}
	return c.NoContent(http.StatusNoContent)
}
