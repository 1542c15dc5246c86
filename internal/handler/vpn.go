package handler

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vpn-access-portal/internal/model"
	"github.com/iliyamo/vpn-access-portal/internal/queue"
	"github.com/iliyamo/vpn-access-portal/internal/repository"
)

// VPNHandler serves the provisioning gate: enabling and disabling
// network access per user, handing out the rendered tunnel config and
// the aggregate status view.
type VPNHandler struct {
	Users   UserStore
	VPN     VPNStore
	Keys    KeyIssuer
	Pool    []string // usable addresses expanded from the configured CIDR
	Publish EventPublisher
}

func NewVPNHandler(users UserStore, vpn VPNStore, keys KeyIssuer, pool []string, pub EventPublisher) *VPNHandler {
	return &VPNHandler{Users: users, VPN: vpn, Keys: keys, Pool: pool, Publish: pub}
}

type vpnConfigPart struct {
	UserID    uint64 `json:"user_id"`
	PublicKey string `json:"public_key"`
	Address   string `json:"address"`
	Enabled   bool   `json:"enabled"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toVPNConfigPart(v model.VPNConfig) vpnConfigPart {
	return vpnConfigPart{
		UserID:    v.UserID,
		PublicKey: v.PublicKey,
		Address:   v.Address,
		Enabled:   v.Enabled,
		CreatedAt: v.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: v.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Enable turns network access on for a user.  The first call issues a
// keypair and allocates an address; later calls just flip the flag
// back on without touching keys or the address.  Admin or self.
func (h *VPNHandler) Enable(c echo.Context) error {
	id, err := targetID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	if !adminOrSelf(c, id) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if u.Status != model.StatusActive {
		return c.JSON(http.StatusConflict, echo.Map{"error": "account not active"})
	}

	cfg, err := h.VPN.GetByUserID(ctx, id)
	switch err {
	case nil:
		wasEnabled := cfg.Enabled
		cfg, err = h.VPN.SetEnabled(ctx, id, true)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
		}
		if !wasEnabled {
			h.publishVPN(ctx, c, queue.EventVPNEnabled, u)
		}
		return c.JSON(http.StatusOK, toVPNConfigPart(cfg))
	case repository.ErrNotFound:
		// first enable: provision below
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	kp, err := h.Keys.IssueKeypair(ctx)
	if err != nil {
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "key service unavailable"})
	}

	cfg, err = h.VPN.Allocate(ctx, id, kp.PublicKey, kp.PrivateKey, h.Pool)
	switch err {
	case nil:
		h.publishVPN(ctx, c, queue.EventVPNEnabled, u)
		return c.JSON(http.StatusCreated, toVPNConfigPart(cfg))
	case repository.ErrConflict:
		// a concurrent enable won the insert: adopt its config
		cfg, err = h.VPN.SetEnabled(ctx, id, true)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
		}
		return c.JSON(http.StatusOK, toVPNConfigPart(cfg))
	case repository.ErrPoolExhausted:
		return c.JSON(http.StatusConflict, echo.Map{"error": "address pool exhausted"})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "provisioning failed"})
}

// Disable turns network access off.  The keypair and address stay
// allocated so a later re-enable hands back the same identity.
// Admin or self.
func (h *VPNHandler) Disable(c echo.Context) error {
	id, err := targetID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	if !adminOrSelf(c, id) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	cfg, err := h.VPN.GetByUserID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "no vpn config"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	wasEnabled := cfg.Enabled

	cfg, err = h.VPN.SetEnabled(ctx, id, false)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}

	if wasEnabled {
		if u, uerr := h.Users.GetByID(ctx, id); uerr == nil {
			h.publishVPN(ctx, c, queue.EventVPNDisabled, u)
		}
	}
	return c.JSON(http.StatusOK, toVPNConfigPart(cfg))
}

// GetConfig returns the stored config for a user together with the
// rendered tunnel file text.  Only the owner or an admin may fetch
// it, since the response includes the private key.
func (h *VPNHandler) GetConfig(c echo.Context) error {
	id, err := targetID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	if !adminOrSelf(c, id) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	cfg, err := h.VPN.GetByUserID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "no vpn config"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	resp := echo.Map{"config": toVPNConfigPart(cfg)}
	// The importable tunnel file is only rendered for an enabled
	// config, and only when the key service can tell us about the
	// server side; the stored config is returned either way so the
	// owner can see the state of a disabled allocation.
	if cfg.Enabled {
		if info, err := h.Keys.ServerInfo(ctx); err == nil {
			resp["tunnel"] = renderTunnel(cfg, info.PublicKey, info.Endpoint, info.DNS)
		} else {
			log.Printf("vpn: server info: %v", err)
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// Status returns the aggregate pool view.  Cached at the edge.
func (h *VPNHandler) Status(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	st, err := h.VPN.Status(ctx, len(h.Pool))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, st)
}

// renderTunnel produces a client tunnel file for the stored config.
func renderTunnel(cfg model.VPNConfig, serverKey, endpoint, dns string) string {
	return fmt.Sprintf(`[Interface]
PrivateKey = %s
Address = %s/32
DNS = %s

[Peer]
PublicKey = %s
Endpoint = %s
AllowedIPs = 0.0.0.0/0
PersistentKeepalive = 25
`, cfg.PrivateKey, cfg.Address, dns, serverKey, endpoint)
}

func (h *VPNHandler) publishVPN(ctx context.Context, c echo.Context, typ string, u model.User) {
	if h.Publish == nil {
		return
	}
	ev := queue.NewLifecycleEvent(typ, u.ID, u.Email)
	ev.Username = u.Username
	ev.Actor, _ = callerInfo(c)
	if err := h.Publish(ctx, ev); err != nil {
		log.Printf("vpn: publish %s event: %v", typ, err)
	}
}
