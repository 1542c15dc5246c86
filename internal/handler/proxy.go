package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vpn-access-portal/internal/voice"
)

// ProxyHandler exposes admin pass-throughs to the collaborating
// services: the voice server's admin API and the gateway restart hook
// on the key-management service.  The portal only checks the caller's
// role; the payloads are opaque to it.
type ProxyHandler struct {
	Voice *voice.Client
	Keys  KeyIssuer
}

func NewProxyHandler(v *voice.Client, keys KeyIssuer) *ProxyHandler {
	return &ProxyHandler{Voice: v, Keys: keys}
}

// VoiceForward relays the request to the voice-server admin API under
// the same subpath and hands the upstream response straight back.
func (h *ProxyHandler) VoiceForward(c echo.Context) error {
	req := c.Request()

	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(io.LimitReader(req.Body, 1<<20))
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
		}
		body = b
	}

	ctx, cancel := context.WithTimeout(req.Context(), 15*time.Second)
	defer cancel()

	status, out, err := h.Voice.Forward(ctx, req.Method, "/"+c.Param("*"), body)
	if err != nil {
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "voice service unavailable"})
	}
	return c.Blob(status, echo.MIMEApplicationJSON, out)
}

// GatewayRestart asks the key-management service to restart the VPN
// gateway so config changes take effect.
func (h *ProxyHandler) GatewayRestart(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	if err := h.Keys.RestartGateway(ctx); err != nil {
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "gateway restart failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "restarting"})
}
