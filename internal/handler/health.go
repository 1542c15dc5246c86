package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health reports liveness.  It deliberately touches nothing: a portal
// with a broken database should still answer so orchestration can
// tell "down" from "unhealthy".
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": Version,
	})
}
