package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"context"  // context carries request-scoped deadlines into the store lookup
	"net/http" // HTTP status codes for responses
	"strings"  // string utilities for prefix checking and trimming
	"time"     // timeout for the per-request status read

	"github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

	"github.com/iliyamo/vpn-access-portal/internal/model"
	"github.com/iliyamo/vpn-access-portal/internal/utils"
)

// UserSource is the slice of the credential store the auth middleware
// needs: a live read of the subject's current record.
type UserSource interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// JWTAuth returns an Echo middleware that validates a Bearer access
// token and injects the subject into the request context.  Token
// validity is a function of the token AND the subject's current
// account state: the middleware re-reads the user from the store on
// every request, so a suspension takes effect on the subject's very
// next call even if the token itself has minutes left.  Handlers can
// read the result via c.Get("user_id") (uint64), c.Get("role")
// (string) and c.Get("user") (model.User).
func JWTAuth(secret string, users UserSource) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			claims, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()

			u, err := users.GetByID(ctx, claims.UserID)
			if err != nil {
				// A deleted subject means the token no longer names
				// anyone; report it the same way as a bad token.
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			if u.Status != model.StatusActive {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "account not active"})
			}

			// The role comes from the live record, not the token, so a
			// role change does not wait for the token to expire either.
			c.Set("user_id", u.ID)
			c.Set("role", u.Role)
			c.Set("user", u)
			return next(c)
		}
	}
}
