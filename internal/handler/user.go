package handler

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vpn-access-portal/internal/config"
	"github.com/iliyamo/vpn-access-portal/internal/model"
	"github.com/iliyamo/vpn-access-portal/internal/queue"
	"github.com/iliyamo/vpn-access-portal/internal/repository"
	"github.com/iliyamo/vpn-access-portal/internal/utils"
)

// UserHandler serves the user management endpoints.  Reads and
// updates are admin-or-self; listing and status changes are admin
// territory.
type UserHandler struct {
	Cfg     config.Config
	Users   UserStore
	Publish EventPublisher
}

func NewUserHandler(cfg config.Config, u UserStore, pub EventPublisher) *UserHandler {
	return &UserHandler{Cfg: cfg, Users: u, Publish: pub}
}

type updateUserReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Status   string `json:"status"`
}

// callerInfo pulls the authenticated identity out of the context the
// auth middleware populated.
func callerInfo(c echo.Context) (id uint64, role string) {
	id, _ = c.Get("user_id").(uint64)
	role, _ = c.Get("role").(string)
	return id, role
}

// targetID parses the :id path parameter.
func targetID(c echo.Context) (uint64, error) {
	return strconv.ParseUint(c.Param("id"), 10, 64)
}

// adminOrSelf reports whether the caller may act on the target user.
func adminOrSelf(c echo.Context, target uint64) bool {
	id, role := callerInfo(c)
	return role == model.RoleAdmin || id == target
}

// List returns every user.  Admin-only (enforced in the router).
func (h *UserHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	users, err := h.Users.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]userPart, 0, len(users))
	for _, u := range users {
		out = append(out, toUserPart(u))
	}
	return c.JSON(http.StatusOK, out)
}

// Get returns one user, for admins or the user itself.
func (h *UserHandler) Get(c echo.Context) error {
	id, err := targetID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	if !adminOrSelf(c, id) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, toUserPart(u))
}

// Update changes a user's profile.  Username and password may be set
// by the user or an admin; status (suspend / reactivate) only by an
// admin, and only between ACTIVE and SUSPENDED — the pipeline owns
// the PENDING to ACTIVE transition.
func (h *UserHandler) Update(c echo.Context) error {
	id, err := targetID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	if !adminOrSelf(c, id) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	var req updateUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Status = strings.ToUpper(strings.TrimSpace(req.Status))

	if req.Username != "" && len(req.Username) < 3 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username must be at least 3 characters"})
	}
	if req.Password != "" && len(req.Password) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be at least 8 characters"})
	}

	_, role := callerInfo(c)
	if req.Status != "" {
		if role != model.RoleAdmin {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		}
		if req.Status != model.StatusActive && req.Status != model.StatusSuspended {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "status must be ACTIVE or SUSPENDED"})
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	hash := ""
	if req.Password != "" {
		hash, err = utils.HashPassword(req.Password, h.Cfg.BcryptCost)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "hash failed"})
		}
	}

	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	wasActive := u.Status == model.StatusActive

	// The transition is only legal between ACTIVE and SUSPENDED in
	// both directions: a PENDING account is activated by approving its
	// registration, never by editing the user record.
	if req.Status != "" && u.Status == model.StatusPending {
		return c.JSON(http.StatusConflict, echo.Map{"error": "account is pending review"})
	}

	if req.Username != "" || hash != "" {
		u, err = h.Users.UpdateProfile(ctx, id, req.Username, hash)
		if err != nil {
			if err == repository.ErrUsernameExists {
				return c.JSON(http.StatusConflict, echo.Map{"error": "username already exists"})
			}
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
		}
	}

	if req.Status != "" {
		u, err = h.Users.UpdateStatus(ctx, id, req.Status)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
		}
		if req.Status == model.StatusSuspended && wasActive && h.Publish != nil {
			actor, _ := callerInfo(c)
			ev := queue.NewLifecycleEvent(queue.EventUserSuspended, u.ID, u.Email)
			ev.Username = u.Username
			ev.Actor = actor
			if err := h.Publish(ctx, ev); err != nil {
				log.Printf("user: publish suspend event: %v", err)
			}
		}
	}

	return c.JSON(http.StatusOK, toUserPart(u))
}

// Delete removes a user together with its VPN config and refresh
// tokens.  Admin or self.
func (h *UserHandler) Delete(c echo.Context) error {
	id, err := targetID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	if !adminOrSelf(c, id) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	if err := h.Users.Delete(ctx, id); err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}

	if h.Publish != nil {
		actor, _ := callerInfo(c)
		ev := queue.NewLifecycleEvent(queue.EventUserDeleted, u.ID, u.Email)
		ev.Username = u.Username
		ev.Actor = actor
		if err := h.Publish(ctx, ev); err != nil {
			log.Printf("user: publish delete event: %v", err)
		}
	}
	return c.NoContent(http.StatusNoContent)
}
