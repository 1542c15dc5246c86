package handler

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vpn-access-portal/internal/model"
	"github.com/iliyamo/vpn-access-portal/internal/queue"
	"github.com/iliyamo/vpn-access-portal/internal/repository"
)

// RegistrationHandler serves the admin review endpoints of the
// registration pipeline.
type RegistrationHandler struct {
	Regs    RegistrationStore
	Users   UserStore
	Publish EventPublisher
}

func NewRegistrationHandler(regs RegistrationStore, users UserStore, pub EventPublisher) *RegistrationHandler {
	return &RegistrationHandler{Regs: regs, Users: users, Publish: pub}
}

type rejectReq struct {
	Reason string `json:"reason"`
}

// List returns registrations for review, pending ones by default.
func (h *RegistrationHandler) List(c echo.Context) error {
	filter := c.QueryParam("filter")
	if filter == "" {
		filter = "pending"
	}
	if filter != "pending" && filter != "all" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "filter must be pending or all"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	regs, err := h.Regs.List(ctx, filter)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]registrationPart, 0, len(regs))
	for _, r := range regs {
		out = append(out, toRegistrationPart(r))
	}
	return c.JSON(http.StatusOK, out)
}

// Approve resolves a pending registration and activates its account.
func (h *RegistrationHandler) Approve(c echo.Context) error {
	return h.resolve(c, model.ResolutionApproved, nil)
}

// Reject resolves a pending registration, optionally recording why.
func (h *RegistrationHandler) Reject(c echo.Context) error {
	var req rejectReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	var reason *string
	if r := strings.TrimSpace(req.Reason); r != "" {
		reason = &r
	}
	return h.resolve(c, model.ResolutionRejected, reason)
}

func (h *RegistrationHandler) resolve(c echo.Context, resolution string, reason *string) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid registration id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	reg, err := h.Regs.Resolve(ctx, id, resolution, reason)
	if err != nil {
		switch err {
		case repository.ErrNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"error": "registration not found"})
		case repository.ErrInvalidState:
			return c.JSON(http.StatusConflict, echo.Map{"error": "registration already resolved"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "resolve failed"})
	}

	if h.Publish != nil {
		typ := queue.EventRegistrationApproved
		if resolution == model.ResolutionRejected {
			typ = queue.EventRegistrationRejected
		}
		ev := queue.NewLifecycleEvent(typ, reg.UserID, reg.Email)
		ev.Username = reg.Username
		ev.Actor, _ = callerInfo(c)
		if reason != nil {
			ev.Detail = *reason
		}
		if err := h.Publish(ctx, ev); err != nil {
			log.Printf("registration: publish %s event: %v", typ, err)
		}
	}

	resp := echo.Map{"registration": toRegistrationPart(reg)}
	if resolution == model.ResolutionApproved {
		if u, err := h.Users.GetByID(ctx, reg.UserID); err == nil {
			resp["user"] = toUserPart(u)
		}
	}
	return c.JSON(http.StatusOK, resp)
}
