package handler

import (
	"context"  // provides context with cancellation for DB calls
	"log"      // server-side logging of internal failures
	"net/http" // HTTP status codes and primitives
	"net/mail" // RFC 5322 address validation for registration
	"strings"  // string manipulation utilities
	"time"     // timeouts for DB calls

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/iliyamo/vpn-access-portal/internal/config"     // app configuration
	"github.com/iliyamo/vpn-access-portal/internal/model"      // domain records
	"github.com/iliyamo/vpn-access-portal/internal/repository" // sentinel errors + submit params
	"github.com/iliyamo/vpn-access-portal/internal/utils"      // hashing, token issuing
)

// AuthHandler bundles dependencies for the auth endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Users  UserStore
	Regs   RegistrationStore
	Tokens SessionStore
}

func NewAuthHandler(cfg config.Config, u UserStore, r RegistrationStore, t SessionStore) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Regs: r, Tokens: t}
}

// ----- DTOs -----

type registerReq struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	InviteToken string `json:"invite_token"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID        uint64    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

type registrationPart struct {
	ID          uint64     `json:"id"`
	Email       string     `json:"email"`
	Username    string     `json:"username"`
	Resolution  string     `json:"resolution"`
	Reason      *string    `json:"reason,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

func toUserPart(u model.User) userPart {
	return userPart{ID: u.ID, Email: u.Email, Username: u.Username, Role: u.Role, Status: u.Status, CreatedAt: u.CreatedAt}
}

func toRegistrationPart(r model.Registration) registrationPart {
	return registrationPart{
		ID: r.ID, Email: r.Email, Username: r.Username,
		Resolution: r.Resolution, Reason: r.Reason,
		SubmittedAt: r.SubmittedAt, ResolvedAt: r.ResolvedAt,
	}
}

// Register: redeem the invite and create a pending account.  All
// validation happens before any mutation; the store runs redemption
// and user creation as one unit, so a failed submission leaves no
// partial user behind.  The account cannot log in until an admin
// approves the registration.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = strings.TrimSpace(req.Username)
	req.InviteToken = strings.TrimSpace(req.InviteToken)

	if _, err := mail.ParseAddress(req.Email); err != nil || req.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid email"})
	}
	if len(req.Username) < 3 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username must be at least 3 characters"})
	}
	if len(req.Password) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be at least 8 characters"})
	}
	if req.InviteToken == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invite_token required"})
	}

	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "hash failed"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	reg, err := h.Regs.Submit(ctx, repository.SubmitParams{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
		InviteToken:  req.InviteToken,
	})
	if err != nil {
		switch err {
		case repository.ErrNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown invite token"})
		case repository.ErrInviteExpired:
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invite expired"})
		case repository.ErrInviteUsed:
			return c.JSON(http.StatusConflict, echo.Map{"error": "invite already used"})
		case repository.ErrEmailMismatch:
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invite is bound to a different email"})
		case repository.ErrEmailExists:
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		case repository.ErrUsernameExists:
			return c.JSON(http.StatusConflict, echo.Map{"error": "username already exists"})
		}
		log.Printf("register: submit failed: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	return c.JSON(http.StatusCreated, toRegistrationPart(reg))
}

// Login: verify credentials and return a token pair.  Unknown email
// and wrong password produce the identical response after the same
// bcrypt cost, so the endpoint cannot be used to enumerate accounts.
// A correct password for a non-active account is told apart on
// purpose: the caller authenticated, the account just is not usable.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if err == repository.ErrNotFound {
			utils.BurnVerify(req.Password)
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if u.Status != model.StatusActive {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account not active"})
	}

	return h.issuePair(ctx, c, u, http.StatusOK)
}

// Refresh: validate by hash, consume the old token, issue a new pair.
// The revoke is the consuming step — it only succeeds once per token,
// so of two concurrent refreshes carrying the same token exactly one
// gets a new pair and the other a 401.  The live account status is
// re-checked here too; a suspended user cannot use a leftover refresh
// token to mint new access tokens.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		if err == repository.ErrNotFound {
			// lost the race: another refresh already spent this token
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "revoke failed"})
	}

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}
	if u.Status != model.StatusActive {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account not active"})
	}

	return h.issuePair(ctx, c, u, http.StatusOK)
}

// issuePair mints an access/refresh pair for u and writes the auth
// response with the given status.
func (h *AuthHandler) issuePair(ctx context.Context, c echo.Context, u model.User, status int) error {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue refresh failed"})
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save refresh failed"})
	}

	return c.JSON(status, authResp{
		User:    toUserPart(u),
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	})
}

// Logout supports two modes: a valid bearer token with no body revokes
// every refresh token the user has (all sessions); a refresh_token in
// the body revokes that single session and needs no bearer.  Access
// tokens themselves are stateless and simply age out — they are
// short-lived, and suspension closes the door immediately regardless.
func (h *AuthHandler) Logout(c echo.Context) error {
	var uid uint64
	hasBearer := false
	authHeader := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		raw := strings.TrimPrefix(authHeader, "Bearer ")
		if claims, err := utils.ParseAccessToken(h.Cfg.JWTSecret, raw); err == nil {
			uid = claims.UserID
			hasBearer = true
		}
	}

	var req refreshReq
	_ = c.Bind(&req)
	refreshToken := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if hasBearer && refreshToken == "" {
		if uid == 0 {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}
		if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
		return c.NoContent(http.StatusNoContent)
	}
	if refreshToken != "" {
		hash := utils.HashRefreshRaw(refreshToken)
		if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
		}
		if err := h.Tokens.RevokeByHash(ctx, hash); err != nil && err != repository.ErrNotFound {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "provide Authorization header or refresh_token"})
}

// Me returns the authenticated user's record as loaded by the auth
// middleware on this very request.
func (h *AuthHandler) Me(c echo.Context) error {
	u, ok := c.Get("user").(model.User)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return c.JSON(http.StatusOK, toUserPart(u))
}
