package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/vpn-access-portal/internal/config"
	"github.com/iliyamo/vpn-access-portal/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/vpn-access-portal/internal/middleware" // import middleware for JWT authentication and role enforcement
	"github.com/iliyamo/vpn-access-portal/internal/model"
)

// Deps bundles everything the route table needs.  main wires the
// concrete repositories and clients into the handlers and hands the
// result here; the router only decides which middleware guards which
// path.
type Deps struct {
	Cfg   config.Config
	Users middleware.UserSource // live status source for the auth middleware

	Auth  *handler.AuthHandler
	User  *handler.UserHandler
	Inv   *handler.InviteHandler
	Reg   *handler.RegistrationHandler
	VPN   *handler.VPNHandler
	Proxy *handler.ProxyHandler

	Redis     *redis.Client // nil disables rate limiting and caching
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
}

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Map the GET request at path "/healthz" to the Health handler.  This
	// endpoint can be used by load balancers or monitoring systems to verify
	// that the service is up and running.
	e.GET("/healthz", handler.Health)
}

// RegisterAPI registers the whole portal API and applies the necessary
// middleware.  Unauthenticated operations live under /v1/auth, endpoints
// for any signed-in account under /v1, and admin-only endpoints under
// /v1/admin.
func RegisterAPI(e *echo.Echo, d Deps) {
	// Create a route group under the /v1/auth prefix for operations that do
	// not require an existing session (register, login, refresh, logout).
	// These are the endpoints an attacker can hammer anonymously, so the
	// token-bucket rate limiter guards the whole group when Redis is up.
	g := e.Group("/v1/auth")
	if d.Redis != nil && d.RateLimit.Enabled {
		g.Use(middleware.NewTokenBucket(d.RateLimit, d.Redis))
	}
	// Register a POST endpoint to handle user registration at /v1/auth/register.
	g.POST("/register", d.Auth.Register)
	// Register a POST endpoint to handle user login at /v1/auth/login.
	g.POST("/login", d.Auth.Login)
	// Register a POST endpoint to refresh access tokens at /v1/auth/refresh.
	// This rotates the refresh token.
	g.POST("/refresh", d.Auth.Refresh)
	// Logout accepts either a bearer token (revoking every session of the
	// account) or a JSON body with a `refresh_token` (revoking just that
	// session), so it lives in the unauthenticated group.
	g.POST("/logout", d.Auth.Logout)

	// Create another group for routes that require a valid access token.  All
	// handlers registered on this group will execute the JWTAuth middleware
	// before being invoked, which re-reads the account on every request so a
	// suspension takes effect immediately.  Protected endpoints live under /v1.
	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(d.Cfg.JWTSecret, d.Users))
	auth.Use(middleware.RequireRole(model.RoleAdmin, model.RoleUser))
	// Register a GET endpoint at /v1/me that returns the authenticated user's information.
	auth.GET("/me", d.Auth.Me)

	// User management.  Listing is admin-only via a route-level role
	// gate; the per-user routes enforce admin-or-self inside the
	// handlers.
	auth.GET("/users", d.User.List, middleware.RequireRole(model.RoleAdmin))
	auth.GET("/users/:id", d.User.Get)
	auth.PUT("/users/:id", d.User.Update)
	auth.DELETE("/users/:id", d.User.Delete)

	// Provisioning gate.  Enable/disable and config retrieval are
	// admin-or-self; the handlers check ownership.
	auth.POST("/users/:id/vpn/enable", d.VPN.Enable)
	auth.POST("/users/:id/vpn/disable", d.VPN.Disable)
	auth.GET("/vpn/config/:id", d.VPN.GetConfig)

	// The aggregate status view is read-heavy and cheap to serve stale, so
	// the Redis response cache fronts it when configured.
	status := auth.Group("/vpn")
	if d.Redis != nil && d.Cache.Enabled {
		status.Use(middleware.NewRedisCache(d.Cache, d.Redis))
	}
	status.GET("/status", d.VPN.Status)

	// Admin-only endpoints: the registration review pipeline, the invite
	// ledger and the gateway restart pass-through.
	admin := e.Group("/v1/admin")
	admin.Use(middleware.JWTAuth(d.Cfg.JWTSecret, d.Users))
	admin.Use(middleware.RequireRole(model.RoleAdmin))

	admin.GET("/registrations", d.Reg.List)
	admin.POST("/registrations/:id/approve", d.Reg.Approve)
	admin.POST("/registrations/:id/reject", d.Reg.Reject)

	admin.POST("/invites", d.Inv.Create)
	admin.GET("/invites", d.Inv.List)
	admin.DELETE("/invites/:token", d.Inv.Revoke)

	admin.POST("/gateway/restart", d.Proxy.GatewayRestart)

	// Voice-server admin pass-through.  Admin-only like the group
	// above, but mounted at /v1/voice so the forwarded subpath maps
	// one-to-one onto the upstream API.
	vc := e.Group("/v1/voice")
	vc.Use(middleware.JWTAuth(d.Cfg.JWTSecret, d.Users))
	vc.Use(middleware.RequireRole(model.RoleAdmin))
	vc.Any("/*", d.Proxy.VoiceForward)
}
