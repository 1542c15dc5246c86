package main // Entry point package

import (
	"log" // Logging library

	"github.com/joho/godotenv"                      // Loads .env files into the environment
	"github.com/labstack/echo/v4"                   // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware" // Echo's built-in middleware

	"github.com/iliyamo/vpn-access-portal/internal/config"   // Internal config loader
	"github.com/iliyamo/vpn-access-portal/internal/database" // Database connector
	"github.com/iliyamo/vpn-access-portal/internal/handler"  // HTTP handlers
	"github.com/iliyamo/vpn-access-portal/internal/keymgr"   // Key-management service client
	"github.com/iliyamo/vpn-access-portal/internal/queue"    // Broker publisher and audit consumer
	"github.com/iliyamo/vpn-access-portal/internal/repository"
	"github.com/iliyamo/vpn-access-portal/internal/router" // Internal router setup
	"github.com/iliyamo/vpn-access-portal/internal/utils"
	"github.com/iliyamo/vpn-access-portal/internal/voice" // Voice-server admin client
)

func main() {
	// Load a local .env if present; in containers the environment is
	// injected directly and the file is simply absent.
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg := config.Load() // Load environment config

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Expand the address pool once at startup; allocation walks this
	// slice inside a transaction.
	pool, err := utils.PoolAddresses(cfg.VPNPoolCIDR)
	if err != nil {
		log.Fatalf("vpn pool: %v", err)
	}
	log.Printf("vpn pool %s: %d usable addresses", cfg.VPNPoolCIDR, len(pool))

	// Redis is optional: without it the portal runs with rate limiting
	// and response caching disabled.
	rdb := config.NewRedisClient()
	rlCfg := config.LoadRateLimitConfig()
	cacheCfg := config.LoadCacheConfig()

	// Concrete repositories.
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	invites := repository.NewInviteRepo(db)
	regs := repository.NewRegistrationRepo(db, cfg.RejectedReuse == config.RejectedReuseFree)
	vpn := repository.NewVPNRepo(db)

	// Collaborating services.
	keys := keymgr.New(cfg.KeyMgrURL)
	voiceAdmin := voice.New(cfg.VoiceAdminURL)

	// Background consumer turning lifecycle events into the audit log.
	go queue.StartAuditConsumer()

	deps := router.Deps{
		Cfg:       cfg,
		Users:     users,
		Auth:      handler.NewAuthHandler(cfg, users, regs, tokens),
		User:      handler.NewUserHandler(cfg, users, queue.PublishLifecycle),
		Inv:       handler.NewInviteHandler(cfg, invites),
		Reg:       handler.NewRegistrationHandler(regs, users, queue.PublishLifecycle),
		VPN:       handler.NewVPNHandler(users, vpn, keys, pool, queue.PublishLifecycle),
		Proxy:     handler.NewProxyHandler(voiceAdmin, keys),
		Redis:     rdb,
		RateLimit: rlCfg,
		Cache:     cacheCfg,
	}

	e := echo.New() // Create Echo instance
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	router.RegisterRoutes(e)    // Health check
	router.RegisterAPI(e, deps) // The portal API

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

	if err := e.Start(addr); err != nil { // Start HTTP server
		log.Fatal(err) // Log and exit if server fails
	}
}
