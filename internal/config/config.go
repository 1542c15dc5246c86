package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
)

// Identifier reuse policies for rejected registrations.  With
// RejectedReuseFree a later submission may take over the email and
// username of a rejected account; with RejectedReuseReserve they stay
// blocked forever.
const (
	RejectedReuseFree    = "free"
	RejectedReuseReserve = "reserve"
)

// Config holds all runtime configuration values.  Each field
// corresponds to an environment variable.  The types reflect how the
// values are used in the application: strings for identifiers and
// secrets, ints for durations and costs.
type Config struct {
	Env            string // application environment (e.g. "dev", "prod")
	Port           string // HTTP port to listen on
	DBUser         string // database username
	DBPass         string // database password (optional)
	DBHost         string // database host address
	DBPort         string // database port number
	DBName         string // database name
	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time-to-live in minutes
	RefreshTTLDays int    // refresh token time-to-live in days
	BcryptCost     int    // bcrypt cost for password hashing
	InviteTTLHours int    // default invite validity when the admin omits one
	RejectedReuse  string // "free" or "reserve" (see constants above)
	VPNPoolCIDR    string // address pool for VPN configs
	KeyMgrURL      string // base URL of the key-management service
	VoiceAdminURL  string // base URL of the voice-server admin API
}

// Load reads configuration values from environment variables and
// returns a Config.  Required variables are enforced by must() and
// missing values cause the program to exit with a fatal log message.
// Operational knobs with sensible defaults are optional.
func Load() Config {
	cfg := Config{
		Env:            must("APP_ENV"),      // environment (dev/test/prod)
		Port:           must("APP_PORT"),     // port to bind the HTTP server
		DBUser:         must("DB_USER"),      // database user
		DBPass:         os.Getenv("DB_PASS"), // database password (empty allowed)
		DBHost:         must("DB_HOST"),      // database host
		DBPort:         must("DB_PORT"),      // database port
		DBName:         must("DB_NAME"),      // database name
		JWTSecret:      must("JWT_SECRET"),   // secret used for signing JWTs
		AccessTTLMin:   intOr("ACCESS_TOKEN_TTL_MIN", 15),
		RefreshTTLDays: intOr("REFRESH_TOKEN_TTL_DAYS", 14),
		BcryptCost:     intOr("BCRYPT_COST", 12),
		InviteTTLHours: intOr("INVITE_DEFAULT_TTL_H", 72),
		RejectedReuse:  envStr("REJECTED_REUSE", RejectedReuseReserve),
		VPNPoolCIDR:    envStr("VPN_POOL_CIDR", "10.66.0.0/24"),
		KeyMgrURL:      envStr("KEYMGR_URL", "http://wg-provisioner:8081"),
		VoiceAdminURL:  envStr("VOICE_ADMIN_URL", "http://voice-admin:10080"),
	}
	if cfg.RejectedReuse != RejectedReuseFree && cfg.RejectedReuse != RejectedReuseReserve {
		log.Fatalf("invalid REJECTED_REUSE: %q (want %q or %q)",
			cfg.RejectedReuse, RejectedReuseFree, RejectedReuseReserve)
	}
	return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// intOr retrieves an optional integer environment variable, falling
// back to the default when unset.  A value that is set but not an
// integer is a configuration mistake and exits fatally.
func intOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, v)
	}
	return n
}
