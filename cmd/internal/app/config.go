package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogPretty bool

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, EVTRACK_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) so audit-log
	// token fingerprints are keyed rather than plain hashes.
	RequireAuditHMAC bool

	// CORS policy for the browser frontend. Empty origins disables cross-origin
	// handling entirely (same-origin deployments).
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("EVTRACK_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("EVTRACK_LOG_LEVEL", "info"),
		LogPretty: EnvBool("EVTRACK_LOG_PRETTY", false),

		ReadHeaderTimeout: EnvDuration("EVTRACK_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("EVTRACK_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("EVTRACK_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("EVTRACK_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("EVTRACK_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("EVTRACK_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("EVTRACK_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("EVTRACK_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("EVTRACK_READINESS_REQUIRE_DB", false),

		RequireAuditHMAC: EnvBool("EVTRACK_REQUIRE_AUDIT_HMAC", false),

		CORSAllowedOrigins:   EnvStringSlice("EVTRACK_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("EVTRACK_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("EVTRACK_CORS_MAX_AGE_SECONDS", 300),
	}
}
