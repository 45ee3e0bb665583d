package token

import (
	"os"
	"strings"
	"time"
)

// MinSecretBytes is the minimum accepted HS256 signing secret length.
// HMAC-SHA256 keys shorter than the hash size weaken the construction.
const MinSecretBytes = 32

// Config defines all runtime configuration for the token subsystem.
//
// It controls the issuer claim, per-type TTLs, clock skew tolerance and the
// HS256 signing secret. The struct is intentionally explicit and
// environment-driven so production deployments can tune security parameters
// without code changes.
type Config struct {
	// Issuer is the value set in the "iss" claim of both token types.
	Issuer string

	// AccessTokenTTL defines the lifetime of access tokens.
	AccessTokenTTL time.Duration

	// RefreshTokenTTL defines the lifetime of refresh tokens. When it
	// elapses the client must fully re-authenticate.
	RefreshTokenTTL time.Duration

	// ClockSkew defines the allowed time skew during token validation.
	ClockSkew time.Duration

	// Secret is the HS256 signing secret (raw bytes, min MinSecretBytes).
	Secret []byte
}

// DefaultConfig returns default TTLs suitable for development. The signing
// secret must still be supplied.
func DefaultConfig() Config {
	return Config{
		Issuer:          "evtrack",
		AccessTokenTTL:  60 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		ClockSkew:       30 * time.Second,
	}
}

// LoadConfigFromEnv loads token configuration from environment variables.
//
// Required:
//   - EVTRACK_JWT_SECRET (min 32 bytes)
//
// Optional (durations must be valid Go duration strings):
//   - EVTRACK_AUTH_ISSUER
//   - EVTRACK_AUTH_ACCESS_TTL
//   - EVTRACK_AUTH_REFRESH_TTL
//   - EVTRACK_AUTH_CLOCK_SKEW
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("EVTRACK_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("EVTRACK_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}

	if v := os.Getenv("EVTRACK_AUTH_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenTTL = d
	}

	if v := os.Getenv("EVTRACK_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	secret := strings.TrimSpace(os.Getenv("EVTRACK_JWT_SECRET"))
	if len(secret) < MinSecretBytes {
		return Config{}, ErrConfig
	}
	cfg.Secret = []byte(secret)

	// Invariant: a refresh token must outlive the access tokens it renews.
	if cfg.RefreshTokenTTL <= cfg.AccessTokenTTL {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
