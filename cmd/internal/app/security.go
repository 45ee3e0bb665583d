package app

import (
	"errors"

	authtoken "evtrack/cmd/internal/auth/token"
	sectoken "evtrack/cmd/security/token"
)

// ValidateSecurityConfig enforces the startup security policy.
//
// Fail-fast is intentional: a server that silently signs bearer tokens with
// a missing or short secret must not come up at all.
func ValidateSecurityConfig(cfg Config) error {
	// The token subsystem refuses short secrets and inverted TTLs. Loading
	// it here means a misconfigured deployment dies before binding a port.
	if _, err := authtoken.LoadConfigFromEnv(); err != nil {
		return errors.New("security policy: EVTRACK_JWT_SECRET must be set (min 32 bytes) and token TTLs must be sane")
	}

	if !cfg.RequireAuditHMAC {
		return nil
	}

	// Minimum 32 bytes for an HMAC-SHA256 key; measured in bytes, not
	// runes, because the key is used as raw bytes.
	if _, err := sectoken.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, sectoken.ErrHMACKeyMissing):
			return errors.New("security policy: EVTRACK_REQUIRE_AUDIT_HMAC=true but EVTRACK_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, sectoken.ErrHMACKeyTooShort):
			return errors.New("security policy: EVTRACK_REQUIRE_AUDIT_HMAC=true but EVTRACK_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}

	return nil
}
