package token

import "errors"

var (
	// ErrInvalidToken is returned when a token fails signature, issuer,
	// format or token_type validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when a token is past its expiry (beyond
	// the configured clock skew).
	ErrTokenExpired = errors.New("token expired")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
