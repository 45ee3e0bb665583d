// Package token provides token fingerprinting primitives for evtrack.
//
// Raw bearer tokens must never reach logs or the audit trail. This package
// is the single source of truth for the fingerprints recorded instead.
//
// Modes:
// - Default mode: SHA-256(token) when no fingerprint key is configured.
// - Keyed mode: HMAC-SHA256(token, key) when EVTRACK_TOKEN_HMAC_KEY is set,
//   so fingerprints in an exfiltrated audit table cannot be matched against
//   captured tokens offline.
//
// Output is a stable 64-char hex string either way.
package token
