// Package identity implements evtrack's identity foundation.
//
// It contains the user model, credential persistence (PostgreSQL and
// in-memory), normalization rules and password hashing glue used by the
// HTTP auth layer.
//
// This package is intentionally dependency-light and security-first.
package identity
