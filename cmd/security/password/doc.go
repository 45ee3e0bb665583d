// Package password provides password hashing and verification for evtrack.
//
// Hashes are Argon2id in a PHC-style encoded string format. The package
// covers:
// - Configurable Argon2id parameters (overridable via environment variables)
// - Registration password policy validation
// - Strict hash decoding with resource bounds during verification
//
// Encoded hash strings are treated as untrusted input during Verify; hashes
// whose parameters exceed the configured bounds are refused.
package password
