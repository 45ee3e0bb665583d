package identity

import "strings"

// NormalizeEmail performs case-insensitive canonicalization. Lookups and the
// uniqueness constraint operate on the normalized form; the user-entered
// casing is kept for display.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeName trims surrounding whitespace from a name field.
func NormalizeName(s string) string {
	return strings.TrimSpace(s)
}
