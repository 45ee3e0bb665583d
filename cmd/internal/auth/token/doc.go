// Package token issues and verifies evtrack's bearer token pair.
//
// Access and refresh tokens are HS256-signed JWTs bound to one user id.
// Verification is stateless: signature, issuer, expiry (with clock-skew
// leeway) and token_type are checked on every call, and a token presented
// in the wrong role (refresh-as-access or access-as-refresh) is rejected.
// There is no server-side revocation list; a refresh token stays valid
// until it expires, at which point the client must re-authenticate.
package token
