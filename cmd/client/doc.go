// Package client is the Go SDK for the evtrack HTTP API.
//
// A Client owns the session lifecycle explicitly: it is constructed with its
// dependencies, moves between Unauthenticated, Authenticated and Refreshing,
// and is torn down with Logout. There is no package-level session state.
//
// Token handling follows a strict refresh-and-retry protocol. When an
// identity-scoped call is rejected with 401, the client suspends that call,
// runs exactly one refresh exchange, and retries the call exactly once with
// the new access token. A request is never retried more than once, so a
// backend that keeps rejecting tokens cannot trap the client in a refresh
// loop. Concurrent calls that fail at the same time share a single in-flight
// refresh and all retry against its result. When the refresh token itself is
// rejected, the stored pair is discarded and the session terminates; the
// caller must authenticate again.
package client
