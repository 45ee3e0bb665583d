// Package events implements the owner-scoped event store and the public
// share-link flow.
//
// Every read and write is filtered by the owner id inside the query itself.
// A row owned by another user is indistinguishable from a missing row: both
// fail with ErrNotFound, so callers cannot probe which event ids exist.
//
// The single exception is the share-link path. A share id is 16 bytes of
// crypto/rand hex-encoded to 32 lowercase characters, and knowledge of it
// grants read-only access to exactly one event's public fields. Regenerating
// a share id replaces the stored one, so previously handed-out links stop
// resolving.
package events
