package events

import (
	"context"
	"time"
)

// CreateRecord is a validated event insert payload.
type CreateRecord struct {
	ID          string
	UserID      string
	Title       string
	DateTime    time.Time
	Location    string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UpdateRecord carries a full or partial update. Nil pointers leave the
// stored value unchanged; UpdatedAt is always written.
type UpdateRecord struct {
	Title       *string
	DateTime    *time.Time
	Location    *string
	Description *string
	UpdatedAt   time.Time
}

// Stats aggregates owner-scoped event counts relative to a point in time.
// An event scheduled exactly at the reference instant counts in neither
// bucket, matching Event.IsUpcoming/IsPast.
type Stats struct {
	Total    int
	Upcoming int
	Past     int
}

// Store is the persistence boundary for events.
//
// Every *ForOwner method filters by owner id inside the query itself; rows
// owned by other users behave exactly like missing rows (ErrNotFound).
// GetByShareID is the single lookup that bypasses ownership.
type Store interface {
	Create(ctx context.Context, in CreateRecord) (Event, error)
	GetForOwner(ctx context.Context, ownerID, eventID string) (Event, error)
	ListForOwner(ctx context.Context, ownerID string, f ListFilter) ([]Event, error)
	UpdateForOwner(ctx context.Context, ownerID, eventID string, in UpdateRecord) (Event, error)
	DeleteForOwner(ctx context.Context, ownerID, eventID string) (Event, error)
	SetShareID(ctx context.Context, ownerID, eventID, shareID string) (Event, error)
	GetByShareID(ctx context.Context, shareID string) (Event, error)
	StatsForOwner(ctx context.Context, ownerID string, now time.Time) (Stats, error)
	RecentForOwner(ctx context.Context, ownerID string, limit int) ([]Event, error)
}
