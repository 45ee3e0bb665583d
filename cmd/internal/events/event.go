package events

import "time"

// Event is a calendar entry owned by exactly one user. Ownership is set at
// creation and never transferred.
type Event struct {
	ID          string
	UserID      string
	Title       string
	DateTime    time.Time
	Location    string
	Description string
	ShareID     string // empty until a share link has been generated
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsUpcoming reports whether the event is scheduled strictly after now.
func (e Event) IsUpcoming(now time.Time) bool { return e.DateTime.After(now) }

// IsPast reports whether the event was scheduled strictly before now. An
// event happening exactly at now is neither upcoming nor past.
func (e Event) IsPast(now time.Time) bool { return e.DateTime.Before(now) }

// PublicView is the projection exposed through a share link. It carries no
// owner id and no share id, only display fields.
type PublicView struct {
	ID            string
	Title         string
	DateTime      time.Time
	Location      string
	Description   string
	OrganizerName string
}
