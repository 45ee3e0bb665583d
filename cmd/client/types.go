package client

import "time"

// User is the identity-bound profile returned by the auth endpoints.
type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	FullName   string    `json:"full_name"`
	DateJoined time.Time `json:"date_joined"`
}

// Event is the full projection returned by detail and mutation endpoints.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	DateTime    time.Time `json:"date_time"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	User        User      `json:"user"`
	IsUpcoming  bool      `json:"is_upcoming"`
	IsPast      bool      `json:"is_past"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EventSummary is the lightweight projection returned by list endpoints.
type EventSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	DateTime   time.Time `json:"date_time"`
	Location   string    `json:"location"`
	IsUpcoming bool      `json:"is_upcoming"`
	IsPast     bool      `json:"is_past"`
	CreatedAt  time.Time `json:"created_at"`
}

// PublicEvent is the share-link projection: no owner identifiers beyond a
// display name, no write capability.
type PublicEvent struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	DateTime      time.Time `json:"date_time"`
	Location      string    `json:"location"`
	Description   string    `json:"description"`
	OrganizerName string    `json:"organizer_name"`
}

// ShareLink is the result of generating a share link for an owned event.
type ShareLink struct {
	ShareID  string `json:"share_id"`
	ShareURL string `json:"share_url"`
}

// DashboardStats aggregates the requester's own events.
type DashboardStats struct {
	TotalEvents    int            `json:"total_events"`
	UpcomingEvents int            `json:"upcoming_events"`
	PastEvents     int            `json:"past_events"`
	RecentEvents   []EventSummary `json:"recent_events"`
}

// RegisterInput is the payload for account creation.
type RegisterInput struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
}

// CreateEventInput is the payload for event creation.
type CreateEventInput struct {
	Title       string
	DateTime    time.Time
	Location    string
	Description string
}

// UpdateEventInput carries a full or partial event update. Nil fields are
// omitted from the request body and left unchanged by a PATCH.
type UpdateEventInput struct {
	Title       *string
	DateTime    *time.Time
	Location    *string
	Description *string
}

// ListFilter narrows an owner-scoped listing. Fields map onto the server's
// allow-listed query parameters; the zero value lists everything.
type ListFilter struct {
	Search string
	From   time.Time
	To     time.Time

	// Ordering is one of date_time, created_at, title, with an optional
	// leading '-' for descending.
	Ordering string
}
