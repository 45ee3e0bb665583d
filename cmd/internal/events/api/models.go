package eventsapi

import (
	"time"

	"evtrack/cmd/identity"
	"evtrack/cmd/internal/events"
)

type eventCreateRequest struct {
	Title       string  `json:"title"`
	DateTime    *string `json:"date_time"`
	Location    string  `json:"location"`
	Description *string `json:"description"`
}

type eventUpdateRequest struct {
	Title       *string `json:"title"`
	DateTime    *string `json:"date_time"`
	Location    *string `json:"location"`
	Description *string `json:"description"`
}

type ownerResponse struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	FullName   string    `json:"full_name"`
	DateJoined time.Time `json:"date_joined"`
}

// eventDetail is the full projection returned by detail and mutation
// endpoints.
type eventDetail struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	DateTime    time.Time     `json:"date_time"`
	Location    string        `json:"location"`
	Description string        `json:"description"`
	User        ownerResponse `json:"user"`
	IsUpcoming  bool          `json:"is_upcoming"`
	IsPast      bool          `json:"is_past"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// eventListItem is the lightweight projection used by list endpoints.
type eventListItem struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	DateTime   time.Time `json:"date_time"`
	Location   string    `json:"location"`
	IsUpcoming bool      `json:"is_upcoming"`
	IsPast     bool      `json:"is_past"`
	CreatedAt  time.Time `json:"created_at"`
}

// publicEvent is what a share link exposes: no owner identifiers beyond a
// display name.
type publicEvent struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	DateTime      time.Time `json:"date_time"`
	Location      string    `json:"location"`
	Description   string    `json:"description"`
	OrganizerName string    `json:"organizer_name"`
}

type eventEnvelope struct {
	Message string      `json:"message"`
	Event   eventDetail `json:"event"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type shareResponse struct {
	ShareID  string `json:"share_id"`
	ShareURL string `json:"share_url"`
	Message  string `json:"message"`
}

type publicEnvelope struct {
	Event   publicEvent `json:"event"`
	Message string      `json:"message"`
}

type statsResponse struct {
	TotalEvents    int             `json:"total_events"`
	UpcomingEvents int             `json:"upcoming_events"`
	PastEvents     int             `json:"past_events"`
	RecentEvents   []eventListItem `json:"recent_events"`
}

func toOwnerResponse(u identity.User) ownerResponse {
	return ownerResponse{
		ID:         u.ID,
		Email:      u.Email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		FullName:   u.FullName(),
		DateJoined: u.CreatedAt,
	}
}

func toEventDetail(ev events.Event, owner identity.User, now time.Time) eventDetail {
	return eventDetail{
		ID:          ev.ID,
		Title:       ev.Title,
		DateTime:    ev.DateTime,
		Location:    ev.Location,
		Description: ev.Description,
		User:        toOwnerResponse(owner),
		IsUpcoming:  ev.IsUpcoming(now),
		IsPast:      ev.IsPast(now),
		CreatedAt:   ev.CreatedAt,
		UpdatedAt:   ev.UpdatedAt,
	}
}

func toEventListItem(ev events.Event, now time.Time) eventListItem {
	return eventListItem{
		ID:         ev.ID,
		Title:      ev.Title,
		DateTime:   ev.DateTime,
		Location:   ev.Location,
		IsUpcoming: ev.IsUpcoming(now),
		IsPast:     ev.IsPast(now),
		CreatedAt:  ev.CreatedAt,
	}
}

// toEventList always returns a non-nil slice so empty lists encode as [].
func toEventList(evs []events.Event, now time.Time) []eventListItem {
	out := make([]eventListItem, 0, len(evs))
	for _, ev := range evs {
		out = append(out, toEventListItem(ev, now))
	}
	return out
}

func toPublicEvent(v events.PublicView) publicEvent {
	return publicEvent{
		ID:            v.ID,
		Title:         v.Title,
		DateTime:      v.DateTime,
		Location:      v.Location,
		Description:   v.Description,
		OrganizerName: v.OrganizerName,
	}
}
