package events

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	shareIDBytes      = 16
	shareMintAttempts = 3
	recentEventsLimit = 5
)

// shareIDRe pins the public share identifier format: 32 lowercase hex chars.
// Anything else fails before any storage access.
var shareIDRe = regexp.MustCompile(`^[0-9a-f]{32}$`)

// NameResolver resolves an owner id to a display name for the public event
// projection.
type NameResolver interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// NameResolverFunc adapts a plain function to NameResolver.
type NameResolverFunc func(ctx context.Context, userID string) (string, error)

func (f NameResolverFunc) DisplayName(ctx context.Context, userID string) (string, error) {
	return f(ctx, userID)
}

// Service implements owner-scoped event operations and the share-link flow
// on top of a Store.
type Service struct {
	store Store
	names NameResolver
}

// Option configures the Service.
type Option func(*Service) error

// WithNameResolver supplies the resolver that fills the organizer name in
// public event views. Without one the organizer name is left empty.
func WithNameResolver(r NameResolver) Option {
	return func(s *Service) error {
		if r == nil {
			return ErrInvalidInput
		}
		s.names = r
		return nil
	}
}

// NewService constructs a Service.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrInvalidInput
	}
	s := &Service{store: store}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// CreateEventInput describes a new event. Now stamps the created/updated
// times and anchors the not-in-the-past check; zero means time.Now().
type CreateEventInput struct {
	Title       string
	DateTime    time.Time
	Location    string
	Description string
	Now         time.Time
}

// UpdateEventInput describes a full or partial update. Nil fields are left
// unchanged. Full additionally requires title, date_time, and location to be
// present, mirroring a full-replace request.
type UpdateEventInput struct {
	Title       *string
	DateTime    *time.Time
	Location    *string
	Description *string
	Full        bool
	Now         time.Time
}

// CreateEvent validates and persists a new event owned by ownerID.
//
// The date_time-not-in-the-past rule applies only here; updates may move an
// event to any time (a past meeting stays editable).
func (s *Service) CreateEvent(ctx context.Context, ownerID string, in CreateEventInput) (Event, error) {
	if s == nil || s.store == nil {
		return Event{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return Event{}, ErrInvalidInput
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	title := strings.TrimSpace(in.Title)
	location := strings.TrimSpace(in.Location)
	description := strings.TrimSpace(in.Description)

	fields := map[string]string{}
	checkTitle(fields, title)
	checkLocation(fields, location)
	if in.DateTime.IsZero() {
		fields["date_time"] = "Event date and time is required."
	} else if in.DateTime.Before(now) {
		fields["date_time"] = "Event date and time cannot be in the past."
	}
	if len(fields) > 0 {
		return Event{}, ValidationError{Fields: fields}
	}

	id, err := newEventULID(now)
	if err != nil {
		return Event{}, err
	}

	return s.store.Create(ctx, CreateRecord{
		ID:          id,
		UserID:      ownerID,
		Title:       title,
		DateTime:    in.DateTime,
		Location:    location,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// GetEvent returns the event if ownerID owns it, ErrNotFound otherwise.
func (s *Service) GetEvent(ctx context.Context, ownerID, eventID string) (Event, error) {
	if s == nil || s.store == nil {
		return Event{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	ownerID = strings.TrimSpace(ownerID)
	eventID = strings.TrimSpace(eventID)
	if ownerID == "" || eventID == "" {
		return Event{}, ErrNotFound
	}
	return s.store.GetForOwner(ctx, ownerID, eventID)
}

// ListEvents returns ownerID's events narrowed by the filter.
func (s *Service) ListEvents(ctx context.Context, ownerID string, f ListFilter) ([]Event, error) {
	if s == nil || s.store == nil {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, ErrInvalidInput
	}
	return s.store.ListForOwner(ctx, ownerID, f)
}

// UpcomingEvents returns events scheduled strictly after now, soonest first.
func (s *Service) UpcomingEvents(ctx context.Context, ownerID string, now time.Time) ([]Event, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return s.ListEvents(ctx, ownerID, ListFilter{
		From:       now,
		fromStrict: true,
		OrderBy:    OrderByDateTime,
	})
}

// PastEvents returns events scheduled strictly before now, most recent first.
func (s *Service) PastEvents(ctx context.Context, ownerID string, now time.Time) ([]Event, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return s.ListEvents(ctx, ownerID, ListFilter{
		To:       now,
		toStrict: true,
		OrderBy:  OrderByDateTime,
		Desc:     true,
	})
}

// UpdateEvent applies a validated update to an event ownerID owns. Concurrent
// owner updates are last-write-wins.
func (s *Service) UpdateEvent(ctx context.Context, ownerID, eventID string, in UpdateEventInput) (Event, error) {
	if s == nil || s.store == nil {
		return Event{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	ownerID = strings.TrimSpace(ownerID)
	eventID = strings.TrimSpace(eventID)
	if ownerID == "" || eventID == "" {
		return Event{}, ErrNotFound
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	fields := map[string]string{}
	if in.Full {
		if in.Title == nil {
			fields["title"] = "This field is required."
		}
		if in.DateTime == nil {
			fields["date_time"] = "This field is required."
		}
		if in.Location == nil {
			fields["location"] = "This field is required."
		}
	}

	rec := UpdateRecord{UpdatedAt: now}
	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		checkTitle(fields, t)
		rec.Title = &t
	}
	if in.DateTime != nil {
		if in.DateTime.IsZero() {
			fields["date_time"] = "Enter a valid date and time."
		} else {
			dt := *in.DateTime
			rec.DateTime = &dt
		}
	}
	if in.Location != nil {
		l := strings.TrimSpace(*in.Location)
		checkLocation(fields, l)
		rec.Location = &l
	}
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		rec.Description = &d
	}
	if len(fields) > 0 {
		return Event{}, ValidationError{Fields: fields}
	}

	return s.store.UpdateForOwner(ctx, ownerID, eventID, rec)
}

// DeleteEvent removes an event ownerID owns and returns the deleted row, so
// callers can reference it in confirmation messages.
func (s *Service) DeleteEvent(ctx context.Context, ownerID, eventID string) (Event, error) {
	if s == nil || s.store == nil {
		return Event{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	ownerID = strings.TrimSpace(ownerID)
	eventID = strings.TrimSpace(eventID)
	if ownerID == "" || eventID == "" {
		return Event{}, ErrNotFound
	}
	return s.store.DeleteForOwner(ctx, ownerID, eventID)
}

// ShareEvent mints a fresh share id for an event ownerID owns and returns
// the updated event. Each call replaces the stored id, so links handed out
// earlier stop resolving.
func (s *Service) ShareEvent(ctx context.Context, ownerID, eventID string) (Event, error) {
	if s == nil || s.store == nil {
		return Event{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	ownerID = strings.TrimSpace(ownerID)
	eventID = strings.TrimSpace(eventID)
	if ownerID == "" || eventID == "" {
		return Event{}, ErrNotFound
	}

	var lastErr error
	for i := 0; i < shareMintAttempts; i++ {
		shareID, err := newShareID()
		if err != nil {
			return Event{}, err
		}
		ev, err := s.store.SetShareID(ctx, ownerID, eventID, shareID)
		if err == nil {
			return ev, nil
		}
		if !errors.Is(err, ErrShareIDTaken) {
			return Event{}, err
		}
		lastErr = err
	}
	return Event{}, lastErr
}

// ResolvePublicEvent exchanges a share id for the event's public projection.
// The id format is checked before any storage access; malformed or unknown
// ids both fail with ErrNotFound.
func (s *Service) ResolvePublicEvent(ctx context.Context, shareID string) (PublicView, error) {
	if s == nil || s.store == nil {
		return PublicView{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return PublicView{}, err
	}

	shareID = strings.TrimSpace(shareID)
	if !shareIDRe.MatchString(shareID) {
		return PublicView{}, ErrNotFound
	}

	ev, err := s.store.GetByShareID(ctx, shareID)
	if err != nil {
		return PublicView{}, err
	}

	organizer := ""
	if s.names != nil {
		organizer, err = s.names.DisplayName(ctx, ev.UserID)
		if err != nil {
			return PublicView{}, err
		}
	}

	return PublicView{
		ID:            ev.ID,
		Title:         ev.Title,
		DateTime:      ev.DateTime,
		Location:      ev.Location,
		Description:   ev.Description,
		OrganizerName: organizer,
	}, nil
}

// DashboardStats returns owner-scoped aggregate counts plus the most
// recently created events.
func (s *Service) DashboardStats(ctx context.Context, ownerID string, now time.Time) (Stats, []Event, error) {
	if s == nil || s.store == nil {
		return Stats{}, nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Stats{}, nil, err
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return Stats{}, nil, ErrInvalidInput
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	stats, err := s.store.StatsForOwner(ctx, ownerID, now)
	if err != nil {
		return Stats{}, nil, err
	}
	recent, err := s.store.RecentForOwner(ctx, ownerID, recentEventsLimit)
	if err != nil {
		return Stats{}, nil, err
	}
	return stats, recent, nil
}

func newShareID() (string, error) {
	b := make([]byte, shareIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func newEventULID(now time.Time) (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
