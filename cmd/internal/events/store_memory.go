package events

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// InMemoryStore is a dev and test fallback when DB is not configured. It
// implements the same scoping contract as PostgresStore.
type InMemoryStore struct {
	mu        sync.Mutex
	byID      map[string]Event
	idByShare map[string]string
}

// NewInMemoryStore constructs an empty in-memory Store implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:      make(map[string]Event),
		idByShare: make(map[string]string),
	}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// Create inserts a new event.
func (s *InMemoryStore) Create(ctx context.Context, in CreateRecord) (Event, error) {
	if s == nil {
		return Event{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	if strings.TrimSpace(in.ID) == "" || strings.TrimSpace(in.UserID) == "" ||
		strings.TrimSpace(in.Title) == "" || in.DateTime.IsZero() {
		return Event{}, ErrInvalidInput
	}

	now := in.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	updated := in.UpdatedAt
	if updated.IsZero() {
		updated = now
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[in.ID]; ok {
		return Event{}, ErrInvalidInput
	}
	ev := Event{
		ID:          in.ID,
		UserID:      in.UserID,
		Title:       in.Title,
		DateTime:    in.DateTime,
		Location:    in.Location,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   updated,
	}
	s.byID[ev.ID] = ev
	return ev, nil
}

// GetForOwner fetches one event scoped to its owner.
func (s *InMemoryStore) GetForOwner(ctx context.Context, ownerID, eventID string) (Event, error) {
	if s == nil {
		return Event{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.byID[strings.TrimSpace(eventID)]
	if !ok || ev.UserID != strings.TrimSpace(ownerID) {
		return Event{}, ErrNotFound
	}
	return ev, nil
}

// ListForOwner lists an owner's events narrowed by the filter.
func (s *InMemoryStore) ListForOwner(ctx context.Context, ownerID string, f ListFilter) ([]Event, error) {
	if s == nil {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, ErrInvalidInput
	}

	s.mu.Lock()
	var out []Event
	for _, ev := range s.byID {
		if ev.UserID == ownerID && f.matches(ev) {
			out = append(out, ev)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return f.less(out[i], out[j]) })
	return out, nil
}

// UpdateForOwner applies a partial update and returns the updated event.
func (s *InMemoryStore) UpdateForOwner(ctx context.Context, ownerID, eventID string, in UpdateRecord) (Event, error) {
	if s == nil {
		return Event{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}

	updated := in.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.byID[strings.TrimSpace(eventID)]
	if !ok || ev.UserID != strings.TrimSpace(ownerID) {
		return Event{}, ErrNotFound
	}
	if in.Title != nil {
		ev.Title = *in.Title
	}
	if in.DateTime != nil {
		ev.DateTime = *in.DateTime
	}
	if in.Location != nil {
		ev.Location = *in.Location
	}
	if in.Description != nil {
		ev.Description = *in.Description
	}
	ev.UpdatedAt = updated
	s.byID[ev.ID] = ev
	return ev, nil
}

// DeleteForOwner removes an event and returns the deleted copy.
func (s *InMemoryStore) DeleteForOwner(ctx context.Context, ownerID, eventID string) (Event, error) {
	if s == nil {
		return Event{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.byID[strings.TrimSpace(eventID)]
	if !ok || ev.UserID != strings.TrimSpace(ownerID) {
		return Event{}, ErrNotFound
	}
	delete(s.byID, ev.ID)
	if ev.ShareID != "" {
		delete(s.idByShare, ev.ShareID)
	}
	return ev, nil
}

// SetShareID replaces the stored share id for an owner's event.
func (s *InMemoryStore) SetShareID(ctx context.Context, ownerID, eventID, shareID string) (Event, error) {
	if s == nil {
		return Event{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	shareID = strings.TrimSpace(shareID)
	if shareID == "" {
		return Event{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.byID[strings.TrimSpace(eventID)]
	if !ok || ev.UserID != strings.TrimSpace(ownerID) {
		return Event{}, ErrNotFound
	}
	if otherID, taken := s.idByShare[shareID]; taken && otherID != ev.ID {
		return Event{}, ErrShareIDTaken
	}
	if ev.ShareID != "" {
		delete(s.idByShare, ev.ShareID)
	}
	ev.ShareID = shareID
	s.byID[ev.ID] = ev
	s.idByShare[shareID] = ev.ID
	return ev, nil
}

// GetByShareID fetches the event mapped to a share id, bypassing ownership.
func (s *InMemoryStore) GetByShareID(ctx context.Context, shareID string) (Event, error) {
	if s == nil {
		return Event{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.idByShare[strings.TrimSpace(shareID)]
	if !ok {
		return Event{}, ErrNotFound
	}
	ev, ok := s.byID[id]
	if !ok {
		return Event{}, ErrNotFound
	}
	return ev, nil
}

// StatsForOwner counts the owner's events relative to now.
func (s *InMemoryStore) StatsForOwner(ctx context.Context, ownerID string, now time.Time) (Stats, error) {
	if s == nil {
		return Stats{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return Stats{}, ErrInvalidInput
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out Stats
	for _, ev := range s.byID {
		if ev.UserID != ownerID {
			continue
		}
		out.Total++
		if ev.IsUpcoming(now) {
			out.Upcoming++
		} else if ev.IsPast(now) {
			out.Past++
		}
	}
	return out, nil
}

// RecentForOwner returns the owner's most recently created events.
func (s *InMemoryStore) RecentForOwner(ctx context.Context, ownerID string, limit int) ([]Event, error) {
	if s == nil {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, ErrInvalidInput
	}
	if limit <= 0 {
		limit = recentEventsLimit
	}

	s.mu.Lock()
	var out []Event
	for _, ev := range s.byID {
		if ev.UserID == ownerID {
			out = append(out, ev)
		}
	}
	s.mu.Unlock()

	byCreated := ListFilter{OrderBy: OrderByCreatedAt, Desc: true}
	sort.Slice(out, func(i, j int) bool { return byCreated.less(out[i], out[j]) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
