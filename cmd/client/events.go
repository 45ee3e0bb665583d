package client

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// ListEvents returns the caller's own events, optionally narrowed by the
// allow-listed filters.
func (c *Client) ListEvents(ctx context.Context, f ListFilter) ([]EventSummary, error) {
	var out []EventSummary
	if err := c.do(ctx, http.MethodGet, "/events", f.query(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpcomingEvents returns the caller's events at or after the current time.
func (c *Client) UpcomingEvents(ctx context.Context) ([]EventSummary, error) {
	var out []EventSummary
	if err := c.do(ctx, http.MethodGet, "/events/upcoming", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PastEvents returns the caller's events before the current time.
func (c *Client) PastEvents(ctx context.Context) ([]EventSummary, error) {
	var out []EventSummary
	if err := c.do(ctx, http.MethodGet, "/events/past", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetEvent returns one owned event by id.
func (c *Client) GetEvent(ctx context.Context, eventID string) (Event, error) {
	var out Event
	if err := c.do(ctx, http.MethodGet, "/events/"+url.PathEscape(eventID), nil, nil, &out); err != nil {
		return Event{}, err
	}
	return out, nil
}

// CreateEvent creates a new event owned by the caller.
func (c *Client) CreateEvent(ctx context.Context, in CreateEventInput) (Event, error) {
	body := map[string]any{
		"title":       in.Title,
		"location":    in.Location,
		"description": in.Description,
	}
	if !in.DateTime.IsZero() {
		body["date_time"] = in.DateTime.UTC().Format(time.RFC3339)
	}

	var resp struct {
		Event Event `json:"event"`
	}
	if err := c.do(ctx, http.MethodPost, "/events", nil, body, &resp); err != nil {
		return Event{}, err
	}
	return resp.Event, nil
}

// UpdateEvent replaces an owned event (PUT). Title, DateTime and Location
// must be supplied; the server rejects a partial body here.
func (c *Client) UpdateEvent(ctx context.Context, eventID string, in UpdateEventInput) (Event, error) {
	return c.updateEvent(ctx, http.MethodPut, eventID, in)
}

// PatchEvent applies a partial update (PATCH); nil fields stay unchanged.
func (c *Client) PatchEvent(ctx context.Context, eventID string, in UpdateEventInput) (Event, error) {
	return c.updateEvent(ctx, http.MethodPatch, eventID, in)
}

func (c *Client) updateEvent(ctx context.Context, method, eventID string, in UpdateEventInput) (Event, error) {
	body := map[string]any{}
	if in.Title != nil {
		body["title"] = *in.Title
	}
	if in.DateTime != nil {
		body["date_time"] = in.DateTime.UTC().Format(time.RFC3339)
	}
	if in.Location != nil {
		body["location"] = *in.Location
	}
	if in.Description != nil {
		body["description"] = *in.Description
	}

	var resp struct {
		Event Event `json:"event"`
	}
	if err := c.do(ctx, method, "/events/"+url.PathEscape(eventID), nil, body, &resp); err != nil {
		return Event{}, err
	}
	return resp.Event, nil
}

// DeleteEvent deletes an owned event.
func (c *Client) DeleteEvent(ctx context.Context, eventID string) error {
	return c.do(ctx, http.MethodDelete, "/events/"+url.PathEscape(eventID), nil, nil, nil)
}

// ShareEvent generates a public share link for an owned event. Regenerating
// replaces the previous link; old share ids stop resolving.
func (c *Client) ShareEvent(ctx context.Context, eventID string) (ShareLink, error) {
	var out ShareLink
	if err := c.do(ctx, http.MethodPost, "/events/"+url.PathEscape(eventID)+"/share", nil, nil, &out); err != nil {
		return ShareLink{}, err
	}
	return out, nil
}

// PublicEvent resolves a share id anonymously. No session is required.
func (c *Client) PublicEvent(ctx context.Context, shareID string) (PublicEvent, error) {
	var resp struct {
		Event PublicEvent `json:"event"`
	}
	err := c.send(ctx, http.MethodGet, "/public/events/"+url.PathEscape(shareID), nil, nil, &resp, "")
	if err != nil {
		return PublicEvent{}, err
	}
	return resp.Event, nil
}

// DashboardStats returns aggregate counts over the caller's own events.
func (c *Client) DashboardStats(ctx context.Context) (DashboardStats, error) {
	var out DashboardStats
	if err := c.do(ctx, http.MethodGet, "/dashboard/stats", nil, nil, &out); err != nil {
		return DashboardStats{}, err
	}
	return out, nil
}

func (f ListFilter) query() url.Values {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if !f.From.IsZero() {
		q.Set("from", f.From.UTC().Format(time.RFC3339))
	}
	if !f.To.IsZero() {
		q.Set("to", f.To.UTC().Format(time.RFC3339))
	}
	if f.Ordering != "" {
		q.Set("ordering", f.Ordering)
	}
	if len(q) == 0 {
		return nil
	}
	return q
}
