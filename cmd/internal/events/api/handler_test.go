package eventsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"evtrack/cmd/identity"
	"evtrack/cmd/internal/auth/token"
	"evtrack/cmd/internal/events"
)

var shareIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

type testEnv struct {
	mux    *http.ServeMux
	users  *identity.InMemoryStore
	tokens token.Manager
	clock  time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		users: identity.NewInMemoryStore(),
		clock: time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC),
	}

	tcfg := token.DefaultConfig()
	tcfg.Secret = []byte(strings.Repeat("k", token.MinSecretBytes))
	mgr, err := token.NewHS256Manager(tcfg)
	if err != nil {
		t.Fatalf("NewHS256Manager: %v", err)
	}
	env.tokens = mgr

	svc, err := events.NewService(events.NewInMemoryStore(), events.WithNameResolver(events.NameResolverFunc(
		func(ctx context.Context, userID string) (string, error) {
			u, err := env.users.GetUserByID(ctx, userID)
			if err != nil {
				return "", err
			}
			return u.FullName(), nil
		})))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h, err := NewHandler(log, LoadConfigFromEnv(), svc, env.users, env.tokens, WithClock(func() time.Time {
		return env.clock
	}))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	env.mux = http.NewServeMux()
	h.Register(env.mux)
	return env
}

func (e *testEnv) advance(d time.Duration) { e.clock = e.clock.Add(d) }

func (e *testEnv) newUser(t *testing.T, email, first, last string) (string, string) {
	t.Helper()
	res, err := e.users.CreateUser(context.Background(), identity.CreateUserInput{
		Email:     email,
		Password:  "correct horse 9",
		FirstName: first,
		LastName:  last,
		Now:       e.clock.Add(-24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", email, err)
	}
	pair, err := e.tokens.IssuePair(res.User.ID, e.clock)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	return res.User.ID, pair.AccessToken
}

func (e *testEnv) do(t *testing.T, method, path, access string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Host = "evtrack.test"
	req.RemoteAddr = "192.0.2.10:51234"
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func unmarshalAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func createBody(title string, at time.Time) map[string]string {
	return map[string]string{
		"title":       title,
		"date_time":   at.Format(time.RFC3339),
		"location":    "Conference room 4",
		"description": "Weekly sync",
	}
}

// createEvent creates an event through the API and returns its id.
func (e *testEnv) createEvent(t *testing.T, access, title string, at time.Time) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/events", access, createBody(title, at))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create %q status=%d body=%s", title, rec.Code, rec.Body.String())
	}
	env := unmarshalAs[eventEnvelope](t, rec)
	return env.Event.ID
}

// backdate moves an existing event into the past through PATCH; create always
// rejects past times, so past fixtures go through an update.
func (e *testEnv) backdate(t *testing.T, access, id string, at time.Time) {
	t.Helper()
	rec := e.do(t, http.MethodPatch, "/events/"+id, access, map[string]string{
		"date_time": at.Format(time.RFC3339),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("backdate status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestCreateEvent_ReturnsFullEnvelope(t *testing.T) {
	env := newTestEnv(t)
	_, access := env.newUser(t, "ada@example.com", "Ada", "Lovelace")

	rec := env.do(t, http.MethodPost, "/events", access, createBody("Team Standup", env.clock.Add(48*time.Hour)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("expected Cache-Control no-store, got %q", got)
	}

	resp := unmarshalAs[eventEnvelope](t, rec)
	if resp.Message != "Event created successfully" {
		t.Fatalf("unexpected message %q", resp.Message)
	}
	ev := resp.Event
	if len(ev.ID) != 26 {
		t.Fatalf("expected ULID event id, got %q", ev.ID)
	}
	if ev.Title != "Team Standup" || ev.Location != "Conference room 4" || ev.Description != "Weekly sync" {
		t.Fatalf("unexpected event payload: %+v", ev)
	}
	if !ev.IsUpcoming || ev.IsPast {
		t.Fatalf("expected upcoming event, got upcoming=%v past=%v", ev.IsUpcoming, ev.IsPast)
	}
	if ev.User.FullName != "Ada Lovelace" || ev.User.Email != "ada@example.com" {
		t.Fatalf("unexpected owner payload: %+v", ev.User)
	}
	if !ev.CreatedAt.Equal(env.clock) || !ev.UpdatedAt.Equal(env.clock) {
		t.Fatalf("unexpected timestamps: created=%v updated=%v", ev.CreatedAt, ev.UpdatedAt)
	}
}

func TestCreateEvent_Validation(t *testing.T) {
	env := newTestEnv(t)
	_, access := env.newUser(t, "ada@example.com", "Ada", "Lovelace")

	cases := []struct {
		name    string
		mutate  func(m map[string]string)
		field   string
		message string
	}{
		{
			name:    "past date",
			mutate:  func(m map[string]string) { m["date_time"] = env.clock.Add(-time.Hour).Format(time.RFC3339) },
			field:   "date_time",
			message: "Event date and time cannot be in the past.",
		},
		{
			name:    "missing date",
			mutate:  func(m map[string]string) { delete(m, "date_time") },
			field:   "date_time",
			message: "Event date and time is required.",
		},
		{
			name:    "malformed date",
			mutate:  func(m map[string]string) { m["date_time"] = "next tuesday" },
			field:   "date_time",
			message: "Enter a valid date and time.",
		},
		{
			name:    "short title",
			mutate:  func(m map[string]string) { m["title"] = "ab" },
			field:   "title",
			message: "Event title must be at least 3 characters long.",
		},
		{
			name:    "short location",
			mutate:  func(m map[string]string) { m["location"] = "HQ" },
			field:   "location",
			message: "Event location must be at least 5 characters long.",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			body := createBody("Team Standup", env.clock.Add(48*time.Hour))
			tc.mutate(body)

			rec := env.do(t, http.MethodPost, "/events", access, body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
			}
			resp := unmarshalAs[errorResponse](t, rec)
			if got := resp.Error.Fields[tc.field]; got != tc.message {
				t.Fatalf("field %q: expected %q, got %q (fields=%v)", tc.field, tc.message, got, resp.Error.Fields)
			}
		})
	}
}

func TestEvents_RequireAuth(t *testing.T) {
	env := newTestEnv(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/events"},
		{http.MethodPost, "/events"},
		{http.MethodGet, "/events/upcoming"},
		{http.MethodGet, "/events/past"},
		{http.MethodGet, "/events/01HZZZZZZZZZZZZZZZZZZZZZZZ"},
		{http.MethodPost, "/events/01HZZZZZZZZZZZZZZZZZZZZZZZ/share"},
		{http.MethodGet, "/dashboard/stats"},
	}
	for _, p := range paths {
		rec := env.do(t, p.method, p.path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", p.method, p.path, rec.Code)
		}
	}
}

func TestEvents_MethodNotAllowedEnvelope(t *testing.T) {
	env := newTestEnv(t)
	_, access := env.newUser(t, "ada@example.com", "Ada", "Lovelace")

	rec := env.do(t, http.MethodDelete, "/events", access, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d body=%s", rec.Code, rec.Body.String())
	}
	resp := unmarshalAs[errorResponse](t, rec)
	if resp.Error.Code != "method_not_allowed" {
		t.Fatalf("unexpected error code %q", resp.Error.Code)
	}
}

func TestEvents_CrossOwnerLooksMissing(t *testing.T) {
	env := newTestEnv(t)
	_, accessA := env.newUser(t, "ada@example.com", "Ada", "Lovelace")
	_, accessB := env.newUser(t, "grace@example.com", "Grace", "Hopper")

	id := env.createEvent(t, accessA, "Architecture sync", env.clock.Add(24*time.Hour))

	probes := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/events/" + id, nil},
		{http.MethodPatch, "/events/" + id, map[string]string{"title": "Hijacked"}},
		{http.MethodDelete, "/events/" + id, nil},
		{http.MethodPost, "/events/" + id + "/share", nil},
	}
	for _, p := range probes {
		rec := env.do(t, p.method, p.path, accessB, p.body)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s %s as other owner: expected 404, got %d body=%s", p.method, p.path, rec.Code, rec.Body.String())
		}
		resp := unmarshalAs[errorResponse](t, rec)
		if resp.Error.Message != "Not found." {
			t.Fatalf("expected opaque not-found message, got %+v", resp.Error)
		}
	}

	// The owner's view is untouched.
	rec := env.do(t, http.MethodGet, "/events/"+id, accessA, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner detail status=%d", rec.Code)
	}
	detail := unmarshalAs[eventDetail](t, rec)
	if detail.Title != "Architecture sync" {
		t.Fatalf("owner sees wrong event: %+v", detail)
	}

	// And the other user's list stays empty.
	rec = env.do(t, http.MethodGet, "/events", accessB, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status=%d", rec.Code)
	}
	list := unmarshalAs[[]eventListItem](t, rec)
	if len(list) != 0 {
		t.Fatalf("expected empty list for other owner, got %v", list)
	}
	if !strings.HasPrefix(rec.Body.String(), "[") {
		t.Fatalf("expected JSON array body, got %q", rec.Body.String())
	}
}

func TestListEvents_FiltersAndOrdering(t *testing.T) {
	env := newTestEnv(t)
	_, access := env.newUser(t, "ada@example.com", "Ada", "Lovelace")

	env.createEvent(t, access, "Design review", env.clock.Add(24*time.Hour))
	env.advance(time.Minute)
	env.createEvent(t, access, "Team Standup", env.clock.Add(48*time.Hour))
	env.advance(time.Minute)
	pastID := env.createEvent(t, access, "Launch retro", env.clock.Add(72*time.Hour))
	env.backdate(t, access, pastID, env.clock.Add(-72*time.Hour))

	rec := env.do(t, http.MethodGet, "/events?search=standup", access, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search status=%d body=%s", rec.Code, rec.Body.String())
	}
	list := unmarshalAs[[]eventListItem](t, rec)
	if len(list) != 1 || list[0].Title != "Team Standup" {
		t.Fatalf("unexpected search result: %v", list)
	}

	rec = env.do(t, http.MethodGet, "/events?ordering=-title", access, nil)
	list = unmarshalAs[[]eventListItem](t, rec)
	if len(list) != 3 || list[0].Title != "Team Standup" || list[2].Title != "Design review" {
		t.Fatalf("unexpected ordering: %v", titles(list))
	}

	rec = env.do(t, http.MethodGet, "/events?ordering=share_id", access, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for disallowed ordering, got %d", rec.Code)
	}
	resp := unmarshalAs[errorResponse](t, rec)
	if got := resp.Error.Fields["ordering"]; got != "Ordering must be one of: date_time, created_at, title." {
		t.Fatalf("unexpected ordering error: %v", resp.Error)
	}

	rec = env.do(t, http.MethodGet, "/events?from=whenever", access, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed from, got %d", rec.Code)
	}
	resp = unmarshalAs[errorResponse](t, rec)
	if got := resp.Error.Fields["from"]; got != "Enter a valid date or date/time." {
		t.Fatalf("unexpected from error: %v", resp.Error)
	}

	// Unknown query keys are ignored, never errors.
	rec = env.do(t, http.MethodGet, "/events?user_id=someone-else&page=9", access, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected unknown params to be ignored, got %d", rec.Code)
	}
	list = unmarshalAs[[]eventListItem](t, rec)
	if len(list) != 3 {
		t.Fatalf("expected full list, got %v", titles(list))
	}
}

func TestUpcomingAndPastEndpoints(t *testing.T) {
	env := newTestEnv(t)
	_, access := env.newUser(t, "ada@example.com", "Ada", "Lovelace")

	env.createEvent(t, access, "Soon", env.clock.Add(24*time.Hour))
	env.createEvent(t, access, "Later", env.clock.Add(96*time.Hour))
	oldID := env.createEvent(t, access, "Old", env.clock.Add(24*time.Hour))
	env.backdate(t, access, oldID, env.clock.Add(-24*time.Hour))
	olderID := env.createEvent(t, access, "Older", env.clock.Add(24*time.Hour))
	env.backdate(t, access, olderID, env.clock.Add(-48*time.Hour))

	rec := env.do(t, http.MethodGet, "/events/upcoming", access, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("upcoming status=%d", rec.Code)
	}
	up := unmarshalAs[[]eventListItem](t, rec)
	if got := titles(up); len(got) != 2 || got[0] != "Soon" || got[1] != "Later" {
		t.Fatalf("unexpected upcoming order: %v", got)
	}
	for _, ev := range up {
		if !ev.IsUpcoming || ev.IsPast {
			t.Fatalf("upcoming item flagged wrong: %+v", ev)
		}
	}

	rec = env.do(t, http.MethodGet, "/events/past", access, nil)
	past := unmarshalAs[[]eventListItem](t, rec)
	if got := titles(past); len(got) != 2 || got[0] != "Old" || got[1] != "Older" {
		t.Fatalf("unexpected past order: %v", got)
	}
}

func TestUpdateEvent_PutAndPatch(t *testing.T) {
	env := newTestEnv(t)
	_, access := env.newUser(t, "ada@example.com", "Ada", "Lovelace")
	id := env.createEvent(t, access, "Team Standup", env.clock.Add(48*time.Hour))

	env.advance(time.Minute)
	rec := env.do(t, http.MethodPatch, "/events/"+id, access, map[string]string{"title": "  Team Standup v2  "})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status=%d body=%s", rec.Code, rec.Body.String())
	}
	resp := unmarshalAs[eventEnvelope](t, rec)
	if resp.Message != "Event updated successfully" {
		t.Fatalf("unexpected message %q", resp.Message)
	}
	if resp.Event.Title != "Team Standup v2" || resp.Event.Location != "Conference room 4" {
		t.Fatalf("patch result wrong: %+v", resp.Event)
	}
	if !resp.Event.UpdatedAt.After(resp.Event.CreatedAt) {
		t.Fatalf("expected updated_at to move: %+v", resp.Event)
	}

	// PUT without every writable field is rejected.
	rec = env.do(t, http.MethodPut, "/events/"+id, access, map[string]string{
		"title":     "Full replace",
		"date_time": env.clock.Add(24 * time.Hour).Format(time.RFC3339),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for partial PUT, got %d", rec.Code)
	}
	errResp := unmarshalAs[errorResponse](t, rec)
	if got := errResp.Error.Fields["location"]; got != "This field is required." {
		t.Fatalf("unexpected PUT error: %v", errResp.Error)
	}

	rec = env.do(t, http.MethodPut, "/events/"+id, access, map[string]string{
		"title":     "Full replace",
		"date_time": env.clock.Add(24 * time.Hour).Format(time.RFC3339),
		"location":  "Building 7 atrium",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("full PUT status=%d body=%s", rec.Code, rec.Body.String())
	}
	resp = unmarshalAs[eventEnvelope](t, rec)
	if resp.Event.Title != "Full replace" || resp.Event.Location != "Building 7 atrium" {
		t.Fatalf("PUT result wrong: %+v", resp.Event)
	}
	// Description was not part of the PUT body and stays as it was.
	if resp.Event.Description != "Weekly sync" {
		t.Fatalf("expected description preserved, got %q", resp.Event.Description)
	}
}

func TestDeleteEvent_NamesTheEvent(t *testing.T) {
	env := newTestEnv(t)
	_, access := env.newUser(t, "ada@example.com", "Ada", "Lovelace")
	id := env.createEvent(t, access, "Quarterly review", env.clock.Add(48*time.Hour))

	rec := env.do(t, http.MethodDelete, "/events/"+id, access, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status=%d body=%s", rec.Code, rec.Body.String())
	}
	resp := unmarshalAs[messageResponse](t, rec)
	if resp.Message != `Event "Quarterly review" deleted successfully` {
		t.Fatalf("unexpected delete message %q", resp.Message)
	}

	rec = env.do(t, http.MethodGet, "/events/"+id, access, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestShareFlow_PublicAccessAndRegeneration(t *testing.T) {
	env := newTestEnv(t)
	_, access := env.newUser(t, "ada@example.com", "Ada", "Lovelace")
	id := env.createEvent(t, access, "Standup", env.clock.Add(48*time.Hour))

	rec := env.do(t, http.MethodPost, "/events/"+id+"/share", access, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("share status=%d body=%s", rec.Code, rec.Body.String())
	}
	share := unmarshalAs[shareResponse](t, rec)
	if share.Message != "Share link generated successfully" {
		t.Fatalf("unexpected share message %q", share.Message)
	}
	if !shareIDPattern.MatchString(share.ShareID) {
		t.Fatalf("unexpected share id format %q", share.ShareID)
	}
	if share.ShareURL != "http://evtrack.test/public/events/"+share.ShareID {
		t.Fatalf("unexpected share url %q", share.ShareURL)
	}

	// Anyone can resolve the link, no Authorization header needed.
	rec = env.do(t, http.MethodGet, "/public/events/"+share.ShareID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("public status=%d body=%s", rec.Code, rec.Body.String())
	}
	pub := unmarshalAs[publicEnvelope](t, rec)
	if pub.Message != "Public event details retrieved successfully" {
		t.Fatalf("unexpected public message %q", pub.Message)
	}
	if pub.Event.Title != "Standup" || pub.Event.OrganizerName != "Ada Lovelace" {
		t.Fatalf("unexpected public payload: %+v", pub.Event)
	}
	if body := rec.Body.String(); strings.Contains(body, "ada@example.com") || strings.Contains(body, `"user"`) {
		t.Fatalf("public payload leaks owner details: %s", body)
	}

	// Regenerating replaces the link; the old one stops resolving.
	rec = env.do(t, http.MethodPost, "/events/"+id+"/share", access, nil)
	regenerated := unmarshalAs[shareResponse](t, rec)
	if regenerated.ShareID == share.ShareID {
		t.Fatalf("expected a fresh share id on regeneration")
	}

	rec = env.do(t, http.MethodGet, "/public/events/"+share.ShareID, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected old link to die, got %d", rec.Code)
	}
	errResp := unmarshalAs[errorResponse](t, rec)
	if errResp.Error.Message != "Event not found or share link is invalid" {
		t.Fatalf("unexpected public 404 payload: %+v", errResp.Error)
	}

	rec = env.do(t, http.MethodGet, "/public/events/"+regenerated.ShareID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected new link to resolve, got %d", rec.Code)
	}

	// Malformed ids 404 without ever matching.
	for _, bad := range []string{"nope", strings.Repeat("A", 32), strings.Repeat("a", 31)} {
		rec = env.do(t, http.MethodGet, "/public/events/"+bad, "", nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 for malformed id %q, got %d", bad, rec.Code)
		}
	}
}

func TestDashboardStats(t *testing.T) {
	env := newTestEnv(t)
	_, access := env.newUser(t, "ada@example.com", "Ada", "Lovelace")
	_, accessB := env.newUser(t, "grace@example.com", "Grace", "Hopper")

	env.createEvent(t, access, "First", env.clock.Add(24*time.Hour))
	env.advance(time.Minute)
	env.createEvent(t, access, "Second", env.clock.Add(48*time.Hour))
	env.advance(time.Minute)
	pastID := env.createEvent(t, access, "Third", env.clock.Add(72*time.Hour))
	env.backdate(t, access, pastID, env.clock.Add(-24*time.Hour))

	// Someone else's event must not show up in the stats.
	env.createEvent(t, accessB, "Other team sync", env.clock.Add(24*time.Hour))

	rec := env.do(t, http.MethodGet, "/dashboard/stats", access, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status=%d body=%s", rec.Code, rec.Body.String())
	}
	stats := unmarshalAs[statsResponse](t, rec)
	if stats.TotalEvents != 3 || stats.UpcomingEvents != 2 || stats.PastEvents != 1 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if got := titles(stats.RecentEvents); len(got) != 3 || got[0] != "Third" || got[2] != "First" {
		t.Fatalf("unexpected recent order: %v", got)
	}
}

func titles(list []eventListItem) []string {
	out := make([]string, 0, len(list))
	for _, ev := range list {
		out = append(out, ev.Title)
	}
	return out
}
