package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// tokenServer is a stub backend whose protected endpoint accepts exactly one
// access token at a time, and whose refresh endpoint swaps it.
type tokenServer struct {
	mu            sync.Mutex
	validAccess   string
	validRefresh  string
	nextAccess    string
	refreshDelay  time.Duration
	refreshCalls  atomic.Int64
	profileCalls  atomic.Int64
	onRefreshSeen func()
}

func (s *tokenServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		s.profileCalls.Add(1)
		s.mu.Lock()
		valid := s.validAccess
		s.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+valid {
			writeStubError(w, http.StatusUnauthorized, "unauthenticated", "invalid token")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":    "user-1",
			"email": "ada@example.com",
		})
	})

	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		s.refreshCalls.Add(1)
		if s.onRefreshSeen != nil {
			s.onRefreshSeen()
		}
		if s.refreshDelay > 0 {
			time.Sleep(s.refreshDelay)
		}

		var body struct {
			Refresh string `json:"refresh"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		s.mu.Lock()
		defer s.mu.Unlock()
		if body.Refresh != s.validRefresh || s.nextAccess == "" {
			writeStubError(w, http.StatusUnauthorized, "invalid_token", "invalid or expired refresh token")
			return
		}
		s.validAccess = s.nextAccess
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"access": s.validAccess})
	})

	return mux
}

func writeStubError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": msg},
	})
}

func newTestClient(t *testing.T, srv *httptest.Server, pair TokenPair) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: srv.URL, Log: testLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if pair.Access != "" || pair.Refresh != "" {
		c.adopt(pair)
	}
	return c
}

func TestExpiredAccess_ExactlyOneRefreshOneRetry(t *testing.T) {
	t.Parallel()

	backend := &tokenServer{validAccess: "access-2", validRefresh: "refresh-1", nextAccess: "access-2"}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	// The client starts with a stale access token; only access-2 works.
	c := newTestClient(t, srv, TokenPair{Access: "access-1", Refresh: "refresh-1"})

	u, err := c.Profile(context.Background())
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if u.ID != "user-1" {
		t.Fatalf("unexpected user: %+v", u)
	}

	if got := backend.refreshCalls.Load(); got != 1 {
		t.Fatalf("refresh calls=%d want=1", got)
	}
	// One failed attempt plus exactly one retry.
	if got := backend.profileCalls.Load(); got != 2 {
		t.Fatalf("profile calls=%d want=2", got)
	}
	if st := c.State(); st != StateAuthenticated {
		t.Fatalf("state=%v want=%v", st, StateAuthenticated)
	}
}

func TestRefreshRejected_TerminatesSession(t *testing.T) {
	t.Parallel()

	// nextAccess empty: the refresh endpoint always rejects.
	backend := &tokenServer{validAccess: "other", validRefresh: "refresh-1"}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	storage := NewMemoryStorage()
	c, err := New(Config{BaseURL: srv.URL, Storage: storage, Log: testLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.adopt(TokenPair{Access: "access-1", Refresh: "refresh-1"})

	_, err = c.Profile(context.Background())
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err=%v want ErrSessionExpired", err)
	}
	if st := c.State(); st != StateUnauthenticated {
		t.Fatalf("state=%v want=%v", st, StateUnauthenticated)
	}
	if _, ok, _ := storage.Load(); ok {
		t.Fatalf("storage must be cleared after terminated session")
	}

	// Follow-up calls fail locally with no network traffic.
	before := backend.profileCalls.Load()
	if _, err := c.Profile(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err=%v want ErrUnauthenticated", err)
	}
	if backend.profileCalls.Load() != before {
		t.Fatalf("unauthenticated call must not reach the server")
	}
}

func TestFreshTokenStillRejected_NoSecondRefresh(t *testing.T) {
	t.Parallel()

	// Refresh succeeds but the backend keeps rejecting: validAccess stays
	// out of reach because nextAccess never matches it.
	backend := &tokenServer{validAccess: "never-valid", validRefresh: "refresh-1", nextAccess: "access-2"}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	// Force the rotated token to be rejected as well.
	backend.onRefreshSeen = func() {
		backend.mu.Lock()
		backend.validAccess = "still-not-it"
		backend.mu.Unlock()
	}

	c := newTestClient(t, srv, TokenPair{Access: "access-1", Refresh: "refresh-1"})

	_, err := c.Profile(context.Background())
	apiErr, ok := AsAPIError(err)
	if !ok || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("err=%v want 401 APIError", err)
	}

	if got := backend.refreshCalls.Load(); got != 1 {
		t.Fatalf("refresh calls=%d want=1 (never more than one per failed request)", got)
	}
	if got := backend.profileCalls.Load(); got != 2 {
		t.Fatalf("profile calls=%d want=2 (exactly one retry)", got)
	}
}

func TestConcurrentExpiry_SharesOneRefresh(t *testing.T) {
	t.Parallel()

	backend := &tokenServer{
		validAccess:  "access-2",
		validRefresh: "refresh-1",
		nextAccess:   "access-2",
		refreshDelay: 30 * time.Millisecond,
	}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	c := newTestClient(t, srv, TokenPair{Access: "access-1", Refresh: "refresh-1"})

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Profile(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
	}
	if got := backend.refreshCalls.Load(); got != 1 {
		t.Fatalf("refresh calls=%d want=1 (single in-flight refresh)", got)
	}
}

func TestRefreshTransition_ReportsRefreshingState(t *testing.T) {
	t.Parallel()

	backend := &tokenServer{validAccess: "access-2", validRefresh: "refresh-1", nextAccess: "access-2"}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	c := newTestClient(t, srv, TokenPair{Access: "access-1", Refresh: "refresh-1"})

	var seen State
	backend.onRefreshSeen = func() { seen = c.State() }

	if _, err := c.Profile(context.Background()); err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if seen != StateRefreshing {
		t.Fatalf("state during refresh=%v want=%v", seen, StateRefreshing)
	}
	if st := c.State(); st != StateAuthenticated {
		t.Fatalf("state after refresh=%v want=%v", st, StateAuthenticated)
	}
}

func TestResume(t *testing.T) {
	t.Parallel()

	backend := &tokenServer{validAccess: "access-1", validRefresh: "refresh-1", nextAccess: "access-1"}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	t.Run("nothing stored", func(t *testing.T) {
		c, err := New(Config{BaseURL: srv.URL, Log: testLogger()})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		_, ok, err := c.Resume(context.Background())
		if err != nil || ok {
			t.Fatalf("resume=(%v,%v) want (false,nil)", ok, err)
		}
		if st := c.State(); st != StateUnauthenticated {
			t.Fatalf("state=%v", st)
		}
	})

	t.Run("stored pair resolves", func(t *testing.T) {
		storage := NewMemoryStorage()
		_ = storage.Save(TokenPair{Access: "access-1", Refresh: "refresh-1"})

		c, err := New(Config{BaseURL: srv.URL, Storage: storage, Log: testLogger()})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		u, ok, err := c.Resume(context.Background())
		if err != nil || !ok {
			t.Fatalf("resume=(%v,%v) want (true,nil)", ok, err)
		}
		if u.ID != "user-1" {
			t.Fatalf("user=%+v", u)
		}
		if st := c.State(); st != StateAuthenticated {
			t.Fatalf("state=%v", st)
		}
	})

	t.Run("stale pair discarded", func(t *testing.T) {
		dead := &tokenServer{validAccess: "other", validRefresh: "other"}
		deadSrv := httptest.NewServer(dead.handler())
		defer deadSrv.Close()

		storage := NewMemoryStorage()
		_ = storage.Save(TokenPair{Access: "stale", Refresh: "stale"})

		c, err := New(Config{BaseURL: deadSrv.URL, Storage: storage, Log: testLogger()})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		_, ok, err := c.Resume(context.Background())
		if err != nil || ok {
			t.Fatalf("resume=(%v,%v) want (false,nil)", ok, err)
		}
		if _, stored, _ := storage.Load(); stored {
			t.Fatalf("stale pair must be discarded")
		}
	})
}

func TestLogout_ClearsSessionAndStorage(t *testing.T) {
	t.Parallel()

	backend := &tokenServer{validAccess: "access-1", validRefresh: "refresh-1"}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	storage := NewMemoryStorage()
	c, err := New(Config{BaseURL: srv.URL, Storage: storage, Log: testLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.adopt(TokenPair{Access: "access-1", Refresh: "refresh-1"})

	if err := c.Logout(); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if st := c.State(); st != StateUnauthenticated {
		t.Fatalf("state=%v", st)
	}
	if _, ok, _ := storage.Load(); ok {
		t.Fatalf("storage not cleared")
	}
	if _, err := c.Profile(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err=%v want ErrUnauthenticated", err)
	}
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	t.Parallel()

	cases := []string{"", "   ", "ftp://example.com", "not a url at all\x7f"}
	for _, raw := range cases {
		if _, err := New(Config{BaseURL: raw, Log: testLogger()}); err == nil {
			t.Fatalf("New(%q) expected error", raw)
		}
	}
}

func TestDecodeAPIError_FieldErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code":    "validation_error",
				"message": "Validation failed.",
				"fields":  map[string]string{"title": "Ensure this field has at least 3 characters."},
			},
		})
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Log: testLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.adopt(TokenPair{Access: "a", Refresh: "r"})

	_, err = c.CreateEvent(context.Background(), CreateEventInput{Title: "x"})
	if !IsValidation(err) {
		t.Fatalf("err=%v want validation", err)
	}
	apiErr, _ := AsAPIError(err)
	if apiErr.Fields["title"] == "" {
		t.Fatalf("field errors not carried: %+v", apiErr)
	}
}
