package authapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"evtrack/cmd/identity"
	"evtrack/cmd/internal/auth/token"
)

func testTokenManager(t *testing.T) token.Manager {
	t.Helper()
	cfg := token.DefaultConfig()
	cfg.Secret = []byte(strings.Repeat("k", token.MinSecretBytes))
	mgr, err := token.NewHS256Manager(cfg)
	if err != nil {
		t.Fatalf("NewHS256Manager: %v", err)
	}
	return mgr
}

func newTestHandler(t *testing.T, cfg Config, opts ...HandlerOption) (*Handler, *http.ServeMux) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h, err := NewHandler(log, cfg, identity.NewInMemoryStore(), testTokenManager(t), opts...)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	mux := http.NewServeMux()
	h.Register(mux)
	return h, mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
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
	req.RemoteAddr = "192.0.2.10:51234"
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func registerBody(email string) map[string]string {
	return map[string]string{
		"email":            email,
		"password":         "correct horse 9",
		"password_confirm": "correct horse 9",
		"first_name":       "Ada",
		"last_name":        "Lovelace",
	}
}

func bearer(access string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + access}}
}

func TestRegisterLoginProfileFlow(t *testing.T) {
	_, mux := newTestHandler(t, LoadConfigFromEnv())

	rec := doJSON(t, mux, http.MethodPost, "/auth/register", registerBody("ada@example.com"), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status=%d body=%s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("expected Cache-Control no-store, got %q", got)
	}

	reg := decodeBody[registerResponse](t, rec)
	if reg.Message != "User registered successfully" {
		t.Fatalf("unexpected register message %q", reg.Message)
	}
	if reg.Access == "" || reg.Refresh == "" {
		t.Fatalf("expected both tokens in register response")
	}
	if reg.User.Email != "ada@example.com" || reg.User.FullName != "Ada Lovelace" {
		t.Fatalf("unexpected user payload: %+v", reg.User)
	}
	if len(reg.User.ID) != 26 {
		t.Fatalf("expected ULID user id, got %q", reg.User.ID)
	}

	rec = doJSON(t, mux, http.MethodGet, "/auth/profile", nil, bearer(reg.Access))
	if rec.Code != http.StatusOK {
		t.Fatalf("profile status=%d body=%s", rec.Code, rec.Body.String())
	}
	profile := decodeBody[userResponse](t, rec)
	if profile.ID != reg.User.ID || profile.Email != "ada@example.com" {
		t.Fatalf("unexpected profile: %+v", profile)
	}

	rec = doJSON(t, mux, http.MethodPost, "/auth/login", map[string]string{
		"email":    "ada@example.com",
		"password": "correct horse 9",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status=%d body=%s", rec.Code, rec.Body.String())
	}
	login := decodeBody[loginResponse](t, rec)
	if login.User.ID != reg.User.ID {
		t.Fatalf("login returned wrong user: %+v", login.User)
	}
	if login.Access == "" || login.Refresh == "" {
		t.Fatalf("expected both tokens in login response")
	}
}

func TestRegister_FieldValidation(t *testing.T) {
	_, mux := newTestHandler(t, LoadConfigFromEnv())

	cases := []struct {
		name    string
		mutate  func(m map[string]string)
		field   string
		message string
	}{
		{
			name:    "missing email",
			mutate:  func(m map[string]string) { m["email"] = "  " },
			field:   "email",
			message: "This field is required.",
		},
		{
			name:    "invalid email",
			mutate:  func(m map[string]string) { m["email"] = "not-an-email" },
			field:   "email",
			message: "Enter a valid email address.",
		},
		{
			name:    "email without dotted domain",
			mutate:  func(m map[string]string) { m["email"] = "ada@localhost" },
			field:   "email",
			message: "Enter a valid email address.",
		},
		{
			name: "short password",
			mutate: func(m map[string]string) {
				m["password"] = "short"
				m["password_confirm"] = "short"
			},
			field:   "password",
			message: "Ensure this field has at least 8 characters.",
		},
		{
			name:    "confirmation mismatch",
			mutate:  func(m map[string]string) { m["password_confirm"] = "different horse 9" },
			field:   "password_confirm",
			message: "Password confirmation does not match.",
		},
		{
			name:    "missing first name",
			mutate:  func(m map[string]string) { m["first_name"] = "" },
			field:   "first_name",
			message: "This field is required.",
		},
		{
			name:    "missing last name",
			mutate:  func(m map[string]string) { m["last_name"] = "\t" },
			field:   "last_name",
			message: "This field is required.",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			body := registerBody("valid@example.com")
			tc.mutate(body)

			rec := doJSON(t, mux, http.MethodPost, "/auth/register", body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
			}
			resp := decodeBody[errorResponse](t, rec)
			if resp.Error.Code != "validation_error" {
				t.Fatalf("expected validation_error, got %q", resp.Error.Code)
			}
			if got := resp.Error.Fields[tc.field]; got != tc.message {
				t.Fatalf("field %q: expected %q, got %q (fields=%v)", tc.field, tc.message, got, resp.Error.Fields)
			}
		})
	}
}

func TestRegister_DuplicateEmailIsCaseInsensitive(t *testing.T) {
	_, mux := newTestHandler(t, LoadConfigFromEnv())

	rec := doJSON(t, mux, http.MethodPost, "/auth/register", registerBody("grace@example.com"), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first register status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, mux, http.MethodPost, "/auth/register", registerBody("GRACE@Example.COM"), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate register status=%d body=%s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[errorResponse](t, rec)
	if got := resp.Error.Fields["email"]; got != "A user with this email address already exists." {
		t.Fatalf("unexpected duplicate-email error: %v", resp.Error)
	}
}

func TestLogin_UniformFailureResponse(t *testing.T) {
	_, mux := newTestHandler(t, LoadConfigFromEnv())

	rec := doJSON(t, mux, http.MethodPost, "/auth/register", registerBody("ada@example.com"), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status=%d body=%s", rec.Code, rec.Body.String())
	}

	wrongPassword := doJSON(t, mux, http.MethodPost, "/auth/login", map[string]string{
		"email":    "ada@example.com",
		"password": "wrong horse 9",
	}, nil)
	unknownUser := doJSON(t, mux, http.MethodPost, "/auth/login", map[string]string{
		"email":    "nobody@example.com",
		"password": "wrong horse 9",
	}, nil)

	// Wrong password and unknown account must be indistinguishable.
	if wrongPassword.Code != http.StatusUnauthorized || unknownUser.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", wrongPassword.Code, unknownUser.Code)
	}
	if wrongPassword.Body.String() != unknownUser.Body.String() {
		t.Fatalf("login failures leak account existence: %q vs %q", wrongPassword.Body.String(), unknownUser.Body.String())
	}
	resp := decodeBody[errorResponse](t, wrongPassword)
	if resp.Error.Code != "invalid_credentials" || resp.Error.Message != "Invalid email or password." {
		t.Fatalf("unexpected login error: %+v", resp.Error)
	}
}

func TestLogin_MissingFields(t *testing.T) {
	_, mux := newTestHandler(t, LoadConfigFromEnv())

	rec := doJSON(t, mux, http.MethodPost, "/auth/login", map[string]string{"email": "ada@example.com"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Error.Message != "Both email and password are required." {
		t.Fatalf("unexpected message %q", resp.Error.Message)
	}
}

func TestRefresh_MintsNewAccessToken(t *testing.T) {
	_, mux := newTestHandler(t, LoadConfigFromEnv())

	rec := doJSON(t, mux, http.MethodPost, "/auth/register", registerBody("ada@example.com"), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status=%d body=%s", rec.Code, rec.Body.String())
	}
	reg := decodeBody[registerResponse](t, rec)

	rec = doJSON(t, mux, http.MethodPost, "/auth/refresh", map[string]string{"refresh": reg.Refresh}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status=%d body=%s", rec.Code, rec.Body.String())
	}
	refreshed := decodeBody[refreshResponse](t, rec)
	if refreshed.Access == "" || refreshed.Access == reg.Access {
		t.Fatalf("expected a fresh access token")
	}

	rec = doJSON(t, mux, http.MethodGet, "/auth/profile", nil, bearer(refreshed.Access))
	if rec.Code != http.StatusOK {
		t.Fatalf("profile with refreshed token status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	_, mux := newTestHandler(t, LoadConfigFromEnv())

	rec := doJSON(t, mux, http.MethodPost, "/auth/register", registerBody("ada@example.com"), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status=%d body=%s", rec.Code, rec.Body.String())
	}
	reg := decodeBody[registerResponse](t, rec)

	rec = doJSON(t, mux, http.MethodPost, "/auth/refresh", map[string]string{"refresh": reg.Access}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for access token on refresh, got %d", rec.Code)
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Error.Code != "invalid_token" {
		t.Fatalf("unexpected error code %q", resp.Error.Code)
	}
}

func TestProfile_RequiresBearerToken(t *testing.T) {
	_, mux := newTestHandler(t, LoadConfigFromEnv())

	rec := doJSON(t, mux, http.MethodGet, "/auth/profile", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Error.Code != "unauthenticated" {
		t.Fatalf("unexpected error code %q", resp.Error.Code)
	}

	rec = doJSON(t, mux, http.MethodGet, "/auth/profile", nil, bearer("not-a-jwt"))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}

	rec = doJSON(t, mux, http.MethodGet, "/auth/profile", nil, http.Header{
		"Authorization": []string{"Token abcdef"},
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for non-bearer scheme, got %d", rec.Code)
	}
}

func TestLogin_ThrottledAfterRepeatedFailures(t *testing.T) {
	cfg := LoadConfigFromEnv()
	cfg.LoginUserMax = 3
	cfg.LoginUserWindow = 10 * time.Minute

	at := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	_, mux := newTestHandler(t, cfg, WithClock(func() time.Time { return at }))

	body := map[string]string{
		"email":    "victim@example.com",
		"password": "wrong horse 9",
	}
	for i := 0; i < 3; i++ {
		rec := doJSON(t, mux, http.MethodPost, "/auth/login", body, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status=%d body=%s", i, rec.Code, rec.Body.String())
		}
	}

	rec := doJSON(t, mux, http.MethodPost, "/auth/login", body, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated failures, got %d body=%s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Retry-After"); got != "600" {
		t.Fatalf("expected Retry-After=600, got %q", got)
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Error.Code != "rate_limited" {
		t.Fatalf("unexpected error code %q", resp.Error.Code)
	}

	// The identifier throttle must not bleed over to other accounts.
	rec = doJSON(t, mux, http.MethodPost, "/auth/login", map[string]string{
		"email":    "other@example.com",
		"password": "wrong horse 9",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected other identifier to pass throttle, got %d", rec.Code)
	}
}

func TestRegister_ThrottledAfterRepeatedConflicts(t *testing.T) {
	cfg := LoadConfigFromEnv()
	cfg.LoginIPMax = 3
	cfg.LoginIPWindow = 10 * time.Minute

	at := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	_, mux := newTestHandler(t, cfg, WithClock(func() time.Time { return at }))

	rec := doJSON(t, mux, http.MethodPost, "/auth/register", registerBody("ada@example.com"), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed register status=%d body=%s", rec.Code, rec.Body.String())
	}

	// Duplicate-email attempts count as failures against the client IP.
	for i := 0; i < 3; i++ {
		rec = doJSON(t, mux, http.MethodPost, "/auth/register", registerBody("ada@example.com"), nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("conflict %d: status=%d body=%s", i, rec.Code, rec.Body.String())
		}
	}

	rec = doJSON(t, mux, http.MethodPost, "/auth/register", registerBody("ada@example.com"), nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated conflicts, got %d body=%s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Retry-After"); got != "600" {
		t.Fatalf("expected Retry-After=600, got %q", got)
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Error.Code != "rate_limited" {
		t.Fatalf("unexpected error code %q", resp.Error.Code)
	}

	// The same IP must also be blocked from probing a different address.
	rec = doJSON(t, mux, http.MethodPost, "/auth/register", registerBody("grace@example.com"), nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected IP throttle to cover other identifiers, got %d", rec.Code)
	}
}

func TestMethodNotAllowed_UsesErrorEnvelope(t *testing.T) {
	_, mux := newTestHandler(t, LoadConfigFromEnv())

	rec := doJSON(t, mux, http.MethodDelete, "/auth/login", nil, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Error.Code != "method_not_allowed" {
		t.Fatalf("unexpected error code %q", resp.Error.Code)
	}
}

func TestClientIP_ProxyHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:51234"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 198.51.100.1")

	if got := clientIP(req, true); got == nil || got.String() != "203.0.113.7" {
		t.Fatalf("trusted proxy: expected 203.0.113.7, got %v", got)
	}
	if got := clientIP(req, false); got == nil || got.String() != "192.0.2.10" {
		t.Fatalf("untrusted proxy: expected 192.0.2.10, got %v", got)
	}
}

func TestLooksLikeEmail(t *testing.T) {
	valid := []string{"ada@example.com", "a.b+c@sub.example.org"}
	invalid := []string{"", "plain", "@example.com", "ada@localhost", "Ada <ada@example.com>", "two@@example.com"}

	for _, s := range valid {
		if !looksLikeEmail(s) {
			t.Fatalf("expected %q to be accepted", s)
		}
	}
	for _, s := range invalid {
		if looksLikeEmail(s) {
			t.Fatalf("expected %q to be rejected", s)
		}
	}
}
