package authapi

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"evtrack/cmd/identity"
	"evtrack/cmd/internal/auth/token"

	"github.com/jackc/pgx/v5/pgxpool"
)

const passwordMinLen = 8

// Handler wires the HTTP auth endpoints to the identity store and the token
// manager. Login and registration throttling is tracked in process; the
// audit trail is best-effort and only written when a pool is attached.
type Handler struct {
	log *slog.Logger
	cfg Config

	store  identity.Store
	tokens token.Manager

	// pool is optional and only feeds the audit trail.
	pool *pgxpool.Pool

	ipFailures *failureLog
	idFailures *failureLog

	dummyHash string

	now func() time.Time
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithAuditPool enables best-effort audit logging through the given pool.
func WithAuditPool(pool *pgxpool.Pool) HandlerOption {
	return func(h *Handler) {
		if h == nil || pool == nil {
			return
		}
		h.pool = pool
	}
}

// WithClock overrides the time source. Tests use this to drive throttle
// windows without sleeping.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if h == nil || now == nil {
			return
		}
		h.now = now
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, store identity.Store, tokens token.Manager, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if store == nil {
		return nil, errors.New("auth: nil identity store")
	}
	if tokens == nil {
		return nil, errors.New("auth: nil token manager")
	}

	keep := cfg.retentionWindow()
	h := &Handler{
		log:        log,
		cfg:        cfg,
		store:      store,
		tokens:     tokens,
		ipFailures: newFailureLog(keep),
		idFailures: newFailureLog(keep),
		now:        time.Now,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}

	// Dummy hash for timing-resistant login checks.
	if hash, err := identity.HashPassword("dummy-password-for-timing-only", identity.DefaultArgon2idParams()); err == nil {
		h.dummyHash = hash
	}

	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/register", h.handleRegister)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/auth/profile", h.handleProfile)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	email := strings.TrimSpace(req.Email)
	firstName := strings.TrimSpace(req.FirstName)
	lastName := strings.TrimSpace(req.LastName)

	fields := map[string]string{}
	switch {
	case email == "":
		fields["email"] = "This field is required."
	case !looksLikeEmail(email):
		fields["email"] = "Enter a valid email address."
	}
	if firstName == "" {
		fields["first_name"] = "This field is required."
	}
	if lastName == "" {
		fields["last_name"] = "This field is required."
	}
	switch {
	case req.Password == "":
		fields["password"] = "This field is required."
	case utf8.RuneCountInString(req.Password) < passwordMinLen:
		fields["password"] = "Ensure this field has at least 8 characters."
	}
	switch {
	case req.PasswordConfirm == "":
		fields["password_confirm"] = "This field is required."
	case req.Password != "" && req.Password != req.PasswordConfirm:
		fields["password_confirm"] = "Password confirmation does not match."
	}
	if len(fields) > 0 {
		writeFieldErrors(w, http.StatusBadRequest, fields)
		return
	}

	ctx := r.Context()
	now := h.now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())
	identifier := identity.NormalizeEmail(email)

	// Registration shares the login throttles: repeated duplicate-email
	// attempts would otherwise enumerate registered addresses at full speed.
	if blocked, retryAfter := h.checkIPThrottle(ip, now); blocked {
		h.auditRegisterRateLimited(ctx, ip, ua, identifier, retryAfter)
		writeRateLimited(w, retryAfter)
		return
	}
	if blocked, retryAfter := h.checkIdentifierThrottle(identifier, now); blocked {
		h.auditRegisterRateLimited(ctx, ip, ua, identifier, retryAfter)
		writeRateLimited(w, retryAfter)
		return
	}

	res, err := h.store.CreateUser(ctx, identity.CreateUserInput{
		Email:     email,
		Password:  req.Password,
		FirstName: firstName,
		LastName:  lastName,
		Now:       now,
	})
	if err != nil {
		switch {
		case identity.IsConflict(err):
			h.recordFailure(ip, identifier, now)
			h.auditRegisterConflict(ctx, ip, ua, identifier)
			writeFieldErrors(w, http.StatusBadRequest, map[string]string{
				"email": "A user with this email address already exists.",
			})
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid input")
		default:
			h.log.Error("auth.register.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "internal", "internal error")
		}
		return
	}

	pair, err := h.tokens.IssuePair(res.User.ID, now)
	if err != nil {
		h.log.Error("auth.register.token.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	h.auditRegisterSuccess(ctx, res.User.ID, ip, ua, identifier)

	writeJSON(w, http.StatusCreated, registerResponse{
		Message: "User registered successfully",
		Access:  pair.AccessToken,
		Refresh: pair.RefreshToken,
		User:    toUserResponse(res.User),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	email := strings.TrimSpace(req.Email)
	password := req.Password
	if email == "" || password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Both email and password are required.")
		return
	}

	ctx := r.Context()
	now := h.now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())
	identifier := identity.NormalizeEmail(email)

	// Both throttles run before the store lookup.
	if blocked, retryAfter := h.checkIPThrottle(ip, now); blocked {
		h.auditLoginRateLimited(ctx, ip, ua, identifier, retryAfter)
		writeRateLimited(w, retryAfter)
		return
	}
	if blocked, retryAfter := h.checkIdentifierThrottle(identifier, now); blocked {
		h.auditLoginRateLimited(ctx, ip, ua, identifier, retryAfter)
		writeRateLimited(w, retryAfter)
		return
	}

	userAuth, err := h.store.GetUserAuthByEmail(ctx, email)
	if err != nil {
		if !identity.IsNotFound(err) {
			h.log.Error("auth.login.lookup.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "internal", "internal error")
			return
		}
		// Timing resistance: perform a dummy verify when the user is missing.
		if h.dummyHash != "" {
			_, _ = identity.VerifyPassword(password, h.dummyHash)
		}
		h.recordFailure(ip, identifier, now)
		h.auditLoginFailed(ctx, nil, ip, ua, identifier, "not_found")
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password.")
		return
	}

	okPw, err := identity.VerifyPassword(password, userAuth.PasswordHash)
	if err != nil || !okPw {
		h.recordFailure(ip, identifier, now)
		h.auditLoginFailed(ctx, &userAuth.User.ID, ip, ua, identifier, "bad_password")
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password.")
		return
	}

	pair, err := h.tokens.IssuePair(userAuth.User.ID, now)
	if err != nil {
		h.log.Error("auth.login.token.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	h.auditLoginSuccess(ctx, userAuth.User.ID, ip, ua, identifier)

	writeJSON(w, http.StatusOK, loginResponse{
		Access:  pair.AccessToken,
		Refresh: pair.RefreshToken,
		User:    toUserResponse(userAuth.User),
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	refreshToken := strings.TrimSpace(req.Refresh)
	if refreshToken == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refresh is required")
		return
	}

	ctx := r.Context()
	now := h.now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	access, _, err := h.tokens.Refresh(refreshToken, now)
	if err != nil {
		reason := "invalid"
		if errors.Is(err, token.ErrTokenExpired) {
			reason = "expired"
		}
		h.auditRefreshFailed(ctx, refreshToken, ip, ua, reason)
		writeError(w, http.StatusUnauthorized, "invalid_token", "invalid or expired refresh token")
		return
	}

	h.auditRefreshSuccess(ctx, refreshToken, ip, ua)

	writeJSON(w, http.StatusOK, refreshResponse{Access: access})
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	user, err := h.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "unknown user")
			return
		}
		h.log.Error("auth.profile.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// ---- helpers ----

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (token.Claims, bool) {
	raw := bearerToken(r)
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
		return token.Claims{}, false
	}
	claims, err := h.tokens.VerifyAccess(raw, h.now().UTC())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid token")
		return token.Claims{}, false
	}
	return claims, true
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for _, p := range parts {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}

// looksLikeEmail accepts a plain addr-spec with a dotted domain.
func looksLikeEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	return at > 0 && strings.Contains(s[at+1:], ".")
}
