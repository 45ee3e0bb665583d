package eventsapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"evtrack/cmd/identity"
	"evtrack/cmd/internal/auth/token"
	"evtrack/cmd/internal/events"
)

// Handler wires the owner-scoped event endpoints, the public share endpoint
// and the dashboard onto the events service.
type Handler struct {
	log    *slog.Logger
	cfg    Config
	events *events.Service
	users  identity.Store
	tokens token.Manager

	now func() time.Time
}

// HandlerOption configures optional events handler dependencies.
type HandlerOption func(*Handler)

// WithClock overrides the time source. Tests use this to pin the
// upcoming/past boundary.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if h == nil || now == nil {
			return
		}
		h.now = now
	}
}

// NewHandler constructs an events Handler.
func NewHandler(log *slog.Logger, cfg Config, svc *events.Service, users identity.Store, tokens token.Manager, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if svc == nil {
		return nil, events.ErrInvalidInput
	}
	if users == nil || tokens == nil {
		return nil, events.ErrInvalidInput
	}

	h := &Handler{
		log:    log,
		cfg:    cfg,
		events: svc,
		users:  users,
		tokens: tokens,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires event routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/events", h.handleEvents)
	mux.HandleFunc("/events/", h.handleEventSubtree)
	mux.HandleFunc("/public/events/", h.handlePublicEvent)
	mux.HandleFunc("/dashboard/stats", h.handleDashboardStats)
}

// ---- routing ----

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.handleList(w, r, claims.UserID)
	case http.MethodPost:
		h.handleCreate(w, r, claims.UserID)
	default:
		writeMethodNotAllowed(w)
	}
}

func (h *Handler) handleEventSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/events/"), "/")
	if rest == "" {
		writeError(w, http.StatusNotFound, "not_found", "Not found.")
		return
	}

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	switch rest {
	case "upcoming":
		h.handleUpcoming(w, r, claims.UserID)
		return
	case "past":
		h.handlePast(w, r, claims.UserID)
		return
	}

	if id, found := strings.CutSuffix(rest, "/share"); found {
		if id == "" || strings.Contains(id, "/") {
			writeError(w, http.StatusNotFound, "not_found", "Not found.")
			return
		}
		h.handleShare(w, r, claims.UserID, id)
		return
	}
	if strings.Contains(rest, "/") {
		writeError(w, http.StatusNotFound, "not_found", "Not found.")
		return
	}
	h.handleEventByID(w, r, claims.UserID, rest)
}

func (h *Handler) handleEventByID(w http.ResponseWriter, r *http.Request, userID, eventID string) {
	switch r.Method {
	case http.MethodGet:
		h.handleDetail(w, r, userID, eventID)
	case http.MethodPut:
		h.handleUpdate(w, r, userID, eventID, true)
	case http.MethodPatch:
		h.handleUpdate(w, r, userID, eventID, false)
	case http.MethodDelete:
		h.handleDelete(w, r, userID, eventID)
	default:
		writeMethodNotAllowed(w)
	}
}

// ---- handlers ----

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request, userID string) {
	f, err := events.ParseListFilter(r.URL.Query())
	if err != nil {
		h.writeEventError(w, err)
		return
	}

	evs, err := h.events.ListEvents(r.Context(), userID, f)
	if err != nil {
		h.writeEventError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventList(evs, h.now().UTC()))
}

func (h *Handler) handleUpcoming(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	now := h.now().UTC()
	evs, err := h.events.UpcomingEvents(r.Context(), userID, now)
	if err != nil {
		h.writeEventError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventList(evs, now))
}

func (h *Handler) handlePast(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	now := h.now().UTC()
	evs, err := h.events.PastEvents(r.Context(), userID, now)
	if err != nil {
		h.writeEventError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventList(evs, now))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request, userID string) {
	var req eventCreateRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	now := h.now().UTC()
	in := events.CreateEventInput{
		Title:    req.Title,
		Location: req.Location,
		Now:      now,
	}
	if req.Description != nil {
		in.Description = *req.Description
	}
	if req.DateTime != nil && strings.TrimSpace(*req.DateTime) != "" {
		ts, ok := parseEventTime(*req.DateTime)
		if !ok {
			writeFieldErrors(w, http.StatusBadRequest, map[string]string{
				"date_time": "Enter a valid date and time.",
			})
			return
		}
		in.DateTime = ts
	}

	ev, err := h.events.CreateEvent(r.Context(), userID, in)
	if err != nil {
		h.writeEventError(w, err)
		return
	}

	detail, err := h.renderDetail(r.Context(), ev, now)
	if err != nil {
		h.log.Error("events.create.render.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, eventEnvelope{
		Message: "Event created successfully",
		Event:   detail,
	})
}

func (h *Handler) handleDetail(w http.ResponseWriter, r *http.Request, userID, eventID string) {
	ev, err := h.events.GetEvent(r.Context(), userID, eventID)
	if err != nil {
		h.writeEventError(w, err)
		return
	}
	detail, err := h.renderDetail(r.Context(), ev, h.now().UTC())
	if err != nil {
		h.log.Error("events.detail.render.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request, userID, eventID string, full bool) {
	var req eventUpdateRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	now := h.now().UTC()
	in := events.UpdateEventInput{
		Title:       req.Title,
		Location:    req.Location,
		Description: req.Description,
		Full:        full,
		Now:         now,
	}
	if req.DateTime != nil {
		ts, ok := parseEventTime(*req.DateTime)
		if !ok {
			writeFieldErrors(w, http.StatusBadRequest, map[string]string{
				"date_time": "Enter a valid date and time.",
			})
			return
		}
		in.DateTime = &ts
	}

	ev, err := h.events.UpdateEvent(r.Context(), userID, eventID, in)
	if err != nil {
		h.writeEventError(w, err)
		return
	}

	detail, err := h.renderDetail(r.Context(), ev, now)
	if err != nil {
		h.log.Error("events.update.render.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, eventEnvelope{
		Message: "Event updated successfully",
		Event:   detail,
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, userID, eventID string) {
	ev, err := h.events.DeleteEvent(r.Context(), userID, eventID)
	if err != nil {
		h.writeEventError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{
		Message: "Event \"" + ev.Title + "\" deleted successfully",
	})
}

func (h *Handler) handleShare(w http.ResponseWriter, r *http.Request, userID, eventID string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	ev, err := h.events.ShareEvent(r.Context(), userID, eventID)
	if err != nil {
		h.writeEventError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shareResponse{
		ShareID:  ev.ShareID,
		ShareURL: h.shareURL(r, ev.ShareID),
		Message:  "Share link generated successfully",
	})
}

func (h *Handler) handlePublicEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	shareID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/public/events/"), "/")
	view, err := h.events.ResolvePublicEvent(r.Context(), shareID)
	if err != nil {
		if events.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", "Event not found or share link is invalid")
			return
		}
		h.log.Error("events.public.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, publicEnvelope{
		Event:   toPublicEvent(view),
		Message: "Public event details retrieved successfully",
	})
}

func (h *Handler) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	now := h.now().UTC()
	stats, recent, err := h.events.DashboardStats(r.Context(), claims.UserID, now)
	if err != nil {
		h.writeEventError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		TotalEvents:    stats.Total,
		UpcomingEvents: stats.Upcoming,
		PastEvents:     stats.Past,
		RecentEvents:   toEventList(recent, now),
	})
}

// ---- helpers ----

func (h *Handler) renderDetail(ctx context.Context, ev events.Event, now time.Time) (eventDetail, error) {
	owner, err := h.users.GetUserByID(ctx, ev.UserID)
	if err != nil {
		return eventDetail{}, err
	}
	return toEventDetail(ev, owner, now), nil
}

func (h *Handler) writeEventError(w http.ResponseWriter, err error) {
	if verr, ok := events.AsValidation(err); ok {
		writeFieldErrors(w, http.StatusBadRequest, verr.Fields)
		return
	}
	switch {
	case events.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", "Not found.")
	case events.IsInvalidInput(err):
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid input")
	default:
		h.log.Error("events.api.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

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

// parseEventTime accepts RFC 3339 or a naive ISO datetime interpreted as UTC.
func parseEventTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, true
	}
	if ts, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return ts, true
	}
	return time.Time{}, false
}

func (h *Handler) shareURL(r *http.Request, shareID string) string {
	base := h.cfg.PublicBaseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return strings.TrimRight(base, "/") + "/public/events/" + shareID
}
