package authapi

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"time"

	"evtrack/cmd/security/token"
)

func (h *Handler) auditRegisterSuccess(ctx context.Context, userID string, ip net.IP, ua string, identifier string) {
	h.insertAudit(ctx, "auth.register.success", &userID, ip, ua, map[string]any{
		"identifier": identifier,
	})
}

func (h *Handler) auditRegisterConflict(ctx context.Context, ip net.IP, ua string, identifier string) {
	h.insertAudit(ctx, "auth.register.conflict", nil, ip, ua, map[string]any{
		"identifier": identifier,
	})
}

func (h *Handler) auditRegisterRateLimited(ctx context.Context, ip net.IP, ua string, identifier string, retryAfter time.Duration) {
	h.insertAudit(ctx, "auth.register.rate_limited", nil, ip, ua, map[string]any{
		"identifier":    identifier,
		"retry_after_s": int64(retryAfter.Seconds()),
	})
}

func (h *Handler) auditLoginFailed(ctx context.Context, userID *string, ip net.IP, ua string, identifier string, reason string) {
	h.insertAudit(ctx, "auth.login.failed", userID, ip, ua, map[string]any{
		"identifier": identifier,
		"reason":     reason,
	})
}

func (h *Handler) auditLoginSuccess(ctx context.Context, userID string, ip net.IP, ua string, identifier string) {
	h.insertAudit(ctx, "auth.login.success", &userID, ip, ua, map[string]any{
		"identifier": identifier,
	})
}

func (h *Handler) auditLoginRateLimited(ctx context.Context, ip net.IP, ua string, identifier string, retryAfter time.Duration) {
	h.insertAudit(ctx, "auth.login.rate_limited", nil, ip, ua, map[string]any{
		"identifier":    identifier,
		"retry_after_s": int64(retryAfter.Seconds()),
	})
}

// Refresh audits carry an HMAC fingerprint of the presented token, never the
// token itself.
func (h *Handler) auditRefreshSuccess(ctx context.Context, refreshToken string, ip net.IP, ua string) {
	h.insertAudit(ctx, "auth.refresh.success", nil, ip, ua, map[string]any{
		"token_fp": token.FingerprintHex(refreshToken),
	})
}

func (h *Handler) auditRefreshFailed(ctx context.Context, refreshToken string, ip net.IP, ua string, reason string) {
	h.insertAudit(ctx, "auth.refresh.failed", nil, ip, ua, map[string]any{
		"token_fp": token.FingerprintHex(refreshToken),
		"reason":   reason,
	})
}

func (h *Handler) insertAudit(ctx context.Context, action string, userID *string, ip net.IP, ua string, meta map[string]any) {
	if h == nil || h.pool == nil {
		return
	}

	action = strings.TrimSpace(action)
	if action == "" {
		return
	}

	var ipVal any
	if ip != nil {
		ipVal = ip.String()
	}

	var metaVal *string
	if len(meta) > 0 {
		if b, err := json.Marshal(meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}

	_, err := h.pool.Exec(ctx, `
		INSERT INTO evtrack.audit_log (
			user_id, action, created_at, ip, user_agent, meta
		) VALUES ($1, $2, now(), $3, $4, $5::jsonb)
	`, userID, action, ipVal, trimOrNil(ua), metaVal)
	if err != nil {
		h.log.Error("auth.audit.insert.fail", "err", err, "action", action)
	}
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
