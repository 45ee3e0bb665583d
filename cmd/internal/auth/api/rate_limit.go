package authapi

import (
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"
)

// lockoutTier pairs a failure-count threshold with the lockout duration that
// applies once the threshold is reached.
type lockoutTier struct {
	Threshold int
	Duration  time.Duration
}

// evaluateWindowThrottle reports whether the failures inside the sliding
// window have reached max. When blocked, the returned duration is how long
// until enough failures age out of the window for one more attempt.
func evaluateWindowThrottle(now time.Time, failures []time.Time, max int, window time.Duration) (bool, time.Duration) {
	if max <= 0 || window <= 0 {
		return false, 0
	}
	cut := now.Add(-window)
	in := make([]time.Time, 0, len(failures))
	for _, f := range failures {
		if f.After(cut) {
			in = append(in, f)
		}
	}
	if len(in) < max {
		return false, 0
	}
	sort.Slice(in, func(i, j int) bool { return in[i].After(in[j]) })
	return true, in[max-1].Add(window).Sub(now)
}

// evaluateProgressiveLockout applies the first tier (most severe first) whose
// threshold the failure count has reached. The lockout runs from the newest
// failure; once its duration has elapsed the key is clear again.
func evaluateProgressiveLockout(now time.Time, failures []time.Time, tiers []lockoutTier) (bool, time.Duration) {
	if len(failures) == 0 || len(tiers) == 0 {
		return false, 0
	}
	newest := failures[0]
	for _, f := range failures[1:] {
		if f.After(newest) {
			newest = f
		}
	}
	for _, tier := range tiers {
		if tier.Threshold <= 0 || len(failures) < tier.Threshold {
			continue
		}
		retry := newest.Add(tier.Duration).Sub(now)
		if retry <= 0 {
			return false, 0
		}
		return true, retry
	}
	return false, 0
}

// Bounds for the in-memory failure log. maxFailuresPerKey must stay above the
// highest configurable lockout threshold or severe tiers become unreachable.
const (
	maxFailureKeys    = 4096
	maxFailuresPerKey = 256
)

// failureLog keeps recent login and registration failures in memory, keyed
// by client IP or by normalized account identifier. Entries older than the
// retention window are pruned on access. Successful attempts do not clear
// history; only time does.
type failureLog struct {
	mu      sync.Mutex
	keep    time.Duration
	entries map[string][]time.Time
}

func newFailureLog(keep time.Duration) *failureLog {
	if keep <= 0 {
		keep = time.Hour
	}
	return &failureLog{
		keep:    keep,
		entries: make(map[string][]time.Time),
	}
}

func (l *failureLog) record(key string, at time.Time) {
	if l == nil || key == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) >= maxFailureKeys {
		l.sweepLocked(at)
	}
	kept := pruneFailures(l.entries[key], at.Add(-l.keep))
	kept = append(kept, at)
	if len(kept) > maxFailuresPerKey {
		kept = kept[len(kept)-maxFailuresPerKey:]
	}
	l.entries[key] = kept
}

// failures returns the still-retained failures for key.
func (l *failureLog) failures(key string, now time.Time) []time.Time {
	if l == nil || key == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := pruneFailures(l.entries[key], now.Add(-l.keep))
	if len(kept) == 0 {
		delete(l.entries, key)
		return nil
	}
	l.entries[key] = kept
	out := make([]time.Time, len(kept))
	copy(out, kept)
	return out
}

// sweepLocked drops keys whose failures have all aged out. Called with the
// lock held once the map hits maxFailureKeys.
func (l *failureLog) sweepLocked(now time.Time) {
	cut := now.Add(-l.keep)
	for k, v := range l.entries {
		if len(pruneFailures(v, cut)) == 0 {
			delete(l.entries, k)
		}
	}
}

func pruneFailures(in []time.Time, cut time.Time) []time.Time {
	if len(in) == 0 {
		return nil
	}
	out := make([]time.Time, 0, len(in))
	for _, ts := range in {
		if ts.After(cut) {
			out = append(out, ts)
		}
	}
	return out
}

// The throttles below serve both login and registration: repeated failed
// attempts against either endpoint from one IP or against one identifier
// share the same failure history.

func (h *Handler) checkIPThrottle(ip net.IP, now time.Time) (bool, time.Duration) {
	if ip == nil || h.cfg.LoginIPMax <= 0 {
		return false, 0
	}
	failures := h.ipFailures.failures(ip.String(), now)
	return evaluateWindowThrottle(now, failures, h.cfg.LoginIPMax, h.cfg.LoginIPWindow)
}

func (h *Handler) checkIdentifierThrottle(identifier string, now time.Time) (bool, time.Duration) {
	if identifier == "" {
		return false, 0
	}
	failures := h.idFailures.failures(identifier, now)
	if blocked, retry := evaluateWindowThrottle(now, failures, h.cfg.LoginUserMax, h.cfg.LoginUserWindow); blocked {
		return true, retry
	}
	return evaluateProgressiveLockout(now, failures, h.cfg.lockoutTiers())
}

func (h *Handler) recordFailure(ip net.IP, identifier string, now time.Time) {
	if ip != nil {
		h.ipFailures.record(ip.String(), now)
	}
	h.idFailures.record(identifier, now)
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(retryAfterSeconds(retryAfter), 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}

// retryAfterSeconds rounds up so a sub-second lockout never advertises
// Retry-After: 0.
func retryAfterSeconds(d time.Duration) int64 {
	secs := int64((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
