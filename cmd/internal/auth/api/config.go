package authapi

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy    bool
	MaxBodyBytes  int64
	LoginIPMax    int
	LoginIPWindow time.Duration

	LoginUserMax    int
	LoginUserWindow time.Duration

	LockoutShortThreshold  int
	LockoutShortDuration   time.Duration
	LockoutLongThreshold   int
	LockoutLongDuration    time.Duration
	LockoutSevereThreshold int
	LockoutSevereDuration  time.Duration
}

// LoadConfigFromEnv loads auth config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		TrustProxy:             envBool("EVTRACK_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:           envInt64("EVTRACK_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB
		LoginIPMax:             envInt("EVTRACK_AUTH_LOGIN_IP_MAX", 20),
		LoginIPWindow:          envDuration("EVTRACK_AUTH_LOGIN_IP_WINDOW", 5*time.Minute),
		LoginUserMax:           envInt("EVTRACK_AUTH_LOGIN_USER_MAX", 5),
		LoginUserWindow:        envDuration("EVTRACK_AUTH_LOGIN_USER_WINDOW", 15*time.Minute),
		LockoutShortThreshold:  envInt("EVTRACK_AUTH_LOGIN_LOCKOUT_SHORT_THRESHOLD", 5),
		LockoutShortDuration:   envDuration("EVTRACK_AUTH_LOGIN_LOCKOUT_SHORT_DURATION", 5*time.Minute),
		LockoutLongThreshold:   envInt("EVTRACK_AUTH_LOGIN_LOCKOUT_LONG_THRESHOLD", 10),
		LockoutLongDuration:    envDuration("EVTRACK_AUTH_LOGIN_LOCKOUT_LONG_DURATION", 30*time.Minute),
		LockoutSevereThreshold: envInt("EVTRACK_AUTH_LOGIN_LOCKOUT_SEVERE_THRESHOLD", 20),
		LockoutSevereDuration:  envDuration("EVTRACK_AUTH_LOGIN_LOCKOUT_SEVERE_DURATION", 2*time.Hour),
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.LoginIPMax <= 0 {
		cfg.LoginIPMax = 20
	}
	if cfg.LoginUserMax <= 0 {
		cfg.LoginUserMax = 5
	}

	return cfg
}

// lockoutTiers assembles the progressive lockout schedule, most severe first.
// Tiers with a non-positive threshold are disabled.
func (c Config) lockoutTiers() []lockoutTier {
	tiers := make([]lockoutTier, 0, 3)
	if c.LockoutSevereThreshold > 0 {
		tiers = append(tiers, lockoutTier{Threshold: c.LockoutSevereThreshold, Duration: c.LockoutSevereDuration})
	}
	if c.LockoutLongThreshold > 0 {
		tiers = append(tiers, lockoutTier{Threshold: c.LockoutLongThreshold, Duration: c.LockoutLongDuration})
	}
	if c.LockoutShortThreshold > 0 {
		tiers = append(tiers, lockoutTier{Threshold: c.LockoutShortThreshold, Duration: c.LockoutShortDuration})
	}
	return tiers
}

// retentionWindow is how long login failures must be kept for every throttle
// rule to see the history it needs.
func (c Config) retentionWindow() time.Duration {
	keep := c.LoginIPWindow
	if c.LoginUserWindow > keep {
		keep = c.LoginUserWindow
	}
	for _, t := range c.lockoutTiers() {
		if t.Duration > keep {
			keep = t.Duration
		}
	}
	if keep <= 0 {
		keep = time.Hour
	}
	return keep
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
