package eventsapi

import (
	"os"
	"strconv"
	"strings"
)

// Config controls events API behavior.
type Config struct {
	MaxBodyBytes int64

	// PublicBaseURL is the externally reachable base for share links, e.g.
	// "https://events.example.com". When empty, links are derived from the
	// incoming request's host.
	PublicBaseURL string
}

// LoadConfigFromEnv loads events API config from environment variables with
// safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		MaxBodyBytes:  envInt64("EVTRACK_EVENTS_MAX_BODY_BYTES", 1<<20), // 1 MiB
		PublicBaseURL: strings.TrimSpace(os.Getenv("EVTRACK_PUBLIC_BASE_URL")),
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return cfg
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
