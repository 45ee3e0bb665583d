package app

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

// Run is the CLI entrypoint used by cmd/evtrack.
// It returns an error instead of calling os.Exit to keep defers effective and lint clean.
func Run() error {
	// Development convenience only: a .env file never overrides variables
	// already present in the real environment.
	_ = godotenv.Load()

	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel, cfg.LogPretty)

	if err := ValidateSecurityConfig(cfg); err != nil {
		log.Error("security.policy.fail", "err", err)
		return err
	}

	a, err := New(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.Run(ctx)
}
