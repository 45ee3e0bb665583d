// Package app wires the evtrack server runtime: config, logging, metrics,
// storage mode selection and HTTP routes.
//
// It is intentionally small and deterministic to keep CI gates strict and behavior predictable.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"evtrack/cmd/identity"
	authapi "evtrack/cmd/internal/auth/api"
	authtoken "evtrack/cmd/internal/auth/token"
	"evtrack/cmd/internal/events"
	eventsapi "evtrack/cmd/internal/events/api"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App is the evtrack server runtime: it owns HTTP wiring and the handler
// dependencies behind it.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	metrics *Metrics

	auth   *authapi.Handler
	events *eventsapi.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogPretty)
	}

	st, dbPool, dbEnabled, userStore, eventStore, err := newStores(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	tokenCfg, err := authtoken.LoadConfigFromEnv()
	if err != nil {
		closeQuiet(st)
		return nil, err
	}
	tokens, err := authtoken.NewHS256Manager(tokenCfg)
	if err != nil {
		closeQuiet(st)
		return nil, err
	}

	authOpts := []authapi.HandlerOption{}
	if dbEnabled {
		authOpts = append(authOpts, authapi.WithAuditPool(dbPool))
	}
	authHandler, err := authapi.NewHandler(log, authapi.LoadConfigFromEnv(), userStore, tokens, authOpts...)
	if err != nil {
		closeQuiet(st)
		return nil, err
	}

	// The public event projection carries only the organizer's display
	// name, resolved through the identity store.
	eventSvc, err := events.NewService(eventStore, events.WithNameResolver(
		events.NameResolverFunc(func(ctx context.Context, userID string) (string, error) {
			u, err := userStore.GetUserByID(ctx, userID)
			if err != nil {
				return "", err
			}
			return u.FullName(), nil
		}),
	))
	if err != nil {
		closeQuiet(st)
		return nil, err
	}

	eventsHandler, err := eventsapi.NewHandler(log, eventsapi.LoadConfigFromEnv(), eventSvc, userStore, tokens)
	if err != nil {
		closeQuiet(st)
		return nil, err
	}

	return &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		metrics:   NewMetrics(),
		auth:      authHandler,
		events:    eventsHandler,
	}, nil
}

// Handler builds the full HTTP handler: routes plus the middleware chain.
// Exposed so tests can serve the wired app through httptest.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.auth, a.events, a.metrics)

	var h http.Handler = mux
	h = WithMetrics(h, mux, a.metrics)
	h = WithRequestLogging(h, a.log)
	h = WithRequestID(h)
	h = WithSecurityHeaders(h)
	h = WithCORS(h, a.cfg)
	return h
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	// Close store resources (pool etc).
	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newStores decides between Postgres-backed persistence and the in-memory
// dev stores.
func newStores(ctx context.Context, cfg Config, log Logger) (Store, *pgxpool.Pool, bool, identity.Store, events.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return nopStore{}, nil, false, identity.NewInMemoryStore(), events.NewInMemoryStore(), nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, false, nil, nil, err
	}

	log.Info("db.enabled.postgres_store")

	// Ownership model: the app owns the pool lifecycle; store values
	// never close it themselves.
	userStore, err := identity.NewPostgresStore(pool) // default schema "evtrack"
	if err != nil {
		pool.Close()
		return nil, nil, false, nil, nil, err
	}
	eventStore, err := events.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, false, nil, nil, err
	}

	return dbStore{pool: pool}, pool, true, userStore, eventStore, nil
}

type dbStore struct {
	pool *pgxpool.Pool
}

func (s dbStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func closeQuiet(st Store) {
	if st != nil {
		_ = st.Close(context.Background())
	}
}
