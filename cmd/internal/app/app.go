// Package app wires the PTW auth server runtime: config, logging, stores
// and the HTTP surface.
//
// It is intentionally small and deterministic to keep CI gates strict and behavior predictable.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"ptw/cmd/identity"
	authapi "ptw/cmd/internal/auth/api"
	"ptw/cmd/internal/auth/session"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow backing resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory dev mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App owns the HTTP server wiring and the auth stack's dependencies.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	redis *redis.Client

	auth *authapi.Handler
}

// New constructs a fully wired App instance from config and logger.
//
// Dev mode: with no PTW_DATABASE_URL accounts live in memory, with no
// PTW_REDIS_ADDR sessions live in memory. The JWT secret is required in
// every mode.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, store: nopStore{}}

	accounts, err := a.newAccountStore(context.Background())
	if err != nil {
		return nil, err
	}
	sessions, err := a.newSessionStore(context.Background())
	if err != nil {
		a.closeResources()
		return nil, err
	}

	tokens, err := session.NewTokenManager(sessCfg)
	if err != nil {
		a.closeResources()
		return nil, err
	}
	coord := session.NewCoordinator(sessCfg, accounts, sessions, tokens, log)

	resetBase := cfg.ResetBaseURL
	if resetBase == "" {
		resetBase = runtimeBaseURL(cfg.HTTPAddr)
	}

	auth, err := authapi.NewHandler(log, authapi.LoadConfigFromEnv(), accounts, coord,
		authapi.WithResetBaseURL(resetBase),
	)
	if err != nil {
		a.closeResources()
		return nil, err
	}
	a.auth = auth

	return a, nil
}

func (a *App) newAccountStore(ctx context.Context) (identity.Store, error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_accounts")
		return identity.NewMemoryStore(), nil
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	a.dbPool = pool
	a.dbEnabled = true
	a.store = dbStore{app: a}
	a.log.Info("db.enabled.postgres_accounts")

	return identity.NewPostgresStore(pool)
}

func (a *App) newSessionStore(ctx context.Context) (session.Store, error) {
	if a.cfg.RedisAddr == "" {
		a.log.Info("redis.disabled.inmemory_sessions")
		return session.NewMemoryStore(), nil
	}

	client, err := NewRedisClient(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	a.redis = client
	a.store = dbStore{app: a}
	a.log.Info("redis.enabled.session_store")

	return session.NewRedisStore(client)
}

// routes assembles the full handler chain.
func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.redis, a.auth)

	var h http.Handler = authapi.SecurityHeaders(mux)
	h = WithCORS(h, a.cfg, a.log)
	return WithRequestLogging(h, a.log)
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.routes(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"db_enabled", a.dbEnabled,
		"redis_enabled", a.redis != nil,
	)

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

	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func (a *App) closeResources() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}
}

type dbStore struct {
	app *App
}

func (s dbStore) Close(_ context.Context) error {
	s.app.closeResources()
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

// runtimeBaseURL derives a browsable origin from a bind address; bind-all
// addresses map to loopback for dev links.
func runtimeBaseURL(addr string) string {
	if strings.Contains(addr, "://") {
		return strings.TrimRight(addr, "/")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		host = "127.0.0.1"
	}
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return "http://" + host + ":" + port
}
