// Package app wires the Podium subsystems into a running server.
//
// New connects the meeting store, builds the realtime hub and the HTTP API,
// Run serves until the context ends and Shutdown tears everything down in
// order. Tests inject doubles through [Option] values; anything not injected
// is built from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/podium/internal/api"
	"github.com/MrWong99/podium/internal/config"
	"github.com/MrWong99/podium/internal/health"
	"github.com/MrWong99/podium/internal/meeting"
	"github.com/MrWong99/podium/internal/observe"
	"github.com/MrWong99/podium/internal/realtime"
	"github.com/MrWong99/podium/pkg/provider/stt"
)

const defaultShutdownTimeout = 15 * time.Second

// App owns every subsystem lifetime of a Podium node.
type App struct {
	cfg        *config.Config
	recognizer stt.Provider

	store    meeting.Store
	metrics  *observe.Metrics
	level    *slog.LevelVar
	hub      *realtime.Hub
	api      *api.Server
	health   *health.Handler
	checkers []health.Checker
	handler  http.Handler
	server   *http.Server

	watchPath     string
	watchInterval time.Duration
	watcher       *config.Watcher

	// closers run in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option configures an [App].
type Option func(*App)

// WithStore injects a meeting store instead of building one from the config.
func WithStore(s meeting.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects the instrument set. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel gives the App control of the process log level so config
// reloads can change it.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithConfigWatch polls path for edits and applies hot-reloadable changes
// while the App runs. Zero interval keeps the watcher default.
func WithConfigWatch(path string, interval time.Duration) Option {
	return func(a *App) {
		a.watchPath = path
		a.watchInterval = interval
	}
}

// New builds an App for cfg. recognizer may be nil, in which case voice
// following is disabled.
func New(ctx context.Context, cfg *config.Config, recognizer stt.Provider, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, recognizer: recognizer}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
		a.level.Set(cfg.Server.LogLevel.Level())
	}

	if err := a.initStore(ctx); err != nil {
		_ = a.runClosers(context.Background())
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	if a.watchPath != "" {
		w, err := config.NewWatcher(a.watchPath, a.Reload, config.WithInterval(a.watchInterval))
		if err != nil {
			_ = a.runClosers(context.Background())
			return nil, fmt.Errorf("app: init config watcher: %w", err)
		}
		a.watcher = w
		a.closers = append(a.closers, func() error { w.Stop(); return nil })
	}

	a.hub = realtime.NewHub(realtime.WithMetrics(a.metrics))
	a.api = api.New(api.Config{
		Store:          a.store,
		Hub:            a.hub,
		Metrics:        a.metrics,
		Recognizer:     recognizer,
		RecognizerName: cfg.Recognizer.Name,
		Stream: stt.StreamConfig{
			SampleRate: cfg.Recognizer.SampleRate,
			Channels:   1,
			Language:   cfg.Recognizer.Language,
		},
		Teleprompter:   cfg.Teleprompter,
		Countdown:      cfg.Countdown,
		Realtime:       cfg.Realtime,
		OriginPatterns: cfg.Server.AllowedOrigins,
	})

	if c, ok := recognizer.(interface{ Check(context.Context) error }); ok {
		a.checkers = append(a.checkers, health.Checker{Name: "recognizer", Check: c.Check})
	}
	a.health = health.New(a.checkers...)

	mux := http.NewServeMux()
	a.api.Register(mux)
	a.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	a.handler = observe.Middleware(a.metrics)(mux)

	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// initStore opens the configured meeting store unless one was injected.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	if a.cfg.Store.Driver != config.StorePostgres {
		a.store = meeting.NewMemStore()
		slog.Info("using in-memory meeting store")
		return nil
	}

	poolCfg, err := pgxpool.ParseConfig(a.cfg.Store.PostgresDSN)
	if err != nil {
		return fmt.Errorf("parse postgres dsn: %w", err)
	}
	if a.cfg.Store.MaxConns > 0 {
		poolCfg.MaxConns = a.cfg.Store.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	store := meeting.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	a.store = store
	a.checkers = append(a.checkers, health.Ping("store", pool))
	slog.Info("connected meeting store", "driver", "postgres", "max_conns", poolCfg.MaxConns)
	return nil
}

// Handler returns the fully wired HTTP handler: API, health checks and /metrics.
func (a *App) Handler() http.Handler { return a.handler }

// Store returns the meeting store in use.
func (a *App) Store() meeting.Store { return a.store }

// Run listens on the configured address and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then drains the
// server within the configured shutdown timeout. It returns nil on a clean
// stop.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error { return a.hub.Run(gctx) })
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		a.health.Drain()
		sctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
		defer cancel()
		if err := a.server.Shutdown(sctx); err != nil {
			slog.Warn("http shutdown", "err", err)
		}
		return nil
	})

	slog.Info("podium listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
	return g.Wait()
}

// Reload applies the hot-reloadable parts of a config change. Sections that
// need a restart are only reported.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged {
		a.level.Set(d.NewLogLevel.Level())
	}
	if d.TeleprompterChanged {
		a.api.SetTeleprompter(new.Teleprompter)
	}
	if d.CountdownChanged {
		a.api.SetCountdown(new.Countdown)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart", "sections", d.RestartRequired)
	}
	if d.Changed() {
		slog.Info("config reloaded",
			"log_level", d.LogLevelChanged,
			"teleprompter", d.TeleprompterChanged,
			"countdown", d.CountdownChanged,
		)
	}
}

// Shutdown stops the server and releases every subsystem. Safe to call more
// than once; only the first call does work.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "rooms", a.api.ActiveRooms(), "closers", len(a.closers))
		a.health.Drain()
		if serr := a.server.Shutdown(ctx); serr != nil {
			slog.Warn("http shutdown", "err", serr)
		}
		a.api.Close()
		a.hub.Close()
		err = a.runClosers(ctx)
		if err == nil {
			slog.Info("shutdown complete")
		}
	})
	return err
}

func (a *App) runClosers(ctx context.Context) error {
	for i, closer := range a.closers {
		select {
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
			return ctx.Err()
		default:
		}
		if err := closer(); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
		}
	}
	return nil
}

func (a *App) shutdownTimeout() time.Duration {
	if d := a.cfg.Server.ShutdownTimeout; d > 0 {
		return d
	}
	return defaultShutdownTimeout
}
