// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/timethings/internal/api"
	"github.com/starford/timethings/internal/index"
	"github.com/starford/timethings/internal/mcpserver"
	"github.com/starford/timethings/internal/metasync"
	"github.com/starford/timethings/internal/noteservice"
	"github.com/starford/timethings/internal/settings"
	"github.com/starford/timethings/internal/sse"
	"github.com/starford/timethings/internal/storage"
	"github.com/starford/timethings/internal/tracker"
	"github.com/starford/timethings/internal/workspace"
)

// runtime holds the components shared by the HTTP daemon and the MCP server.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	store  *storage.FS
	db     *index.DB
	locks  *storage.PathLocks
	writes *storage.WriteLog
	live   *settings.Source[Config]
}

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func (a *application) open(logger *slog.Logger) (*runtime, error) {
	cfg := a.config

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	// Drop statistics of notes removed while we were not running.
	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	return &runtime{
		cfg:    cfg,
		logger: logger,
		store:  store,
		db:     db,
		locks:  &storage.PathLocks{},
		writes: storage.NewWriteLog(),
		live:   settings.New(cfg),
	}, nil
}

func (rt *runtime) close() {
	if err := rt.db.Close(); err != nil {
		rt.logger.Warn("close index failed", slog.String("error", err.Error()))
	}
}

func (rt *runtime) syncSettings() metasync.Settings {
	return rt.live.Load().Tracking.SyncSettings()
}

func (rt *runtime) service(pub noteservice.Publisher) *noteservice.Service {
	return noteservice.New(noteservice.Options{
		Workspace: workspace.New(rt.store, rt.locks, rt.writes),
		Headers:   storage.NewHeaderStore(rt.store, rt.locks, rt.writes),
		Stats:     rt.db,
		Publisher: pub,
		Mode: func() noteservice.Mode {
			t := rt.live.Load().Tracking
			return noteservice.Mode{
				Fast:              t.UseFastBackend,
				IndicatorActive:   t.Indicator.Active,
				IndicatorInactive: t.Indicator.Inactive,
			}
		},
		Timing:   func() tracker.Timing { return rt.live.Load().Tracking.Timing() },
		Settings: rt.syncSettings,
		Logger:   rt.logger,
	})
}

// watchSettings hot-reloads the tracking section of the config file.
func (rt *runtime) watchSettings(ctx context.Context, path string) error {
	return rt.live.Watch(ctx, path, LoadConfigFile, rt.logger, func(next *Config) {
		if next.Vault.Path != rt.cfg.Vault.Path || next.SQLite.Path != rt.cfg.SQLite.Path ||
			next.App.HTTP.Port != rt.cfg.App.HTTP.Port || next.Auth != rt.cfg.Auth {
			rt.logger.Warn("config changed outside tracking; restart to apply")
		}
		rt.logger.Info("tracking settings applied",
			slog.Bool("fast_backend", next.Tracking.UseFastBackend),
			slog.Duration("typing_timeout", next.Tracking.TypingTimeout),
			slog.Duration("flush_timeout", next.Tracking.Timing().Flush))
	})
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(os.Stdout, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()),
		slog.Bool("fast_backend", cfg.Tracking.UseFastBackend))

	rt, err := app.open(logger)
	if err != nil {
		return err
	}
	defer rt.close()

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	svc := rt.service(broker)
	mcpSrv := mcpserver.New(svc, rt.syncSettings)
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := svc.Status(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes (including the SSE stream at /api/events) under /api.
	r.Mount("/api", apiRouter)

	// MCP over streamable HTTP, behind the same auth as the API.
	r.Handle("/mcp", api.AuthMiddleware(cfg.Auth.AuthEnabled(), cfg.Auth.Token)(mcpSrv.Handler()))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gCtx := errgroup.WithContext(ctx)

	// Vault watcher: outside edits become document-modified activity.
	g.Go(func() error {
		err := index.Watch(gCtx, rt.db, rt.store, rt.writes, logger, func(kind, path string) {
			svc.DocumentChanged(gCtx, kind, path)
		})
		if err != nil {
			return fmt.Errorf("vault watcher: %w", err)
		}
		return nil
	})

	if app.configPath != "" {
		g.Go(func() error {
			if err := rt.watchSettings(gCtx, app.configPath); err != nil {
				logger.Warn("config watcher disabled", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Session tracker. Returns after the final flush on shutdown.
	g.Go(func() error {
		return svc.Run(gCtx)
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Shut down on signal or on the first failure.
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools over stdio. Logs go to stderr since stdout
// carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, app.config.App.LogLevel)
	slog.SetDefault(logger)

	rt, err := app.open(logger)
	if err != nil {
		return err
	}
	defer rt.close()

	svc := rt.service(nil)
	srv := mcpserver.New(svc, rt.syncSettings)

	ctx, cancel := context.WithCancel(ctx)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Run(gCtx)
	})
	if app.configPath != "" {
		g.Go(func() error {
			if err := rt.watchSettings(gCtx, app.configPath); err != nil {
				logger.Warn("config watcher disabled", slog.String("error", err.Error()))
			}
			return nil
		})
	}
	g.Go(func() error {
		defer cancel()
		return srv.ServeStdio()
	})
	return g.Wait()
}
