// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/phedlund/cloudnotes/internal/api"
	"github.com/phedlund/cloudnotes/internal/apperr"
	"github.com/phedlund/cloudnotes/internal/cache"
	"github.com/phedlund/cloudnotes/internal/export"
	"github.com/phedlund/cloudnotes/internal/models"
	"github.com/phedlund/cloudnotes/internal/notesync"
	"github.com/phedlund/cloudnotes/internal/remote"
	"github.com/phedlund/cloudnotes/internal/sse"
	"github.com/phedlund/cloudnotes/internal/storage"
	pkgconfig "github.com/phedlund/cloudnotes/pkg/config"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("server_url", cfg.Server.URL),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("offline", cfg.Server.Offline),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Open the local note cache.
	db, err := cache.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer db.Close()

	// Remote notes client.
	client, err := remote.NewHTTP(cfg.Server.URL, cfg.Server.Username, cfg.Server.Password)
	if err != nil {
		return fmt.Errorf("init remote client: %w", err)
	}

	// The offline flag is read on every remote call and can be flipped
	// by a config reload without restarting.
	var offline atomic.Bool
	offline.Store(cfg.Server.Offline)

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Markdown mirror, refreshed after each sync pass.
	var mirror *export.Mirror
	if cfg.Mirror.Enabled {
		fs, err := storage.NewFS(cfg.Mirror.Path)
		if err != nil {
			return fmt.Errorf("init mirror: %w", err)
		}
		mirror = export.New(db, fs, logger)
	}

	mgr := notesync.New(db, client,
		notesync.WithLogger(logger),
		notesync.WithOffline(offline.Load),
		notesync.WithOnChange(broker.PublishNoteEvent),
		notesync.WithOnConflict(func(c models.Conflict) {
			logger.Warn("conflict resolved with local edit",
				slog.Int64("id", c.NoteID),
				slog.Int64("local_modified", c.LocalModified),
				slog.Int64("remote_modified", c.RemoteModified))
			broker.Publish(sse.Event{Type: "note.conflict", Data: map[string]int64{"id": c.NoteID}})
		}),
	)

	runSync := func(runCtx context.Context) {
		if err := mgr.Sync(runCtx); err != nil && !errors.Is(err, apperr.ErrSyncInProgress) {
			logger.Warn("sync pass failed", slog.String("error", err.Error()))
			return
		}
		if mirror != nil {
			if err := mirror.Run(); err != nil {
				logger.Warn("mirror pass failed", slog.String("error", err.Error()))
			}
		}
	}

	apiRouter := api.NewRouter(mgr, db, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Initial sync.
	if cfg.Sync.OnStart {
		g.Go(func() error {
			runSync(gCtx)
			return nil
		})
	}

	// Periodic sync timer.
	if cfg.Sync.IntervalMinutes > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(time.Duration(cfg.Sync.IntervalMinutes) * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-gCtx.Done():
					return nil
				case <-ticker.C:
					runSync(gCtx)
				}
			}
		})
	}

	// Config watcher: picks up offline flag changes without a restart.
	if app.configPath != "" {
		g.Go(func() error {
			watchConfig(gCtx, app.configPath, logger, func(reloaded *Config) {
				if offline.Load() == reloaded.Server.Offline {
					return
				}
				offline.Store(reloaded.Server.Offline)
				logger.Info("offline mode changed", slog.Bool("offline", reloaded.Server.Offline))
				if !reloaded.Server.Offline {
					// Back online: drain the queue right away.
					runSync(gCtx)
				}
			})
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

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

// watchConfig watches the config file and invokes onReload with each
// successfully parsed new version. Editors often replace the file, so the
// parent directory is watched and events are debounced.
func watchConfig(ctx context.Context, path string, logger *slog.Logger, onReload func(*Config)) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("config watcher unavailable", slog.String("error", err.Error()))
		return
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		logger.Warn("config watcher: resolve path", slog.String("error", err.Error()))
		return
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		logger.Warn("config watcher: watch dir", slog.String("error", err.Error()))
		return
	}

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce = time.After(250 * time.Millisecond)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("config watcher error", slog.String("error", err.Error()))

		case <-debounce:
			debounce = nil
			cfg := NewDefaultConfig()
			if err := pkgconfig.Load(abs, cfg); err != nil {
				logger.Warn("config reload rejected", slog.String("error", err.Error()))
				continue
			}
			logger.Info("config reloaded", slog.String("path", path))
			onReload(cfg)
		}
	}
}
