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

	"github.com/starford/loopgrid/internal/api"
	"github.com/starford/loopgrid/internal/habitservice"
	"github.com/starford/loopgrid/internal/importer"
	"github.com/starford/loopgrid/internal/sse"
	"github.com/starford/loopgrid/internal/storage"
	"github.com/starford/loopgrid/internal/store"
)

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(cfg, os.Stdout)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("inbox", cfg.Imports.Inbox),
		slog.String("backups", cfg.Imports.Backups),
		slog.String("log_level", cfg.App.LogLevel.String()))

	db, err := store.Open(ctx, cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	broker := sse.NewBroker(cfg.SSE.Throttle)
	defer broker.Close()

	svc, err := newService(cfg, db, habitservice.WithNotifier(broker))
	if err != nil {
		return err
	}

	r := NewHandler(svc, db, cfg, broker)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Imports.Inbox != "" {
		inbox, err := storage.NewFS(cfg.Imports.Inbox)
		if err != nil {
			return fmt.Errorf("init inbox: %w", err)
		}
		onImport := func(outcome, path string) {
			logger.Info("inbox file handled", slog.String("outcome", outcome), slog.String("path", path))
		}
		if err := importer.Sync(ctx, svc, inbox, logger, onImport); err != nil {
			logger.Warn("initial inbox sync failed", slog.String("error", err.Error()))
		}

		g.Go(func() error {
			if err := importer.Watch(gCtx, svc, inbox, logger, onImport); err != nil {
				logger.Error("inbox watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Open event streams never finish on their own.
		broker.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group context so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// NewHandler builds the root router: health probes plus the API under /api.
func NewHandler(svc *habitservice.Service, db *store.DB, cfg *Config, events http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			slog.Warn("readiness check failed", slog.String("error", err.Error()))
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})

	r.Mount("/api", api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, events))
	return r
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"status":%q}`, status)
}

// newLogger installs a JSON logger at the configured level as the default.
func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// newService wires the habit service with the backup area from cfg.
func newService(cfg *Config, db *store.DB, opts ...habitservice.Option) (*habitservice.Service, error) {
	backups, err := storage.NewFS(cfg.Imports.Backups)
	if err != nil {
		return nil, fmt.Errorf("init backups: %w", err)
	}
	opts = append(opts, habitservice.WithBackups(backups, cfg.Imports.KeepBackups))
	return habitservice.NewService(db, opts...), nil
}
