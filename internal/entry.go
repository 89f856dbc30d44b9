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

	"github.com/starford/decksmith/internal/api"
	"github.com/starford/decksmith/internal/deckservice"
	"github.com/starford/decksmith/internal/diag"
	"github.com/starford/decksmith/internal/inbox"
)

// NewLogger builds the JSON logger used by every entrypoint. Records at Warn
// and above are mirrored to hub when it is non-nil.
func NewLogger(w io.Writer, level slog.Level, hub *diag.Hub) *slog.Logger {
	var h slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	if hub != nil {
		h = diag.NewHandler(h, hub, slog.LevelWarn)
	}
	return slog.New(h)
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	if app.hub == nil {
		app.hub = diag.NewHub()
	}

	cfg := app.config

	logger := NewLogger(os.Stdout, cfg.App.LogLevel, app.hub)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("output_dir", cfg.Output.BaseDir),
		slog.String("media_mode", string(cfg.Output.MediaMode)),
		slog.Bool("inbox_enabled", cfg.Inbox.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Output.BaseDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	svc := deckservice.NewService(logger)
	apiRouter := api.NewRouter(svc, cfg.Output.BaseDir, cfg.Output.MediaMode,
		cfg.Auth.AuthEnabled(), cfg.Auth.Token, app.hub)

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

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Inbox.Enabled {
		if err := os.MkdirAll(cfg.Inbox.Path, 0o755); err != nil {
			return fmt.Errorf("create inbox dir: %w", err)
		}
		ib := inbox.New(cfg.Inbox.Path, cfg.Output.BaseDir, cfg.Output.MediaMode, svc, logger, nil)

		g.Go(func() error {
			if _, err := ib.Sync(gCtx); err != nil {
				logger.Warn("initial inbox sync failed", slog.String("error", err.Error()))
			}
			return ib.Watch(gCtx)
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
		stop()

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
