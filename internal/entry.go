package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/eihwaz/internal/api"
	"github.com/starford/eihwaz/internal/bus"
	"github.com/starford/eihwaz/internal/mcpserver"
	"github.com/starford/eihwaz/internal/models"
	"github.com/starford/eihwaz/internal/persist"
	"github.com/starford/eihwaz/internal/snapshot"
	"github.com/starford/eihwaz/internal/sse"
	"github.com/starford/eihwaz/internal/store"
)

// Run starts the HTTP service with the given options.
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
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("snapshot_dir", cfg.Snapshots.Dir),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Open the persistence port.
	db, err := persist.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init persistence: %w", err)
	}
	defer db.Close()

	// Event bus and node store. Load is fatal on a port failure.
	events := bus.New()
	st := store.New(db, events, cfg.TemplateMap())
	if err := st.Load(); err != nil {
		return fmt.Errorf("load tree: %w", err)
	}
	logger.Info("Tree loaded", slog.Int("nodes", st.NodeCount()))

	// SSE broker bridging store events to clients.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	broker.Bind(events)

	// Snapshot drop-folder watcher (optional). The importer closes over the
	// service so watcher imports share its serialization with HTTP requests.
	var (
		svc     *api.Service
		watcher *snapshot.Watcher
	)
	if cfg.Snapshots.Watch {
		importer := func(snap *models.Snapshot) error { return svc.Import(snap) }
		watcher, err = snapshot.NewWatcher(cfg.Snapshots.Dir, importer, logger)
		if err != nil {
			return fmt.Errorf("init snapshot watcher: %w", err)
		}
	}
	svc = api.NewService(st, cfg.Snapshots.Dir, watcher)

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

	// Start snapshot watcher.
	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(gCtx)
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

// RunMCP serves the MCP stdio transport against the same database. Logs go
// to stderr so stdout stays clean for the protocol.
func RunMCP(_ context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	db, err := persist.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init persistence: %w", err)
	}
	defer db.Close()

	st := store.New(db, bus.New(), cfg.TemplateMap())
	if err := st.Load(); err != nil {
		return fmt.Errorf("load tree: %w", err)
	}

	logger.Info("MCP server starting on stdio", slog.Int("nodes", st.NodeCount()))
	return mcpserver.New(st).ServeStdio()
}
