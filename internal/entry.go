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

	"github.com/starford/arbor/internal/api"
	"github.com/starford/arbor/internal/autocomplete"
	"github.com/starford/arbor/internal/changes"
	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/mcpserver"
	"github.com/starford/arbor/internal/noteservice"
	"github.com/starford/arbor/internal/search"
	"github.com/starford/arbor/internal/sse"
	"github.com/starford/arbor/internal/store"
)

// components is everything both modes share.
type components struct {
	logger  *slog.Logger
	db      *store.DB
	cache   *graph.Cache
	broker  *sse.Broker
	applier *changes.Applier
	svc     *noteservice.Service
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{version: "dev"}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Stdout carries the MCP protocol, so MCP mode logs to stderr.
	var logOut io.Writer = os.Stdout
	if app.mode == ModeMCP {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("watch_enabled", cfg.Watch.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.db.Close()
	defer c.cache.Shutdown()
	defer c.broker.Close()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	g, gCtx := errgroup.WithContext(runCtx)

	// Single writer for API changes.
	g.Go(func() error {
		return c.applier.Run(gCtx)
	})

	// Reload the cache when another process writes the database.
	if cfg.Watch.Enabled {
		g.Go(func() error {
			err := c.db.Watch(gCtx, cfg.Watch.Debounce, logger, func() {
				reload(gCtx, c)
			})
			if err != nil {
				// Keep serving; external writes are picked up on restart.
				logger.Warn("database watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	if app.mode == ModeMCP {
		g.Go(func() error {
			defer stop()
			logger.Info("Starting MCP server on stdio")
			return mcpserver.New(c.svc, app.version).ServeStdio()
		})
	} else {
		serveHTTP(g, gCtx, stop, cfg, c)
	}

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// build opens the store, loads the cache and wires the services.
func build(ctx context.Context, cfg *Config, logger *slog.Logger) (*components, error) {
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	cache := graph.New(logger, graph.WithMaxDepth(cfg.Search.MaxAncestorDepth))
	started := time.Now()
	if err := cache.Load(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("load cache: %w", err)
	}
	_ = cache.View(func(s *graph.Snapshot) error {
		logger.Info("Cache loaded",
			slog.Int("notes", s.NoteCount()),
			slog.Duration("took", time.Since(started)))
		return nil
	})

	broker := sse.NewBroker(cfg.Events.TreeThrottle)
	searchSvc := search.NewService(cache, logger,
		search.WithContentIndex(db),
		search.WithMaxCandidates(cfg.Search.MaxCandidates),
		search.WithSlowQueryThreshold(cfg.Search.SlowQueryThreshold))
	ac := autocomplete.New(searchSvc, db, logger,
		autocomplete.WithLimit(cfg.Search.AutocompleteLimit),
		autocomplete.WithHistoryLimit(cfg.Search.HistoryLimit))
	applier := changes.NewApplier(db, cache, broker, logger)

	return &components{
		logger:  logger,
		db:      db,
		cache:   cache,
		broker:  broker,
		applier: applier,
		svc:     noteservice.NewService(cache, db, db, searchSvc, ac, applier),
	}, nil
}

func reload(ctx context.Context, c *components) {
	if err := c.cache.Load(ctx, c.db); err != nil {
		c.logger.Warn("cache reload failed", slog.String("error", err.Error()))
		return
	}
	gen := c.cache.Generation()
	c.logger.Info("Cache reloaded after external write", slog.Uint64("generation", gen))
	c.broker.Publish(sse.Event{Type: sse.EventCacheReloaded, Data: map[string]uint64{"generation": gen}})
}

func serveHTTP(g *errgroup.Group, gCtx context.Context, stop context.CancelFunc, cfg *Config, c *components) {
	logger := c.logger
	apiRouter := api.NewRouter(c.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, c.broker)

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
		_, _ = fmt.Fprintf(w, `{"status":"ok","generation":%d}`, c.cache.Generation())
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
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
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Closing the broker ends open SSE streams so Shutdown can drain.
		c.broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Stop the applier and watcher too.
		stop()
		return nil
	})
}
