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

	"github.com/starford/nodeflow/internal/api"
	"github.com/starford/nodeflow/internal/chat"
	"github.com/starford/nodeflow/internal/flowservice"
	"github.com/starford/nodeflow/internal/index"
	"github.com/starford/nodeflow/internal/mcpserver"
	"github.com/starford/nodeflow/internal/metrics"
	"github.com/starford/nodeflow/internal/projects"
	"github.com/starford/nodeflow/internal/request"
	"github.com/starford/nodeflow/internal/runner"
	"github.com/starford/nodeflow/internal/session"
	"github.com/starford/nodeflow/internal/sse"
	"github.com/starford/nodeflow/internal/storage"
)

// NewLogger returns the structured JSON logger used by every command.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Components are the long-lived collaborators shared by the server, the MCP
// server and the one-shot CLI commands.
type Components struct {
	Config   *Config
	Logger   *slog.Logger
	Store    *storage.FS
	DB       *index.DB
	Client   *request.Client
	Flows    *flowservice.Service
	Gate     *session.Gate
	Accounts *session.Accounts
	Projects *projects.Client
	Chat     *chat.Client
}

// Open wires storage, the index, the backend client and every backend-facing
// service. Session cookies are persisted in the index database. The caller
// must Close the result.
func Open(cfg *Config, logger *slog.Logger, flowOpts ...flowservice.Option) (*Components, error) {
	if err := os.MkdirAll(cfg.Flows.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create flows dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Flows.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init index: %w", err)
	}

	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	jar, err := request.NewPersistentJar(db, logger, cfg.Backend.BaseURL, cfg.Backend.LLMBase())
	if err != nil {
		db.Close()
		store.Close()
		return nil, fmt.Errorf("init cookie jar: %w", err)
	}

	client, err := request.New(cfg.Backend.RefreshURL(),
		request.WithJar(jar),
		request.WithTimeout(cfg.Backend.Timeout),
		request.WithLogger(logger),
	)
	if err != nil {
		db.Close()
		store.Close()
		return nil, fmt.Errorf("init backend client: %w", err)
	}

	run := runner.New(client, cfg.Backend.RunEndpoint(), logger)
	opts := append([]flowservice.Option{
		flowservice.WithRunner(run),
		flowservice.WithLogger(logger),
	}, flowOpts...)

	return &Components{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		DB:       db,
		Client:   client,
		Flows:    flowservice.NewService(store, db, opts...),
		Gate:     session.NewGate(client, cfg.Backend.BaseURL, logger),
		Accounts: session.NewAccounts(client, cfg.Backend.BaseURL),
		Projects: projects.NewClient(client, cfg.Backend.BaseURL),
		Chat:     chat.NewClient(client, cfg.Backend.LLMBase()),
	}, nil
}

// Close releases the index database and the flows directory.
func (c *Components) Close() error {
	return errors.Join(c.DB.Close(), c.Store.Close())
}

// Run starts the local flow server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	cfg := app.config
	logger := app.logger
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("backend_url", cfg.Backend.BaseURL),
		slog.String("run_url", cfg.Backend.RunEndpoint()),
		slog.String("flows_path", cfg.Flows.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	collector := metrics.NewCollector("nodeflow")
	onFlowEvent := func(kind, id string) {
		broker.PublishFlowEvent(kind, id)
		collector.ObserveFlowEvent(kind)
	}
	onRun := func(id string, status int, err error) {
		broker.PublishRun(id, status, err)
		collector.ObserveRun(err)
	}

	c, err := Open(cfg, logger, flowservice.WithEvents(onFlowEvent))
	if err != nil {
		return err
	}
	defer c.Close()

	apiRouter := api.NewRouter(c.Flows, api.RouterConfig{
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
		Events:      broker,
		Session:     c.Gate,
		OnRun:       onRun,
		Canvas:      chat.NewCanvas(c.Chat, logger),
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(collector.Middleware)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", health)
	r.Get("/health/ready", health)
	r.Handle("/metrics", collector.Handler())

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher with SSE callback.
	g.Go(func() error {
		if err := index.Watch(gCtx, c.DB, c.Store, logger, onFlowEvent); err != nil {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

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

// RunMCP serves the flow tools over stdio until stdin closes. Logs must not
// go to stdout; pass WithLogger with a stderr logger.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	c, err := Open(app.config, app.logger)
	if err != nil {
		return err
	}
	defer c.Close()

	app.logger.Info("MCP server starting", slog.String("flows_path", app.config.Flows.Path))
	if err := mcpserver.New(c.Flows, app.version).ServeStdio(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
