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
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ehwaz/internal/api"
	"github.com/starford/ehwaz/internal/differ"
	"github.com/starford/ehwaz/internal/events"
	"github.com/starford/ehwaz/internal/index"
	"github.com/starford/ehwaz/internal/mcpserver"
	"github.com/starford/ehwaz/internal/notion"
	"github.com/starford/ehwaz/internal/scheduler"
	"github.com/starford/ehwaz/internal/storage"
	"github.com/starford/ehwaz/internal/syncer"
)

// remotePriority is the scheduler priority band for API-triggered work.
// Retries requeue above it so interrupted operations finish first.
const remotePriority = 5

// engine bundles the composed sync machinery shared by serve mode and the
// one-shot commands.
type engine struct {
	store *storage.FS
	db    *index.DB
	sched *scheduler.Scheduler
	svc   *syncer.Service
}

func (e *engine) close() {
	e.sched.Stop()
	_ = e.db.Close()
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

func newLogger(cfg *Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// buildEngine composes storage, index, scheduler, remote client, differ, and
// orchestrator. broker may be nil for one-shot commands.
func buildEngine(app *application, logger *slog.Logger, broker *events.Broker) (*engine, error) {
	cfg := app.config

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
	if err := index.Rebuild(db, store, logger); err != nil {
		logger.Warn("initial index rebuild failed", slog.String("error", err.Error()))
	}

	sched := scheduler.New(scheduler.Options{
		Rate:   cfg.Notion.Rate,
		Burst:  cfg.Notion.Burst,
		Logger: logger,
	})

	client := notion.NewClient(notion.ClientOptions{
		BaseURL: cfg.Notion.BaseURL,
		Token:   cfg.Notion.Token,
	})
	remote := notion.NewScheduled(client, sched, remotePriority)

	resolver := app.resolver
	if resolver == nil {
		resolver, err = syncer.NewResolver(cfg.Sync.ConflictStrategy)
		if err != nil {
			sched.Stop()
			_ = db.Close()
			return nil, err
		}
	}

	svc := syncer.New(syncer.Deps{
		Store:        store,
		Index:        db,
		API:          remote,
		Differ:       differ.New(remote, logger),
		Resolver:     resolver,
		Broker:       broker,
		Logger:       logger,
		DatabaseID:   cfg.Notion.DatabaseID,
		ImportFolder: cfg.Sync.ImportFolder,
	})

	return &engine{store: store, db: db, sched: sched, svc: svc}, nil
}

// Run starts the long-running service: HTTP API, SSE stream, and the vault
// watcher, shut down together on signal or context cancellation.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(cfg)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("conflict_strategy", cfg.Sync.ConflictStrategy),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := events.NewBroker(2 * time.Second)
	defer broker.Close()

	eng, err := buildEngine(app, logger, broker)
	if err != nil {
		return err
	}
	defer eng.close()

	handler := api.NewHandler(eng.svc, eng.db, eng.store, eng.sched.Status)
	apiRouter := api.NewRouter(handler, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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

	g, gCtx := errgroup.WithContext(ctx)

	// Edit-triggered export watcher.
	if cfg.Sync.WatchEnabled {
		watcher := syncer.NewWatcher(eng.svc, cfg.Vault.Path, cfg.Sync.Debounce(), logger)
		g.Go(func() error {
			if err := watcher.Run(gCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("watcher error: %w", err)
			}
			return nil
		})
	}

	// HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Shutdown signals.
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

// RunImport is the one-shot import command.
func RunImport(ctx context.Context, opts ...Option) error {
	return withEngine(opts, func(ctx context.Context, eng *engine, logger *slog.Logger) error {
		rep, err := eng.svc.ImportAll(ctx)
		if err != nil {
			return err
		}
		logger.Info("import complete",
			slog.Int("imported", rep.Imported), slog.Int("updated", rep.Updated),
			slog.Int("skipped", rep.Skipped), slog.Int("failed", rep.Failed))
		return nil
	})(ctx)
}

// RunExport is the one-shot single-document export command.
func RunExport(ctx context.Context, path string, opts ...Option) error {
	return withEngine(opts, func(ctx context.Context, eng *engine, logger *slog.Logger) error {
		status, err := eng.svc.ExportDocument(ctx, path)
		if err != nil {
			return err
		}
		logger.Info("export complete", slog.String("path", path), slog.String("status", string(status)))
		return nil
	})(ctx)
}

// RunSync is the one-shot batch reconciliation command. bidirectional also
// imports before the export sweep.
func RunSync(ctx context.Context, bidirectional bool, opts ...Option) error {
	return withEngine(opts, func(ctx context.Context, eng *engine, logger *slog.Logger) error {
		if bidirectional {
			imp, exp, err := eng.svc.RunBidirectional(ctx)
			if err != nil {
				return err
			}
			logger.Info("bidirectional sync complete",
				slog.Int("imported", imp.Imported+imp.Updated),
				slog.Int("exported", exp.Updated),
				slog.Int("failed", imp.Failed+exp.Failed))
			return nil
		}
		rep, err := eng.svc.SyncAll(ctx)
		if err != nil {
			return err
		}
		logger.Info("sync complete",
			slog.Int("exported", rep.Updated), slog.Int("skipped", rep.Skipped),
			slog.Int("failed", rep.Failed))
		return nil
	})(ctx)
}

// RunMCP serves the MCP tools over stdio until the client disconnects.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	// Logs must not share stdout with the MCP transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)

	eng, err := buildEngine(app, logger, nil)
	if err != nil {
		return err
	}
	defer eng.close()

	srv := mcpserver.New(eng.store, eng.db, eng.svc, eng.sched.Status)
	return srv.ServeStdio()
}

func withEngine(opts []Option, fn func(context.Context, *engine, *slog.Logger) error) func(context.Context) error {
	return func(ctx context.Context) error {
		app, err := newApplication(opts)
		if err != nil {
			return err
		}
		logger := newLogger(app.config)
		eng, err := buildEngine(app, logger, nil)
		if err != nil {
			return err
		}
		defer eng.close()
		return fn(ctx, eng, logger)
	}
}
