// Package server initializes and runs the backend application: it opens the
// database, applies migrations, wires the services and the execution
// orchestrator, and serves the HTTP API until shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/oasis-water/oasis-backend/internal/filex"
	"github.com/oasis-water/oasis-backend/internal/logging"
	"github.com/oasis-water/oasis-backend/internal/server/artifacts"
	"github.com/oasis-water/oasis-backend/internal/server/config"
	"github.com/oasis-water/oasis-backend/internal/server/httpapi"
	"github.com/oasis-water/oasis-backend/internal/server/orchestrator"
	"github.com/oasis-water/oasis-backend/internal/server/repositories/repomanager"
	"github.com/oasis-water/oasis-backend/internal/server/services"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config       *config.Config
	logger       logging.Logger
	db           *sql.DB
	sessions     *services.SessionService
	jobs         *services.JobService
	orchestrator *orchestrator.Orchestrator
	httpServer   *http.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is not configured")
	}
	if err := filex.EnsureDir(cfg.DataDir); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	sessions := services.NewSessionService(db, rm, cfg)
	jobs := services.NewJobService(db, rm, cfg.DataDir)

	var store orchestrator.ArtifactStore
	var presigner httpapi.ArtifactPresigner
	if s3 := artifacts.NewS3Store(cfg); s3.Enabled() {
		store = s3
		presigner = s3
	}
	orch := orchestrator.New(jobs, store, cfg.DataDir, logger)

	api := httpapi.NewServer(sessions, jobs, orch, presigner, cfg, logger)

	return &App{
		config:       cfg,
		logger:       logger,
		db:           db,
		sessions:     sessions,
		jobs:         jobs,
		orchestrator: orch,
		httpServer: &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: api.Engine(),
		},
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until the context is cancelled or the listener fails, then
// drains the HTTP server and the orchestrator.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.initSignalHandler(cancelFunc)
	app.orchestrator.Start(app.config.Workers)

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info(ctx, "listening", "addr", app.config.HTTPAddr)
		errCh <- app.httpServer.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	app.logger.Info(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "http shutdown error", "error", err)
	}

	app.orchestrator.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error(shutdownCtx, "db close error", "error", err)
	}

	return serveErr
}
