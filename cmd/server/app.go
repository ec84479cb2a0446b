package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver registered as database/sql "pgx"

	"github.com/tailorworks/tailor-api/internal/api"
	"github.com/tailorworks/tailor-api/internal/config"
	"github.com/tailorworks/tailor-api/internal/llm"
	"github.com/tailorworks/tailor-api/internal/platform/logger"
	"github.com/tailorworks/tailor-api/internal/platform/metrics"
	"github.com/tailorworks/tailor-api/internal/platform/postgres"
	"github.com/tailorworks/tailor-api/internal/service"
	"github.com/tailorworks/tailor-api/internal/task"
)

// application holds the composed dependencies of the HTTP server and
// its embedded worker.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	router http.Handler
	worker *task.Worker
}

// newApplication loads configuration, connects to the database, runs
// migrations and wires the service and API layers.
func newApplication(ctx context.Context) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	db, err := openDatabase(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	if err := postgres.Migrate(ctx, db, appLogger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	metrics.MustRegister()

	generationStore := postgres.NewPostgresGenerationStore(db, appLogger)
	outputStore := postgres.NewPostgresOutputStore(db, appLogger)
	snapshotStore := postgres.NewPostgresSnapshotStore(db, appLogger)
	usageStore := postgres.NewPostgresUsageStore(db, appLogger)
	jobQueue := postgres.NewPostgresJobQueue(db, cfg.Worker.MaxAttempts, appLogger)

	generationService, err := service.NewGenerationService(db, generationStore, outputStore, jobQueue, appLogger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create generation service: %w", err)
	}

	// Embedded worker. Extra cmd/worker processes can run alongside it;
	// the queue's atomic reservation keeps them from colliding.
	aiClient, err := llm.NewClient(cfg.LLM, usageStore, appLogger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	processor, err := task.NewGenerationProcessor(aiClient, generationStore, outputStore, appLogger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create generation processor: %w", err)
	}
	worker, err := task.NewWorker(jobQueue, processor, task.JobTypeGeneration, cfg.Worker, appLogger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create worker: %w", err)
	}

	router := api.NewRouter(api.RouterDeps{
		GenerationService: generationService,
		Snapshots:         snapshotStore,
		StreamConfig:      cfg.Stream,
	})

	appLogger.Info("application initialized",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel)

	return &application{
		config: cfg,
		logger: appLogger,
		db:     db,
		router: router,
		worker: worker,
	}, nil
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts it down gracefully.
func (app *application) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: the SSE stream endpoint holds connections
		// open up to the stream timeout.
	}

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		app.worker.Run(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("HTTP server listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	app.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	// The worker stops between jobs; wait so an in-flight generation is
	// not cut off mid-write.
	<-workerDone
	return nil
}

func (app *application) cleanup() {
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("failed to close database", "error", err)
		}
	}
}

// openDatabase opens and verifies the connection pool.
func openDatabase(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
