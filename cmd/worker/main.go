// Package main implements the generation worker: it polls the job queue
// and runs the plan/draft pipeline for each reserved job. It shares the
// database with the API server and can be scaled independently.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver registered as database/sql "pgx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tailorworks/tailor-api/internal/config"
	"github.com/tailorworks/tailor-api/internal/llm"
	"github.com/tailorworks/tailor-api/internal/platform/logger"
	"github.com/tailorworks/tailor-api/internal/platform/metrics"
	"github.com/tailorworks/tailor-api/internal/platform/postgres"
	"github.com/tailorworks/tailor-api/internal/task"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("Worker error: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	workerLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	// The API server owns migrations; the worker assumes the schema
	// is already in place.
	db, err := openDatabase(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	metrics.MustRegister()

	generationStore := postgres.NewPostgresGenerationStore(db, workerLogger)
	outputStore := postgres.NewPostgresOutputStore(db, workerLogger)
	usageStore := postgres.NewPostgresUsageStore(db, workerLogger)
	jobQueue := postgres.NewPostgresJobQueue(db, cfg.Worker.MaxAttempts, workerLogger)

	aiClient, err := llm.NewClient(cfg.LLM, usageStore, workerLogger)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	processor, err := task.NewGenerationProcessor(aiClient, generationStore, outputStore, workerLogger)
	if err != nil {
		return fmt.Errorf("failed to create generation processor: %w", err)
	}

	worker, err := task.NewWorker(jobQueue, processor, task.JobTypeGeneration, cfg.Worker, workerLogger)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	if cfg.Worker.MetricsPort > 0 {
		go serveMetrics(ctx, cfg.Worker.MetricsPort, workerLogger)
	}

	workerLogger.Info("worker configured",
		"job_type", task.JobTypeGeneration,
		"max_attempts", cfg.Worker.MaxAttempts)
	worker.Run(ctx)
	return nil
}

// serveMetrics exposes the Prometheus scrape endpoint for the
// standalone worker. Failures are logged, not fatal; the worker keeps
// processing jobs without observability rather than dying.
func serveMetrics(ctx context.Context, port int, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("metrics listener started", "port", port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics listener failed", "error", err)
	}
}
