package task

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tailorworks/tailor-api/internal/config"
	"github.com/tailorworks/tailor-api/internal/platform/metrics"
	"github.com/tailorworks/tailor-api/internal/redact"
	"github.com/tailorworks/tailor-api/internal/store"
)

// Errors for Worker construction
var (
	ErrNilQueue   = errors.New("job queue cannot be nil")
	ErrNilHandler = errors.New("job handler cannot be nil")
	ErrNilLogger  = errors.New("logger cannot be nil")
)

// Handler processes one reserved job. Handle must be safe to re-run for
// the same job, since delivery is at-least-once: a crash between Handle
// returning and the ack landing re-delivers the job.
type Handler interface {
	// Handle executes the job. A returned error for which Retryable is
	// true sends the job back through the queue's retry path.
	Handle(ctx context.Context, job *Job) error

	// OnFailure is invoked after Handle fails, once the queue has decided
	// whether the job will run again.
	OnFailure(ctx context.Context, job *Job, jobErr error, willRetry bool)
}

// Worker is a polling loop over one job type: reserve, dispatch, ack or
// fail, repeat. Horizontal scale-out is just more Worker processes
// against the same queue; the atomic reservation read is the only
// coordination between them.
type Worker struct {
	queue   JobQueue
	handler Handler
	jobType string
	logger  *slog.Logger

	idleMin time.Duration
	idleMax time.Duration

	// sleep is overridable for tests.
	sleep func(ctx context.Context, d time.Duration) bool
}

// NewWorker creates a Worker for the given job type.
func NewWorker(queue JobQueue, handler Handler, jobType string, cfg config.WorkerConfig, logger *slog.Logger) (*Worker, error) {
	if queue == nil {
		return nil, ErrNilQueue
	}
	if handler == nil {
		return nil, ErrNilHandler
	}
	if jobType == "" {
		return nil, ErrEmptyJobType
	}
	if logger == nil {
		return nil, ErrNilLogger
	}

	idleMin := cfg.IdleBackoffMin
	if idleMin <= 0 {
		idleMin = time.Second
	}
	idleMax := cfg.IdleBackoffMax
	if idleMax < idleMin {
		idleMax = 30 * time.Second
	}

	return &Worker{
		queue:   queue,
		handler: handler,
		jobType: jobType,
		logger:  logger.With("component", "worker", "job_type", jobType),
		idleMin: idleMin,
		idleMax: idleMax,
		sleep:   sleepTimer,
	}, nil
}

// Run polls until ctx is cancelled. Cancellation is only checked between
// jobs; a job in flight always runs to completion. On an empty queue or
// a reservation error the idle backoff doubles up to its ceiling and
// resets as soon as work is found.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started")
	defer w.logger.Info("worker stopped")

	idle := w.idleMin
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := w.queue.ReserveNext(ctx, w.jobType)
		if err != nil {
			if !store.IsNotFoundError(err) {
				// Reservation errors are empty polls, never crashes.
				w.logger.Error("job reservation failed", "error", err)
			}
			if !w.sleep(ctx, idle) {
				return
			}
			idle = min(idle*2, w.idleMax)
			continue
		}
		idle = w.idleMin

		w.process(ctx, job)
	}
}

// process dispatches one reserved job and settles it with the queue.
func (w *Worker) process(ctx context.Context, job *Job) {
	log := w.logger.With("job_id", job.ID, "attempt", job.Attempts+1)
	log.Info("processing job")

	start := time.Now()
	err := w.handler.Handle(ctx, job)
	took := time.Since(start)

	if err == nil {
		if ackErr := w.queue.Ack(ctx, job.ID); ackErr != nil {
			log.Error("failed to ack completed job", "error", ackErr)
		}
		metrics.JobProcessed(job.Type, "completed", took)
		log.Info("job completed", "took_ms", took.Milliseconds())
		return
	}

	retry := Retryable(err)
	requeued, failErr := w.queue.Fail(ctx, job.ID, redact.Truncate(err.Error(), maxAuditChars), retry)
	if failErr != nil {
		// The queue never decided, so the row is still reserved. Guessing
		// a final status for the generation would diverge from the queue;
		// leave its state alone and make the stuck reservation visible.
		log.Error("failed to settle failed job, reservation left in place",
			"error", failErr, "job_error", err)
		metrics.JobProcessed(job.Type, "settle_error", took)
		return
	}

	w.handler.OnFailure(ctx, job, err, requeued)

	if requeued {
		metrics.JobProcessed(job.Type, "retried", took)
		metrics.JobRequeued(job.Type)
		log.Warn("job failed, requeued for retry", "error", err)
		return
	}
	metrics.JobProcessed(job.Type, "failed", took)
	log.Error("job failed permanently", "error", err, "took_ms", took.Milliseconds())
}

// sleepTimer waits for d or until ctx is cancelled, reporting whether
// the loop should continue.
func sleepTimer(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
