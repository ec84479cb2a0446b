package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tailorworks/tailor-api/internal/platform/logger"
	"github.com/tailorworks/tailor-api/internal/store"
	"github.com/tailorworks/tailor-api/internal/task"
)

// retryBackoffBase is the queue-level delay before a failed job becomes
// eligible again; it doubles with each recorded attempt.
const retryBackoffBase = 30 * time.Second

// PostgresJobQueue implements the task.JobQueue interface using a
// PostgreSQL table as the durable queue. Reservation uses
// FOR UPDATE SKIP LOCKED so concurrent workers never claim the same row.
type PostgresJobQueue struct {
	db          store.DBTX
	pool        *sql.DB
	maxAttempts int
	logger      *slog.Logger
}

// NewPostgresJobQueue creates a queue over the given pool. maxAttempts
// is the per-job attempt ceiling; values below 1 fall back to 1.
func NewPostgresJobQueue(db *sql.DB, maxAttempts int, logger *slog.Logger) *PostgresJobQueue {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &PostgresJobQueue{
		db:          db,
		pool:        db,
		maxAttempts: maxAttempts,
		logger:      logger.With(slog.String("component", "job_queue")),
	}
}

// Ensure PostgresJobQueue implements task.JobQueue
var _ task.JobQueue = (*PostgresJobQueue)(nil)

// Enqueue implements task.JobQueue.Enqueue.
func (q *PostgresJobQueue) Enqueue(ctx context.Context, job *task.Job) error {
	log := logger.FromContextOrDefault(ctx, q.logger)

	query := `
		INSERT INTO jobs (id, type, payload, status, attempts, run_after,
			last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := q.db.ExecContext(
		ctx,
		query,
		job.ID,
		job.Type,
		[]byte(job.Payload),
		job.Status,
		job.Attempts,
		job.RunAfter,
		job.LastError,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to enqueue job",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID.String()),
			slog.String("job_type", job.Type))
		return MapError(err)
	}

	log.Info("job enqueued",
		slog.String("job_id", job.ID.String()),
		slog.String("job_type", job.Type))
	return nil
}

// ReserveNext implements task.JobQueue.ReserveNext. The select and the
// flip to reserved happen in one transaction; SKIP LOCKED makes the row
// invisible to concurrent claimants for the transaction's duration, so
// at most one worker ever reserves a given job.
func (q *PostgresJobQueue) ReserveNext(ctx context.Context, jobType string) (*task.Job, error) {
	log := logger.FromContextOrDefault(ctx, q.logger)

	var job task.Job
	err := store.RunInTransaction(ctx, q.pool, func(ctx context.Context, tx *sql.Tx) error {
		query := `
			SELECT id, type, payload, status, attempts, run_after,
				last_error, created_at, updated_at
			FROM jobs
			WHERE type = $1
			  AND status = $2
			  AND run_after <= $3
			ORDER BY run_after, created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		`
		var status string
		var payload []byte
		err := tx.QueryRowContext(ctx, query, jobType, task.JobStatusPending, time.Now().UTC()).Scan(
			&job.ID,
			&job.Type,
			&payload,
			&status,
			&job.Attempts,
			&job.RunAfter,
			&job.LastError,
			&job.CreatedAt,
			&job.UpdatedAt,
		)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrJobNotFound
			}
			return MapError(err)
		}
		job.Payload = payload
		job.Status = task.JobStatus(status)

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = $1, updated_at = $2 WHERE id = $3`,
			task.JobStatusReserved, now, job.ID,
		); err != nil {
			return MapError(err)
		}
		job.Status = task.JobStatusReserved
		job.UpdatedAt = now
		return nil
	})

	if err != nil {
		if !store.IsNotFoundError(err) {
			log.Error("failed to reserve job",
				slog.String("error", err.Error()),
				slog.String("job_type", jobType))
		}
		return nil, err
	}

	log.Debug("job reserved",
		slog.String("job_id", job.ID.String()),
		slog.Int("attempts", job.Attempts))
	return &job, nil
}

// Ack implements task.JobQueue.Ack.
func (q *PostgresJobQueue) Ack(ctx context.Context, jobID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, q.logger)

	result, err := q.db.ExecContext(ctx,
		`UPDATE jobs SET status = $1, updated_at = $2 WHERE id = $3`,
		task.JobStatusCompleted, time.Now().UTC(), jobID,
	)
	if err != nil {
		log.Error("failed to ack job",
			slog.String("error", err.Error()),
			slog.String("job_id", jobID.String()))
		return MapError(err)
	}

	return CheckRowsAffected(result, store.ErrJobNotFound)
}

// Fail implements task.JobQueue.Fail. A retry-eligible job goes back to
// pending with attempts+1 and a doubled run_after delay; the rest fail
// permanently. The requeue decision lives here, with the attempt
// counter, never in handlers.
func (q *PostgresJobQueue) Fail(ctx context.Context, jobID uuid.UUID, reason string, retry bool) (bool, error) {
	log := logger.FromContextOrDefault(ctx, q.logger)

	var requeued bool
	err := store.RunInTransaction(ctx, q.pool, func(ctx context.Context, tx *sql.Tx) error {
		var attempts int
		err := tx.QueryRowContext(ctx,
			`SELECT attempts FROM jobs WHERE id = $1 FOR UPDATE`,
			jobID,
		).Scan(&attempts)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrJobNotFound
			}
			return MapError(err)
		}

		attempts++
		now := time.Now().UTC()

		if retry && attempts < q.maxAttempts {
			delay := retryBackoffBase << (attempts - 1)
			_, err = tx.ExecContext(ctx, `
				UPDATE jobs
				SET status = $1, attempts = $2, run_after = $3,
					last_error = $4, updated_at = $5
				WHERE id = $6`,
				task.JobStatusPending, attempts, now.Add(delay), reason, now, jobID,
			)
			requeued = true
		} else {
			_, err = tx.ExecContext(ctx, `
				UPDATE jobs
				SET status = $1, attempts = $2, last_error = $3, updated_at = $4
				WHERE id = $5`,
				task.JobStatusFailed, attempts, reason, now, jobID,
			)
		}
		if err != nil {
			return MapError(err)
		}
		return nil
	})

	if err != nil {
		log.Error("failed to settle job failure",
			slog.String("error", err.Error()),
			slog.String("job_id", jobID.String()))
		return false, err
	}

	if requeued {
		log.Warn("job requeued for retry", slog.String("job_id", jobID.String()))
	} else {
		log.Error("job failed permanently",
			slog.String("job_id", jobID.String()),
			slog.String("reason", reason))
	}
	return requeued, nil
}

// WithTx implements task.JobQueue.WithTx. Only Enqueue is expected
// inside a caller-managed transaction; reservation and settlement manage
// their own.
func (q *PostgresJobQueue) WithTx(tx *sql.Tx) task.JobQueue {
	return &PostgresJobQueue{
		db:          tx,
		pool:        q.pool,
		maxAttempts: q.maxAttempts,
		logger:      q.logger,
	}
}
