package task

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// JobQueue defines the durable queue contract. The queue alone owns
// attempt counting and the retry-vs-fatal decision; handlers only report
// whether an error is worth retrying.
type JobQueue interface {
	// Enqueue inserts a pending job eligible to run immediately.
	Enqueue(ctx context.Context, job *Job) error

	// ReserveNext atomically selects the oldest eligible job of the given
	// type and flips it to reserved in the same operation, so at most one
	// worker ever claims a row. Eligible means pending with run_after in
	// the past. Returns store.ErrJobNotFound when the queue is empty.
	ReserveNext(ctx context.Context, jobType string) (*Job, error)

	// Ack marks a reserved job completed.
	Ack(ctx context.Context, jobID uuid.UUID) error

	// Fail records a job failure. With retry set and attempts below the
	// ceiling it increments attempts and returns the job to pending with
	// a backed-off run_after, reporting requeued=true. Otherwise the job
	// is failed permanently.
	Fail(ctx context.Context, jobID uuid.UUID, reason string, retry bool) (requeued bool, err error)

	// WithTx returns a JobQueue bound to the provided transaction, so a
	// caller can create a generation and enqueue its job atomically.
	WithTx(tx *sql.Tx) JobQueue
}
