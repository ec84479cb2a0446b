package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailorworks/tailor-api/internal/config"
	"github.com/tailorworks/tailor-api/internal/store"
)

// scriptQueue hands out a fixed sequence of reservations and records
// settlement calls.
type scriptQueue struct {
	mu    sync.Mutex
	jobs  []*Job
	acked []uuid.UUID
	fails []failCall

	maxAttempts int
	reserveErr  error
	failErr     error
	emptyPolls  int // reservations to report empty before serving jobs
}

type failCall struct {
	jobID  uuid.UUID
	reason string
	retry  bool
}

func (q *scriptQueue) Enqueue(_ context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *scriptQueue) ReserveNext(_ context.Context, _ string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.reserveErr != nil {
		err := q.reserveErr
		q.reserveErr = nil
		return nil, err
	}
	if q.emptyPolls > 0 {
		q.emptyPolls--
		return nil, store.ErrJobNotFound
	}
	if len(q.jobs) == 0 {
		return nil, store.ErrJobNotFound
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	job.Status = JobStatusReserved
	return job, nil
}

func (q *scriptQueue) Ack(_ context.Context, jobID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, jobID)
	return nil
}

func (q *scriptQueue) Fail(_ context.Context, jobID uuid.UUID, reason string, retry bool) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fails = append(q.fails, failCall{jobID: jobID, reason: reason, retry: retry})
	if q.failErr != nil {
		return false, q.failErr
	}
	return retry && q.maxAttempts > 1, nil
}

func (q *scriptQueue) WithTx(*sql.Tx) JobQueue { return q }

// funcHandler adapts plain functions to the Handler interface.
type funcHandler struct {
	handle func(ctx context.Context, job *Job) error

	mu       sync.Mutex
	failures []bool // willRetry per OnFailure call
	handled  int
}

func (h *funcHandler) Handle(ctx context.Context, job *Job) error {
	h.mu.Lock()
	h.handled++
	h.mu.Unlock()
	return h.handle(ctx, job)
}

func (h *funcHandler) OnFailure(_ context.Context, _ *Job, _ error, willRetry bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = append(h.failures, willRetry)
}

func workerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		IdleBackoffMin: time.Millisecond,
		IdleBackoffMax: 4 * time.Millisecond,
		MaxAttempts:    5,
	}
}

func queuedJob(t *testing.T) *Job {
	t.Helper()
	job, err := NewJob(JobTypeGeneration, json.RawMessage(`{"generation_id": 1}`))
	require.NoError(t, err)
	return job
}

// runWorker drives the loop until check passes or the deadline expires,
// then cancels and waits for shutdown.
func runWorker(t *testing.T, w *Worker, check func() bool) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for !check() {
		select {
		case <-deadline:
			cancel()
			<-done
			t.Fatal("worker did not reach expected state in time")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not shut down")
	}
}

func TestWorkerAcksSuccessfulJob(t *testing.T) {
	job := queuedJob(t)
	queue := &scriptQueue{jobs: []*Job{job}, maxAttempts: 5}
	handler := &funcHandler{handle: func(context.Context, *Job) error { return nil }}

	w, err := NewWorker(queue, handler, JobTypeGeneration, workerConfig(), discardLogger())
	require.NoError(t, err)

	runWorker(t, w, func() bool {
		queue.mu.Lock()
		defer queue.mu.Unlock()
		return len(queue.acked) == 1
	})

	assert.Equal(t, []uuid.UUID{job.ID}, queue.acked)
	assert.Empty(t, queue.fails)
}

func TestWorkerFailsTransientJobWithRetry(t *testing.T) {
	job := queuedJob(t)
	queue := &scriptQueue{jobs: []*Job{job}, maxAttempts: 5}
	handler := &funcHandler{handle: func(context.Context, *Job) error {
		return &TransientError{Op: "plan", Err: errors.New("503")}
	}}

	w, err := NewWorker(queue, handler, JobTypeGeneration, workerConfig(), discardLogger())
	require.NoError(t, err)

	runWorker(t, w, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return len(handler.failures) == 1
	})

	require.Len(t, queue.fails, 1)
	assert.True(t, queue.fails[0].retry)
	assert.Equal(t, []bool{true}, handler.failures)
}

func TestWorkerFailsFatalJobWithoutRetry(t *testing.T) {
	job := queuedJob(t)
	queue := &scriptQueue{jobs: []*Job{job}, maxAttempts: 5}
	handler := &funcHandler{handle: func(context.Context, *Job) error {
		return ErrInvalidPayload
	}}

	w, err := NewWorker(queue, handler, JobTypeGeneration, workerConfig(), discardLogger())
	require.NoError(t, err)

	runWorker(t, w, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return len(handler.failures) == 1
	})

	require.Len(t, queue.fails, 1)
	assert.False(t, queue.fails[0].retry)
	assert.Equal(t, []bool{false}, handler.failures)
}

func TestWorkerSurvivesReservationError(t *testing.T) {
	job := queuedJob(t)
	queue := &scriptQueue{jobs: []*Job{job}, maxAttempts: 5, reserveErr: errors.New("connection refused")}
	handler := &funcHandler{handle: func(context.Context, *Job) error { return nil }}

	w, err := NewWorker(queue, handler, JobTypeGeneration, workerConfig(), discardLogger())
	require.NoError(t, err)

	// The first poll errors; the loop must treat it as empty and reach
	// the queued job on a later poll.
	runWorker(t, w, func() bool {
		queue.mu.Lock()
		defer queue.mu.Unlock()
		return len(queue.acked) == 1
	})
}

func TestWorkerIdleBackoffDoublesAndResets(t *testing.T) {
	job := queuedJob(t)
	queue := &scriptQueue{jobs: []*Job{job}, maxAttempts: 5, emptyPolls: 7}
	handler := &funcHandler{handle: func(context.Context, *Job) error { return nil }}

	cfg := config.WorkerConfig{
		IdleBackoffMin: time.Second,
		IdleBackoffMax: 30 * time.Second,
		MaxAttempts:    5,
	}
	w, err := NewWorker(queue, handler, JobTypeGeneration, cfg, discardLogger())
	require.NoError(t, err)

	// Record requested sleeps instead of waiting; end the loop by
	// refusing the ninth one.
	var sleeps []time.Duration
	w.sleep = func(_ context.Context, d time.Duration) bool {
		sleeps = append(sleeps, d)
		return len(sleeps) < 9
	}

	w.Run(context.Background())

	// Seven empty polls double the idle delay up to the ceiling; finding
	// the job resets it, so the next empty poll starts at the minimum.
	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
		time.Second, 2 * time.Second,
	}
	assert.Equal(t, want, sleeps)
	assert.Equal(t, []uuid.UUID{job.ID}, queue.acked)
}

func TestWorkerSkipsOnFailureWhenSettleFails(t *testing.T) {
	job := queuedJob(t)
	queue := &scriptQueue{jobs: []*Job{job}, maxAttempts: 5, failErr: errors.New("connection reset")}
	handler := &funcHandler{handle: func(context.Context, *Job) error {
		return ErrInvalidPayload
	}}

	w, err := NewWorker(queue, handler, JobTypeGeneration, workerConfig(), discardLogger())
	require.NoError(t, err)

	runWorker(t, w, func() bool {
		queue.mu.Lock()
		defer queue.mu.Unlock()
		return len(queue.fails) == 1
	})

	// The queue never settled the job, so its final state is unknown;
	// the generation must not be marked failed on a guess.
	assert.Empty(t, handler.failures)
}

func TestWorkerStopsBetweenJobs(t *testing.T) {
	queue := &scriptQueue{maxAttempts: 5}
	handler := &funcHandler{handle: func(context.Context, *Job) error { return nil }}

	w, err := NewWorker(queue, handler, JobTypeGeneration, workerConfig(), discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
	assert.Zero(t, handler.handled)
}

func TestNewWorkerValidation(t *testing.T) {
	queue := &scriptQueue{}
	handler := &funcHandler{handle: func(context.Context, *Job) error { return nil }}

	_, err := NewWorker(nil, handler, JobTypeGeneration, workerConfig(), discardLogger())
	assert.ErrorIs(t, err, ErrNilQueue)

	_, err = NewWorker(queue, nil, JobTypeGeneration, workerConfig(), discardLogger())
	assert.ErrorIs(t, err, ErrNilHandler)

	_, err = NewWorker(queue, handler, "", workerConfig(), discardLogger())
	assert.ErrorIs(t, err, ErrEmptyJobType)

	_, err = NewWorker(queue, handler, JobTypeGeneration, workerConfig(), nil)
	assert.ErrorIs(t, err, ErrNilLogger)
}
