package store

import (
	"context"
	"database/sql"

	"github.com/tailorworks/tailor-api/internal/domain"
)

// GenerationStore defines the persistence contract for generations.
// Only the orchestrator mutates generations; the stream path reads them
// through SnapshotStore.
type GenerationStore interface {
	// Create inserts a new generation and assigns its ID.
	Create(ctx context.Context, g *domain.Generation) error

	// GetByID retrieves a generation by its ID.
	// Returns ErrGenerationNotFound if it does not exist.
	GetByID(ctx context.Context, id int64) (*domain.Generation, error)

	// UpdateStatus sets the status and, for failures, the error message.
	// A non-failure status clears any previous error message.
	UpdateStatus(ctx context.Context, id int64, status domain.GenerationStatus, errorMessage string) error

	// UpdateProgress sets progress_percent.
	UpdateProgress(ctx context.Context, id int64, percent int) error

	// AddCost increments the accumulated cost by the given amount of
	// minor currency units.
	AddCost(ctx context.Context, id int64, cents int64) error

	// WithTx returns a GenerationStore bound to the provided transaction.
	WithTx(tx *sql.Tx) GenerationStore
}

// OutputStore defines the persistence contract for generation outputs.
type OutputStore interface {
	// ReplaceOutputs atomically deletes any existing outputs for the
	// generation and inserts the given set. Re-running it with the same
	// inputs leaves the same rows, which keeps the job handler safe
	// under at-least-once delivery.
	ReplaceOutputs(ctx context.Context, generationID int64, outputs []*domain.GenerationOutput) error

	// ListByGeneration returns all outputs for a generation, oldest first.
	ListByGeneration(ctx context.Context, generationID int64) ([]*domain.GenerationOutput, error)
}

// UsageStore appends to the usage ledger. The ledger is append-only;
// nothing in this core mutates or deletes records.
type UsageStore interface {
	Append(ctx context.Context, rec *domain.UsageRecord) error
}

// SnapshotStore produces the derived stream snapshot in one consistent
// read, independent of whether any worker is alive.
type SnapshotStore interface {
	// FetchSnapshot joins the generation row with the aggregate over its
	// outputs. Returns ErrGenerationNotFound if the generation does not exist.
	FetchSnapshot(ctx context.Context, generationID int64) (*domain.StreamSnapshot, error)
}
