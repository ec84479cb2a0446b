package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/tailorworks/tailor-api/internal/domain"
	"github.com/tailorworks/tailor-api/internal/platform/logger"
	"github.com/tailorworks/tailor-api/internal/store"
)

// PostgresSnapshotStore implements the store.SnapshotStore interface.
type PostgresSnapshotStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresSnapshotStore creates a new PostgreSQL snapshot store.
func NewPostgresSnapshotStore(db store.DBTX, logger *slog.Logger) *PostgresSnapshotStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresSnapshotStore{
		db:     db,
		logger: logger.With(slog.String("component", "snapshot_store")),
	}
}

// Ensure PostgresSnapshotStore implements store.SnapshotStore
var _ store.SnapshotStore = (*PostgresSnapshotStore)(nil)

// FetchSnapshot implements store.SnapshotStore.FetchSnapshot: one
// consistent read joining the generation row with the aggregate over its
// outputs. It needs no worker to be alive and holds no lock against the
// writer; a mid-processing read is expected and fine.
func (s *PostgresSnapshotStore) FetchSnapshot(ctx context.Context, generationID int64) (*domain.StreamSnapshot, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT g.id, g.status, g.progress_percent, g.cost_cents,
			g.error_message, g.updated_at,
			COALESCE(SUM(o.tokens_used), 0) AS total_tokens,
			MAX(o.created_at) AS latest_output_at
		FROM generations g
		LEFT JOIN generation_outputs o ON o.generation_id = g.id
		WHERE g.id = $1
		GROUP BY g.id
	`

	var snap domain.StreamSnapshot
	var status string
	var latestOutputAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, generationID).Scan(
		&snap.ID,
		&status,
		&snap.ProgressPercent,
		&snap.CostCents,
		&snap.ErrorMessage,
		&snap.UpdatedAt,
		&snap.TotalTokens,
		&latestOutputAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrGenerationNotFound
		}
		log.Error("failed to fetch stream snapshot",
			slog.String("error", err.Error()),
			slog.Int64("generation_id", generationID))
		return nil, MapError(err)
	}

	snap.Status = domain.GenerationStatus(status)
	if latestOutputAt.Valid {
		t := latestOutputAt.Time
		snap.LatestOutputAt = &t
	}
	return &snap, nil
}
