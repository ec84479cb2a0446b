package postgres

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/tailorworks/tailor-api/internal/domain"
	"github.com/tailorworks/tailor-api/internal/platform/logger"
	"github.com/tailorworks/tailor-api/internal/store"
)

// PostgresOutputStore implements the store.OutputStore interface using a
// PostgreSQL database as the storage backend.
type PostgresOutputStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresOutputStore creates a new PostgreSQL implementation of the
// OutputStore interface. It requires a *sql.DB (not a transaction)
// because ReplaceOutputs manages its own transaction internally.
func NewPostgresOutputStore(db *sql.DB, logger *slog.Logger) *PostgresOutputStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresOutputStore{
		db:     db,
		logger: logger.With(slog.String("component", "output_store")),
	}
}

// Ensure PostgresOutputStore implements store.OutputStore
var _ store.OutputStore = (*PostgresOutputStore)(nil)

// ReplaceOutputs implements store.OutputStore.ReplaceOutputs. The delete
// and inserts run in one transaction, so readers see either the old
// complete set or the new complete set, and a re-run for the same
// generation converges on exactly one set.
func (s *PostgresOutputStore) ReplaceOutputs(ctx context.Context, generationID int64, outputs []*domain.GenerationOutput) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	for _, out := range outputs {
		if err := out.Validate(); err != nil {
			log.Warn("output validation failed during replace",
				slog.String("error", err.Error()),
				slog.Int64("generation_id", generationID))
			return err
		}
	}

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM generation_outputs WHERE generation_id = $1`,
			generationID,
		); err != nil {
			return MapError(err)
		}

		query := `
			INSERT INTO generation_outputs (generation_id, kind, mime_type,
				content, tokens_used, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`
		for _, out := range outputs {
			if err := tx.QueryRowContext(
				ctx,
				query,
				generationID,
				out.Kind,
				out.MimeType,
				out.Content,
				out.TokensUsed,
				out.CreatedAt,
			).Scan(&out.ID); err != nil {
				return MapError(err)
			}
		}
		return nil
	})

	if err != nil {
		log.Error("failed to replace generation outputs",
			slog.String("error", err.Error()),
			slog.Int64("generation_id", generationID))
		return err
	}

	log.Info("generation outputs replaced",
		slog.Int64("generation_id", generationID),
		slog.Int("count", len(outputs)))
	return nil
}

// ListByGeneration implements store.OutputStore.ListByGeneration.
func (s *PostgresOutputStore) ListByGeneration(ctx context.Context, generationID int64) ([]*domain.GenerationOutput, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, generation_id, kind, mime_type, content, tokens_used, created_at
		FROM generation_outputs
		WHERE generation_id = $1
		ORDER BY created_at, id
	`

	rows, err := s.db.QueryContext(ctx, query, generationID)
	if err != nil {
		log.Error("failed to query generation outputs",
			slog.String("error", err.Error()),
			slog.Int64("generation_id", generationID))
		return nil, MapError(err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	var outputs []*domain.GenerationOutput
	for rows.Next() {
		var out domain.GenerationOutput
		var kind string
		if err := rows.Scan(
			&out.ID,
			&out.GenerationID,
			&kind,
			&out.MimeType,
			&out.Content,
			&out.TokensUsed,
			&out.CreatedAt,
		); err != nil {
			return nil, MapError(err)
		}
		out.Kind = domain.ArtifactKind(kind)
		outputs = append(outputs, &out)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	if outputs == nil {
		outputs = []*domain.GenerationOutput{}
	}
	return outputs, nil
}
