package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/tailorworks/tailor-api/internal/domain"
	"github.com/tailorworks/tailor-api/internal/platform/logger"
	"github.com/tailorworks/tailor-api/internal/store"
)

// PostgresGenerationStore implements the store.GenerationStore interface
// using a PostgreSQL database as the storage backend.
type PostgresGenerationStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresGenerationStore creates a new PostgreSQL implementation of the
// GenerationStore interface. It accepts a database connection or transaction
// managed by the caller. If logger is nil, a default logger will be used.
func NewPostgresGenerationStore(db store.DBTX, logger *slog.Logger) *PostgresGenerationStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresGenerationStore{
		db:     db,
		logger: logger.With(slog.String("component", "generation_store")),
	}
}

// Ensure PostgresGenerationStore implements store.GenerationStore
var _ store.GenerationStore = (*PostgresGenerationStore)(nil)

// Create implements store.GenerationStore.Create. The generated ID is
// written back into the entity.
func (s *PostgresGenerationStore) Create(ctx context.Context, g *domain.Generation) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := g.Validate(); err != nil {
		log.Warn("generation validation failed during create",
			slog.String("error", err.Error()))
		return err
	}

	query := `
		INSERT INTO generations (owner_id, source_document_id, target_document_id,
			model, thinking_time, status, progress_percent, cost_cents,
			error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	err := s.db.QueryRowContext(
		ctx,
		query,
		g.OwnerID,
		g.SourceDocumentID,
		g.TargetDocumentID,
		g.Model,
		g.ThinkingTime,
		g.Status,
		g.ProgressPercent,
		g.CostCents,
		g.ErrorMessage,
		g.CreatedAt,
		g.UpdatedAt,
	).Scan(&g.ID)

	if err != nil {
		log.Error("failed to create generation",
			slog.String("error", err.Error()),
			slog.Int64("owner_id", g.OwnerID))
		return MapError(err)
	}

	log.Info("generation created",
		slog.Int64("generation_id", g.ID),
		slog.Int64("owner_id", g.OwnerID))
	return nil
}

// GetByID implements store.GenerationStore.GetByID.
// Returns store.ErrGenerationNotFound if the generation does not exist.
func (s *PostgresGenerationStore) GetByID(ctx context.Context, id int64) (*domain.Generation, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, owner_id, source_document_id, target_document_id,
			model, thinking_time, status, progress_percent, cost_cents,
			error_message, created_at, updated_at
		FROM generations
		WHERE id = $1
	`

	var g domain.Generation
	var status string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&g.ID,
		&g.OwnerID,
		&g.SourceDocumentID,
		&g.TargetDocumentID,
		&g.Model,
		&g.ThinkingTime,
		&status,
		&g.ProgressPercent,
		&g.CostCents,
		&g.ErrorMessage,
		&g.CreatedAt,
		&g.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("generation not found", slog.Int64("generation_id", id))
			return nil, store.ErrGenerationNotFound
		}
		log.Error("failed to get generation by ID",
			slog.String("error", err.Error()),
			slog.Int64("generation_id", id))
		return nil, MapError(err)
	}

	g.Status = domain.GenerationStatus(status)
	return &g, nil
}

// UpdateStatus implements store.GenerationStore.UpdateStatus. A
// non-failure status clears any previous error message.
func (s *PostgresGenerationStore) UpdateStatus(ctx context.Context, id int64, status domain.GenerationStatus, errorMessage string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if status != domain.GenerationStatusFailed {
		errorMessage = ""
	}

	query := `
		UPDATE generations
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4
	`
	result, err := s.db.ExecContext(ctx, query, status, errorMessage, time.Now().UTC(), id)
	if err != nil {
		log.Error("failed to update generation status",
			slog.String("error", err.Error()),
			slog.Int64("generation_id", id),
			slog.String("status", string(status)))
		return MapError(err)
	}

	if err := CheckRowsAffected(result, store.ErrGenerationNotFound); err != nil {
		return err
	}

	log.Info("generation status updated",
		slog.Int64("generation_id", id),
		slog.String("status", string(status)))
	return nil
}

// UpdateProgress implements store.GenerationStore.UpdateProgress.
func (s *PostgresGenerationStore) UpdateProgress(ctx context.Context, id int64, percent int) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if percent < 0 || percent > 100 {
		return domain.ErrInvalidProgress
	}

	query := `
		UPDATE generations
		SET progress_percent = $1, updated_at = $2
		WHERE id = $3
	`
	result, err := s.db.ExecContext(ctx, query, percent, time.Now().UTC(), id)
	if err != nil {
		log.Error("failed to update generation progress",
			slog.String("error", err.Error()),
			slog.Int64("generation_id", id))
		return MapError(err)
	}

	return CheckRowsAffected(result, store.ErrGenerationNotFound)
}

// AddCost implements store.GenerationStore.AddCost.
func (s *PostgresGenerationStore) AddCost(ctx context.Context, id int64, cents int64) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE generations
		SET cost_cents = cost_cents + $1, updated_at = $2
		WHERE id = $3
	`
	result, err := s.db.ExecContext(ctx, query, cents, time.Now().UTC(), id)
	if err != nil {
		log.Error("failed to add generation cost",
			slog.String("error", err.Error()),
			slog.Int64("generation_id", id),
			slog.Int64("cents", cents))
		return MapError(err)
	}

	return CheckRowsAffected(result, store.ErrGenerationNotFound)
}

// WithTx implements store.GenerationStore.WithTx.
func (s *PostgresGenerationStore) WithTx(tx *sql.Tx) store.GenerationStore {
	return &PostgresGenerationStore{
		db:     tx,
		logger: s.logger,
	}
}
