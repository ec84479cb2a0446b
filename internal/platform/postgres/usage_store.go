package postgres

import (
	"context"
	"log/slog"

	"github.com/tailorworks/tailor-api/internal/domain"
	"github.com/tailorworks/tailor-api/internal/platform/logger"
	"github.com/tailorworks/tailor-api/internal/store"
)

// PostgresUsageStore implements the store.UsageStore interface. The
// ledger is append-only; no update or delete paths exist.
type PostgresUsageStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresUsageStore creates a new PostgreSQL usage ledger store.
func NewPostgresUsageStore(db store.DBTX, logger *slog.Logger) *PostgresUsageStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresUsageStore{
		db:     db,
		logger: logger.With(slog.String("component", "usage_store")),
	}
}

// Ensure PostgresUsageStore implements store.UsageStore
var _ store.UsageStore = (*PostgresUsageStore)(nil)

// Append implements store.UsageStore.Append.
func (s *PostgresUsageStore) Append(ctx context.Context, rec *domain.UsageRecord) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO usage_records (provider, operation, prompt_tokens,
			completion_tokens, total_tokens, cost_cents, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := s.db.QueryRowContext(
		ctx,
		query,
		rec.Provider,
		rec.Operation,
		rec.PromptTokens,
		rec.CompletionTokens,
		rec.TotalTokens,
		rec.CostCents,
		[]byte(rec.Metadata),
		rec.CreatedAt,
	).Scan(&rec.ID)

	if err != nil {
		log.Error("failed to append usage record",
			slog.String("error", err.Error()),
			slog.String("operation", rec.Operation))
		return MapError(err)
	}

	log.Debug("usage record appended",
		slog.String("operation", rec.Operation),
		slog.Int("total_tokens", rec.TotalTokens))
	return nil
}
