// Package service holds the use-case layer between HTTP handlers and
// stores: operations that span more than one store or need a transaction.
package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tailorworks/tailor-api/internal/domain"
	"github.com/tailorworks/tailor-api/internal/store"
	"github.com/tailorworks/tailor-api/internal/task"
)

// Common sentinel errors for GenerationService
var (
	// ErrGenerationNotFound indicates that the generation does not exist.
	ErrGenerationNotFound = errors.New("generation not found")
)

// GenerationServiceError wraps errors from the generation service with context.
type GenerationServiceError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for GenerationServiceError.
func (e *GenerationServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("generation service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *GenerationServiceError) Unwrap() error {
	return e.Err
}

// newServiceError wraps err with context, passing known sentinels through.
func newServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrGenerationNotFound) || errors.Is(err, store.ErrGenerationNotFound) {
		return ErrGenerationNotFound
	}
	return &GenerationServiceError{Operation: operation, Message: message, Err: err}
}

// CreateGenerationParams carries everything needed to start one
// tailoring request.
type CreateGenerationParams struct {
	OwnerID          int64
	SourceDocumentID int64
	TargetDocumentID int64
	Model            string
	ThinkingTime     float64

	SourceText string
	TargetText string

	Title          string
	Company        string
	Competencies   []string
	CVSections     string
	PromptTemplate string
}

// GenerationService provides generation-related operations.
type GenerationService interface {
	// CreateAndEnqueue creates a queued generation and its job in one
	// transaction; either both rows land or neither does.
	CreateAndEnqueue(ctx context.Context, params CreateGenerationParams) (*domain.Generation, error)

	// Get retrieves a generation by ID.
	Get(ctx context.Context, id int64) (*domain.Generation, error)

	// ListOutputs returns the artifact set of a generation.
	ListOutputs(ctx context.Context, id int64) ([]*domain.GenerationOutput, error)
}

type generationServiceImpl struct {
	db          *sql.DB
	generations store.GenerationStore
	outputs     store.OutputStore
	queue       task.JobQueue
	logger      *slog.Logger
}

// NewGenerationService creates a GenerationService.
// It returns an error if any of the required dependencies are nil.
func NewGenerationService(
	db *sql.DB,
	generations store.GenerationStore,
	outputs store.OutputStore,
	queue task.JobQueue,
	logger *slog.Logger,
) (GenerationService, error) {
	if db == nil {
		return nil, &GenerationServiceError{Operation: "create_service", Message: "db cannot be nil"}
	}
	if generations == nil {
		return nil, &GenerationServiceError{Operation: "create_service", Message: "generations cannot be nil"}
	}
	if outputs == nil {
		return nil, &GenerationServiceError{Operation: "create_service", Message: "outputs cannot be nil"}
	}
	if queue == nil {
		return nil, &GenerationServiceError{Operation: "create_service", Message: "queue cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &generationServiceImpl{
		db:          db,
		generations: generations,
		outputs:     outputs,
		queue:       queue,
		logger:      logger.With("component", "generation_service"),
	}, nil
}

// CreateAndEnqueue implements GenerationService.CreateAndEnqueue.
func (s *generationServiceImpl) CreateAndEnqueue(ctx context.Context, params CreateGenerationParams) (*domain.Generation, error) {
	gen, err := domain.NewGeneration(
		params.OwnerID,
		params.SourceDocumentID,
		params.TargetDocumentID,
		params.Model,
		params.ThinkingTime,
	)
	if err != nil {
		return nil, newServiceError("create_generation", "invalid generation", err)
	}

	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.generations.WithTx(tx).Create(ctx, gen); err != nil {
			return err
		}

		payload, err := json.Marshal(task.GenerationPayload{
			GenerationID:   gen.ID,
			OwnerID:        params.OwnerID,
			SourceText:     params.SourceText,
			TargetText:     params.TargetText,
			Title:          params.Title,
			Company:        params.Company,
			Competencies:   params.Competencies,
			CVSections:     params.CVSections,
			PromptTemplate: params.PromptTemplate,
		})
		if err != nil {
			return fmt.Errorf("failed to encode job payload: %w", err)
		}

		job, err := task.NewJob(task.JobTypeGeneration, payload)
		if err != nil {
			return err
		}
		return s.queue.WithTx(tx).Enqueue(ctx, job)
	})

	if err != nil {
		s.logger.Error("failed to create generation and enqueue job",
			"error", err,
			"owner_id", params.OwnerID)
		return nil, newServiceError("create_generation", "failed to persist generation and job", err)
	}

	s.logger.Info("generation created and job enqueued",
		"generation_id", gen.ID,
		"owner_id", params.OwnerID)
	return gen, nil
}

// Get implements GenerationService.Get.
func (s *generationServiceImpl) Get(ctx context.Context, id int64) (*domain.Generation, error) {
	gen, err := s.generations.GetByID(ctx, id)
	if err != nil {
		return nil, newServiceError("get_generation", "failed to load generation", err)
	}
	return gen, nil
}

// ListOutputs implements GenerationService.ListOutputs.
func (s *generationServiceImpl) ListOutputs(ctx context.Context, id int64) ([]*domain.GenerationOutput, error) {
	if _, err := s.generations.GetByID(ctx, id); err != nil {
		return nil, newServiceError("list_outputs", "failed to load generation", err)
	}

	outputs, err := s.outputs.ListByGeneration(ctx, id)
	if err != nil {
		return nil, newServiceError("list_outputs", "failed to load outputs", err)
	}
	return outputs, nil
}
