package domain

import (
	"errors"
	"time"
)

// GenerationStatus represents the processing state of a generation
type GenerationStatus string

// Possible generation status values
const (
	GenerationStatusQueued     GenerationStatus = "queued"
	GenerationStatusProcessing GenerationStatus = "processing"
	GenerationStatusCompleted  GenerationStatus = "completed"
	GenerationStatusFailed     GenerationStatus = "failed"
)

// Common validation errors for Generation
var (
	ErrEmptyGenerationOwner   = errors.New("generation owner ID cannot be empty")
	ErrEmptyGenerationModel   = errors.New("generation model cannot be empty")
	ErrInvalidGenerationState = errors.New("invalid generation status")
	ErrInvalidProgress        = errors.New("progress percent must be between 0 and 100")
)

// Generation is the user-facing unit of work: one request to tailor a
// target document (e.g. a CV) against a source document (e.g. a job
// posting). It tracks status, progress, and cost independently of the
// queue mechanics that drive it.
type Generation struct {
	ID               int64            `json:"id"`
	OwnerID          int64            `json:"owner_id"`
	SourceDocumentID int64            `json:"source_document_id"`
	TargetDocumentID int64            `json:"target_document_id"`
	Model            string           `json:"model"`
	ThinkingTime     float64          `json:"thinking_time"`
	Status           GenerationStatus `json:"status"`
	ProgressPercent  int              `json:"progress_percent"`
	CostCents        int64            `json:"cost_cents"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// NewGeneration creates a queued Generation for the given owner and
// document pair. The ID is assigned by the store on insert.
// Returns an error if validation fails.
func NewGeneration(ownerID, sourceDocID, targetDocID int64, model string, thinkingTime float64) (*Generation, error) {
	g := &Generation{
		OwnerID:          ownerID,
		SourceDocumentID: sourceDocID,
		TargetDocumentID: targetDocID,
		Model:            model,
		ThinkingTime:     thinkingTime,
		Status:           GenerationStatusQueued,
		ProgressPercent:  0,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}

	return g, nil
}

// Validate checks if the Generation has valid data.
// Returns an error if any field fails validation.
func (g *Generation) Validate() error {
	if g.OwnerID == 0 {
		return ErrEmptyGenerationOwner
	}

	if g.Model == "" {
		return ErrEmptyGenerationModel
	}

	if !isValidGenerationStatus(g.Status) {
		return ErrInvalidGenerationState
	}

	if g.ProgressPercent < 0 || g.ProgressPercent > 100 {
		return ErrInvalidProgress
	}

	return nil
}

// isValidGenerationStatus checks if the given status is a valid GenerationStatus.
func isValidGenerationStatus(status GenerationStatus) bool {
	switch status {
	case GenerationStatusQueued, GenerationStatusProcessing,
		GenerationStatusCompleted, GenerationStatusFailed:
		return true
	default:
		return false
	}
}
