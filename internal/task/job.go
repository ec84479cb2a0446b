package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// JobStatus represents the queue-level state of a job.
type JobStatus string

// Possible job status values
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusReserved  JobStatus = "reserved"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobTypeGeneration identifies jobs handled by the generation processor.
const JobTypeGeneration = "generation"

// Common errors
var (
	// ErrInvalidPayload indicates a job payload that fails schema
	// validation. It is fatal: the job must fail before any network call.
	ErrInvalidPayload = errors.New("invalid job payload")

	ErrEmptyJobType = errors.New("job type cannot be empty")
	ErrNilPayload   = errors.New("job payload cannot be nil")
)

// Job is one durable unit of queued work with reservation and retry
// bookkeeping. At most one worker holds a reservation on a job at any
// time; attempts only increases.
type Job struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Status    JobStatus       `json:"status"`
	Attempts  int             `json:"attempts"`
	RunAfter  time.Time       `json:"run_after"`
	LastError string          `json:"last_error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewJob creates a pending job eligible to run immediately.
func NewJob(jobType string, payload json.RawMessage) (*Job, error) {
	if jobType == "" {
		return nil, ErrEmptyJobType
	}
	if len(payload) == 0 {
		return nil, ErrNilPayload
	}

	now := time.Now().UTC()
	return &Job{
		ID:        uuid.New(),
		Type:      jobType,
		Payload:   payload,
		Status:    JobStatusPending,
		Attempts:  0,
		RunAfter:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GenerationPayload is the structured payload of a generation job. The
// envelope stays a serialized blob at the storage boundary; the schema is
// enforced here, at the point of ingestion.
type GenerationPayload struct {
	GenerationID int64  `json:"generation_id" validate:"required,gt=0"`
	OwnerID      int64  `json:"owner_id"      validate:"required,gt=0"`
	SourceText   string `json:"source_text"   validate:"required"`
	TargetText   string `json:"target_text"   validate:"required"`

	// Optional fields; omitted values resolve to documented defaults at
	// prompt-building time.
	Title          string   `json:"title,omitempty"`
	Company        string   `json:"company,omitempty"`
	Competencies   []string `json:"competencies,omitempty"`
	CVSections     string   `json:"cv_sections,omitempty"`
	PromptTemplate string   `json:"prompt_template,omitempty"`
}

var payloadValidator = validator.New()

// DecodeGenerationPayload parses and validates a generation job payload.
// Any failure is wrapped as ErrInvalidPayload.
func DecodeGenerationPayload(raw json.RawMessage) (*GenerationPayload, error) {
	var p GenerationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := payloadValidator.Struct(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &p, nil
}
