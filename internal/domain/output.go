package domain

import (
	"errors"
	"time"
)

// ArtifactKind identifies one of the persisted outputs of a generation.
type ArtifactKind string

// The four artifacts a completed generation produces.
const (
	ArtifactPlan      ArtifactKind = "plan"
	ArtifactDraft     ArtifactKind = "draft"
	ArtifactRendered  ArtifactKind = "rendered"
	ArtifactPlainText ArtifactKind = "plain_text"
)

// Common validation errors for GenerationOutput
var (
	ErrEmptyOutputGeneration = errors.New("output generation ID cannot be empty")
	ErrInvalidArtifactKind   = errors.New("invalid artifact kind")
	ErrEmptyOutputContent    = errors.New("output content cannot be empty")
)

// GenerationOutput is one persisted artifact of a generation. The full
// output set for a generation is always replaced atomically; readers
// never observe a partial set.
type GenerationOutput struct {
	ID           int64        `json:"id"`
	GenerationID int64        `json:"generation_id"`
	Kind         ArtifactKind `json:"kind"`
	MimeType     string       `json:"mime_type"`
	Content      []byte       `json:"content"`
	TokensUsed   int          `json:"tokens_used"`
	CreatedAt    time.Time    `json:"created_at"`
}

// NewGenerationOutput creates an output artifact for the given generation.
// Returns an error if validation fails.
func NewGenerationOutput(generationID int64, kind ArtifactKind, mimeType string, content []byte, tokensUsed int) (*GenerationOutput, error) {
	out := &GenerationOutput{
		GenerationID: generationID,
		Kind:         kind,
		MimeType:     mimeType,
		Content:      content,
		TokensUsed:   tokensUsed,
		CreatedAt:    time.Now().UTC(),
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}

	return out, nil
}

// Validate checks if the GenerationOutput has valid data.
func (o *GenerationOutput) Validate() error {
	if o.GenerationID == 0 {
		return ErrEmptyOutputGeneration
	}

	if !isValidArtifactKind(o.Kind) {
		return ErrInvalidArtifactKind
	}

	if len(o.Content) == 0 {
		return ErrEmptyOutputContent
	}

	return nil
}

func isValidArtifactKind(kind ArtifactKind) bool {
	switch kind {
	case ArtifactPlan, ArtifactDraft, ArtifactRendered, ArtifactPlainText:
		return true
	default:
		return false
	}
}
