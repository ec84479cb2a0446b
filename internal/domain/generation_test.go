package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeneration(t *testing.T) {
	g, err := NewGeneration(3, 11, 12, "gpt-4o-mini", 0.7)
	require.NoError(t, err)

	assert.Equal(t, GenerationStatusQueued, g.Status)
	assert.Equal(t, 0, g.ProgressPercent)
	assert.Equal(t, int64(3), g.OwnerID)
	assert.False(t, g.CreatedAt.IsZero())
}

func TestNewGenerationValidation(t *testing.T) {
	t.Run("missing owner", func(t *testing.T) {
		_, err := NewGeneration(0, 11, 12, "gpt-4o-mini", 0.7)
		assert.ErrorIs(t, err, ErrEmptyGenerationOwner)
	})

	t.Run("missing model", func(t *testing.T) {
		_, err := NewGeneration(3, 11, 12, "", 0.7)
		assert.ErrorIs(t, err, ErrEmptyGenerationModel)
	})
}

func TestGenerationValidateProgress(t *testing.T) {
	g, err := NewGeneration(3, 11, 12, "gpt-4o-mini", 0.7)
	require.NoError(t, err)

	g.ProgressPercent = 101
	assert.ErrorIs(t, g.Validate(), ErrInvalidProgress)

	g.ProgressPercent = -1
	assert.ErrorIs(t, g.Validate(), ErrInvalidProgress)

	g.ProgressPercent = 100
	assert.NoError(t, g.Validate())
}

func TestGenerationValidateStatus(t *testing.T) {
	g, err := NewGeneration(3, 11, 12, "gpt-4o-mini", 0.7)
	require.NoError(t, err)

	g.Status = GenerationStatus("limbo")
	assert.ErrorIs(t, g.Validate(), ErrInvalidGenerationState)

	for _, s := range []GenerationStatus{
		GenerationStatusQueued, GenerationStatusProcessing,
		GenerationStatusCompleted, GenerationStatusFailed,
	} {
		g.Status = s
		assert.NoError(t, g.Validate(), "status %s should be valid", s)
	}
}

func TestNewGenerationOutput(t *testing.T) {
	out, err := NewGenerationOutput(7, ArtifactDraft, "text/markdown", []byte("## Draft"), 42)
	require.NoError(t, err)

	assert.Equal(t, int64(7), out.GenerationID)
	assert.Equal(t, ArtifactDraft, out.Kind)
	assert.Equal(t, 42, out.TokensUsed)
}

func TestNewGenerationOutputValidation(t *testing.T) {
	t.Run("missing generation", func(t *testing.T) {
		_, err := NewGenerationOutput(0, ArtifactPlan, "application/json", []byte("{}"), 0)
		assert.ErrorIs(t, err, ErrEmptyOutputGeneration)
	})

	t.Run("bad kind", func(t *testing.T) {
		_, err := NewGenerationOutput(7, ArtifactKind("sketch"), "text/plain", []byte("x"), 0)
		assert.ErrorIs(t, err, ErrInvalidArtifactKind)
	})

	t.Run("empty content", func(t *testing.T) {
		_, err := NewGenerationOutput(7, ArtifactPlan, "application/json", nil, 0)
		assert.ErrorIs(t, err, ErrEmptyOutputContent)
	})
}
