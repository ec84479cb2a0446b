package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNotFoundError(t *testing.T) {
	assert.True(t, IsNotFoundError(ErrNotFound))
	assert.True(t, IsNotFoundError(ErrGenerationNotFound))
	assert.True(t, IsNotFoundError(ErrJobNotFound))
	assert.True(t, IsNotFoundError(fmt.Errorf("lookup: %w", ErrGenerationNotFound)))

	assert.False(t, IsNotFoundError(ErrUpdateFailed))
	assert.False(t, IsNotFoundError(errors.New("something else")))
	assert.False(t, IsNotFoundError(nil))
}

func TestStoreError(t *testing.T) {
	inner := errors.New("connection reset")
	err := NewStoreError("generation", "update", "status write failed", inner)

	assert.Contains(t, err.Error(), "update operation on generation failed")
	assert.Contains(t, err.Error(), "connection reset")
	assert.ErrorIs(t, err, inner)
}

func TestStoreErrorWithoutInner(t *testing.T) {
	err := NewStoreError("job", "reserve", "no eligible rows", nil)

	assert.Equal(t, "reserve operation on job failed: no eligible rows", err.Error())
	assert.Nil(t, errors.Unwrap(err))
}
