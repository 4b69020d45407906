package protocol

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServiceError_Is(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewServiceError(CapabilityImage, ErrProviderError, "upstream failed", cause)

	assert.ErrorIs(t, err, ErrProviderError)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "image: service provider error: upstream failed (connection reset)", err.Error())

	wrapped := fmt.Errorf("node p1: %w", err)
	assert.ErrorIs(t, wrapped, ErrProviderError)

	var serviceErr *ServiceError
	assert.ErrorAs(t, wrapped, &serviceErr)
	assert.Equal(t, CapabilityImage, serviceErr.Capability)
}

func TestInvalidInput(t *testing.T) {
	err := InvalidInput("node %s needs a media input", "up")

	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "invalid service input: node up needs a media input", err.Error())
}

func TestRunIDContext(t *testing.T) {
	assert.Empty(t, RunIDFromContext(context.Background()))
	assert.Equal(t, "run-1", RunIDFromContext(WithRunID(context.Background(), "run-1")))
}
