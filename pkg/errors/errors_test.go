package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromErrorWrapsUnknownErrors(t *testing.T) {
	appErr := FromError(fmt.Errorf("connection refused"))
	require.NotNil(t, appErr)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Equal(t, ErrInternal.Message, appErr.Message)
}

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("lookup: %w", Clone(ErrTokenNotFound, ""))
	appErr := FromError(wrapped)
	assert.Equal(t, ErrTokenNotFound.Code, appErr.Code)
	assert.Equal(t, http.StatusNotFound, appErr.Status)
}

func TestCloneMatchesOriginalWithErrorsIs(t *testing.T) {
	clone := Clone(ErrConflict, "calendar name already used")
	assert.True(t, errors.Is(clone, ErrConflict))
	assert.False(t, errors.Is(clone, ErrNotFound))
	assert.Equal(t, "calendar name already used", clone.Error())
	assert.Equal(t, "conflict", ErrConflict.Message)
}
