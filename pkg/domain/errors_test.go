package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("sequence")

	assert.True(t, IsNotFound(err))
	assert.False(t, IsValidation(err))
	assert.Equal(t, "NOT_FOUND: sequence not found", err.Error())
}

func TestWrappedErrorsKeepTheirCode(t *testing.T) {
	err := fmt.Errorf("failed to start execution: %w", NewNotFoundError("invoice"))

	assert.True(t, IsNotFound(err))
	assert.Equal(t, ErrCodeNotFound, GetErrorCode(err))
}

func TestNewComplianceBlockedError(t *testing.T) {
	err := NewComplianceBlockedError(55, []string{"aggressive phrase \"legal action\"", "tone decreased"})

	assert.True(t, IsComplianceBlocked(err))
	assert.Contains(t, err.Error(), "score 55")
	assert.Contains(t, err.Error(), "legal action")
	assert.Contains(t, err.Error(), "tone decreased")
}

func TestNewDispatchError(t *testing.T) {
	cause := errors.New("connection reset")

	t.Run("Retryable", func(t *testing.T) {
		err := NewDispatchError(cause, true)
		assert.True(t, IsDispatch(err))
		assert.True(t, IsRetryable(err))
		assert.ErrorIs(t, err, cause)
	})

	t.Run("Permanent", func(t *testing.T) {
		err := NewDispatchError(cause, false)
		assert.True(t, IsDispatch(err))
		assert.False(t, IsRetryable(err))
	})
}

func TestGetErrorCode_PlainError(t *testing.T) {
	assert.Equal(t, ErrCodeInternal, GetErrorCode(errors.New("boom")))
	assert.False(t, IsRetryable(errors.New("boom")))
}

func TestSchedulingAndConflict(t *testing.T) {
	assert.True(t, IsScheduling(NewSchedulingError("no working days configured")))
	assert.True(t, IsConflict(NewConflictError("execution is locked")))
	assert.True(t, IsInternal(NewInternalError(errors.New("db down"))))
}
