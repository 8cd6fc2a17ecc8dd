package apierrors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimitError_RoundsUp(t *testing.T) {
	assert.Equal(t, map[string]interface{}{"retryAfter": 1}, NewRateLimitError(0).Details)
	assert.Equal(t, map[string]interface{}{"retryAfter": 1}, NewRateLimitError(200*time.Millisecond).Details)
	assert.Equal(t, map[string]interface{}{"retryAfter": 61}, NewRateLimitError(60*time.Second+time.Millisecond).Details)
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("mongo: no reachable servers")
	err := NewDatabaseError(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "DATABASE_ERROR")
	assert.Contains(t, err.Error(), "no reachable servers")
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewConflictError("already verified"))

	assert.True(t, HasCode(err, CodeConflict))
	assert.False(t, HasCode(err, CodeNotFound))
	assert.False(t, HasCode(errors.New("plain"), CodeConflict))
}

func TestErrorCode_IsSecurityRelevant(t *testing.T) {
	assert.True(t, CodeUnauthorized.IsSecurityRelevant())
	assert.True(t, CodeRateLimitExceeded.IsSecurityRelevant())
	assert.False(t, CodeTokenExpired.IsSecurityRelevant())
	assert.False(t, CodeInternalError.IsSecurityRelevant())
}
