package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err    *AppError
		status int
	}{
		{Validation("subject is required"), http.StatusBadRequest},
		{SenderMissing(), http.StatusBadRequest},
		{BadRequest("bad id", nil), http.StatusBadRequest},
		{SenderNotFound("x"), http.StatusNotFound},
		{RecipientNotFound("x"), http.StatusNotFound},
		{NotFound("letter", nil), http.StatusNotFound},
		{Unauthorized(nil), http.StatusUnauthorized},
		{Forbidden("no"), http.StatusForbidden},
		{InvalidState("letter is not pending"), http.StatusConflict},
		{MailDelivery(errors.New("dial tcp")), http.StatusInternalServerError},
		{Persistence("create letter", errors.New("db down")), http.StatusInternalServerError},
		{Internal(errors.New("boom")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Message, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.StatusCode())
		})
	}
}

func TestAsThroughWrapping(t *testing.T) {
	cause := errors.New("connection reset")
	wrapped := fmt.Errorf("send: %w", MailDelivery(cause))

	appErr, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrMailDelivery, appErr.Code)
	assert.ErrorIs(t, wrapped, cause)
	assert.True(t, HasCode(wrapped, ErrMailDelivery))
	assert.False(t, HasCode(wrapped, ErrPersistence))

	_, ok = As(cause)
	assert.False(t, ok)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "recipient user not found: bob@example.com", RecipientNotFound("bob@example.com").Error())
	assert.Equal(t, "failed to create letter: db down", Persistence("create letter", errors.New("db down")).Error())
}
