package apperrors_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Shivanand-hulikatti/event-admission/internal/apperrors"
	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("accept: %w", apperrors.ErrInvitationExpired)

	assert.ErrorIs(t, err, apperrors.ErrInvitationExpired)
	assert.ErrorIs(t, err, apperrors.New(apperrors.CodeExpired, "other message"))
	assert.NotErrorIs(t, err, apperrors.ErrAlreadyResponded)
}

func TestError_WithCause(t *testing.T) {
	cause := errors.New("serialization failure")
	err := apperrors.Unavailable(cause)

	assert.ErrorIs(t, err, apperrors.ErrAdmissionUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "serialization failure")
}

func TestCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code apperrors.Code
		want int
	}{
		{apperrors.CodeNotFound, http.StatusNotFound},
		{apperrors.CodeConflict, http.StatusConflict},
		{apperrors.CodeAlreadyResponded, http.StatusConflict},
		{apperrors.CodeNotConfirmed, http.StatusConflict},
		{apperrors.CodeExpired, http.StatusGone},
		{apperrors.CodeValidation, http.StatusBadRequest},
		{apperrors.CodeAdmissionUnavailable, http.StatusServiceUnavailable},
		{apperrors.CodeRateLimited, http.StatusTooManyRequests},
		{apperrors.CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(fmt.Errorf("x: %w", apperrors.ErrEventNotFound)))
	assert.Equal(t, apperrors.CodeInternal, apperrors.CodeOf(errors.New("boom")))
}
