package validation

import (
	"testing"

	"github.com/Shivanand-hulikatti/event-admission/internal/apperrors"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStruct_ReportsJSONFieldNames(t *testing.T) {
	v := New()
	zero := 0

	err := v.Struct(model.CreateEventRequest{Capacity: &zero})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	details, ok := appErr.Details.(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["name"])
	assert.Equal(t, "must be greater than 0", details["capacity"])
}

func TestStruct_Valid(t *testing.T) {
	v := New()
	c := 10
	assert.NoError(t, v.Struct(model.CreateEventRequest{Name: "Launch", Capacity: &c}))
	assert.NoError(t, v.Struct(model.CreateEventRequest{Name: "Open house"}))
	assert.NoError(t, v.Struct(model.JoinWaitlistRequest{Email: "a@example.com"}))
}

func TestStruct_Email(t *testing.T) {
	v := New()
	err := v.Struct(model.SendInvitationRequest{Email: "not-an-email"})

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, map[string]string{"email": "must be a valid email address"}, appErr.Details)
}

func TestVar(t *testing.T) {
	v := New()
	assert.NoError(t, v.Var("email", "a@example.com", "required,email"))

	err := v.Var("email", "", "required,email")
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, map[string]string{"email": "is required"}, appErr.Details)
}
