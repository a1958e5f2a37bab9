package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inviteRequest struct {
	Email string   `json:"email" validate:"required,email"`
	Role  string   `json:"role" validate:"required,family_role"`
	Caps  []string `json:"caps" validate:"dive,capability"`
}

func TestValidate_DomainTags(t *testing.T) {
	v := New()

	require.NoError(t, v.Struct(inviteRequest{Email: "a@example.com", Role: "caregiver", Caps: []string{"logVitals"}}))

	err := v.Struct(inviteRequest{Email: "nope", Role: "uncle", Caps: []string{"fly"}})
	require.Error(t, err)

	fields := Fields(err)
	assert.ElementsMatch(t, []FieldError{
		{Field: "email", Message: messages["email"]},
		{Field: "role", Message: messages["family_role"]},
		{Field: "caps[0]", Message: messages["capability"]},
	}, fields)
}

func TestDescribe(t *testing.T) {
	v := New()
	err := v.Struct(inviteRequest{Role: "viewer"})
	assert.Equal(t, "email is required", Describe(err))

	assert.Equal(t, "plain", Describe(errors.New("plain")))
	assert.Nil(t, Fields(errors.New("plain")))
}
