package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignUpRequestValidate(t *testing.T) {
	valid := SignUpRequest{Company: "Acme", TaxID: "A123", Phone: "0700000000", Email: "a@x.com", Password: "secret"}
	assert.NoError(t, valid.Validate())

	bad := SignUpRequest{Company: "", TaxID: "A123", Phone: "0700000000", Email: "not-an-email", Password: "123"}
	err := bad.Validate()
	require.Error(t, err)

	fields := FieldErrors(err)
	assert.Contains(t, fields, "company")
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
	assert.NotContains(t, fields, "kraPin")
}

func TestLoginRequestValidate(t *testing.T) {
	assert.NoError(t, LoginRequest{Email: "a@x.com", Password: "x"}.Validate())

	fields := FieldErrors(LoginRequest{}.Validate())
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
}

func TestFieldErrorsIgnoresOtherErrors(t *testing.T) {
	assert.Nil(t, FieldErrors(assert.AnError))
}
