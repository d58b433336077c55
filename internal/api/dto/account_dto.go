package dto

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/spec-kit/account-service/internal/domain"
)

// SignUpRequest payload for new accounts.
type SignUpRequest struct {
	Company  string `json:"company"`
	TaxID    string `json:"kraPin"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks field presence and shape.
func (r SignUpRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Company, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.TaxID, validation.Required, validation.Length(1, 64)),
		validation.Field(&r.Phone, validation.Required, validation.Length(6, 32)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 72)),
	)
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks both credentials are present.
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// SignUpResponse acknowledges a registration.
type SignUpResponse struct {
	Success              bool   `json:"success"`
	Message              string `json:"message"`
	RequiresVerification bool   `json:"requiresVerification"`
}

// VerifyResponse reports the outcome of an activation attempt.
type VerifyResponse struct {
	Success  bool   `json:"success"`
	Verified bool   `json:"verified"`
	Message  string `json:"message"`
}

// LoginResponse carries the issued credential.
type LoginResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Message   string    `json:"message"`
}

// AccountResponse is the public view of an account.
type AccountResponse struct {
	ID         string     `json:"id"`
	Company    string     `json:"company"`
	TaxID      string     `json:"kraPin"`
	Phone      string     `json:"phone"`
	Email      string     `json:"email"`
	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// NewAccountResponse maps the domain account, leaving out secrets.
func NewAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		ID:         a.ID,
		Company:    a.Company,
		TaxID:      a.TaxID,
		Phone:      a.Phone,
		Email:      a.Email,
		Verified:   a.Verified,
		VerifiedAt: a.VerifiedAt,
		CreatedAt:  a.CreatedAt,
	}
}

// FieldErrors flattens ozzo validation errors into a field → message map.
func FieldErrors(err error) map[string]any {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]any, len(verrs))
	for field, fieldErr := range verrs {
		out[field] = fieldErr.Error()
	}
	return out
}
