package service

import (
	"net/http"

	apperrors "github.com/spec-kit/account-service/pkg/util"
)

// Expected outcomes of the account lifecycle. Compare with errors.Is.
var (
	ErrDuplicateTaxID     = apperrors.NewDuplicateError(apperrors.CodeDuplicateTaxID, "tax identifier is already registered")
	ErrDuplicateEmail     = apperrors.NewDuplicateError(apperrors.CodeDuplicateEmail, "email is already in use")
	ErrDuplicatePhone     = apperrors.NewDuplicateError(apperrors.CodeDuplicatePhone, "phone number is already registered")
	ErrInvalidPhone       = apperrors.NewDomainError(apperrors.CodeValidationFailed, "phone number is not valid", http.StatusBadRequest, map[string]any{"field": "phone"})
	ErrPasswordTooLong    = apperrors.NewDomainError(apperrors.CodeValidationFailed, "password must be at most 72 bytes", http.StatusBadRequest, map[string]any{"field": "password"})
	ErrInvalidCredentials = apperrors.NewDomainError(apperrors.CodeInvalidCredentials, "invalid credentials", http.StatusUnauthorized, nil)
	ErrAccountNotVerified = apperrors.NewDomainError(apperrors.CodeNotVerified, "account email has not been verified", http.StatusForbidden, nil)
)
