package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/account-service/internal/api/dto"
	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/repository"
	"github.com/spec-kit/account-service/internal/service"
	apperrors "github.com/spec-kit/account-service/pkg/util"
)

// AccountService is the lifecycle surface the handler depends on.
type AccountService interface {
	Register(ctx context.Context, in service.RegisterInput) (*domain.Account, error)
	Verify(ctx context.Context, token string) (bool, error)
	Login(ctx context.Context, email, password string) (*domain.Credential, error)
	Profile(ctx context.Context, identity domain.Identity) (*domain.Account, error)
}

// AccountsHandler exposes signup, activation and login endpoints.
type AccountsHandler struct {
	accounts AccountService
}

// NewAccountsHandler constructs handler.
func NewAccountsHandler(accounts AccountService) *AccountsHandler {
	return &AccountsHandler{accounts: accounts}
}

// SignUp handles POST /api/auth/signup.
func (h *AccountsHandler) SignUp(c *fiber.Ctx) error {
	var req dto.SignUpRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := req.Validate(); err != nil {
		return apperrors.NewValidationError("invalid signup payload", dto.FieldErrors(err))
	}

	if _, err := h.accounts.Register(c.UserContext(), service.RegisterInput{
		Company:  req.Company,
		TaxID:    req.TaxID,
		Phone:    req.Phone,
		Email:    req.Email,
		Password: req.Password,
	}); err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(dto.SignUpResponse{
		Success:              true,
		Message:              "User registered successfully! Please check your email to verify your account.",
		RequiresVerification: true,
	})
}

// Verify handles GET /api/auth/verify?token=.
func (h *AccountsHandler) Verify(c *fiber.Ctx) error {
	verified, err := h.accounts.Verify(c.UserContext(), c.Query("token"))
	if err != nil {
		return err
	}
	if !verified {
		return c.Status(http.StatusBadRequest).JSON(dto.VerifyResponse{
			Success:  false,
			Verified: false,
			Message:  "Invalid or expired verification token.",
		})
	}
	return c.JSON(dto.VerifyResponse{
		Success:  true,
		Verified: true,
		Message:  "Email successfully verified!",
	})
}

// Login handles POST /api/auth/login.
func (h *AccountsHandler) Login(c *fiber.Ctx) error {
	// Malformed or incomplete logins fail like a wrong password.
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return service.ErrInvalidCredentials
	}
	if err := req.Validate(); err != nil {
		return service.ErrInvalidCredentials
	}

	cred, err := h.accounts.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(dto.LoginResponse{
		Success:   true,
		Token:     cred.Token,
		ExpiresAt: cred.ExpiresAt,
		Message:   "Login successful",
	})
}

// Me handles GET /api/auth/me for an authenticated caller.
func (h *AccountsHandler) Me(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	account, err := h.accounts.Profile(c.UserContext(), identity)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewUnauthorized("account no longer exists")
		}
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAccountResponse(account)})
}
