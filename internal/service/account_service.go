package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/observability"
	"github.com/spec-kit/account-service/internal/repository"
)

// RegisterInput carries the signup fields.
type RegisterInput struct {
	Company  string
	TaxID    string
	Phone    string
	Email    string
	Password string
}

// AccountService coordinates registration, activation and login.
type AccountService struct {
	accounts        repository.AccountRepository
	tokens          *auth.TokenManager
	notifier        Notifier
	logger          *zap.Logger
	metrics         *observability.Metrics
	bcryptCost      int
	activationURL   string
	phoneRegion     string
	requireVerified bool
	dummyHash       string
	newToken        func() (string, error)
}

// AccountDependencies encapsulates collaborators of the account service.
type AccountDependencies struct {
	Accounts repository.AccountRepository
	Tokens   *auth.TokenManager
	Notifier Notifier
	Logger   *zap.Logger
	Metrics  *observability.Metrics
}

// NewAccountService builds the service.
func NewAccountService(cfg config.Config, deps AccountDependencies) (*AccountService, error) {
	// Compared against on unknown emails so both login failures cost one bcrypt check.
	dummy, err := auth.HashPassword(uuid.NewString(), cfg.Auth.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("prepare password hasher: %w", err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AccountService{
		accounts:        deps.Accounts,
		tokens:          deps.Tokens,
		notifier:        deps.Notifier,
		logger:          logger,
		metrics:         deps.Metrics,
		bcryptCost:      cfg.Auth.BcryptCost,
		activationURL:   cfg.App.ActivationURL(),
		phoneRegion:     cfg.Auth.PhoneRegion,
		requireVerified: cfg.Auth.RequireVerified,
		dummyHash:       dummy,
		newToken:        auth.NewActivationToken,
	}, nil
}

// Register creates an unverified account and queues its activation mail.
// Uniqueness is checked in order tax id, email, phone; the first clash wins.
// The phone is normalized only once the tax id and email checks have passed.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*domain.Account, error) {
	email := normalizeEmail(in.Email)
	taxID := strings.TrimSpace(in.TaxID)

	if exists, err := s.accounts.ExistsByTaxID(ctx, taxID); err != nil {
		return nil, fmt.Errorf("check tax id: %w", err)
	} else if exists {
		return nil, ErrDuplicateTaxID
	}
	if exists, err := s.accounts.ExistsByEmail(ctx, email); err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	} else if exists {
		return nil, ErrDuplicateEmail
	}
	phone, err := s.normalizePhone(in.Phone)
	if err != nil {
		return nil, err
	}
	if exists, err := s.accounts.ExistsByPhone(ctx, phone); err != nil {
		return nil, fmt.Errorf("check phone: %w", err)
	} else if exists {
		return nil, ErrDuplicatePhone
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, ErrPasswordTooLong
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}
	token, err := s.newToken()
	if err != nil {
		return nil, fmt.Errorf("mint activation token: %w", err)
	}
	link, err := auth.ActivationLink(s.activationURL, token)
	if err != nil {
		return nil, err
	}

	account := &domain.Account{
		ID:              uuid.NewString(),
		Company:         strings.TrimSpace(in.Company),
		TaxID:           taxID,
		Phone:           phone,
		Email:           email,
		PasswordHash:    hash,
		Verified:        false,
		ActivationToken: &token,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		var uv *repository.UniqueViolationError
		if errors.As(err, &uv) {
			if dup := duplicateFor(uv.Field); dup != nil {
				return nil, dup
			}
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.metrics.Incr(observability.EventAccountRegistered)
	s.logger.Info("account registered", zap.String("account_id", account.ID))

	s.notifier.Dispatch(ctx, ActivationRequest{
		AccountID:      account.ID,
		Email:          account.Email,
		ActivationLink: link,
	})
	return account, nil
}

// Verify consumes an activation token. It returns false for unknown or
// already used tokens, and for the loser of two concurrent calls.
func (s *AccountService) Verify(ctx context.Context, token string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, nil
	}

	account, err := s.accounts.GetByActivationToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("find activation token: %w", err)
	}
	if !account.PendingActivation() {
		return false, nil
	}

	consumed, err := s.accounts.ConsumeActivationToken(ctx, account.ID, token)
	if err != nil {
		return false, fmt.Errorf("consume activation token: %w", err)
	}
	if !consumed {
		return false, nil
	}

	s.metrics.Incr(observability.EventAccountActivated)
	s.logger.Info("account activated", zap.String("account_id", account.ID))
	return true, nil
}

// Login checks the password and issues a credential. Unknown emails and wrong
// passwords fail with the same ErrInvalidCredentials.
func (s *AccountService) Login(ctx context.Context, email, password string) (*domain.Credential, error) {
	account, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("find account: %w", err)
		}
		_ = auth.ComparePassword(s.dummyHash, password)
		s.metrics.Incr(observability.EventLoginFailed)
		return nil, ErrInvalidCredentials
	}

	if err := auth.ComparePassword(account.PasswordHash, password); err != nil {
		s.metrics.Incr(observability.EventLoginFailed)
		return nil, ErrInvalidCredentials
	}
	if s.requireVerified && !account.Verified {
		return nil, ErrAccountNotVerified
	}

	cred, err := s.tokens.Issue(domain.Identity{AccountID: account.ID, Email: account.Email})
	if err != nil {
		return nil, fmt.Errorf("issue credential: %w", err)
	}
	s.metrics.Incr(observability.EventLoginSucceeded)
	return cred, nil
}

// Profile loads the account behind an authenticated identity.
func (s *AccountService) Profile(ctx context.Context, identity domain.Identity) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, identity.AccountID)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AccountService) TokenManager() *auth.TokenManager {
	return s.tokens
}

func (s *AccountService) normalizePhone(raw string) (string, error) {
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), s.phoneRegion)
	if err != nil || !phonenumbers.IsPossibleNumber(num) {
		return "", ErrInvalidPhone
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func duplicateFor(field string) error {
	switch field {
	case repository.FieldTaxID:
		return ErrDuplicateTaxID
	case repository.FieldEmail:
		return ErrDuplicateEmail
	case repository.FieldPhone:
		return ErrDuplicatePhone
	}
	return nil
}
