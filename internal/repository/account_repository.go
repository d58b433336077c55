package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/account-service/internal/domain"
)

// Unique account fields.
const (
	FieldTaxID           = "tax_id"
	FieldEmail           = "email"
	FieldPhone           = "phone"
	FieldActivationToken = "activation_token"
)

const pgUniqueViolation = "23505"

// ErrNotFound is returned when no account matches a lookup.
var ErrNotFound = errors.New("account not found")

// UniqueViolationError reports that a write collided with an existing account.
type UniqueViolationError struct {
	Field string
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("account with this %s already exists", e.Field)
}

// AccountRepository defines persistence access for accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetByActivationToken(ctx context.Context, token string) (*domain.Account, error)
	ExistsByTaxID(ctx context.Context, taxID string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByPhone(ctx context.Context, phone string) (bool, error)
	// ConsumeActivationToken marks the account verified and clears its token,
	// but only while the stored token still equals token. It reports whether
	// this call performed the transition.
	ConsumeActivationToken(ctx context.Context, accountID, token string) (bool, error)
}

// DBTX is the subset of pgxpool.Pool used by the repository.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type accountRepository struct {
	db DBTX
}

// NewAccountRepository returns a Postgres-backed implementation.
func NewAccountRepository(db DBTX) AccountRepository {
	return &accountRepository{db: db}
}

const accountColumns = `id, company, tax_id, phone, email, password_hash, verified,
        activation_token, verified_at, created_at, updated_at`

func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	const query = `
        INSERT INTO accounts (id, company, tax_id, phone, email, password_hash, verified, activation_token)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		account.ID,
		account.Company,
		account.TaxID,
		account.Phone,
		account.Email,
		account.PasswordHash,
		account.Verified,
		account.ActivationToken,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	return mapWriteError(err)
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id)
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email=$1`, email)
}

func (r *accountRepository) GetByActivationToken(ctx context.Context, token string) (*domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE activation_token=$1`, token)
}

func (r *accountRepository) ExistsByTaxID(ctx context.Context, taxID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE tax_id=$1)`, taxID)
}

func (r *accountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE email=$1)`, email)
}

func (r *accountRepository) ExistsByPhone(ctx context.Context, phone string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE phone=$1)`, phone)
}

func (r *accountRepository) ConsumeActivationToken(ctx context.Context, accountID, token string) (bool, error) {
	const query = `
        UPDATE accounts
        SET verified=TRUE, activation_token=NULL, verified_at=NOW(), updated_at=NOW()
        WHERE id=$1 AND activation_token=$2 AND verified=FALSE`

	cmd, err := r.db.Exec(ctx, query, accountID, token)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *accountRepository) getOne(ctx context.Context, query string, arg string) (*domain.Account, error) {
	var account domain.Account
	if err := r.db.QueryRow(ctx, query, arg).Scan(
		&account.ID,
		&account.Company,
		&account.TaxID,
		&account.Phone,
		&account.Email,
		&account.PasswordHash,
		&account.Verified,
		&account.ActivationToken,
		&account.VerifiedAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) exists(ctx context.Context, query string, arg string) (bool, error) {
	var found bool
	if err := r.db.QueryRow(ctx, query, arg).Scan(&found); err != nil {
		return false, err
	}
	return found, nil
}

var constraintFields = map[string]string{
	"accounts_tax_id_key":           FieldTaxID,
	"accounts_email_key":            FieldEmail,
	"accounts_phone_key":            FieldPhone,
	"accounts_activation_token_key": FieldActivationToken,
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		if field, ok := constraintFields[pgErr.ConstraintName]; ok {
			return &UniqueViolationError{Field: field}
		}
		return &UniqueViolationError{Field: pgErr.ConstraintName}
	}
	return err
}
