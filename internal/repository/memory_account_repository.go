package repository

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/account-service/internal/domain"
)

// MemoryAccountRepository keeps accounts in process memory. It enforces the
// same uniqueness and compare-and-clear rules as the Postgres schema.
type MemoryAccountRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.Account
	byTaxID map[string]string
	byEmail map[string]string
	byPhone map[string]string
	byToken map[string]string
	now     func() time.Time
}

// NewMemoryAccountRepository returns an empty in-memory store.
func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{
		byID:    make(map[string]*domain.Account),
		byTaxID: make(map[string]string),
		byEmail: make(map[string]string),
		byPhone: make(map[string]string),
		byToken: make(map[string]string),
		now:     time.Now,
	}
}

func (r *MemoryAccountRepository) Create(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byTaxID[account.TaxID]; ok {
		return &UniqueViolationError{Field: FieldTaxID}
	}
	if _, ok := r.byEmail[account.Email]; ok {
		return &UniqueViolationError{Field: FieldEmail}
	}
	if _, ok := r.byPhone[account.Phone]; ok {
		return &UniqueViolationError{Field: FieldPhone}
	}
	if account.ActivationToken != nil {
		if _, ok := r.byToken[*account.ActivationToken]; ok {
			return &UniqueViolationError{Field: FieldActivationToken}
		}
	}

	now := r.now()
	account.CreatedAt = now
	account.UpdatedAt = now

	stored := cloneAccount(account)
	r.byID[stored.ID] = stored
	r.byTaxID[stored.TaxID] = stored.ID
	r.byEmail[stored.Email] = stored.ID
	r.byPhone[stored.Phone] = stored.ID
	if stored.ActivationToken != nil {
		r.byToken[*stored.ActivationToken] = stored.ID
	}
	return nil
}

func (r *MemoryAccountRepository) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(id)
}

func (r *MemoryAccountRepository) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(r.byEmail[email])
}

func (r *MemoryAccountRepository) GetByActivationToken(_ context.Context, token string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(r.byToken[token])
}

func (r *MemoryAccountRepository) ExistsByTaxID(_ context.Context, taxID string) (bool, error) {
	return r.has(r.byTaxID, taxID), nil
}

func (r *MemoryAccountRepository) ExistsByEmail(_ context.Context, email string) (bool, error) {
	return r.has(r.byEmail, email), nil
}

func (r *MemoryAccountRepository) ExistsByPhone(_ context.Context, phone string) (bool, error) {
	return r.has(r.byPhone, phone), nil
}

func (r *MemoryAccountRepository) ConsumeActivationToken(_ context.Context, accountID, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.byID[accountID]
	if !ok || account.Verified || account.ActivationToken == nil || *account.ActivationToken != token {
		return false, nil
	}

	now := r.now()
	delete(r.byToken, token)
	account.Verified = true
	account.ActivationToken = nil
	account.VerifiedAt = &now
	account.UpdatedAt = now
	return true, nil
}

// Len returns the number of stored accounts.
func (r *MemoryAccountRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *MemoryAccountRepository) has(index map[string]string, key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := index[key]
	return ok
}

func (r *MemoryAccountRepository) lookup(id string) (*domain.Account, error) {
	account, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAccount(account), nil
}

func cloneAccount(a *domain.Account) *domain.Account {
	c := *a
	if a.ActivationToken != nil {
		token := *a.ActivationToken
		c.ActivationToken = &token
	}
	if a.VerifiedAt != nil {
		at := *a.VerifiedAt
		c.VerifiedAt = &at
	}
	return &c
}
