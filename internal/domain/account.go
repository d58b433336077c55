package domain

import "time"

// Account is a registered company identity.
// A verified account never carries an activation token.
type Account struct {
	ID              string
	Company         string
	TaxID           string
	Phone           string
	Email           string
	PasswordHash    string
	Verified        bool
	ActivationToken *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	VerifiedAt      *time.Time
}

// PendingActivation reports whether the account still waits for its token.
func (a *Account) PendingActivation() bool {
	return !a.Verified && a.ActivationToken != nil
}
