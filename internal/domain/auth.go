package domain

import "time"

// Identity is the subject embedded in an issued credential.
type Identity struct {
	AccountID string
	Email     string
}

// Credential is a signed, time-bounded token issued after login.
type Credential struct {
	Token     string
	Identity  Identity
	IssuedAt  time.Time
	ExpiresAt time.Time
}
