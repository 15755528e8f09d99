// Package entity contains the core business objects of the project,
// each representing a unique, identifiable concept within the domain.
package entity

import (
	"time"

	"github.com/google/uuid"
)

// Account is the core identity record. One row exists per actor on the
// platform regardless of how many devices they are logged in from.
type Account struct {
	ID                 uuid.UUID
	Email              string // Stored lowercase; uniqueness is case-insensitive.
	FirstName          string
	LastName           string
	PasswordHash       string // Empty only when at least one ExternalIdentity is linked.
	Role               Role
	Status             AccountStatus
	IsEmailVerified    bool
	IsProfileComplete  bool
	TwoFactorEnabled   bool
	TwoFactorMethod    TwoFactorMethod
	TOTPSecret         string // Set only when TwoFactorMethod is totp.
	KYCStatus          KYCStatus
	KYCRejectionReason string
	FailedLoginCount   int
	LockUntil          *time.Time
	LastLoginAt        *time.Time
	LastLoginIP        string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Locked reports whether the account is inside an active lockout window.
func (a *Account) Locked(now time.Time) bool {
	return a.LockUntil != nil && now.Before(*a.LockUntil)
}

// LockRemaining returns how long the lockout window still has to run.
// Zero when the account is not locked.
func (a *Account) LockRemaining(now time.Time) time.Duration {
	if !a.Locked(now) {
		return 0
	}

	return a.LockUntil.Sub(now)
}

// FullName returns the display name used in outbound messages.
func (a *Account) FullName() string {
	if a.FirstName == "" {
		return a.LastName
	}
	if a.LastName == "" {
		return a.FirstName
	}

	return a.FirstName + " " + a.LastName
}

// ExternalIdentity links an Account to a federated identity provider.
// An account without a password hash must carry at least one of these.
type ExternalIdentity struct {
	ID             uuid.UUID
	AccountID      uuid.UUID
	Provider       IdentityProvider
	ProviderUserID string
	CreatedAt      time.Time
}
