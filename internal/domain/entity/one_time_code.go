// Package entity contains the core business objects of the project.
package entity

import (
	"time"

	"github.com/google/uuid"
)

// CodePurpose scopes a one-time code to exactly one workflow. A code
// issued for one purpose never satisfies verification for another.
type CodePurpose string

const (
	PurposeEmailVerification CodePurpose = "email_verification"
	PurposeTwoFactor         CodePurpose = "two_factor"
	PurposePasswordReset     CodePurpose = "password_reset"
)

// IsValid checks if the CodePurpose is a valid value.
func (p CodePurpose) IsValid() bool {
	switch p {
	case PurposeEmailVerification, PurposeTwoFactor, PurposePasswordReset:
		return true
	default:
		return false
	}
}

// OneTimeCode is a short-lived, single-use proof delivered out of band.
// Verification always selects the most recently issued unused, unexpired
// row for an (email, purpose) pair; a used or expired code never
// re-validates.
type OneTimeCode struct {
	ID        uuid.UUID
	Email     string
	Code      string
	Purpose   CodePurpose
	Used      bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the code's TTL has elapsed.
func (c *OneTimeCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Usable reports whether the code can still satisfy a verification.
func (c *OneTimeCode) Usable(now time.Time) bool {
	return !c.Used && !c.Expired(now)
}
